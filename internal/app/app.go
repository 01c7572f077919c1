package app

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/joho/godotenv"

	"groupchat/pkg/auth"
	"groupchat/pkg/banner"
	"groupchat/pkg/chat"
	"groupchat/pkg/config"
	"groupchat/pkg/logger"
	"groupchat/pkg/membership"
	"groupchat/pkg/realtime"
	"groupchat/pkg/retention"
	"groupchat/pkg/store"
	"groupchat/pkg/validation"
)

// Options carries the effective startup configuration into the app.
type Options struct {
	Cfg    *config.Config
	Addr   string
	WSAddr string
	DBPath string
	Source string

	BackendKeys map[string]struct{}
	SigningKeys map[string]struct{}

	Version   string
	Commit    string
	BuildDate string
}

// App encapsulates the server components and lifecycle.
type App struct {
	opts Options

	authority *membership.StoreAuthority
	registry  *realtime.Registry
	relay     *realtime.Relay
	gateway   *realtime.Gateway
	svc       *chat.Service

	srv  *http.Server
	wsLn net.Listener
}

// New initializes resources that do not require a running context (store,
// validation rules, runtime keys, the realtime plane). Call Run to start
// the listeners and block until shutdown.
func New(opts Options) (*App, error) {
	_ = godotenv.Load(".env")

	if err := validateConfig(opts); err != nil {
		return nil, err
	}

	config.SetRuntime(&config.RuntimeConfig{
		BackendKeys: opts.BackendKeys,
		SigningKeys: opts.SigningKeys,
	})

	validation.SetRules(validation.Rules{
		MaxContent:     opts.Cfg.Limits.MaxContent,
		MaxEmoji:       opts.Cfg.Limits.MaxEmoji,
		MaxMentions:    opts.Cfg.Limits.MaxMentions,
		MaxAttachments: opts.Cfg.Limits.MaxAttachments,
	})

	if err := store.Open(opts.DBPath); err != nil {
		return nil, fmt.Errorf("failed to open pebble at %s: %w", opts.DBPath, err)
	}

	a := &App{opts: opts}
	a.authority = membership.NewStoreAuthority(opts.Cfg.Groups.DefaultMaxMembers)
	a.registry = realtime.NewRegistry()
	a.relay = realtime.NewRelay(a.registry, opts.Cfg.Realtime.QueueCapacity, opts.Cfg.Realtime.Workers)

	if opts.Cfg.Realtime.NATS.Enabled {
		bridge, err := realtime.NewNATSBridge(opts.Cfg.Realtime.NATS.URL, opts.Cfg.Realtime.NATS.SubjectPrefix)
		if err != nil {
			// degrade to single-process delivery rather than refusing to start
			logger.Error("nats_connect_failed", "url", opts.Cfg.Realtime.NATS.URL, "error", err)
		} else {
			a.relay.AttachBridge(bridge)
		}
	}

	a.svc = chat.NewService(a.authority, a.authority, a.relay)
	a.gateway = realtime.NewGateway(a.registry, a.relay, a.svc, a.authority, auth.VerifyUserSignature, opts.Cfg.Realtime.SessionBuffer)
	return a, nil
}

// Run starts the relay workers, retention scheduler and both listeners,
// then blocks until ctx is canceled or a fatal server error occurs.
func (a *App) Run(ctx context.Context) error {
	a.relay.Start()

	retCancel, err := retention.Start(ctx, a.opts.Cfg.Retention)
	if err != nil {
		return err
	}
	defer retCancel()

	a.printBanner()

	httpErr := a.startHTTP(ctx)
	wsErr := a.startWS(ctx)

	select {
	case <-ctx.Done():
		a.shutdown()
		return nil
	case err := <-httpErr:
		a.shutdown()
		return err
	case err := <-wsErr:
		a.shutdown()
		return err
	}
}

func (a *App) shutdown() {
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if a.srv != nil {
		_ = a.srv.Shutdown(sctx)
	}
	if a.gateway != nil {
		_ = a.gateway.Shutdown(sctx)
	}
	a.relay.Stop()
	if err := store.Close(); err != nil {
		logger.Error("store_close_failed", "error", err)
	}
	logger.Info("shutdown_complete")
}

// printBanner prints the startup banner and build info.
func (a *App) printBanner() {
	verStr := a.opts.Version
	if a.opts.Commit != "none" && a.opts.Commit != "" {
		verStr += " (" + a.opts.Commit + ")"
	}
	if a.opts.BuildDate != "unknown" && a.opts.BuildDate != "" {
		verStr += " @ " + a.opts.BuildDate
	}
	banner.Print(a.opts.Cfg, a.opts.Addr, a.opts.WSAddr, a.opts.DBPath, a.opts.Source, verStr)
}
