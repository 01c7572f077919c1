package main

import (
	"context"
	"strings"

	"github.com/joho/godotenv"

	"groupchat/internal/app"
	"groupchat/pkg/config"
	"groupchat/pkg/logger"
	"groupchat/pkg/shutdown"
)

// build metadata - set via ldflags during build/release
var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	_ = godotenv.Load(".env")
	logger.Init()

	addrVal, dbVal, cfgVal, setFlags := config.ParseCommandFlags()
	cfgPath := config.ResolveConfigPath(cfgVal, setFlags["config"])

	cfg, backendKeys, signingKeys, envUsed, err := config.LoadEffective(cfgPath)
	if err != nil {
		shutdown.Abort("failed to load config", err, "", 0)
	}
	if cfg.Logging.Level != "" {
		logger.InitWithLevel(cfg.Logging.Level)
	}

	// flags win over env/config when explicitly set
	addr := cfg.Addr()
	if setFlags["addr"] {
		addr = addrVal
	}
	dbPath := cfg.Server.DBPath
	if dbPath == "" || setFlags["db"] {
		dbPath = dbVal
	}

	srcs := []string{}
	if len(setFlags) > 0 {
		srcs = append(srcs, "flags")
	}
	if envUsed {
		srcs = append(srcs, "env")
	}
	if _, err := config.Load(cfgPath); err == nil {
		srcs = append(srcs, "config")
	}

	a, err := app.New(app.Options{
		Cfg:         cfg,
		Addr:        addr,
		WSAddr:      cfg.WSAddr(),
		DBPath:      dbPath,
		Source:      strings.Join(srcs, ", "),
		BackendKeys: backendKeys,
		SigningKeys: signingKeys,
		Version:     version,
		Commit:      commit,
		BuildDate:   buildDate,
	})
	if err != nil {
		shutdown.Abort("startup failed", err, dbPath, 0)
	}

	ctx, cancel := shutdown.SetupSignalHandler(context.Background())
	defer cancel()

	if err := a.Run(ctx); err != nil {
		shutdown.Abort("server exited with error", err, dbPath, 0)
	}
}
