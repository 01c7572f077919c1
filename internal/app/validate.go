package app

import (
	"fmt"
	"os"
)

// validateConfig performs quick, fail-fast validation of the effective
// configuration before starting long-running services. Keep checks light
// and focused so callers can surface user-friendly errors.
func validateConfig(opts Options) error {
	if opts.Cfg == nil {
		return fmt.Errorf("no configuration loaded")
	}
	if opts.DBPath == "" {
		return fmt.Errorf("database path is empty: set --db flag, GROUPCHAT_DB_PATH env, or server.db_path in config")
	}
	if opts.Addr == opts.WSAddr {
		return fmt.Errorf("http and websocket listeners cannot share an address: %s", opts.Addr)
	}

	cert := opts.Cfg.Server.TLS.CertFile
	key := opts.Cfg.Server.TLS.KeyFile
	if (cert != "" && key == "") || (cert == "" && key != "") {
		return fmt.Errorf("incomplete TLS configuration: both server.tls.cert_file and server.tls.key_file must be set")
	}
	if cert != "" {
		if _, err := os.Stat(cert); err != nil {
			return fmt.Errorf("tls cert file not accessible: %w", err)
		}
		if _, err := os.Stat(key); err != nil {
			return fmt.Errorf("tls key file not accessible: %w", err)
		}
	}

	if opts.Cfg.Retention.Enabled && opts.Cfg.Retention.Period.Duration() <= 0 {
		return fmt.Errorf("retention enabled but retention.period is not set")
	}
	if opts.Cfg.Realtime.NATS.Enabled && opts.Cfg.Realtime.NATS.URL == "" {
		return fmt.Errorf("nats fan-out enabled but realtime.nats.url is not set")
	}
	return nil
}
