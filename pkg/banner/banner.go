package banner

import (
	"fmt"

	"groupchat/pkg/config"
)

const banner = `
 ██████╗ ██████╗  ██████╗ ██╗   ██╗██████╗  ██████╗██╗  ██╗ █████╗ ████████╗
██╔════╝ ██╔══██╗██╔═══██╗██║   ██║██╔══██╗██╔════╝██║  ██║██╔══██╗╚══██╔══╝
██║  ███╗██████╔╝██║   ██║██║   ██║██████╔╝██║     ███████║███████║   ██║
██║   ██║██╔══██╗██║   ██║██║   ██║██╔═══╝ ██║     ██╔══██║██╔══██║   ██║
╚██████╔╝██║  ██║╚██████╔╝╚██████╔╝██║     ╚██████╗██║  ██║██║  ██║   ██║
 ╚═════╝ ╚═╝  ╚═╝ ╚═════╝  ╚═════╝ ╚═╝      ╚═════╝╚═╝  ╚═╝╚═╝  ╚═╝   ╚═╝
`

// Print prints the startup banner plus a short production checklist
// derived from the effective config.
func Print(cfg *config.Config, addr, wsAddr, dbPath, source, version string) {
	fmt.Print(banner)
	fmt.Println("== Config =====================================================")
	fmt.Printf("HTTP:      %s\n", addr)
	fmt.Printf("WebSocket: %s\n", wsAddr)
	fmt.Printf("DB Path:   %s\n", dbPath)
	if version != "" {
		fmt.Printf("Version:   %s\n", version)
	}
	if source != "" {
		fmt.Printf("Config:    %s\n", source)
	}

	fmt.Println("\n== Examples ===================================================")
	fmt.Println("curl -X POST 'http://<host>:<port>/v1/groups/g1/messages' -d '{\"content\":\"hello\"}'")
	fmt.Println("curl 'http://<host>:<port>/v1/groups/g1/messages?page=1&limit=50'")
	fmt.Println("websocat 'ws://<host>:<ws-port>/ws?user=u1&sig=<hmac>'")

	fmt.Println("\n== Production? =================================================")
	if cfg == nil {
		fmt.Println("- No config loaded")
		return
	}
	if n := len(cfg.Security.APIKeys.Backend); n > 0 {
		fmt.Printf("- Backend API keys: OK (%d)\n", n)
	} else {
		fmt.Println("- Backend API keys: MISSING (required for backend services)")
	}
	if n := len(cfg.Security.APIKeys.Frontend); n > 0 {
		fmt.Printf("- Frontend API keys: OK (%d)\n", n)
	} else {
		fmt.Println("- Frontend API keys: MISSING (required for client access)")
	}
	if n := len(cfg.Security.APIKeys.Admin); n > 0 {
		fmt.Printf("- Admin API keys: OK (%d)\n", n)
	} else {
		fmt.Println("- Admin API keys: MISSING (required for admin tooling)")
	}
	if cfg.Server.TLS.CertFile != "" && cfg.Server.TLS.KeyFile != "" {
		fmt.Println("- TLS: configured")
	} else {
		fmt.Println("- TLS: unconfigured")
	}
	if cfg.Realtime.NATS.Enabled {
		fmt.Printf("- NATS fan-out: enabled (%s)\n", cfg.Realtime.NATS.URL)
	} else {
		fmt.Println("- NATS fan-out: disabled (single-process delivery)")
	}
	if cfg.Retention.Enabled {
		fmt.Printf("- Retention: enabled (cron=%s period=%s)\n", cfg.Retention.Cron, cfg.Retention.Period.Duration())
	} else {
		fmt.Println("- Retention: disabled")
	}

	fmt.Println("\n== Logs: =================================================")
}
