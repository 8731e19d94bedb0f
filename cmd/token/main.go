// Command token mints a dashboard token pair for a user. Identity is managed
// outside this service; operators run this to hand out access.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"voice-receptionist/internal/auth"
	"voice-receptionist/internal/config"
	"voice-receptionist/internal/rbac"
	"voice-receptionist/pkg/logger"
)

func main() {
	userID := flag.String("user", "", "dashboard user id")
	role := flag.String("role", rbac.RoleViewer, "role: admin, operator or viewer")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}
	log := logger.NewWithWriter(os.Stderr, cfg.App.Env, cfg.App.LogLevel)

	if *userID == "" || !rbac.IsKnownRole(*role) {
		fmt.Fprintln(os.Stderr, "usage: token -user <id> [-role admin|operator|viewer]")
		os.Exit(2)
	}

	m, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}
	pair, err := m.IssuePair(time.Now(), *userID, *role)
	if err != nil {
		log.Error("token issuance failed", "err", err)
		os.Exit(1)
	}
	log.Info("token issued", "user_id", *userID, "role", *role)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(pair)
}
