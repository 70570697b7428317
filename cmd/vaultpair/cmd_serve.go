package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vaultpair/vaultpair/internal/approval"
	"github.com/vaultpair/vaultpair/internal/audit"
	"github.com/vaultpair/vaultpair/internal/config"
	"github.com/vaultpair/vaultpair/internal/pairing"
	"github.com/vaultpair/vaultpair/internal/termcolor"
	"github.com/vaultpair/vaultpair/internal/vaultcli"
)

func runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "path to YAML config file")
	listen := fs.String("listen", "", "listen address override (loopback only)")
	fs.Parse(args)

	cfg := config.DefaultServerConfig()
	if *configPath != "" {
		loaded, err := config.LoadServerConfig(*configPath)
		if err != nil {
			fatal("serve: %v", err)
		}
		cfg = loaded
	}
	if *listen != "" {
		cfg.ListenAddress = *listen
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	vault := vaultcli.NewBitwardenCLI(cfg.Vault.CLIPath)
	if err := vault.ValidateInstalled(ctx); err != nil {
		fatal("serve: vault CLI check failed: %v", err)
	}

	manager := pairing.NewManager(vault, pairing.Config{
		PairingTTL:   cfg.PairingTTL,
		SessionTTL:   cfg.SessionTTL,
		ReplayWindow: cfg.ReplayWindow,
	})

	var auditor *audit.Logger
	if cfg.Audit.Enabled {
		a, closeAudit, err := audit.NewFileLogger(cfg.Audit.File)
		if err != nil {
			fatal("serve: audit log: %v", err)
		}
		defer closeAudit()
		auditor = a
		manager.SetAudit(auditor)
	}

	approver := newTerminalApprover(manager)
	manager.SetHandler(approver)

	var metrics *approval.Metrics
	if cfg.Telemetry.MetricsEnabled {
		metrics = approval.NewMetrics(func() float64 {
			return float64(manager.ActiveSessionCount())
		})
	}

	srv := approval.NewServer(manager, approval.ServerOptions{
		Auditor: auditor,
		Metrics: metrics,
	})

	go manager.Janitor(ctx, cfg.CleanupInterval)
	go approver.Run(ctx)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe(cfg.ListenAddress)
	}()

	termcolor.Bold("vaultpair approval service %s", version)
	termcolor.Green("Listening on http://%s", cfg.ListenAddress)
	termcolor.Faint("Pairing and release prompts appear here. Ctrl-C to stop.\n\n")

	select {
	case err := <-errCh:
		if err != nil {
			fatal("serve: %v", err)
		}
	case <-ctx.Done():
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("http shutdown incomplete", "error", err.Error())
		}
		// Revokes every session, which locks the vault.
		manager.Shutdown(shutdownCtx)
		termcolor.Yellow("Stopped. Vault locked.")
	}
}
