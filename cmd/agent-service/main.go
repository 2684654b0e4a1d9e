// Package main provides the entry point for the conversational agent service.
//
// @title        Secure Agent API
// @version      1.0.0
// @description  Conversational agent with identity-provider based security and per-user chat history.
//
// @securityDefinitions.apikey BearerAuth
// @in   header
// @name Authorization
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/txn2/secure-agent/docs/agent" // swagger docs
	"github.com/txn2/secure-agent/internal/server"
	"github.com/txn2/secure-agent/pkg/config"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath  string
		showVersion bool
	)
	flag.StringVar(&configPath, "config", "config.yaml", "Path to configuration file")
	flag.BoolVar(&showVersion, "version", false, "Show version and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf("agent-service version %s\n", server.Version)
		return nil
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.Server.Name == "" {
		cfg.Server.Name = "agent-service"
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	verifier, err := server.NewVerifier(cfg)
	if err != nil {
		return fmt.Errorf("creating verifier: %w", err)
	}

	handler, checker, closeFn, err := server.NewAgentService(cfg, verifier, "agent")
	if err != nil {
		return err
	}
	defer func() { _ = closeFn() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return server.Run(ctx, cfg, handler, checker)
}
