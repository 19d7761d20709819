package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/artpar/relaunch/internal/core/engine"
)

// Version information (set by build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("relaunch", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to config file")
	showVersion := fs.Bool("version", false, "Print version and exit")
	checkOnly := fs.Bool("check", false, "Validate configuration, print the engine connection and exit")
	if err := fs.Parse(args); err != nil {
		return ExitConfigError
	}

	if *showVersion {
		fmt.Printf("relaunch %s (built %s)\n", Version, BuildTime)
		return ExitSuccess
	}

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return ExitConfigError
	}

	if *checkOnly {
		printCheck(os.Stdout, cfg)
		return ExitSuccess
	}

	logger := SetupLogger(cfg)
	logger.Info("starting relaunch",
		"version", Version,
		"config", *configPath,
	)

	server, err := NewServer(cfg, logger)
	if err != nil {
		logger.Error("failed to create server", serverErrorAttrs(err)...)
		return exitCode(err)
	}

	if err := server.Start(context.Background()); err != nil {
		logger.Error("server error", serverErrorAttrs(err)...)
		return exitCode(err)
	}

	return ExitSuccess
}

// printCheck writes the resolved engine connection and fallback warnings.
func printCheck(w io.Writer, cfg *Config) {
	conn, warnings := engine.Resolve(cfg.Docker.EngineSettings())
	fmt.Fprintf(w, "configuration ok\n")
	fmt.Fprintf(w, "engine: %s %s\n", conn.Mode(), conn.Host())
	if ssh, ok := conn.(engine.SSHTunnel); ok {
		fmt.Fprintf(w, "ssh: %s@%s\n", ssh.User, ssh.Addr())
	}
	for _, warning := range warnings {
		fmt.Fprintf(w, "warning: %s\n", warning)
	}
	if cfg.Registry.NamespaceOnly() {
		fmt.Fprintf(w, "warning: registry host %q is not a hostname and is treated as a Docker Hub namespace\n", cfg.Registry.Host)
	}
	fmt.Fprintf(w, "lock backend: %s\n", cfg.Deploy.LockBackend)
	if cfg.Callback.URL == "" {
		fmt.Fprintf(w, "callback: disabled\n")
	} else {
		fmt.Fprintf(w, "callback: %s (signed: %t)\n", cfg.Callback.URL, cfg.Callback.Secret != "")
	}
}

// exitCode maps an error to the process exit status.
func exitCode(err error) int {
	var sErr *ServerError
	if errors.As(err, &sErr) {
		return sErr.ExitCode
	}
	return ExitConfigError
}

func serverErrorAttrs(err error) []any {
	var sErr *ServerError
	if errors.As(err, &sErr) {
		return []any{"error", sErr.Err, "operation", sErr.Op}
	}
	return []any{"error", err}
}
