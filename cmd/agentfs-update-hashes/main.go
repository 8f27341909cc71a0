// Copyright 2026 The AgentFS Authors
// SPDX-License-Identifier: Apache-2.0

// agentfs-update-hashes refreshes nix/hashes.json (and the extracted
// pyturso Cargo.lock copy) so the AgentFS SDK Nix packages build
// reproducibly. Source hashes are prefetched directly; vendored
// dependency hashes are discovered by building with a deliberately
// wrong hash and parsing the correct value out of the mismatch
// diagnostic.
//
// Safe to re-run: a run against an unchanged upstream commits the same
// hashes it started with. Any failing step aborts the run; the manifest
// on disk reflects the last completed sub-step.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/agentfs/nix-updater/lib/config"
	"github.com/agentfs/nix-updater/lib/updater"
	"github.com/agentfs/nix-updater/lib/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath  string
		repoRoot    string
		showVersion bool
	)

	flagSet := pflag.NewFlagSet("agentfs-update-hashes", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "YAML config file overriding the built-in defaults")
	flagSet.StringVar(&repoRoot, "repo-root", ".", "repository root the manifest paths and builds are relative to")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")
	flagSet.BoolP("help", "h", false, "show help")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		flagSet.PrintDefaults()
		return nil
	}

	if showVersion {
		fmt.Printf("agentfs-update-hashes %s\n", version.Info())
		return nil
	}

	cfg := config.Default()
	if configPath != "" {
		var err error
		cfg, err = config.LoadFile(configPath)
		if err != nil {
			return err
		}
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return updater.New(cfg, repoRoot, logger).Run(ctx)
}
