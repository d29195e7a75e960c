// Copyright 2024 The PrivatePay Authors
// This file is part of PrivatePay.

// privatepay is the command-line client for PrivatePay stealth payments.
package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/urfave/cli/v2"

	"github.com/AmaanSayyad/PrivatePay/config"
	"github.com/AmaanSayyad/PrivatePay/params"
)

var (
	// Git SHA1 commit hash of the release (set via linker flags)
	gitCommit = ""
	gitDate   = ""
)

var (
	configFlag = &cli.StringFlag{
		Name:  "config",
		Usage: "JSON configuration file",
	}
	dataDirFlag = &cli.StringFlag{
		Name:  "datadir",
		Usage: "Data directory for the payment database and backups",
	}
	chainFlag = &cli.StringFlag{
		Name:  "chain",
		Usage: "Address format preset (aptos, full)",
	}
	verbosityFlag = &cli.StringFlag{
		Name:  "verbosity",
		Usage: "Log level (trace, debug, info, warn, error, crit)",
	}
	logFormatFlag = &cli.StringFlag{
		Name:  "log.format",
		Usage: "Log format (text, json)",
	}
	logFileFlag = &cli.StringFlag{
		Name:  "log.file",
		Usage: "Write logs to a file instead of stderr",
	}
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:                 "privatepay",
		Usage:                "the PrivatePay stealth payment command line interface",
		Version:              params.VersionWithMeta,
		EnableBashCompletion: true,
		Flags: []cli.Flag{
			configFlag,
			dataDirFlag,
			chainFlag,
			verbosityFlag,
			logFormatFlag,
			logFileFlag,
		},
		Before: setupLogging,
		Commands: []*cli.Command{
			versionCommand,
			stealthCommand,
			dbCommand,
		},
	}
}

// loadConfig reads the configuration file, if any, and applies the global
// flags on top of it
func loadConfig(ctx *cli.Context) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if path := ctx.String(configFlag.Name); path != "" {
		loaded, err := config.LoadConfig(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}
	if ctx.IsSet(dataDirFlag.Name) {
		cfg.Database.DataDir = ctx.String(dataDirFlag.Name)
	}
	if ctx.IsSet(chainFlag.Name) {
		cfg.Chain = config.ChainConfig{Name: ctx.String(chainFlag.Name)}
	}
	if ctx.IsSet(verbosityFlag.Name) {
		cfg.Logging.Level = ctx.String(verbosityFlag.Name)
	}
	if ctx.IsSet(logFormatFlag.Name) {
		cfg.Logging.Format = ctx.String(logFormatFlag.Name)
	}
	if ctx.IsSet(logFileFlag.Name) {
		cfg.Logging.File = ctx.String(logFileFlag.Name)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func setupLogging(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	// The log file stays open for the life of the process
	_, err = cfg.SetupLogging()
	return err
}

// versionCommand prints version information
var versionCommand = &cli.Command{
	Name:  "version",
	Usage: "Print version numbers",
	Action: func(ctx *cli.Context) error {
		fmt.Println("PrivatePay")
		fmt.Println("Version:", params.VersionWithMeta)
		if gitCommit != "" {
			fmt.Println("Git Commit:", gitCommit)
		}
		if gitDate != "" {
			fmt.Println("Git Commit Date:", gitDate)
		}
		fmt.Println("Architecture:", runtime.GOARCH)
		fmt.Println("Go Version:", runtime.Version())
		fmt.Println("Operating System:", runtime.GOOS)
		return nil
	},
}
