// Copyright 2024 The PrivatePay Authors
// This file is part of PrivatePay.

package main

import (
	"errors"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/AmaanSayyad/PrivatePay/backup"
)

var maxBackupsFlag = &cli.IntFlag{
	Name:  "max",
	Usage: "Number of backups to keep",
	Value: 5,
}

// dbCommand manages the payment database
var dbCommand = &cli.Command{
	Name:  "db",
	Usage: "Back up and restore the payment database and key files",
	Subcommands: []*cli.Command{
		{
			Name:      "backup",
			Usage:     "Archive the payment database and key files",
			ArgsUsage: "[name]",
			Flags:     []cli.Flag{maxBackupsFlag},
			Action:    dbBackup,
		},
		{
			Name:      "restore",
			Usage:     "Restore the data directory from an archive",
			ArgsUsage: "<backup.tar.gz>",
			Action:    dbRestore,
		},
		{
			Name:   "list",
			Usage:  "List available backups",
			Action: dbList,
		},
	},
}

func backupManager(ctx *cli.Context) (*backup.Manager, error) {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return nil, err
	}
	dataDir, err := cfg.GetDataDir()
	if err != nil {
		return nil, err
	}
	return backup.New(dataDir, ctx.Int(maxBackupsFlag.Name)), nil
}

func dbBackup(ctx *cli.Context) error {
	m, err := backupManager(ctx)
	if err != nil {
		return err
	}
	path, err := m.Create(ctx.Args().First())
	if err != nil {
		return err
	}
	fmt.Println("Backup:", path)
	return nil
}

func dbRestore(ctx *cli.Context) error {
	path := ctx.Args().First()
	if path == "" {
		return errors.New("must provide a backup file")
	}
	m, err := backupManager(ctx)
	if err != nil {
		return err
	}
	return m.Restore(path)
}

func dbList(ctx *cli.Context) error {
	m, err := backupManager(ctx)
	if err != nil {
		return err
	}
	list, err := m.List()
	if err != nil {
		return err
	}
	for _, info := range list {
		fmt.Printf("%s\t%d\t%s\n", info.Name(), info.Size(), info.ModTime().Format("2006-01-02 15:04:05"))
	}
	return nil
}
