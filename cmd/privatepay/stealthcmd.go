// Copyright 2024 The PrivatePay Authors
// This file is part of PrivatePay.

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"

	"github.com/AmaanSayyad/PrivatePay/accounts/keystore"
	"github.com/AmaanSayyad/PrivatePay/backup"
	"github.com/AmaanSayyad/PrivatePay/config"
	"github.com/AmaanSayyad/PrivatePay/metrics"
	"github.com/AmaanSayyad/PrivatePay/shutdown"
	"github.com/AmaanSayyad/PrivatePay/stealth"
	"github.com/AmaanSayyad/PrivatePay/stealthdb"
)

var (
	keyFileFlag = &cli.StringFlag{
		Name:  "keyfile",
		Usage: "Encrypted meta key file (defaults to the configured key file)",
	}
	passwordFlag = &cli.StringFlag{
		Name:    "password",
		Usage:   "Key file password",
		EnvVars: []string{"PRIVATEPAY_PASSWORD"},
	}
	passwordFileFlag = &cli.StringFlag{
		Name:  "password.file",
		Usage: "File holding the key file password",
	}
	lightKDFFlag = &cli.BoolFlag{
		Name:  "lightkdf",
		Usage: "Use cheaper scrypt parameters for the key file",
	}
	indexFlag = &cli.Uint64Flag{
		Name:  "index",
		Usage: "Payment index k",
	}
	ephemeralFlag = &cli.StringFlag{
		Name:  "ephemeral",
		Usage: "Hex ephemeral private key (drawn at random when omitted)",
	}
	spendKeyFlag = &cli.StringFlag{
		Name:  "spendkey",
		Usage: "Hex spend private key (instead of a key file)",
	}
	viewingKeyFlag = &cli.StringFlag{
		Name:  "viewingkey",
		Usage: "Hex viewing private key (instead of a key file)",
	}
	persistFlag = &cli.BoolFlag{
		Name:  "persist",
		Usage: "Store detected payments in the payment database",
	}
)

// stealthCommand manages stealth addresses
var stealthCommand = &cli.Command{
	Name:  "stealth",
	Usage: "Manage stealth addresses",
	Subcommands: []*cli.Command{
		{
			Name:   "keygen",
			Usage:  "Generate a payee's spend and viewing keys",
			Flags:  []cli.Flag{keyFileFlag, passwordFlag, passwordFileFlag, lightKDFFlag},
			Action: stealthKeygen,
		},
		{
			Name:      "address",
			Usage:     "Derive a one-time stealth address for a payee",
			ArgsUsage: "<meta-address>",
			Flags:     []cli.Flag{indexFlag, ephemeralFlag},
			Action:    stealthAddress,
		},
		{
			Name:      "validate",
			Usage:     "Check a compressed secp256k1 public key",
			ArgsUsage: "<public-key>",
			Action:    stealthValidate,
		},
		{
			Name:      "recover",
			Usage:     "Derive the private key of a stealth address received by the payee",
			ArgsUsage: "<ephemeral-public-key>",
			Flags:     []cli.Flag{indexFlag, keyFileFlag, passwordFlag, passwordFileFlag, spendKeyFlag, viewingKeyFlag},
			Action:    stealthRecover,
		},
		{
			Name:      "scan",
			Usage:     "Scan an announcement file for payments to the payee",
			ArgsUsage: "<announcements.json>",
			Flags:     []cli.Flag{keyFileFlag, passwordFlag, passwordFileFlag, spendKeyFlag, viewingKeyFlag, persistFlag},
			Action:    stealthScan,
		},
		{
			Name:      "watch",
			Usage:     "Keep scanning an announcement file as it grows",
			ArgsUsage: "<announcements.json>",
			Flags:     []cli.Flag{keyFileFlag, passwordFlag, passwordFileFlag, spendKeyFlag, viewingKeyFlag},
			Action:    stealthWatch,
		},
	},
}

func getPassword(ctx *cli.Context) (string, error) {
	if path := ctx.String(passwordFileFlag.Name); path != "" {
		content, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("failed to read password file: %w", err)
		}
		return strings.TrimRight(string(content), "\r\n"), nil
	}
	if ctx.IsSet(passwordFlag.Name) {
		return ctx.String(passwordFlag.Name), nil
	}
	return "", errors.New("key file password required (--password or --password.file)")
}

func keyFilePath(ctx *cli.Context, cfg *config.Config) (string, error) {
	if path := ctx.String(keyFileFlag.Name); path != "" {
		return config.ExpandPath(path)
	}
	return cfg.GetKeyFile()
}

// loadMetaKeys takes the payee keys from hex flags or from the key file
func loadMetaKeys(ctx *cli.Context, cfg *config.Config) (*stealth.MetaKeys, error) {
	if ctx.IsSet(spendKeyFlag.Name) || ctx.IsSet(viewingKeyFlag.Name) {
		spend, err := stealth.HexToPrivateKey(ctx.String(spendKeyFlag.Name))
		if err != nil {
			return nil, fmt.Errorf("invalid spend key: %w", err)
		}
		viewing, err := stealth.HexToPrivateKey(ctx.String(viewingKeyFlag.Name))
		if err != nil {
			return nil, fmt.Errorf("invalid viewing key: %w", err)
		}
		return stealth.MetaKeysFromPrivate(spend, viewing)
	}
	path, err := keyFilePath(ctx, cfg)
	if err != nil {
		return nil, err
	}
	password, err := getPassword(ctx)
	if err != nil {
		return nil, err
	}
	key, err := keystore.LoadKey(path, password)
	if err != nil {
		return nil, fmt.Errorf("failed to load key file: %w", err)
	}
	return key.Keys, nil
}

// paymentIndex reads --index, which must fit the 32-bit k of the derivation
func paymentIndex(ctx *cli.Context) (uint32, error) {
	index := ctx.Uint64(indexFlag.Name)
	if index > math.MaxUint32 {
		return 0, fmt.Errorf("payment index %d out of range (max %d)", index, uint32(math.MaxUint32))
	}
	return uint32(index), nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// stealthKeygen generates a payee's key pairs
func stealthKeygen(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	engine, err := stealth.NewEngine()
	if err != nil {
		return err
	}
	keys, err := engine.GenerateMetaKeys()
	if err != nil {
		return fmt.Errorf("failed to generate stealth keys: %w", err)
	}
	meta := keys.MetaAddress()

	if ctx.IsSet(keyFileFlag.Name) || ctx.IsSet(passwordFlag.Name) || ctx.IsSet(passwordFileFlag.Name) {
		path, err := keyFilePath(ctx, cfg)
		if err != nil {
			return err
		}
		password, err := getPassword(ctx)
		if err != nil {
			return err
		}
		key, err := keystore.NewKey(keys)
		if err != nil {
			return err
		}
		scryptN, scryptP := keystore.StandardScryptN, keystore.StandardScryptP
		if ctx.Bool(lightKDFFlag.Name) || cfg.Scanner.LightKDF {
			scryptN, scryptP = keystore.LightScryptN, keystore.LightScryptP
		}
		if err := keystore.StoreKey(path, key, password, scryptN, scryptP); err != nil {
			return fmt.Errorf("failed to store key file: %w", err)
		}
		fmt.Println("Key file:", path)
	} else {
		fmt.Println("=== Stealth Keys Generated ===")
		fmt.Println()
		fmt.Println("KEEP THESE PRIVATE KEYS SECURE!")
		fmt.Println()
		fmt.Printf("Spend Private Key:   %s\n", keys.Spend.Private.Hex())
		fmt.Printf("Viewing Private Key: %s\n", keys.Viewing.Private.Hex())
		fmt.Println()
	}

	fmt.Println("=== Public Meta-Address (share this) ===")
	fmt.Println()
	fmt.Printf("Meta-Address:      %s\n", meta.String())
	fmt.Printf("Spend Public Key:   %s\n", meta.SpendPubKey.Hex())
	fmt.Printf("Viewing Public Key: %s\n", meta.ViewingPubKey.Hex())
	return nil
}

// stealthAddress derives a one-time stealth address
func stealthAddress(ctx *cli.Context) error {
	metaStr := ctx.Args().First()
	if metaStr == "" {
		return errors.New("must provide a meta-address")
	}
	meta, err := stealth.ParseMetaAddress(metaStr)
	if err != nil {
		return fmt.Errorf("invalid meta-address: %w", err)
	}
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	format, err := cfg.AddressFormat()
	if err != nil {
		return err
	}
	engine, err := stealth.NewEngine(stealth.WithAddressFormat(format))
	if err != nil {
		return err
	}

	index, err := paymentIndex(ctx)
	if err != nil {
		return err
	}
	var payment *stealth.Payment
	if hex := ctx.String(ephemeralFlag.Name); hex != "" {
		ephemeral, err := stealth.HexToPrivateKey(hex)
		if err != nil {
			return fmt.Errorf("invalid ephemeral key: %w", err)
		}
		payment, err = engine.GenerateStealthAddress(meta, ephemeral, index)
		if err != nil {
			return fmt.Errorf("failed to generate stealth address: %w", err)
		}
	} else {
		payment, err = engine.NewPayment(meta, index)
		if err != nil {
			return fmt.Errorf("failed to generate stealth address: %w", err)
		}
	}
	return printJSON(payment)
}

// stealthValidate checks a public key
func stealthValidate(ctx *cli.Context) error {
	key := ctx.Args().First()
	if key == "" {
		return errors.New("must provide a public key")
	}
	if err := stealth.ValidatePublicKeyHex(key); err != nil {
		return err
	}
	fmt.Println("valid")
	return nil
}

// stealthRecover derives the stealth private key for a received payment
func stealthRecover(ctx *cli.Context) error {
	ephemeralHex := ctx.Args().First()
	if ephemeralHex == "" {
		return errors.New("must provide the ephemeral public key")
	}
	ephemeral, err := stealth.HexToPublicKey(ephemeralHex)
	if err != nil {
		return fmt.Errorf("invalid ephemeral key: %w", err)
	}
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	format, err := cfg.AddressFormat()
	if err != nil {
		return err
	}
	keys, err := loadMetaKeys(ctx, cfg)
	if err != nil {
		return err
	}

	index, err := paymentIndex(ctx)
	if err != nil {
		return err
	}
	secret, err := stealth.ComputeSharedSecret(keys.Viewing.Private, ephemeral)
	if err != nil {
		return err
	}
	priv, err := stealth.DeriveStealthPrivateKey(keys.Spend.Private, secret, index)
	if err != nil {
		return err
	}
	defer priv.Zero()
	pub, err := stealth.DerivePublicKey(priv)
	if err != nil {
		return err
	}
	addr, err := stealth.DeriveStealthAddress(pub, format)
	if err != nil {
		return err
	}

	fmt.Printf("Stealth Address:     %s\n", addr)
	fmt.Printf("Stealth Public Key:  %s\n", pub.Hex())
	fmt.Printf("Stealth Private Key: %s\n", priv.Hex())
	fmt.Printf("View Hint:           0x%02x\n", stealth.DeriveViewHint(secret))
	return nil
}

// newService sets up a service with one scanner for the payee, optionally
// backed by the payment database
func newService(ctx *cli.Context, cfg *config.Config, persist bool) (*stealth.Service, *stealthdb.Database, error) {
	format, err := cfg.AddressFormat()
	if err != nil {
		return nil, nil, err
	}
	keys, err := loadMetaKeys(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	var db *stealthdb.Database
	if persist {
		dataDir, err := cfg.GetDataDir()
		if err != nil {
			return nil, nil, err
		}
		db, err = stealthdb.NewDatabase(filepath.Join(dataDir, backup.PaymentsDir), cfg.Database.Cache, cfg.Database.Handles)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open payment database: %w", err)
		}
	}

	svc := stealth.NewService(format, db)
	if _, err := svc.RegisterScanner(keys); err != nil {
		if db != nil {
			db.Close()
		}
		return nil, nil, err
	}
	svc.SetSource(newFileSource(ctx.Args().First()))
	return svc, db, nil
}

// stealthScan scans an announcement file once
func stealthScan(ctx *cli.Context) error {
	path := ctx.Args().First()
	if path == "" {
		return errors.New("must provide an announcement file")
	}
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	svc, db, err := newService(ctx, cfg, ctx.Bool(persistFlag.Name))
	if err != nil {
		return err
	}
	defer svc.Stop()
	if db != nil {
		defer db.Close()
	}

	head, err := newFileSource(path).Head(ctx.Context)
	if err != nil {
		return err
	}
	results, err := svc.ScanRange(ctx.Context, 0, head)
	if err != nil {
		return err
	}

	found := make([]*stealth.ReceivedPayment, 0)
	for _, payments := range results {
		found = append(found, payments...)
	}
	m := metrics.GetGlobalRegistry().GetMetrics()
	log.Info("Scan finished", "head", head, "payments", len(found),
		"scanned", m.AnnouncementsScanned, "invalid", m.AnnouncementsInvalid,
		"hints", m.HintMatches, "falsePositives", m.HintFalsePositives)
	return printJSON(found)
}

// stealthWatch polls an announcement file and reports payments until interrupted
func stealthWatch(ctx *cli.Context) error {
	if ctx.Args().First() == "" {
		return errors.New("must provide an announcement file")
	}
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	svc, db, err := newService(ctx, cfg, true)
	if err != nil {
		return err
	}

	events := make(chan stealth.PaymentEvent, 16)
	sub := svc.SubscribePayments(events)

	runCtx, cancel := context.WithCancel(ctx.Context)
	defer cancel()

	mgr := shutdown.New(30 * time.Second)
	mgr.Register("database", func(context.Context) error { return db.Close() })
	mgr.Register("service", func(context.Context) error {
		cancel()
		svc.Stop()
		return nil
	})
	mgr.Start()

	if err := svc.StartAutoScan(runCtx, cfg.GetPollInterval()); err != nil {
		mgr.Shutdown(context.Background())
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	for {
		select {
		case ev := <-events:
			if err := enc.Encode(ev.Payment); err != nil {
				log.Warn("Failed to print payment", "err", err)
			}
		case <-sub.Err():
			<-mgr.Done()
			return nil
		case <-mgr.Done():
			return nil
		}
	}
}
