package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Layr-Labs/merkle-airdrop-go/pkg/airdrop"
	"github.com/Layr-Labs/merkle-airdrop-go/pkg/config"
	"github.com/Layr-Labs/merkle-airdrop-go/pkg/ledger"
	"github.com/Layr-Labs/merkle-airdrop-go/pkg/logger"
	"github.com/Layr-Labs/merkle-airdrop-go/pkg/merkle"
	"github.com/Layr-Labs/merkle-airdrop-go/pkg/persistence/factory"
	"github.com/Layr-Labs/merkle-airdrop-go/pkg/server"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "airdrop-server",
		Usage: "Merkle airdrop claim server",
		Description: `Serves claims against a published merkle root.

The server stores only the root. Each recipient submits its own amount and
proof, signed with its key, and is paid at most once.`,
		Version: "1.0.0",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Value:   config.DefaultPort,
				Usage:   "HTTP server port",
				EnvVars: []string{config.EnvAirdropPort},
			},
			&cli.StringFlag{
				Name:     "root",
				Usage:    "Merkle root (0x-prefixed hex) to publish",
				EnvVars:  []string{config.EnvAirdropRoot},
				Required: true,
			},
			&cli.StringFlag{
				Name:    "hash-function",
				Usage:   fmt.Sprintf("Hash function the tree was built with: %v", merkle.SupportedHashes()),
				Value:   merkle.HashKeccak256,
				EnvVars: []string{config.EnvAirdropHashFunction},
			},
			&cli.StringFlag{
				Name:    "owner",
				Usage:   "Address recorded as the airdrop owner",
				EnvVars: []string{config.EnvAirdropOwner},
			},
			&cli.IntFlag{
				Name:    "leaf-count",
				Usage:   "Number of leaves in the tree (informational)",
				EnvVars: []string{config.EnvAirdropLeafCount},
			},
			&cli.StringFlag{
				Name:     "pool-balance",
				Usage:    "Decimal amount funding the claim pool",
				EnvVars:  []string{config.EnvAirdropPoolBalance},
				Required: true,
			},
			&cli.Float64Flag{
				Name:    "rate-limit",
				Usage:   "Requests per second allowed per client IP (0 disables)",
				Value:   config.DefaultRateLimit,
				EnvVars: []string{config.EnvAirdropRateLimit},
			},
			&cli.IntFlag{
				Name:    "rate-burst",
				Usage:   "Burst size of the per-client rate limiter",
				Value:   config.DefaultRateBurst,
				EnvVars: []string{config.EnvAirdropRateBurst},
			},
			&cli.StringFlag{
				Name:    "persistence-type",
				Usage:   fmt.Sprintf("Claim store backend: %s", config.GetSupportedPersistenceTypesString()),
				Value:   config.DefaultPersistenceType.String(),
				EnvVars: []string{config.EnvPersistenceType},
			},
			&cli.StringFlag{
				Name:    "badger-path",
				Usage:   "Data directory for badger persistence",
				Value:   config.DefaultBadgerPath,
				EnvVars: []string{config.EnvPersistenceBadgerPath},
			},
			&cli.StringFlag{
				Name:    "redis-address",
				Usage:   "Redis address for redis persistence",
				Value:   config.DefaultRedisAddress,
				EnvVars: []string{config.EnvRedisAddress},
			},
			&cli.StringFlag{
				Name:    "redis-password",
				Usage:   "Redis password",
				EnvVars: []string{config.EnvRedisPassword},
			},
			&cli.IntFlag{
				Name:    "redis-db",
				Usage:   "Redis database number",
				EnvVars: []string{config.EnvRedisDB},
			},
			&cli.StringFlag{
				Name:    "redis-key-prefix",
				Usage:   "Prefix for redis keys, lets several airdrops share one redis",
				EnvVars: []string{config.EnvRedisKeyPrefix},
			},
			&cli.StringFlag{
				Name:    "postgres-dsn",
				Usage:   "Postgres connection string for postgres persistence",
				EnvVars: []string{config.EnvPostgresDSN},
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Usage:   "Enable verbose logging",
				EnvVars: []string{config.EnvAirdropVerbose},
			},
		},
		Action: runAirdropServer,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

func runAirdropServer(c *cli.Context) error {
	l, err := logger.NewLogger(&logger.LoggerConfig{Debug: c.Bool("verbose")})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = l.Sync() }()

	cfg := parseAirdropConfig(c)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	store, err := factory.NewPersistence(&cfg.Persistence, l)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			l.Sugar().Warnw("Failed to close persistence", "error", err)
		}
	}()

	a, err := airdrop.NewAirdrop(&airdrop.Config{
		Persistence: store,
		Transferer:  ledger.NewMemoryLedger(cfg.PoolAmount),
		Logger:      l,
	})
	if err != nil {
		return fmt.Errorf("failed to create airdrop: %w", err)
	}

	if err := a.EnsureInitialized(cfg.RootDigest, cfg.OwnerAddr, cfg.HashFunction, cfg.LeafCount); err != nil {
		return fmt.Errorf("failed to initialize airdrop: %w", err)
	}

	if cfg.Verbose {
		l.Sugar().Infow("Airdrop Server Configuration",
			"port", cfg.Port,
			"root", cfg.RootDigest.Hex(),
			"hash_function", cfg.HashFunction,
			"persistence", cfg.Persistence.Type,
			"pool_balance", cfg.PoolAmount.Dec(),
			"rate_limit", cfg.RateLimit,
			"rate_burst", cfg.RateBurst,
		)
	}

	srv, err := server.NewServer(a, &server.Config{
		Port:      cfg.Port,
		RateLimit: cfg.RateLimit,
		RateBurst: cfg.RateBurst,
	}, l)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	if err := srv.Start(); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	l.Sugar().Infow("Airdrop Server running", "port", cfg.Port, "root", cfg.RootDigest.Hex())
	l.Sugar().Infow("Available endpoints",
		"root", "GET /root",
		"can_claim", "POST /can_claim",
		"claim", "POST /claim",
		"claims", "GET /claims, GET /claims/{recipient}",
		"health", "GET /health")
	l.Sugar().Info("Press Ctrl+C to stop")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	l.Sugar().Infow("Shutting down", "signal", sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Stop(ctx)
}

func parseAirdropConfig(c *cli.Context) *config.AirdropServerConfig {
	return &config.AirdropServerConfig{
		Port:         c.Int("port"),
		Root:         c.String("root"),
		HashFunction: c.String("hash-function"),
		Owner:        c.String("owner"),
		LeafCount:    c.Int("leaf-count"),
		PoolBalance:  c.String("pool-balance"),
		RateLimit:    c.Float64("rate-limit"),
		RateBurst:    c.Int("rate-burst"),
		Persistence: config.PersistenceConfig{
			Type:       config.PersistenceType(c.String("persistence-type")),
			BadgerPath: c.String("badger-path"),
			Redis: config.RedisConfig{
				Address:   c.String("redis-address"),
				Password:  c.String("redis-password"),
				DB:        c.Int("redis-db"),
				KeyPrefix: c.String("redis-key-prefix"),
			},
			PostgresDSN: c.String("postgres-dsn"),
		},
		Debug:   c.Bool("verbose"),
		Verbose: c.Bool("verbose"),
	}
}
