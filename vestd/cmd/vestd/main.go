package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	_ "net/http/pprof" // Register pprof handlers
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/vestlabs/vest/utils/pkg/logger"
	"github.com/vestlabs/vest/vestd/pkg/metrics"
	"github.com/vestlabs/vest/vestd/pkg/pgstore"
	"github.com/vestlabs/vest/vestd/pkg/server"
	"github.com/vestlabs/vest/vestd/pkg/vesting"
	"github.com/vestlabs/vest/vestd/pkg/webhook"
)

var (
	// Set by LDFLAGS
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const defaultListenAddr = "0.0.0.0:8080"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run starts the vesting ledger daemon.
//
// Required environment:
//   - ADMIN_TOKEN: bearer token gating privileged API routes
//   - VESTD_ADMINISTRATOR: account schedules are funded from
//   - VESTD_RECOVERY_ACCOUNT: account swept balances are sent to
//
// Optional environment:
//   - DATABASE_URL: PostgreSQL URL; empty runs the in-memory dev store
//   - VESTD_WEBHOOK_URL: endpoint receiving ledger events as JSON
//   - VESTD_ALLOWED_ORIGINS: comma-separated CORS origins
//   - VESTD_DEV_FUNDER_BALANCE: seed balance for the dev ledger
func run() error {
	verboseFlag := flag.Bool("verbose", false, "Enable verbose (debug) logging")
	enablePprofFlag := flag.Bool("enable-pprof", false, "Enable pprof server")
	listenAddrFlag := flag.String("listen-addr", defaultListenAddr, "Address to listen on for the HTTP API")
	shutdownTimeoutFlag := flag.Duration("shutdown-timeout", 30*time.Second, "Maximum time to wait for in-flight requests during graceful shutdown")
	maxSchedulesFlag := flag.Int("max-schedules", vesting.DefaultMaxSchedules, "Maximum schedules per beneficiary")
	claimRateFlag := flag.Int("claim-rate-per-minute", 30, "Per-IP claim attempts allowed per minute")
	claimBurstFlag := flag.Int("claim-burst", 5, "Per-IP claim burst size")

	flag.Parse()

	// Load a local .env in development; absence is fine.
	_ = godotenv.Load()

	log := logger.New(*verboseFlag)

	adminToken := os.Getenv("ADMIN_TOKEN")
	if adminToken == "" {
		return fmt.Errorf("ADMIN_TOKEN is required")
	}
	administrator := os.Getenv("VESTD_ADMINISTRATOR")
	if administrator == "" {
		return fmt.Errorf("VESTD_ADMINISTRATOR is required")
	}
	recoveryAccount := os.Getenv("VESTD_RECOVERY_ACCOUNT")
	if recoveryAccount == "" {
		return fmt.Errorf("VESTD_RECOVERY_ACCOUNT is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *enablePprofFlag {
		go func() {
			log.Info("starting pprof server", "address", "localhost:6060")
			if err := http.ListenAndServe("localhost:6060", nil); err != nil {
				log.Error("failed to start pprof server", "error", err)
			}
		}()
	}

	var (
		store vesting.ScheduleStore
		token vesting.TokenLedger
	)
	if databaseURL := os.Getenv("DATABASE_URL"); databaseURL != "" {
		pool, err := pgxpool.New(ctx, databaseURL)
		if err != nil {
			return fmt.Errorf("failed to create postgres pool: %w", err)
		}
		defer pool.Close()
		if err := pool.Ping(ctx); err != nil {
			return fmt.Errorf("failed to ping postgres: %w", err)
		}

		store, err = pgstore.NewStore(pgstore.StoreConfig{Logger: log, Pool: pool})
		if err != nil {
			return fmt.Errorf("failed to create schedule store: %w", err)
		}
		token, err = pgstore.NewLedger(pgstore.LedgerConfig{Logger: log, Pool: pool})
		if err != nil {
			return fmt.Errorf("failed to create token ledger: %w", err)
		}
		log.Info("vestd: using postgres store")
	} else {
		memLedger := vesting.NewMemoryLedger()
		if seed := os.Getenv("VESTD_DEV_FUNDER_BALANCE"); seed != "" {
			balance, err := strconv.ParseUint(seed, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid VESTD_DEV_FUNDER_BALANCE: %w", err)
			}
			memLedger.Credit(administrator, balance)
		}
		store = vesting.NewMemoryStore()
		token = memLedger
		log.Warn("vestd: DATABASE_URL not set, using in-memory store; state is lost on restart")
	}

	sinks := vesting.FanoutSink{vesting.NewLogSink(log)}
	if url := os.Getenv("VESTD_WEBHOOK_URL"); url != "" {
		sink, err := webhook.NewSink(webhook.Config{Logger: log, URL: url})
		if err != nil {
			return fmt.Errorf("failed to create webhook sink: %w", err)
		}
		sinks = append(sinks, sink)
	}

	svc, err := vesting.New(vesting.Config{
		Logger:          log,
		Store:           store,
		Token:           token,
		Events:          sinks,
		Administrator:   administrator,
		RecoveryAccount: recoveryAccount,
		MaxSchedules:    *maxSchedulesFlag,
	})
	if err != nil {
		return fmt.Errorf("failed to create vesting service: %w", err)
	}

	var allowedOrigins []string
	if origins := os.Getenv("VESTD_ALLOWED_ORIGINS"); origins != "" {
		allowedOrigins = strings.Split(origins, ",")
	}

	srv, err := server.New(server.Config{
		Logger:             log,
		Service:            svc,
		ListenAddr:         *listenAddrFlag,
		ShutdownTimeout:    *shutdownTimeoutFlag,
		AdminToken:         adminToken,
		AllowedOrigins:     allowedOrigins,
		ClaimRatePerMinute: *claimRateFlag,
		ClaimBurst:         *claimBurstFlag,
		VersionInfo: server.VersionInfo{
			Version: version,
			Commit:  commit,
			Date:    date,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	metrics.BuildInfo.WithLabelValues(version, commit, date).Set(1)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(ctx)
	})
	return g.Wait()
}
