package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"

	"github.com/vestlabs/vest/utils/pkg/logger"
	"github.com/vestlabs/vest/vestd/pkg/pgstore"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	verboseFlag := flag.Bool("verbose", false, "enable verbose (debug) logging")

	databaseURLFlag := flag.String("database-url", "", "PostgreSQL URL (or set DATABASE_URL env var)")

	// Commands
	migrateFlag := flag.Bool("pg-migrate", false, "Run database migrations using goose")
	migrateDownFlag := flag.Bool("pg-migrate-down", false, "Roll back the most recent database migration")
	migrateStatusFlag := flag.Bool("pg-migrate-status", false, "Show database migration status")
	balanceFlag := flag.String("balance", "", "Show the token balance of the given account")
	creditAccountFlag := flag.String("credit-account", "", "Credit tokens to the given account (requires --credit-amount)")
	creditAmountFlag := flag.Uint64("credit-amount", 0, "Amount of token units to credit")
	yesFlag := flag.Bool("yes", false, "Skip confirmation prompt (use with caution)")

	flag.Parse()

	_ = godotenv.Load()

	log := logger.New(*verboseFlag)

	if env := os.Getenv("DATABASE_URL"); env != "" && *databaseURLFlag == "" {
		*databaseURLFlag = env
	}
	if *databaseURLFlag == "" {
		return fmt.Errorf("database URL is required (--database-url or DATABASE_URL)")
	}

	switch {
	case *migrateFlag:
		return pgstore.MigrateUp(log, *databaseURLFlag)

	case *migrateDownFlag:
		if !*yesFlag && !confirm("Roll back the most recent migration?") {
			return fmt.Errorf("aborted")
		}
		return pgstore.MigrateDown(log, *databaseURLFlag)

	case *migrateStatusFlag:
		return pgstore.MigrateStatus(log, *databaseURLFlag)

	case *balanceFlag != "":
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		ledger, pool, err := openLedger(ctx, log, *databaseURLFlag)
		if err != nil {
			return err
		}
		defer pool.Close()

		balance, err := ledger.Balance(ctx, *balanceFlag)
		if err != nil {
			return err
		}
		fmt.Printf("%s: %d\n", *balanceFlag, balance)
		return nil

	case *creditAccountFlag != "":
		if *creditAmountFlag == 0 {
			return fmt.Errorf("--credit-amount must be positive")
		}
		if !*yesFlag && !confirm(fmt.Sprintf("Credit %d units to %s?", *creditAmountFlag, *creditAccountFlag)) {
			return fmt.Errorf("aborted")
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		ledger, pool, err := openLedger(ctx, log, *databaseURLFlag)
		if err != nil {
			return err
		}
		defer pool.Close()

		if err := ledger.Credit(ctx, *creditAccountFlag, *creditAmountFlag); err != nil {
			return err
		}
		log.Info("credited account", "account", *creditAccountFlag, "amount", *creditAmountFlag)
		return nil

	default:
		flag.Usage()
		return fmt.Errorf("no command specified")
	}
}

func openLedger(ctx context.Context, log *slog.Logger, databaseURL string) (*pgstore.Ledger, *pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	ledger, err := pgstore.NewLedger(pgstore.LedgerConfig{Logger: log, Pool: pool})
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	return ledger, pool, nil
}

func confirm(prompt string) bool {
	fmt.Printf("%s [y/N]: ", prompt)
	var answer string
	_, _ = fmt.Scanln(&answer)
	return answer == "y" || answer == "Y" || answer == "yes"
}
