package main

import (
	"context"
	"fmt"
	"os"

	"github.com/Rrens/devin-relay/internal/config"
	"github.com/Rrens/devin-relay/internal/repository"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
)

// migrate copies every stored session from one store backend to another,
// e.g. when moving a deployment from Redis to SQLite.
func main() {
	var from, to string
	var dryRun bool

	flagSet := pflag.NewFlagSet("migrate", pflag.ContinueOnError)
	flagSet.StringVar(&from, "from", "redis", "source store driver (redis, sqlite)")
	flagSet.StringVar(&to, "to", "sqlite", "target store driver (redis, sqlite)")
	flagSet.BoolVarP(&dryRun, "dry-run", "n", false, "list the sessions without writing them")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	// Load .env file if it exists
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	if from == to {
		fmt.Fprintln(os.Stderr, "source and target drivers must differ")
		os.Exit(2)
	}

	copied, err := migrate(context.Background(), cfg, from, to, dryRun)
	if err != nil {
		panic(err)
	}

	if dryRun {
		fmt.Printf("Dry run: %d sessions would be copied from %s to %s\n", copied, from, to)
		return
	}
	fmt.Printf("Copied %d sessions from %s to %s\n", copied, from, to)
}

func migrate(ctx context.Context, cfg *config.Config, from, to string, dryRun bool) (int, error) {
	srcCfg := *cfg
	srcCfg.Store.Driver = from
	src, err := repository.OpenSessionStore(&srcCfg)
	if err != nil {
		return 0, fmt.Errorf("failed to open source store: %w", err)
	}
	defer src.Close()

	sessions, err := src.ListAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list sessions: %w", err)
	}

	if dryRun {
		for _, s := range sessions {
			fmt.Printf("%s -> %s (last interaction %s)\n", s.UserID, s.RemoteSessionID, s.LastInteractionTime.Format("2006-01-02 15:04:05"))
		}
		return len(sessions), nil
	}

	dstCfg := *cfg
	dstCfg.Store.Driver = to
	dst, err := repository.OpenSessionStore(&dstCfg)
	if err != nil {
		return 0, fmt.Errorf("failed to open target store: %w", err)
	}
	defer dst.Close()

	for i, s := range sessions {
		if err := dst.Set(ctx, s.UserID, s); err != nil {
			return i, fmt.Errorf("failed to write session for user %s: %w", s.UserID, err)
		}
		fmt.Printf("Copied session: %s\n", s.UserID)
	}
	return len(sessions), nil
}
