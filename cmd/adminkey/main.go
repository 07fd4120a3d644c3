package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/songsearch/internal/auth/apikey"
	"github.com/Adithya-Monish-Kumar-K/songsearch/internal/store/pgstore"
	"github.com/Adithya-Monish-Kumar-K/songsearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/songsearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/songsearch/pkg/postgres"
)

// adminkey manages the keys accepted by the rebuild and analytics history
// endpoints.
//
//	adminkey create -name ops [-expires-in 720h]
//	adminkey revoke -id 3
//	adminkey list
func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(2)
	}

	ctx := context.Background()
	db, err := postgres.New(ctx, cfg.Postgres)
	if err != nil {
		slog.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := pgstore.Migrate(ctx, db); err != nil {
		slog.Error("failed to migrate schema", "error", err)
		os.Exit(1)
	}
	keys := apikey.NewStore(db)

	switch args[0] {
	case "create":
		err = cmdCreate(ctx, keys, args[1:])
	case "revoke":
		err = cmdRevoke(ctx, keys, args[1:])
	case "list":
		err = cmdList(ctx, keys)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s failed: %v\n", args[0], err)
		os.Exit(1)
	}
}

func cmdCreate(ctx context.Context, keys *apikey.Store, args []string) error {
	fs := flag.NewFlagSet("create", flag.ExitOnError)
	name := fs.String("name", "", "who the key is for")
	expiresIn := fs.Duration("expires-in", 0, "key lifetime, e.g. 720h; 0 never expires")
	fs.Parse(args)
	if *name == "" {
		return fmt.Errorf("-name is required")
	}

	key, err := keys.Create(ctx, *name, *expiresIn)
	if err != nil {
		return err
	}
	fmt.Println("Key created. It is shown only once.")
	fmt.Printf("  Key:     %s\n", key)
	fmt.Printf("  Name:    %s\n", *name)
	if *expiresIn > 0 {
		fmt.Printf("  Expires: %s\n", time.Now().Add(*expiresIn).Format(time.RFC3339))
	} else {
		fmt.Println("  Expires: never")
	}
	return nil
}

func cmdRevoke(ctx context.Context, keys *apikey.Store, args []string) error {
	fs := flag.NewFlagSet("revoke", flag.ExitOnError)
	id := fs.String("id", "", "id of the key, as shown by list")
	fs.Parse(args)
	n, err := strconv.ParseInt(*id, 10, 64)
	if err != nil {
		return fmt.Errorf("-id must be a number: %w", err)
	}
	if err := keys.Revoke(ctx, n); err != nil {
		return err
	}
	fmt.Printf("Key %d revoked.\n", n)
	return nil
}

func cmdList(ctx context.Context, keys *apikey.Store) error {
	list, err := keys.List(ctx)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Println("No active keys.")
		return nil
	}
	fmt.Printf("%-6s  %-20s  %-25s  %s\n", "ID", "Name", "Expires", "Last used")
	for _, k := range list {
		fmt.Printf("%-6d  %-20s  %-25s  %s\n", k.ID, k.Name, formatTime(k.ExpiresAt, "never"), formatTime(k.LastUsedAt, "-"))
	}
	fmt.Printf("\nTotal: %d active key(s)\n", len(list))
	return nil
}

func formatTime(t *time.Time, zero string) string {
	if t == nil {
		return zero
	}
	return t.Format(time.RFC3339)
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "Usage: adminkey <command> [flags]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  create   Create a key: -name ops [-expires-in 720h]")
	fmt.Fprintln(os.Stderr, "  revoke   Revoke a key: -id 3")
	fmt.Fprintln(os.Stderr, "  list     List active keys")
}
