package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/padmasuda/expensetracker/internal/auth"
	"github.com/padmasuda/expensetracker/internal/backend"
	"github.com/padmasuda/expensetracker/internal/config"
	"github.com/padmasuda/expensetracker/internal/storage"
)

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("adduser", flag.ContinueOnError)
	fs.SetOutput(stderr)

	username := fs.String("user", "", "Username")
	passwordFlag := fs.String("password", "", "Password (optional, will prompt if omitted)")
	backendName := fs.String("backend", envOr("BACKEND", string(config.SQLite)), "Store backend: sqlite or mongo")
	dbPath := fs.String("db", envOr("DB_PATH", "expenses.db"), "Path to SQLite database file")
	mongoURI := fs.String("mongo-uri", envOr("MONGO_URI", "mongodb://localhost:27017"), "MongoDB connection URI")
	mongoDB := fs.String("mongo-db", envOr("MONGO_DATABASE", "expensetracker"), "MongoDB database name")

	if err := fs.Parse(args); err != nil {
		return err
	}

	if *username == "" {
		fmt.Fprintln(stdout, "Usage: adduser -user <username> [-password <password>] [-backend sqlite|mongo] [-db <db_path>] [-mongo-uri <uri>] [-mongo-db <name>]")
		fs.PrintDefaults()
		return fmt.Errorf("missing required flags: user")
	}

	cfg := &config.Config{
		Profile:       config.Persistent,
		Backend:       config.Backend(*backendName),
		DBPath:        *dbPath,
		MongoURI:      *mongoURI,
		MongoDatabase: *mongoDB,
	}
	if cfg.Backend != config.SQLite && cfg.Backend != config.Mongo {
		return fmt.Errorf("invalid backend '%s': must be sqlite or mongo", cfg.Backend)
	}

	password := *passwordFlag
	if password == "" {
		fmt.Fprint(stdout, "Password: ")
		var err error
		password, err = readPassword(stdin)
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Fprintln(stdout)
	}

	if strings.TrimSpace(password) == "" {
		return fmt.Errorf("password cannot be empty")
	}

	ctx := context.Background()
	b, err := backend.Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer b.Close(ctx)

	hash, err := auth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	user, err := b.Users.CreateUser(ctx, *username, hash)
	if errors.Is(err, storage.ErrDuplicate) {
		return fmt.Errorf("user %s already exists", *username)
	}
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	fmt.Fprintf(stdout, "User %s created successfully with ID %s\n", user.Username, user.ID)
	return nil
}

func readPassword(stdin io.Reader) (string, error) {
	if f, ok := stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		bytePassword, err := term.ReadPassword(int(f.Fd()))
		if err != nil {
			return "", err
		}
		return string(bytePassword), nil
	}

	// Pipes and tests.
	scanner := bufio.NewScanner(stdin)
	if scanner.Scan() {
		return scanner.Text(), nil
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}
