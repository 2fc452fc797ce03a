package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/schoolhouse/pkg/auth"
	"github.com/platinummonkey/schoolhouse/pkg/observability"
	"github.com/platinummonkey/schoolhouse/pkg/storage/postgres"
	"github.com/platinummonkey/schoolhouse/pkg/users"
)

// connect opens the primary database; library logs go to stderr at warn
func connect(ctx context.Context, url string) (*postgres.ConnectionManager, *observability.Logger, error) {
	if url == "" {
		return nil, nil, errors.New("database URL is required (-db or SCHOOLHOUSE_POSTGRES_URL)")
	}
	libLogger := observability.NewLogger(observability.WarnLevel, os.Stderr)
	conns, err := postgres.NewConnectionManager(ctx, postgres.ConnectionConfig{PrimaryURL: url, MaxConns: 2}, libLogger)
	if err != nil {
		return nil, nil, err
	}
	return conns, libLogger, nil
}

func runMigrate(ctx context.Context, args []string, out io.Writer, logger *logrus.Logger) error {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(out)
	dbURL := fs.String("db", os.Getenv("SCHOOLHOUSE_POSTGRES_URL"), "Postgres connection string")
	if err := fs.Parse(args); err != nil {
		return err
	}

	conns, libLogger, err := connect(ctx, *dbURL)
	if err != nil {
		return err
	}
	defer conns.Close()

	applied, err := postgres.RunMigrations(ctx, conns.Primary(), libLogger)
	if err != nil {
		return err
	}
	logger.WithField("applied", applied).Info("migrations complete")
	return nil
}

func runSeed(ctx context.Context, args []string, out io.Writer, logger *logrus.Logger) error {
	fs := flag.NewFlagSet("seed", flag.ContinueOnError)
	fs.SetOutput(out)
	dbURL := fs.String("db", os.Getenv("SCHOOLHOUSE_POSTGRES_URL"), "Postgres connection string")
	file := fs.String("file", os.Getenv("SCHOOLHOUSE_SEED_FILE"), "YAML seed file (default: built-in seed)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	seed := users.DefaultSeed()
	if *file != "" {
		loaded, err := users.LoadSeed(*file)
		if err != nil {
			return err
		}
		seed = loaded
	}

	conns, _, err := connect(ctx, *dbURL)
	if err != nil {
		return err
	}
	defer conns.Close()

	store := postgres.NewUserStore(conns)
	if err := users.ApplySeed(ctx, postgres.NewTxManager(conns.Primary()), store, seed); err != nil {
		return err
	}
	logger.WithFields(logrus.Fields{
		"districts": len(seed.Districts),
		"users":     len(seed.Users),
	}).Info("seed applied")
	return nil
}

func runToken(_ context.Context, args []string, out io.Writer, logger *logrus.Logger) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	fs.SetOutput(out)
	secret := fs.String("secret", os.Getenv("SCHOOLHOUSE_AUTH_HMAC_SECRET"), "HS256 signing secret")
	issuer := fs.String("issuer", "schoolhouse", "Token issuer")
	userID := fs.String("user", users.DefaultSAID, "User id to put in the token")
	ttl := fs.Duration("ttl", 24*time.Hour, "Token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *secret == "" {
		return errors.New("signing secret is required (-secret or SCHOOLHOUSE_AUTH_HMAC_SECRET)")
	}

	token, err := auth.NewHMACVerifier([]byte(*secret), *issuer).Issue(*userID, *ttl)
	if err != nil {
		return err
	}
	logger.WithFields(logrus.Fields{"user": *userID, "ttl": ttl.String()}).Debug("token issued")
	_, err = fmt.Fprintln(out, token)
	return err
}
