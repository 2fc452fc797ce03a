// Command schoolhouse-admin runs maintenance tasks against a schoolhouse
// installation: schema migrations, seeding and development tokens.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
)

const usage = `usage: schoolhouse-admin <command> [flags]

commands:
  migrate   apply pending schema migrations
  seed      create the default (or a YAML) seed if missing
  token     print an HS256 bearer token for a user id
`

type command func(ctx context.Context, args []string, out io.Writer, logger *logrus.Logger) error

var commands = map[string]command{
	"migrate": runMigrate,
	"seed":    runSeed,
	"token":   runToken,
}

func main() {
	logger := setupLogger(os.Getenv("SCHOOLHOUSE_LOG_LEVEL"))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := dispatch(ctx, os.Args[1:], os.Stdout, logger); err != nil {
		logger.Error(err)
		os.Exit(1)
	}
}

func dispatch(ctx context.Context, args []string, out io.Writer, logger *logrus.Logger) error {
	if len(args) == 0 {
		fmt.Fprint(out, usage)
		return fmt.Errorf("missing command")
	}
	cmd, ok := commands[args[0]]
	if !ok {
		fmt.Fprint(out, usage)
		return fmt.Errorf("unknown command %q", args[0])
	}
	return cmd(ctx, args[1:], out, logger)
}

func setupLogger(logLevel string) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	return logger
}
