package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/lalith-99/hop/internal/db"
	"github.com/lalith-99/hop/internal/observ"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

// migrateConfig is the slice of the server config migrations need. The
// server's LoadConfig also demands secrets this tool never uses.
type migrateConfig struct {
	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`
	Env         string `envconfig:"ENV" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flags := pflag.NewFlagSet("migrate", pflag.ContinueOnError)
	cmd := flags.String("cmd", "up", "migration command: up|down|status|version")
	version := flags.String("version", "", "target version for --cmd=version")
	envFile := flags.String("env-file", ".env", "optional dotenv file")
	if err := flags.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	_ = godotenv.Load(*envFile)

	var cfg migrateConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := observ.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Sync()
	logger = logger.With(zap.String("cmd", *cmd))

	ctx := context.Background()
	database, err := db.New(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer database.Close()

	sqlDB := stdlib.OpenDBFromPool(database.Pool())
	defer sqlDB.Close()

	switch *cmd {
	case "up", "down", "status":
		err = db.Migrate(ctx, sqlDB, *cmd)
	case "version":
		if *version == "" {
			return fmt.Errorf("missing --version for --cmd=version")
		}
		err = db.MigrateToVersion(ctx, sqlDB, *version)
	default:
		return fmt.Errorf("unknown --cmd value %q", *cmd)
	}
	if err != nil {
		return err
	}

	logger.Info("migration command finished")
	return nil
}
