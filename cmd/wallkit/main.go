// Command wallkit serves signed wallpaper download URLs.
//
// Usage:
//
//	wallkit serve --store memory --jwt-secret dev --signing-secret dev
//	wallkit migrate --database-url postgres://localhost/wallkit
//	wallkit version
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/PaulFidika/wallkit/config"
	"github.com/PaulFidika/wallkit/logging"
	migrations "github.com/PaulFidika/wallkit/migrations/postgres"
	"github.com/PaulFidika/wallkit/server"
	"github.com/alecthomas/kong"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
)

type CLI struct {
	Version VersionCmd `cmd:"" help:"Show version information."`
	Serve   ServeCmd   `cmd:"" help:"Start the HTTP server."`
	Migrate MigrateCmd `cmd:"" help:"Apply database migrations."`
}

type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	version := "dev"
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "(devel)" && info.Main.Version != "" {
			version = info.Main.Version
		}
	}
	fmt.Printf("wallkit %s\n", version)
	return nil
}

type ServeCmd struct {
	config.Config `embed:""`
}

func (c *ServeCmd) Run() error {
	log, err := logging.New(c.LogLevel, c.LogFormat, os.Stderr)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv, err := server.New(ctx, c.Config, log)
	if err != nil {
		return err
	}
	return srv.Run(ctx)
}

type MigrateCmd struct {
	DatabaseURL string `name:"database-url" help:"Postgres connection string." required:"" env:"DATABASE_URL"`
	LogLevel    string `name:"log-level" help:"Log level." default:"info" env:"WALLKIT_LOG_LEVEL"`
}

func (c *MigrateCmd) Run() error {
	log, err := logging.New(c.LogLevel, "text", os.Stderr)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, c.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()
	return migrations.Up(ctx, pool, log.WithField("cmd", "migrate"))
}

func main() {
	if err := config.LoadEnvFiles(); err != nil {
		logrus.WithError(err).Warn("env files not loaded")
	}
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("wallkit"),
		kong.Description("Signed, rate-limited wallpaper download URLs."),
		kong.UsageOnError(),
	)
	if err := ctx.Run(); err != nil {
		logrus.WithError(err).Error("wallkit failed")
		os.Exit(1)
	}
}
