package cmd

import (
	"os"

	"github.com/bharti-cmyk/instagram/config"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func RootApp() *cli.App {
	return &cli.App{
		Name:  "instagram",
		Usage: "Hybrid fan-out feed engine for the instagram backend",
		Description: `Serves reverse-chronological per-user activity feeds.

		New posts by normal authors are pushed into their followers'
		Redis timeline caches by the fanout worker; posts by celebrity
		authors are pulled from the post store at read time. The feed
		API merges both sources into one cursor-paginated page.

		Flags can generally be set via environment variables, e.g.:

		--database => INSTAGRAM_DATABASE=instagram.db
		--port => INSTAGRAM_PORT=8080
		`,
		Commands: []*cli.Command{
			serveCmd(),
			workerCmd(),
			migrateCmd(),
			rollbackCmd(),
			seedCmd(),
		},
		Action: func(ctx *cli.Context) error {
			// Show help if no command is specified
			return ctx.App.Run([]string{"", "help"})
		},
	}
}

func Execute() {
	if err := RootApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// Flags shared by the commands that touch the engine's backing services.
func commonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Usage:   "Path to TOML config file",
			EnvVars: []string{"INSTAGRAM_CONFIG"},
		},
		&cli.StringFlag{
			Name:    "database",
			Usage:   "SQLite database file",
			EnvVars: []string{"INSTAGRAM_DATABASE"},
		},
		&cli.StringFlag{
			Name:    "redis-addr",
			Usage:   "Redis address for the timeline cache",
			EnvVars: []string{"INSTAGRAM_REDIS_ADDR"},
		},
		&cli.StringFlag{
			Name:    "nats-url",
			Usage:   "NATS server URL for the fanout queue",
			EnvVars: []string{"INSTAGRAM_NATS_URL"},
		},
	}
}

// loadConfig reads the config file and applies flag overrides.
func loadConfig(ctx *cli.Context) (*config.TomlConfig, error) {
	cfg, err := config.LoadConfig(ctx.String("config"))
	if err != nil {
		return nil, err
	}

	if v := ctx.String("database"); v != "" {
		cfg.Database = v
	}
	if v := ctx.String("redis-addr"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := ctx.String("nats-url"); v != "" {
		cfg.Nats.URL = v
	}

	return cfg, nil
}
