package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bharti-cmyk/instagram/db"
	"github.com/bharti-cmyk/instagram/feed"
	"github.com/bharti-cmyk/instagram/ids"
	"github.com/bharti-cmyk/instagram/notify"
	"github.com/bharti-cmyk/instagram/queue"
	"github.com/bharti-cmyk/instagram/server"
	"github.com/bharti-cmyk/instagram/timeline"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func serveCmd() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the feed API",
		Description: `Starts the feed HTTP server.

Serves GET /feed (cursor-paginated, merged push and pull sources),
POST /posts (creates a post and enqueues its fanout job) and
POST /posts/:id/like. Requires the post store, Redis and NATS to be
reachable.`,
		Flags: append(commonFlags(),
			&cli.IntFlag{
				Name:    "port",
				Usage:   "Port to listen on",
				EnvVars: []string{"INSTAGRAM_PORT"},
				Value:   8080,
			},
			&cli.StringFlag{
				Name:     "jwt-secret",
				Usage:    "HMAC secret for caller identity tokens",
				EnvVars:  []string{"INSTAGRAM_JWT_SECRET"},
				Required: true,
			},
			&cli.Int64Flag{
				Name:    "shard-id",
				Usage:   "Shard id for the post id generator, unique per server instance",
				EnvVars: []string{"INSTAGRAM_SHARD_ID"},
				Value:   0,
			},
		),
		Action: func(ctx *cli.Context) error {
			cfg, err := loadConfig(ctx)
			if err != nil {
				return err
			}

			store, err := db.NewDB(cfg.Database)
			if err != nil {
				return err
			}
			defer store.Close()

			rdb, err := timeline.Connect(cfg.Redis)
			if err != nil {
				return err
			}
			defer rdb.Close()

			nc, err := queue.Connect(cfg.Nats.URL, "instagram-serve")
			if err != nil {
				return err
			}
			defer nc.Close()

			fanoutQueue, err := queue.New(nc)
			if err != nil {
				return err
			}

			generator, err := ids.NewGenerator(ctx.Int64("shard-id"))
			if err != nil {
				return err
			}

			cache := timeline.NewCache(rdb, cfg.Feed.CacheSize, cfg.Retention())
			feedService := feed.NewService(store, cache, store, feed.Options{
				DefaultLimit:  cfg.Feed.DefaultLimit,
				MaxLimit:      cfg.Feed.MaxLimit,
				LookupTimeout: cfg.LookupTimeout(),
			})

			app := server.Server(&server.ServerConfig{
				Feed:      feedService,
				Store:     store,
				Queue:     fanoutQueue,
				Notifier:  notify.NewPublisher(nc),
				IDs:       generator,
				JWTSecret: []byte(ctx.String("jwt-secret")),
			})

			// Graceful shutdown
			c := make(chan os.Signal, 1)
			signal.Notify(c, os.Interrupt, syscall.SIGTERM)

			go func() {
				<-c
				log.Info("Gracefully shutting down...")
				if err := app.ShutdownWithTimeout(30 * time.Second); err != nil {
					log.WithField("error", err).Error("Error shutting down server")
				}
			}()

			log.WithField("port", ctx.Int("port")).Info("Starting feed API")
			if err := app.Listen(fmt.Sprintf(":%d", ctx.Int("port"))); err != nil {
				return err
			}

			log.Info("Done!")
			return nil
		},
	}
}
