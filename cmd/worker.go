package cmd

import (
	"os/signal"
	"syscall"

	"github.com/bharti-cmyk/instagram/db"
	"github.com/bharti-cmyk/instagram/fanout"
	"github.com/bharti-cmyk/instagram/notify"
	"github.com/bharti-cmyk/instagram/queue"
	"github.com/bharti-cmyk/instagram/timeline"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func workerCmd() *cli.Command {
	return &cli.Command{
		Name:  "worker",
		Usage: "Run the fanout worker",
		Description: `Consumes fanout jobs from the feed-fanout queue and pushes new
post ids into the timeline caches of the author's followers.

Jobs are delivered at least once; every cache write is an idempotent
upsert so redeliveries converge to the same state. Run as many worker
instances as needed, they share one durable queue consumer.`,
		Flags: commonFlags(),
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

			nc, err := queue.Connect(cfg.Nats.URL, "instagram-worker")
			if err != nil {
				return err
			}
			defer nc.Close()

			fanoutQueue, err := queue.New(nc)
			if err != nil {
				return err
			}

			cache := timeline.NewCache(rdb, cfg.Feed.CacheSize, cfg.Retention())
			worker := fanout.NewWorker(store, cache, notify.NewPublisher(nc))

			runCtx, stop := signal.NotifyContext(ctx.Context, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log.Info("Consuming fanout jobs...")
			if err := fanoutQueue.Consume(runCtx, worker.Handle); err != nil {
				return err
			}

			log.Info("Done!")
			return nil
		},
	}
}
