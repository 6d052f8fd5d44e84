package cmd

import (
	"context"
	"time"

	"github.com/bharti-cmyk/instagram/db"
	"github.com/bharti-cmyk/instagram/ids"
	"github.com/bharti-cmyk/instagram/models"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func seedCmd() *cli.Command {
	return &cli.Command{
		Name:  "seed",
		Usage: "Seed the database with development fixtures",
		Description: `Creates a handful of users (one celebrity among them), follow
edges and posts for local development. Posts seeded here are written
straight to the store, so only the pull path sees them; create posts
through the API to exercise the fanout worker.`,
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

			return seed(ctx.Context, store)
		},
	}
}

func seed(ctx context.Context, store *db.DB) error {
	users := []struct {
		id        int64
		username  string
		celebrity bool
	}{
		{1, "alice", false},
		{2, "bob", false},
		{3, "carol", false},
		{4, "megastar", true},
	}

	for _, u := range users {
		if err := store.CreateUser(ctx, u.id, u.username, "", u.celebrity); err != nil {
			return err
		}
	}

	follows := []struct{ follower, followed int64 }{
		{1, 2}, {1, 3}, {1, 4},
		{2, 1}, {2, 4},
		{3, 1}, {3, 2},
	}

	for _, f := range follows {
		if err := store.CreateFollow(ctx, f.follower, f.followed); err != nil {
			return err
		}
	}

	generator, err := ids.NewGenerator(0)
	if err != nil {
		return err
	}

	posts := []struct {
		authorID int64
		caption  string
	}{
		{2, "first post"},
		{3, "hello feed"},
		{4, "on tour again"},
	}

	for _, p := range posts {
		post := models.Post{
			ID:        generator.Next(),
			AuthorID:  p.authorID,
			Caption:   p.caption,
			CreatedAt: time.Now(),
		}
		if err := store.CreatePost(ctx, post); err != nil {
			return err
		}
	}

	log.WithFields(log.Fields{
		"users":   len(users),
		"follows": len(follows),
		"posts":   len(posts),
	}).Info("Seeded database")

	return nil
}
