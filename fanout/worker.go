// Package fanout implements the push half of the hybrid feed pipeline:
// it consumes fanout jobs and writes new post ids into the timeline
// caches of the author's followers. Celebrity authors are never pushed;
// their posts are pulled from the store at read time instead, which
// bounds fanout cost to the followers of non-celebrities.
package fanout

import (
	"context"
	"errors"
	"fmt"

	"github.com/bharti-cmyk/instagram/db"
	"github.com/bharti-cmyk/instagram/models"
	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"
)

var (
	timelinePushes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "instagram_fanout_timeline_pushes_total",
		Help: "The total number of per-follower timeline cache writes",
	})

	celebritySkips = promauto.NewCounter(prometheus.CounterOpts{
		Name: "instagram_fanout_celebrity_skips_total",
		Help: "The total number of jobs skipped because the author is a celebrity",
	})
)

// Store is the subset of the post store the worker needs.
type Store interface {
	GetAuthor(ctx context.Context, id int64) (*models.Author, error)
	FollowerIDs(ctx context.Context, userID int64) ([]int64, error)
}

// Cache is the write side of the timeline cache.
type Cache interface {
	Push(ctx context.Context, followerID int64, postID int64) error
}

// Notifier emits best-effort notification events.
type Notifier interface {
	PostCreated(authorID int64, postID int64)
}

type Worker struct {
	store    Store
	cache    Cache
	notifier Notifier
}

func NewWorker(store Store, cache Cache, notifier Notifier) *Worker {
	return &Worker{
		store:    store,
		cache:    cache,
		notifier: notifier,
	}
}

// Handle processes one fanout job. Safe to call again for the same job:
// every per-follower write is an idempotent upsert followed by a
// deterministic trim. A permanent error drops the job; any other error
// lets the queue redeliver it.
func (w *Worker) Handle(ctx context.Context, job models.FanoutJob) error {
	author, err := w.store.GetAuthor(ctx, job.AuthorID)
	if errors.Is(err, db.ErrNotFound) {
		// Stale author reference, retrying will never succeed
		return backoff.Permanent(fmt.Errorf("author %d: %w", job.AuthorID, err))
	}
	if err != nil {
		return fmt.Errorf("resolve author %d: %w", job.AuthorID, err)
	}

	class := models.AuthorClassNormal
	if author.IsCelebrity {
		class = models.AuthorClassCelebrity
	}

	if class == models.AuthorClassCelebrity {
		celebritySkips.Inc()
		log.WithFields(log.Fields{
			"authorId": job.AuthorID,
			"postId":   job.PostID,
		}).Info("Celebrity author, skipping fanout")
		return nil
	}

	followers, err := w.store.FollowerIDs(ctx, job.AuthorID)
	if err != nil {
		return fmt.Errorf("load followers of %d: %w", job.AuthorID, err)
	}

	if len(followers) == 0 {
		log.WithField("authorId", job.AuthorID).Debug("No followers, skipping fanout")
		return nil
	}

	for _, followerID := range followers {
		if err := w.cache.Push(ctx, followerID, job.PostID); err != nil {
			// Partial fanout is fine: redelivery repeats the idempotent writes
			return err
		}
		timelinePushes.Inc()
	}

	log.WithFields(log.Fields{
		"authorId":  job.AuthorID,
		"postId":    job.PostID,
		"followers": len(followers),
	}).Info("Pushed post to follower timelines")

	if w.notifier != nil {
		w.notifier.PostCreated(job.AuthorID, job.PostID)
	}

	return nil
}
