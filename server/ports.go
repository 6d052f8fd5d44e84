package server

import (
	"context"

	"github.com/bharti-cmyk/instagram/models"
)

// FeedService serves paginated feed pages. Implemented by feed.Service.
type FeedService interface {
	GetUserFeed(ctx context.Context, userID int64, cursor string, limit int, after string) (*models.FeedResponse, error)
}

// PostStore is the write side of the post store used by the API.
// Implemented by db.DB.
type PostStore interface {
	CreatePost(ctx context.Context, post models.Post) error
	ToggleLike(ctx context.Context, userID int64, postID int64) (bool, int64, error)
}

// JobEnqueuer publishes fanout jobs. Implemented by queue.Queue.
type JobEnqueuer interface {
	Enqueue(ctx context.Context, job models.FanoutJob) error
}

// Notifier emits best-effort notification events. Implemented by
// notify.Publisher.
type Notifier interface {
	PostLiked(userID int64, postID int64)
}
