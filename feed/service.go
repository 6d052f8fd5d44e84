// Package feed assembles per-user feed pages from the two post sources of
// the hybrid pipeline: the caller's timeline cache (posts pushed at write
// time by the fanout worker) and the post store (posts by celebrity
// followees, pulled at read time). Both sources order by post id, so one
// merge key covers the whole page.
package feed

import (
	"context"
	"strconv"
	"time"

	"github.com/bharti-cmyk/instagram/graph"
	"github.com/bharti-cmyk/instagram/models"
	log "github.com/sirupsen/logrus"
)

// Store is the read side of the post store.
type Store interface {
	FindByIDs(ctx context.Context, viewerID int64, ids []int64) ([]models.FeedPost, error)
	FindByAuthors(ctx context.Context, authorIDs []int64, bound int64, newer bool, limit int) ([]int64, error)
	UpdateLastSeen(ctx context.Context, userID int64, postID int64) error
}

// Cache is the read side of the timeline cache.
type Cache interface {
	RangeBefore(ctx context.Context, userID int64, cursor int64, limit int) ([]int64, error)
	RangeAfter(ctx context.Context, userID int64, after int64) ([]int64, error)
}

type Options struct {
	DefaultLimit  int
	MaxLimit      int
	LookupTimeout time.Duration
}

type Service struct {
	store Store
	cache Cache
	graph graph.Reader
	opts  Options
}

func NewService(store Store, cache Cache, reader graph.Reader, opts Options) *Service {
	if opts.DefaultLimit <= 0 {
		opts.DefaultLimit = 10
	}
	if opts.MaxLimit <= 0 {
		opts.MaxLimit = 100
	}
	if opts.LookupTimeout <= 0 {
		opts.LookupTimeout = 2 * time.Second
	}
	return &Service{
		store: store,
		cache: cache,
		graph: reader,
		opts:  opts,
	}
}

type rangeResult struct {
	ids []int64
	err error
}

// GetUserFeed returns one page of the user's feed.
//
// With no after marker it pages backward: posts older than the cursor
// (or the newest posts when the cursor is empty), with a next cursor for
// the following page. With an after marker it catches up forward: posts
// newer than the marker, no cursor in the response.
func (s *Service) GetUserFeed(ctx context.Context, userID int64, cursor string, limit int, after string) (*models.FeedResponse, error) {
	limit = s.clampLimit(limit)
	catchUp := after != ""
	bound := safeParseCursor(cursor)
	if catchUp {
		bound = safeParseCursor(after)
	}

	followees, err := s.followees(ctx, userID)
	if err != nil {
		return nil, err
	}
	celebIDs, _ := graph.Partition(followees)

	// The push and pull fetches have no data dependency, run them
	// concurrently under their own timeouts.
	pushChan := make(chan rangeResult, 1)
	pullChan := make(chan rangeResult, 1)

	go func() {
		fetchCtx, cancel := context.WithTimeout(ctx, s.opts.LookupTimeout)
		defer cancel()
		ids, err := s.fetchPush(fetchCtx, userID, bound, limit, catchUp)
		pushChan <- rangeResult{ids: ids, err: err}
	}()

	go func() {
		fetchCtx, cancel := context.WithTimeout(ctx, s.opts.LookupTimeout)
		defer cancel()
		ids, err := s.store.FindByAuthors(fetchCtx, celebIDs, bound, catchUp, limit)
		pullChan <- rangeResult{ids: ids, err: err}
	}()

	push, pull := <-pushChan, <-pullChan

	// Celebrity content cannot be silently dropped, a failed pull fails
	// the whole request.
	if pull.err != nil {
		return nil, pull.err
	}

	// A slow or unavailable cache degrades the page to pull-only rather
	// than blocking the response.
	if push.err != nil {
		log.WithFields(log.Fields{
			"userId": userID,
			"error":  push.err,
		}).Warn("Timeline cache unavailable, serving pull path only")
		push.ids = nil
	}

	merged := mergeDescending(push.ids, pull.ids, limit)

	posts, err := s.store.FindByIDs(ctx, userID, merged)
	if err != nil {
		return nil, err
	}

	var nextCursor *string
	if !catchUp && len(posts) > 0 {
		formatted := strconv.FormatInt(posts[len(posts)-1].ID, 10)
		nextCursor = &formatted
	}

	if len(posts) > 0 {
		// Last-writer-wins UX hint, a failed update never fails the read
		if err := s.store.UpdateLastSeen(ctx, userID, posts[0].ID); err != nil {
			log.WithFields(log.Fields{
				"userId": userID,
				"error":  err,
			}).Warn("Error updating last seen marker")
		}
	}

	return &models.FeedResponse{
		Posts:      posts,
		NextCursor: nextCursor,
	}, nil
}

func (s *Service) followees(ctx context.Context, userID int64) ([]models.Followee, error) {
	lookupCtx, cancel := context.WithTimeout(ctx, s.opts.LookupTimeout)
	defer cancel()
	return s.graph.Followees(lookupCtx, userID)
}

func (s *Service) fetchPush(ctx context.Context, userID int64, bound int64, limit int, catchUp bool) ([]int64, error) {
	if catchUp {
		ids, err := s.cache.RangeAfter(ctx, userID, bound)
		if err != nil {
			return nil, err
		}
		return reverse(ids), nil
	}
	return s.cache.RangeBefore(ctx, userID, bound, limit)
}

func (s *Service) clampLimit(limit int) int {
	if limit <= 0 {
		return s.opts.DefaultLimit
	}
	if limit > s.opts.MaxLimit {
		return s.opts.MaxLimit
	}
	return limit
}

// safeParseCursor parses the cursor string and returns the post id bound.
// If the cursor is empty or invalid, it returns 0 (unbounded).
func safeParseCursor(cursor string) int64 {
	id, err := strconv.ParseInt(cursor, 10, 64)
	if err != nil {
		return 0
	}
	return id
}
