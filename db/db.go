package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/bharti-cmyk/instagram/models"
	sqlbuilder "github.com/huandu/go-sqlbuilder"
	log "github.com/sirupsen/logrus"
)

// ErrNotFound is returned when a referenced user or post does not exist.
var ErrNotFound = errors.New("not found")

// How many likers are attached to a feed post for rendering
const topLikerCount = 3

// DB handles all post store operations with a shared connection pool
type DB struct {
	db *sql.DB
}

func NewDB(database string) (*DB, error) {
	db, err := connection(database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}
	return &DB{db: db}, nil
}

func (db *DB) Close() error {
	return db.db.Close()
}

// Write operations

func (db *DB) CreatePost(ctx context.Context, post models.Post) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	log.WithFields(log.Fields{
		"id":       post.ID,
		"authorId": post.AuthorID,
	}).Info("Creating post")

	insertPost := sqlbuilder.SQLite.NewInsertBuilder()
	query, args := insertPost.InsertInto("posts").
		Cols("id", "author_id", "caption", "created_at").
		Values(post.ID, post.AuthorID, post.Caption, post.CreatedAt.Unix()).
		Build()

	if _, err := db.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert error: %w", err)
	}

	return nil
}

// UpdateLastSeen overwrites the user's last seen marker. Last writer wins,
// concurrent feed reads racing here is tolerated.
func (db *DB) UpdateLastSeen(ctx context.Context, userID int64, postID int64) error {
	ub := sqlbuilder.SQLite.NewUpdateBuilder()
	query, args := ub.Update("users").
		Set(ub.Assign("last_seen_post_id", postID)).
		Where(ub.Equal("id", userID)).
		Build()

	if _, err := db.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update error: %w", err)
	}
	return nil
}

// ToggleLike likes the post for the user, or removes the like if it already
// exists. Returns the new liked state and the post's like count.
func (db *DB) ToggleLike(ctx context.Context, userID int64, postID int64) (bool, int64, error) {
	var exists int64
	err := db.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM posts WHERE id = ?", postID).Scan(&exists)
	if err != nil {
		return false, 0, fmt.Errorf("query error: %w", err)
	}
	if exists == 0 {
		return false, 0, ErrNotFound
	}

	res, err := db.db.ExecContext(ctx,
		"DELETE FROM likes WHERE user_id = ? AND post_id = ?", userID, postID)
	if err != nil {
		return false, 0, fmt.Errorf("delete error: %w", err)
	}

	deleted, err := res.RowsAffected()
	if err != nil {
		return false, 0, err
	}

	liked := deleted == 0
	if liked {
		_, err = db.db.ExecContext(ctx,
			"INSERT INTO likes (user_id, post_id, created_at) VALUES (?, ?, ?)",
			userID, postID, time.Now().Unix())
		if err != nil {
			return false, 0, fmt.Errorf("insert error: %w", err)
		}
	}

	var count int64
	err = db.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM likes WHERE post_id = ?", postID).Scan(&count)
	if err != nil {
		return false, 0, fmt.Errorf("query error: %w", err)
	}

	return liked, count, nil
}

// Read operations

func (db *DB) GetAuthor(ctx context.Context, id int64) (*models.Author, error) {
	var author models.Author
	var isCelebrity int64
	err := db.db.QueryRowContext(ctx,
		"SELECT id, username, is_celebrity FROM users WHERE id = ?", id).
		Scan(&author.ID, &author.Username, &isCelebrity)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query error: %w", err)
	}
	author.IsCelebrity = isCelebrity != 0
	return &author, nil
}

// FindByAuthors returns post ids authored by any of the given authors,
// bounded by the cursor or after marker, ordered by id descending.
// A zero bound means unbounded.
func (db *DB) FindByAuthors(ctx context.Context, authorIDs []int64, bound int64, newer bool, limit int) ([]int64, error) {
	if len(authorIDs) == 0 {
		return nil, nil
	}

	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select("id").From("posts")
	sb.Where(sb.In("author_id", sqlbuilder.List(authorIDs)))

	if bound != 0 {
		if newer {
			sb.Where(sb.GreaterThan("id", bound))
		} else {
			sb.Where(sb.LessThan("id", bound))
		}
	}

	sb.OrderBy("id").Desc()
	sb.Limit(limit)

	query, args := sb.Build()
	rows, err := db.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query error: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan error: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

// FindByIDs hydrates posts for feed rendering: author username, like count,
// top likers, whether the viewer liked the post and the comment count.
// Results come back ordered by id descending.
func (db *DB) FindByIDs(ctx context.Context, viewerID int64, ids []int64) ([]models.FeedPost, error) {
	if len(ids) == 0 {
		return []models.FeedPost{}, nil
	}

	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select("posts.id", "posts.author_id", "posts.caption", "posts.created_at", "users.username").
		From("posts").
		Join("users", "users.id = posts.author_id")
	sb.Where(sb.In("posts.id", sqlbuilder.List(ids)))
	sb.OrderBy("posts.id").Desc()

	query, args := sb.Build()
	rows, err := db.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query error: %w", err)
	}
	defer rows.Close()

	var posts []models.FeedPost
	for rows.Next() {
		var post models.FeedPost
		var createdAt int64
		if err := rows.Scan(&post.ID, &post.AuthorID, &post.Caption, &createdAt, &post.AuthorUsername); err != nil {
			return nil, fmt.Errorf("scan error: %w", err)
		}
		post.CreatedAt = time.Unix(createdAt, 0)
		posts = append(posts, post)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := db.attachLikes(ctx, viewerID, ids, posts); err != nil {
		return nil, err
	}
	if err := db.attachCommentCounts(ctx, ids, posts); err != nil {
		return nil, err
	}

	return posts, nil
}

func (db *DB) attachLikes(ctx context.Context, viewerID int64, ids []int64, posts []models.FeedPost) error {
	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select("likes.post_id", "users.id", "users.username", "users.avatar_url").
		From("likes").
		Join("users", "users.id = likes.user_id")
	sb.Where(sb.In("likes.post_id", sqlbuilder.List(ids)))
	sb.OrderBy("likes.created_at").Desc()

	query, args := sb.Build()
	rows, err := db.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("query error: %w", err)
	}
	defer rows.Close()

	counts := make(map[int64]int64)
	likers := make(map[int64][]models.Liker)
	viewerLiked := make(map[int64]bool)

	for rows.Next() {
		var postID int64
		var liker models.Liker
		if err := rows.Scan(&postID, &liker.ID, &liker.Username, &liker.AvatarURL); err != nil {
			return fmt.Errorf("scan error: %w", err)
		}
		counts[postID]++
		if len(likers[postID]) < topLikerCount {
			likers[postID] = append(likers[postID], liker)
		}
		if liker.ID == viewerID {
			viewerLiked[postID] = true
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for i := range posts {
		posts[i].LikeCount = counts[posts[i].ID]
		posts[i].TopLikers = likers[posts[i].ID]
		posts[i].HasLiked = viewerLiked[posts[i].ID]
	}

	return nil
}

func (db *DB) attachCommentCounts(ctx context.Context, ids []int64, posts []models.FeedPost) error {
	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select("post_id", "count(*)").From("comments")
	sb.Where(sb.In("post_id", sqlbuilder.List(ids)))
	sb.GroupBy("post_id")

	query, args := sb.Build()
	rows, err := db.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("query error: %w", err)
	}
	defer rows.Close()

	counts := make(map[int64]int64)
	for rows.Next() {
		var postID, count int64
		if err := rows.Scan(&postID, &count); err != nil {
			return fmt.Errorf("scan error: %w", err)
		}
		counts[postID] = count
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for i := range posts {
		posts[i].CommentCount = counts[posts[i].ID]
	}

	return nil
}

// Social graph reads

// Followees returns the users the given user follows, tagged with their
// celebrity flag.
func (db *DB) Followees(ctx context.Context, userID int64) ([]models.Followee, error) {
	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select("users.id", "users.is_celebrity").
		From("follows").
		Join("users", "users.id = follows.followed_id")
	sb.Where(sb.Equal("follows.follower_id", userID))

	query, args := sb.Build()
	rows, err := db.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query error: %w", err)
	}
	defer rows.Close()

	var followees []models.Followee
	for rows.Next() {
		var followee models.Followee
		var isCelebrity int64
		if err := rows.Scan(&followee.ID, &isCelebrity); err != nil {
			return nil, fmt.Errorf("scan error: %w", err)
		}
		followee.IsCelebrity = isCelebrity != 0
		followees = append(followees, followee)
	}

	return followees, rows.Err()
}

// FollowerIDs returns the ids of the users following the given user.
func (db *DB) FollowerIDs(ctx context.Context, userID int64) ([]int64, error) {
	rows, err := db.db.QueryContext(ctx,
		"SELECT follower_id FROM follows WHERE followed_id = ?", userID)
	if err != nil {
		return nil, fmt.Errorf("query error: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan error: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}
