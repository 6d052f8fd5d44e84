package db

import (
	"context"
	"time"

	sqlbuilder "github.com/huandu/go-sqlbuilder"
)

// Fixture helpers used by the seed command.

func (db *DB) CreateUser(ctx context.Context, id int64, username string, avatarURL string, isCelebrity bool) error {
	celebrity := 0
	if isCelebrity {
		celebrity = 1
	}

	ib := sqlbuilder.SQLite.NewInsertBuilder()
	query, args := ib.InsertIgnoreInto("users").
		Cols("id", "username", "avatar_url", "is_celebrity", "created_at").
		Values(id, username, avatarURL, celebrity, time.Now().Unix()).
		Build()

	_, err := db.db.ExecContext(ctx, query, args...)
	return err
}

func (db *DB) CreateFollow(ctx context.Context, followerID int64, followedID int64) error {
	ib := sqlbuilder.SQLite.NewInsertBuilder()
	query, args := ib.InsertIgnoreInto("follows").
		Cols("follower_id", "followed_id", "created_at").
		Values(followerID, followedID, time.Now().Unix()).
		Build()

	_, err := db.db.ExecContext(ctx, query, args...)
	return err
}

func (db *DB) CreateComment(ctx context.Context, postID int64, userID int64, body string) error {
	ib := sqlbuilder.SQLite.NewInsertBuilder()
	query, args := ib.InsertInto("comments").
		Cols("post_id", "user_id", "body", "created_at").
		Values(postID, userID, body, time.Now().Unix()).
		Build()

	_, err := db.db.ExecContext(ctx, query, args...)
	return err
}
