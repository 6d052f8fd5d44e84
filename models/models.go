package models

import "time"

// AuthorClass routes the fanout decision for a post's author.
type AuthorClass int

const (
	AuthorClassNormal AuthorClass = iota
	AuthorClassCelebrity
)

func (c AuthorClass) String() string {
	if c == AuthorClassCelebrity {
		return "celebrity"
	}
	return "normal"
}

// Post is the durable post record owned by the post store.
type Post struct {
	ID        int64     `json:"id"`
	AuthorID  int64     `json:"authorId"`
	Caption   string    `json:"caption"`
	CreatedAt time.Time `json:"createdAt"`
}

// Author is the subset of the user record the fanout worker needs.
type Author struct {
	ID          int64
	Username    string
	IsCelebrity bool
}

// Followee is one edge from the social graph reader, tagged with the
// followed user's class.
type Followee struct {
	ID          int64
	IsCelebrity bool
}

// FanoutJob is the queue payload created once per post.
type FanoutJob struct {
	AuthorID int64 `json:"authorId"`
	PostID   int64 `json:"postId"`
}

// Liker is a compact user reference for engagement rendering.
type Liker struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

// FeedPost is a hydrated post as rendered in a feed page.
type FeedPost struct {
	Post
	AuthorUsername string  `json:"authorUsername"`
	LikeCount      int64   `json:"likeCount"`
	TopLikers      []Liker `json:"topLikers,omitempty"`
	HasLiked       bool    `json:"hasLiked"`
	CommentCount   int64   `json:"commentCount"`
}

// FeedResponse is one paginated feed page. NextCursor is nil when the
// page is empty or the request was a catch-up query.
type FeedResponse struct {
	Posts      []FeedPost `json:"data"`
	NextCursor *string    `json:"nextCursor"`
}
