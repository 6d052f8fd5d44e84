// Package notify publishes notification events for the out of process
// notification subsystem. Publishing is fire and forget on core NATS: the
// feed pipeline never depends on a notification being delivered.
package notify

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"
)

const (
	subjectPostCreated = "notification.post"
	subjectPostLiked   = "notification.like"
)

type event struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	ActorID   int64     `json:"actorId"`
	PostID    int64     `json:"postId"`
	CreatedAt time.Time `json:"createdAt"`
}

type Publisher struct {
	nc *nats.Conn
}

func NewPublisher(nc *nats.Conn) *Publisher {
	return &Publisher{nc: nc}
}

// PostCreated announces a new post. Errors are logged and swallowed.
func (p *Publisher) PostCreated(authorID int64, postID int64) {
	p.publish(subjectPostCreated, event{
		ID:        uuid.New().String(),
		Type:      "post.created",
		ActorID:   authorID,
		PostID:    postID,
		CreatedAt: time.Now(),
	})
}

// PostLiked announces a like. Errors are logged and swallowed.
func (p *Publisher) PostLiked(userID int64, postID int64) {
	p.publish(subjectPostLiked, event{
		ID:        uuid.New().String(),
		Type:      "post.liked",
		ActorID:   userID,
		PostID:    postID,
		CreatedAt: time.Now(),
	})
}

func (p *Publisher) publish(subject string, evt event) {
	data, err := json.Marshal(evt)
	if err != nil {
		log.WithField("error", err).Error("Error marshalling notification")
		return
	}

	if err := p.nc.Publish(subject, data); err != nil {
		log.WithFields(log.Fields{
			"subject": subject,
			"type":    evt.Type,
			"error":   err,
		}).Warn("Error publishing notification")
	}
}
