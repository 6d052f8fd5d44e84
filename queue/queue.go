// Package queue carries fanout jobs from post creation to the fanout
// workers over a NATS JetStream work queue. Delivery is at least once;
// consumers must be idempotent.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bharti-cmyk/instagram/models"
	"github.com/cenkalti/backoff/v4"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"
)

const (
	// StreamName is the JetStream stream backing the fanout queue
	StreamName = "FEED_FANOUT"
	// Subject carries one message per created post
	Subject = "feed.fanout"
	// Durable consumer shared by all worker instances
	durableName = "fanout-workers"

	ackWait = 30 * time.Second
)

var (
	jobsPublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "instagram_fanout_jobs_published_total",
		Help: "The total number of fanout jobs published to the queue",
	})

	jobsDelivered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "instagram_fanout_jobs_delivered_total",
		Help: "The total number of fanout job deliveries received",
	})

	jobsRetried = promauto.NewCounter(prometheus.CounterOpts{
		Name: "instagram_fanout_jobs_retried_total",
		Help: "The total number of fanout jobs returned to the queue for redelivery",
	})

	jobsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "instagram_fanout_jobs_dropped_total",
		Help: "The total number of fanout jobs terminated without retry",
	})

	jobDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "instagram_fanout_job_duration_seconds",
		Help:    "Duration of fanout job handling",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	})
)

// Handler processes one fanout job. Returning a *backoff.PermanentError
// terminates the job without retry; any other error puts the job back on
// the queue for redelivery.
type Handler func(ctx context.Context, job models.FanoutJob) error

// Connect establishes the NATS connection, retrying with exponential
// backoff so workers survive a broker that comes up after them.
func Connect(url string, name string) (*nats.Conn, error) {
	var nc *nats.Conn

	operation := func() error {
		var err error
		nc, err = nats.Connect(url,
			nats.Name(name),
			nats.MaxReconnects(-1),
			nats.ReconnectWait(2*time.Second),
			nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
				log.WithField("error", err).Warn("NATS disconnected")
			}),
			nats.ReconnectHandler(func(nc *nats.Conn) {
				log.WithField("url", nc.ConnectedUrl()).Info("NATS reconnected")
			}),
		)
		return err
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 2 * time.Minute
	if err := backoff.Retry(operation, bo); err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	return nc, nil
}

// Queue wraps the JetStream stream used for fanout jobs.
type Queue struct {
	js nats.JetStreamContext
}

func New(nc *nats.Conn) (*Queue, error) {
	js, err := nc.JetStream()
	if err != nil {
		return nil, fmt.Errorf("jetstream context: %w", err)
	}

	// Create the stream if it does not exist yet
	if _, err := js.StreamInfo(StreamName); errors.Is(err, nats.ErrStreamNotFound) {
		_, err = js.AddStream(&nats.StreamConfig{
			Name:      StreamName,
			Subjects:  []string{Subject},
			Retention: nats.WorkQueuePolicy,
		})
		if err != nil {
			return nil, fmt.Errorf("create stream: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("stream info: %w", err)
	}

	return &Queue{js: js}, nil
}

// Enqueue publishes exactly one fanout job for a created post. The message
// id deduplicates re-publishes of the same post within the server's
// duplicate window.
func (q *Queue) Enqueue(ctx context.Context, job models.FanoutJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}

	_, err = q.js.Publish(Subject, data,
		nats.Context(ctx),
		nats.MsgId(fmt.Sprintf("fanout-%d", job.PostID)),
	)
	if err != nil {
		return fmt.Errorf("publish job: %w", err)
	}

	jobsPublished.Inc()
	return nil
}

// Consume subscribes the durable worker consumer and feeds jobs to the
// handler until the context is cancelled.
func (q *Queue) Consume(ctx context.Context, handler Handler) error {
	sub, err := q.js.QueueSubscribe(Subject, durableName, func(msg *nats.Msg) {
		jobsDelivered.Inc()
		start := time.Now()

		var job models.FanoutJob
		if err := json.Unmarshal(msg.Data, &job); err != nil {
			log.WithField("error", err).Error("Malformed fanout job, terminating")
			jobsDropped.Inc()
			if err := msg.Term(); err != nil {
				log.WithField("error", err).Error("Error terminating message")
			}
			return
		}

		err := handler(ctx, job)
		jobDuration.Observe(time.Since(start).Seconds())

		var permanent *backoff.PermanentError
		switch {
		case err == nil:
			if err := msg.Ack(); err != nil {
				log.WithField("error", err).Error("Error acking message")
			}
		case errors.As(err, &permanent):
			log.WithFields(log.Fields{
				"authorId": job.AuthorID,
				"postId":   job.PostID,
				"error":    err,
			}).Warn("Dropping fanout job")
			jobsDropped.Inc()
			if err := msg.Term(); err != nil {
				log.WithField("error", err).Error("Error terminating message")
			}
		default:
			log.WithFields(log.Fields{
				"authorId": job.AuthorID,
				"postId":   job.PostID,
				"error":    err,
			}).Error("Fanout job failed, requeueing")
			jobsRetried.Inc()
			if err := msg.Nak(); err != nil {
				log.WithField("error", err).Error("Error nacking message")
			}
		}
	},
		nats.Durable(durableName),
		nats.ManualAck(),
		nats.AckExplicit(),
		nats.AckWait(ackWait),
	)
	if err != nil {
		return fmt.Errorf("queue subscribe: %w", err)
	}

	<-ctx.Done()

	if err := sub.Drain(); err != nil {
		log.WithField("error", err).Warn("Error draining subscription")
	}

	return nil
}
