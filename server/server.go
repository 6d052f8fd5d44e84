package server

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/bharti-cmyk/instagram/db"
	"github.com/bharti-cmyk/instagram/ids"
	"github.com/bharti-cmyk/instagram/models"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

type ServerConfig struct {

	// The feed query service backing GET /feed
	Feed FeedService

	// The post store for post creation and likes
	Store PostStore

	// The fanout job queue, one job per created post
	Queue JobEnqueuer

	// Best-effort notification events
	Notifier Notifier

	// Post id generator for this server's shard
	IDs *ids.Generator

	// HMAC secret verifying caller identity tokens
	JWTSecret []byte
}

// Returns a fiber.App instance serving the feed API
func Server(config *ServerConfig) *fiber.App {

	app := fiber.New()

	// Middleware to track the latency of each request
	app.Use(func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		log.WithFields(log.Fields{
			"method":  c.Method(),
			"route":   c.Route().Path,
			"latency": time.Since(start),
		}).Info("Request")
		return err
	})

	app.Use(requestid.New(requestid.ConfigDefault))
	app.Use(compress.New())

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	metricsHandler := fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler())
	app.Get("/metrics", func(c *fiber.Ctx) error {
		metricsHandler(c.Context())
		return nil
	})

	api := app.Group("/", authRequired(config.JWTSecret))

	api.Get("/feed", getFeed(config))
	api.Post("/posts", createPost(config))
	api.Post("/posts/:id/like", toggleLike(config))

	return app
}

func getFeed(config *ServerConfig) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := c.Locals("userId").(int64)
		cursor := c.Query("cursor", "")
		after := c.Query("after", "")
		limit, err := strconv.Atoi(c.Query("limit", "10"))
		if err != nil {
			limit = 10
		}

		response, err := config.Feed.GetUserFeed(c.Context(), userID, cursor, limit, after)
		if err != nil {
			log.WithFields(log.Fields{
				"userId": userID,
				"error":  err,
			}).Error("Error getting feed")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Error getting feed",
			})
		}

		return c.JSON(response)
	}
}

type createPostRequest struct {
	Caption string `json:"caption"`
}

func createPost(config *ServerConfig) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := c.Locals("userId").(int64)

		var req createPostRequest
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid request body",
			})
		}

		post := models.Post{
			ID:        config.IDs.Next(),
			AuthorID:  userID,
			Caption:   req.Caption,
			CreatedAt: time.Now(),
		}

		if err := config.Store.CreatePost(c.Context(), post); err != nil {
			log.WithFields(log.Fields{
				"authorId": userID,
				"error":    err,
			}).Error("Error creating post")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Error creating post",
			})
		}

		// Exactly one fanout job per created post
		job := models.FanoutJob{AuthorID: userID, PostID: post.ID}
		if err := config.Queue.Enqueue(c.Context(), job); err != nil {
			log.WithFields(log.Fields{
				"authorId": userID,
				"postId":   post.ID,
				"error":    err,
			}).Error("Error enqueueing fanout job")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Error scheduling fanout",
			})
		}

		return c.Status(fiber.StatusCreated).JSON(post)
	}
}

func toggleLike(config *ServerConfig) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := c.Locals("userId").(int64)

		postID, err := strconv.ParseInt(c.Params("id"), 10, 64)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid post id",
			})
		}

		liked, count, err := config.Store.ToggleLike(c.Context(), userID, postID)
		if errors.Is(err, db.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Post not found",
			})
		}
		if err != nil {
			log.WithFields(log.Fields{
				"userId": userID,
				"postId": postID,
				"error":  err,
			}).Error("Error toggling like")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Error toggling like",
			})
		}

		if liked && config.Notifier != nil {
			config.Notifier.PostLiked(userID, postID)
		}

		return c.JSON(fiber.Map{
			"liked":     liked,
			"likeCount": count,
		})
	}
}

// authRequired verifies the caller's bearer token and stores the caller
// user id in the request locals.
func authRequired(secret []byte) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing bearer token",
			})
		}

		token, err := jwt.Parse(strings.TrimPrefix(header, "Bearer "),
			func(t *jwt.Token) (interface{}, error) {
				return secret, nil
			},
			jwt.WithValidMethods([]string{"HS256"}),
		)
		if err != nil || !token.Valid {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid token",
			})
		}

		subject, err := token.Claims.GetSubject()
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid token subject",
			})
		}

		userID, err := strconv.ParseInt(subject, 10, 64)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid token subject",
			})
		}

		c.Locals("userId", userID)
		return c.Next()
	}
}
