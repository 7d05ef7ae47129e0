package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/report-export/internal/domain"
	goredis "github.com/redis/go-redis/v9"
)

// KeyPrefix prefixes every job status key
const KeyPrefix = "export:job:"

// Config holds Redis connection and status store configuration
type Config struct {
	Addr          string
	Password      string
	DB            int
	StatusTTL     time.Duration
	NotifyChannel string
}

// Client stores export job status and announces terminal transitions
type Client struct {
	client *goredis.Client
	config *Config
	logger *slog.Logger
}

// NewClient creates a new Redis client and verifies the connection
func NewClient(ctx context.Context, config *Config, logger *slog.Logger) (*Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Successfully connected to Redis",
		slog.String("addr", config.Addr),
		slog.Int("db", config.DB),
	)

	return &Client{client: client, config: config, logger: logger}, nil
}

// StatusKey returns the key holding a job's status
func StatusKey(jobID string) string {
	return KeyPrefix + jobID
}

// SetJobStatus stores the status with the configured TTL. Terminal statuses
// are also published on the notify channel.
func (c *Client) SetJobStatus(ctx context.Context, status *domain.JobStatus) error {
	if status.UpdatedAt.IsZero() {
		status.UpdatedAt = time.Now().UTC()
	}

	payload, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to marshal job status: %w", err)
	}

	if err := c.client.Set(ctx, StatusKey(status.JobID), payload, c.config.StatusTTL).Err(); err != nil {
		return fmt.Errorf("failed to store job status: %w", err)
	}

	if status.Terminal() && c.config.NotifyChannel != "" {
		if err := c.client.Publish(ctx, c.config.NotifyChannel, payload).Err(); err != nil {
			return fmt.Errorf("failed to publish job status: %w", err)
		}
	}

	c.logger.Debug("Job status recorded",
		slog.String("job_id", status.JobID),
		slog.String("status", status.Status),
	)

	return nil
}

// GetJobStatus returns domain.ErrJobNotFound for unknown or expired jobs
func (c *Client) GetJobStatus(ctx context.Context, jobID string) (*domain.JobStatus, error) {
	payload, err := c.client.Get(ctx, StatusKey(jobID)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job status: %w", err)
	}

	var status domain.JobStatus
	if err := json.Unmarshal(payload, &status); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job status: %w", err)
	}

	return &status, nil
}

// Subscribe listens for terminal job status notifications
func (c *Client) Subscribe(ctx context.Context) *goredis.PubSub {
	return c.client.Subscribe(ctx, c.config.NotifyChannel)
}

// Ping checks the Redis connection
func (c *Client) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *Client) Close() error {
	c.logger.Info("Closing Redis connection")
	return c.client.Close()
}
