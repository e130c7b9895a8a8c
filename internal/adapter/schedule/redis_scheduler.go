package schedule

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/switchguard/switchguard/internal/logger"
	"github.com/switchguard/switchguard/internal/ports"
)

const (
	timersKey   = "switchguard:revert:timers"
	payloadsKey = "switchguard:revert:payloads"
)

// RedisScheduler is a fire-once scheduler backed by a Redis sorted set scored
// by fire time. A poll loop claims due timers with ZREM so that exactly one
// instance fires each timer even with multiple pollers.
type RedisScheduler struct {
	client       *redis.Client
	log          logger.Logger
	pollInterval time.Duration
}

// NewRedisScheduler connects to Redis and verifies the connection
func NewRedisScheduler(redisURL string, pollInterval time.Duration, log logger.Logger) (*RedisScheduler, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisScheduler{
		client:       client,
		log:          log,
		pollInterval: pollInterval,
	}, nil
}

// ScheduleOnce registers a one-shot action and returns its cancellation token
func (s *RedisScheduler) ScheduleOnce(ctx context.Context, at time.Time, payload ports.RevertPayload) (string, error) {
	token := uuid.NewString()
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal revert payload: %w", err)
	}

	if err := s.client.HSet(ctx, payloadsKey, token, data).Err(); err != nil {
		return "", fmt.Errorf("failed to store revert payload: %w", err)
	}
	if err := s.client.ZAdd(ctx, timersKey, &redis.Z{
		Score:  float64(at.Unix()),
		Member: token,
	}).Err(); err != nil {
		return "", fmt.Errorf("failed to schedule timer: %w", err)
	}

	s.log.Debug(ctx, "Scheduled one-shot timer", map[string]interface{}{
		"token":           token,
		"organization_id": payload.OrganizationID,
		"fire_at":         at.Format(time.RFC3339),
	})
	return token, nil
}

// Cancel removes a scheduled action by token
func (s *RedisScheduler) Cancel(ctx context.Context, token string) error {
	if err := s.client.ZRem(ctx, timersKey, token).Err(); err != nil {
		return fmt.Errorf("failed to cancel timer: %w", err)
	}
	if err := s.client.HDel(ctx, payloadsKey, token).Err(); err != nil {
		return fmt.Errorf("failed to remove timer payload: %w", err)
	}
	return nil
}

// Run polls for due timers until the context is cancelled, invoking handler
// for each claimed timer. Intended to run in its own goroutine.
func (s *RedisScheduler) Run(ctx context.Context, handler func(context.Context, ports.RevertPayload) error) {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.fireDue(ctx, handler)
		}
	}
}

func (s *RedisScheduler) fireDue(ctx context.Context, handler func(context.Context, ports.RevertPayload) error) {
	now := strconv.FormatInt(time.Now().Unix(), 10)
	tokens, err := s.client.ZRangeByScore(ctx, timersKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: now,
	}).Result()
	if err != nil {
		s.log.Error(ctx, "Failed to poll due timers", err, nil)
		return
	}

	for _, token := range tokens {
		// ZREM claims the timer; a zero count means another poller won
		removed, err := s.client.ZRem(ctx, timersKey, token).Result()
		if err != nil {
			s.log.Error(ctx, "Failed to claim timer", err, map[string]interface{}{"token": token})
			continue
		}
		if removed == 0 {
			continue
		}

		data, err := s.client.HGet(ctx, payloadsKey, token).Result()
		if err != nil {
			s.log.Error(ctx, "Failed to load timer payload", err, map[string]interface{}{"token": token})
			continue
		}
		_ = s.client.HDel(ctx, payloadsKey, token).Err()

		var payload ports.RevertPayload
		if err := json.Unmarshal([]byte(data), &payload); err != nil {
			s.log.Error(ctx, "Failed to decode timer payload", err, map[string]interface{}{"token": token})
			continue
		}

		if err := handler(ctx, payload); err != nil {
			s.log.Error(ctx, "Timer handler failed", err, map[string]interface{}{
				"token":           token,
				"organization_id": payload.OrganizationID,
			})
		}
	}
}

// Close releases the Redis connection
func (s *RedisScheduler) Close() error {
	return s.client.Close()
}

var _ ports.Scheduler = (*RedisScheduler)(nil)
