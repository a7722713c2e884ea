package narrative

import (
	"context"
	"encoding/json"

	"github.com/KirkDiggler/session-api/internal/errors"
	"github.com/KirkDiggler/session-api/internal/pkg/clock"
	redisclient "github.com/KirkDiggler/session-api/internal/redis"
)

const (
	narrativeKeyPrefix = "narrative:"

	errSessionIDEmpty = "session ID cannot be empty"
	errTextEmpty      = "narrative text cannot be empty"
)

type redisRepository struct {
	client redisclient.Client
	clock  clock.Clock
}

// RedisConfig contains configuration for the Redis narrative repository.
type RedisConfig struct {
	Client redisclient.Client
	Clock  clock.Clock
}

// Validate validates the RedisConfig.
func (cfg *RedisConfig) Validate() error {
	if cfg == nil {
		return errors.InvalidArgument("config cannot be nil")
	}
	if cfg.Client == nil {
		return errors.InvalidArgument("client cannot be nil")
	}
	return nil
}

// NewRedis creates a new Redis-backed narrative repository
func NewRedis(cfg *RedisConfig) (Repository, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := cfg.Clock
	if c == nil {
		c = clock.New()
	}

	return &redisRepository{
		client: cfg.Client,
		clock:  c,
	}, nil
}

func narrativeKey(sessionID string) string {
	return narrativeKeyPrefix + sessionID
}

func (r *redisRepository) Append(ctx context.Context, input AppendInput) (*AppendOutput, error) {
	if input.SessionID == "" {
		return nil, errors.InvalidArgument(errSessionIDEmpty)
	}
	if input.Text == "" {
		return nil, errors.InvalidArgument(errTextEmpty)
	}

	entry := &Entry{
		Text:       input.Text,
		RecordedAt: r.clock.Now().Unix(),
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to marshal narrative entry")
	}

	if err := r.client.RPush(ctx, narrativeKey(input.SessionID), data).Err(); err != nil {
		return nil, errors.Wrapf(err, "failed to append narrative entry")
	}

	return &AppendOutput{Entry: entry}, nil
}

func (r *redisRepository) List(ctx context.Context, input ListInput) (*ListOutput, error) {
	if input.SessionID == "" {
		return nil, errors.InvalidArgument(errSessionIDEmpty)
	}

	start := int64(0)
	if input.Limit > 0 {
		start = int64(-input.Limit)
	}

	raw, err := r.client.LRange(ctx, narrativeKey(input.SessionID), start, -1).Result()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list narrative entries")
	}

	entries := make([]*Entry, 0, len(raw))
	for _, item := range raw {
		var entry Entry
		if err := json.Unmarshal([]byte(item), &entry); err != nil {
			return nil, errors.Wrapf(err, "failed to unmarshal narrative entry")
		}
		entries = append(entries, &entry)
	}

	return &ListOutput{Entries: entries}, nil
}
