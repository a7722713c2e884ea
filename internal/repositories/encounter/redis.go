package encounter

import (
	"context"
	"encoding/json"
	"log/slog"

	redis "github.com/redis/go-redis/v9"

	"github.com/KirkDiggler/session-api/internal/entities"
	"github.com/KirkDiggler/session-api/internal/errors"
	redisclient "github.com/KirkDiggler/session-api/internal/redis"
)

const (
	encounterKeyPrefix = "encounter:"
	activeIndexPrefix  = "encounter:session:"
	activeIndexSuffix  = ":active"

	// Error messages
	errEncounterNil     = "encounter cannot be nil"
	errEncounterIDEmpty = "encounter ID cannot be empty"
	errSessionIDEmpty   = "session ID cannot be empty"
)

type redisRepository struct {
	client redisclient.Client
}

// RedisConfig contains configuration for the Redis encounter repository.
type RedisConfig struct {
	Client redisclient.Client
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

// NewRedis creates a new Redis-backed encounter repository
func NewRedis(cfg *RedisConfig) (Repository, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &redisRepository{
		client: cfg.Client,
	}, nil
}

func encounterKey(encounterID string) string {
	return encounterKeyPrefix + encounterID
}

func activeIndexKey(sessionID string) string {
	return activeIndexPrefix + sessionID + activeIndexSuffix
}

func (r *redisRepository) Get(ctx context.Context, input GetInput) (*GetOutput, error) {
	if input.EncounterID == "" {
		return nil, errors.InvalidArgument(errEncounterIDEmpty)
	}

	result, err := r.client.Get(ctx, encounterKey(input.EncounterID)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, errors.NotFoundf("encounter with ID %s not found", input.EncounterID)
		}
		return nil, errors.Wrapf(err, "failed to get encounter")
	}

	var enc entities.Encounter
	if err := json.Unmarshal([]byte(result), &enc); err != nil {
		return nil, errors.Wrapf(err, "failed to unmarshal encounter data")
	}

	return &GetOutput{Encounter: &enc}, nil
}

func (r *redisRepository) GetActive(ctx context.Context, input GetActiveInput) (*GetActiveOutput, error) {
	if input.SessionID == "" {
		return nil, errors.InvalidArgument(errSessionIDEmpty)
	}

	indexKey := activeIndexKey(input.SessionID)
	encounterID, err := r.client.Get(ctx, indexKey).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, errors.NotFoundf("no active encounter for session %s", input.SessionID)
		}
		return nil, errors.Wrapf(err, "failed to get active encounter index")
	}

	getOutput, err := r.Get(ctx, GetInput{EncounterID: encounterID})
	if err != nil {
		// A dangling index entry means the encounter record was lost;
		// clean it up so the session can start fresh.
		if errors.IsNotFound(err) {
			slog.WarnContext(ctx, "active encounter index is stale, cleaning up",
				"session_id", input.SessionID,
				"encounter_id", encounterID)
			r.client.Del(ctx, indexKey)
			return nil, errors.NotFoundf("no active encounter for session %s", input.SessionID)
		}
		return nil, err
	}

	return &GetActiveOutput{Encounter: getOutput.Encounter}, nil
}

func (r *redisRepository) Save(ctx context.Context, input SaveInput) (*SaveOutput, error) {
	if input.Encounter == nil {
		return nil, errors.InvalidArgument(errEncounterNil)
	}
	if input.Encounter.ID == "" {
		return nil, errors.InvalidArgument(errEncounterIDEmpty)
	}
	if input.Encounter.SessionID == "" {
		return nil, errors.InvalidArgument(errSessionIDEmpty)
	}

	data, err := json.Marshal(input.Encounter)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to marshal encounter data")
	}

	indexKey := activeIndexKey(input.Encounter.SessionID)

	// Encounter record and active index must move together, otherwise a
	// crash between the two writes could leave a session that can never
	// start combat again.
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, encounterKey(input.Encounter.ID), data, 0)
	if input.Encounter.IsActive {
		pipe.Set(ctx, indexKey, input.Encounter.ID, 0)
	} else {
		pipe.Del(ctx, indexKey)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return nil, errors.Wrapf(err, "failed to save encounter")
	}

	return &SaveOutput{Encounter: input.Encounter}, nil
}

func (r *redisRepository) Delete(ctx context.Context, input DeleteInput) (*DeleteOutput, error) {
	if input.EncounterID == "" {
		return nil, errors.InvalidArgument(errEncounterIDEmpty)
	}

	getOutput, err := r.Get(ctx, GetInput(input))
	if err != nil {
		return nil, err
	}
	enc := getOutput.Encounter

	pipe := r.client.TxPipeline()
	pipe.Del(ctx, encounterKey(input.EncounterID))
	if enc.IsActive {
		pipe.Del(ctx, activeIndexKey(enc.SessionID))
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return nil, errors.Wrapf(err, "failed to delete encounter")
	}

	return &DeleteOutput{}, nil
}
