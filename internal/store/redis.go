package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/mohammad-safakhou/studyflow/config"
	"github.com/mohammad-safakhou/studyflow/models"
)

const (
	sessionKeyPrefix      = "session:"
	conversationKeyPrefix = "conversation:"
	progressKeyPrefix     = "progress:"
	sessionIndexKey       = "sessions"
)

// RedisStore persists sessions and conversations as JSON blobs
type RedisStore struct {
	client *redis.Client
	logger *log.Logger
}

// NewRedisStore connects to Redis and verifies the connection
func NewRedisStore(ctx context.Context, cfg config.RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.Timeout,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return &RedisStore{
		client: client,
		logger: log.New(log.Writer(), "[STORE] ", log.LstdFlags),
	}, nil
}

func sessionKey(id string) string {
	return sessionKeyPrefix + id
}

func redisConversationKey(sessionID, moduleID string) string {
	return conversationKeyPrefix + sessionID + ":" + moduleID
}

func progressKey(sessionID string) string {
	return progressKeyPrefix + sessionID
}

func (s *RedisStore) saveSession(ctx context.Context, session models.StudySession) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshalling session: %w", err)
	}
	if err := s.client.Set(ctx, sessionKey(session.ID), data, 0).Err(); err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	if err := s.client.SAdd(ctx, sessionIndexKey, session.ID).Err(); err != nil {
		return fmt.Errorf("indexing session: %w", err)
	}
	return nil
}

func (s *RedisStore) loadSession(ctx context.Context, id string) (models.StudySession, error) {
	data, err := s.client.Get(ctx, sessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.StudySession{}, models.ErrSessionNotFound
	}
	if err != nil {
		return models.StudySession{}, fmt.Errorf("loading session: %w", err)
	}
	var session models.StudySession
	if err := json.Unmarshal(data, &session); err != nil {
		return models.StudySession{}, fmt.Errorf("unmarshalling session: %w", err)
	}
	return session, nil
}

func (s *RedisStore) CreateSession(ctx context.Context, topic string) (models.StudySession, error) {
	now := time.Now().UnixMilli()
	session := models.StudySession{
		ID:           uuid.NewString(),
		Topic:        topic,
		Responses:    []models.AgentResponse{},
		CreatedAt:    now,
		LastAccessed: now,
	}
	if err := s.saveSession(ctx, session); err != nil {
		return models.StudySession{}, err
	}
	return session, nil
}

func (s *RedisStore) GetSession(ctx context.Context, id string) (models.StudySession, error) {
	return s.loadSession(ctx, id)
}

func (s *RedisStore) ListSessions(ctx context.Context) ([]models.StudySession, error) {
	ids, err := s.client.SMembers(ctx, sessionIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	out := make([]models.StudySession, 0, len(ids))
	for _, id := range ids {
		session, err := s.loadSession(ctx, id)
		if errors.Is(err, models.ErrSessionNotFound) {
			// index drifted; heal it
			s.logger.Printf("pruning stale session index entry %s", id)
			_ = s.client.SRem(ctx, sessionIndexKey, id).Err()
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, session)
	}
	return out, nil
}

func (s *RedisStore) mutateSession(ctx context.Context, id string, mutate func(*models.StudySession)) error {
	session, err := s.loadSession(ctx, id)
	if err != nil {
		return err
	}
	mutate(&session)
	session.LastAccessed = time.Now().UnixMilli()
	return s.saveSession(ctx, session)
}

func (s *RedisStore) TouchSession(ctx context.Context, id string) error {
	return s.mutateSession(ctx, id, func(*models.StudySession) {})
}

func (s *RedisStore) SaveLearningPath(ctx context.Context, sessionID string, path models.LearningPath) error {
	return s.mutateSession(ctx, sessionID, func(session *models.StudySession) {
		session.LearningPath = &path
	})
}

func (s *RedisStore) SetActiveModule(ctx context.Context, sessionID, moduleID string) error {
	return s.mutateSession(ctx, sessionID, func(session *models.StudySession) {
		session.ActiveModuleID = moduleID
	})
}

func (s *RedisStore) AppendResponse(ctx context.Context, sessionID string, resp models.AgentResponse) error {
	return s.mutateSession(ctx, sessionID, func(session *models.StudySession) {
		session.Responses = append(session.Responses, resp)
	})
}

func (s *RedisStore) DeleteSession(ctx context.Context, id string) error {
	if _, err := s.loadSession(ctx, id); err != nil {
		return err
	}
	keys := []string{sessionKey(id), progressKey(id)}
	iter := s.client.Scan(ctx, 0, conversationKeyPrefix+id+":*", 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scanning conversations: %w", err)
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return s.client.SRem(ctx, sessionIndexKey, id).Err()
}

func (s *RedisStore) GetConversation(ctx context.Context, sessionID, moduleID string) (models.ModuleConversation, error) {
	data, err := s.client.Get(ctx, redisConversationKey(sessionID, moduleID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.ModuleConversation{}, models.ErrConversationNotFound
	}
	if err != nil {
		return models.ModuleConversation{}, fmt.Errorf("loading conversation: %w", err)
	}
	var conv models.ModuleConversation
	if err := json.Unmarshal(data, &conv); err != nil {
		return models.ModuleConversation{}, fmt.Errorf("unmarshalling conversation: %w", err)
	}
	return conv, nil
}

func (s *RedisStore) AppendMessage(ctx context.Context, sessionID, moduleID, moduleName string, msg models.QAMessage) error {
	conv, err := s.GetConversation(ctx, sessionID, moduleID)
	if errors.Is(err, models.ErrConversationNotFound) {
		conv = models.ModuleConversation{ModuleID: moduleID, ModuleName: moduleName, Messages: []models.QAMessage{}}
	} else if err != nil {
		return err
	}
	conv.Messages = append(conv.Messages, msg)
	conv.LastUpdated = time.Now().UnixMilli()

	data, err := json.Marshal(conv)
	if err != nil {
		return fmt.Errorf("marshalling conversation: %w", err)
	}
	return s.client.Set(ctx, redisConversationKey(sessionID, moduleID), data, 0).Err()
}

func (s *RedisStore) ClearConversation(ctx context.Context, sessionID, moduleID string) error {
	return s.client.Del(ctx, redisConversationKey(sessionID, moduleID)).Err()
}

func (s *RedisStore) ToggleModuleComplete(ctx context.Context, sessionID, moduleID string) (bool, error) {
	key := progressKey(sessionID)
	done, err := s.client.SIsMember(ctx, key, moduleID).Result()
	if err != nil {
		return false, fmt.Errorf("checking module progress: %w", err)
	}
	if done {
		if err := s.client.SRem(ctx, key, moduleID).Err(); err != nil {
			return false, fmt.Errorf("clearing module progress: %w", err)
		}
		return false, nil
	}
	if err := s.client.SAdd(ctx, key, moduleID).Err(); err != nil {
		return false, fmt.Errorf("recording module progress: %w", err)
	}
	return true, nil
}

func (s *RedisStore) CompletedModules(ctx context.Context, sessionID string) ([]string, error) {
	ids, err := s.client.SMembers(ctx, progressKey(sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("listing module progress: %w", err)
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}
