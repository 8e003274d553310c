package store

import (
	"context"
	"fmt"

	"github.com/mohammad-safakhou/studyflow/config"
	"github.com/mohammad-safakhou/studyflow/models"
)

// Store is the persistence collaborator for study sessions, module
// conversations and module-completion progress. Implementations are
// key-value: sessions and conversations are stored as whole JSON documents.
type Store interface {
	CreateSession(ctx context.Context, topic string) (models.StudySession, error)
	GetSession(ctx context.Context, id string) (models.StudySession, error)
	ListSessions(ctx context.Context) ([]models.StudySession, error)
	TouchSession(ctx context.Context, id string) error
	SaveLearningPath(ctx context.Context, sessionID string, path models.LearningPath) error
	SetActiveModule(ctx context.Context, sessionID, moduleID string) error
	AppendResponse(ctx context.Context, sessionID string, resp models.AgentResponse) error
	DeleteSession(ctx context.Context, id string) error

	GetConversation(ctx context.Context, sessionID, moduleID string) (models.ModuleConversation, error)
	AppendMessage(ctx context.Context, sessionID, moduleID, moduleName string, msg models.QAMessage) error
	ClearConversation(ctx context.Context, sessionID, moduleID string) error

	ToggleModuleComplete(ctx context.Context, sessionID, moduleID string) (bool, error)
	CompletedModules(ctx context.Context, sessionID string) ([]string, error)
}

// New creates a store per configuration
func New(ctx context.Context, cfg config.StorageConfig) (Store, error) {
	switch cfg.Type {
	case "", "memory":
		return NewMemoryStore(), nil
	case "redis":
		return NewRedisStore(ctx, cfg.Redis)
	default:
		return nil, fmt.Errorf("unsupported store type: %s", cfg.Type)
	}
}
