package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mohammad-safakhou/studyflow/models"
)

// MemoryStore is an in-process store, used for tests and single-node runs
type MemoryStore struct {
	mu            sync.RWMutex
	sessions      map[string]models.StudySession
	conversations map[string]models.ModuleConversation // sessionID/moduleID
	progress      map[string]map[string]struct{}       // sessionID -> completed module IDs
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions:      make(map[string]models.StudySession),
		conversations: make(map[string]models.ModuleConversation),
		progress:      make(map[string]map[string]struct{}),
	}
}

func conversationKey(sessionID, moduleID string) string {
	return sessionID + "/" + moduleID
}

func (s *MemoryStore) CreateSession(_ context.Context, topic string) (models.StudySession, error) {
	now := time.Now().UnixMilli()
	session := models.StudySession{
		ID:           uuid.NewString(),
		Topic:        topic,
		Responses:    []models.AgentResponse{},
		CreatedAt:    now,
		LastAccessed: now,
	}

	s.mu.Lock()
	s.sessions[session.ID] = session
	s.mu.Unlock()
	return session, nil
}

func (s *MemoryStore) GetSession(_ context.Context, id string) (models.StudySession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	if !ok {
		return models.StudySession{}, models.ErrSessionNotFound
	}
	return session, nil
}

func (s *MemoryStore) ListSessions(_ context.Context) ([]models.StudySession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.StudySession, 0, len(s.sessions))
	for _, session := range s.sessions {
		out = append(out, session)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastAccessed > out[j].LastAccessed })
	return out, nil
}

func (s *MemoryStore) update(id string, mutate func(*models.StudySession)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return models.ErrSessionNotFound
	}
	mutate(&session)
	session.LastAccessed = time.Now().UnixMilli()
	s.sessions[id] = session
	return nil
}

func (s *MemoryStore) TouchSession(_ context.Context, id string) error {
	return s.update(id, func(*models.StudySession) {})
}

func (s *MemoryStore) SaveLearningPath(_ context.Context, sessionID string, path models.LearningPath) error {
	return s.update(sessionID, func(session *models.StudySession) {
		session.LearningPath = &path
	})
}

func (s *MemoryStore) SetActiveModule(_ context.Context, sessionID, moduleID string) error {
	return s.update(sessionID, func(session *models.StudySession) {
		session.ActiveModuleID = moduleID
	})
}

func (s *MemoryStore) AppendResponse(_ context.Context, sessionID string, resp models.AgentResponse) error {
	return s.update(sessionID, func(session *models.StudySession) {
		session.Responses = append(session.Responses, resp)
	})
}

func (s *MemoryStore) DeleteSession(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return models.ErrSessionNotFound
	}
	delete(s.sessions, id)
	delete(s.progress, id)
	for key := range s.conversations {
		if len(key) > len(id) && key[:len(id)] == id && key[len(id)] == '/' {
			delete(s.conversations, key)
		}
	}
	return nil
}

func (s *MemoryStore) GetConversation(_ context.Context, sessionID, moduleID string) (models.ModuleConversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.conversations[conversationKey(sessionID, moduleID)]
	if !ok {
		return models.ModuleConversation{}, models.ErrConversationNotFound
	}
	return conv, nil
}

func (s *MemoryStore) AppendMessage(_ context.Context, sessionID, moduleID, moduleName string, msg models.QAMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := conversationKey(sessionID, moduleID)
	conv, ok := s.conversations[key]
	if !ok {
		// conversations are created lazily on the first question
		conv = models.ModuleConversation{ModuleID: moduleID, ModuleName: moduleName, Messages: []models.QAMessage{}}
	}
	conv.Messages = append(conv.Messages, msg)
	conv.LastUpdated = time.Now().UnixMilli()
	s.conversations[key] = conv
	return nil
}

func (s *MemoryStore) ClearConversation(_ context.Context, sessionID, moduleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conversations, conversationKey(sessionID, moduleID))
	return nil
}

func (s *MemoryStore) ToggleModuleComplete(_ context.Context, sessionID, moduleID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.progress[sessionID]
	if !ok {
		set = make(map[string]struct{})
		s.progress[sessionID] = set
	}
	if _, done := set[moduleID]; done {
		delete(set, moduleID)
		return false, nil
	}
	set[moduleID] = struct{}{}
	return true, nil
}

func (s *MemoryStore) CompletedModules(_ context.Context, sessionID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set := s.progress[sessionID]
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}
