package server

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/mohammad-safakhou/studyflow/internal/store"
	"github.com/mohammad-safakhou/studyflow/internal/study"
	"github.com/mohammad-safakhou/studyflow/internal/telemetry"
	"github.com/mohammad-safakhou/studyflow/models"
)

// SessionsHandler exposes study sessions, learning-path builds and module Q&A
type SessionsHandler struct {
	store     store.Store
	orch      *study.Orchestrator
	tutor     *study.Tutor
	gw        study.Gateway
	agent     string
	telemetry *telemetry.Telemetry
	logger    *log.Logger

	mu      sync.Mutex
	streams map[string]*study.StreamSession // sessionID:moduleID
}

// NewSessionsHandler creates the sessions handler
func NewSessionsHandler(st store.Store, orch *study.Orchestrator, tutor *study.Tutor, gw study.Gateway, agent string, tele *telemetry.Telemetry) *SessionsHandler {
	return &SessionsHandler{
		store:     st,
		orch:      orch,
		tutor:     tutor,
		gw:        gw,
		agent:     agent,
		telemetry: tele,
		logger:    log.New(log.Writer(), "[HTTP] ", log.LstdFlags),
		streams:   make(map[string]*study.StreamSession),
	}
}

// Register mounts all session routes on the group
func (h *SessionsHandler) Register(g *echo.Group) {
	g.POST("", h.create)
	g.GET("", h.list)
	g.GET("/:id", h.get)
	g.DELETE("/:id", h.delete)
	g.POST("/:id/path", h.buildPath)
	g.GET("/:id/progress", h.progress)
	g.PUT("/:id/modules/active", h.setActiveModule)
	g.POST("/:id/modules/:module_id/toggle-complete", h.toggleComplete)
	g.GET("/:id/modules/:module_id/questions", h.suggestedQuestions)
	g.GET("/:id/modules/:module_id/conversation", h.getConversation)
	g.DELETE("/:id/modules/:module_id/conversation", h.clearConversation)
	g.POST("/:id/modules/:module_id/ask", h.ask)
	g.POST("/:id/modules/:module_id/ask/stream", h.askStream)
	g.POST("/:id/modules/:module_id/stop", h.stopStream)
}

func httpStoreError(err error) error {
	if errors.Is(err, models.ErrSessionNotFound) || errors.Is(err, models.ErrConversationNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

func (h *SessionsHandler) create(c echo.Context) error {
	var req struct {
		Topic string `json:"topic"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	req.Topic = strings.TrimSpace(req.Topic)
	if req.Topic == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "topic required")
	}
	session, err := h.store.CreateSession(c.Request().Context(), req.Topic)
	if err != nil {
		return httpStoreError(err)
	}
	return c.JSON(http.StatusCreated, session)
}

func (h *SessionsHandler) list(c echo.Context) error {
	sessions, err := h.store.ListSessions(c.Request().Context())
	if err != nil {
		return httpStoreError(err)
	}
	return c.JSON(http.StatusOK, sessions)
}

func (h *SessionsHandler) get(c echo.Context) error {
	ctx := c.Request().Context()
	session, err := h.store.GetSession(ctx, c.Param("id"))
	if err != nil {
		return httpStoreError(err)
	}
	if err := h.store.TouchSession(ctx, session.ID); err != nil {
		h.logger.Printf("touching session %s: %v", session.ID, err)
	}
	return c.JSON(http.StatusOK, session)
}

func (h *SessionsHandler) delete(c echo.Context) error {
	id := c.Param("id")
	if err := h.store.DeleteSession(c.Request().Context(), id); err != nil {
		return httpStoreError(err)
	}
	h.dropStreams(id)
	return c.NoContent(http.StatusNoContent)
}

// buildPath generates a learning path for the session's topic, streaming
// progress steps as SSE and persisting the result before the final event
func (h *SessionsHandler) buildPath(c echo.Context) error {
	ctx := c.Request().Context()
	session, err := h.store.GetSession(ctx, c.Param("id"))
	if err != nil {
		return httpStoreError(err)
	}

	stream, err := startSSE(c)
	if err != nil {
		return err
	}

	path, buildErr := h.orch.BuildLearningPath(ctx, session.Topic, func(step models.OrchestrationStep) {
		if step.Step == "complete" {
			// final event follows with the path attached
			return
		}
		if err := stream.send("progress", step); err != nil {
			h.logger.Printf("sending progress event: %v", err)
		}
	})
	if buildErr != nil {
		return stream.send("error", map[string]string{"error": buildErr.Error()})
	}

	if err := h.store.SaveLearningPath(ctx, session.ID, path); err != nil {
		h.logger.Printf("persisting learning path for session %s: %v", session.ID, err)
		return stream.send("error", map[string]string{"error": err.Error()})
	}

	return stream.send("complete", map[string]interface{}{
		"step":    "complete",
		"message": "Learning path ready!",
		"path":    path,
	})
}

func (h *SessionsHandler) progress(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")
	if _, err := h.store.GetSession(ctx, id); err != nil {
		return httpStoreError(err)
	}
	completed, err := h.store.CompletedModules(ctx, id)
	if err != nil {
		return httpStoreError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"completedModules": completed})
}

func (h *SessionsHandler) setActiveModule(c echo.Context) error {
	var req struct {
		ModuleID string `json:"moduleId"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	session, err := h.store.GetSession(ctx, c.Param("id"))
	if err != nil {
		return httpStoreError(err)
	}
	if _, ok := findModule(session, req.ModuleID); !ok {
		return echo.NewHTTPError(http.StatusNotFound, "module not found in learning path")
	}
	if err := h.store.SetActiveModule(ctx, session.ID, req.ModuleID); err != nil {
		return httpStoreError(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"activeModuleId": req.ModuleID})
}

func (h *SessionsHandler) toggleComplete(c echo.Context) error {
	ctx := c.Request().Context()
	session, err := h.store.GetSession(ctx, c.Param("id"))
	if err != nil {
		return httpStoreError(err)
	}
	moduleID := c.Param("module_id")
	if _, ok := findModule(session, moduleID); !ok {
		return echo.NewHTTPError(http.StatusNotFound, "module not found in learning path")
	}
	completed, err := h.store.ToggleModuleComplete(ctx, session.ID, moduleID)
	if err != nil {
		return httpStoreError(err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"completed": completed})
}

func (h *SessionsHandler) suggestedQuestions(c echo.Context) error {
	session, err := h.store.GetSession(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpStoreError(err)
	}
	module, ok := findModule(session, c.Param("module_id"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "module not found in learning path")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"questions": study.SuggestedQuestions(module),
	})
}

func (h *SessionsHandler) getConversation(c echo.Context) error {
	conv, err := h.store.GetConversation(c.Request().Context(), c.Param("id"), c.Param("module_id"))
	if errors.Is(err, models.ErrConversationNotFound) {
		// no questions asked yet; an empty transcript, not an error
		return c.JSON(http.StatusOK, models.ModuleConversation{
			ModuleID: c.Param("module_id"),
			Messages: []models.QAMessage{},
		})
	}
	if err != nil {
		return httpStoreError(err)
	}
	return c.JSON(http.StatusOK, conv)
}

func (h *SessionsHandler) clearConversation(c echo.Context) error {
	if err := h.store.ClearConversation(c.Request().Context(), c.Param("id"), c.Param("module_id")); err != nil {
		return httpStoreError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// ask answers a module question in one blocking call and records both turns
// in the module conversation
func (h *SessionsHandler) ask(c echo.Context) error {
	var req struct {
		Question string `json:"question"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	req.Question = strings.TrimSpace(req.Question)
	if req.Question == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "question required")
	}

	ctx := c.Request().Context()
	session, module, tc, err := h.tutorContext(c, req.Question)
	if err != nil {
		return err
	}

	resp, err := h.tutor.AskTutorQuestion(ctx, req.Question, tc)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}

	h.recordTurn(c, session.ID, module, req.Question, resp.Answer, resp.Citations, resp.SuggestedFollowUps)
	return c.JSON(http.StatusOK, resp)
}

// askStream answers a module question over SSE: step events for the agent's
// progress, delta events for answer text, citation events as sources settle,
// then a final done event with the assembled result
func (h *SessionsHandler) askStream(c echo.Context) error {
	var req struct {
		Question string `json:"question"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	req.Question = strings.TrimSpace(req.Question)
	if req.Question == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "question required")
	}

	session, module, tc, err := h.tutorContext(c, req.Question)
	if err != nil {
		return err
	}

	stream, err := startSSE(c)
	if err != nil {
		return err
	}

	hooks := study.SessionHooks{
		OnStep: func(step models.AgentStep) {
			_ = stream.send("step", step)
		},
		OnStepDone: func(stepNumber int, status models.StepStatus, detail string) {
			_ = stream.send("step_done", map[string]interface{}{
				"stepNumber": stepNumber,
				"status":     status,
				"detail":     detail,
			})
		},
		OnDelta: func(delta string) {
			_ = stream.send("delta", map[string]string{"text": delta})
		},
		OnCitation: func(citation models.Citation) {
			_ = stream.send("citation", citation)
		},
	}

	ss := h.streamSession(session.ID, module.ID)
	result, askErr := ss.Ask(c.Request().Context(), buildStreamPrompt(req.Question, tc), nil, hooks)
	if askErr != nil {
		return stream.send("error", map[string]string{"error": askErr.Error()})
	}

	if !result.Cancelled {
		h.recordTurn(c, session.ID, module, req.Question, result.Content, result.Citations, nil)
	}
	return stream.send("done", result)
}

// stopStream cancels the in-flight streamed question for a module, if any
func (h *SessionsHandler) stopStream(c echo.Context) error {
	h.mu.Lock()
	ss, ok := h.streams[streamKey(c.Param("id"), c.Param("module_id"))]
	h.mu.Unlock()
	if ok {
		ss.Stop()
	}
	return c.JSON(http.StatusOK, map[string]bool{"stopped": ok})
}

// tutorContext loads the session, resolves the module and assembles the
// tutor's context from its resources and conversation history
func (h *SessionsHandler) tutorContext(c echo.Context, question string) (models.StudySession, models.SubModule, models.TutorContext, error) {
	ctx := c.Request().Context()
	session, err := h.store.GetSession(ctx, c.Param("id"))
	if err != nil {
		return models.StudySession{}, models.SubModule{}, models.TutorContext{}, httpStoreError(err)
	}
	module, ok := findModule(session, c.Param("module_id"))
	if !ok {
		return models.StudySession{}, models.SubModule{}, models.TutorContext{},
			echo.NewHTTPError(http.StatusNotFound, "module not found in learning path")
	}

	var history []models.QAMessage
	if conv, err := h.store.GetConversation(ctx, session.ID, module.ID); err == nil {
		history = conv.Messages
	}

	return session, module, models.TutorContext{
		Topic:               session.Topic,
		ModuleTitle:         module.Title,
		ModuleDescription:   module.Description,
		ModuleContent:       h.moduleContent(ctx, module),
		AvailableArticles:   module.Articles,
		AvailableVideos:     module.Videos,
		ConversationHistory: history,
	}, nil
}

// moduleContent fetches a markdown excerpt of the module's primary article to
// ground the tutor. Best effort: on any failure the module description stands
// in, so an unreachable article never blocks a question.
func (h *SessionsHandler) moduleContent(ctx context.Context, module models.SubModule) string {
	if len(module.Articles) == 0 {
		return module.Description
	}
	docs, err := h.gw.GetContents(ctx, []string{module.Articles[0].URL}, []string{"markdown"})
	if err != nil {
		h.logger.Printf("fetching article content for module %s: %v", module.ID, err)
		return module.Description
	}
	if len(docs) == 0 || docs[0].Markdown == "" {
		return module.Description
	}
	return docs[0].Markdown
}

// recordTurn appends the question and answer to the module conversation and
// the session's response log. Persistence failures are logged, not surfaced;
// the answer was already produced.
func (h *SessionsHandler) recordTurn(c echo.Context, sessionID string, module models.SubModule, question, answer string, citations []models.Citation, followUps []string) {
	ctx := c.Request().Context()
	now := time.Now().UnixMilli()

	userMsg := models.QAMessage{ID: uuid.NewString(), Role: "user", Content: question, Timestamp: now}
	if err := h.store.AppendMessage(ctx, sessionID, module.ID, module.Title, userMsg); err != nil {
		h.logger.Printf("recording question for session %s: %v", sessionID, err)
	}
	assistantMsg := models.QAMessage{
		ID:                 uuid.NewString(),
		Role:               "assistant",
		Content:            answer,
		Citations:          citations,
		SuggestedFollowUps: followUps,
		Timestamp:          time.Now().UnixMilli(),
	}
	if err := h.store.AppendMessage(ctx, sessionID, module.ID, module.Title, assistantMsg); err != nil {
		h.logger.Printf("recording answer for session %s: %v", sessionID, err)
	}
	if err := h.store.AppendResponse(ctx, sessionID, models.AgentResponse{
		ID:        uuid.NewString(),
		Query:     question,
		Answer:    answer,
		Citations: citations,
		CreatedAt: now,
	}); err != nil {
		h.logger.Printf("recording response for session %s: %v", sessionID, err)
	}
}

func streamKey(sessionID, moduleID string) string {
	return sessionID + ":" + moduleID
}

// streamSession returns the per-module streaming session, creating it on
// first use. One session per module keeps the single-flight cancel scoped.
func (h *SessionsHandler) streamSession(sessionID, moduleID string) *study.StreamSession {
	h.mu.Lock()
	defer h.mu.Unlock()
	key := streamKey(sessionID, moduleID)
	ss, ok := h.streams[key]
	if !ok {
		ss = study.NewStreamSession(h.gw, h.agent, h.telemetry)
		h.streams[key] = ss
	}
	return ss
}

// dropStreams stops and forgets all streaming sessions for a deleted session
func (h *SessionsHandler) dropStreams(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	prefix := sessionID + ":"
	for key, ss := range h.streams {
		if strings.HasPrefix(key, prefix) {
			ss.Stop()
			delete(h.streams, key)
		}
	}
}

func findModule(session models.StudySession, moduleID string) (models.SubModule, bool) {
	if session.LearningPath == nil {
		return models.SubModule{}, false
	}
	for _, m := range session.LearningPath.SubModules {
		if m.ID == moduleID {
			return m, true
		}
	}
	return models.SubModule{}, false
}

// buildStreamPrompt frames a streamed question with the module context. The
// streaming path favours immediacy over the structured JSON envelope the
// blocking tutor asks for, so the prompt requests plain prose.
func buildStreamPrompt(question string, tc models.TutorContext) string {
	var b strings.Builder
	b.WriteString("You are an expert tutor. Answer the student's question about the current learning module directly and concisely, in plain prose.\n\n")
	b.WriteString("Topic: " + tc.Topic + "\n")
	b.WriteString("Module: " + tc.ModuleTitle + "\n")
	b.WriteString("Module Focus: " + tc.ModuleDescription + "\n\n")
	b.WriteString("Student Question: " + question)
	return b.String()
}
