package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/mohammad-safakhou/studyflow/config"
	"github.com/mohammad-safakhou/studyflow/internal/store"
	"github.com/mohammad-safakhou/studyflow/internal/study"
	"github.com/mohammad-safakhou/studyflow/internal/youcom"
	"github.com/mohammad-safakhou/studyflow/models"
)

type fakeGateway struct {
	searchFn   func(ctx context.Context, query string, opts *youcom.SearchOptions) (youcom.SearchResponse, error)
	runAgentFn func(ctx context.Context, input, agent string, tools []youcom.AgentTool) (youcom.AgentRunResponse, error)
	streamFn   func(ctx context.Context, input, agent string, tools []youcom.AgentTool) (study.AgentStream, error)
	contentsFn func(ctx context.Context, urls, formats []string) ([]youcom.ContentResponse, error)
}

func (f *fakeGateway) Search(ctx context.Context, query string, opts *youcom.SearchOptions) (youcom.SearchResponse, error) {
	if f.searchFn == nil {
		return youcom.SearchResponse{}, fmt.Errorf("unexpected Search call")
	}
	return f.searchFn(ctx, query, opts)
}

func (f *fakeGateway) RunAgent(ctx context.Context, input, agent string, tools []youcom.AgentTool) (youcom.AgentRunResponse, error) {
	if f.runAgentFn == nil {
		return youcom.AgentRunResponse{}, fmt.Errorf("unexpected RunAgent call")
	}
	return f.runAgentFn(ctx, input, agent, tools)
}

func (f *fakeGateway) StreamAgent(ctx context.Context, input, agent string, tools []youcom.AgentTool) (study.AgentStream, error) {
	if f.streamFn == nil {
		return nil, fmt.Errorf("unexpected StreamAgent call")
	}
	return f.streamFn(ctx, input, agent, tools)
}

func (f *fakeGateway) GetContents(ctx context.Context, urls, formats []string) ([]youcom.ContentResponse, error) {
	if f.contentsFn == nil {
		return nil, fmt.Errorf("unexpected GetContents call")
	}
	return f.contentsFn(ctx, urls, formats)
}

const testOutlineJSON = `{
	"topic": "Rust programming language",
	"overview": "From syntax to ownership.",
	"difficulty": "beginner",
	"estimatedTotalMinutes": 180,
	"modules": [
		{"order": 1, "title": "Getting Started", "description": "Install Rust.", "estimatedMinutes": 45, "searchQuery": "rust getting started", "difficulty": "beginner"},
		{"order": 2, "title": "Ownership", "description": "Ownership rules.", "estimatedMinutes": 60, "searchQuery": "rust ownership", "difficulty": "intermediate"},
		{"order": 3, "title": "Error Handling", "description": "Result and Option.", "estimatedMinutes": 75, "searchQuery": "rust error handling", "difficulty": "intermediate"}
	]
}`

func newTestHandler(gw study.Gateway) (*SessionsHandler, store.Store) {
	st := store.NewMemoryStore()
	generator := study.NewGenerator(gw, "express")
	fetcher := study.NewFetcher(gw, config.ResourcesConfig{})
	orch := study.NewOrchestrator(generator, fetcher, nil)
	tutor := study.NewTutor(gw, "express", nil)
	return NewSessionsHandler(st, orch, tutor, gw, "express", nil), st
}

func newRequest(method, target, body string) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	return req
}

// seedSession creates a session with a one-module learning path
func seedSession(t *testing.T, st store.Store) models.StudySession {
	t.Helper()
	ctx := context.Background()
	session, err := st.CreateSession(ctx, "Rust programming language")
	if err != nil {
		t.Fatalf("seeding session: %v", err)
	}
	path := models.LearningPath{
		ID:           "path-1",
		Topic:        session.Topic,
		TotalModules: 1,
		SubModules: []models.SubModule{{
			ID:          "mod-1",
			Order:       1,
			Title:       "Ownership",
			Description: "Ownership and borrowing.",
			Articles: []models.ArticleResource{
				{URL: "https://example.com/ownership", Title: "Ownership Explained", Description: "A deep dive."},
			},
			Videos: []models.VideoResource{},
			Status: models.ModuleComplete,
		}},
	}
	if err := st.SaveLearningPath(ctx, session.ID, path); err != nil {
		t.Fatalf("seeding path: %v", err)
	}
	session, _ = st.GetSession(ctx, session.ID)
	return session
}

func TestCreateSessionValidatesTopic(t *testing.T) {
	h, _ := newTestHandler(&fakeGateway{})
	e := echo.New()
	req := newRequest(http.MethodPost, "/api/sessions", `{"topic": "  "}`)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := h.create(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Fatalf("got %v, want 400", err)
	}
}

func TestCreateAndGetSession(t *testing.T) {
	h, _ := newTestHandler(&fakeGateway{})
	e := echo.New()

	req := newRequest(http.MethodPost, "/api/sessions", `{"topic": "Rust programming language"}`)
	rec := httptest.NewRecorder()
	if err := h.create(e.NewContext(req, rec)); err != nil {
		t.Fatalf("create: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", rec.Code)
	}
	var created models.StudySession
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decoding: %v", err)
	}

	req = newRequest(http.MethodGet, "/api/sessions/"+created.ID, "")
	rec = httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(created.ID)
	if err := h.get(c); err != nil {
		t.Fatalf("get: %v", err)
	}
	var got models.StudySession
	_ = json.Unmarshal(rec.Body.Bytes(), &got)
	if got.ID != created.ID || got.Topic != "Rust programming language" {
		t.Errorf("got %+v", got)
	}
}

func TestGetSessionNotFound(t *testing.T) {
	h, _ := newTestHandler(&fakeGateway{})
	e := echo.New()
	req := newRequest(http.MethodGet, "/api/sessions/nope", "")
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues("nope")

	err := h.get(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusNotFound {
		t.Fatalf("got %v, want 404", err)
	}
}

func TestToggleCompleteAndProgress(t *testing.T) {
	h, st := newTestHandler(&fakeGateway{})
	session := seedSession(t, st)
	e := echo.New()

	toggle := func() *httptest.ResponseRecorder {
		req := newRequest(http.MethodPost, "/", "")
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.SetParamNames("id", "module_id")
		c.SetParamValues(session.ID, "mod-1")
		if err := h.toggleComplete(c); err != nil {
			t.Fatalf("toggle: %v", err)
		}
		return rec
	}

	rec := toggle()
	var out map[string]bool
	_ = json.Unmarshal(rec.Body.Bytes(), &out)
	if !out["completed"] {
		t.Error("first toggle should complete the module")
	}

	req := newRequest(http.MethodGet, "/", "")
	rec = httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(session.ID)
	if err := h.progress(c); err != nil {
		t.Fatalf("progress: %v", err)
	}
	var progress map[string][]string
	_ = json.Unmarshal(rec.Body.Bytes(), &progress)
	if len(progress["completedModules"]) != 1 || progress["completedModules"][0] != "mod-1" {
		t.Errorf("progress = %v", progress)
	}

	rec = toggle()
	_ = json.Unmarshal(rec.Body.Bytes(), &out)
	if out["completed"] {
		t.Error("second toggle should clear the module")
	}
}

func TestToggleCompleteUnknownModule(t *testing.T) {
	h, st := newTestHandler(&fakeGateway{})
	session := seedSession(t, st)
	e := echo.New()
	req := newRequest(http.MethodPost, "/", "")
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetParamNames("id", "module_id")
	c.SetParamValues(session.ID, "mod-404")

	err := h.toggleComplete(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusNotFound {
		t.Fatalf("got %v, want 404", err)
	}
}

func TestSetActiveModule(t *testing.T) {
	h, st := newTestHandler(&fakeGateway{})
	session := seedSession(t, st)
	e := echo.New()
	req := newRequest(http.MethodPut, "/", `{"moduleId": "mod-1"}`)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(session.ID)

	if err := h.setActiveModule(c); err != nil {
		t.Fatalf("set active: %v", err)
	}
	got, _ := st.GetSession(context.Background(), session.ID)
	if got.ActiveModuleID != "mod-1" {
		t.Errorf("active module = %q", got.ActiveModuleID)
	}
}

func TestAskRecordsConversation(t *testing.T) {
	gw := &fakeGateway{}
	gw.runAgentFn = func(_ context.Context, input, _ string, _ []youcom.AgentTool) (youcom.AgentRunResponse, error) {
		if !strings.Contains(input, "What is borrowing?") {
			t.Errorf("prompt missing question")
		}
		return youcom.AgentRunResponse{Output: []youcom.AgentOutput{{
			Type: youcom.OutputMessageAnswer,
			Text: `{"answer": "Borrowing is temporary access [1].", "citations": [{"id": 1, "url": "https://example.com/ownership", "title": "Ownership Explained"}], "suggestedFollowUps": ["What about lifetimes?"]}`,
		}}}, nil
	}

	h, st := newTestHandler(gw)
	session := seedSession(t, st)
	e := echo.New()
	req := newRequest(http.MethodPost, "/", `{"question": "What is borrowing?"}`)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id", "module_id")
	c.SetParamValues(session.ID, "mod-1")

	if err := h.ask(c); err != nil {
		t.Fatalf("ask: %v", err)
	}
	var resp models.TutorResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if !strings.Contains(resp.Answer, "Borrowing") {
		t.Errorf("answer = %q", resp.Answer)
	}
	if len(resp.Citations) != 1 || resp.Citations[0].Title != "Ownership Explained" {
		t.Errorf("citations = %+v", resp.Citations)
	}

	conv, err := st.GetConversation(context.Background(), session.ID, "mod-1")
	if err != nil {
		t.Fatalf("conversation: %v", err)
	}
	if len(conv.Messages) != 2 || conv.Messages[0].Role != "user" || conv.Messages[1].Role != "assistant" {
		t.Errorf("messages = %+v", conv.Messages)
	}

	got, _ := st.GetSession(context.Background(), session.ID)
	if len(got.Responses) != 1 {
		t.Errorf("responses = %d, want 1", len(got.Responses))
	}
}

func TestAskGroundsTutorInArticleContent(t *testing.T) {
	gw := &fakeGateway{}
	gw.contentsFn = func(_ context.Context, urls, formats []string) ([]youcom.ContentResponse, error) {
		if len(urls) != 1 || urls[0] != "https://example.com/ownership" {
			t.Errorf("urls = %v, want the module's primary article", urls)
		}
		if len(formats) != 1 || formats[0] != "markdown" {
			t.Errorf("formats = %v, want markdown only", formats)
		}
		return []youcom.ContentResponse{{
			URL:      urls[0],
			Markdown: "# Ownership\nEvery value has a single owner.",
		}}, nil
	}
	gw.runAgentFn = func(_ context.Context, input, _ string, _ []youcom.AgentTool) (youcom.AgentRunResponse, error) {
		if !strings.Contains(input, "Every value has a single owner.") {
			t.Errorf("prompt missing fetched article content")
		}
		return youcom.AgentRunResponse{Output: []youcom.AgentOutput{{
			Type: youcom.OutputMessageAnswer,
			Text: `{"answer": "Each value has one owner.", "citations": [], "suggestedFollowUps": []}`,
		}}}, nil
	}

	h, st := newTestHandler(gw)
	session := seedSession(t, st)
	e := echo.New()
	req := newRequest(http.MethodPost, "/", `{"question": "Who owns a value?"}`)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id", "module_id")
	c.SetParamValues(session.ID, "mod-1")

	if err := h.ask(c); err != nil {
		t.Fatalf("ask: %v", err)
	}
}

func TestAskFallsBackWhenContentFetchFails(t *testing.T) {
	gw := &fakeGateway{}
	gw.contentsFn = func(context.Context, []string, []string) ([]youcom.ContentResponse, error) {
		return nil, fmt.Errorf("upstream unavailable")
	}
	gw.runAgentFn = func(_ context.Context, input, _ string, _ []youcom.AgentTool) (youcom.AgentRunResponse, error) {
		if !strings.Contains(input, "Ownership and borrowing.") {
			t.Errorf("prompt missing the module description fallback")
		}
		return youcom.AgentRunResponse{Output: []youcom.AgentOutput{{
			Type: youcom.OutputMessageAnswer,
			Text: `{"answer": "Each value has one owner.", "citations": [], "suggestedFollowUps": []}`,
		}}}, nil
	}

	h, st := newTestHandler(gw)
	session := seedSession(t, st)
	e := echo.New()
	req := newRequest(http.MethodPost, "/", `{"question": "Who owns a value?"}`)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id", "module_id")
	c.SetParamValues(session.ID, "mod-1")

	if err := h.ask(c); err != nil {
		t.Fatalf("ask: %v", err)
	}
}

func TestAskValidatesQuestion(t *testing.T) {
	h, st := newTestHandler(&fakeGateway{})
	session := seedSession(t, st)
	e := echo.New()
	req := newRequest(http.MethodPost, "/", `{"question": ""}`)
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetParamNames("id", "module_id")
	c.SetParamValues(session.ID, "mod-1")

	err := h.ask(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Fatalf("got %v, want 400", err)
	}
}

func TestGetConversationEmptyByDefault(t *testing.T) {
	h, st := newTestHandler(&fakeGateway{})
	session := seedSession(t, st)
	e := echo.New()
	req := newRequest(http.MethodGet, "/", "")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id", "module_id")
	c.SetParamValues(session.ID, "mod-1")

	if err := h.getConversation(c); err != nil {
		t.Fatalf("get conversation: %v", err)
	}
	var conv models.ModuleConversation
	_ = json.Unmarshal(rec.Body.Bytes(), &conv)
	if conv.Messages == nil || len(conv.Messages) != 0 {
		t.Errorf("conversation = %+v, want empty transcript", conv)
	}
}

func TestSuggestedQuestionsEndpoint(t *testing.T) {
	h, st := newTestHandler(&fakeGateway{})
	session := seedSession(t, st)
	e := echo.New()
	req := newRequest(http.MethodGet, "/", "")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id", "module_id")
	c.SetParamValues(session.ID, "mod-1")

	if err := h.suggestedQuestions(c); err != nil {
		t.Fatalf("questions: %v", err)
	}
	var out map[string][]string
	_ = json.Unmarshal(rec.Body.Bytes(), &out)
	if len(out["questions"]) != 4 {
		t.Errorf("questions = %v", out["questions"])
	}
}

func TestBuildPathStreamsProgressAndPersists(t *testing.T) {
	gw := &fakeGateway{}
	gw.runAgentFn = func(context.Context, string, string, []youcom.AgentTool) (youcom.AgentRunResponse, error) {
		return youcom.AgentRunResponse{Output: []youcom.AgentOutput{{
			Type: youcom.OutputMessageAnswer,
			Text: testOutlineJSON,
		}}}, nil
	}
	gw.searchFn = func(_ context.Context, query string, _ *youcom.SearchOptions) (youcom.SearchResponse, error) {
		return youcom.SearchResponse{Results: youcom.SearchResults{Web: []youcom.SearchWebResult{
			{URL: "https://example.com/" + strings.ReplaceAll(query, " ", "-"), Title: "Hit for " + query},
		}}}, nil
	}

	h, st := newTestHandler(gw)
	session, err := st.CreateSession(context.Background(), "Rust programming language")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	e := echo.New()
	req := newRequest(http.MethodPost, "/", "")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(session.ID)

	if err := h.buildPath(c); err != nil {
		t.Fatalf("buildPath: %v", err)
	}

	body := rec.Body.String()
	if !strings.Contains(body, "event: progress") {
		t.Errorf("missing progress events:\n%s", body)
	}
	if !strings.Contains(body, "Breaking topic into learning modules...") {
		t.Errorf("missing generating step:\n%s", body)
	}
	if !strings.Contains(body, "event: complete") {
		t.Errorf("missing complete event:\n%s", body)
	}
	if rec.Header().Get(echo.HeaderContentType) != "text/event-stream" {
		t.Errorf("content type = %q", rec.Header().Get(echo.HeaderContentType))
	}

	got, _ := st.GetSession(context.Background(), session.ID)
	if got.LearningPath == nil || got.LearningPath.TotalModules != 3 {
		t.Fatalf("path not persisted: %+v", got.LearningPath)
	}
}

func TestBuildPathReportsOutlineFailure(t *testing.T) {
	gw := &fakeGateway{}
	gw.runAgentFn = func(context.Context, string, string, []youcom.AgentTool) (youcom.AgentRunResponse, error) {
		return youcom.AgentRunResponse{Output: []youcom.AgentOutput{{
			Type: youcom.OutputMessageAnswer,
			Text: "not json",
		}}}, nil
	}

	h, st := newTestHandler(gw)
	session, _ := st.CreateSession(context.Background(), "topic")

	e := echo.New()
	req := newRequest(http.MethodPost, "/", "")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(session.ID)

	if err := h.buildPath(c); err != nil {
		t.Fatalf("buildPath should report errors in-stream: %v", err)
	}
	if !strings.Contains(rec.Body.String(), "event: error") {
		t.Errorf("missing error event:\n%s", rec.Body.String())
	}
	got, _ := st.GetSession(context.Background(), session.ID)
	if got.LearningPath != nil {
		t.Error("failed build must not persist a path")
	}
}

func TestDeleteSession(t *testing.T) {
	h, st := newTestHandler(&fakeGateway{})
	session := seedSession(t, st)
	e := echo.New()
	req := newRequest(http.MethodDelete, "/", "")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(session.ID)

	if err := h.delete(c); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", rec.Code)
	}
	if _, err := st.GetSession(context.Background(), session.ID); err == nil {
		t.Error("session should be gone")
	}
}
