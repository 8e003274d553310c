package study

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/mohammad-safakhou/studyflow/internal/telemetry"
	"github.com/mohammad-safakhou/studyflow/internal/youcom"
	"github.com/mohammad-safakhou/studyflow/models"
)

// SessionHooks receives incremental updates while a question streams.
// All hooks are optional and invoked synchronously from the consuming
// goroutine, one at a time.
type SessionHooks struct {
	OnStep     func(models.AgentStep)
	OnStepDone func(stepNumber int, status models.StepStatus, detail string)
	OnDelta    func(delta string)
	OnCitation func(citation models.Citation)
}

// AskResult is the settled outcome of one streamed question. A cancelled ask
// still carries whatever content and citations arrived before the cancel.
type AskResult struct {
	Content   string            `json:"content"`
	Citations []models.Citation `json:"citations"`
	Cancelled bool              `json:"cancelled"`
	RunTimeMS int64             `json:"runTimeMs,omitempty"`
}

// StreamSession manages one cancellable agent conversation. It is
// single-flight: starting a new question cancels any question still in
// flight, and an explicit Stop does the same.
type StreamSession struct {
	gw        Gateway
	agent     string
	telemetry *telemetry.Telemetry
	logger    *log.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewStreamSession creates a streaming session using the given agent kind
func NewStreamSession(gw Gateway, agent string, tele *telemetry.Telemetry) *StreamSession {
	return &StreamSession{
		gw:        gw,
		agent:     agent,
		telemetry: tele,
		logger:    log.New(log.Writer(), "[SESSION] ", log.LstdFlags),
	}
}

// Stop cancels the in-flight question, if any. The cancelled ask settles
// with its partial content rather than an error.
func (s *StreamSession) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
}

// Ask streams one question. Progress steps follow the agent's lifecycle:
// thinking until the run starts, research until answer output begins,
// compute while text deltas arrive, then a final complete step carrying the
// reported run time.
func (s *StreamSession) Ask(ctx context.Context, input string, tools []youcom.AgentTool, hooks SessionHooks) (AskResult, error) {
	s.mu.Lock()
	if s.cancel != nil {
		// single-flight: displace the previous question
		s.cancel()
	}
	askCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()
	defer cancel()

	start := time.Now()
	result := AskResult{Citations: []models.Citation{}}

	steps := newStepTracker(hooks)
	steps.begin(models.StepThinking, "Planning research...")

	stream, err := s.gw.StreamAgent(askCtx, input, s.agent, tools)
	if err != nil {
		if askCtx.Err() != nil {
			result.Cancelled = true
			return result, nil
		}
		steps.fail(err)
		s.telemetry.RecordAgentRun("stream", time.Since(start), err)
		return result, fmt.Errorf("starting agent stream: %w", err)
	}
	defer stream.Close()

	sawAnswerOutput := false
	for {
		var event youcom.AgentEvent
		var ok bool
		select {
		case <-askCtx.Done():
			result.Cancelled = true
			return result, nil
		case event, ok = <-stream.Events():
		}
		if !ok {
			break
		}
		// an event racing the cancel must not be applied
		if askCtx.Err() != nil {
			result.Cancelled = true
			return result, nil
		}
		s.telemetry.RecordStreamEvent()

		switch event.Type {
		case youcom.EventCreated:
			// stream established, still planning

		case youcom.EventStarting:
			steps.complete()
			steps.begin(models.StepResearch, "Searching for information...")

		case youcom.EventOutputAdded:
			if event.Response.Type == youcom.OutputMessageAnswer && !sawAnswerOutput {
				sawAnswerOutput = true
				steps.complete()
				steps.begin(models.StepCompute, "Generating response...")
			}

		case youcom.EventTextDelta:
			result.Content += event.Response.Delta
			if hooks.OnDelta != nil {
				hooks.OnDelta(event.Response.Delta)
			}

		case youcom.EventOutputDone:
			for _, citation := range event.Response.Content {
				result.Citations = append(result.Citations, citation)
				if hooks.OnCitation != nil {
					hooks.OnCitation(citation)
				}
			}

		case youcom.EventDone:
			result.RunTimeMS = event.Response.RunTimeMS
			steps.complete()
			steps.finish(fmt.Sprintf("%dms", event.Response.RunTimeMS))
		}
	}

	if err := stream.Err(); err != nil {
		if askCtx.Err() != nil {
			result.Cancelled = true
			return result, nil
		}
		steps.fail(err)
		s.telemetry.RecordAgentRun("stream", time.Since(start), err)
		return result, fmt.Errorf("agent stream failed: %w", err)
	}

	s.telemetry.RecordAgentRun("stream", time.Since(start), nil)
	return result, nil
}

// stepTracker keeps the step-wise progress state machine honest: one running
// step at a time, numbered in emission order.
type stepTracker struct {
	hooks   SessionHooks
	count   int
	running bool
}

func newStepTracker(hooks SessionHooks) *stepTracker {
	return &stepTracker{hooks: hooks}
}

func (t *stepTracker) begin(stepType models.StepType, label string) {
	t.count++
	t.running = true
	if t.hooks.OnStep != nil {
		t.hooks.OnStep(models.AgentStep{
			StepNumber: t.count,
			Type:       stepType,
			Label:      label,
			Status:     models.StepRunning,
		})
	}
}

func (t *stepTracker) complete() {
	if !t.running {
		return
	}
	t.running = false
	if t.hooks.OnStepDone != nil {
		t.hooks.OnStepDone(t.count, models.StepComplete, "")
	}
}

func (t *stepTracker) finish(detail string) {
	t.count++
	t.running = false
	if t.hooks.OnStep != nil {
		t.hooks.OnStep(models.AgentStep{
			StepNumber: t.count,
			Type:       models.StepTypeComplete,
			Label:      "Done",
			Detail:     detail,
			Status:     models.StepComplete,
		})
	}
}

func (t *stepTracker) fail(err error) {
	if !t.running {
		return
	}
	t.running = false
	if t.hooks.OnStepDone != nil {
		t.hooks.OnStepDone(t.count, models.StepError, err.Error())
	}
}
