package study

import (
	"context"
	"fmt"
	"sync"

	"github.com/mohammad-safakhou/studyflow/internal/youcom"
)

// fakeGateway substitutes the upstream API in tests. Unset functions fail the
// call so tests only exercise what they stub.
type fakeGateway struct {
	mu          sync.Mutex
	searchFn    func(ctx context.Context, query string, opts *youcom.SearchOptions) (youcom.SearchResponse, error)
	runAgentFn  func(ctx context.Context, input, agent string, tools []youcom.AgentTool) (youcom.AgentRunResponse, error)
	streamFn    func(ctx context.Context, input, agent string, tools []youcom.AgentTool) (AgentStream, error)
	contentsFn  func(ctx context.Context, urls, formats []string) ([]youcom.ContentResponse, error)
	searchCalls []string
	agentCalls  []string
}

func (f *fakeGateway) Search(ctx context.Context, query string, opts *youcom.SearchOptions) (youcom.SearchResponse, error) {
	f.mu.Lock()
	f.searchCalls = append(f.searchCalls, query)
	f.mu.Unlock()
	if f.searchFn == nil {
		return youcom.SearchResponse{}, fmt.Errorf("unexpected Search call")
	}
	return f.searchFn(ctx, query, opts)
}

func (f *fakeGateway) RunAgent(ctx context.Context, input, agent string, tools []youcom.AgentTool) (youcom.AgentRunResponse, error) {
	f.mu.Lock()
	f.agentCalls = append(f.agentCalls, input)
	f.mu.Unlock()
	if f.runAgentFn == nil {
		return youcom.AgentRunResponse{}, fmt.Errorf("unexpected RunAgent call")
	}
	return f.runAgentFn(ctx, input, agent, tools)
}

func (f *fakeGateway) StreamAgent(ctx context.Context, input, agent string, tools []youcom.AgentTool) (AgentStream, error) {
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

func (f *fakeGateway) agentCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.agentCalls)
}

// answerResponse wraps text as a blocking agent answer
func answerResponse(text string) youcom.AgentRunResponse {
	return youcom.AgentRunResponse{
		Output: []youcom.AgentOutput{{Type: youcom.OutputMessageAnswer, Text: text}},
	}
}

// webHit builds a minimal search hit
func webHit(url, title string) youcom.SearchWebResult {
	return youcom.SearchWebResult{URL: url, Title: title, Description: title + " description"}
}

func searchResponse(hits ...youcom.SearchWebResult) youcom.SearchResponse {
	return youcom.SearchResponse{Results: youcom.SearchResults{Web: hits}}
}

// fakeStream feeds a fixed event sequence through the AgentStream interface
type fakeStream struct {
	events chan youcom.AgentEvent
	err    error
	quit   chan struct{}
	once   sync.Once
}

func newFakeStream(err error, events ...youcom.AgentEvent) *fakeStream {
	f := &fakeStream{
		events: make(chan youcom.AgentEvent),
		err:    err,
		quit:   make(chan struct{}),
	}
	go func() {
		defer close(f.events)
		for _, e := range events {
			select {
			case f.events <- e:
			case <-f.quit:
				return
			}
		}
	}()
	return f
}

func (f *fakeStream) Events() <-chan youcom.AgentEvent { return f.events }
func (f *fakeStream) Err() error                       { return f.err }
func (f *fakeStream) Close()                           { f.once.Do(func() { close(f.quit) }) }
