package study

import (
	"context"

	"github.com/mohammad-safakhou/studyflow/internal/youcom"
)

// Gateway is the upstream surface the study pipeline depends on. The youcom
// client satisfies it via NewGateway; tests substitute fakes.
type Gateway interface {
	Search(ctx context.Context, query string, opts *youcom.SearchOptions) (youcom.SearchResponse, error)
	RunAgent(ctx context.Context, input, agent string, tools []youcom.AgentTool) (youcom.AgentRunResponse, error)
	StreamAgent(ctx context.Context, input, agent string, tools []youcom.AgentTool) (AgentStream, error)
	GetContents(ctx context.Context, urls, formats []string) ([]youcom.ContentResponse, error)
}

// AgentStream is a consumable, cancellable sequence of agent events
type AgentStream interface {
	Events() <-chan youcom.AgentEvent
	Err() error
	Close()
}

type clientGateway struct {
	c *youcom.Client
}

// NewGateway adapts the concrete client to the Gateway interface
func NewGateway(c *youcom.Client) Gateway {
	return clientGateway{c: c}
}

func (g clientGateway) Search(ctx context.Context, query string, opts *youcom.SearchOptions) (youcom.SearchResponse, error) {
	return g.c.Search(ctx, query, opts)
}

func (g clientGateway) RunAgent(ctx context.Context, input, agent string, tools []youcom.AgentTool) (youcom.AgentRunResponse, error) {
	return g.c.RunAgent(ctx, input, agent, tools)
}

func (g clientGateway) GetContents(ctx context.Context, urls, formats []string) ([]youcom.ContentResponse, error) {
	return g.c.GetContents(ctx, urls, formats)
}

func (g clientGateway) StreamAgent(ctx context.Context, input, agent string, tools []youcom.AgentTool) (AgentStream, error) {
	s, err := g.c.StreamAgent(ctx, input, agent, tools)
	if err != nil {
		return nil, err
	}
	return s, nil
}
