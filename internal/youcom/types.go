package youcom

import (
	"github.com/mohammad-safakhou/studyflow/internal/video"
	"github.com/mohammad-safakhou/studyflow/models"
)

// SearchWebResult is one web hit from the search API, enriched client-side
// with video metadata when the URL matches a known provider.
type SearchWebResult struct {
	URL          string             `json:"url"`
	Title        string             `json:"title"`
	Description  string             `json:"description"`
	Snippets     []string           `json:"snippets"`
	ThumbnailURL string             `json:"thumbnail_url,omitempty"`
	PageAge      string             `json:"page_age,omitempty"`
	Contents     *SearchHitContents `json:"contents,omitempty"`
	Authors      []string           `json:"authors,omitempty"`
	FaviconURL   string             `json:"favicon_url,omitempty"`
	Video        *video.Metadata    `json:"video,omitempty"`
}

// SearchHitContents carries optional crawled content of a search hit
type SearchHitContents struct {
	HTML     string `json:"html,omitempty"`
	Markdown string `json:"markdown,omitempty"`
}

// SearchNewsResult is one news hit from the search API
type SearchNewsResult struct {
	Title        string `json:"title"`
	Description  string `json:"description"`
	URL          string `json:"url"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
	PageAge      string `json:"page_age,omitempty"`
}

// SearchResults groups the result buckets of a search response
type SearchResults struct {
	Web  []SearchWebResult  `json:"web"`
	News []SearchNewsResult `json:"news,omitempty"`
}

// SearchMetadata describes one executed search
type SearchMetadata struct {
	SearchUUID string  `json:"search_uuid"`
	Query      string  `json:"query"`
	Latency    float64 `json:"latency"`
}

// SearchResponse is the full payload of GET /search
type SearchResponse struct {
	Results  SearchResults  `json:"results"`
	Metadata SearchMetadata `json:"metadata"`
}

// SearchOptions are optional search parameters
type SearchOptions struct {
	Count   int
	Country string
}

// AgentTool selects an upstream agent capability
type AgentTool struct {
	Type            string `json:"type"` // web_search, compute, research
	SearchEffort    string `json:"search_effort,omitempty"`
	ReportVerbosity string `json:"report_verbosity,omitempty"`
}

// AgentRunRequest is the body of POST /agents/runs
type AgentRunRequest struct {
	Agent          string          `json:"agent"`
	Input          string          `json:"input"`
	Stream         bool            `json:"stream"`
	Tools          []AgentTool     `json:"tools,omitempty"`
	Verbosity      string          `json:"verbosity,omitempty"`
	WorkflowConfig *WorkflowConfig `json:"workflow_config,omitempty"`
}

// WorkflowConfig bounds an agent run
type WorkflowConfig struct {
	MaxWorkflowSteps int `json:"max_workflow_steps"`
}

// AgentInputTurn is one input message echoed back by the agent API
type AgentInputTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// AgentOutput is one output item of a blocking agent run. Type is
// "message.answer" (Text set) or "web_search.results" (Content set).
type AgentOutput struct {
	Type    string            `json:"type"`
	Text    string            `json:"text,omitempty"`
	Content []models.Citation `json:"content,omitempty"`
}

// AgentRunResponse is the full payload of a blocking agent run
type AgentRunResponse struct {
	Agent  string           `json:"agent"`
	Input  []AgentInputTurn `json:"input"`
	Output []AgentOutput    `json:"output"`
}

// Agent SSE event types
const (
	EventCreated     = "response.created"
	EventStarting    = "response.starting"
	EventOutputAdded = "response.output_item.added"
	EventTextDelta   = "response.output_text.delta"
	EventOutputDone  = "response.output_item.done"
	EventDone        = "response.done"
)

// OutputMessageAnswer is the output item type carrying answer text
const OutputMessageAnswer = "message.answer"

// AgentEvent is one frame of a streaming agent run
type AgentEvent struct {
	Type     string             `json:"type"`
	SeqID    int                `json:"seq_id"`
	Response AgentEventResponse `json:"response"`
}

// AgentEventResponse is the variant payload of an agent event. Fields are
// populated depending on the event type.
type AgentEventResponse struct {
	OutputIndex int               `json:"output_index,omitempty"`
	Type        string            `json:"type,omitempty"`
	Delta       string            `json:"delta,omitempty"`
	Text        string            `json:"text,omitempty"`
	Content     []models.Citation `json:"content,omitempty"`
	RunTimeMS   int64             `json:"run_time_ms,omitempty"`
	Finished    bool              `json:"finished,omitempty"`
}

// ContentResponse is one crawled document from POST /contents
type ContentResponse struct {
	URL      string           `json:"url"`
	Title    string           `json:"title"`
	HTML     string           `json:"html,omitempty"`
	Markdown string           `json:"markdown,omitempty"`
	Metadata *ContentMetadata `json:"metadata,omitempty"`
}

// ContentMetadata carries optional site metadata of a crawled document
type ContentMetadata struct {
	SiteName   string `json:"site_name,omitempty"`
	FaviconURL string `json:"favicon_url,omitempty"`
}
