package models

import (
	"errors"
	"time"
)

var (
	// ErrSessionNotFound is returned when a study session does not exist in the store
	ErrSessionNotFound = errors.New("study session not found")
	// ErrConversationNotFound is returned when a module has no conversation yet
	ErrConversationNotFound = errors.New("module conversation not found")
)

// Difficulty is the difficulty level of a path or module
type Difficulty string

const (
	DifficultyBeginner     Difficulty = "beginner"
	DifficultyIntermediate Difficulty = "intermediate"
	DifficultyAdvanced     Difficulty = "advanced"
)

// Valid reports whether d is one of the known difficulty levels
func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyBeginner, DifficultyIntermediate, DifficultyAdvanced:
		return true
	}
	return false
}

// ModuleStatus is the lifecycle state of a sub-module
type ModuleStatus string

const (
	ModulePending  ModuleStatus = "pending"
	ModuleLoading  ModuleStatus = "loading"
	ModuleComplete ModuleStatus = "complete"
	ModuleError    ModuleStatus = "error"
)

// VideoProvider identifies a known video platform
type VideoProvider string

const (
	ProviderYouTube VideoProvider = "youtube"
	ProviderVimeo   VideoProvider = "vimeo"
)

// ArticleResource is a non-video learning resource attached to a module
type ArticleResource struct {
	ID            string `json:"id"`
	URL           string `json:"url"`
	Title         string `json:"title"`
	Description   string `json:"description"`
	Snippet       string `json:"snippet"`
	Domain        string `json:"domain"`
	Favicon       string `json:"favicon,omitempty"`
	PublishedDate string `json:"publishedDate,omitempty"`
}

// VideoResource is a video learning resource attached to a module
type VideoResource struct {
	ID            string        `json:"id"`
	URL           string        `json:"url"`
	Title         string        `json:"title"`
	Description   string        `json:"description"`
	Platform      VideoProvider `json:"platform"`
	VideoID       string        `json:"videoId"`
	Thumbnail     string        `json:"thumbnail"`
	ChannelName   string        `json:"channelName,omitempty"`
	PublishedDate string        `json:"publishedDate,omitempty"`
}

// SubModule is one curriculum unit of a learning path
type SubModule struct {
	ID               string            `json:"id"`
	Order            int               `json:"order"`
	Title            string            `json:"title"`
	Description      string            `json:"description"`
	EstimatedMinutes int               `json:"estimatedMinutes"`
	SearchQuery      string            `json:"searchQuery"`
	Difficulty       Difficulty        `json:"difficulty"`
	Articles         []ArticleResource `json:"articles"`
	Videos           []VideoResource   `json:"videos"`
	Status           ModuleStatus      `json:"status"`
}

// LearningPath is the generated curriculum for a topic
type LearningPath struct {
	ID                    string      `json:"id"`
	Topic                 string      `json:"topic"`
	Overview              string      `json:"overview"`
	TotalModules          int         `json:"totalModules"`
	EstimatedTotalMinutes int         `json:"estimatedTotalMinutes"`
	Difficulty            Difficulty  `json:"difficulty"`
	SubModules            []SubModule `json:"subModules"`
	CreatedAt             time.Time   `json:"createdAt"`
	GeneratedBy           string      `json:"generatedBy"`
}

// OutlineModule is one module entry of an LLM-generated outline
type OutlineModule struct {
	Order            int        `json:"order"`
	Title            string     `json:"title"`
	Description      string     `json:"description"`
	EstimatedMinutes int        `json:"estimatedMinutes"`
	SearchQuery      string     `json:"searchQuery"`
	Difficulty       Difficulty `json:"difficulty"`
}

// ModuleOutline is the validated curriculum outline produced by the agent
type ModuleOutline struct {
	Topic                 string          `json:"topic"`
	Overview              string          `json:"overview"`
	Difficulty            Difficulty      `json:"difficulty"`
	EstimatedTotalMinutes int             `json:"estimatedTotalMinutes"`
	Modules               []OutlineModule `json:"modules"`
}

// Citation is a structured reference returned by the search/agent API.
// Citations are value objects: two citations are the same source when their
// URLs match, regardless of where they were collected.
type Citation struct {
	SourceType   string `json:"source_type"`
	CitationURI  string `json:"citation_uri"`
	Title        string `json:"title"`
	Snippet      string `json:"snippet"`
	URL          string `json:"url"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
}

// QAMessage is one turn of a module conversation
type QAMessage struct {
	ID                 string     `json:"id"`
	Role               string     `json:"role"` // user, assistant
	Content            string     `json:"content"`
	Citations          []Citation `json:"citations,omitempty"`
	SuggestedFollowUps []string   `json:"suggestedFollowUps,omitempty"`
	Timestamp          int64      `json:"timestamp"`
}

// ModuleConversation is the running Q&A transcript for one module
type ModuleConversation struct {
	ModuleID    string      `json:"moduleId"`
	ModuleName  string      `json:"moduleName"`
	Messages    []QAMessage `json:"messages"`
	LastUpdated int64       `json:"lastUpdated"`
}

// TutorContext carries everything the tutor needs to answer a module question
type TutorContext struct {
	Topic               string            `json:"topic"`
	ModuleTitle         string            `json:"moduleTitle"`
	ModuleDescription   string            `json:"moduleDescription"`
	ModuleContent       string            `json:"moduleContent"`
	AvailableArticles   []ArticleResource `json:"availableArticles"`
	AvailableVideos     []VideoResource   `json:"availableVideos"`
	ConversationHistory []QAMessage       `json:"conversationHistory"`
}

// TutorResponse is a settled tutor answer with citations
type TutorResponse struct {
	Answer             string     `json:"answer"`
	Citations          []Citation `json:"citations"`
	SuggestedFollowUps []string   `json:"suggestedFollowUps"`
}

// AgentResponse is a persisted Q&A turn attached to a session
type AgentResponse struct {
	ID        string     `json:"id"`
	Query     string     `json:"query"`
	Answer    string     `json:"answer"`
	Citations []Citation `json:"citations"`
	CreatedAt int64      `json:"createdAt"`
}

// StudySession owns a learning path and its Q&A history
type StudySession struct {
	ID             string          `json:"id"`
	Topic          string          `json:"topic"`
	LearningPath   *LearningPath   `json:"learningPath"`
	ActiveModuleID string          `json:"activeModuleId,omitempty"`
	Responses      []AgentResponse `json:"responses"`
	CreatedAt      int64           `json:"createdAt"`
	LastAccessed   int64           `json:"lastAccessed"`
}

// OrchestrationStep is one discrete progress phase of a learning-path build
type OrchestrationStep struct {
	Step    string `json:"step"` // generating, searching, complete, error
	Message string `json:"message"`
	Err     error  `json:"-"`
}

// StepStatus is the state of one reasoning step of a streaming answer
type StepStatus string

const (
	StepPending  StepStatus = "pending"
	StepRunning  StepStatus = "running"
	StepComplete StepStatus = "complete"
	StepError    StepStatus = "error"
)

// StepType classifies a reasoning step
type StepType string

const (
	StepThinking     StepType = "thinking"
	StepResearch     StepType = "research"
	StepCompute      StepType = "compute"
	StepTypeComplete StepType = "complete"
)

// AgentStep is a step-wise progress event of a streaming agent answer
type AgentStep struct {
	StepNumber int        `json:"stepNumber"`
	Type       StepType   `json:"type"`
	Label      string     `json:"label"`
	Detail     string     `json:"detail,omitempty"`
	Status     StepStatus `json:"status"`
}
