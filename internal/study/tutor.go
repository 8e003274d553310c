package study

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/mohammad-safakhou/studyflow/internal/telemetry"
	"github.com/mohammad-safakhou/studyflow/internal/youcom"
	"github.com/mohammad-safakhou/studyflow/models"
)

const tutorContentExcerptLimit = 800
const tutorHistoryTurns = 4

// Tutor answers module-scoped questions with citations grounded in the
// module's resources.
type Tutor struct {
	gw        Gateway
	agent     string
	telemetry *telemetry.Telemetry
	logger    *log.Logger
}

// NewTutor creates a tutor using the given agent kind
func NewTutor(gw Gateway, agent string, tele *telemetry.Telemetry) *Tutor {
	return &Tutor{
		gw:        gw,
		agent:     agent,
		telemetry: tele,
		logger:    log.New(log.Writer(), "[TUTOR] ", log.LstdFlags),
	}
}

// AskTutorQuestion runs one blocking agent call with web search enabled and
// returns a settled answer with citations mapped back to module resources
// where possible, else the agent's own search citations.
func (t *Tutor) AskTutorQuestion(ctx context.Context, question string, tc models.TutorContext) (models.TutorResponse, error) {
	start := time.Now()
	prompt := buildTutorPrompt(question, tc)

	resp, err := t.gw.RunAgent(ctx, prompt, t.agent, []youcom.AgentTool{{Type: "web_search"}})
	t.telemetry.RecordAgentRun("blocking", time.Since(start), err)
	if err != nil {
		return models.TutorResponse{}, fmt.Errorf("asking tutor question: %w", err)
	}

	var answerParts []string
	var searchCitations []models.Citation
	for _, out := range resp.Output {
		switch out.Type {
		case youcom.OutputMessageAnswer:
			answerParts = append(answerParts, out.Text)
		case "web_search.results":
			searchCitations = append(searchCitations, out.Content...)
		}
	}
	responseText := strings.Join(answerParts, "\n")

	parsed, ok := parseTutorEnvelope(responseText)
	if !ok {
		// fallback: raw text as answer, search citations as-is
		return models.TutorResponse{
			Answer:             responseText,
			Citations:          searchCitations,
			SuggestedFollowUps: []string{},
		}, nil
	}

	mapped := mapCitations(parsed.Citations, tc)
	citations := mapped
	if len(citations) == 0 {
		citations = searchCitations
	}
	if citations == nil {
		citations = []models.Citation{}
	}
	followUps := parsed.SuggestedFollowUps
	if followUps == nil {
		followUps = []string{}
	}

	return models.TutorResponse{
		Answer:             parsed.Answer,
		Citations:          citations,
		SuggestedFollowUps: followUps,
	}, nil
}

// tutorEnvelope is the JSON shape the tutor prompt asks the agent for
type tutorEnvelope struct {
	Answer             string             `json:"answer"`
	Citations          []tutorCitationRef `json:"citations"`
	SuggestedFollowUps []string           `json:"suggestedFollowUps"`
}

type tutorCitationRef struct {
	ID    int    `json:"id"`
	URL   string `json:"url"`
	Title string `json:"title"`
}

func parseTutorEnvelope(text string) (tutorEnvelope, bool) {
	cleaned := strings.TrimSpace(stripCodeFences(text))
	var env tutorEnvelope
	if err := json.Unmarshal([]byte(cleaned), &env); err != nil || env.Answer == "" {
		return tutorEnvelope{}, false
	}
	return env, true
}

// mapCitations resolves parsed citation URLs against the module's known
// resources; unmatched entries are dropped.
func mapCitations(cites []tutorCitationRef, tc models.TutorContext) []models.Citation {
	var out []models.Citation
	for _, c := range cites {
		if a, ok := findArticle(tc.AvailableArticles, c.URL); ok {
			out = append(out, models.Citation{
				SourceType:  "web",
				CitationURI: a.URL,
				Title:       a.Title,
				Snippet:     a.Description,
				URL:         a.URL,
			})
			continue
		}
		if v, ok := findVideo(tc.AvailableVideos, c.URL); ok {
			out = append(out, models.Citation{
				SourceType:  "web",
				CitationURI: v.URL,
				Title:       v.Title,
				Snippet:     v.Description,
				URL:         v.URL,
			})
		}
	}
	return out
}

func findArticle(articles []models.ArticleResource, url string) (models.ArticleResource, bool) {
	for _, a := range articles {
		if a.URL == url {
			return a, true
		}
	}
	return models.ArticleResource{}, false
}

func findVideo(videos []models.VideoResource, url string) (models.VideoResource, bool) {
	for _, v := range videos {
		if v.URL == url {
			return v, true
		}
	}
	return models.VideoResource{}, false
}

func buildTutorPrompt(question string, tc models.TutorContext) string {
	var articles strings.Builder
	for i, a := range tc.AvailableArticles {
		fmt.Fprintf(&articles, "[%d] %s - %s\n", i+1, a.Title, a.URL)
	}
	articlesText := strings.TrimRight(articles.String(), "\n")
	if articlesText == "" {
		articlesText = "None"
	}

	var videos strings.Builder
	for i, v := range tc.AvailableVideos {
		fmt.Fprintf(&videos, "[%d] %s - %s\n", i+1+len(tc.AvailableArticles), v.Title, v.URL)
	}
	videosText := strings.TrimRight(videos.String(), "\n")
	if videosText == "" {
		videosText = "None"
	}

	history := tc.ConversationHistory
	if len(history) > tutorHistoryTurns {
		history = history[len(history)-tutorHistoryTurns:]
	}
	var conversation strings.Builder
	for _, msg := range history {
		speaker := "Tutor"
		if msg.Role == "user" {
			speaker = "Student"
		}
		fmt.Fprintf(&conversation, "%s: %s\n", speaker, msg.Content)
	}
	conversationText := strings.TrimRight(conversation.String(), "\n")
	if conversationText == "" {
		conversationText = "This is the first question."
	}

	content := tc.ModuleContent
	if len(content) > tutorContentExcerptLimit {
		content = content[:tutorContentExcerptLimit]
	}

	return fmt.Sprintf(`You are an expert tutor helping a student learn about a specific topic.
Your role is to answer questions about the current learning module with:
- Clear, concise explanations (2-3 paragraphs maximum)
- References to the module content when relevant
- Citations to available resources using [1], [2], [3] format
- Focus on the current learning objective

Current Context:
Topic: %s
Module: %s
Module Focus: %s

Module Content (excerpt):
%s

Available Resources:
Articles:
%s

Videos:
%s

Conversation History:
%s

Instructions:
1. Answer the student's question directly and concisely
2. Reference specific parts of the module content when helpful
3. Cite sources using [1], [2] format - these must match the Available Resources
4. If the question is outside this module's scope, briefly answer but suggest which module would cover it better
5. End with 1-2 optional follow-up questions if appropriate
6. Keep answers focused and practical

Student Question: %s

Respond in this JSON format:
{
  "answer": "Your answer here with citations [1][2]",
  "citations": [
    {"id": 1, "url": "exact URL from available resources", "title": "Resource title"}
  ],
  "suggestedFollowUps": ["Follow-up question 1?", "Follow-up question 2?"]
}`, tc.Topic, tc.ModuleTitle, tc.ModuleDescription, content, articlesText, videosText, conversationText, question)
}

// SuggestedQuestions returns canned starter questions for a module
func SuggestedQuestions(module models.SubModule) []string {
	return []string{
		fmt.Sprintf("What are the key concepts in %s?", module.Title),
		"Can you explain this with a real-world example?",
		"What's the most important thing to understand here?",
		"How does this connect to the other modules?",
	}
}
