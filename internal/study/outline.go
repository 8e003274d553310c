package study

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"regexp"
	"strings"

	"github.com/mohammad-safakhou/studyflow/internal/youcom"
	"github.com/mohammad-safakhou/studyflow/models"
)

const outlinePrompt = `You are a curriculum designer. Break the following topic into 3-5 progressive learning sub-modules.
Return ONLY valid JSON with this structure:
{
  "topic": string,
  "overview": string (2-3 sentences),
  "difficulty": "beginner" | "intermediate" | "advanced",
  "estimatedTotalMinutes": number,
  "modules": [
    {
      "order": number,
      "title": string,
      "description": string (1-2 sentences),
      "estimatedMinutes": number,
      "searchQuery": string (specific optimized search query for finding resources),
      "difficulty": "beginner" | "intermediate" | "advanced"
    }
  ]
}
Rules: modules must be progressive, 3 minimum 5 maximum, return ONLY JSON no other text.`

const outlineStrictPrompt = `You are a curriculum designer. Break the following topic into 3-5 progressive learning sub-modules.
You MUST return ONLY a valid JSON object. No markdown, no code fences, no explanation. Just raw JSON.
{
  "topic": string,
  "overview": string,
  "difficulty": "beginner" | "intermediate" | "advanced",
  "estimatedTotalMinutes": number,
  "modules": [
    {
      "order": number,
      "title": string,
      "description": string,
      "estimatedMinutes": number,
      "searchQuery": string,
      "difficulty": "beginner" | "intermediate" | "advanced"
    }
  ]
}
Rules: modules must be progressive, 3 minimum 5 maximum. Return ONLY valid JSON, nothing else.`

// Generator turns a topic into a validated 3-5 module curriculum outline
type Generator struct {
	gw     Gateway
	agent  string
	logger *log.Logger
}

// NewGenerator creates an outline generator using the given agent kind
func NewGenerator(gw Gateway, agent string) *Generator {
	return &Generator{
		gw:     gw,
		agent:  agent,
		logger: log.New(log.Writer(), "[OUTLINE] ", log.LstdFlags),
	}
}

// GenerateOutline issues one agent call and validates the returned JSON.
// A parse or validation failure triggers exactly one retry with a stricter
// prompt; if that also fails the error is fatal for the orchestration run.
func (g *Generator) GenerateOutline(ctx context.Context, topic string) (models.ModuleOutline, error) {
	outline, err := g.attempt(ctx, topic, outlinePrompt)
	if err == nil {
		return outline, nil
	}
	g.logger.Printf("first outline attempt failed, retrying with strict prompt: %v", err)

	outline, err = g.attempt(ctx, topic, outlineStrictPrompt)
	if err != nil {
		return models.ModuleOutline{}, fmt.Errorf("generating module outline: %w", err)
	}
	return outline, nil
}

func (g *Generator) attempt(ctx context.Context, topic, prompt string) (models.ModuleOutline, error) {
	input := prompt + "\n\nTopic: " + topic

	resp, err := g.gw.RunAgent(ctx, input, g.agent, nil)
	if err != nil {
		return models.ModuleOutline{}, err
	}

	raw, err := extractAnswerText(resp)
	if err != nil {
		return models.ModuleOutline{}, err
	}

	return parseOutline(stripCodeFences(raw))
}

var codeFenceRE = regexp.MustCompile("(?s)```(?:json)?\\s*\n?(.*?)\n?```")

// stripCodeFences tolerates both fenced and unfenced JSON output
func stripCodeFences(text string) string {
	if m := codeFenceRE.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(text)
}

// outlinePayload mirrors the expected JSON with pointer numerics so missing
// fields are distinguishable from zero values.
type outlinePayload struct {
	Topic                 string          `json:"topic"`
	Overview              string          `json:"overview"`
	Difficulty            string          `json:"difficulty"`
	EstimatedTotalMinutes *float64        `json:"estimatedTotalMinutes"`
	Modules               []modulePayload `json:"modules"`
}

type modulePayload struct {
	Order            *float64 `json:"order"`
	Title            string   `json:"title"`
	Description      string   `json:"description"`
	EstimatedMinutes *float64 `json:"estimatedMinutes"`
	SearchQuery      string   `json:"searchQuery"`
	Difficulty       string   `json:"difficulty"`
}

func parseOutline(raw string) (models.ModuleOutline, error) {
	var payload outlinePayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return models.ModuleOutline{}, fmt.Errorf("outline is not valid JSON: %w", err)
	}
	return validateOutline(payload)
}

func validateOutline(p outlinePayload) (models.ModuleOutline, error) {
	if strings.TrimSpace(p.Topic) == "" {
		return models.ModuleOutline{}, fmt.Errorf("missing or invalid 'topic' field")
	}
	if strings.TrimSpace(p.Overview) == "" {
		return models.ModuleOutline{}, fmt.Errorf("missing or invalid 'overview' field")
	}
	difficulty := models.Difficulty(p.Difficulty)
	if !difficulty.Valid() {
		return models.ModuleOutline{}, fmt.Errorf("invalid 'difficulty' field: %q", p.Difficulty)
	}
	if p.EstimatedTotalMinutes == nil {
		return models.ModuleOutline{}, fmt.Errorf("missing or invalid 'estimatedTotalMinutes' field")
	}
	if len(p.Modules) < 3 || len(p.Modules) > 5 {
		return models.ModuleOutline{}, fmt.Errorf("expected 3-5 modules, got %d", len(p.Modules))
	}

	outline := models.ModuleOutline{
		Topic:                 p.Topic,
		Overview:              p.Overview,
		Difficulty:            difficulty,
		EstimatedTotalMinutes: int(*p.EstimatedTotalMinutes),
		Modules:               make([]models.OutlineModule, 0, len(p.Modules)),
	}

	for _, m := range p.Modules {
		if m.Order == nil {
			return models.ModuleOutline{}, fmt.Errorf("module missing 'order'")
		}
		if strings.TrimSpace(m.Title) == "" {
			return models.ModuleOutline{}, fmt.Errorf("module missing 'title'")
		}
		if strings.TrimSpace(m.Description) == "" {
			return models.ModuleOutline{}, fmt.Errorf("module missing 'description'")
		}
		if m.EstimatedMinutes == nil {
			return models.ModuleOutline{}, fmt.Errorf("module missing 'estimatedMinutes'")
		}
		if strings.TrimSpace(m.SearchQuery) == "" {
			return models.ModuleOutline{}, fmt.Errorf("module missing 'searchQuery'")
		}
		modDifficulty := models.Difficulty(m.Difficulty)
		if !modDifficulty.Valid() {
			return models.ModuleOutline{}, fmt.Errorf("module has invalid 'difficulty': %q", m.Difficulty)
		}
		outline.Modules = append(outline.Modules, models.OutlineModule{
			Order:            int(*m.Order),
			Title:            m.Title,
			Description:      m.Description,
			EstimatedMinutes: int(*m.EstimatedMinutes),
			SearchQuery:      m.SearchQuery,
			Difficulty:       modDifficulty,
		})
	}

	return outline, nil
}

// extractAnswerText pulls the first answer item out of a blocking agent run
func extractAnswerText(resp youcom.AgentRunResponse) (string, error) {
	for _, out := range resp.Output {
		if out.Type == youcom.OutputMessageAnswer {
			return out.Text, nil
		}
	}
	return "", fmt.Errorf("no answer text in agent response")
}
