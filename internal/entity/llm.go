package entity

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/profile-finder/pkg/anthropic"
)

const extractSystemPrompt = `You extract named entities from web search results about people.
Return ONLY a JSON object with exactly these keys:
{"locations": [], "organizations": [], "persons": []}
Locations are cities, metro areas, states or countries where the person lives or works.
Organizations are employers, schools and companies. Persons are full names.
List each entity once, in order of appearance, copied as written. Use [] when none.`

// LLM extracts entities with an Anthropic model and falls back to another
// extractor when the call or the response parsing fails.
type LLM struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	fallback  Extractor
	onUsage   func(model string, u anthropic.TokenUsage)
}

// NewLLM returns an LLM extractor. An empty model uses
// anthropic.DefaultModel; a nil fallback uses a default Gazetteer.
func NewLLM(client anthropic.Client, model string, fallback Extractor) *LLM {
	if model == "" {
		model = anthropic.DefaultModel
	}
	if fallback == nil {
		fallback = NewGazetteer(nil)
	}
	return &LLM{client: client, model: model, maxTokens: 512, fallback: fallback}
}

// OnUsage registers fn to receive token usage after each model call.
func (l *LLM) OnUsage(fn func(model string, u anthropic.TokenUsage)) *LLM {
	l.onUsage = fn
	return l
}

// Extract asks the model for entities in text.
func (l *LLM) Extract(ctx context.Context, text string) (Entities, error) {
	if strings.TrimSpace(text) == "" {
		return Entities{}, nil
	}

	ents, err := l.extract(ctx, text)
	if err != nil {
		if ctx.Err() != nil {
			return Entities{}, ctx.Err()
		}
		zap.L().Warn("entity: llm extraction failed, using fallback",
			zap.String("model", l.model),
			zap.Error(err),
		)
		return l.fallback.Extract(ctx, text)
	}
	return ents, nil
}

func (l *LLM) extract(ctx context.Context, text string) (Entities, error) {
	temp := 0.0
	resp, err := l.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       l.model,
		MaxTokens:   l.maxTokens,
		System:      anthropic.CachedSystem(extractSystemPrompt),
		Messages:    []anthropic.Message{{Role: "user", Content: text}},
		Temperature: &temp,
	})
	if err != nil {
		return Entities{}, eris.Wrap(err, "entity: create message")
	}
	resp.Usage.LogUsage(l.model, "entity_extraction")
	if l.onUsage != nil {
		l.onUsage(l.model, resp.Usage)
	}

	var ents Entities
	if err := json.Unmarshal([]byte(cleanJSON(resp.Text())), &ents); err != nil {
		return Entities{}, eris.Wrap(err, "entity: parse response")
	}
	ents.Locations = dedupe(ents.Locations)
	ents.Organizations = dedupe(ents.Organizations)
	ents.Persons = dedupe(ents.Persons)
	return ents, nil
}

// cleanJSON extracts a JSON object from text that may contain markdown code
// fences or other wrapping.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}
	return strings.TrimSpace(text)
}
