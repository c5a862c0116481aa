package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"briefbot/internal/llm"
	"briefbot/internal/smartparse"
	"briefbot/internal/template"
)

// LLMService dispatches llm-kind processing operations to the language-model
// provider with deterministic, low-temperature prompting.
type LLMService struct {
	provider llm.Provider
}

// NewLLMService creates the llm collaborator.
func NewLLMService(provider llm.Provider) *LLMService {
	return &LLMService{provider: provider}
}

// Call implements Service.
func (s *LLMService) Call(ctx context.Context, operation string, params map[string]any) (any, error) {
	system, user, err := s.buildPrompt(operation, params)
	if err != nil {
		return nil, err
	}
	text, err := s.provider.Generate(ctx, system, user)
	if err != nil {
		return nil, fmt.Errorf("llm.%s: %w", operation, err)
	}
	// Wrapped so downstream template resolution can unwrap the content field.
	return map[string]any{"content": text}, nil
}

func (s *LLMService) buildPrompt(operation string, params map[string]any) (system, user string, err error) {
	content := template.Stringify(params["content"])
	tone := stringParam(params, "tone", "neutral")

	switch operation {
	case "summarize":
		system = fmt.Sprintf("Summarize the provided content concisely in a %s tone. Output plain text only.", tone)
		user = content
	case "format":
		format := stringParam(params, "format", "plain text")
		system = fmt.Sprintf("Reformat the provided content as %s in a %s tone. Preserve every fact; do not add new information.", format, tone)
		user = content
	case "compose", "compose_email":
		instructions := template.Stringify(params["instructions"])
		system = fmt.Sprintf("Compose text in a %s tone following the user's instructions.", tone)
		if operation == "compose_email" {
			system = fmt.Sprintf("Compose the body of an email in a %s tone following the user's instructions. Output the email body only, no subject line.", tone)
		}
		if keywords := keywordList(params); keywords != "" {
			system += " Emphasize these topics where relevant: " + keywords + "."
		}
		user = instructions
		if content != "" {
			user += "\n\nSource material:\n" + content
		}
	case "filter_and_rank":
		criteria := stringParam(params, "criteria", "relevance and recency")
		system = fmt.Sprintf("Filter the provided list, keep only entries matching the criteria (%s), and return them ranked best first. Preserve the original JSON shape of each entry.", criteria)
		if keywords := keywordList(params); keywords != "" {
			system += " Prioritize entries about: " + keywords + "."
		}
		system, user = describeList(system, params["content"], content)
	case "filter_and_summarize":
		criteria := stringParam(params, "criteria", "relevance")
		system = fmt.Sprintf("Filter the provided list by the criteria (%s), then summarize the remaining entries in a %s tone as plain text.", criteria, tone)
		system, user = describeList(system, params["content"], content)
	case "generate_quote":
		topic := stringParam(params, "topic", "motivation")
		system = fmt.Sprintf("Produce one short quote about %s in a %s tone, with attribution if real. Output the quote only.", topic, tone)
		user = "Generate the quote."
	default:
		return "", "", fmt.Errorf("unknown llm operation %q", operation)
	}
	return system, user, nil
}

// describeList flattens structured list content and tells the model what it
// is looking at. Free-text content passes through untouched.
func describeList(system string, raw any, fallback string) (string, string) {
	items := smartparse.Normalize(raw)
	if len(items) == 0 {
		return system, fallback
	}
	kind := smartparse.Classify(items)
	system += fmt.Sprintf(" The input is a JSON list of %d %s entries.", len(items), kind)
	if data, err := json.Marshal(items); err == nil {
		return system, string(data)
	}
	return system, fallback
}

func stringParam(params map[string]any, key, fallback string) string {
	if v, ok := params[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

func keywordList(params map[string]any) string {
	switch v := params["keywords"].(type) {
	case string:
		return v
	case []any:
		parts := make([]string, 0, len(v))
		for _, kw := range v {
			if s, ok := kw.(string); ok {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	}
	return ""
}
