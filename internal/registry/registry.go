// Package registry holds the static catalog of (service, operation) pairs a
// task plan may reference. Pure lookup and validation, no state.
package registry

import (
	"fmt"
	"sort"
	"strings"

	"briefbot/internal/db"
)

// Operation describes one registered operation's parameter contract.
type Operation struct {
	Required    []string
	Optional    []string
	Description string
}

var catalog = map[string]map[string]Operation{
	"calendar": {
		"list_events": {
			Optional:    []string{"date", "max_results"},
			Description: "List calendar events for a date (defaults to today)",
		},
		"get_today": {
			Description: "List today's calendar events",
		},
	},
	"gmail": {
		"send": {
			Required:    []string{"to", "subject", "body"},
			Description: "Send an email",
		},
	},
	"search": {
		"search": {
			Required:    []string{"query"},
			Optional:    []string{"max_results"},
			Description: "Web search for a query",
		},
		"trending": {
			Optional:    []string{"topic", "max_results"},
			Description: "Trending stories for a topic",
		},
		"quotes": {
			Optional:    []string{"topic"},
			Description: "Fetch quotes for a topic",
		},
		"hacker_news_top": {
			Optional:    []string{"limit"},
			Description: "Top Hacker News stories",
		},
		"fetch_content": {
			Required:    []string{"url"},
			Description: "Fetch the content of a URL",
		},
	},
	"youtube": {
		"search": {
			Required:    []string{"query"},
			Optional:    []string{"max_results"},
			Description: "Search YouTube videos",
		},
		"trending": {
			Optional:    []string{"category", "max_results"},
			Description: "Trending YouTube videos",
		},
		"create_playlist": {
			Required:    []string{"title"},
			Optional:    []string{"description", "video_ids"},
			Description: "Create a playlist",
		},
		"search_and_create_playlist": {
			Required:    []string{"query", "title"},
			Optional:    []string{"max_results"},
			Description: "Search videos and collect them into a new playlist",
		},
	},
	"llm": {
		"summarize": {
			Required:    []string{"content"},
			Optional:    []string{"tone", "max_length"},
			Description: "Summarize content",
		},
		"format": {
			Required:    []string{"content"},
			Optional:    []string{"format", "tone"},
			Description: "Reformat content",
		},
		"compose": {
			Required:    []string{"instructions"},
			Optional:    []string{"content", "tone", "keywords"},
			Description: "Compose free-form text from instructions and content",
		},
		"compose_email": {
			Required:    []string{"instructions"},
			Optional:    []string{"content", "tone", "keywords"},
			Description: "Compose an email body from instructions and content",
		},
		"filter_and_rank": {
			Required:    []string{"content"},
			Optional:    []string{"criteria", "keywords", "max_items"},
			Description: "Filter and rank a list by criteria",
		},
		"filter_and_summarize": {
			Required:    []string{"content"},
			Optional:    []string{"criteria", "keywords", "tone"},
			Description: "Filter a list and summarize what remains",
		},
		"generate_quote": {
			Optional:    []string{"topic", "tone"},
			Description: "Generate an inspirational quote",
		},
	},
}

// IsSupported reports whether the (service, operation) pair is registered.
func IsSupported(service, operation string) bool {
	ops, ok := catalog[service]
	if !ok {
		return false
	}
	_, ok = ops[operation]
	return ok
}

// RequiredParams returns the required parameter names for an operation.
// Unknown pairs return nil.
func RequiredParams(service, operation string) []string {
	ops, ok := catalog[service]
	if !ok {
		return nil
	}
	op, ok := ops[operation]
	if !ok {
		return nil
	}
	return op.Required
}

// Services returns the registered service names, sorted.
func Services() []string {
	names := make([]string, 0, len(catalog))
	for name := range catalog {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Operations returns the registered operation names for a service, sorted.
func Operations(service string) []string {
	ops, ok := catalog[service]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(ops))
	for name := range ops {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks that a step's (service, operation) pair is registered and
// that every required parameter is present. Unknown pairs produce an error
// naming the closest valid alternative so the caller can guide a retry.
func Validate(step db.Step) error {
	ops, ok := catalog[step.Service]
	if !ok {
		return fmt.Errorf("unknown service %q (valid services: %s)",
			step.Service, strings.Join(Services(), ", "))
	}
	op, ok := ops[step.Operation]
	if !ok {
		suggestion := closest(step.Operation, Operations(step.Service))
		return fmt.Errorf("unknown operation %q for service %q (did you mean %q? valid operations: %s)",
			step.Operation, step.Service, suggestion, strings.Join(Operations(step.Service), ", "))
	}
	var missing []string
	for _, name := range op.Required {
		if _, present := step.Params[name]; !present {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%s.%s: missing required parameters: %s",
			step.Service, step.Operation, strings.Join(missing, ", "))
	}
	return nil
}

// Vocabulary renders the catalog as text for the plan translator's prompt.
func Vocabulary() string {
	var b strings.Builder
	for _, service := range Services() {
		for _, operation := range Operations(service) {
			op := catalog[service][operation]
			fmt.Fprintf(&b, "- %s.%s", service, operation)
			if len(op.Required) > 0 {
				fmt.Fprintf(&b, " (required: %s)", strings.Join(op.Required, ", "))
			}
			if len(op.Optional) > 0 {
				fmt.Fprintf(&b, " (optional: %s)", strings.Join(op.Optional, ", "))
			}
			fmt.Fprintf(&b, ": %s\n", op.Description)
		}
	}
	return b.String()
}

// closest picks the candidate with the smallest edit distance to name.
func closest(name string, candidates []string) string {
	best := ""
	bestDist := -1
	for _, c := range candidates {
		d := editDistance(strings.ToLower(name), c)
		if bestDist < 0 || d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}

func editDistance(a, b string) int {
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}
