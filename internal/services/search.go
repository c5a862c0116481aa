package services

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

const hackerNewsBase = "https://hacker-news.firebaseio.com/v0"

// SearchService implements the search collaborator. hacker_news_top is served
// in-process against the public Hacker News API; the remaining operations
// need an external search provider and fail with a descriptive error until
// one is registered in this service's place.
type SearchService struct {
	client *resty.Client
}

// NewSearchService creates the search collaborator.
func NewSearchService() *SearchService {
	client := resty.New().
		SetBaseURL(hackerNewsBase).
		SetTimeout(15 * time.Second)
	return &SearchService{client: client}
}

// Call implements Service.
func (s *SearchService) Call(ctx context.Context, operation string, params map[string]any) (any, error) {
	switch operation {
	case "hacker_news_top":
		return s.topStories(ctx, intParam(params, "limit", 10))
	case "search", "trending", "quotes", "fetch_content":
		return nil, fmt.Errorf("search.%s requires an external search provider; none is configured", operation)
	default:
		return nil, fmt.Errorf("unknown search operation %q", operation)
	}
}

type hnItem struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
	URL   string `json:"url"`
	Score int    `json:"score"`
	By    string `json:"by"`
	Time  int64  `json:"time"`
}

func (s *SearchService) topStories(ctx context.Context, limit int) (any, error) {
	// Plans are model-generated; a zero or negative limit gets the default.
	if limit <= 0 {
		limit = 10
	}

	var ids []int64
	resp, err := s.client.R().
		SetContext(ctx).
		SetResult(&ids).
		Get("/topstories.json")
	if err != nil {
		return nil, fmt.Errorf("fetching top stories: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("fetching top stories: status %d", resp.StatusCode())
	}
	if limit > len(ids) {
		limit = len(ids)
	}

	results := make([]any, 0, limit)
	for _, id := range ids[:limit] {
		var item hnItem
		resp, err := s.client.R().
			SetContext(ctx).
			SetResult(&item).
			Get(fmt.Sprintf("/item/%d.json", id))
		if err != nil {
			return nil, fmt.Errorf("fetching story %d: %w", id, err)
		}
		if resp.IsError() || item.Title == "" {
			continue
		}
		results = append(results, map[string]any{
			"title": item.Title,
			"url":   item.URL,
			"score": item.Score,
			"by":    item.By,
		})
	}
	return map[string]any{"results": results}, nil
}

func intParam(params map[string]any, key string, fallback int) int {
	switch v := params[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case string:
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil {
			return n
		}
	}
	return fallback
}
