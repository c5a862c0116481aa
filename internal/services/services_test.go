package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingProvider captures the prompts the llm service builds.
type recordingProvider struct {
	system string
	user   string
	answer string
	err    error
}

func (p *recordingProvider) Generate(_ context.Context, system, user string) (string, error) {
	p.system = system
	p.user = user
	return p.answer, p.err
}

func (p *recordingProvider) GenerateJSON(ctx context.Context, system, user string) (string, error) {
	return p.Generate(ctx, system, user)
}

func TestLLMService_Summarize(t *testing.T) {
	provider := &recordingProvider{answer: "three stories about Go"}
	svc := NewLLMService(provider)

	out, err := svc.Call(context.Background(), "summarize", map[string]any{
		"content": "long article text",
		"tone":    "casual",
	})
	require.NoError(t, err)

	result, ok := out.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "three stories about Go", result["content"])

	assert.Contains(t, provider.system, "Summarize")
	assert.Contains(t, provider.system, "casual")
	assert.Equal(t, "long article text", provider.user)
}

func TestLLMService_ComposeEmailWithKeywords(t *testing.T) {
	provider := &recordingProvider{answer: "Good morning!"}
	svc := NewLLMService(provider)

	_, err := svc.Call(context.Background(), "compose_email", map[string]any{
		"instructions": "write a morning brief",
		"content":      "calendar: standup at 9",
		"keywords":     []any{"golang", "distributed systems"},
	})
	require.NoError(t, err)

	assert.Contains(t, provider.system, "body of an email")
	assert.Contains(t, provider.system, "golang, distributed systems")
	assert.Contains(t, provider.user, "write a morning brief")
	assert.Contains(t, provider.user, "calendar: standup at 9")
}

func TestLLMService_ContentUnwrapsBeforePrompting(t *testing.T) {
	provider := &recordingProvider{answer: "ok"}
	svc := NewLLMService(provider)

	// Structured upstream output is flattened into prompt text
	_, err := svc.Call(context.Background(), "filter_and_rank", map[string]any{
		"content":  map[string]any{"content": "inner text"},
		"criteria": "about Go",
	})
	require.NoError(t, err)
	assert.Equal(t, "inner text", provider.user)
	assert.Contains(t, provider.system, "about Go")
}

func TestLLMService_UnknownOperation(t *testing.T) {
	svc := NewLLMService(&recordingProvider{})
	_, err := svc.Call(context.Background(), "translate", map[string]any{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown llm operation "translate"`)
}

func TestLLMService_ProviderError(t *testing.T) {
	svc := NewLLMService(&recordingProvider{err: errors.New("rate limited")})
	_, err := svc.Call(context.Background(), "summarize", map[string]any{"content": "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")
}

func TestMailService_Send(t *testing.T) {
	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte

	svc := NewMailService(SMTPConfig{
		Host: "smtp.example.com", Port: 587,
		Username: "bot", Password: "hunter2",
		From: "briefbot@example.com",
	})
	svc.send = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, msg
		return nil
	}

	out, err := svc.Call(context.Background(), "send", map[string]any{
		"to":      "alice@example.com, bob@example.com",
		"subject": "Morning brief",
		"body":    "Here is your brief.",
	})
	require.NoError(t, err)

	assert.Equal(t, "smtp.example.com:587", gotAddr)
	assert.Equal(t, "briefbot@example.com", gotFrom)
	assert.Equal(t, []string{"alice@example.com", "bob@example.com"}, gotTo)
	assert.Contains(t, string(gotMsg), "Subject: Morning brief")
	assert.Contains(t, string(gotMsg), "Here is your brief.")

	result := out.(map[string]any)
	assert.Equal(t, true, result["sent"])
}

func TestMailService_Unconfigured(t *testing.T) {
	svc := NewMailService(SMTPConfig{})
	_, err := svc.Call(context.Background(), "send", map[string]any{
		"to": "a@example.com", "subject": "s", "body": "b",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not configured")
}

func TestMailService_EmptyRecipient(t *testing.T) {
	svc := NewMailService(SMTPConfig{Host: "smtp.example.com", Port: 25, From: "x@example.com"})
	_, err := svc.Call(context.Background(), "send", map[string]any{
		"subject": "s", "body": "b",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty recipient")
}

func TestMailService_SendFailureSurfaces(t *testing.T) {
	svc := NewMailService(SMTPConfig{Host: "smtp.example.com", Port: 25, From: "x@example.com"})
	svc.send = func(string, smtp.Auth, string, []string, []byte) error {
		return errors.New("connection refused")
	}
	_, err := svc.Call(context.Background(), "send", map[string]any{
		"to": "a@example.com", "subject": "s", "body": "b",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestSearchService_TopStories(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/topstories.json", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `[101, 102, 103]`)
	})
	mux.HandleFunc("/item/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/item/101.json":
			fmt.Fprint(w, `{"id":101,"title":"Go 1.24 released","url":"https://go.dev","score":900,"by":"gopher"}`)
		case "/item/102.json":
			fmt.Fprint(w, `{"id":102,"title":"Show HN: briefbot","url":"https://example.com","score":50,"by":"alice"}`)
		default:
			http.NotFound(w, r)
		}
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	svc := NewSearchService()
	svc.client.SetBaseURL(server.URL)

	out, err := svc.Call(context.Background(), "hacker_news_top", map[string]any{"limit": 2})
	require.NoError(t, err)

	result := out.(map[string]any)
	stories := result["results"].([]any)
	require.Len(t, stories, 2)

	first := stories[0].(map[string]any)
	assert.Equal(t, "Go 1.24 released", first["title"])
	assert.Equal(t, 900, first["score"])
	assert.Equal(t, "gopher", first["by"])

	// A model-emitted negative limit falls back to the default instead of
	// slicing out of range
	out, err = svc.Call(context.Background(), "hacker_news_top", map[string]any{"limit": float64(-1)})
	require.NoError(t, err)
	stories = out.(map[string]any)["results"].([]any)
	assert.Len(t, stories, 2)
}

func TestSearchService_UnconfiguredOperations(t *testing.T) {
	svc := NewSearchService()
	for _, op := range []string{"search", "trending", "quotes", "fetch_content"} {
		_, err := svc.Call(context.Background(), op, map[string]any{})
		require.Error(t, err, op)
		assert.Contains(t, err.Error(), "external search provider")
	}
}

func TestLLMService_DescribesListContent(t *testing.T) {
	provider := &recordingProvider{answer: "ranked"}
	svc := NewLLMService(provider)

	_, err := svc.Call(context.Background(), "filter_and_rank", map[string]any{
		"content": map[string]any{"results": []any{
			map[string]any{"title": "Go 1.24", "url": "https://go.dev"},
			map[string]any{"title": "Show HN", "url": "https://example.com"},
		}},
		"criteria": "about Go",
	})
	require.NoError(t, err)

	assert.Contains(t, provider.system, "list of 2 search_result entries")
	assert.Contains(t, provider.user, "Go 1.24")
	// The wrapper object was flattened to the bare list
	assert.NotContains(t, provider.user, "results")
}

func TestUnconfiguredService(t *testing.T) {
	svc := NewUnconfiguredService("calendar", "a calendar provider")
	_, err := svc.Call(context.Background(), "list_events", map[string]any{"date": "today"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "calendar.list_events requires a calendar provider")
}

func TestIntParam(t *testing.T) {
	assert.Equal(t, 5, intParam(map[string]any{"limit": float64(5)}, "limit", 10))
	assert.Equal(t, 7, intParam(map[string]any{"limit": 7}, "limit", 10))
	assert.Equal(t, 3, intParam(map[string]any{"limit": "3"}, "limit", 10))
	assert.Equal(t, 10, intParam(map[string]any{}, "limit", 10))
	assert.Equal(t, 10, intParam(map[string]any{"limit": "abc"}, "limit", 10))
}
