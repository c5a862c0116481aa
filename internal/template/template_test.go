package template

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve_Substitution(t *testing.T) {
	ctx := map[string]any{
		"name":  "Ada",
		"count": float64(3),
	}
	params := map[string]any{
		"greeting": "Hello {{name}}, you have {{count}} items",
		"number":   float64(42),
	}

	resolved := Resolve(params, ctx)

	assert.Equal(t, "Hello Ada, you have 3 items", resolved["greeting"])
	assert.Equal(t, float64(42), resolved["number"])
}

func TestResolve_IdempotentWithoutMatches(t *testing.T) {
	params := map[string]any{
		"body":  "Weather for {{city}} at {{time_of_day}}",
		"count": 7,
	}

	// No matching context keys: output equals input, placeholders intact
	resolved := Resolve(params, map[string]any{})
	assert.Equal(t, params["body"], resolved["body"])
	assert.Equal(t, params["count"], resolved["count"])

	again := Resolve(resolved, map[string]any{})
	assert.Equal(t, resolved, again)
}

func TestResolve_ContentWrapperUnwrapped(t *testing.T) {
	ctx := map[string]any{
		"summary": map[string]any{"content": "three headlines today"},
	}
	resolved := Resolve(map[string]any{"body": "Digest: {{summary}}"}, ctx)
	assert.Equal(t, "Digest: three headlines today", resolved["body"])
}

func TestResolve_StructureStringified(t *testing.T) {
	ctx := map[string]any{
		"events": map[string]any{"total": float64(2)},
	}
	resolved := Resolve(map[string]any{"body": "{{events}}"}, ctx)
	assert.JSONEq(t, `{"total":2}`, resolved["body"].(string))
}

func TestResolve_ArrayExpansion(t *testing.T) {
	ctx := map[string]any{
		"video_list": []any{"id1", "id2"},
	}
	params := map[string]any{
		"video_ids": []any{"video_list"},
		"mixed":     []any{"{{video_list}}", "literal"},
	}

	resolved := Resolve(params, ctx)

	require.IsType(t, []any{}, resolved["video_ids"])
	assert.Equal(t, []any{"id1", "id2"}, resolved["video_ids"].([]any)[0])

	mixed := resolved["mixed"].([]any)
	assert.Equal(t, []any{"id1", "id2"}, mixed[0])
	assert.Equal(t, "literal", mixed[1])
}

func TestReferences(t *testing.T) {
	params := map[string]any{
		"body":  "Top stories: {{stories}} and {{quote}}",
		"items": []any{"video_list"},
		"plain": 12,
	}

	refs := References(params)

	assert.True(t, refs["stories"])
	assert.True(t, refs["quote"])
	assert.True(t, refs["video_list"])
	assert.Len(t, refs, 3)
}

func TestBuiltins(t *testing.T) {
	loc, err := time.LoadLocation("America/Los_Angeles")
	require.NoError(t, err)

	// 2024-03-15 08:00 Pacific
	now := time.Date(2024, 3, 15, 15, 0, 0, 0, time.UTC)
	ctx := Builtins(now, loc)

	assert.Equal(t, "2024-03-15", ctx[KeyCurrentDateShort])
	assert.Equal(t, "Friday", ctx[KeyWeekday])
	assert.Equal(t, "2024-03-14", ctx[KeyYesterdayShort])
	assert.Equal(t, "Thursday", ctx[KeyYesterdayWeekday])
	assert.Equal(t, "March", ctx[KeyMonth])
	assert.Equal(t, "2024", ctx[KeyYear])
	assert.Equal(t, "08:00", ctx[KeyCurrentTime])

	for _, key := range ReservedKeys() {
		assert.Contains(t, ctx, key)
		assert.True(t, IsReserved(key))
	}
	assert.False(t, IsReserved("calendar_events"))
}
