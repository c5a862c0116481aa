// Package template substitutes {{name}} placeholders in step parameters using
// the run-scoped context map. Resolution fails soft: placeholders with no
// matching context key are left untouched so later steps and auditors can
// detect unresolved references.
package template

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var (
	placeholderRe = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_]+)\s*\}\}`)
	identRe       = regexp.MustCompile(`^[A-Za-z0-9_]+$`)
)

// Resolve returns a copy of params with every {{name}} occurrence in
// string-valued parameters replaced by the stringified context value.
// Array values that reference bound context keys by name are expanded in
// place. All other values pass through unchanged.
func Resolve(params map[string]any, ctx map[string]any) map[string]any {
	if params == nil {
		return nil
	}
	resolved := make(map[string]any, len(params))
	for key, value := range params {
		switch v := value.(type) {
		case string:
			resolved[key] = resolveString(v, ctx)
		case []any:
			resolved[key] = resolveArray(v, ctx)
		default:
			resolved[key] = value
		}
	}
	return resolved
}

// References returns the set of context keys a parameter map refers to,
// either via {{name}} placeholders or by naming a key inside an array value.
func References(params map[string]any) map[string]bool {
	refs := make(map[string]bool)
	for _, value := range params {
		switch v := value.(type) {
		case string:
			for _, m := range placeholderRe.FindAllStringSubmatch(v, -1) {
				refs[m[1]] = true
			}
		case []any:
			for _, elem := range v {
				if s, ok := elem.(string); ok {
					if name, bare := bareName(s); bare {
						refs[name] = true
						continue
					}
					for _, m := range placeholderRe.FindAllStringSubmatch(s, -1) {
						refs[m[1]] = true
					}
				}
			}
		}
	}
	return refs
}

func resolveString(s string, ctx map[string]any) string {
	return placeholderRe.ReplaceAllStringFunc(s, func(match string) string {
		name := placeholderRe.FindStringSubmatch(match)[1]
		value, ok := ctx[name]
		if !ok {
			return match
		}
		return Stringify(value)
	})
}

func resolveArray(arr []any, ctx map[string]any) []any {
	out := make([]any, len(arr))
	for i, elem := range arr {
		s, ok := elem.(string)
		if !ok {
			out[i] = elem
			continue
		}
		if name, bare := bareName(s); bare {
			if value, ok := ctx[name]; ok {
				out[i] = value
				continue
			}
		}
		out[i] = resolveString(s, ctx)
	}
	return out
}

// bareName reports whether s is a single context key reference, either a
// plain identifier-looking name or a lone {{name}} placeholder.
func bareName(s string) (string, bool) {
	t := strings.TrimSpace(s)
	if m := placeholderRe.FindStringSubmatch(t); m != nil && m[0] == t {
		return m[1], true
	}
	if identRe.MatchString(t) {
		return t, true
	}
	return "", false
}

// Stringify converts a bound context value to its substitution text. A
// structure with a "content" field substitutes that field instead, since
// LLM-produced steps commonly wrap free text in such a wrapper.
func Stringify(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case map[string]any:
		if content, ok := v["content"]; ok {
			return Stringify(content)
		}
		return marshalJSON(v)
	case nil:
		return ""
	case float64, int, int64, bool:
		return fmt.Sprintf("%v", v)
	default:
		return marshalJSON(v)
	}
}

func marshalJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
