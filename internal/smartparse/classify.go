package smartparse

// Kind tags a normalized list's semantic type for downstream formatting.
// Classification is heuristic and best effort; ambiguous or empty input
// classifies as unknown.
type Kind string

const (
	KindVideo        Kind = "video"
	KindEvent        Kind = "event"
	KindEmail        Kind = "email"
	KindSearchResult Kind = "search_result"
	KindGeneric      Kind = "generic"
	KindUnknown      Kind = "unknown"
)

// Classify inspects the first element's field names to tag the list.
func Classify(items []any) Kind {
	if len(items) == 0 {
		return KindUnknown
	}
	first, ok := items[0].(map[string]any)
	if !ok {
		return KindUnknown
	}

	has := func(names ...string) bool {
		for _, name := range names {
			if _, ok := first[name]; ok {
				return true
			}
		}
		return false
	}

	switch {
	case has("video_id", "videoId", "channel", "channel_title", "channelTitle"):
		return KindVideo
	case has("start", "start_time", "attendees", "organizer"):
		return KindEvent
	case has("subject") && has("from", "sender", "snippet", "body"):
		return KindEmail
	case has("url", "link") && has("title", "headline"):
		return KindSearchResult
	default:
		return KindGeneric
	}
}
