package template

import "time"

// Reserved context keys available to every run without any step producing
// them. Computed once per run in the task's configured timezone.
const (
	KeyCurrentDate      = "current_date"
	KeyCurrentDateShort = "current_date_short"
	KeyCurrentTime      = "current_time"
	KeyWeekday          = "weekday"
	KeyMonth            = "month"
	KeyYear             = "year"
	KeyYesterdayDate    = "yesterday_date"
	KeyYesterdayShort   = "yesterday_date_short"
	KeyYesterdayWeekday = "yesterday_weekday"
)

var reservedKeys = []string{
	KeyCurrentDate, KeyCurrentDateShort, KeyCurrentTime,
	KeyWeekday, KeyMonth, KeyYear,
	KeyYesterdayDate, KeyYesterdayShort, KeyYesterdayWeekday,
}

// ReservedKeys returns the built-in context key names. Output bindings must
// not collide with any of these.
func ReservedKeys() []string {
	keys := make([]string, len(reservedKeys))
	copy(keys, reservedKeys)
	return keys
}

// IsReserved reports whether name is a built-in context key.
func IsReserved(name string) bool {
	for _, key := range reservedKeys {
		if key == name {
			return true
		}
	}
	return false
}

// Builtins computes the reserved date/time context for a run.
func Builtins(now time.Time, loc *time.Location) map[string]any {
	local := now.In(loc)
	yesterday := local.AddDate(0, 0, -1)
	return map[string]any{
		KeyCurrentDate:      local.Format("Monday, January 2, 2006"),
		KeyCurrentDateShort: local.Format("2006-01-02"),
		KeyCurrentTime:      local.Format("15:04"),
		KeyWeekday:          local.Weekday().String(),
		KeyMonth:            local.Month().String(),
		KeyYear:             local.Format("2006"),
		KeyYesterdayDate:    yesterday.Format("Monday, January 2, 2006"),
		KeyYesterdayShort:   yesterday.Format("2006-01-02"),
		KeyYesterdayWeekday: yesterday.Weekday().String(),
	}
}
