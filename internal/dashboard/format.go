// Package dashboard shapes CS activity and inquiry data for display.
package dashboard

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/dustin/go-humanize"

	"leviosa/internal/cs"
)

// ActivityPoint is one chart point built from an activity event.
type ActivityPoint struct {
	Time       string `json:"time"`
	Fetched    int    `json:"fetched"`
	AutoPosted int    `json:"autoPosted"`
}

var layouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTimestamp parses the backend's ISO-8601 forms. Timestamps without a
// zone are read in loc.
func ParseTimestamp(value string, loc *time.Location) (time.Time, bool) {
	if value == "" {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.Local
	}
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func intField(data map[string]any, key string) int {
	switch v := data[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return 0
}

// FormatActivityData orders events oldest first and turns each into a chart
// point labelled with its clock time in loc.
func FormatActivityData(items []cs.ActivityItem, loc *time.Location) []ActivityPoint {
	if len(items) == 0 {
		return []ActivityPoint{}
	}
	if loc == nil {
		loc = time.Local
	}

	type stamped struct {
		item cs.ActivityItem
		at   time.Time
	}
	sorted := make([]stamped, len(items))
	for i, it := range items {
		at, _ := ParseTimestamp(it.CreatedAt, loc)
		sorted[i] = stamped{it, at}
	}
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].at.Before(sorted[j].at) })

	points := make([]ActivityPoint, 0, len(sorted))
	for _, s := range sorted {
		points = append(points, ActivityPoint{
			Time:       s.at.In(loc).Format("3:04 PM"),
			Fetched:    intField(s.item.EventData, "total_fetched"),
			AutoPosted: intField(s.item.EventData, "auto_posted"),
		})
	}
	return points
}

// FormatTimeAgo renders a compact age such as "5m ago".
func FormatTimeAgo(value string, now time.Time) string {
	then, ok := ParseTimestamp(value, now.Location())
	if !ok {
		return "just now"
	}
	sec := int(now.Sub(then) / time.Second)
	if sec < 60 {
		return "just now"
	}
	min := sec / 60
	if min < 60 {
		return fmt.Sprintf("%dm ago", min)
	}
	hr := min / 60
	if hr < 24 {
		return fmt.Sprintf("%dh ago", hr)
	}
	return fmt.Sprintf("%dd ago", hr/24)
}

// FormatDateTime renders "Jan 2, 2006 15:04", or "-" for missing values.
func FormatDateTime(value string, loc *time.Location) string {
	t, ok := ParseTimestamp(value, loc)
	if !ok {
		return "-"
	}
	if loc != nil {
		t = t.In(loc)
	}
	return t.Format("Jan 2, 2006 15:04")
}

// FormatRelativeTime renders a human distance such as "3 hours ago".
func FormatRelativeTime(value string, now time.Time) string {
	t, ok := ParseTimestamp(value, now.Location())
	if !ok {
		return "Unknown time"
	}
	return humanize.RelTime(t, now, "ago", "from now")
}

// FormatPercentage renders a 0..1 ratio as a whole percent, or "-" when nil.
func FormatPercentage(value *float64) string {
	if value == nil {
		return "-"
	}
	return fmt.Sprintf("%d%%", int(math.Floor(*value*100+0.5)))
}

// DefaultTruncate is the default display width for TruncateText.
const DefaultTruncate = 90

// TruncateText shortens value to maxLength runes, ending with an ellipsis.
func TruncateText(value string, maxLength int) string {
	if maxLength <= 0 {
		maxLength = DefaultTruncate
	}
	runes := []rune(value)
	if len(runes) <= maxLength {
		return value
	}
	return string(runes[:maxLength-1]) + "…"
}
