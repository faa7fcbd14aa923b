package shared

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

var durationPattern = regexp.MustCompile(`(?i)^\s*(\d+(?:\.\d+)?)\s*(s|sec|secs|seconds?|m|min|mins|minutes?|h|hr|hrs|hours?)?\s*$`)

// DisplayDuration normalizes an item duration given either as seconds or as a
// free-form "N min" / "N hr" string. Unrecognised strings are returned trimmed.
func DisplayDuration(raw interface{}) string {
	switch v := raw.(type) {
	case nil:
		return ""
	case float64:
		return formatSeconds(v)
	case float32:
		return formatSeconds(float64(v))
	case int:
		return formatSeconds(float64(v))
	case int64:
		return formatSeconds(float64(v))
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return v.String()
		}
		return formatSeconds(f)
	case string:
		return displayDurationString(v)
	default:
		return fmt.Sprint(v)
	}
}

func displayDurationString(s string) string {
	m := durationPattern.FindStringSubmatch(s)
	if m == nil {
		return strings.TrimSpace(s)
	}
	n, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return strings.TrimSpace(s)
	}

	unit := strings.ToLower(m[2])
	switch {
	case unit == "" || strings.HasPrefix(unit, "s"):
		return formatSeconds(n)
	case strings.HasPrefix(unit, "h"):
		return formatSeconds(n * 3600)
	default:
		return formatSeconds(n * 60)
	}
}

func formatSeconds(secs float64) string {
	if secs <= 0 || math.IsNaN(secs) || math.IsInf(secs, 0) {
		return ""
	}
	if secs < 60 {
		return fmt.Sprintf("%d sec", int(math.Round(secs)))
	}

	minutes := int(math.Round(secs / 60))
	if minutes < 60 {
		return fmt.Sprintf("%d min", minutes)
	}
	hours, rest := minutes/60, minutes%60
	if rest == 0 {
		return fmt.Sprintf("%d hr", hours)
	}
	return fmt.Sprintf("%d hr %d min", hours, rest)
}
