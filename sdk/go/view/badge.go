package view

import (
	"strings"
	"time"
)

// Tone is the color family a badge renders with.
type Tone string

const (
	ToneNeutral Tone = "neutral"
	ToneInfo    Tone = "info"
	ToneSuccess Tone = "success"
	ToneWarning Tone = "warning"
	ToneDanger  Tone = "danger"
)

type Badge struct {
	Label string
	Tone  Tone
}

func TaskStatusBadge(status string) Badge {
	switch status {
	case "NOT_STARTED":
		return Badge{"Not started", ToneNeutral}
	case "OPEN":
		return Badge{"Open", ToneInfo}
	case "COMPLETED":
		return Badge{"Completed", ToneSuccess}
	case "CLOSED":
		return Badge{"Closed", ToneNeutral}
	}
	return Badge{humanize(status), ToneNeutral}
}

func ImportanceBadge(importance string) Badge {
	switch importance {
	case "HIGH":
		return Badge{"High", ToneDanger}
	case "MIDDLE":
		return Badge{"Middle", ToneWarning}
	case "LOW":
		return Badge{"Low", ToneInfo}
	}
	return Badge{humanize(importance), ToneNeutral}
}

// Window is where now falls relative to a task's schedule.
type Window string

const (
	Unscheduled Window = "unscheduled"
	Upcoming    Window = "upcoming"
	Active      Window = "active"
	Overdue     Window = "overdue"
)

// DateWindow classifies a schedule. Dates are RFC 3339 or YYYY-MM-DD; a
// date-only end covers the whole day. Unparseable bounds count as missing.
func DateWindow(start, end *string, now time.Time) Window {
	s, hasStart := parseBound(start, false)
	e, hasEnd := parseBound(end, true)
	switch {
	case !hasStart && !hasEnd:
		return Unscheduled
	case hasEnd && now.After(e):
		return Overdue
	case hasStart && now.Before(s):
		return Upcoming
	}
	return Active
}

func WindowBadge(w Window) Badge {
	switch w {
	case Upcoming:
		return Badge{"Upcoming", ToneInfo}
	case Active:
		return Badge{"Active", ToneSuccess}
	case Overdue:
		return Badge{"Overdue", ToneDanger}
	}
	return Badge{"Unscheduled", ToneNeutral}
}

func parseBound(v *string, endOfDay bool) (time.Time, bool) {
	if v == nil || strings.TrimSpace(*v) == "" {
		return time.Time{}, false
	}
	raw := strings.TrimSpace(*v)
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, true
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, false
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, true
}

// humanize turns SOME_VALUE into "Some value".
func humanize(s string) string {
	if s == "" {
		return "Unknown"
	}
	s = strings.ToLower(strings.ReplaceAll(s, "_", " "))
	return strings.ToUpper(s[:1]) + s[1:]
}
