package notify

import (
	"fmt"
	"strings"
	"time"

	"matchbell/internal/model"
)

// Imminent window bounds, inclusive on both edges. A match 45 minutes out and
// one 75 minutes out both alert; 44 and 76 do not.
const (
	WindowLower = 45 * time.Minute
	WindowUpper = 75 * time.Minute
)

// ImminentMatches filters scheduled matches whose start lies within the alert
// window relative to now.
func ImminentMatches(matches []model.Match, now time.Time) []model.Match {
	var out []model.Match
	for _, m := range matches {
		if m.Status != model.StatusScheduled {
			continue
		}
		until := m.ScheduledTime.Sub(now)
		if until >= WindowLower && until <= WindowUpper {
			out = append(out, m)
		}
	}
	return out
}

// RenderAlert builds the HTML alert text shared by first delivery and retry.
// Times render in loc; minutes is rounded down to whole minutes.
func RenderAlert(m model.Match, now time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	minutes := int(m.ScheduledTime.Sub(now).Minutes())

	var b strings.Builder
	b.WriteString("🚨 <b>Match Alert!</b>\n\n")
	fmt.Fprintf(&b, "<b>%s vs %s</b>\n", htmlEscape(m.Team1.Name), htmlEscape(m.Team2.Name))
	fmt.Fprintf(&b, "🏆 %s (%s)\n", htmlEscape(m.Tournament), m.Format)
	fmt.Fprintf(&b, "⏰ %s", m.ScheduledTime.In(loc).Format("15:04 MST, Jan 2"))
	if minutes > 0 {
		fmt.Fprintf(&b, " (in %d min)", minutes)
	}
	b.WriteString("\n")
	if m.StreamURL != "" {
		fmt.Fprintf(&b, "📺 <a href=\"%s\">Watch live</a>\n", m.StreamURL)
	}
	return b.String()
}

func htmlEscape(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	return r.Replace(s)
}
