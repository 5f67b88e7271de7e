package notify

import (
	"strings"
	"testing"
	"time"

	"matchbell/internal/model"
)

func matchAt(id string, start time.Time) model.Match {
	return model.Match{
		ID:            id,
		Team1:         model.NewTeam("T1", "KR", "LCK"),
		Team2:         model.NewTeam("Gen.G", "KR", "LCK"),
		ScheduledTime: start,
		Tournament:    "LCK 2026 Summer",
		Format:        model.BestOf3,
		Status:        model.StatusScheduled,
		StreamURL:     "https://www.twitch.tv/lck",
	}
}

func TestImminentWindowBoundaries(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		minutes int
		want    bool
	}{
		{44, false},
		{45, true},
		{60, true},
		{75, true},
		{76, false},
		{-10, false},
	}
	for _, tt := range tests {
		m := matchAt("m", now.Add(time.Duration(tt.minutes)*time.Minute))
		got := ImminentMatches([]model.Match{m}, now)
		if (len(got) == 1) != tt.want {
			t.Fatalf("match %d minutes out: in window = %v, want %v",
				tt.minutes, len(got) == 1, tt.want)
		}
	}
}

func TestImminentSkipsNonScheduled(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	m := matchAt("m", now.Add(time.Hour))
	m.Status = model.StatusCompleted
	if got := ImminentMatches([]model.Match{m}, now); len(got) != 0 {
		t.Fatalf("completed match alerted: %v", got)
	}
}

func TestRenderAlertContents(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	m := matchAt("m", now.Add(time.Hour))

	msg := RenderAlert(m, now, time.UTC)
	for _, want := range []string{
		"T1 vs Gen.G",
		"LCK 2026 Summer",
		"BO3",
		"in 60 min",
		"https://www.twitch.tv/lck",
	} {
		if !strings.Contains(msg, want) {
			t.Fatalf("alert missing %q:\n%s", want, msg)
		}
	}
	if err := model.ValidateMessage(msg); err != nil {
		t.Fatalf("rendered alert invalid: %v", err)
	}
}

func TestRenderAlertEscapesMarkup(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	m := matchAt("m", now.Add(time.Hour))
	m.Tournament = "Cup <Finals> & More"

	msg := RenderAlert(m, now, time.UTC)
	if strings.Contains(msg, "<Finals>") {
		t.Fatal("tournament markup not escaped")
	}
	if !strings.Contains(msg, "&lt;Finals&gt; &amp; More") {
		t.Fatalf("expected escaped tournament in:\n%s", msg)
	}
}

func TestRenderAlertOmitsMissingStream(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	m := matchAt("m", now.Add(time.Hour))
	m.StreamURL = ""

	msg := RenderAlert(m, now, time.UTC)
	if strings.Contains(msg, "Watch live") {
		t.Fatal("stream line rendered without a URL")
	}
}
