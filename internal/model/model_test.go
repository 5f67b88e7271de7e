package model

import (
	"strings"
	"testing"
	"time"
)

func TestNotificationLifecycle(t *testing.T) {
	t.Parallel()
	rec := NewNotificationRecord("123456789", "T1_Gen.G_20260830_1700", "alert text")
	if rec.Status != NotifPending {
		t.Fatalf("new record status = %s, want pending", rec.Status)
	}
	if rec.ID == "" {
		t.Fatal("expected generated notification id")
	}

	rec.MarkFailed("recipient blocked the bot")
	if rec.Status != NotifFailed || rec.RetryCount != 1 {
		t.Fatalf("after failure: status=%s retries=%d", rec.Status, rec.RetryCount)
	}
	if rec.ErrorMessage == "" {
		t.Fatal("expected error message recorded")
	}

	rec.MarkSent()
	if rec.Status != NotifSent {
		t.Fatalf("after recovery: status=%s, want sent", rec.Status)
	}
	if rec.ErrorMessage != "" {
		t.Fatal("expected error message cleared on success")
	}
	if rec.RetryCount != 1 {
		t.Fatalf("retry count must survive recovery, got %d", rec.RetryCount)
	}
}

func TestNotificationCanRetry(t *testing.T) {
	t.Parallel()
	rec := NewNotificationRecord("123456789", "m1", "text")
	if rec.CanRetry(3) {
		t.Fatal("pending record must not be retryable")
	}
	rec.MarkFailed("timeout")
	if !rec.CanRetry(3) {
		t.Fatal("failed record under budget must be retryable")
	}
	rec.MarkFailed("timeout")
	rec.MarkFailed("timeout")
	if rec.CanRetry(3) {
		t.Fatalf("record with %d retries must be exhausted", rec.RetryCount)
	}
	rec.MarkSent()
	if rec.CanRetry(10) {
		t.Fatal("sent record must never be retryable")
	}
}

func TestSubscriptionAddRemove(t *testing.T) {
	t.Parallel()
	sub := NewSubscription("123456789", "fan")
	if !sub.Active {
		t.Fatal("new subscription must be active")
	}

	if err := sub.AddTeam("T1"); err != nil {
		t.Fatalf("AddTeam: %v", err)
	}
	if err := sub.AddTeam("T1"); err != nil {
		t.Fatalf("duplicate AddTeam must be a no-op, got %v", err)
	}
	if len(sub.Teams) != 1 {
		t.Fatalf("expected 1 team, got %d", len(sub.Teams))
	}

	if !sub.RemoveTeam("T1") {
		t.Fatal("RemoveTeam of present team must report true")
	}
	if sub.RemoveTeam("T1") {
		t.Fatal("RemoveTeam of absent team must report false")
	}
}

func TestSubscriptionTeamCap(t *testing.T) {
	t.Parallel()
	sub := NewSubscription("123456789", "")
	for i := 0; i < MaxSubscribedTeams; i++ {
		if err := sub.AddTeam("Team " + strings.Repeat("x", i+1)); err != nil {
			t.Fatalf("AddTeam %d: %v", i, err)
		}
	}
	if err := sub.AddTeam("One Too Many"); err == nil {
		t.Fatal("expected cap error at limit")
	}
}

func TestValidateUserID(t *testing.T) {
	t.Parallel()
	valid := []string{"12345", "123456789", "123456789012345"}
	for _, id := range valid {
		if err := ValidateUserID(id); err != nil {
			t.Fatalf("ValidateUserID(%q): %v", id, err)
		}
	}
	invalid := []string{"", "0", "-5", "abc", "1234", "1234567890123456", "12 345"}
	for _, id := range invalid {
		if err := ValidateUserID(id); err == nil {
			t.Fatalf("ValidateUserID(%q) accepted", id)
		}
	}
}

func TestValidateTeamName(t *testing.T) {
	t.Parallel()
	valid := []string{"T1", "Gen.G", "한화생명e스포츠", "Edward Gaming"}
	for _, name := range valid {
		if err := ValidateTeamName(name); err != nil {
			t.Fatalf("ValidateTeamName(%q): %v", name, err)
		}
	}
	invalid := []string{"", "  ", "<script>", "a|b", strings.Repeat("x", 51)}
	for _, name := range invalid {
		if err := ValidateTeamName(name); err == nil {
			t.Fatalf("ValidateTeamName(%q) accepted", name)
		}
	}
	// 50 runes of multibyte text is still within the limit.
	if err := ValidateTeamName(strings.Repeat("한", 50)); err != nil {
		t.Fatalf("50-rune name rejected: %v", err)
	}
}

func TestValidateMessageLength(t *testing.T) {
	t.Parallel()
	if err := ValidateMessage(strings.Repeat("a", MaxMessageLength)); err != nil {
		t.Fatalf("message at limit rejected: %v", err)
	}
	if err := ValidateMessage(strings.Repeat("a", MaxMessageLength+1)); err == nil {
		t.Fatal("message over limit accepted")
	}
	if err := ValidateMessage("   "); err == nil {
		t.Fatal("blank message accepted")
	}
}

func TestParseBestOf(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw  string
		want BestOf
	}{
		{"1", BestOf1},
		{"3", BestOf3},
		{"5", BestOf5},
		{"", BestOf3},
		{"7", BestOf3},
		{"junk", BestOf3},
	}
	for _, tt := range tests {
		if got := ParseBestOf(tt.raw); got != tt.want {
			t.Fatalf("ParseBestOf(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
	if BestOf5.String() != "BO5" {
		t.Fatalf("BestOf5.String() = %s", BestOf5.String())
	}
}

func TestMatchValidate(t *testing.T) {
	t.Parallel()
	m := Match{
		ID:            "T1_Gen.G_20260830_1700",
		Team1:         NewTeam("T1", "KR", "LCK"),
		Team2:         NewTeam("Gen.G", "KR", "LCK"),
		ScheduledTime: time.Now(),
		Tournament:    "LCK 2026 Summer",
		Format:        BestOf3,
		Status:        StatusScheduled,
	}
	if err := m.Validate(); err != nil {
		t.Fatalf("valid match rejected: %v", err)
	}

	same := m
	same.Team2 = same.Team1
	if err := same.Validate(); err == nil {
		t.Fatal("match with identical teams accepted")
	}

	noTournament := m
	noTournament.Tournament = " "
	if err := noTournament.Validate(); err == nil {
		t.Fatal("match without tournament accepted")
	}
}

func TestMatchHasTeam(t *testing.T) {
	t.Parallel()
	m := Match{Team1: NewTeam("T1", "KR", "LCK"), Team2: NewTeam("Gen.G", "KR", "LCK")}
	if !m.HasTeam("T1") || !m.HasTeam("Gen.G") {
		t.Fatal("expected both teams to match")
	}
	if m.HasTeam("t1") {
		t.Fatal("team matching must be exact on display name")
	}
}
