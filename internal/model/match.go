package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Team identifies one competing team. Immutable once constructed.
type Team struct {
	ID     string `json:"team_id"`
	Name   string `json:"name"`
	Region string `json:"region"`
	League string `json:"league"`
}

// NewTeam derives a stable team ID from the display name.
func NewTeam(name, region, league string) Team {
	return Team{
		ID:     strings.ToLower(strings.ReplaceAll(name, " ", "_")),
		Name:   name,
		Region: region,
		League: league,
	}
}

// BestOf is the series format (maximum number of games).
type BestOf int

const (
	BestOf1 BestOf = 1
	BestOf3 BestOf = 3
	BestOf5 BestOf = 5
)

func (b BestOf) String() string { return fmt.Sprintf("BO%d", int(b)) }

func (b BestOf) Valid() bool {
	return b == BestOf1 || b == BestOf3 || b == BestOf5
}

// ParseBestOf normalizes a raw best-of count. Absent or non-numeric input
// falls back to BO3.
func ParseBestOf(raw string) BestOf {
	switch strings.TrimSpace(raw) {
	case "1":
		return BestOf1
	case "5":
		return BestOf5
	default:
		return BestOf3
	}
}

type MatchStatus string

const (
	StatusScheduled MatchStatus = "scheduled"
	StatusLive      MatchStatus = "live"
	StatusCompleted MatchStatus = "completed"
)

// Match is one scheduled contest. Upserted by ID on every fetch cycle;
// never deleted, only superseded.
type Match struct {
	ID            string      `json:"match_id"`
	Team1         Team        `json:"team1"`
	Team2         Team        `json:"team2"`
	ScheduledTime time.Time   `json:"scheduled_time"`
	Tournament    string      `json:"tournament"`
	Format        BestOf      `json:"format"`
	Status        MatchStatus `json:"status"`
	StreamURL     string      `json:"stream_url,omitempty"`
}

func (m Match) String() string {
	return fmt.Sprintf("%s vs %s - %s", m.Team1.Name, m.Team2.Name, m.Tournament)
}

// HasTeam reports whether the given team name plays in this match.
func (m Match) HasTeam(name string) bool {
	return name == m.Team1.Name || name == m.Team2.Name
}

func (m Match) Validate() error {
	if strings.TrimSpace(m.ID) == "" {
		return errors.New("match id is empty")
	}
	if len(m.ID) > 100 {
		return errors.New("match id exceeds 100 characters")
	}
	if strings.TrimSpace(m.Tournament) == "" {
		return errors.New("tournament is empty")
	}
	if !m.Format.Valid() {
		return fmt.Errorf("invalid match format %q", m.Format)
	}
	switch m.Status {
	case StatusScheduled, StatusLive, StatusCompleted:
	default:
		return fmt.Errorf("invalid match status %q", m.Status)
	}
	if m.Team1.ID == m.Team2.ID {
		return errors.New("match teams must differ")
	}
	return nil
}
