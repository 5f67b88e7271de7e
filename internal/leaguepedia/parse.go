package leaguepedia

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"matchbell/internal/model"
	"matchbell/pkg/logx"
)

// cargoResponse is the typed envelope of an action=cargoquery call. Absent
// fields decode to zero values and are treated as "unknown", never as a
// record-level parse error.
type cargoResponse struct {
	CargoQuery []struct {
		Title cargoRow `json:"title"`
	} `json:"cargoquery"`
	Error *struct {
		Code string `json:"code"`
		Info string `json:"info"`
	} `json:"error"`
}

// cargoRow is the union of the fields requested by the schedule and roster
// queries. Cargo exposes DateTime_UTC under a key with a space.
type cargoRow struct {
	Team1        string `json:"Team1"`
	Team2        string `json:"Team2"`
	DateTimeUTC  string `json:"DateTime UTC"`
	OverviewPage string `json:"OverviewPage"`
	BestOf       string `json:"BestOf"`
	Stream       string `json:"Stream"`
	Winner       string `json:"Winner"`

	Name   string `json:"Name"`
	Region string `json:"Region"`
	League string `json:"League"`
}

const placeholderTeam = "TBD"

func parseMatchRows(rows []cargoRow, log logx.Logger) []model.Match {
	matches := make([]model.Match, 0, len(rows))
	for _, row := range rows {
		m, err := parseMatchRow(row)
		if err != nil {
			log.Debug("skipping schedule record", logx.Err(err))
			continue
		}
		matches = append(matches, *m)
	}
	return matches
}

func parseMatchRow(row cargoRow) (*model.Match, error) {
	if row.Team1 == "" || row.Team2 == "" {
		return nil, errors.New("record missing team name")
	}
	if row.Team1 == placeholderTeam || row.Team2 == placeholderTeam {
		return nil, errors.New("placeholder team")
	}
	if row.DateTimeUTC == "" {
		return nil, errors.New("record missing start time")
	}
	start, err := time.ParseInLocation(cargoTimeLayout, row.DateTimeUTC, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("bad start time %q: %w", row.DateTimeUTC, err)
	}

	league := leagueFromOverview(row.OverviewPage)
	region := regionForLeague(league)
	team1 := model.Team{ID: teamID(row.Team1), Name: row.Team1, Region: region, League: league}
	team2 := model.Team{ID: teamID(row.Team2), Name: row.Team2, Region: region, League: league}

	status := model.StatusScheduled
	if row.Winner != "" && row.Winner != "0" {
		status = model.StatusCompleted
	}

	m := &model.Match{
		ID:            matchID(row.Team1, row.Team2, start),
		Team1:         team1,
		Team2:         team2,
		ScheduledTime: start,
		Tournament:    tournamentFromOverview(row.OverviewPage),
		Format:        model.ParseBestOf(row.BestOf),
		Status:        status,
		StreamURL:     sanitizeStreamURL(row.Stream),
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// matchID is derived from the pairing and start time so repeated ingestion of
// the same record upserts rather than duplicates.
func matchID(team1, team2 string, start time.Time) string {
	id := fmt.Sprintf("%s_%s_%s", team1, team2, start.Format("20060102_1504"))
	id = strings.ReplaceAll(id, " ", "_")
	return strings.ReplaceAll(id, "/", "_")
}

func teamID(name string) string {
	return strings.ToLower(strings.ReplaceAll(name, " ", "_"))
}

// sanitizeStreamURL keeps absolute URLs, upgrades bare twitch.tv links, and
// drops anything else.
func sanitizeStreamURL(raw string) string {
	raw = strings.TrimSpace(raw)
	switch {
	case raw == "":
		return ""
	case strings.HasPrefix(raw, "http"):
		return raw
	case strings.Contains(raw, "twitch.tv"):
		return "https://www." + raw
	default:
		return ""
	}
}

func tournamentFromOverview(overview string) string {
	if overview == "" {
		return "Unknown Tournament"
	}
	parts := strings.Split(overview, "/")
	if len(parts) >= 2 {
		return parts[0] + " " + parts[1]
	}
	return parts[0]
}

func leagueFromOverview(overview string) string {
	if overview == "" {
		return "Unknown"
	}
	lower := strings.ToLower(overview)
	switch {
	case strings.Contains(lower, "lck"):
		return "LCK"
	case strings.Contains(lower, "lpl"):
		return "LPL"
	case strings.Contains(lower, "lec"):
		return "LEC"
	case strings.Contains(lower, "lcs"):
		return "LCS"
	case strings.Contains(lower, "msi"):
		return "MSI"
	case strings.Contains(lower, "worlds"), strings.Contains(lower, "world championship"):
		return "Worlds"
	case strings.Contains(lower, "academy"):
		return "Academy"
	default:
		if i := strings.IndexByte(overview, '/'); i > 0 {
			return overview[:i]
		}
		return overview
	}
}

var leagueRegions = map[string]string{
	"LCK":   "KR",
	"LPL":   "CN",
	"LEC":   "EU",
	"LCS":   "NA",
	"PCS":   "TW",
	"VCS":   "VN",
	"CBLOL": "BR",
	"LJL":   "JP",
	"LLA":   "LATAM",
	"TCL":   "TR",
	"LCO":   "OCE",
}

func regionForLeague(league string) string {
	if r, ok := leagueRegions[league]; ok {
		return r
	}
	return "Unknown"
}
