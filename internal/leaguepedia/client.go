// Package leaguepedia adapts the Leaguepedia cargo-query API into Match and
// Team entities. Fetch operations degrade gracefully: primary query, then a
// broader top-league fallback, then a deterministic synthetic dataset, so the
// downstream detection pipeline always has candidates and never sees an error.
package leaguepedia

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"time"

	"matchbell/internal/httpx"
	"matchbell/internal/model"
	"matchbell/pkg/logx"
)

const (
	cargoTimeLayout = "2006-01-02 15:04:05"
	primaryLimit    = "100"
	fallbackLimit   = "50"
	matchFields     = "Team1,Team2,DateTime_UTC,OverviewPage,BestOf,Stream,Winner"
)

type Config struct {
	APIURL    string
	UserAgent string
	Timeout   time.Duration
	// MaxRetries is passed to the underlying resilient client.
	MaxRetries int
	// Transport overrides the HTTP round tripper. Tests inject mocks here.
	Transport http.RoundTripper
}

type Client struct {
	http      *httpx.Client
	apiURL    string
	userAgent string
	log       logx.Logger

	// now is swapped out in tests.
	now func() time.Time
}

func New(cfg Config, log logx.Logger) *Client {
	if cfg.APIURL == "" {
		cfg.APIURL = "https://lol.fandom.com/api.php"
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "matchbell/1.0"
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Client{
		http: httpx.New(httpx.Config{
			MaxRetries: cfg.MaxRetries,
			Timeout:    cfg.Timeout,
			Transport:  cfg.Transport,
		}, log),
		apiURL:    cfg.APIURL,
		userAgent: cfg.UserAgent,
		log:       log,
		now:       time.Now,
	}
}

// FetchUpcoming returns matches scheduled within [now, now+days], ordered by
// start time ascending. It never returns an error: query failures fall back
// to a broader league query and finally to synthetic placeholder data.
func (c *Client) FetchUpcoming(ctx context.Context, days int) []model.Match {
	if days <= 0 {
		days = 2
	}
	now := c.now().UTC()
	end := now.Add(time.Duration(days) * 24 * time.Hour)

	where := fmt.Sprintf(
		`DateTime_UTC >= "%s" AND DateTime_UTC <= "%s" AND Team1 != "TBD" AND Team2 != "TBD"`,
		now.Format(cargoTimeLayout), end.Format(cargoTimeLayout),
	)
	rows, err := c.cargoQuery(ctx, url.Values{
		"tables":   {"MatchSchedule"},
		"fields":   {matchFields},
		"where":    {where},
		"order_by": {"DateTime_UTC ASC"},
		"limit":    {primaryLimit},
	})
	if err != nil {
		c.log.Warn("primary schedule query failed", logx.Err(err))
		return c.fetchFallback(ctx, now, end)
	}

	matches := parseMatchRows(rows, c.log)
	if len(matches) == 0 {
		c.log.Warn("primary schedule query returned no usable matches")
		return c.fetchFallback(ctx, now, end)
	}
	c.log.Info("fetched upcoming matches", logx.Int("count", len(matches)))
	return matches
}

// fetchFallback queries the top-tier leagues without a date bound and filters
// client-side to future matches.
func (c *Client) fetchFallback(ctx context.Context, now, end time.Time) []model.Match {
	rows, err := c.cargoQuery(ctx, url.Values{
		"tables": {"MatchSchedule"},
		"fields": {matchFields},
		"where": {`(OverviewPage LIKE "%LCK%" OR OverviewPage LIKE "%LPL%" OR OverviewPage LIKE "%LEC%"` +
			` OR OverviewPage LIKE "%LCS%" OR OverviewPage LIKE "%Worlds%" OR OverviewPage LIKE "%MSI%")` +
			` AND Team1 != "TBD" AND Team2 != "TBD"`},
		"order_by": {"DateTime_UTC DESC"},
		"limit":    {fallbackLimit},
	})
	if err != nil {
		c.log.Warn("fallback schedule query failed", logx.Err(err))
		return c.syntheticMatches(now, end)
	}

	all := parseMatchRows(rows, c.log)
	matches := all[:0]
	for _, m := range all {
		if m.ScheduledTime.After(now) {
			matches = append(matches, m)
		}
	}
	if len(matches) == 0 {
		c.log.Warn("fallback schedule query returned no future matches")
		return c.syntheticMatches(now, end)
	}
	sort.Slice(matches, func(i, j int) bool {
		return matches[i].ScheduledTime.Before(matches[j].ScheduledTime)
	})
	c.log.Info("fetched upcoming matches via fallback query", logx.Int("count", len(matches)))
	return matches
}

// TeamRoster returns the known team list, deduplicated by name. On query
// failure it returns the static default roster.
func (c *Client) TeamRoster(ctx context.Context) []model.Team {
	rows, err := c.cargoQuery(ctx, url.Values{
		"tables":   {"Teams"},
		"fields":   {"Name,Region,League,OverviewPage"},
		"where":    {`IsLowercase != "Yes"`},
		"order_by": {"Region,Name"},
		"limit":    {"500"},
	})
	if err != nil {
		c.log.Warn("team roster query failed, using defaults", logx.Err(err))
		return defaultTeams()
	}

	seen := make(map[string]bool)
	var teams []model.Team
	for _, row := range rows {
		name := row.Name
		if name == "" || seen[name] {
			continue
		}
		teams = append(teams, model.Team{
			ID:     teamID(name),
			Name:   name,
			Region: row.Region,
			League: row.League,
		})
		seen[name] = true
	}
	if len(teams) == 0 {
		c.log.Warn("team roster query returned no teams, using defaults")
		return defaultTeams()
	}
	// Merge in the defaults so the well-known teams are always selectable.
	for _, t := range defaultTeams() {
		if !seen[t.Name] {
			teams = append(teams, t)
			seen[t.Name] = true
		}
	}
	c.log.Info("fetched team roster", logx.Int("count", len(teams)))
	return teams
}

// MatchDetails looks up a single match by its provider game id. Absent
// matches yield (nil, nil).
func (c *Client) MatchDetails(ctx context.Context, matchID string) (*model.Match, error) {
	rows, err := c.cargoQuery(ctx, url.Values{
		"tables":  {"MatchSchedule=MS,Teams=T1,Teams=T2"},
		"join_on": {"MS.Team1=T1.OverviewPage,MS.Team2=T2.OverviewPage"},
		"fields":  {"MS.Team1,MS.Team2,MS.DateTime_UTC,MS.OverviewPage,MS.BestOf,MS.Stream,MS.Winner"},
		"where":   {fmt.Sprintf("MS.UniqueGame=%q", matchID)},
		"limit":   {"1"},
	})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	m, err := parseMatchRow(rows[0])
	if err != nil {
		return nil, err
	}
	return m, nil
}

// ValidateConnection performs a cheap siteinfo probe.
func (c *Client) ValidateConnection(ctx context.Context) bool {
	req, err := c.newRequest(ctx, url.Values{
		"action": {"query"},
		"format": {"json"},
		"meta":   {"siteinfo"},
		"siprop": {"general"},
	})
	if err != nil {
		return false
	}
	resp, err := c.http.Do(ctx, req)
	if err != nil {
		c.log.Warn("connection probe failed", logx.Err(err))
		return false
	}
	defer resp.Body.Close()
	var body struct {
		Query struct {
			General map[string]any `json:"general"`
		} `json:"query"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false
	}
	return len(body.Query.General) > 0
}

func (c *Client) cargoQuery(ctx context.Context, params url.Values) ([]cargoRow, error) {
	params.Set("action", "cargoquery")
	params.Set("format", "json")

	req, err := c.newRequest(ctx, params)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var body cargoResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode cargo response: %w", err)
	}
	if body.Error != nil {
		return nil, fmt.Errorf("cargo query error: %s", body.Error.Info)
	}

	rows := make([]cargoRow, 0, len(body.CargoQuery))
	for _, item := range body.CargoQuery {
		rows = append(rows, item.Title)
	}
	return rows, nil
}

func (c *Client) newRequest(ctx context.Context, params url.Values) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)
	return req, nil
}
