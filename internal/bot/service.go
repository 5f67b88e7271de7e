// Package bot is the interactive Telegram command surface: subscribers
// manage their team lists and inspect the pipeline over long polling.
// Outbound alerts do not go through this package; they use the transport in
// internal/telegram so delivery failures stay classified per attempt.
package bot

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	tele "gopkg.in/telebot.v4"

	"matchbell/internal/model"
	"matchbell/internal/notify"
	"matchbell/internal/scheduler"
	"matchbell/internal/storage"
	"matchbell/pkg/logx"
)

type Config struct {
	Token       string
	PollTimeout time.Duration
	// Location for rendering match times in /matches.
	Location *time.Location
}

// RosterSource lists the known teams for /teams.
type RosterSource interface {
	TeamRoster(ctx context.Context) []model.Team
}

// TestSender exercises the alert delivery path for /test.
type TestSender interface {
	SendTest(ctx context.Context, recipient string) error
}

type Deps struct {
	Store     storage.Store
	Roster    RosterSource
	Transport TestSender
	Sched     *scheduler.Service
}

type Service struct {
	cfg  Config
	deps Deps
	log  logx.Logger
	bot  *tele.Bot

	runMu   sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func New(cfg Config, deps Deps, log logx.Logger) (*Service, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("bot: telegram token is empty")
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 10 * time.Second
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: cfg.PollTimeout},
	})
	if err != nil {
		return nil, err
	}
	return &Service{cfg: cfg, deps: deps, log: log, bot: b}, nil
}

// Start registers the command handlers and begins long polling. Idempotent.
func (s *Service) Start(ctx context.Context) error {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.running {
		return nil
	}
	s.running = true
	rctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.registerHandlers(rctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		go func() {
			<-rctx.Done()
			s.bot.Stop()
		}()
		s.log.Info("bot polling started")
		s.bot.Start()
		s.log.Info("bot polling stopped")
	}()
	return nil
}

// Stop halts polling and waits for the poll loop to return. Idempotent.
func (s *Service) Stop(ctx context.Context) {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if !s.running {
		return
	}
	s.running = false
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.log.Warn("bot stop timed out")
	}
}

func (s *Service) registerHandlers(ctx context.Context) {
	s.bot.Handle("/start", func(c tele.Context) error { return s.handleStart(ctx, c) })
	s.bot.Handle("/subscribe", func(c tele.Context) error { return s.handleSubscribe(ctx, c) })
	s.bot.Handle("/unsubscribe", func(c tele.Context) error { return s.handleUnsubscribe(ctx, c) })
	s.bot.Handle("/teams", func(c tele.Context) error { return s.handleTeams(ctx, c) })
	s.bot.Handle("/mysubs", func(c tele.Context) error { return s.handleMySubs(ctx, c) })
	s.bot.Handle("/matches", func(c tele.Context) error { return s.handleMatches(ctx, c) })
	s.bot.Handle("/test", func(c tele.Context) error { return s.handleTest(ctx, c) })
	s.bot.Handle("/stop", func(c tele.Context) error { return s.handleStop(ctx, c) })
	s.bot.Handle("/status", func(c tele.Context) error { return s.handleStatus(c) })
}

func senderID(c tele.Context) string {
	if c.Sender() == nil {
		return ""
	}
	return strconv.FormatInt(c.Sender().ID, 10)
}

func senderUsername(c tele.Context) string {
	if c.Sender() == nil {
		return ""
	}
	return c.Sender().Username
}

// loadOrCreate fetches the sender's subscription, creating a fresh active row
// when none exists yet.
func (s *Service) loadOrCreate(ctx context.Context, c tele.Context) (*model.Subscription, error) {
	userID := senderID(c)
	if userID == "" {
		return nil, errors.New("message has no sender")
	}
	sub, err := s.deps.Store.GetSubscription(ctx, userID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		fresh := model.NewSubscription(userID, senderUsername(c))
		sub = &fresh
	}
	return sub, nil
}

func (s *Service) handleStart(ctx context.Context, c tele.Context) error {
	sub, err := s.loadOrCreate(ctx, c)
	if err != nil {
		return s.replyErr(c, err)
	}
	sub.Active = true
	sub.Username = senderUsername(c)
	sub.UpdatedAt = time.Now()
	if err := s.deps.Store.UpsertSubscription(ctx, *sub); err != nil {
		return s.replyErr(c, err)
	}
	return c.Send("Welcome to matchbell! Use /subscribe <team> to get alerts "+
		"before your team's matches start.\n\n"+
		"/teams lists the known teams, /mysubs shows your picks.", tele.ModeHTML)
}

func (s *Service) handleSubscribe(ctx context.Context, c tele.Context) error {
	team := strings.TrimSpace(c.Message().Payload)
	if team == "" {
		return c.Send("Usage: /subscribe <team name>")
	}
	sub, err := s.loadOrCreate(ctx, c)
	if err != nil {
		return s.replyErr(c, err)
	}
	if err := sub.AddTeam(team); err != nil {
		return c.Send("Cannot subscribe: " + err.Error())
	}
	sub.Active = true
	if err := s.deps.Store.UpsertSubscription(ctx, *sub); err != nil {
		return s.replyErr(c, err)
	}
	return c.Send(fmt.Sprintf("Subscribed to %s (%d/%d teams).",
		team, len(sub.Teams), model.MaxSubscribedTeams))
}

func (s *Service) handleUnsubscribe(ctx context.Context, c tele.Context) error {
	team := strings.TrimSpace(c.Message().Payload)
	if team == "" {
		return c.Send("Usage: /unsubscribe <team name>")
	}
	sub, err := s.loadOrCreate(ctx, c)
	if err != nil {
		return s.replyErr(c, err)
	}
	if !sub.RemoveTeam(team) {
		return c.Send(fmt.Sprintf("You are not subscribed to %s.", team))
	}
	if err := s.deps.Store.UpsertSubscription(ctx, *sub); err != nil {
		return s.replyErr(c, err)
	}
	return c.Send(fmt.Sprintf("Unsubscribed from %s.", team))
}

func (s *Service) handleTeams(ctx context.Context, c tele.Context) error {
	teams := s.deps.Roster.TeamRoster(ctx)
	byLeague := make(map[string][]string)
	for _, t := range teams {
		byLeague[t.League] = append(byLeague[t.League], t.Name)
	}
	leagues := make([]string, 0, len(byLeague))
	for l := range byLeague {
		leagues = append(leagues, l)
	}
	sort.Strings(leagues)

	var b strings.Builder
	b.WriteString("<b>Known teams</b>\n")
	for _, l := range leagues {
		names := byLeague[l]
		sort.Strings(names)
		fmt.Fprintf(&b, "\n<b>%s</b>: %s\n", l, strings.Join(names, ", "))
	}
	return c.Send(b.String(), tele.ModeHTML)
}

func (s *Service) handleMySubs(ctx context.Context, c tele.Context) error {
	sub, err := s.loadOrCreate(ctx, c)
	if err != nil {
		return s.replyErr(c, err)
	}
	if len(sub.Teams) == 0 {
		return c.Send("No subscriptions yet. Try /subscribe <team name>.")
	}
	state := "active"
	if !sub.Active {
		state = "paused (send /start to resume)"
	}
	return c.Send(fmt.Sprintf("Your teams (%s):\n%s",
		state, strings.Join(sub.Teams, "\n")))
}

func (s *Service) handleMatches(ctx context.Context, c tele.Context) error {
	matches, err := s.deps.Store.ListCachedMatches(ctx)
	if err != nil {
		return s.replyErr(c, err)
	}
	now := time.Now()
	var b strings.Builder
	b.WriteString("<b>Upcoming matches</b>\n")
	shown := 0
	for _, m := range matches {
		if m.Status != model.StatusScheduled || m.ScheduledTime.Before(now) {
			continue
		}
		fmt.Fprintf(&b, "\n%s vs %s\n%s, %s (%s)\n",
			m.Team1.Name, m.Team2.Name, m.Tournament,
			m.ScheduledTime.In(s.cfg.Location).Format("Mon 15:04 MST"), m.Format)
		shown++
		if shown >= 10 {
			break
		}
	}
	if shown == 0 {
		return c.Send("No upcoming matches in the cache yet.")
	}
	return c.Send(b.String(), tele.ModeHTML)
}

func (s *Service) handleTest(ctx context.Context, c tele.Context) error {
	if err := s.deps.Transport.SendTest(ctx, senderID(c)); err != nil {
		return c.Send("Test delivery failed: " + err.Error())
	}
	// The transport already delivered the test message; nothing more to say.
	return nil
}

func (s *Service) handleStop(ctx context.Context, c tele.Context) error {
	userID := senderID(c)
	if userID == "" {
		return nil
	}
	if err := s.deps.Store.DeactivateSubscription(ctx, userID); err != nil {
		return s.replyErr(c, err)
	}
	return c.Send("Alerts paused. Your team list is kept; send /start to resume.")
}

func (s *Service) handleStatus(c tele.Context) error {
	if s.deps.Sched == nil {
		return c.Send("Scheduler is not running.")
	}
	var b strings.Builder
	b.WriteString("<b>Pipeline status</b>\n")
	for _, j := range s.deps.Sched.Status() {
		next := "n/a"
		if !j.Next.IsZero() {
			next = j.Next.In(s.cfg.Location).Format("15:04:05")
		}
		running := ""
		if j.Running {
			running = " (running)"
		}
		fmt.Fprintf(&b, "\n%s: every %s, next %s%s", j.Name, j.Every, next, running)
	}
	alertWindow := fmt.Sprintf("\n\nAlert window: %d-%d minutes before start.",
		int(notify.WindowLower.Minutes()), int(notify.WindowUpper.Minutes()))
	b.WriteString(alertWindow)
	return c.Send(b.String(), tele.ModeHTML)
}

func (s *Service) replyErr(c tele.Context, err error) error {
	s.log.Error("command failed", logx.String("cmd", c.Text()), logx.Err(err))
	return c.Send("Something went wrong, please try again later.")
}
