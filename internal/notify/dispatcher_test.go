package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"matchbell/internal/model"
	"matchbell/internal/storage"
	"matchbell/pkg/logx"
)

// fakeTransport records sends and fails recipients listed in failFor.
type fakeTransport struct {
	mu      sync.Mutex
	sends   []string
	failFor map[string]error
}

func (f *fakeTransport) Send(ctx context.Context, recipient, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends = append(f.sends, recipient)
	if err, ok := f.failFor[recipient]; ok {
		return err
	}
	return nil
}

func (f *fakeTransport) sentTo() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sends...)
}

func testStore(t *testing.T) storage.Store {
	t.Helper()
	st, err := storage.Open(storage.Config{Path: ":memory:"}, logx.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func subscribe(t *testing.T, st storage.Store, userID string, teams ...string) {
	t.Helper()
	sub := model.NewSubscription(userID, "")
	for _, team := range teams {
		require.NoError(t, sub.AddTeam(team))
	}
	require.NoError(t, st.UpsertSubscription(context.Background(), sub))
}

func TestDispatchForMatchFanOut(t *testing.T) {
	t.Parallel()
	st := testStore(t)
	ft := &fakeTransport{}
	d := NewDispatcher(st, ft, Config{}, logx.Nop())

	subscribe(t, st, "111111111", "T1")
	subscribe(t, st, "222222222", "Gen.G", "Fnatic")
	subscribe(t, st, "333333333", "Cloud9")

	m := matchAt("m1", time.Now().Add(time.Hour))
	sent, failed, err := d.DispatchForMatch(context.Background(), m)
	require.NoError(t, err)
	require.Equal(t, 2, sent)
	require.Zero(t, failed)
	require.ElementsMatch(t, []string{"111111111", "222222222"}, ft.sentTo())

	recs, err := st.ListRecentNotifications(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	for _, rec := range recs {
		require.Equal(t, model.NotifSent, rec.Status)
		require.Equal(t, "m1", rec.MatchID)
	}
}

func TestDispatchOneFailureDoesNotBlockOthers(t *testing.T) {
	t.Parallel()
	st := testStore(t)
	ft := &fakeTransport{failFor: map[string]error{
		"111111111": errors.New("recipient blocked the bot"),
	}}
	d := NewDispatcher(st, ft, Config{}, logx.Nop())

	subscribe(t, st, "111111111", "T1")
	subscribe(t, st, "222222222", "T1")

	m := matchAt("m1", time.Now().Add(time.Hour))
	sent, failed, err := d.DispatchForMatch(context.Background(), m)
	require.NoError(t, err)
	require.Equal(t, 1, sent)
	require.Equal(t, 1, failed)
	require.Len(t, ft.sentTo(), 2)

	recs, err := st.ListRecentNotifications(context.Background(), 10)
	require.NoError(t, err)
	byUser := map[string]model.NotificationRecord{}
	for _, rec := range recs {
		byUser[rec.UserID] = rec
	}
	require.Equal(t, model.NotifFailed, byUser["111111111"].Status)
	require.Equal(t, 1, byUser["111111111"].RetryCount)
	require.Contains(t, byUser["111111111"].ErrorMessage, "blocked")
	require.Equal(t, model.NotifSent, byUser["222222222"].Status)
}

func TestDispatchSkipsInactiveSubscribers(t *testing.T) {
	t.Parallel()
	st := testStore(t)
	ft := &fakeTransport{}
	d := NewDispatcher(st, ft, Config{}, logx.Nop())

	subscribe(t, st, "111111111", "T1")
	require.NoError(t, st.DeactivateSubscription(context.Background(), "111111111"))

	m := matchAt("m1", time.Now().Add(time.Hour))
	sent, failed, err := d.DispatchForMatch(context.Background(), m)
	require.NoError(t, err)
	require.Zero(t, sent)
	require.Zero(t, failed)
	require.Empty(t, ft.sentTo())
}

func TestDispatchImminentUsesWindow(t *testing.T) {
	t.Parallel()
	st := testStore(t)
	ft := &fakeTransport{}
	d := NewDispatcher(st, ft, Config{}, logx.Nop())
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return now }

	subscribe(t, st, "111111111", "T1")
	_, err := st.UpsertMatches(context.Background(), []model.Match{
		matchAt("in-window", now.Add(60*time.Minute)),
		matchAt("too-soon", now.Add(30*time.Minute)),
		matchAt("too-far", now.Add(3*time.Hour)),
	})
	require.NoError(t, err)

	require.NoError(t, d.DispatchImminent(context.Background()))
	require.Equal(t, []string{"111111111"}, ft.sentTo())

	recs, err := st.ListRecentNotifications(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, "in-window", recs[0].MatchID)
}

// Detection has no memory across ticks: a match that stays inside the alert
// window for consecutive runs is dispatched again each time. Callers size the
// check interval against the window width accordingly.
func TestDispatchImminentRepeatsAcrossTicks(t *testing.T) {
	t.Parallel()
	st := testStore(t)
	ft := &fakeTransport{}
	d := NewDispatcher(st, ft, Config{}, logx.Nop())
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return now }

	subscribe(t, st, "111111111", "T1")
	_, err := st.UpsertMatches(context.Background(), []model.Match{
		matchAt("m1", now.Add(60*time.Minute)),
	})
	require.NoError(t, err)

	require.NoError(t, d.DispatchImminent(context.Background()))
	d.now = func() time.Time { return now.Add(5 * time.Minute) }
	require.NoError(t, d.DispatchImminent(context.Background()))

	require.Len(t, ft.sentTo(), 2)
}

func TestRetryFailedRecoversAndExhausts(t *testing.T) {
	t.Parallel()
	st := testStore(t)
	ctx := context.Background()
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	failing := model.NewNotificationRecord("111111111", "m1", "alert one")
	failing.MarkFailed("timeout")
	failing.SentAt = now.Add(-time.Hour)
	require.NoError(t, st.SaveNotification(ctx, failing))

	recovering := model.NewNotificationRecord("222222222", "m1", "alert two")
	recovering.MarkFailed("timeout")
	recovering.SentAt = now.Add(-2 * time.Hour)
	require.NoError(t, st.SaveNotification(ctx, recovering))

	stale := model.NewNotificationRecord("333333333", "m1", "alert three")
	stale.MarkFailed("timeout")
	stale.SentAt = now.Add(-30 * time.Hour)
	require.NoError(t, st.SaveNotification(ctx, stale))

	ft := &fakeTransport{failFor: map[string]error{
		"111111111": errors.New("still timing out"),
	}}
	c := NewCoordinator(st, ft, Config{MaxRetries: 3, RetryWindow: 24 * time.Hour}, logx.Nop())
	c.now = func() time.Time { return now }

	retried, recovered, err := c.RetryFailed(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, retried, "stale record must be excluded")
	require.Equal(t, 1, recovered)

	recs, err := st.ListRecentNotifications(ctx, 10)
	require.NoError(t, err)
	byUser := map[string]model.NotificationRecord{}
	for _, rec := range recs {
		byUser[rec.UserID] = rec
	}
	require.Equal(t, model.NotifFailed, byUser["111111111"].Status)
	require.Equal(t, 2, byUser["111111111"].RetryCount)
	require.Equal(t, model.NotifSent, byUser["222222222"].Status)
	require.Equal(t, model.NotifFailed, byUser["333333333"].Status)
}

func TestRetryFailedSendsStoredMessageVerbatim(t *testing.T) {
	t.Parallel()
	st := testStore(t)
	ctx := context.Background()

	rec := model.NewNotificationRecord("111111111", "m1", "the original alert text")
	rec.MarkFailed("timeout")
	require.NoError(t, st.SaveNotification(ctx, rec))

	var gotText string
	ft := &transportFunc{fn: func(ctx context.Context, recipient, text string) error {
		gotText = text
		return nil
	}}
	c := NewCoordinator(st, ft, Config{}, logx.Nop())

	_, _, err := c.RetryFailed(ctx)
	require.NoError(t, err)
	require.Equal(t, "the original alert text", gotText)
}

type transportFunc struct {
	fn func(ctx context.Context, recipient, text string) error
}

func (t *transportFunc) Send(ctx context.Context, recipient, text string) error {
	return t.fn(ctx, recipient, text)
}
