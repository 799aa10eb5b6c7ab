package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pointsweep/internal/domain/model"
	"pointsweep/internal/domain/port/driven"
)

type memStore struct {
	data map[string]string
}

func newMemStore() *memStore {
	return &memStore{data: map[string]string{}}
}

func (s *memStore) ReadJSON(_ context.Context, namespace, account string, v any) (bool, error) {
	raw, ok := s.data[namespace+"/"+account]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal([]byte(raw), v)
}

func (s *memStore) WriteJSON(_ context.Context, namespace, account string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.data[namespace+"/"+account] = string(b)
	return nil
}

func (s *memStore) Delete(_ context.Context, namespace, account string) error {
	delete(s.data, namespace+"/"+account)
	return nil
}

type fakeSession struct {
	page   *fakePage
	closed bool
}

func (s *fakeSession) Page() driven.Page { return s.page }

func (s *fakeSession) NewPage(context.Context) (driven.Page, error) {
	return nil, errors.New("no extra tabs scripted")
}

func (s *fakeSession) Close(context.Context) error {
	s.closed = true
	return nil
}

type fakeFactory struct {
	sessions map[model.SessionMode][]*fakeSession
	calls    []model.SessionMode
}

func (f *fakeFactory) NewSession(_ context.Context, _ model.Account, mode model.SessionMode) (driven.Session, error) {
	f.calls = append(f.calls, mode)
	q := f.sessions[mode]
	if len(q) == 0 {
		return nil, fmt.Errorf("no scripted %s session", mode)
	}
	s := q[0]
	f.sessions[mode] = q[1:]
	return s, nil
}

type pipelineSpy struct {
	onRun func(mode model.SessionMode, token string)
	modes []model.SessionMode
	err   error
}

func (p *pipelineSpy) Run(_ context.Context, _ driven.Page, mode model.SessionMode, token string) error {
	p.modes = append(p.modes, mode)
	if p.onRun != nil {
		p.onRun(mode, token)
	}
	return p.err
}

type reporterSpy struct {
	results []model.RunResult
}

func (r *reporterSpy) Report(_ context.Context, result model.RunResult) error {
	r.results = append(r.results, result)
	return nil
}

// dashboardHTML renders a minimal portal page with the given balance and one
// open search counter per mode.
func dashboardHTML(points, pcMax, mobileMax int) string {
	state := fmt.Sprintf(`{"userStatus":{"availablePoints":%d,"counters":{`+
		`"pcSearch":[{"pointProgress":0,"pointProgressMax":%d}],`+
		`"mobileSearch":[{"pointProgress":0,"pointProgressMax":%d}]}},`+
		`"dailySetPromotions":{},"morePromotions":[]}`, points, pcMax, mobileMax)
	return "<html><script>var dashboard = " + state + ";</script></html>"
}

// authedPage is a page whose session is already signed in, so login resolves
// on the portal home marker without typing credentials.
func authedPage(points, searchMax int) *fakePage {
	p := newFakePage()
	p.url = "https://rewards.bing.com/"
	p.visible[DefaultSelectors().HomeMarker] = ""
	p.html = dashboardHTML(points, searchMax, searchMax)
	return p
}

func lockedPage() *fakePage {
	p := newFakePage()
	p.visible[DefaultSelectors().LockedMarker] = "unusual activity"
	return p
}

type runnerFixture struct {
	store    *memStore
	factory  *fakeFactory
	pipeline *pipelineSpy
	reporter *reporterSpy
	notifier *notifierSpy
	runner   *Runner
	now      time.Time
}

func newRunnerFixture(t *testing.T, cfg RunnerConfig) *runnerFixture {
	t.Helper()
	log := slog.New(slog.DiscardHandler)
	store := newMemStore()
	notifier := &notifierSpy{}
	factory := &fakeFactory{sessions: map[model.SessionMode][]*fakeSession{}}
	pipeline := &pipelineSpy{}
	reporter := &reporterSpy{}

	clock := time.Date(2026, 2, 15, 9, 0, 0, 0, time.Local)
	now := func() time.Time { return clock }

	login := NewLoginService(testLoginConfig(), notifier, log)
	login.now = now
	login.sleep = func(_ context.Context, d time.Duration) bool {
		clock = clock.Add(d)
		return true
	}

	dashboard := NewDashboardReader(DefaultDashboardConfig(), log)
	dashboard.now = now

	ledger := NewLedger(store, log)
	ledger.now = now

	breaker := NewCircuitBreaker(store, log)
	breaker.now = now

	runner := NewRunner(RunnerDeps{
		Browser:   factory,
		Login:     login,
		Tokens:    NewTokenService(DefaultTokenConfig(), log),
		Dashboard: dashboard,
		Pipeline:  pipeline,
		Ledger:    ledger,
		Breaker:   breaker,
		Notifier:  notifier,
		Reporter:  reporter,
	}, cfg, log)
	runner.newRunID = func() string { return "test-run" }

	return &runnerFixture{
		store:    store,
		factory:  factory,
		pipeline: pipeline,
		reporter: reporter,
		notifier: notifier,
		runner:   runner,
		now:      clock,
	}
}

func testAccount() model.Account {
	return model.Account{Email: "a@example.com", Password: "pw"}
}

func TestRunnerEndToEndGains(t *testing.T) {
	f := newRunnerFixture(t, RunnerConfig{})

	desktop := &fakeSession{page: authedPage(100, 90)}
	mobile := &fakeSession{page: authedPage(120, 60)}
	f.factory.sessions[model.ModeDesktop] = []*fakeSession{desktop}
	f.factory.sessions[model.ModeMobile] = []*fakeSession{mobile}

	f.pipeline.onRun = func(mode model.SessionMode, token string) {
		switch mode {
		case model.ModeDesktop:
			desktop.page.html = dashboardHTML(120, 0, 0)
		case model.ModeMobile:
			assert.Empty(t, token, "token acquisition failure must degrade to an empty token")
			mobile.page.html = dashboardHTML(135, 0, 0)
		}
	}

	err := f.runner.RunAccounts(context.Background(), []model.Account{testAccount()})

	require.NoError(t, err)
	require.Len(t, f.reporter.results, 1)
	res := f.reporter.results[0]
	assert.Equal(t, "test-run", res.RunID)
	assert.Equal(t, "a@example.com", res.Email)
	assert.Equal(t, 135, res.FinalPoints)
	assert.Equal(t, 20, res.DesktopGain)
	assert.Equal(t, 15, res.MobileGain)
	assert.Equal(t, 35, res.TotalGain)

	assert.Equal(t, []model.SessionMode{model.ModeDesktop, model.ModeMobile}, f.pipeline.modes)
	assert.True(t, desktop.closed)
	assert.True(t, mobile.closed)

	var rec model.DailyPointsRecord
	ok, err := f.store.ReadJSON(context.Background(), driven.NamespaceLedger, "a@example.com", &rec)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "2026-02-15", rec.Date)
	assert.Equal(t, 100, rec.InitialPoints)

	_, ok = f.store.data[driven.NamespaceStatus+"/a@example.com"]
	assert.False(t, ok, "a successful run leaves no failure record")
}

func TestRunnerSkipsActivitiesWhenNothingEarnable(t *testing.T) {
	f := newRunnerFixture(t, RunnerConfig{})

	desktop := &fakeSession{page: authedPage(500, 0)}
	mobile := &fakeSession{page: authedPage(500, 0)}
	f.factory.sessions[model.ModeDesktop] = []*fakeSession{desktop}
	f.factory.sessions[model.ModeMobile] = []*fakeSession{mobile}

	err := f.runner.RunAccounts(context.Background(), []model.Account{testAccount()})

	require.NoError(t, err)
	assert.Empty(t, f.pipeline.modes, "no activities when nothing is earnable")
	assert.Equal(t, []model.SessionMode{model.ModeDesktop, model.ModeMobile}, f.factory.calls,
		"both modes still sign in and read their balance")
	require.Len(t, f.reporter.results, 1)
	assert.Equal(t, 500, f.reporter.results[0].FinalPoints)
	assert.Zero(t, f.reporter.results[0].TotalGain)
}

func TestRunnerGatesEachModeOnItsOwnEarnable(t *testing.T) {
	f := newRunnerFixture(t, RunnerConfig{})

	desktop := &fakeSession{page: authedPage(100, 0)}
	desktop.page.html = dashboardHTML(100, 0, 40)
	mobile := &fakeSession{page: authedPage(100, 0)}
	mobile.page.html = dashboardHTML(100, 0, 40)
	f.factory.sessions[model.ModeDesktop] = []*fakeSession{desktop}
	f.factory.sessions[model.ModeMobile] = []*fakeSession{mobile}

	f.pipeline.onRun = func(mode model.SessionMode, _ string) {
		if mode == model.ModeMobile {
			mobile.page.html = dashboardHTML(140, 0, 0)
		}
	}

	res, err := f.runner.RunFor(context.Background(), testAccount())

	require.NoError(t, err)
	assert.Equal(t, []model.SessionMode{model.ModeMobile}, f.pipeline.modes,
		"an empty desktop counter must not suppress the mobile activities")
	assert.Zero(t, res.DesktopGain)
	assert.Equal(t, 40, res.MobileGain)
	assert.Equal(t, 140, res.FinalPoints)
	assert.Equal(t, 40, res.TotalGain)
}

func TestRunnerRunsOnZeroPointsWhenConfigured(t *testing.T) {
	f := newRunnerFixture(t, RunnerConfig{RunOnZeroPoints: true})

	desktop := &fakeSession{page: authedPage(500, 0)}
	mobile := &fakeSession{page: authedPage(500, 0)}
	f.factory.sessions[model.ModeDesktop] = []*fakeSession{desktop}
	f.factory.sessions[model.ModeMobile] = []*fakeSession{mobile}

	err := f.runner.RunAccounts(context.Background(), []model.Account{testAccount()})

	require.NoError(t, err)
	assert.Equal(t, []model.SessionMode{model.ModeDesktop, model.ModeMobile}, f.pipeline.modes)
}

func TestRunnerSkipsFrozenAccount(t *testing.T) {
	f := newRunnerFixture(t, RunnerConfig{})
	until := f.now.Add(time.Hour)
	require.NoError(t, f.store.WriteJSON(context.Background(), driven.NamespaceStatus, "a@example.com",
		model.AccountStatus{ConsecutiveFailures: 3, FrozenUntil: &until}))

	err := f.runner.RunAccounts(context.Background(), []model.Account{testAccount()})

	require.NoError(t, err)
	assert.Empty(t, f.factory.calls, "frozen accounts never open a session")
	assert.Empty(t, f.reporter.results)
}

func TestRunnerLoginFailureTripsBreakerPath(t *testing.T) {
	f := newRunnerFixture(t, RunnerConfig{})

	// Primary and recovery sessions both hit the lockout page.
	f.factory.sessions[model.ModeDesktop] = []*fakeSession{
		{page: lockedPage()},
		{page: lockedPage()},
	}

	err := f.runner.RunAccounts(context.Background(), []model.Account{testAccount()})

	require.NoError(t, err)
	assert.Empty(t, f.reporter.results)

	var st model.AccountStatus
	ok, err := f.store.ReadJSON(context.Background(), driven.NamespaceStatus, "a@example.com", &st)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, st.ConsecutiveFailures)
	assert.Nil(t, st.FrozenUntil)
}

func TestRunnerRecoveryLoginContinuesToMobile(t *testing.T) {
	f := newRunnerFixture(t, RunnerConfig{})

	f.factory.sessions[model.ModeDesktop] = []*fakeSession{
		{page: lockedPage()},
		{page: authedPage(100, 90)},
	}
	mobile := &fakeSession{page: authedPage(100, 60)}
	f.factory.sessions[model.ModeMobile] = []*fakeSession{mobile}

	f.pipeline.onRun = func(mode model.SessionMode, _ string) {
		if mode == model.ModeMobile {
			mobile.page.html = dashboardHTML(115, 0, 0)
		}
	}

	res, err := f.runner.RunFor(context.Background(), testAccount())

	require.NoError(t, err, "a recovered baseline lets the run continue with the mobile phase")
	assert.Equal(t, []model.SessionMode{model.ModeMobile}, f.pipeline.modes)
	assert.Zero(t, res.DesktopGain)
	assert.Equal(t, 15, res.MobileGain)
	assert.Equal(t, 115, res.FinalPoints)
	assert.Equal(t, 15, res.TotalGain)

	var rec model.DailyPointsRecord
	ok, rerr := f.store.ReadJSON(context.Background(), driven.NamespaceLedger, "a@example.com", &rec)
	require.NoError(t, rerr)
	require.True(t, ok)
	assert.Equal(t, 100, rec.InitialPoints)
}

func TestRunnerMobileFailureIsContained(t *testing.T) {
	f := newRunnerFixture(t, RunnerConfig{})

	desktop := &fakeSession{page: authedPage(100, 90)}
	mobile := &fakeSession{page: lockedPage()}
	f.factory.sessions[model.ModeDesktop] = []*fakeSession{desktop}
	f.factory.sessions[model.ModeMobile] = []*fakeSession{mobile}

	f.pipeline.onRun = func(mode model.SessionMode, _ string) {
		if mode == model.ModeDesktop {
			desktop.page.html = dashboardHTML(120, 0, 0)
		}
	}

	res, err := f.runner.RunFor(context.Background(), testAccount())

	require.NoError(t, err)
	assert.Equal(t, 20, res.DesktopGain)
	assert.Zero(t, res.MobileGain)
	assert.Equal(t, 120, res.FinalPoints)
	assert.Equal(t, 20, res.TotalGain)
}
