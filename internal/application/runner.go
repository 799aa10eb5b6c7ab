package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"pointsweep/internal/domain/model"
	"pointsweep/internal/domain/port/driven"
)

// RunnerConfig holds the orchestrator's behavior switches.
type RunnerConfig struct {
	// RunOnZeroPoints runs the activity pipelines even when the dashboard
	// reports nothing earnable today.
	RunOnZeroPoints bool
}

// RunnerDeps are the collaborators a Runner drives.
type RunnerDeps struct {
	Browser   driven.BrowserFactory
	Login     *LoginService
	Tokens    *TokenService
	Dashboard *DashboardReader
	Pipeline  driven.TaskPipeline
	Ledger    *Ledger
	Breaker   *CircuitBreaker
	Notifier  driven.Notifier
	Reporter  driven.Reporter
}

// Runner executes the full per-account cycle: desktop session with login,
// baseline capture and activities, then an independent mobile session with
// its own login and access token. Activity failures are contained per phase,
// and a failed desktop login still proceeds to the mobile phase once a
// recovery login has preserved the baseline. The run as a whole fails only
// when no baseline and no balance could be established by any path.
type Runner struct {
	deps   RunnerDeps
	cfg    RunnerConfig
	logger *slog.Logger

	newRunID func() string
}

// NewRunner creates a Runner.
func NewRunner(deps RunnerDeps, cfg RunnerConfig, logger *slog.Logger) *Runner {
	return &Runner{deps: deps, cfg: cfg, logger: logger, newRunID: uuid.NewString}
}

// RunAccounts processes the given accounts sequentially. Frozen accounts are
// skipped; each completed run feeds the circuit breaker and, on success, the
// reporter. Only state-store failures and cancellation abort the whole batch.
func (r *Runner) RunAccounts(ctx context.Context, accounts []model.Account) error {
	for _, account := range accounts {
		if err := ctx.Err(); err != nil {
			return err
		}

		frozen, err := r.deps.Breaker.IsFrozen(ctx, account.Email)
		if err != nil {
			return err
		}
		if frozen {
			continue
		}

		result, err := r.RunFor(ctx, account)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			r.logger.Error("account run failed", "account", account.Email, "error", err)
			if err := r.deps.Breaker.RecordFailure(ctx, account.Email); err != nil {
				return err
			}
			r.deps.Notifier.Notify(ctx, model.NotifyError, "Account run failed",
				fmt.Sprintf("Account %s: %v", account.Email, err))
			continue
		}

		if err := r.deps.Breaker.RecordSuccess(ctx, account.Email); err != nil {
			return err
		}
		if err := r.deps.Reporter.Report(ctx, result); err != nil {
			r.logger.Warn("result report failed", "account", account.Email, "error", err)
		}
	}
	return nil
}

// runState accumulates the balances observed across the phases of one run.
type runState struct {
	baseline    int
	hasBaseline bool
	lastBalance int
	hasBalance  bool
	desktopGain int
	mobileGain  int
}

func (st *runState) setBaseline(points int) {
	st.baseline = points
	st.hasBaseline = true
}

func (st *runState) observe(balance int) {
	st.lastBalance = balance
	st.hasBalance = true
}

// RunFor executes one account's full cycle and returns its RunResult.
func (r *Runner) RunFor(ctx context.Context, account model.Account) (model.RunResult, error) {
	runID := r.newRunID()
	log := r.logger.With("run_id", runID, "account", account.Email)
	log.Info("account run started")

	st := &runState{}

	authed, loginDetail, err := r.desktopPhase(ctx, log, account, st)
	if err != nil {
		return model.RunResult{}, err
	}

	if !authed {
		// The day's baseline must land before the mobile attempt, or
		// tomorrow's gain accounting starts from the wrong balance.
		r.recoverBaseline(ctx, log, account, st)
		if !st.hasBalance {
			return model.RunResult{}, fmt.Errorf("desktop login failed: %s", loginDetail)
		}
		log.Warn("desktop login failed, continuing with mobile phase",
			"outcome", loginDetail,
		)
	}

	if err := r.mobilePhase(ctx, log, account, st); err != nil {
		return model.RunResult{}, err
	}

	if !st.hasBaseline {
		return model.RunResult{}, errors.New("no daily baseline captured")
	}

	final := st.baseline
	if st.hasBalance {
		final = st.lastBalance
	}
	result := model.RunResult{
		RunID:       runID,
		Email:       account.Email,
		FinalPoints: final,
		DesktopGain: st.desktopGain,
		MobileGain:  st.mobileGain,
		TotalGain:   final - st.baseline,
	}
	log.Info("account run finished",
		"final_points", result.FinalPoints,
		"desktop_gain", result.DesktopGain,
		"mobile_gain", result.MobileGain,
		"total_gain", result.TotalGain,
	)
	return result, nil
}

// desktopPhase logs in on a desktop session, captures the daily baseline and
// runs the desktop activities. It reports whether authentication succeeded;
// everything past login is contained.
func (r *Runner) desktopPhase(ctx context.Context, log *slog.Logger, account model.Account, st *runState) (bool, string, error) {
	session, err := r.deps.Browser.NewSession(ctx, account, model.ModeDesktop)
	if err != nil {
		log.Error("desktop session open failed", "error", err)
		return false, fmt.Sprintf("open desktop session: %v", err), nil
	}
	defer r.closeSession(ctx, log, session, model.ModeDesktop)

	page := session.Page()
	outcome, err := r.deps.Login.Login(ctx, page, account.Email, account.Password)
	if err != nil {
		return false, "", err
	}
	if outcome.Failed() {
		log.Warn("desktop login failed", "outcome", outcome.String())
		return false, outcome.String(), nil
	}

	pre, err := r.deps.Dashboard.Read(ctx, page)
	if err != nil {
		// Authenticated but unreadable; the mobile phase gets its own chance
		// to capture the baseline.
		log.Error("dashboard read failed after login", "error", err)
		return true, "", nil
	}
	baseline, err := r.deps.Ledger.EnsureBaseline(ctx, account.Email, pre.AvailablePoints)
	if err != nil {
		return true, "", err
	}
	st.setBaseline(baseline)
	st.observe(pre.AvailablePoints)

	if !r.cfg.RunOnZeroPoints && pre.DesktopEarnable() == 0 {
		log.Info("nothing earnable via desktop, activities skipped")
		return true, "", nil
	}

	if err := r.deps.Pipeline.Run(ctx, page, model.ModeDesktop, ""); err != nil {
		log.Error("desktop activities failed", "error", err)
	}
	post, err := r.deps.Dashboard.Read(ctx, page)
	if err != nil {
		log.Warn("post-activity dashboard read failed", "error", err)
		return true, "", nil
	}
	st.desktopGain = post.AvailablePoints - pre.AvailablePoints
	st.observe(post.AvailablePoints)
	return true, "", nil
}

// mobilePhase runs the mobile cycle in its own session: login, access token,
// activities. Failures here never fail the run; a baseline already landed in
// an earlier phase.
func (r *Runner) mobilePhase(ctx context.Context, log *slog.Logger, account model.Account, st *runState) error {
	session, err := r.deps.Browser.NewSession(ctx, account, model.ModeMobile)
	if err != nil {
		log.Error("mobile session open failed", "error", err)
		return nil
	}
	defer r.closeSession(ctx, log, session, model.ModeMobile)

	page := session.Page()
	outcome, err := r.deps.Login.Login(ctx, page, account.Email, account.Password)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		log.Error("mobile login errored", "error", err)
		return nil
	}
	if outcome.Failed() {
		log.Warn("mobile login failed", "outcome", outcome.String())
		return nil
	}

	pre, err := r.deps.Dashboard.Read(ctx, page)
	if err != nil {
		log.Error("mobile dashboard read failed", "error", err)
		return nil
	}
	if !st.hasBaseline {
		baseline, err := r.deps.Ledger.EnsureBaseline(ctx, account.Email, pre.AvailablePoints)
		if err != nil {
			return err
		}
		st.setBaseline(baseline)
	}
	st.observe(pre.AvailablePoints)

	if !r.cfg.RunOnZeroPoints && pre.MobileEarnable() == 0 {
		log.Info("nothing earnable via mobile, activities skipped")
		return nil
	}

	token := r.acquireToken(ctx, log, session, account.Email)

	if err := r.deps.Pipeline.Run(ctx, page, model.ModeMobile, token); err != nil {
		log.Error("mobile activities failed", "error", err)
	}
	post, err := r.deps.Dashboard.Read(ctx, page)
	if err != nil {
		log.Warn("post-activity dashboard read failed", "error", err)
		return nil
	}
	st.mobileGain = post.AvailablePoints - pre.AvailablePoints
	st.observe(post.AvailablePoints)
	return nil
}

// acquireToken fetches the mobile access token in a fresh tab so the main
// page keeps its state. An empty token lets the pipeline run what it can.
func (r *Runner) acquireToken(ctx context.Context, log *slog.Logger, session driven.Session, email string) string {
	tokenPage, err := session.NewPage(ctx)
	if err != nil {
		log.Warn("token page open failed", "error", err)
		return ""
	}
	token, err := r.deps.Tokens.Acquire(ctx, tokenPage, email)
	if err != nil {
		log.Warn("mobile access token unavailable", "error", err)
		return ""
	}
	return token
}

// recoverBaseline attempts one more login in a throwaway session after a
// failed desktop login, purely to read the balance and get today's baseline
// on the books. Every failure here is swallowed; the caller decides whether
// the run can continue.
func (r *Runner) recoverBaseline(ctx context.Context, log *slog.Logger, account model.Account, st *runState) {
	log.Info("attempting recovery login for baseline capture")
	session, err := r.deps.Browser.NewSession(ctx, account, model.ModeDesktop)
	if err != nil {
		log.Warn("recovery session open failed", "error", err)
		return
	}
	defer r.closeSession(ctx, log, session, model.ModeDesktop)

	outcome, err := r.deps.Login.Login(ctx, session.Page(), account.Email, account.Password)
	if err != nil || outcome.Failed() {
		log.Warn("recovery login failed")
		return
	}
	d, err := r.deps.Dashboard.Read(ctx, session.Page())
	if err != nil {
		log.Warn("recovery dashboard read failed", "error", err)
		return
	}
	baseline, err := r.deps.Ledger.EnsureBaseline(ctx, account.Email, d.AvailablePoints)
	if err != nil {
		log.Warn("recovery baseline persist failed", "error", err)
		return
	}
	st.setBaseline(baseline)
	st.observe(d.AvailablePoints)
	log.Info("baseline captured via recovery login",
		"initial_points", baseline,
		"balance", d.AvailablePoints,
	)
}

func (r *Runner) closeSession(ctx context.Context, log *slog.Logger, session driven.Session, mode model.SessionMode) {
	if err := session.Close(ctx); err != nil {
		log.Warn("session close failed", "mode", string(mode), "error", err)
	}
}

// NoopPipeline is the stand-in activity pipeline: it earns nothing, which
// still exercises login, baseline capture and reporting end to end. Useful
// for dry runs and as the default until a solver pipeline is wired in.
type NoopPipeline struct{}

func (NoopPipeline) Run(context.Context, driven.Page, model.SessionMode, string) error {
	return nil
}
