package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"pointsweep/internal/domain/model"
	"pointsweep/internal/domain/port/driven"
)

// Selectors are the page markers the login flow steers by. The defaults match
// the current portal; they are injectable so portal drift and tests don't
// require a rebuild of the core.
type Selectors struct {
	LockedMarker        string
	HomeMarker          string
	EmailField          string
	EmailPrefilled      string
	SubmitButton        string
	PasswordField       string
	WrongPasswordMarker string
	VerifyEmailMarker   string
	UsePasswordLink     string
	TwoFactorNumber     string
	TwoFactorRetry      string
	PasskeyMarker       string
	PasskeyDecline      string
	KmsiMarker          string
	KmsiAccept          string
}

// DefaultSelectors returns the marker set for the live portal.
func DefaultSelectors() Selectors {
	return Selectors{
		LockedMarker:        "#serviceAbuseLandingTitle",
		HomeMarker:          `html[data-role-name="RewardsPortal"]`,
		EmailField:          `input[type="email"]`,
		EmailPrefilled:      "#userDisplayName",
		SubmitButton:        `button[type="submit"]`,
		PasswordField:       `input[type="password"]`,
		WrongPasswordMarker: "#passwordError",
		VerifyEmailMarker:   `[data-testid="proofConfirmationText"]`,
		UsePasswordLink:     "#idA_PWD_SwitchToPassword",
		TwoFactorNumber:     `[data-testid="displaySign"] span`,
		TwoFactorRetry:      `[data-testid="viewFooter"] span`,
		PasskeyMarker:       `[data-testid="biometricVideo"]`,
		PasskeyDecline:      `[data-testid="secondaryButton"]`,
		KmsiMarker:          `[data-testid="kmsiVideo"]`,
		KmsiAccept:          `[data-testid="primaryButton"]`,
	}
}

// LoginConfig bounds every wait in the login flow. All intervals and
// deadlines live here rather than inline in control flow.
type LoginConfig struct {
	SigninURL  string
	TargetHost string

	NavigationTimeout    time.Duration
	NavigationRetries    int
	NavigationRetryDelay time.Duration

	// ShortWait bounds optional-element probes; FieldWait bounds waits for
	// form fields that normally appear.
	ShortWait time.Duration
	FieldWait time.Duration
	// LockoutWait bounds the lockout-marker probe.
	LockoutWait time.Duration
	// HomeMarkerWait bounds waits for the portal home marker.
	HomeMarkerWait time.Duration

	TwoFactorNumberWait   time.Duration
	TwoFactorPollInterval time.Duration
	TwoFactorTimeout      time.Duration

	PostLoginPollInterval time.Duration
	PostLoginTimeout      time.Duration

	Selectors Selectors
}

// DefaultLoginConfig returns the production timings for the live portal.
func DefaultLoginConfig() LoginConfig {
	return LoginConfig{
		SigninURL:             "https://rewards.bing.com/signin",
		TargetHost:            "rewards.bing.com",
		NavigationTimeout:     30 * time.Second,
		NavigationRetries:     3,
		NavigationRetryDelay:  3 * time.Second,
		ShortWait:             2 * time.Second,
		FieldWait:             5 * time.Second,
		LockoutWait:           time.Second,
		HomeMarkerWait:        10 * time.Second,
		TwoFactorNumberWait:   15 * time.Second,
		TwoFactorPollInterval: 2 * time.Second,
		TwoFactorTimeout:      60 * time.Second,
		PostLoginPollInterval: time.Second,
		PostLoginTimeout:      60 * time.Second,
		Selectors:             DefaultSelectors(),
	}
}

// LoginService drives one account through sign-in to a terminal LoginOutcome.
// Expected failure modes (wrong password, lockout, verification walls,
// unapproved 2FA) come back as outcomes; an error is returned only when the
// automation surface itself is unusable.
type LoginService struct {
	cfg      LoginConfig
	notifier driven.Notifier
	logger   *slog.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) bool
}

// NewLoginService creates a LoginService.
func NewLoginService(cfg LoginConfig, notifier driven.Notifier, logger *slog.Logger) *LoginService {
	return &LoginService{
		cfg:      cfg,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
		sleep:    sleepCtx,
	}
}

// Login runs the state machine on page for the given credentials.
func (s *LoginService) Login(ctx context.Context, page driven.Page, email, password string) (model.LoginOutcome, error) {
	a := &loginAttempt{
		svc:      s,
		page:     page,
		email:    email,
		password: password,
		log:      s.logger.With("account", email),
	}
	return a.run(ctx)
}

// loginAttempt carries the per-attempt state the terminal classification
// needs: whether a verification interstitial was seen and whether the
// two-factor flow was entered or abandoned.
type loginAttempt struct {
	svc      *LoginService
	page     driven.Page
	email    string
	password string
	log      *slog.Logger

	verificationSeen   bool
	twoFactorEntered   bool
	twoFactorAbandoned bool
}

func (a *loginAttempt) run(ctx context.Context) (model.LoginOutcome, error) {
	cfg := a.svc.cfg
	a.log.Info("login started")

	if err := a.svc.navigateWithRetry(ctx, a.page, cfg.SigninURL); err != nil {
		if isSurfaceFatal(err) {
			return model.LoginOutcome{}, err
		}
		return model.LoginFailure(model.FailureGeneric, "sign-in entry unreachable"), nil
	}

	// Lockout has priority over everything, including an already-valid
	// session.
	locked, err := a.checkLocked(ctx)
	if err != nil {
		return model.LoginOutcome{}, err
	}
	if locked {
		return model.LoginFailure(model.FailureLocked, "lockout marker before credential entry"), nil
	}

	home, err := a.waitFor(ctx, cfg.Selectors.HomeMarker, cfg.HomeMarkerWait)
	if err != nil {
		return model.LoginOutcome{}, err
	}
	if home != nil {
		// A restored session can be valid and still get flagged afterwards.
		locked, err := a.checkLocked(ctx)
		if err != nil {
			return model.LoginOutcome{}, err
		}
		if locked {
			return model.LoginFailure(model.FailureLocked, "lockout marker on restored session"), nil
		}
		a.log.Info("already signed in")
		return model.LoginSuccess(), nil
	}

	if err := a.enterEmail(ctx); err != nil {
		return model.LoginOutcome{}, err
	}
	if err := a.passwordFallbackFromVerifyPrompt(ctx); err != nil {
		return model.LoginOutcome{}, err
	}
	if err := a.enterPassword(ctx); err != nil {
		return model.LoginOutcome{}, err
	}

	// Lockout pages can also appear right after password submission.
	locked, err = a.checkLocked(ctx)
	if err != nil {
		return model.LoginOutcome{}, err
	}
	if locked {
		return model.LoginFailure(model.FailureLocked, "lockout marker after password submit"), nil
	}

	return a.validate(ctx)
}

// enterEmail types and submits the account email unless the provider already
// pre-filled it. A missing email field is not fatal; some flows skip it.
func (a *loginAttempt) enterEmail(ctx context.Context) error {
	cfg := a.svc.cfg
	sel := cfg.Selectors

	field, err := a.waitFor(ctx, sel.EmailField, cfg.ShortWait)
	if err != nil {
		return err
	}
	if field == nil {
		a.log.Warn("email field not present, continuing")
		return nil
	}

	prefilled, err := a.waitFor(ctx, sel.EmailPrefilled, cfg.FieldWait)
	if err != nil {
		return err
	}
	if prefilled != nil {
		a.log.Info("email pre-filled by provider")
	} else {
		if err := a.fill(ctx, sel.EmailField, ""); err != nil {
			return err
		}
		if err := a.fill(ctx, sel.EmailField, a.email); err != nil {
			return err
		}
	}

	submit, err := a.waitFor(ctx, sel.SubmitButton, cfg.ShortWait)
	if err != nil {
		return err
	}
	if submit == nil {
		a.log.Warn("no submit button after email entry")
		return nil
	}
	if err := submit.Click(ctx); err != nil {
		if isSurfaceFatal(err) {
			return err
		}
		a.log.Warn("email submit click failed", "error", err)
		return nil
	}
	a.log.Info("email submitted")
	return nil
}

// passwordFallbackFromVerifyPrompt routes around the "verify your email"
// interstitial by selecting the password-based sign-in path. A missing
// fallback control is a warning, not a failure; the seen flag feeds the
// terminal classification.
func (a *loginAttempt) passwordFallbackFromVerifyPrompt(ctx context.Context) error {
	cfg := a.svc.cfg
	sel := cfg.Selectors

	marker, err := a.waitFor(ctx, sel.VerifyEmailMarker, cfg.ShortWait)
	if err != nil {
		return err
	}
	if marker == nil {
		return nil
	}
	a.verificationSeen = true
	a.log.Warn("verify-email interstitial shown, selecting password sign-in")

	link, err := a.waitFor(ctx, sel.UsePasswordLink, cfg.ShortWait)
	if err != nil {
		return err
	}
	if link == nil {
		a.log.Warn("password fallback control not present")
		return nil
	}
	if err := link.Click(ctx); err != nil {
		if isSurfaceFatal(err) {
			return err
		}
		a.log.Warn("password fallback click failed", "error", err)
	}
	return nil
}

// enterPassword types and submits the password. A password field that never
// appears means the passwordless two-factor flow has taken over.
func (a *loginAttempt) enterPassword(ctx context.Context) error {
	cfg := a.svc.cfg
	sel := cfg.Selectors

	field, err := a.waitFor(ctx, sel.PasswordField, cfg.FieldWait)
	if err != nil {
		return err
	}
	if field == nil {
		a.log.Info("no password field, assuming two-factor approval flow")
		return a.twoFactor(ctx)
	}

	if err := a.fill(ctx, sel.PasswordField, ""); err != nil {
		return err
	}
	if err := a.fill(ctx, sel.PasswordField, a.password); err != nil {
		return err
	}

	submit, err := a.waitFor(ctx, sel.SubmitButton, cfg.ShortWait)
	if err != nil {
		return err
	}
	if submit == nil {
		a.log.Warn("no submit button after password entry")
		return nil
	}
	if err := submit.Click(ctx); err != nil {
		if isSurfaceFatal(err) {
			return err
		}
		a.log.Warn("password submit click failed", "error", err)
		return nil
	}
	a.log.Info("password submitted")
	return nil
}

// twoFactor surfaces the displayed approval number out-of-band and polls the
// page URL for the target domain. One fresh-number retry cycle is attempted;
// after that the wait is abandoned and the terminal checks decide the
// outcome.
func (a *loginAttempt) twoFactor(ctx context.Context) error {
	cfg := a.svc.cfg
	a.twoFactorEntered = true

	for attempt := 0; attempt < 2; attempt++ {
		number, err := a.readApprovalNumber(ctx)
		if err != nil {
			return err
		}
		if number == "" && attempt > 0 {
			a.log.Error("no fresh approval number available, abandoning two-factor wait")
			break
		}
		if number == "" {
			a.log.Warn("approval number not captured, waiting for manual approval")
			a.svc.notifier.Notify(ctx, model.NotifyWarn, "Account verification",
				fmt.Sprintf("Waiting for manual sign-in approval for %s.", a.email))
		} else {
			a.log.Info("approval number captured", "number", number)
			a.svc.notifier.Notify(ctx, model.NotifyInfo, "Sign-in approval number",
				fmt.Sprintf("Account %s: press %s in your authenticator app.", a.email, number))
		}

		if a.waitForApproval(ctx) {
			a.log.Info("two-factor approval detected")
			return nil
		}

		a.log.Warn("two-factor approval timed out, requesting a fresh number")
		if err := a.page.Click(ctx, cfg.Selectors.TwoFactorRetry); err != nil {
			if isSurfaceFatal(err) {
				return err
			}
			a.log.Warn("fresh-number request failed", "error", err)
		}
	}

	a.twoFactorAbandoned = true
	return nil
}

func (a *loginAttempt) readApprovalNumber(ctx context.Context) (string, error) {
	cfg := a.svc.cfg
	el, err := a.waitFor(ctx, cfg.Selectors.TwoFactorNumber, cfg.TwoFactorNumberWait)
	if err != nil || el == nil {
		return "", err
	}
	text, err := el.Text(ctx)
	if err != nil {
		if isSurfaceFatal(err) {
			return "", err
		}
		a.log.Warn("approval number read failed", "error", err)
		return "", nil
	}
	return strings.TrimSpace(text), nil
}

// waitForApproval polls the current URL for the target domain on a fixed
// interval until the two-factor deadline.
func (a *loginAttempt) waitForApproval(ctx context.Context) bool {
	cfg := a.svc.cfg
	deadline := a.svc.now().Add(cfg.TwoFactorTimeout)
	for {
		if strings.Contains(a.page.CurrentURL(), cfg.TargetHost) {
			return true
		}
		if !a.svc.now().Before(deadline) {
			return false
		}
		if !a.svc.sleep(ctx, cfg.TwoFactorPollInterval) {
			return false
		}
	}
}

// validate is the terminal stage: a bounded loop that dismisses known
// interstitials once per interval until navigation reaches the target
// domain, followed by the wrong-password check (which overrides a matching
// URL) and the portal home marker requirement.
func (a *loginAttempt) validate(ctx context.Context) (model.LoginOutcome, error) {
	cfg := a.svc.cfg
	sel := cfg.Selectors

	deadline := a.svc.now().Add(cfg.PostLoginTimeout)
	for !a.onTargetDomain() {
		if err := a.dismissInterstitials(ctx); err != nil {
			return model.LoginOutcome{}, err
		}
		if a.onTargetDomain() || !a.svc.now().Before(deadline) {
			break
		}
		if !a.svc.sleep(ctx, cfg.PostLoginPollInterval) {
			break
		}
	}

	wrong, err := a.waitFor(ctx, sel.WrongPasswordMarker, cfg.ShortWait)
	if err != nil {
		return model.LoginOutcome{}, err
	}
	if wrong != nil {
		return model.LoginFailure(model.FailureWrongPassword, "wrong-password marker after sign-in"), nil
	}

	home, err := a.waitFor(ctx, sel.HomeMarker, cfg.HomeMarkerWait)
	if err != nil {
		return model.LoginOutcome{}, err
	}
	if home != nil {
		a.log.Info("signed in, portal home reached")
		return model.LoginSuccess(), nil
	}

	switch {
	case a.twoFactorAbandoned:
		return model.LoginFailure(model.FailureAuthorizationRequired, "two-factor approval not completed"), nil
	case a.verificationSeen:
		return model.LoginFailure(model.FailureVerificationRequired, "verification interstitial not cleared"), nil
	}
	return model.LoginFailure(model.FailureGeneric, "portal home not reached"), nil
}

// dismissInterstitials clears the known prompts that can sit between
// credential submission and the portal: passkey upsell, "stay signed in",
// and the verify-email wall.
func (a *loginAttempt) dismissInterstitials(ctx context.Context) error {
	sel := a.svc.cfg.Selectors
	prompts := []struct {
		marker  string
		control string
		label   string
	}{
		{sel.PasskeyMarker, sel.PasskeyDecline, "use a passkey instead"},
		{sel.KmsiMarker, sel.KmsiAccept, "stay signed in"},
		{sel.VerifyEmailMarker, sel.UsePasswordLink, "verify your email"},
	}
	for _, p := range prompts {
		el, err := a.waitFor(ctx, p.marker, a.svc.cfg.ShortWait)
		if err != nil {
			return err
		}
		if el == nil {
			continue
		}
		if p.marker == sel.VerifyEmailMarker {
			a.verificationSeen = true
		}
		if err := a.page.Click(ctx, p.control); err != nil {
			if isSurfaceFatal(err) {
				return err
			}
			a.log.Warn("interstitial dismissal failed", "prompt", p.label, "error", err)
			continue
		}
		a.log.Info("interstitial dismissed", "prompt", p.label)
	}
	return nil
}

// checkLocked probes for the lockout marker and raises an out-of-band alert
// when it is present.
func (a *loginAttempt) checkLocked(ctx context.Context) (bool, error) {
	cfg := a.svc.cfg
	el, err := a.waitFor(ctx, cfg.Selectors.LockedMarker, cfg.LockoutWait)
	if err != nil {
		return false, err
	}
	if el == nil {
		return false, nil
	}
	a.log.Error("account is locked")
	a.svc.notifier.Notify(ctx, model.NotifyError, "Account locked",
		fmt.Sprintf("Account %s is locked. Remove it from the accounts file before the next run.", a.email))
	return true, nil
}

func (a *loginAttempt) onTargetDomain() bool {
	return strings.Contains(a.page.CurrentURL(), a.svc.cfg.TargetHost)
}

// waitFor wraps Page.WaitFor, propagating only surface-fatal errors and
// downgrading everything else to absence.
func (a *loginAttempt) waitFor(ctx context.Context, selector string, timeout time.Duration) (driven.Element, error) {
	el, err := a.page.WaitFor(ctx, selector, timeout)
	if err != nil {
		if isSurfaceFatal(err) {
			return nil, err
		}
		a.log.Warn("element wait failed", "selector", selector, "error", err)
		return nil, nil
	}
	return el, nil
}

// fill wraps Page.Fill with the same fail-soft policy.
func (a *loginAttempt) fill(ctx context.Context, selector, text string) error {
	if err := a.page.Fill(ctx, selector, text); err != nil {
		if isSurfaceFatal(err) {
			return err
		}
		a.log.Warn("field fill failed", "selector", selector, "error", err)
	}
	return nil
}

// navigateWithRetry retries transient navigation failures a bounded number of
// times before giving up with a recoverable error.
func (s *LoginService) navigateWithRetry(ctx context.Context, page driven.Page, url string) error {
	var lastErr error
	for i := 0; i < s.cfg.NavigationRetries; i++ {
		err := page.Navigate(ctx, url, s.cfg.NavigationTimeout)
		if err == nil {
			return nil
		}
		if isSurfaceFatal(err) {
			return err
		}
		lastErr = err
		s.logger.Warn("navigation failed",
			"url", url,
			"attempt", i+1,
			"retries", s.cfg.NavigationRetries,
			"error", err,
		)
		if i < s.cfg.NavigationRetries-1 {
			if !s.sleep(ctx, s.cfg.NavigationRetryDelay) {
				break
			}
		}
	}
	return fmt.Errorf("navigate %s: %w", url, lastErr)
}

// isSurfaceFatal reports whether err means the automation surface is
// unusable, the only condition the login flow propagates.
func isSurfaceFatal(err error) bool {
	return errors.Is(err, driven.ErrSurfaceClosed) || errors.Is(err, context.Canceled)
}

// sleepCtx sleeps for d, returning false when the context is canceled first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
