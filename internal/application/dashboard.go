package application

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"pointsweep/internal/domain/model"
	"pointsweep/internal/domain/port/driven"
)

// dashboardPattern matches the state object the portal inlines into its home
// page markup.
var dashboardPattern = regexp.MustCompile(`(?s)var dashboard = ({.*?});`)

// dailySetKeyFormat is the calendar key the portal uses for daily set
// promotions.
const dailySetKeyFormat = "01/02/2006"

// DashboardConfig bounds the dashboard read.
type DashboardConfig struct {
	HomeURL           string
	TargetHost        string
	NavigationTimeout time.Duration
}

// DefaultDashboardConfig returns the live portal settings.
func DefaultDashboardConfig() DashboardConfig {
	return DashboardConfig{
		HomeURL:           "https://rewards.bing.com/",
		TargetHost:        "rewards.bing.com",
		NavigationTimeout: 30 * time.Second,
	}
}

// dashboardWire mirrors the slice of the portal state object the core needs.
type dashboardWire struct {
	UserStatus struct {
		AvailablePoints int `json:"availablePoints"`
		Counters        struct {
			PCSearch     []progressCounter `json:"pcSearch"`
			MobileSearch []progressCounter `json:"mobileSearch"`
		} `json:"counters"`
	} `json:"userStatus"`
	DailySetPromotions map[string][]promotionWire `json:"dailySetPromotions"`
	MorePromotions     []promotionWire            `json:"morePromotions"`
}

type progressCounter struct {
	PointProgress    int `json:"pointProgress"`
	PointProgressMax int `json:"pointProgressMax"`
}

type promotionWire struct {
	Complete                     bool   `json:"complete"`
	PointProgress                int    `json:"pointProgress"`
	PointProgressMax             int    `json:"pointProgressMax"`
	PromotionType                string `json:"promotionType"`
	ExclusiveLockedFeatureStatus string `json:"exclusiveLockedFeatureStatus"`
}

// DashboardReader extracts the balance and remaining earnable points from an
// authenticated portal page.
type DashboardReader struct {
	cfg    DashboardConfig
	logger *slog.Logger
	now    func() time.Time
}

// NewDashboardReader creates a DashboardReader.
func NewDashboardReader(cfg DashboardConfig, logger *slog.Logger) *DashboardReader {
	return &DashboardReader{cfg: cfg, logger: logger, now: time.Now}
}

// Read navigates to the portal home if needed and parses the inlined state
// object. A page that renders without the object gets one reload before the
// read fails.
func (r *DashboardReader) Read(ctx context.Context, page driven.Page) (model.Dashboard, error) {
	if !strings.Contains(page.CurrentURL(), r.cfg.TargetHost) {
		if err := page.Navigate(ctx, r.cfg.HomeURL, r.cfg.NavigationTimeout); err != nil {
			return model.Dashboard{}, fmt.Errorf("open portal home: %w", err)
		}
	}

	raw, err := r.extract(ctx, page)
	if err != nil {
		return model.Dashboard{}, err
	}

	var wire dashboardWire
	if err := json.Unmarshal([]byte(raw), &wire); err != nil {
		return model.Dashboard{}, fmt.Errorf("decode dashboard state: %w", err)
	}
	d := r.summarize(wire)
	r.logger.Info("dashboard read",
		"available_points", d.AvailablePoints,
		"desktop_earnable", d.DesktopEarnable(),
		"mobile_earnable", d.MobileEarnable(),
	)
	return d, nil
}

func (r *DashboardReader) extract(ctx context.Context, page driven.Page) (string, error) {
	for attempt := 0; attempt < 2; attempt++ {
		html, err := page.Evaluate(ctx, "document.documentElement.outerHTML")
		if err != nil {
			return "", fmt.Errorf("read portal markup: %w", err)
		}
		if m := dashboardPattern.FindStringSubmatch(html); m != nil {
			return m[1], nil
		}
		if attempt == 0 {
			r.logger.Warn("dashboard state object missing, reloading portal home")
			if err := page.Navigate(ctx, r.cfg.HomeURL, r.cfg.NavigationTimeout); err != nil {
				return "", fmt.Errorf("reload portal home: %w", err)
			}
		}
	}
	return "", fmt.Errorf("dashboard state object not found on %s", page.CurrentURL())
}

// summarize folds the wire object into the balance plus the per-mode
// remaining earnable points. Search counters contribute their remaining
// progress; set and promotion activities contribute their full value while
// incomplete, matching how the portal awards them.
func (r *DashboardReader) summarize(w dashboardWire) model.Dashboard {
	d := model.Dashboard{AvailablePoints: w.UserStatus.AvailablePoints}

	for _, c := range w.UserStatus.Counters.PCSearch {
		d.DesktopSearchPoints += c.PointProgressMax - c.PointProgress
	}
	for _, c := range w.UserStatus.Counters.MobileSearch {
		d.MobileSearchPoints += c.PointProgressMax - c.PointProgress
	}

	today := r.now().Format(dailySetKeyFormat)
	for _, p := range w.DailySetPromotions[today] {
		if !p.Complete {
			d.DailySetPoints += p.PointProgressMax
		}
	}

	for _, p := range w.MorePromotions {
		if p.Complete || p.PointProgressMax <= 0 {
			continue
		}
		if p.ExclusiveLockedFeatureStatus == "locked" {
			continue
		}
		switch p.PromotionType {
		case "quiz", "urlreward":
			d.MorePromotionsPoints += p.PointProgressMax
		}
	}
	return d
}
