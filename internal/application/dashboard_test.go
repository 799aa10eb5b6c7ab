package application

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const dashboardStateTemplate = `{
	"userStatus": {
		"availablePoints": 100,
		"counters": {
			"pcSearch": [{"pointProgress": 60, "pointProgressMax": 90}],
			"mobileSearch": [{"pointProgress": 0, "pointProgressMax": 60}]
		}
	},
	"dailySetPromotions": {
		"%s": [
			{"complete": false, "pointProgress": 0, "pointProgressMax": 10, "promotionType": "quiz"},
			{"complete": true, "pointProgress": 10, "pointProgressMax": 10, "promotionType": "quiz"}
		]
	},
	"morePromotions": [
		{"complete": false, "pointProgress": 0, "pointProgressMax": 10, "promotionType": "quiz"},
		{"complete": false, "pointProgress": 0, "pointProgressMax": 5, "promotionType": "urlreward", "exclusiveLockedFeatureStatus": "locked"},
		{"complete": false, "pointProgress": 0, "pointProgressMax": 50, "promotionType": "welcometour"},
		{"complete": true, "pointProgress": 10, "pointProgressMax": 10, "promotionType": "urlreward"}
	]
}`

func newDashboardPage(t *testing.T, day time.Time) *fakePage {
	t.Helper()
	page := newFakePage()
	page.url = "https://rewards.bing.com/"
	state := fmt.Sprintf(dashboardStateTemplate, day.Format("01/02/2006"))
	page.html = "<html><script>var dashboard = " + state + ";</script></html>"
	return page
}

func TestDashboardRead(t *testing.T) {
	day := time.Date(2026, 2, 15, 9, 0, 0, 0, time.Local)
	page := newDashboardPage(t, day)

	r := NewDashboardReader(DefaultDashboardConfig(), slog.New(slog.DiscardHandler))
	r.now = func() time.Time { return day }

	d, err := r.Read(context.Background(), page)

	require.NoError(t, err)
	assert.Equal(t, 100, d.AvailablePoints)
	assert.Equal(t, 30, d.DesktopSearchPoints)
	assert.Equal(t, 60, d.MobileSearchPoints)
	assert.Equal(t, 10, d.DailySetPoints, "only today's incomplete set activities count")
	assert.Equal(t, 10, d.MorePromotionsPoints, "locked, unknown-type and completed promotions are excluded")
	assert.Equal(t, 50, d.DesktopEarnable())
	assert.Equal(t, 60, d.MobileEarnable())
	assert.Empty(t, page.navs, "no navigation when already on the portal")
}

func TestDashboardReadNavigatesWhenOffPortal(t *testing.T) {
	day := time.Date(2026, 2, 15, 9, 0, 0, 0, time.Local)
	page := newDashboardPage(t, day)
	page.url = "https://login.live.com/post-auth"

	r := NewDashboardReader(DefaultDashboardConfig(), slog.New(slog.DiscardHandler))
	r.now = func() time.Time { return day }

	d, err := r.Read(context.Background(), page)

	require.NoError(t, err)
	assert.Equal(t, 100, d.AvailablePoints)
	require.Len(t, page.navs, 1)
	assert.Equal(t, "https://rewards.bing.com/", page.navs[0])
}

func TestDashboardReadFailsWithoutStateObject(t *testing.T) {
	page := newFakePage()
	page.url = "https://rewards.bing.com/"
	page.html = "<html><body>maintenance</body></html>"

	r := NewDashboardReader(DefaultDashboardConfig(), slog.New(slog.DiscardHandler))

	_, err := r.Read(context.Background(), page)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "dashboard state object not found")
	require.Len(t, page.navs, 1, "one reload is attempted before failing")
}

func TestDashboardStalePromotionDayContributesNothing(t *testing.T) {
	day := time.Date(2026, 2, 15, 9, 0, 0, 0, time.Local)
	page := newDashboardPage(t, day)

	r := NewDashboardReader(DefaultDashboardConfig(), slog.New(slog.DiscardHandler))
	r.now = func() time.Time { return day.AddDate(0, 0, 1) }

	d, err := r.Read(context.Background(), page)

	require.NoError(t, err)
	assert.Zero(t, d.DailySetPoints)
}
