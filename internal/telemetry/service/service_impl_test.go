package service

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/licensor/internal/clock"
	"github.com/smallbiznis/licensor/internal/dbtest"
	"github.com/smallbiznis/licensor/internal/telemetry/domain"
	"github.com/smallbiznis/licensor/internal/telemetry/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	return New(Params{
		DB:    dbtest.Open(t),
		Log:   zap.NewNop(),
		Clock: clock.NewFakeClock(time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)),
		Repo:  repository.Provide(),
	}).(*Service)
}

func TestHashIP(t *testing.T) {
	h := HashIP("203.0.113.7")
	assert.Len(t, h, 16)
	assert.Equal(t, h, HashIP(" 203.0.113.7 "))
	assert.NotEqual(t, h, HashIP("203.0.113.8"))
	assert.Empty(t, HashIP(""))
}

func TestTrackStoresEventWithoutRawIP(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	event, err := svc.Track(ctx, domain.RecordRequest{
		AccountID:     7,
		SiteID:        "site-a",
		LicenseKey:    "WASM-AAAA-BBBB-CCCC",
		EventType:     "feature",
		EventName:     "chatbot_opened",
		EventData:     map[string]any{"page": "checkout"},
		PluginVersion: "1.4.0",
		UserAgent:     "WordPress/6.5",
		IPAddress:     "203.0.113.7",
	})
	require.NoError(t, err)
	require.NotEmpty(t, event.ID)
	require.NotNil(t, event.IPHash)
	assert.Equal(t, HashIP("203.0.113.7"), *event.IPHash)

	events, err := svc.ListBySite(ctx, "site-a", 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "chatbot_opened", events[0].EventName)
	assert.Equal(t, "checkout", events[0].EventData["page"])
	require.NotNil(t, events[0].AccountID)
	assert.Equal(t, int64(7), *events[0].AccountID)
}

func TestTrackRejectsMalformedNames(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Track(ctx, domain.RecordRequest{SiteID: "s", EventType: "", EventName: "x"})
	assert.ErrorIs(t, err, domain.ErrInvalidEventType)
	_, err = svc.Track(ctx, domain.RecordRequest{SiteID: "s", EventType: "feature", EventName: "Bad Name!"})
	assert.ErrorIs(t, err, domain.ErrInvalidEventName)
	_, err = svc.Track(ctx, domain.RecordRequest{SiteID: "", EventType: "feature", EventName: "x"})
	assert.ErrorIs(t, err, domain.ErrInvalidSiteID)
}

func TestPruneDropsEventsPastRetention(t *testing.T) {
	svc := newTestService(t)
	clk := svc.clock.(*clock.FakeClock)
	ctx := context.Background()

	track := func(name string) {
		_, err := svc.Track(ctx, domain.RecordRequest{SiteID: "site-a", EventType: "feature", EventName: name})
		require.NoError(t, err)
	}
	track("old_event")
	clk.Advance(60 * 24 * time.Hour)
	track("recent_event")
	clk.Advance(40 * 24 * time.Hour)

	deleted, err := svc.Prune(ctx, 90*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	events, err := svc.ListBySite(ctx, "site-a", 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "recent_event", events[0].EventName)

	_, err = svc.Prune(ctx, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidRetention)
}
