package earnings

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	s := NewService(nil)
	s.StartEventMode()
	return s
}

func TestIngest_VisitCountsAndUniqueDomainOnce(t *testing.T) {
	s := newTestService(t)

	for i := 0; i < 5; i++ {
		s.Ingest(Event{Type: EventVisit, Domain: "example.org"})
	}

	state := s.Snapshot()
	require.EqualValues(t, 5, state.Signals.SitesVisited)
	require.EqualValues(t, 1, state.Signals.UniqueDomains)
}

func TestIngest_UniqueDomainNormalization(t *testing.T) {
	s := newTestService(t)

	s.Ingest(Event{Type: EventVisit, Domain: "www.Example.org"})
	s.Ingest(Event{Type: EventVisit, Domain: "example.org"})

	require.EqualValues(t, 1, s.Snapshot().Signals.UniqueDomains)
}

func TestIngest_WalletAccrualMatchesDeltaValuation(t *testing.T) {
	s := newTestService(t)

	before := s.Snapshot().Wallet.TodaysEarningsUSD
	s.Ingest(Event{Type: EventVisit, Domain: "fresh-domain.test"})
	after := s.Snapshot().Wallet.TodaysEarningsUSD

	// One site visit plus one unique domain; fresh-domain.test is Mixed so no
	// exploration step.
	want := round2(usdPerSiteVisited + usdPerUniqueDomain)
	require.InDelta(t, want, round2(after-before), 0.001)
	require.GreaterOrEqual(t, after, 0.0)
	require.Equal(t, after, s.Snapshot().Wallet.DailyEnergyUSD)
}

func TestIngest_UnknownTypeIsIgnored(t *testing.T) {
	s := newTestService(t)

	notified := 0
	unsub := s.Subscribe(func() { notified++ })
	defer unsub()

	before := s.Snapshot()
	s.Ingest(Event{Type: "telemetry_blob", Domain: "example.org"})
	after := s.Snapshot()

	require.Equal(t, before.Signals, after.Signals)
	require.Equal(t, before.Wallet, after.Wallet)
	require.Empty(t, after.Ledger)
	require.Zero(t, notified)
}

func TestIngest_SearchWithCommerceIntent(t *testing.T) {
	s := newTestService(t)

	s.Ingest(Event{Type: EventSearch, Domain: "google.com", Query: "buy nike shoes"})

	state := s.Snapshot()
	require.EqualValues(t, 1, state.Signals.SearchQueries)
	require.EqualValues(t, 1, state.Signals.CommerceIntents)
	require.EqualValues(t, 1, state.Signals.UniqueDomains)
	require.Equal(t, "Footwear", state.Signals.TopIntent)

	var intents []string
	for _, e := range state.Ledger {
		intents = append(intents, e.Category+": "+e.Intent)
		require.Positive(t, e.SaleUSD)
		require.InDelta(t, e.SaleUSD, e.UserSplitUSD+e.MeshSplitUSD, 1e-9)
	}
	require.Contains(t, intents, "Browsing & Search: Query: buy nike shoes")
	require.Contains(t, intents, "E-Commerce Interest: Shopping search: buy nike shoes")
}

func TestIngest_PlainSearchHasNoCommerceEntry(t *testing.T) {
	s := newTestService(t)

	s.Ingest(Event{Type: EventSearch, Domain: "google.com", Query: "weather tomorrow"})

	state := s.Snapshot()
	require.EqualValues(t, 1, state.Signals.SearchQueries)
	require.Zero(t, state.Signals.CommerceIntents)
	for _, e := range state.Ledger {
		require.NotEqual(t, categoryCommerce, e.Category)
	}
}

func TestIngest_LedgerInvariants(t *testing.T) {
	s := newTestService(t)

	s.Ingest(Event{Type: EventSearch, Domain: "google.com", Query: "buy a cheap laptop"})
	s.Ingest(Event{Type: EventSocialVisit, Domain: "instagram.com", Platform: "instagram"})
	s.Ingest(Event{Type: EventYouTubeWatchMinute, Domain: "youtube.com", Minutes: 3})

	for _, e := range s.Snapshot().Ledger {
		require.Positive(t, e.SaleUSD)
		require.InDelta(t, e.SaleUSD, e.UserSplitUSD+e.MeshSplitUSD, 1e-9)
		require.Equal(t, StatusClaimed, e.Status)
		require.NotEmpty(t, e.ID)
		require.NotEmpty(t, e.Buyer)
		require.NotEmpty(t, e.Hash)
	}
}

func TestIngest_LedgerRetention(t *testing.T) {
	s := newTestService(t)

	for i := 0; i < maxLedgerEntries+30; i++ {
		s.Ingest(Event{Type: EventSearch, Domain: "google.com", Query: fmt.Sprintf("query %d", i)})
	}

	ledger := s.Snapshot().Ledger
	require.Len(t, ledger, maxLedgerEntries)
	// Newest first: the most recent query is at index 0 and the earliest
	// queries have been evicted.
	require.Equal(t, fmt.Sprintf("Query: query %d", maxLedgerEntries+29), ledger[0].Intent)
	for _, e := range ledger {
		require.NotEqual(t, "Query: query 0", e.Intent)
	}
}

func TestIngest_ChannelStatsAbsoluteSet(t *testing.T) {
	s := newTestService(t)

	subs := func(n int64) *int64 { return &n }
	hours := func(h float64) *float64 { return &h }

	// First report is a baseline: stored, but earns nothing.
	s.Ingest(Event{Type: EventYouTubeOAuthStats, Handle: "@illmedicine", SubscriberCount: subs(1000), ViewHours: hours(50)})
	state := s.Snapshot()
	require.Equal(t, ChannelStats{ViewHours: 50, Subscribers: 1000}, state.Signals.Channels["@illmedicine"])
	require.Zero(t, state.Wallet.TodaysEarningsUSD)
	require.Empty(t, state.Ledger)

	// Growth earns the clamped difference.
	s.Ingest(Event{Type: EventYouTubeOAuthStats, Handle: "@illmedicine", SubscriberCount: subs(1004), ViewHours: hours(52)})
	state = s.Snapshot()
	require.EqualValues(t, 4, state.Signals.ChannelSubscriberGain)
	require.InDelta(t, 2.0, state.Signals.ChannelViewHoursGain, 1e-9)
	require.Positive(t, state.Wallet.TodaysEarningsUSD)
	require.Len(t, state.Ledger, 1)

	// A stale, lower report replaces the stored value with zero delta.
	earned := state.Wallet.TodaysEarningsUSD
	s.Ingest(Event{Type: EventYouTubeOAuthStats, Handle: "@illmedicine", SubscriberCount: subs(990)})
	state = s.Snapshot()
	require.EqualValues(t, 990, state.Signals.Channels["@illmedicine"].Subscribers)
	require.Equal(t, earned, state.Wallet.TodaysEarningsUSD)
	require.Len(t, state.Ledger, 1)
}

func TestResetDay(t *testing.T) {
	s := newTestService(t)

	s.Ingest(Event{Type: EventSearch, Domain: "google.com", Query: "buy nike shoes"})
	s.Ingest(Event{Type: EventVisit, Domain: "example.org"})
	require.Positive(t, s.Snapshot().Wallet.TodaysEarningsUSD)

	s.ResetDay()
	state := s.Snapshot()
	require.Zero(t, state.Wallet.TodaysEarningsUSD)
	require.Empty(t, state.Ledger)
	require.Equal(t, Signals{Channels: map[string]ChannelStats{}}, state.Signals)

	// Idempotent when fired twice in a row.
	s.ResetDay()
	require.Equal(t, state.Wallet, s.Snapshot().Wallet)
	require.Empty(t, s.Snapshot().Ledger)

	// Unique-domain set was cleared too: the same domain counts again.
	s.Ingest(Event{Type: EventVisit, Domain: "example.org"})
	require.EqualValues(t, 1, s.Snapshot().Signals.UniqueDomains)
}

func TestDayRollForcesReset(t *testing.T) {
	s := newTestService(t)

	day := time.Date(2026, 8, 28, 23, 50, 0, 0, time.Local)
	s.now = func() time.Time { return day }
	s.ResetDay()
	s.Ingest(Event{Type: EventVisit, Domain: "example.org"})
	require.Positive(t, s.Snapshot().Wallet.TodaysEarningsUSD)

	// The process "sleeps" through midnight; the next ingest notices.
	day = day.Add(20 * time.Minute)
	s.Ingest(Event{Type: EventVisit, Domain: "example.org"})

	state := s.Snapshot()
	require.EqualValues(t, 1, state.Signals.SitesVisited)
	require.EqualValues(t, 1, state.Signals.UniqueDomains)
	want := round2(usdPerSiteVisited + usdPerUniqueDomain)
	require.InDelta(t, want, state.Wallet.TodaysEarningsUSD, 0.001)
}

func TestSubscribe_OrderAndIdempotentUnsubscribe(t *testing.T) {
	s := newTestService(t)

	var order []string
	unsubA := s.Subscribe(func() { order = append(order, "a") })
	unsubB := s.Subscribe(func() { order = append(order, "b") })

	s.Ingest(Event{Type: EventVisit, Domain: "example.org"})
	require.Equal(t, []string{"a", "b"}, order)

	unsubA()
	unsubA() // second call is a no-op
	order = nil
	s.Ingest(Event{Type: EventVisit, Domain: "another.org"})
	require.Equal(t, []string{"b"}, order)
	unsubB()
}

func TestBreakdownRecomputedFromSignals(t *testing.T) {
	s := newTestService(t)

	s.Ingest(Event{Type: EventSearch, Domain: "google.com", Query: "buy nike shoes"})
	s.Ingest(Event{Type: EventSocialVisit, Domain: "instagram.com", Platform: "instagram"})
	s.Ingest(Event{Type: EventSocialMinute, Domain: "instagram.com", Platform: "instagram", Minutes: 2})
	s.Ingest(Event{Type: EventYouTubeWatchMinute, Domain: "youtube.com", Minutes: 4})

	state := s.Snapshot()
	require.Len(t, state.Breakdown, 4)

	byID := map[string]BreakdownItem{}
	for _, item := range state.Breakdown {
		byID[item.ID] = item
	}

	require.Equal(t, "Engagement: 1 posts", byID["social"].Subtitle)
	require.InDelta(t, round2(usdPerSocialVisit+2*usdPerSocialMinute), byID["social"].AmountUSD, 0.001)
	require.InDelta(t, round2(usdPerCommerceIntent), byID["commerce"].AmountUSD, 0.001)
	require.InDelta(t, round2(4*usdPerWatchMinute), byID["streaming"].AmountUSD, 0.001)
	require.Equal(t, "High Intent: Footwear", byID["browse-search"].Tag)
	require.Equal(t, computeBreakdown(state.Signals), state.Breakdown)
}

func TestModeSwitchIsIdempotent(t *testing.T) {
	s := NewService(nil)
	defer s.Stop()

	s.StartMockRealtime()
	s.StartMockRealtime() // no-op
	s.StartEventMode()    // tears down the generator
	s.StartEventMode()    // no-op

	s.Ingest(Event{Type: EventVisit, Domain: "example.org"})
	require.EqualValues(t, 1, s.Snapshot().Signals.SitesVisited)
}
