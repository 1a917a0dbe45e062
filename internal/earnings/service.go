// Package earnings implements the real-time valuation pipeline: it turns
// captured activity events into signal deltas, prices them, accrues the
// result into a per-day wallet, records ledger entries, and republishes the
// aggregate state to observers.
package earnings

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron"

	"github.com/illmedicine/livepay/internal/pricing"
)

const dayKeyLayout = "2006-01-02"

type inputMode int

const (
	modeNone inputMode = iota
	modeEvent
	modeMock
)

// Service owns the signals/ledger/wallet triple. All mutations go through a
// single mutex so concurrent ingests never interleave their counter
// reads and writes.
type Service struct {
	logger *slog.Logger
	now    func() time.Time

	mu          sync.Mutex
	signals     Signals
	seenDomains map[string]struct{}
	ledger      []LedgerEntry
	wallet      WalletSnapshot
	breakdown   []BreakdownItem
	dayKey      string
	state       State

	pub  publisher
	mode inputMode

	cron     *cron.Cron
	mockStop chan struct{}
	mockWG   sync.WaitGroup
}

// NewService creates an earnings service with a fresh daily state.
func NewService(logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		logger: logger,
		now:    time.Now,
	}
	s.mu.Lock()
	s.resetLocked()
	s.mu.Unlock()
	s.pub.notify()
	return s
}

// Snapshot returns the current published state.
func (s *Service) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Subscribe registers an observer invoked synchronously after every state
// mutation. The returned function unsubscribes and is safe to call more than
// once.
func (s *Service) Subscribe(fn func()) func() {
	return s.pub.subscribe(fn)
}

// StartResetScheduler arms the midnight reset. The schedule fires at local
// midnight and re-arms itself; the day-key guard in Ingest covers a process
// that slept through the fire time.
func (s *Service) StartResetScheduler() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return
	}
	c := cron.New()
	_ = c.AddFunc("@midnight", func() {
		s.logger.Info("daily reset fired")
		s.ResetDay()
	})
	c.Start()
	s.cron = c
}

// ResetDay clears the aggregator state, ledger and wallet, and republishes.
// Calling it twice in a row without intervening events is a no-op the second
// time apart from the republish.
func (s *Service) ResetDay() {
	s.mu.Lock()
	s.resetLocked()
	s.mu.Unlock()
	s.pub.notify()
}

func (s *Service) resetLocked() {
	s.signals = Signals{Channels: map[string]ChannelStats{}}
	s.seenDomains = map[string]struct{}{}
	s.ledger = nil
	s.wallet = newWallet()
	s.dayKey = s.now().Format(dayKeyLayout)
	s.refreshStateLocked()
}

// StartEventMode switches the pipeline to explicit ingest calls only.
// Starting a mode that is already active is a no-op.
func (s *Service) StartEventMode() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode == modeEvent {
		return
	}
	s.stopMockLocked()
	s.mode = modeEvent
	s.logger.Info("earnings input mode", "mode", "event")
}

// Stop tears down the reset schedule and any running mock generator.
func (s *Service) Stop() {
	s.mu.Lock()
	if s.cron != nil {
		s.cron.Stop()
		s.cron = nil
	}
	s.stopMockLocked()
	s.mode = modeNone
	s.mu.Unlock()
}

// Ingest runs one event through the full pipeline: day-roll check, delta
// computation, valuation, wallet accrual, ledger entries, breakdown
// recompute, publish. Events with unknown types are accepted and ignored.
func (s *Service) Ingest(ev Event) {
	s.mu.Lock()

	rolled := s.rollDayLocked()
	before := s.signals.clone()
	entries := s.applyEventLocked(ev)

	if !changed(before, s.signals) {
		// Unknown or no-op event: publish only if the day rolled over.
		s.mu.Unlock()
		if rolled {
			s.pub.notify()
		}
		return
	}

	delta := diffSignals(before, s.signals)
	value := valueOfDelta(delta)
	if value > 0 {
		s.wallet.TodaysEarningsUSD = round2(s.wallet.TodaysEarningsUSD + value)
		s.wallet.DailyEnergyUSD = s.wallet.TodaysEarningsUSD
	}

	kept := entries[:0]
	for _, e := range entries {
		if e.SaleUSD > 0 {
			kept = append(kept, e)
		}
	}
	s.ledger = prependEntries(s.ledger, kept)

	s.refreshStateLocked()
	s.mu.Unlock()

	s.pub.notify()
}

// rollDayLocked forces a reset when the wall-clock day changed since the last
// mutation, covering a process suspended through midnight.
func (s *Service) rollDayLocked() bool {
	today := s.now().Format(dayKeyLayout)
	if today == s.dayKey {
		return false
	}
	s.logger.Info("day changed, forcing reset", "from", s.dayKey, "to", today)
	s.resetLocked()
	return true
}

// applyEventLocked updates cumulative signals for one event and returns the
// candidate ledger entries describing the delta. Entries with non-positive
// sale amounts are filtered by the caller.
func (s *Service) applyEventLocked(ev Event) []LedgerEntry {
	ts := s.now()
	var entries []LedgerEntry

	switch ev.Type {
	case EventVisit:
		s.signals.SitesVisited++
		entries = append(entries, newLedgerEntry(ts, categoryBrowseSearch, "Visited: "+ev.Domain, usdPerSiteVisited))
		if s.markDomainLocked(ev.Domain) {
			entries = append(entries, newLedgerEntry(ts, categoryBrowseSearch, "New domain: "+ev.Domain, usdPerUniqueDomain))
		}
		s.exploreLocked(ev.Domain)

	case EventSearch:
		s.signals.SearchQueries++
		entries = append(entries, newLedgerEntry(ts, categoryBrowseSearch, "Query: "+ev.Query, usdPerSearchQuery))
		if hasCommerceIntent(ev.Query) {
			s.signals.CommerceIntents++
			s.signals.TopIntent = inferIntentLabel(ev.Query)
			entries = append(entries, newLedgerEntry(ts, categoryCommerce, "Shopping search: "+ev.Query, usdPerCommerceIntent))
		}
		if s.markDomainLocked(ev.Domain) {
			entries = append(entries, newLedgerEntry(ts, categoryBrowseSearch, "New domain: "+ev.Domain, usdPerUniqueDomain))
		}
		s.exploreLocked(ev.Domain)

	case EventSocialVisit:
		s.signals.SocialVisits++
		entries = append(entries, newLedgerEntry(ts, categorySocial, "Engagement: "+ev.Platform+" visit", usdPerSocialVisit))
		if s.markDomainLocked(ev.Domain) {
			entries = append(entries, newLedgerEntry(ts, categoryBrowseSearch, "New domain: "+ev.Domain, usdPerUniqueDomain))
		}

	case EventSocialMinute:
		minutes := ev.Minutes
		if minutes <= 0 {
			minutes = 1
		}
		s.signals.SocialMinutes += minutes
		entries = append(entries, newLedgerEntry(ts, categorySocial,
			fmt.Sprintf("Social time on %s (%g min)", ev.Platform, minutes), minutes*usdPerSocialMinute))

	case EventYouTubeWatch:
		s.signals.VideosWatched++
		entries = append(entries, newLedgerEntry(ts, categoryStreaming, "Watched video: "+ev.VideoID, usdPerVideoWatched))
		if s.markDomainLocked(ev.Domain) {
			entries = append(entries, newLedgerEntry(ts, categoryBrowseSearch, "New domain: "+ev.Domain, usdPerUniqueDomain))
		}

	case EventYouTubeWatchMinute:
		minutes := ev.Minutes
		if minutes <= 0 {
			minutes = 1
		}
		s.signals.WatchMinutes += minutes
		entries = append(entries, newLedgerEntry(ts, categoryStreaming,
			fmt.Sprintf("Watch time (%g min)", minutes), minutes*usdPerWatchMinute))

	case EventYouTubeChannel:
		s.signals.SitesVisited++
		entries = append(entries, newLedgerEntry(ts, categoryStreaming, "Channel visit: "+ev.Handle, usdPerSiteVisited))
		if s.markDomainLocked(ev.Domain) {
			entries = append(entries, newLedgerEntry(ts, categoryBrowseSearch, "New domain: "+ev.Domain, usdPerUniqueDomain))
		}

	case EventYouTubeOAuthStats:
		entries = s.applyChannelStatsLocked(ts, ev)
	}

	return entries
}

// applyChannelStatsLocked handles the only absolute-set event: the reported
// values replace the stored ones (even when lower), and only the
// clamped-positive difference counts as a delta. The first report for a
// handle establishes a baseline and earns nothing.
func (s *Service) applyChannelStatsLocked(ts time.Time, ev Event) []LedgerEntry {
	if ev.Handle == "" || (ev.SubscriberCount == nil && ev.ViewHours == nil) {
		return nil
	}

	prev, known := s.signals.Channels[ev.Handle]
	next := prev
	var subGain int64
	var hoursGain float64

	if ev.SubscriberCount != nil {
		if known && *ev.SubscriberCount > prev.Subscribers {
			subGain = *ev.SubscriberCount - prev.Subscribers
		}
		next.Subscribers = *ev.SubscriberCount
	}
	if ev.ViewHours != nil {
		if known && *ev.ViewHours > prev.ViewHours {
			hoursGain = *ev.ViewHours - prev.ViewHours
		}
		next.ViewHours = *ev.ViewHours
	}
	s.signals.Channels[ev.Handle] = next

	if subGain == 0 && hoursGain == 0 {
		return nil
	}
	s.signals.ChannelSubscriberGain += subGain
	s.signals.ChannelViewHoursGain += hoursGain

	value := float64(subGain)*usdPerSubscriber + hoursGain*usdPerViewHour
	intent := fmt.Sprintf("Channel update: %s (+%d subscribers, +%.2f view-hrs)", ev.Handle, subGain, hoursGain)
	return []LedgerEntry{newLedgerEntry(ts, categoryChannels, intent, value)}
}

// markDomainLocked records a domain as seen today. It returns true only the
// first time a domain is seen, and then increments the unique-domain counter.
func (s *Service) markDomainLocked(domain string) bool {
	if domain == "" {
		return false
	}
	key := pricing.Normalize(domain)
	if _, seen := s.seenDomains[key]; seen {
		return false
	}
	s.seenDomains[key] = struct{}{}
	s.signals.UniqueDomains++
	return true
}

// exploreLocked advances the exploration score when the domain classifies
// into a non-Mixed web area.
func (s *Service) exploreLocked(domain string) {
	if classifyArea(domain) != areaMixed {
		s.signals.ExplorationScore++
	}
}

func (s *Service) refreshStateLocked() {
	s.breakdown = computeBreakdown(s.signals)
	ledger := make([]LedgerEntry, len(s.ledger))
	copy(ledger, s.ledger)
	s.state = State{
		Wallet:    s.wallet,
		Breakdown: s.breakdown,
		Ledger:    ledger,
		Signals:   s.signals.clone(),
	}
}

// diffSignals computes the clamped non-negative per-counter delta.
func diffSignals(before, after Signals) Signals {
	return Signals{
		SearchQueries:         clampI(after.SearchQueries - before.SearchQueries),
		SitesVisited:          clampI(after.SitesVisited - before.SitesVisited),
		UniqueDomains:         clampI(after.UniqueDomains - before.UniqueDomains),
		ExplorationScore:      clampI(after.ExplorationScore - before.ExplorationScore),
		CommerceIntents:       clampI(after.CommerceIntents - before.CommerceIntents),
		SocialVisits:          clampI(after.SocialVisits - before.SocialVisits),
		SocialMinutes:         clampF(after.SocialMinutes - before.SocialMinutes),
		VideosWatched:         clampI(after.VideosWatched - before.VideosWatched),
		WatchMinutes:          clampF(after.WatchMinutes - before.WatchMinutes),
		ChannelViewHoursGain:  clampF(after.ChannelViewHoursGain - before.ChannelViewHoursGain),
		ChannelSubscriberGain: clampI(after.ChannelSubscriberGain - before.ChannelSubscriberGain),
	}
}

func changed(before, after Signals) bool {
	if !isZeroDelta(diffSignals(before, after)) {
		return true
	}
	// An absolute-set event may change stored channel stats without any
	// positive delta; that still counts as a mutation worth publishing.
	if len(before.Channels) != len(after.Channels) {
		return true
	}
	for k, v := range after.Channels {
		if before.Channels[k] != v {
			return true
		}
	}
	return false
}

func isZeroDelta(d Signals) bool {
	return d.SearchQueries == 0 && d.SitesVisited == 0 && d.UniqueDomains == 0 &&
		d.ExplorationScore == 0 && d.CommerceIntents == 0 && d.SocialVisits == 0 &&
		d.SocialMinutes == 0 && d.VideosWatched == 0 && d.WatchMinutes == 0 &&
		d.ChannelViewHoursGain == 0 && d.ChannelSubscriberGain == 0
}

func clampI(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}

func clampF(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}
