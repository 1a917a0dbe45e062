package earnings

import "time"

// Event is one unit of captured browsing or engagement activity. Producers
// send a structurally-typed event per action; unknown types are accepted and
// ignored.
type Event struct {
	Source          string   `json:"source,omitempty"`
	Type            string   `json:"type"`
	Domain          string   `json:"domain,omitempty"`
	URL             string   `json:"url,omitempty"`
	Provider        string   `json:"provider,omitempty"`
	Query           string   `json:"query,omitempty"`
	Platform        string   `json:"platform,omitempty"`
	Minutes         float64  `json:"minutes,omitempty"`
	MediaPlaying    bool     `json:"mediaPlaying,omitempty"`
	VideoID         string   `json:"videoId,omitempty"`
	Handle          string   `json:"handle,omitempty"`
	SubscriberCount *int64   `json:"subscriberCount,omitempty"`
	ViewHours       *float64 `json:"viewHours,omitempty"`

	// Payout is the capture agent's per-domain annotation. Wallet accrual is
	// recomputed from signal deltas and never reads it.
	Payout *PayoutAnnotation `json:"payout,omitempty"`
}

// PayoutAnnotation mirrors the per-action payout the capture agent attaches
// to raw events.
type PayoutAnnotation struct {
	UserShare    float64 `json:"userShare"`
	Infra        float64 `json:"infra"`
	Treasury     float64 `json:"treasury"`
	Total        float64 `json:"total"`
	CategoryName string  `json:"categoryName,omitempty"`
}

// Event type values understood by the aggregator.
const (
	EventVisit              = "visit"
	EventSearch             = "search"
	EventSocialVisit        = "social_visit"
	EventSocialMinute       = "social_minute"
	EventYouTubeWatch       = "youtube_watch"
	EventYouTubeWatchMinute = "youtube_watch_minute"
	EventYouTubeChannel     = "youtube_channel"
	EventYouTubeOAuthStats  = "youtube_oauth_stats"
)

// ChannelStats are per-channel absolute counters reported by the external
// statistics API.
type ChannelStats struct {
	ViewHours   float64 `json:"viewHours"`
	Subscribers int64   `json:"subscribers"`
}

// Signals holds the cumulative per-day activity counters. Counters only grow
// within a day; the daily reset zeroes everything.
type Signals struct {
	SearchQueries    int64   `json:"searchQueries"`
	SitesVisited     int64   `json:"sitesVisited"`
	UniqueDomains    int64   `json:"uniqueDomains"`
	ExplorationScore int64   `json:"explorationScore"`
	CommerceIntents  int64   `json:"commerceIntents"`
	SocialVisits     int64   `json:"socialVisits"`
	SocialMinutes    float64 `json:"socialMinutes"`
	VideosWatched    int64   `json:"videosWatched"`
	WatchMinutes     float64 `json:"watchMinutes"`

	// Channels maps a channel handle to its last reported absolute stats.
	// A lower (stale) report replaces the stored value but yields a zero
	// earnings delta.
	Channels map[string]ChannelStats `json:"channels,omitempty"`

	// Cumulative clamped-positive channel gains observed today. The first
	// report for a handle establishes a baseline and contributes nothing.
	ChannelViewHoursGain  float64 `json:"channelViewHoursGain"`
	ChannelSubscriberGain int64   `json:"channelSubscriberGain"`

	// TopIntent is the inferred dominant commerce intent label for the day.
	TopIntent string `json:"topIntent,omitempty"`
}

func (s Signals) clone() Signals {
	out := s
	if s.Channels != nil {
		out.Channels = make(map[string]ChannelStats, len(s.Channels))
		for k, v := range s.Channels {
			out.Channels[k] = v
		}
	}
	return out
}

// Ledger entry statuses.
const (
	StatusClaimed = "CLAIMED"
	StatusPending = "PENDING"
)

// LedgerEntry is an immutable, priced record of one valuation event.
type LedgerEntry struct {
	ID               string    `json:"id"`
	Timestamp        time.Time `json:"timestamp"`
	Category         string    `json:"category"`
	Intent           string    `json:"intent"`
	Status           string    `json:"status"`
	Buyer            string    `json:"buyer"`
	SaleUSD          float64   `json:"saleUsd"`
	UserSplitUSD     float64   `json:"userSplitUsd"`
	MeshSplitUSD     float64   `json:"meshSplitUsd"`
	ResaleRoyaltyUSD float64   `json:"resaleRoyaltyUsd,omitempty"`
	Hash             string    `json:"hash"`
}

// WalletSnapshot is the per-day wallet state shown to observers.
type WalletSnapshot struct {
	DailyEnergyUSD    float64 `json:"dailyEnergyUsd"`
	TodaysEarningsUSD float64 `json:"todaysEarningsUsd"`
	LastPayoutLabel   string  `json:"lastPayoutLabel"`
	UserSplitPct      int     `json:"userSplitPct"`
	MeshSplitPct      int     `json:"meshSplitPct"`
	LinkedBankLabel   string  `json:"linkedBankLabel"`
	MeshLabel         string  `json:"meshLabel"`
}

// BreakdownItem is a derived, read-only view over the current signals.
type BreakdownItem struct {
	ID        string  `json:"id"`
	Title     string  `json:"title"`
	Subtitle  string  `json:"subtitle"`
	AmountUSD float64 `json:"amountUsd"`
	Tag       string  `json:"tag,omitempty"`
}

// State is the immutable snapshot republished after every mutation.
type State struct {
	Wallet    WalletSnapshot  `json:"walletSnapshot"`
	Breakdown []BreakdownItem `json:"activityBreakdown"`
	Ledger    []LedgerEntry   `json:"ledger"`
	Signals   Signals         `json:"signals"`
}

func newWallet() WalletSnapshot {
	return WalletSnapshot{
		LastPayoutLabel: "Yesterday, 3 PM",
		UserSplitPct:    85,
		MeshSplitPct:    15,
		LinkedBankLabel: "Linked Bank",
		MeshLabel:       "Community Treasury & Ops",
	}
}
