package earnings

import (
	"math"
	"strings"
)

// Per-unit weights for the aggregate signal-delta valuation. This is the
// formula that prices wallet accrual; it is independent of the per-domain
// payout annotation in the pricing package.
const (
	usdPerSiteVisited     = 0.03
	usdPerSearchQuery     = 0.12
	usdPerUniqueDomain    = 0.05
	usdPerCommerceIntent  = 0.45
	usdPerSocialVisit     = 0.08
	usdPerSocialMinute    = 0.04
	usdPerVideoWatched    = 0.10
	usdPerWatchMinute     = 0.06
	usdPerExplorationStep = 0.02
	usdPerViewHour        = 0.015
	usdPerSubscriber      = 0.25
)

// valueOfDelta prices a signal delta as a weighted sum, rounded to 2 decimal
// places. Deltas are non-negative by construction, so the result never is
// negative either.
func valueOfDelta(delta Signals) float64 {
	v := float64(delta.SitesVisited)*usdPerSiteVisited +
		float64(delta.SearchQueries)*usdPerSearchQuery +
		float64(delta.UniqueDomains)*usdPerUniqueDomain +
		float64(delta.CommerceIntents)*usdPerCommerceIntent +
		float64(delta.SocialVisits)*usdPerSocialVisit +
		delta.SocialMinutes*usdPerSocialMinute +
		float64(delta.VideosWatched)*usdPerVideoWatched +
		delta.WatchMinutes*usdPerWatchMinute +
		float64(delta.ExplorationScore)*usdPerExplorationStep +
		delta.ChannelViewHoursGain*usdPerViewHour +
		float64(delta.ChannelSubscriberGain)*usdPerSubscriber
	return round2(v)
}

var commerceKeywords = []string{
	"buy", "shop", "price", "cheap", "deal", "discount", "order", "purchase",
	"sale", "coupon", "review", "best", "compare",
}

// hasCommerceIntent reports whether a search query signals shopping intent.
func hasCommerceIntent(query string) bool {
	q := strings.ToLower(query)
	for _, kw := range commerceKeywords {
		if strings.Contains(q, kw) {
			return true
		}
	}
	return false
}

var intentLabels = []struct {
	keywords []string
	label    string
}{
	{[]string{"ev", "tesla", "electric car", "electric truck"}, "EVs"},
	{[]string{"shoe", "sneaker", "nike", "adidas"}, "Footwear"},
	{[]string{"laptop", "phone", "tablet", "headphone"}, "Electronics"},
	{[]string{"flight", "hotel", "travel", "vacation"}, "Travel"},
	{[]string{"sofa", "desk", "furniture", "mattress"}, "Home"},
}

// inferIntentLabel maps a commerce query to a coarse intent label,
// defaulting to "Mixed". Single-word keywords match whole words only, so
// "review" does not trip the "ev" keyword.
func inferIntentLabel(query string) string {
	q := strings.ToLower(query)
	words := strings.Fields(q)
	for _, entry := range intentLabels {
		for _, kw := range entry.keywords {
			if strings.Contains(kw, " ") {
				if strings.Contains(q, kw) {
					return entry.label
				}
				continue
			}
			for _, w := range words {
				if w == kw || strings.HasPrefix(w, kw+"s") {
					return entry.label
				}
			}
		}
	}
	return "Mixed"
}

// Web areas used for the exploration score.
const areaMixed = "Mixed"

var areaRules = []struct {
	area       string
	substrings []string
}{
	{"Shopping", []string{"amazon", "ebay", "etsy", "walmart", "target.", "shopify", "shop"}},
	{"Social", []string{"facebook", "instagram", "tiktok", "reddit", "twitter", "x.com", "snapchat", "linkedin"}},
	{"News", []string{"cnn", "bbc", "nytimes", "reuters", "news"}},
	{"Finance", []string{"chase", "paypal", "robinhood", "coinbase", "bank", "finance", "venmo"}},
	{"Learning", []string{"wikipedia", "coursera", "khanacademy", "udemy", ".edu"}},
	{"Developer", []string{"github", "stackoverflow", "gitlab", "npmjs", "golang"}},
	{"Entertainment", []string{"youtube", "netflix", "spotify", "twitch", "hulu", "disney"}},
}

// classifyArea buckets a domain into a coarse web area. Unrecognized domains
// are "Mixed" and do not advance the exploration score.
func classifyArea(domain string) string {
	d := strings.ToLower(domain)
	if d == "" {
		return areaMixed
	}
	for _, rule := range areaRules {
		for _, sub := range rule.substrings {
			if strings.Contains(d, sub) {
				return rule.area
			}
		}
	}
	return areaMixed
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
