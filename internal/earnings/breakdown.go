package earnings

import "fmt"

// computeBreakdown derives the activity breakdown entirely from the current
// cumulative signals. It is recomputed from scratch on every event so the
// view can never drift from the counters.
func computeBreakdown(s Signals) []BreakdownItem {
	browse := BreakdownItem{
		ID:       "browse-search",
		Title:    categoryBrowseSearch,
		Subtitle: "High intent signals",
		AmountUSD: round2(float64(s.SearchQueries)*usdPerSearchQuery +
			float64(s.SitesVisited)*usdPerSiteVisited +
			float64(s.UniqueDomains)*usdPerUniqueDomain +
			float64(s.ExplorationScore)*usdPerExplorationStep),
	}
	if s.CommerceIntents > 0 && s.TopIntent != "" {
		browse.Tag = "High Intent: " + s.TopIntent
	}

	social := BreakdownItem{
		ID:       "social",
		Title:    categorySocial,
		Subtitle: fmt.Sprintf("Engagement: %d posts", s.SocialVisits),
		AmountUSD: round2(float64(s.SocialVisits)*usdPerSocialVisit +
			s.SocialMinutes*usdPerSocialMinute),
	}

	commerce := BreakdownItem{
		ID:        "commerce",
		Title:     categoryCommerce,
		Subtitle:  "Product research",
		AmountUSD: round2(float64(s.CommerceIntents) * usdPerCommerceIntent),
	}

	streamingUSD := s.WatchMinutes*usdPerWatchMinute +
		float64(s.VideosWatched)*usdPerVideoWatched +
		s.ChannelViewHoursGain*usdPerViewHour +
		float64(s.ChannelSubscriberGain)*usdPerSubscriber
	streaming := BreakdownItem{
		ID:        "streaming",
		Title:     categoryStreaming,
		Subtitle:  "Watch time signals",
		AmountUSD: round2(streamingUSD),
	}

	return []BreakdownItem{browse, social, commerce, streaming}
}
