// Package pricing holds the static domain pricing table and the per-action
// payout formula used to annotate captured events. Wallet accrual is priced
// separately from signal deltas; see the earnings package.
package pricing

import (
	"math"
	"strings"
)

// Category is a class of destination domain with an associated payout range.
// The table is fixed at startup and never mutated.
type Category struct {
	ID                 string
	Name               string
	AnnualValueMin     float64
	AnnualValueMax     float64
	PerActionPayoutMin float64
	PerActionPayoutMax float64
}

// ActionType selects the per-action multiplier in Payout.
type ActionType string

const (
	ActionSearch      ActionType = "search"
	ActionVisit       ActionType = "visit"
	ActionMinute      ActionType = "minute"
	ActionInteraction ActionType = "interaction"
)

// Payout is the three-way split of a priced action. The user share is 80% of
// total value; infra and treasury are 15% and 5% expressed against it.
type Payout struct {
	UserShare float64 `json:"userShare"`
	Infra     float64 `json:"infra"`
	Treasury  float64 `json:"treasury"`
	Total     float64 `json:"total"`
}

// FallbackCategoryName labels unclassified domains.
const FallbackCategoryName = "General Web Activity"

// perAction derives a per-action user payout from annual value created and an
// estimated number of actions per day. 80% of the value goes to the user.
func perAction(annualValue, actionsPerDay float64) float64 {
	return annualValue * 0.80 / 365 / actionsPerDay
}

func newCategory(id, name string, annualMin, annualMax, actionsPerDay float64) Category {
	return Category{
		ID:                 id,
		Name:               name,
		AnnualValueMin:     annualMin,
		AnnualValueMax:     annualMax,
		PerActionPayoutMin: perAction(annualMin, actionsPerDay),
		PerActionPayoutMax: perAction(annualMax, actionsPerDay),
	}
}

// Categories is the fixed pricing table, in declaration order.
var Categories = []Category{
	newCategory("ad-driven-big-tech", "Ad-Driven Big Tech (Search, Social, Video)", 250, 600, 100),
	newCategory("ai-subscription", "AI Subscription Platforms (LLMs, copilots, creative AI)", 800, 2500, 50),
	newCategory("enterprise-ai", "Enterprise AI / Automation", 1000, 5000, 30),
	newCategory("data-brokers", "Data Brokers / Aggregators", 5, 20, 200),
	newCategory("people-search", "People-Search / Retail Data", 10, 50, 150),
	newCategory("loyalty-financial", "Loyalty / Financial Platforms", 200, 800, 20),
	newCategory("healthcare-risk", "Healthcare / Risk Analytics", 500, 2000, 10),
}

type domainMapping struct {
	domain     string
	categoryID string
}

// domainCategoryTable maps domains to category ids. Order matters: the
// substring fallback in CategoryFor scans in declaration order and the first
// match wins, so earlier entries take priority on ambiguous overlaps.
var domainCategoryTable = []domainMapping{
	// Ad-Driven Big Tech
	{"google.com", "ad-driven-big-tech"},
	{"google.co.uk", "ad-driven-big-tech"},
	{"google.ca", "ad-driven-big-tech"},
	{"youtube.com", "ad-driven-big-tech"},
	{"facebook.com", "ad-driven-big-tech"},
	{"instagram.com", "ad-driven-big-tech"},
	{"twitter.com", "ad-driven-big-tech"},
	{"x.com", "ad-driven-big-tech"},
	{"tiktok.com", "ad-driven-big-tech"},
	{"reddit.com", "ad-driven-big-tech"},
	{"snapchat.com", "ad-driven-big-tech"},
	{"linkedin.com", "ad-driven-big-tech"},
	{"pinterest.com", "ad-driven-big-tech"},
	{"bing.com", "ad-driven-big-tech"},
	{"yahoo.com", "ad-driven-big-tech"},

	// AI Subscription Platforms
	{"openai.com", "ai-subscription"},
	{"chat.openai.com", "ai-subscription"},
	{"chatgpt.com", "ai-subscription"},
	{"anthropic.com", "ai-subscription"},
	{"claude.ai", "ai-subscription"},
	{"midjourney.com", "ai-subscription"},
	{"copilot.microsoft.com", "ai-subscription"},
	{"bard.google.com", "ai-subscription"},
	{"gemini.google.com", "ai-subscription"},
	{"character.ai", "ai-subscription"},
	{"jasper.ai", "ai-subscription"},
	{"copy.ai", "ai-subscription"},
	{"writesonic.com", "ai-subscription"},
	{"runway.ml", "ai-subscription"},
	{"synthesia.io", "ai-subscription"},

	// Enterprise AI
	{"salesforce.com", "enterprise-ai"},
	{"servicenow.com", "enterprise-ai"},
	{"workday.com", "enterprise-ai"},
	{"oracle.com", "enterprise-ai"},
	{"sap.com", "enterprise-ai"},
	{"monday.com", "enterprise-ai"},
	{"asana.com", "enterprise-ai"},
	{"slack.com", "enterprise-ai"},
	{"notion.so", "enterprise-ai"},
	{"airtable.com", "enterprise-ai"},

	// Data Brokers
	{"acxiom.com", "data-brokers"},
	{"experian.com", "data-brokers"},
	{"equifax.com", "data-brokers"},
	{"transunion.com", "data-brokers"},
	{"liveramp.com", "data-brokers"},
	{"epsilon.com", "data-brokers"},
	{"neustar.biz", "data-brokers"},

	// People Search / Retail
	{"amazon.com", "people-search"},
	{"walmart.com", "people-search"},
	{"target.com", "people-search"},
	{"ebay.com", "people-search"},
	{"etsy.com", "people-search"},
	{"shopify.com", "people-search"},
	{"whitepages.com", "people-search"},
	{"spokeo.com", "people-search"},
	{"peoplefinder.com", "people-search"},
	{"truthfinder.com", "people-search"},
	{"beenverified.com", "people-search"},

	// Loyalty / Financial
	{"paypal.com", "loyalty-financial"},
	{"venmo.com", "loyalty-financial"},
	{"cashapp.com", "loyalty-financial"},
	{"chase.com", "loyalty-financial"},
	{"bankofamerica.com", "loyalty-financial"},
	{"wellsfargo.com", "loyalty-financial"},
	{"citi.com", "loyalty-financial"},
	{"americanexpress.com", "loyalty-financial"},
	{"discover.com", "loyalty-financial"},
	{"capitalone.com", "loyalty-financial"},
	{"robinhood.com", "loyalty-financial"},
	{"coinbase.com", "loyalty-financial"},
	{"creditkarma.com", "loyalty-financial"},
	{"mint.com", "loyalty-financial"},

	// Healthcare
	{"webmd.com", "healthcare-risk"},
	{"healthline.com", "healthcare-risk"},
	{"mayoclinic.org", "healthcare-risk"},
	{"nih.gov", "healthcare-risk"},
	{"cdc.gov", "healthcare-risk"},
	{"mychart.org", "healthcare-risk"},
	{"unitedhealthcare.com", "healthcare-risk"},
	{"anthem.com", "healthcare-risk"},
	{"cigna.com", "healthcare-risk"},
	{"aetna.com", "healthcare-risk"},
	{"humana.com", "healthcare-risk"},
	{"bluecrossma.org", "healthcare-risk"},
	{"23andme.com", "healthcare-risk"},
	{"ancestry.com", "healthcare-risk"},
}

var (
	exactDomainIndex = buildExactIndex()
	categoryIndex    = buildCategoryIndex()
)

func buildExactIndex() map[string]string {
	idx := make(map[string]string, len(domainCategoryTable))
	for _, m := range domainCategoryTable {
		if _, ok := idx[m.domain]; !ok {
			idx[m.domain] = m.categoryID
		}
	}
	return idx
}

func buildCategoryIndex() map[string]*Category {
	idx := make(map[string]*Category, len(Categories))
	for i := range Categories {
		idx[Categories[i].ID] = &Categories[i]
	}
	return idx
}

// Normalize lowercases a domain and strips a leading "www." prefix.
func Normalize(domain string) string {
	return strings.TrimPrefix(strings.ToLower(domain), "www.")
}

// CategoryFor classifies a domain against the pricing table. Exact match
// first, then a substring/suffix scan in table order. Returns nil when the
// domain is unknown or empty; never errors.
func CategoryFor(domain string) *Category {
	if domain == "" {
		return nil
	}
	normalized := Normalize(domain)
	if id, ok := exactDomainIndex[normalized]; ok {
		return categoryIndex[id]
	}
	for _, m := range domainCategoryTable {
		if strings.Contains(normalized, m.domain) || strings.HasSuffix(normalized, m.domain) {
			return categoryIndex[m.categoryID]
		}
	}
	return nil
}

// CategoryDisplayName returns the category name for a domain, or the fixed
// fallback label for unclassified domains.
func CategoryDisplayName(domain string) string {
	if cat := CategoryFor(domain); cat != nil {
		return cat.Name
	}
	return FallbackCategoryName
}

// CalculatePayout prices one action for a category. A nil category yields the
// fixed fallback triple. All outputs are rounded to 4 decimal places.
func CalculatePayout(category *Category, action ActionType) Payout {
	if category == nil {
		return Payout{UserShare: 0.001, Infra: 0.0002, Treasury: 0.0001, Total: 0.0013}
	}

	base := (category.PerActionPayoutMin + category.PerActionPayoutMax) / 2

	multiplier := 1.0
	switch action {
	case ActionSearch:
		multiplier = 1.5
	case ActionMinute:
		multiplier = 0.8
	case ActionInteraction:
		multiplier = 1.2
	case ActionVisit:
		multiplier = 1.0
	}

	userShare := base * multiplier
	infra := userShare * 0.1875
	treasury := userShare * 0.0625

	return Payout{
		UserShare: round4(userShare),
		Infra:     round4(infra),
		Treasury:  round4(treasury),
		Total:     round4(userShare + infra + treasury),
	}
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
