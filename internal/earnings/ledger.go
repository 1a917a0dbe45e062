package earnings

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// maxLedgerEntries bounds the in-memory ledger; oldest entries are evicted
// first.
const maxLedgerEntries = 200

// Ledger entry categories.
const (
	categoryBrowseSearch = "Browsing & Search"
	categoryCommerce     = "E-Commerce Interest"
	categorySocial       = "Social Media"
	categoryStreaming    = "Content Streaming"
	categoryChannels     = "Creator Channels"
)

var buyerByCategory = map[string]string{
	categoryBrowseSearch: "Ad Exchange - North America",
	categoryCommerce:     "Retail Intent Network",
	categorySocial:       "Brand Network - Lifestyle",
	categoryStreaming:    "Streaming Insights Exchange",
	categoryChannels:     "Creator Economy Desk",
}

// newLedgerEntry builds an immutable claimed entry for a priced action.
// The user/mesh split is derived from the sale amount so that
// UserSplitUSD + MeshSplitUSD always equals SaleUSD exactly.
func newLedgerEntry(ts time.Time, category, intent string, saleUSD float64) LedgerEntry {
	id := uuid.NewString()
	sale := round2(saleUSD)
	user := round2(sale * 0.85)
	mesh := round2(sale - user)
	return LedgerEntry{
		ID:           id,
		Timestamp:    ts,
		Category:     category,
		Intent:       intent,
		Status:       StatusClaimed,
		Buyer:        buyerByCategory[category],
		SaleUSD:      sale,
		UserSplitUSD: user,
		MeshSplitUSD: mesh,
		Hash:         contentHash(id, intent),
	}
}

// contentHash derives the short display hash from entry content.
func contentHash(id, intent string) string {
	sum := sha256.Sum256([]byte(id + "|" + intent))
	hexSum := hex.EncodeToString(sum[:])
	return fmt.Sprintf("0x%s…%s", hexSum[:4], hexSum[len(hexSum)-4:])
}

// prependEntries inserts entries newest-first and trims the ledger to its
// retention bound.
func prependEntries(ledger []LedgerEntry, entries []LedgerEntry) []LedgerEntry {
	if len(entries) == 0 {
		return ledger
	}
	// Reverse so the last-produced entry of this batch ends up at index 0.
	combined := make([]LedgerEntry, 0, len(entries)+len(ledger))
	for i := len(entries) - 1; i >= 0; i-- {
		combined = append(combined, entries[i])
	}
	combined = append(combined, ledger...)
	if len(combined) > maxLedgerEntries {
		combined = combined[:maxLedgerEntries]
	}
	return combined
}
