package earnings

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/illmedicine/livepay/internal/pricing"
)

// mockInterval is how often the mock-realtime generator perturbs the signals.
const mockInterval = 5 * time.Second

var mockDomains = []string{
	"google.com", "youtube.com", "amazon.com", "github.com",
	"wikipedia.org", "reddit.com", "example.org", "netflix.com",
}

var mockQueries = []string{
	"weather tomorrow", "best electric truck", "buy running shoes",
	"golang generics tutorial", "cheap flights to lisbon", "laptop deals",
}

var mockPlatforms = []string{"instagram", "x", "reddit", "facebook"}

// StartMockRealtime starts the internal generator used when no external
// capture source is available. Events flow through the same Ingest pipeline
// as real ones. Starting while already in mock mode is a no-op.
func (s *Service) StartMockRealtime() {
	s.mu.Lock()
	if s.mode == modeMock {
		s.mu.Unlock()
		return
	}
	s.stopMockLocked()
	s.mode = modeMock
	stop := make(chan struct{})
	s.mockStop = stop
	s.mockWG.Add(1)
	s.mu.Unlock()

	s.logger.Info("earnings input mode", "mode", "mock")

	go func() {
		defer s.mockWG.Done()
		rng := rand.New(rand.NewSource(time.Now().UnixNano()))
		ticker := time.NewTicker(mockInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				s.Ingest(randomMockEvent(rng))
			}
		}
	}()
}

// stopMockLocked tears down the generator. Callers hold s.mu; the lock is
// released around the wait so an in-flight Ingest can finish.
func (s *Service) stopMockLocked() {
	if s.mockStop == nil {
		return
	}
	close(s.mockStop)
	s.mockStop = nil
	s.mu.Unlock()
	s.mockWG.Wait()
	s.mu.Lock()
}

func randomMockEvent(rng *rand.Rand) Event {
	switch rng.Intn(5) {
	case 0:
		return Event{Source: "mock", Type: EventSearch, Domain: "google.com", Provider: "google",
			Query: mockQueries[rng.Intn(len(mockQueries))], Payout: mockPayout("google.com", pricing.ActionSearch)}
	case 1:
		return Event{Source: "mock", Type: EventSocialVisit, Domain: "instagram.com",
			Platform: mockPlatforms[rng.Intn(len(mockPlatforms))], Payout: mockPayout("instagram.com", pricing.ActionVisit)}
	case 2:
		return Event{Source: "mock", Type: EventYouTubeWatchMinute, Domain: "youtube.com", Minutes: 1,
			Payout: mockPayout("youtube.com", pricing.ActionMinute)}
	case 3:
		return Event{Source: "mock", Type: EventYouTubeWatch, Domain: "youtube.com",
			VideoID: fmt.Sprintf("vid-%04d", rng.Intn(10000)), Payout: mockPayout("youtube.com", pricing.ActionInteraction)}
	default:
		domain := mockDomains[rng.Intn(len(mockDomains))]
		return Event{Source: "mock", Type: EventVisit, Domain: domain, Payout: mockPayout(domain, pricing.ActionVisit)}
	}
}

// mockPayout attaches the per-domain annotation the capture agent would have
// computed. Accrual ignores it; it only shapes realistic event payloads.
func mockPayout(domain string, action pricing.ActionType) *PayoutAnnotation {
	p := pricing.CalculatePayout(pricing.CategoryFor(domain), action)
	return &PayoutAnnotation{
		UserShare:    p.UserShare,
		Infra:        p.Infra,
		Treasury:     p.Treasury,
		Total:        p.Total,
		CategoryName: pricing.CategoryDisplayName(domain),
	}
}
