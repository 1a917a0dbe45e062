// Package httpapi exposes the event distribution endpoints: authenticated
// ingest, SSE and WebSocket streams with backlog replay, the Google OAuth
// flow, pairing token issuance, health and metrics.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/illmedicine/livepay/internal/auth"
	"github.com/illmedicine/livepay/internal/distribution"
	"github.com/illmedicine/livepay/internal/earnings"
	"github.com/illmedicine/livepay/internal/google"
	"github.com/illmedicine/livepay/internal/metrics"
)

// maxIngestBody caps ingest payloads at 1 MB.
const maxIngestBody = 1 << 20

// Per-subject ingest throttle.
const (
	ingestRate  = rate.Limit(50)
	ingestBurst = 100
)

// Sink receives accepted events for local aggregation. *earnings.Service
// satisfies it.
type Sink interface {
	Ingest(ev earnings.Event)
}

// Server holds the handler dependencies.
type Server struct {
	logger  *slog.Logger
	signer  *auth.Signer
	hub     *distribution.Hub
	google  *google.Client
	handles []string
	sink    Sink
	metrics *metrics.Registry

	// pollNow, when set, triggers an immediate stats poll after the OAuth
	// callback succeeds.
	pollNow func()

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewServer(signer *auth.Signer, hub *distribution.Hub, gc *google.Client, handles []string, sink Sink, reg *metrics.Registry, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		logger:   logger,
		signer:   signer,
		hub:      hub,
		google:   gc,
		handles:  handles,
		sink:     sink,
		metrics:  reg,
		limiters: make(map[string]*rate.Limiter),
	}
}

// SetPollNow registers the callback fired after a successful OAuth exchange.
func (s *Server) SetPollNow(fn func()) {
	s.pollNow = fn
}

// Router builds the route table.
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()
	r.Use(corsMiddleware)

	r.Get("/health", s.handleHealth)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	r.Get("/oauth/google/start", s.handleOAuthStart)
	r.Get("/oauth/google/callback", s.handleOAuthCallback)
	r.Get("/oauth/google/status", s.handleOAuthStatus)
	r.Get("/oauth/google/pairing-token", s.handlePairingToken)

	r.Post("/ingest", s.handleIngest)
	r.Get("/events", s.handleEventsSSE)
	r.Get("/events/ws", s.handleEventsWS)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]any{"ok": false, "error": "not found"})
	})
	return r
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		if r.Method == http.MethodOptions {
			w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "content-type,authorization")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// bearerToken extracts the credential from the Authorization header.
func bearerToken(r *http.Request) string {
	raw := r.Header.Get("Authorization")
	if raw == "" {
		return ""
	}
	parts := strings.SplitN(raw, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// authorize verifies the pairing token and returns the subject. Every failure
// produces the same Unauthorized response.
func (s *Server) authorize(w http.ResponseWriter, token string) (string, bool) {
	cl, err := s.signer.Verify(token)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"ok": false, "error": "Unauthorized"})
		return "", false
	}
	return cl.Sub, true
}

func (s *Server) limiter(subject string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.limiters[subject]
	if !ok {
		l = rate.NewLimiter(ingestRate, ingestBurst)
		s.limiters[subject] = l
	}
	return l
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	subject, ok := s.authorize(w, bearerToken(r))
	if !ok {
		s.countRejected("unauthorized")
		return
	}

	if !s.limiter(subject).Allow() {
		s.countRejected("rate_limited")
		writeJSON(w, http.StatusTooManyRequests, map[string]any{"ok": false, "error": "rate limited"})
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxIngestBody+1))
	if err != nil {
		s.countRejected("read_error")
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": "invalid payload"})
		return
	}
	if len(body) > maxIngestBody {
		s.countRejected("too_large")
		writeJSON(w, http.StatusRequestEntityTooLarge, map[string]any{"ok": false, "error": "body too large"})
		return
	}

	fields := map[string]any{}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &fields); err != nil {
			s.countRejected("bad_json")
			writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": "invalid payload"})
			return
		}
	}

	if _, err := s.hub.Publish(subject, fields); err != nil {
		s.logger.Error("event publish failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "error": "publish failed"})
		return
	}
	if s.metrics != nil {
		s.metrics.EventsIngested.Inc()
		s.metrics.EventsBroadcast.Inc()
	}

	if s.sink != nil && len(body) > 0 {
		var ev earnings.Event
		if err := json.Unmarshal(body, &ev); err == nil && ev.Type != "" {
			s.sink.Ingest(ev)
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleEventsSSE(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		token = r.URL.Query().Get("token")
	}
	subject, ok := s.authorize(w, token)
	if !ok {
		return
	}

	flusher, canFlush := w.(http.Flusher)
	if !canFlush {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "error": "streaming unsupported"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprint(w, "\n")
	flusher.Flush()

	sub := s.hub.Subscribe(subject)
	defer sub.Close()
	s.trackStream(1)
	defer s.trackStream(-1)
	s.logger.Info("stream connected", "transport", "sse", "subject", subject)

	for {
		select {
		case <-r.Context().Done():
			return
		case msg, open := <-sub.C():
			if !open {
				return
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", msg); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

func (s *Server) handleEventsWS(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		token = r.URL.Query().Get("token")
	}
	subject, ok := s.authorize(w, token)
	if !ok {
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	sub := s.hub.Subscribe(subject)
	defer sub.Close()
	s.trackStream(1)
	defer s.trackStream(-1)
	s.logger.Info("stream connected", "transport", "websocket", "subject", subject)

	// Reader goroutine detects the peer closing; the consumer never sends
	// meaningful frames.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case msg, open := <-sub.C():
			if !open {
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}
}

func (s *Server) handleOAuthStart(w http.ResponseWriter, _ *http.Request) {
	authURL, err := s.google.AuthURL()
	if err != nil {
		writeHTML(w, http.StatusBadRequest, "<h3>Missing GOOGLE_CLIENT_ID / GOOGLE_CLIENT_SECRET env vars.</h3>")
		return
	}
	w.Header().Set("Location", authURL)
	w.WriteHeader(http.StatusFound)
}

func (s *Server) handleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")
	if code == "" {
		writeHTML(w, http.StatusBadRequest, "<h3>Missing code</h3>")
		return
	}

	if err := s.google.Exchange(r.Context(), state, code); err != nil {
		if errors.Is(err, google.ErrInvalidState) {
			writeHTML(w, http.StatusBadRequest, "<h3>Invalid state</h3>")
			return
		}
		s.logger.Warn("oauth exchange failed", "error", err)
		writeHTML(w, http.StatusBadRequest, "<h3>OAuth failed</h3>")
		return
	}

	writeHTML(w, http.StatusOK, "<h3>Google OAuth connected. You can close this tab.</h3>")
	if s.pollNow != nil {
		go s.pollNow()
	}
}

func (s *Server) handleOAuthStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":         true,
		"configured": s.google.Configured(),
		"connected":  s.google.Connected(),
		"handles":    s.handles,
	})
}

func (s *Server) handlePairingToken(w http.ResponseWriter, _ *http.Request) {
	if !s.signer.Enabled() {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": "Missing LIVEPAY_PAIRING_SECRET env var."})
		return
	}
	if !s.google.Connected() {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": "Google OAuth not connected (missing id_token). Reconnect OAuth."})
		return
	}
	sub := s.google.Subject()
	if sub == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": "Unable to derive user identity from id_token."})
		return
	}

	token, err := s.signer.Sign(sub, s.google.Email())
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": "Unable to sign pairing token."})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "token": token})
}

func (s *Server) trackStream(delta float64) {
	if s.metrics != nil {
		s.metrics.LiveStreams.Add(delta)
	}
}

func (s *Server) countRejected(reason string) {
	if s.metrics != nil {
		s.metrics.EventsRejected.WithLabelValues(reason).Inc()
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeHTML(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}
