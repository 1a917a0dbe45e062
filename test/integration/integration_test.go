package integration_test

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/illmedicine/livepay/internal/auth"
	"github.com/illmedicine/livepay/internal/config"
	"github.com/illmedicine/livepay/internal/distribution"
	"github.com/illmedicine/livepay/internal/earnings"
	"github.com/illmedicine/livepay/internal/google"
	"github.com/illmedicine/livepay/internal/httpapi"
	"github.com/illmedicine/livepay/internal/metrics"
)

type testEnv struct {
	server   *httptest.Server
	signer   *auth.Signer
	earnings *earnings.Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	signer := auth.NewSigner("integration-secret")
	hub := distribution.NewHub(nil)
	gc := google.NewClient(config.GoogleConfig{}, nil)

	svc := earnings.NewService(nil)
	svc.StartEventMode()
	t.Cleanup(svc.Stop)

	api := httpapi.NewServer(signer, hub, gc, nil, svc, metrics.NewRegistry(), nil)
	server := httptest.NewServer(api.Router())
	t.Cleanup(server.Close)

	return &testEnv{server: server, signer: signer, earnings: svc}
}

func (env *testEnv) token(t *testing.T, sub string) string {
	t.Helper()
	tok, err := env.signer.Sign(sub, "")
	require.NoError(t, err)
	return tok
}

func (env *testEnv) ingest(t *testing.T, token, payload string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, env.server.URL+"/ingest", strings.NewReader(payload))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func readSSE(t *testing.T, resp *http.Response, n int) []map[string]any {
	t.Helper()
	reader := bufio.NewReader(resp.Body)
	var out []map[string]any
	for len(out) < n {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var decoded map[string]any
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &decoded))
		out = append(out, decoded)
	}
	return out
}

func TestIntegration_IngestReplayAndAggregate(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t, "subject-a")

	for i := 0; i < 5; i++ {
		resp := env.ingest(t, token, fmt.Sprintf(`{"type":"visit","domain":"site-%d.org","seq":%d}`, i, i))
		require.Equal(t, http.StatusOK, resp.StatusCode)
		resp.Body.Close()
	}

	// A subscriber connecting after the fact replays the backlog in order.
	resp, err := http.Get(env.server.URL + "/events?token=" + token)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	events := readSSE(t, resp, 5)
	for i, ev := range events {
		require.EqualValues(t, i, ev["seq"])
		require.Equal(t, "subject-a", ev["userId"])
		require.NotEmpty(t, ev["id"])
	}

	// The same events flowed into the local aggregation.
	state := env.earnings.Snapshot()
	require.EqualValues(t, 5, state.Signals.SitesVisited)
	require.EqualValues(t, 5, state.Signals.UniqueDomains)
	require.Positive(t, state.Wallet.TodaysEarningsUSD)
	require.Len(t, state.Ledger, 10) // a visit and a new-domain entry per event
}

func TestIntegration_SubjectIsolation(t *testing.T) {
	env := newTestEnv(t)
	tokenA := env.token(t, "subject-a")
	tokenB := env.token(t, "subject-b")

	resp := env.ingest(t, tokenA, `{"type":"search","query":"buy nike shoes","domain":"google.com"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// Subject B's stream sees no backlog from subject A.
	streamB, err := http.Get(env.server.URL + "/events?token=" + tokenB)
	require.NoError(t, err)
	defer streamB.Body.Close()

	respB := env.ingest(t, tokenB, `{"type":"visit","domain":"example.org","marker":"b-only"}`)
	require.Equal(t, http.StatusOK, respB.StatusCode)
	respB.Body.Close()

	events := readSSE(t, streamB, 1)
	require.Equal(t, "b-only", events[0]["marker"])
	require.Equal(t, "subject-b", events[0]["userId"])
}

func TestIntegration_UnauthorizedIsUniform(t *testing.T) {
	env := newTestEnv(t)

	expired := auth.NewSigner("other-secret")
	badToken, err := expired.Sign("subject-a", "")
	require.NoError(t, err)

	for _, path := range []string{"/events?token=" + badToken, "/events"} {
		resp, err := http.Get(env.server.URL + path)
		require.NoError(t, err)
		var body map[string]any
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		resp.Body.Close()
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode, path)
		require.Equal(t, "Unauthorized", body["error"], path)
	}

	resp := env.ingest(t, badToken, `{"type":"visit"}`)
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
