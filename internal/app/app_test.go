package app

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvcrn/bggeo-token-refresh/internal/auth"
	"github.com/dvcrn/bggeo-token-refresh/internal/notify"
	"github.com/dvcrn/bggeo-token-refresh/internal/refresh"
	"github.com/dvcrn/bggeo-token-refresh/internal/state"
)

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notify.Notification
}

func (r *recordingNotifier) Notify(_ context.Context, n notify.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return nil
}

func (r *recordingNotifier) reasons() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.sent))
	for _, n := range r.sent {
		out = append(out, n.Reason)
	}
	return out
}

func postEvent(t *testing.T, a *App, body string) int {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/events", strings.NewReader(body))
	req.Header.Set("X-API-Key", "admin")
	rec := httptest.NewRecorder()
	a.Server.ServeHTTP(rec, req)
	return rec.Code
}

func TestUnauthorizedDeliveryRefreshesStoredTokens(t *testing.T) {
	queries := make(chan string, 1)
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		queries <- r.URL.RawQuery
		assert.Equal(t, http.MethodPost, r.Method)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"A2","refresh_token":"R2","expires_in":3600}`))
	}))
	defer upstream.Close()

	initial, err := state.Decode([]byte(`{"url":"https://example.com/locations","headers":{"authorization":"Bearer A1"},"extras":{"refreshUrl":"` + upstream.URL + `/refresh?refresh_token=R1","token":{"access_token":"A1","refresh_token":"R1"}}}`))
	require.NoError(t, err)
	store, err := state.NewMemoryStore(initial)
	require.NoError(t, err)

	notifier := &recordingNotifier{}
	a := New(store, notifier, zerolog.Nop(), Options{
		AdminAPIKey: "admin",
		Refresh:     refresh.Options{Strategy: refresh.QueryStrategy{Mode: refresh.QueryReplace}},
		Exchange:    []auth.Option{auth.WithHTTPClient(upstream.Client())},
	})

	require.Equal(t, http.StatusAccepted, postEvent(t, a, `{"action":"com.transistorsoft.locationmanager.event.HTTP","status":401}`))
	a.Coordinator.Wait()

	assert.Equal(t, "refresh_token=R1", <-queries)

	cfg, err := store.Get(context.Background())
	require.NoError(t, err)
	authz, ok := cfg.Authorization()
	require.True(t, ok)
	assert.Equal(t, "Bearer A2", authz)
	assert.Equal(t, upstream.URL+"/refresh?refresh_token=R2", cfg.Extras.RefreshURL)
	require.NotNil(t, cfg.Extras.Token)
	assert.Equal(t, "R2", cfg.Extras.Token.RefreshToken)
	assert.Empty(t, notifier.reasons())
}

func TestNonAuthEventsLeaveStoreAlone(t *testing.T) {
	store, err := state.NewMemoryStore(nil)
	require.NoError(t, err)
	notifier := &recordingNotifier{}
	a := New(store, notifier, zerolog.Nop(), Options{AdminAPIKey: "admin"})

	require.Equal(t, http.StatusAccepted, postEvent(t, a, `{"event":"http","status":500}`))
	require.Equal(t, http.StatusAccepted, postEvent(t, a, `{"event":"location"}`))
	a.Coordinator.Wait()

	assert.Empty(t, notifier.reasons())
	_, err = store.Get(context.Background())
	assert.ErrorIs(t, err, state.ErrNotFound)
}

func TestMissingConfigurationNotifies(t *testing.T) {
	store, err := state.NewMemoryStore(nil)
	require.NoError(t, err)
	notifier := &recordingNotifier{}
	a := New(store, notifier, zerolog.Nop(), Options{AdminAPIKey: "admin"})

	require.Equal(t, http.StatusAccepted, postEvent(t, a, `{"event":"http","status":403}`))
	a.Coordinator.Wait()

	assert.Equal(t, []string{"ConfigUrl not set"}, notifier.reasons())
}

func TestLogTokenStatus(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf)

	empty, err := state.NewMemoryStore(nil)
	require.NoError(t, err)
	LogTokenStatus(context.Background(), empty, log)
	assert.Contains(t, buf.String(), "No configuration stored")

	buf.Reset()
	cfg, err := state.Decode([]byte(`{"extras":{}}`))
	require.NoError(t, err)
	noURL, err := state.NewMemoryStore(cfg)
	require.NoError(t, err)
	LogTokenStatus(context.Background(), noURL, log)
	assert.Contains(t, buf.String(), "refreshUrl is not set")
}

func TestInlineRefreshCompletesBeforeResponse(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"access_token":"A2","refresh_token":"R2"}`))
	}))
	defer upstream.Close()

	initial, err := state.Decode([]byte(`{"headers":{},"extras":{"refreshUrl":"` + upstream.URL + `/refresh","token":{"access_token":"A1","refresh_token":"R1"}}}`))
	require.NoError(t, err)
	store, err := state.NewMemoryStore(initial)
	require.NoError(t, err)

	a := New(store, &recordingNotifier{}, zerolog.Nop(), Options{
		AdminAPIKey: "admin",
		Inline:      true,
		Exchange:    []auth.Option{auth.WithHTTPClient(upstream.Client())},
	})

	require.Equal(t, http.StatusAccepted, postEvent(t, a, `{"event":"http","status":401}`))
	assert.False(t, a.Coordinator.InProgress())

	cfg, err := store.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, upstream.URL+"/refresh?refresh_token=R2", cfg.Extras.RefreshURL)
}
