package link

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/vitalbridge/whoopsync/internal/whoop"
)

// fakeProfiles returns a fixed upstream profile.
type fakeProfiles struct {
	profile whoop.Profile
	err     error
}

func (f *fakeProfiles) FetchProfile(ctx context.Context, token string) (whoop.Profile, error) {
	return f.profile, f.err
}

func newTestFlow(t *testing.T, repo Repo, te *tokenEndpoint) *Flow {
	t.Helper()
	cfg := te.config()
	store := NewStore(repo, cfg)
	profiles := &fakeProfiles{profile: whoop.Profile{UserID: 40402}}
	return NewFlow(repo, store, cfg, profiles, 10*time.Minute)
}

func TestBegin_AuthorizationURL(t *testing.T) {
	te := newTokenEndpoint()
	defer te.srv.Close()

	repo := newFakeRepo()
	flow := newTestFlow(t, repo, te)
	userID := uuid.New()

	authURL, state, err := flow.Begin(context.Background(), userID, "", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	u, err := url.Parse(authURL)
	if err != nil {
		t.Fatalf("authorization URL does not parse: %v", err)
	}
	q := u.Query()

	if got := q.Get("state"); got != state {
		t.Errorf("URL state %q != returned state %q", got, state)
	}
	if got := q.Get("client_id"); got != "client-id" {
		t.Errorf("client_id: got %q", got)
	}
	if got := q.Get("redirect_uri"); got != "https://app.example.com/callback" {
		t.Errorf("redirect_uri: got %q", got)
	}
	if got := q.Get("code_challenge_method"); got != "S256" {
		t.Errorf("code_challenge_method: got %q", got)
	}
	if q.Get("code_challenge") == "" {
		t.Error("code_challenge missing")
	}
	if !strings.Contains(q.Get("scope"), "read:recovery") {
		t.Errorf("scope: got %q", q.Get("scope"))
	}

	// State is persisted with a verifier and an expiry in the future.
	p := repo.pending[state]
	if p.UserID != userID {
		t.Errorf("pending bound to wrong user: %s", p.UserID)
	}
	if len(p.CodeVerifier) < 43 {
		t.Errorf("verifier too short: %d chars", len(p.CodeVerifier))
	}
	if !p.ExpiresAt.After(time.Now()) {
		t.Error("pending expiry must be in the future")
	}
}

func TestBegin_StatesAreUnique(t *testing.T) {
	te := newTokenEndpoint()
	defer te.srv.Close()

	flow := newTestFlow(t, newFakeRepo(), te)

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		_, state, err := flow.Begin(context.Background(), uuid.New(), "", nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(state) < 40 {
			t.Fatalf("state too short for 256 bits of entropy: %d chars", len(state))
		}
		if seen[state] {
			t.Fatalf("duplicate state %q", state)
		}
		seen[state] = true
	}
}

func TestComplete_RoundTrip(t *testing.T) {
	// Token endpoint that checks the PKCE verifier round-trips.
	var gotVerifier string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		gotVerifier = r.Form.Get("code_verifier")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"granted-access","refresh_token":"granted-refresh","token_type":"Bearer","expires_in":3600,"scope":"read:recovery offline"}`))
	}))
	defer srv.Close()

	te := &tokenEndpoint{srv: srv}
	repo := newFakeRepo()
	flow := newTestFlow(t, repo, te)
	userID := uuid.New()

	_, state, err := flow.Begin(context.Background(), userID, "", nil)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	wantVerifier := repo.pending[state].CodeVerifier

	if err := flow.Complete(context.Background(), "auth-code", state); err != nil {
		t.Fatalf("complete: %v", err)
	}

	if gotVerifier != wantVerifier {
		t.Errorf("exchange must send the stored verifier: got %q want %q", gotVerifier, wantVerifier)
	}

	l, _ := repo.GetLink(context.Background(), userID)
	if l == nil || !l.IsActive {
		t.Fatal("link must exist and be active after completion")
	}
	if l.AccessToken != "granted-access" {
		t.Errorf("access token: got %q", l.AccessToken)
	}
	if l.WhoopUserID != "40402" {
		t.Errorf("upstream user id: got %q", l.WhoopUserID)
	}
	if len(l.Scopes) != 2 || l.Scopes[0] != "read:recovery" {
		t.Errorf("granted scopes should be persisted, got %v", l.Scopes)
	}
	if _, exists := repo.pending[state]; exists {
		t.Error("pending row must be deleted after completion")
	}
}

func TestComplete_StateSingleUse(t *testing.T) {
	te := newTokenEndpoint()
	defer te.srv.Close()

	repo := newFakeRepo()
	flow := newTestFlow(t, repo, te)

	_, state, err := flow.Begin(context.Background(), uuid.New(), "", nil)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}

	if err := flow.Complete(context.Background(), "code", state); err != nil {
		t.Fatalf("first complete: %v", err)
	}

	err = flow.Complete(context.Background(), "code", state)
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("second complete must fail with ErrInvalidState, got %v", err)
	}
}

func TestComplete_ConcurrentCallbacks(t *testing.T) {
	te := newTokenEndpoint()
	defer te.srv.Close()

	repo := newFakeRepo()
	flow := newTestFlow(t, repo, te)

	_, state, err := flow.Begin(context.Background(), uuid.New(), "", nil)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}

	const callers = 8
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = flow.Complete(context.Background(), "code", state)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else if !errors.Is(err, ErrInvalidState) {
			t.Errorf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 {
		t.Errorf("exactly one concurrent callback may succeed, got %d", succeeded)
	}
}

func TestComplete_ExchangeRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"invalid_grant"}`))
	}))
	defer srv.Close()

	repo := newFakeRepo()
	flow := newTestFlow(t, repo, &tokenEndpoint{srv: srv})

	_, state, err := flow.Begin(context.Background(), uuid.New(), "", nil)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}

	err = flow.Complete(context.Background(), "bad-code", state)
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("a rejected code must surface ErrInvalidState, got %v", err)
	}
}

func TestComplete_ExchangeOutageIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	repo := newFakeRepo()
	flow := newTestFlow(t, repo, &tokenEndpoint{srv: srv})

	userID := uuid.New()
	_, state, err := flow.Begin(context.Background(), userID, "", nil)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}

	err = flow.Complete(context.Background(), "code", state)
	var te *whoop.TransientError
	if !errors.As(err, &te) {
		t.Fatalf("a token-endpoint outage must surface a transient error, got %v", err)
	}
	if errors.Is(err, ErrInvalidState) {
		t.Error("an outage must not be reported as an invalid state")
	}

	// No tokens were granted, so no link may appear.
	if l, _ := repo.GetLink(context.Background(), userID); l != nil {
		t.Error("no link may be stored when the exchange fails")
	}
}

func TestComplete_UnknownState(t *testing.T) {
	te := newTokenEndpoint()
	defer te.srv.Close()

	flow := newTestFlow(t, newFakeRepo(), te)

	err := flow.Complete(context.Background(), "code", "never-issued")
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
}

func TestComplete_ExpiredState(t *testing.T) {
	te := newTokenEndpoint()
	defer te.srv.Close()

	repo := newFakeRepo()
	flow := newTestFlow(t, repo, te)

	_, state, err := flow.Begin(context.Background(), uuid.New(), "", nil)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}

	// Age the pending row past its TTL.
	p := repo.pending[state]
	p.ExpiresAt = time.Now().Add(-time.Second)
	repo.pending[state] = p

	err = flow.Complete(context.Background(), "code", state)
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expired state must be rejected, got %v", err)
	}
	if n := te.calls.Load(); n != 0 {
		t.Errorf("expired state must not reach the token endpoint, got %d calls", n)
	}
}

func TestSweepPending(t *testing.T) {
	te := newTokenEndpoint()
	defer te.srv.Close()

	repo := newFakeRepo()
	flow := newTestFlow(t, repo, te)

	repo.pending["live"] = Pending{State: "live", ExpiresAt: time.Now().Add(time.Hour)}
	repo.pending["dead"] = Pending{State: "dead", ExpiresAt: time.Now().Add(-time.Hour)}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		flow.SweepPending(ctx, 10*time.Millisecond)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		repo.mu.Lock()
		_, deadGone := repo.pending["dead"]
		repo.mu.Unlock()
		if !deadGone {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	<-done

	repo.mu.Lock()
	defer repo.mu.Unlock()
	if _, ok := repo.pending["dead"]; ok {
		t.Error("expired pending row should have been swept")
	}
	if _, ok := repo.pending["live"]; !ok {
		t.Error("live pending row must survive the sweep")
	}
}
