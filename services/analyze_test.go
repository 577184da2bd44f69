package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/leafwise/leafwise-go/core"
	"github.com/leafwise/leafwise-go/pkg/media"
)

// analyzeStub serves the auth endpoints plus the two analyze endpoints,
// counting upload attempts and optionally rejecting the first N with 401.
type analyzeStub struct {
	mu            sync.Mutex
	uploads       int
	rejectUploads int // respond 401 to this many upload attempts
	failRefresh   bool
	bearers       []string
	response      string // body for successful uploads
}

func (h *analyzeStub) uploadCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.uploads
}

func (h *analyzeStub) seenBearers() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.bearers...)
}

func (h *analyzeStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case PathAnalyzeUpload, PathAnalyzeBatch:
		h.mu.Lock()
		h.uploads++
		h.bearers = append(h.bearers, r.Header.Get("Authorization"))
		reject := h.rejectUploads > 0
		if reject {
			h.rejectUploads--
		}
		h.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if reject {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"detail":"token expired"}`))
			return
		}
		body := h.response
		if body == "" {
			body = `{"part_detection":{"part":"leaf","confidence":0.97},"disease_detection":{"disease":"Early Blight","confidence":0.91}}`
		}
		w.Write([]byte(body))

	case PathRefresh:
		w.Header().Set("Content-Type", "application/json")
		if h.failRefresh {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"detail":"refresh token revoked"}`))
			return
		}
		json.NewEncoder(w).Encode(map[string]string{
			"access_token":  "access-2",
			"refresh_token": "refresh-2",
		})

	case PathLogout:
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{}`))

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// newTestAnalyzeClient wires a client against the stub with the filesystem
// media strategy and a hydrated authenticated session.
func newTestAnalyzeClient(t *testing.T, stub *analyzeStub) (*AnalyzeClient, *SessionManager) {
	t.Helper()
	server := httptest.NewServer(stub)
	t.Cleanup(server.Close)

	store := NewFakeCredentialStore()
	seedStoredSession(store)
	bridge := NewIdentityBridge(server.URL, server.Client(), nil)
	sessions := NewSessionManager(store, NewFakeIdentityProvider("fed-token"), bridge, nil)
	if err := sessions.Load(context.Background()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	client := NewAnalyzeClient(server.URL, sessions, media.NewFileBuilder(), server.Client(), nil)
	return client, sessions
}

func tempImage(t *testing.T, name string) core.MediaAsset {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte("jpeg-bytes"), 0o600); err != nil {
		t.Fatalf("failed to write temp image: %v", err)
	}
	return core.MediaAsset{URI: path, Name: name}
}

// Requirement: a single upload attaches the bearer token and returns a
// normalized result, never a raw backend shape.
func TestAnalyzeClient_AnalyzeOne(t *testing.T) {
	stub := &analyzeStub{}
	client, _ := newTestAnalyzeClient(t, stub)

	result, err := client.AnalyzeOne(context.Background(), tempImage(t, "leaf.jpg"))
	if err != nil {
		t.Fatalf("AnalyzeOne() error = %v", err)
	}

	if result.Part.Label != "leaf" || result.Disease.Label != "Early Blight" {
		t.Errorf("result = %+v, want leaf / Early Blight", result)
	}
	if stub.uploadCount() != 1 {
		t.Errorf("upload attempts = %d, want 1", stub.uploadCount())
	}
	bearers := stub.seenBearers()
	if len(bearers) != 1 || bearers[0] != "Bearer stored-access" {
		t.Errorf("bearer headers = %v, want [Bearer stored-access]", bearers)
	}
}

// Requirement: a 401 triggers exactly one silent refresh and one retry;
// the retry carries the new token and the call resolves normally. Exactly
// two upload attempts are observed.
func TestAnalyzeClient_RefreshThenRetry(t *testing.T) {
	// Arrange
	stub := &analyzeStub{rejectUploads: 1}
	client, sessions := newTestAnalyzeClient(t, stub)

	// Act
	result, err := client.AnalyzeOne(context.Background(), tempImage(t, "leaf.jpg"))

	// Assert
	if err != nil {
		t.Fatalf("AnalyzeOne() error = %v", err)
	}
	if result.Disease.Label != "Early Blight" {
		t.Errorf("Disease.Label = %q, want Early Blight", result.Disease.Label)
	}
	if got := stub.uploadCount(); got != 2 {
		t.Errorf("upload attempts = %d, want exactly 2", got)
	}
	bearers := stub.seenBearers()
	if len(bearers) != 2 || bearers[1] != "Bearer access-2" {
		t.Errorf("retry bearer = %v, want second attempt with Bearer access-2", bearers)
	}
	if got := sessions.Snapshot().AccessToken; got != "access-2" {
		t.Errorf("session access token = %q, want access-2", got)
	}
}

// Requirement: a 401 followed by a failing refresh forces the session to
// anonymous and rejects with AuthExpired; the upload is not retried.
func TestAnalyzeClient_RefreshFailureForcesLogout(t *testing.T) {
	// Arrange
	stub := &analyzeStub{rejectUploads: 1, failRefresh: true}
	client, sessions := newTestAnalyzeClient(t, stub)

	// Act
	_, err := client.AnalyzeOne(context.Background(), tempImage(t, "leaf.jpg"))

	// Assert
	if core.FailureKindOf(err) != core.KindAuthExpired {
		t.Fatalf("error kind = %v, want KindAuthExpired (err %v)", core.FailureKindOf(err), err)
	}
	if sessions.Snapshot().Authenticated() {
		t.Error("session must be anonymous after failed refresh")
	}
	if got := stub.uploadCount(); got != 1 {
		t.Errorf("upload attempts = %d, want 1 (no retry after failed refresh)", got)
	}
}

// Requirement: when the retried request is rejected too, the call
// escalates to AuthExpired with no further retries.
func TestAnalyzeClient_RetryRejectedEscalates(t *testing.T) {
	stub := &analyzeStub{rejectUploads: 2}
	client, sessions := newTestAnalyzeClient(t, stub)

	_, err := client.AnalyzeOne(context.Background(), tempImage(t, "leaf.jpg"))

	if core.FailureKindOf(err) != core.KindAuthExpired {
		t.Fatalf("error kind = %v, want KindAuthExpired", core.FailureKindOf(err))
	}
	if got := stub.uploadCount(); got != 2 {
		t.Errorf("upload attempts = %d, want exactly 2", got)
	}
	if sessions.Snapshot().Authenticated() {
		t.Error("session must be torn down when the refreshed token is rejected")
	}
}

// Requirement: batch upload uses the repeated files field and returns
// results in order.
func TestAnalyzeClient_AnalyzeBatch(t *testing.T) {
	stub := &analyzeStub{response: `{"results":[
		{"disease_detection":{"disease":"Early Blight","confidence":0.9}},
		{"disease_detection":{"disease":"Healthy","confidence":0.95}}
	]}`}
	client, _ := newTestAnalyzeClient(t, stub)

	results, err := client.AnalyzeBatch(context.Background(), []core.MediaAsset{
		tempImage(t, "a.jpg"),
		tempImage(t, "b.jpg"),
	})
	if err != nil {
		t.Fatalf("AnalyzeBatch() error = %v", err)
	}

	if len(results) != 2 {
		t.Fatalf("len(results) = %d, want 2", len(results))
	}
	if results[0].Disease.Label != "Early Blight" || results[1].Disease.Label != "Healthy" {
		t.Errorf("results out of order: %q, %q", results[0].Disease.Label, results[1].Disease.Label)
	}
}

// Requirement: uploads are rejected until the stored session has been
// hydrated, so a racing startup cannot fire unauthenticated requests.
func TestAnalyzeClient_RejectsWhileLoading(t *testing.T) {
	stub := &analyzeStub{}
	server := httptest.NewServer(stub)
	defer server.Close()

	bridge := NewIdentityBridge(server.URL, server.Client(), nil)
	sessions := NewSessionManager(NewFakeCredentialStore(), NewFakeIdentityProvider("fed-token"), bridge, nil)
	client := NewAnalyzeClient(server.URL, sessions, media.NewFileBuilder(), server.Client(), nil)

	if _, err := client.AnalyzeOne(context.Background(), tempImage(t, "leaf.jpg")); !errors.Is(err, core.ErrSessionLoading) {
		t.Errorf("AnalyzeOne() before Load error = %v, want ErrSessionLoading", err)
	}
	if _, err := client.AnalyzeBatch(context.Background(), []core.MediaAsset{tempImage(t, "leaf.jpg")}); !errors.Is(err, core.ErrSessionLoading) {
		t.Errorf("AnalyzeBatch() before Load error = %v, want ErrSessionLoading", err)
	}
	if stub.uploadCount() != 0 {
		t.Errorf("upload attempts = %d, want 0", stub.uploadCount())
	}
}

// Requirement: batch size is bounded to the picker's 0..10 selection.
func TestAnalyzeClient_BatchLimits(t *testing.T) {
	stub := &analyzeStub{}
	client, _ := newTestAnalyzeClient(t, stub)

	if _, err := client.AnalyzeBatch(context.Background(), nil); !errors.Is(err, core.ErrEmptyBatch) {
		t.Errorf("empty batch error = %v, want ErrEmptyBatch", err)
	}

	assets := make([]core.MediaAsset, core.MaxBatchAssets+1)
	for i := range assets {
		assets[i] = core.MediaAsset{URI: "/tmp/x.jpg"}
	}
	if _, err := client.AnalyzeBatch(context.Background(), assets); !errors.Is(err, core.ErrBatchTooLong) {
		t.Errorf("oversized batch error = %v, want ErrBatchTooLong", err)
	}
	if stub.uploadCount() != 0 {
		t.Errorf("upload attempts = %d, want 0", stub.uploadCount())
	}
}

// Requirement: if dereferencing any asset of a batch fails, the whole
// batch rejects with MediaFetchError and zero upload requests are issued.
func TestAnalyzeClient_BatchAtomicity(t *testing.T) {
	// Arrange: an asset host where the third of five images is missing.
	assetHost := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/img-3.jpg" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte("jpeg-bytes"))
	}))
	defer assetHost.Close()

	stub := &analyzeStub{}
	server := httptest.NewServer(stub)
	defer server.Close()

	store := NewFakeCredentialStore()
	seedStoredSession(store)
	bridge := NewIdentityBridge(server.URL, server.Client(), nil)
	sessions := NewSessionManager(store, NewFakeIdentityProvider("fed-token"), bridge, nil)
	sessions.Load(context.Background())
	client := NewAnalyzeClient(server.URL, sessions, media.NewRemoteBuilder(assetHost.Client()), server.Client(), nil)

	assets := make([]core.MediaAsset, 5)
	for i := range assets {
		assets[i] = core.MediaAsset{URI: assetHost.URL + "/img-" + string(rune('1'+i)) + ".jpg"}
	}

	// Act
	_, err := client.AnalyzeBatch(context.Background(), assets)

	// Assert
	var fetchErr *core.MediaFetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("error = %v, want *core.MediaFetchError", err)
	}
	if fetchErr.AssetName != "img-3.jpg" {
		t.Errorf("failed asset = %q, want img-3.jpg", fetchErr.AssetName)
	}
	if stub.uploadCount() != 0 {
		t.Errorf("upload attempts = %d, want 0", stub.uploadCount())
	}
}

// Requirement: a structured 4xx surfaces as ValidationError and is never
// retried.
func TestAnalyzeClient_ValidationError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"detail":"file is not an image"}`))
	}))
	defer server.Close()

	store := NewFakeCredentialStore()
	bridge := NewIdentityBridge(server.URL, server.Client(), nil)
	sessions := NewSessionManager(store, NewFakeIdentityProvider("fed-token"), bridge, nil)
	sessions.Load(context.Background())
	client := NewAnalyzeClient(server.URL, sessions, media.NewFileBuilder(), server.Client(), nil)

	_, err := client.AnalyzeOne(context.Background(), tempImage(t, "doc.jpg"))

	var failure *core.Failure
	if !errors.As(err, &failure) {
		t.Fatalf("error = %v, want *core.Failure", err)
	}
	if failure.Kind != core.KindValidation {
		t.Errorf("Kind = %v, want KindValidation", failure.Kind)
	}
	if failure.Message != "file is not an image" {
		t.Errorf("Message = %q, want backend detail", failure.Message)
	}
}

// Requirement: a 2xx with a non-JSON body (tunnel interstitials, proxy
// error pages) is MalformedResponse, not a decode panic.
func TestAnalyzeClient_MalformedResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html><body>tunnel warning</body></html>"))
	}))
	defer server.Close()

	store := NewFakeCredentialStore()
	bridge := NewIdentityBridge(server.URL, server.Client(), nil)
	sessions := NewSessionManager(store, NewFakeIdentityProvider("fed-token"), bridge, nil)
	sessions.Load(context.Background())
	client := NewAnalyzeClient(server.URL, sessions, media.NewFileBuilder(), server.Client(), nil)

	_, err := client.AnalyzeOne(context.Background(), tempImage(t, "leaf.jpg"))

	if core.FailureKindOf(err) != core.KindMalformedResponse {
		t.Fatalf("error kind = %v, want KindMalformedResponse (err %v)", core.FailureKindOf(err), err)
	}
}
