package services

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/leafwise/leafwise-go/core"
)

// Requirement: transport failures classify on error type, never message
// text.
func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want core.FailureKind
	}{
		{name: "deadline exceeded is a timeout", err: context.DeadlineExceeded, want: core.KindTimeout},
		{name: "wrapped deadline is a timeout", err: errors.Join(errors.New("post failed"), context.DeadlineExceeded), want: core.KindTimeout},
		{name: "plain error is network unavailable", err: errors.New("connection refused"), want: core.KindNetworkUnavailable},
		{name: "existing failure passes through", err: core.NewFailure(core.KindServer, "boom", 500, nil), want: core.KindServer},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := Classify(test.err).Kind; got != test.want {
				t.Errorf("Classify(%v).Kind = %v, want %v", test.err, got, test.want)
			}
		})
	}
}

// Requirement: a timed-out HTTP round trip classifies as Timeout through
// the real transport error chain.
func TestClassify_RealTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, server.URL, nil)
	_, err := server.Client().Do(req)
	if err == nil {
		t.Fatal("request should have timed out")
	}

	if got := Classify(err).Kind; got != core.KindTimeout {
		t.Errorf("Classify(%v).Kind = %v, want KindTimeout", err, got)
	}
}

// Requirement: HTTP responses classify structurally from status, content
// type, and body shape.
func TestClassifyResponse(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		contentType string
		body        string
		want        core.FailureKind
		wantMessage string
	}{
		{
			name:   "401 is auth expired",
			status: http.StatusUnauthorized,
			body:   `{"detail":"token expired"}`,
			want:   core.KindAuthExpired,
		},
		{
			name:        "4xx with structured detail is validation",
			status:      http.StatusUnprocessableEntity,
			contentType: "application/json",
			body:        `{"detail":"file is not an image"}`,
			want:        core.KindValidation,
			wantMessage: "file is not an image",
		},
		{
			name:        "4xx with message field is validation",
			status:      http.StatusBadRequest,
			contentType: "application/json",
			body:        `{"message":"missing file field"}`,
			want:        core.KindValidation,
			wantMessage: "missing file field",
		},
		{
			name:        "unstructured 4xx is server error",
			status:      http.StatusBadRequest,
			contentType: "text/html",
			body:        "<html>Bad Request</html>",
			want:        core.KindServer,
		},
		{
			name:        "4xx with JSON but no detail is server error",
			status:      http.StatusBadRequest,
			contentType: "application/json",
			body:        `{"oops": true}`,
			want:        core.KindServer,
		},
		{
			name:   "500 is server error",
			status: http.StatusInternalServerError,
			body:   `{"detail":"worker crashed"}`,
			want:   core.KindServer,
		},
		{
			name:        "502 html page is server error",
			status:      http.StatusBadGateway,
			contentType: "text/html",
			body:        "<html>Bad Gateway</html>",
			want:        core.KindServer,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			failure := ClassifyResponse(test.status, test.contentType, []byte(test.body))
			if failure.Kind != test.want {
				t.Errorf("Kind = %v, want %v", failure.Kind, test.want)
			}
			if test.wantMessage != "" && failure.Message != test.wantMessage {
				t.Errorf("Message = %q, want %q", failure.Message, test.wantMessage)
			}
			if failure.Status != test.status {
				t.Errorf("Status = %d, want %d", failure.Status, test.status)
			}
		})
	}
}

// Requirement: body shape sniffing accepts JSON without a content type but
// never mistakes HTML for it.
func TestJSONBody(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
		want        bool
	}{
		{name: "declared json", contentType: "application/json; charset=utf-8", body: "<anything>", want: true},
		{name: "undeclared object", body: `  {"a":1}`, want: true},
		{name: "undeclared array", body: "\n[1,2]", want: true},
		{name: "html", contentType: "text/html", body: "<html></html>", want: false},
		{name: "empty", body: "", want: false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := jsonBody(test.contentType, []byte(test.body)); got != test.want {
				t.Errorf("jsonBody(%q, %q) = %v, want %v", test.contentType, test.body, got, test.want)
			}
		})
	}
}
