package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/leafwise/leafwise-go/core"
)

// Error classification. Every failure out of the identity bridge or the
// analyze client carries exactly one core.FailureKind. The rules look at
// transport error types, status codes, content types, and body shape -
// never at message text, so backend wording changes cannot reclassify
// anything.

// Classify maps a transport-level error (no HTTP response was obtained)
// onto the taxonomy.
func Classify(err error) *core.Failure {
	var f *core.Failure
	if errors.As(err, &f) {
		return f
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return core.NewFailure(core.KindTimeout, "request timed out", 0, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return core.NewFailure(core.KindTimeout, "request timed out", 0, err)
	}

	return core.NewFailure(core.KindNetworkUnavailable, "could not reach the service", 0, err)
}

// ClassifyResponse maps a non-2xx HTTP response onto the taxonomy.
func ClassifyResponse(status int, contentType string, body []byte) *core.Failure {
	switch {
	case status == http.StatusUnauthorized:
		return core.NewFailure(core.KindAuthExpired, "session expired", status, nil)

	case status >= 400 && status < 500:
		if detail := errorDetail(contentType, body); detail != "" {
			return core.NewFailure(core.KindValidation, detail, status, nil)
		}
		// A 4xx without a structured detail is treated as a server fault:
		// the contract promises a detail on every intentional rejection.
		return core.NewFailure(core.KindServer, fmt.Sprintf("server returned %d", status), status, nil)

	case status >= 500:
		return core.NewFailure(core.KindServer, fmt.Sprintf("server returned %d", status), status, nil)

	default:
		return core.NewFailure(core.KindMalformedResponse, fmt.Sprintf("unexpected status %d", status), status, nil)
	}
}

// decodeSuccess verifies a 2xx body is JSON before handing it to the
// normalizer; HTML answers from captive tunnels land here.
func decodeSuccess(contentType string, body []byte) (json.RawMessage, *core.Failure) {
	if !jsonBody(contentType, body) {
		return nil, core.NewFailure(core.KindMalformedResponse, "response is not JSON", 0, nil)
	}
	if !json.Valid(body) {
		return nil, core.NewFailure(core.KindMalformedResponse, "response is not valid JSON", 0, nil)
	}
	return json.RawMessage(body), nil
}
