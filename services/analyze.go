package services

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/leafwise/leafwise-go/core"
	"github.com/leafwise/leafwise-go/pkg/media"
)

// Upload timeouts. Batch is strictly larger because the payload is.
const (
	SingleUploadTimeout = 30 * time.Second
	BatchUploadTimeout  = 60 * time.Second
)

// AnalyzeClient issues upload requests against the analysis endpoints,
// attaches the session's bearer token, and hides the backend's response
// shapes behind normalization. Its one retry policy lives here and nowhere
// else: a 401 triggers exactly one silent refresh and one retried request,
// then escalates.
type AnalyzeClient struct {
	baseURL  string
	sessions *SessionManager
	builder  media.Builder
	http     core.HTTPDoer
	log      *zap.Logger
}

func NewAnalyzeClient(baseURL string, sessions *SessionManager, builder media.Builder, doer core.HTTPDoer, log *zap.Logger) *AnalyzeClient {
	if doer == nil {
		doer = http.DefaultClient
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &AnalyzeClient{
		baseURL:  baseURL,
		sessions: sessions,
		builder:  builder,
		http:     doer,
		log:      log,
	}
}

// AnalyzeOne uploads a single capture and returns its normalized result.
func (c *AnalyzeClient) AnalyzeOne(ctx context.Context, asset core.MediaAsset) (*core.AnalysisResult, error) {
	if c.sessions.Snapshot().IsLoading {
		return nil, core.ErrSessionLoading
	}
	raw, err := c.upload(ctx, PathAnalyzeUpload, media.FieldSingle, []core.MediaAsset{asset}, SingleUploadTimeout)
	if err != nil {
		return nil, err
	}
	return Normalize(raw)
}

// AnalyzeBatch uploads an ordered picker selection (1..10 assets) and
// returns normalized results in the same order.
func (c *AnalyzeClient) AnalyzeBatch(ctx context.Context, assets []core.MediaAsset) ([]core.AnalysisResult, error) {
	if c.sessions.Snapshot().IsLoading {
		return nil, core.ErrSessionLoading
	}
	if len(assets) == 0 {
		return nil, core.ErrEmptyBatch
	}
	if len(assets) > core.MaxBatchAssets {
		return nil, core.ErrBatchTooLong
	}

	raw, err := c.upload(ctx, PathAnalyzeBatch, media.FieldBatch, assets, BatchUploadTimeout)
	if err != nil {
		return nil, err
	}
	return NormalizeBatch(raw)
}

// upload runs the build-send cycle with the 401 policy: first attempt with
// the current token; on 401 refresh once through the session manager and
// retry once with the new token. A failed refresh has already forced a
// logout and surfaces as AuthExpired.
func (c *AnalyzeClient) upload(ctx context.Context, path, field string, assets []core.MediaAsset, timeout time.Duration) (json.RawMessage, error) {
	raw, unauthorized, err := c.attempt(ctx, path, field, assets, timeout)
	if err != nil || !unauthorized {
		return raw, err
	}

	c.log.Debug("upload unauthorized, attempting refresh", zap.String("path", path))
	if err := c.sessions.Refresh(ctx); err != nil {
		return nil, err
	}

	raw, unauthorized, err = c.attempt(ctx, path, field, assets, timeout)
	if err != nil {
		return nil, err
	}
	if unauthorized {
		// The refreshed token was rejected too. Tear the session down and
		// surface it; no further retries.
		c.sessions.Logout(ctx)
		return nil, core.NewFailure(core.KindAuthExpired, "session expired, please log in again", http.StatusUnauthorized, nil)
	}
	return raw, nil
}

// attempt performs one build-and-send. The packet is rebuilt per attempt
// because its body reader is single-use. unauthorized reports a 401 so the
// caller can apply the retry policy.
func (c *AnalyzeClient) attempt(ctx context.Context, path, field string, assets []core.MediaAsset, timeout time.Duration) (_ json.RawMessage, unauthorized bool, _ error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	packet, err := c.builder.Build(ctx, field, assets)
	if err != nil {
		return nil, false, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, packet.Body)
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Content-Type", packet.ContentType)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("ngrok-skip-browser-warning", "true")
	if token := c.sessions.AccessToken(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, false, Classify(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, false, core.NewFailure(core.KindNetworkUnavailable, "failed to read response body", resp.StatusCode, err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, true, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, false, ClassifyResponse(resp.StatusCode, resp.Header.Get("Content-Type"), body)
	}

	raw, failure := decodeSuccess(resp.Header.Get("Content-Type"), body)
	if failure != nil {
		return nil, false, failure
	}
	return raw, false, nil
}
