package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"

	"github.com/Space2024/chitenv/internal/platform/config"
	dErrors "github.com/Space2024/chitenv/pkg/domain-errors"
	"github.com/Space2024/chitenv/pkg/platform/circuit"
)

// HTTPClient talks to the real upstream over HTTP. The advisory read endpoints
// are guarded by a circuit breaker: when the upstream is failing, checks fail
// open instead of hammering it.
type HTTPClient struct {
	baseURL       string
	client        *http.Client
	verifyTimeout time.Duration
	checkTimeout  time.Duration
	breaker       *circuit.Breaker
	logger        *slog.Logger
}

// Option configures an HTTPClient.
type Option func(*HTTPClient)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *HTTPClient) { c.logger = logger }
}

// WithHTTPClient replaces the underlying transport, mainly for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *HTTPClient) { c.client = hc }
}

// NewHTTPClient builds a client for the configured upstream.
func NewHTTPClient(cfg config.Upstream, opts ...Option) *HTTPClient {
	c := &HTTPClient{
		baseURL:       cfg.BaseURL,
		client:        &http.Client{},
		verifyTimeout: cfg.VerifyTimeout,
		checkTimeout:  cfg.CheckTimeout,
		breaker:       circuit.New("upstream-checks", circuit.WithFailureThreshold(5)),
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *HTTPClient) CheckUser(ctx context.Context, mobile string) (bool, error) {
	var body struct {
		Exists bool `json:"exists"`
	}
	err := c.getJSON(ctx, fmt.Sprintf("/check_users/%s", url.PathEscape(mobile)), &body)
	if err != nil {
		return false, err
	}
	return body.Exists, nil
}

func (c *HTTPClient) ChitUser(ctx context.Context, mobile, relationship string) (ChitStatus, error) {
	var body struct {
		Exists bool `json:"exists"`
		Data   *struct {
			ChitStatus string `json:"chit_status"`
		} `json:"data"`
	}
	path := fmt.Sprintf("/chit_user/%s/%s", url.PathEscape(mobile), url.PathEscape(relationship))
	if err := c.getJSON(ctx, path, &body); err != nil {
		return ChitStatus{}, err
	}
	status := ChitStatus{Exists: body.Exists}
	if body.Data != nil {
		status.Status = body.Data.ChitStatus
	}
	return status, nil
}

func (c *HTTPClient) Customer(ctx context.Context, mobile string) (*CustomerProfile, error) {
	var raw map[string]any
	if err := c.getJSON(ctx, fmt.Sprintf("/customer/%s", url.PathEscape(mobile)), &raw); err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}
	profile := &CustomerProfile{Fields: make(map[string]string)}
	for k, v := range raw {
		s, ok := v.(string)
		if !ok {
			continue
		}
		if k == "status" {
			profile.Status = s
			continue
		}
		profile.Fields[k] = s
	}
	return profile, nil
}

func (c *HTTPClient) Submit(ctx context.Context, req SubmitRequest) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for key, value := range req.Record.Scalars() {
		if err := w.WriteField(key, value); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to assemble submission")
		}
	}
	if err := w.WriteField("sessionId", req.SessionID); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to assemble submission")
	}
	if err := w.WriteField("branch", req.Branch); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to assemble submission")
	}
	for _, img := range req.Images {
		part, err := w.CreateFormFile("images", string(img.Slot)+".jpg")
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to attach image")
		}
		if _, err := part.Write(img.Data); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to attach image")
		}
	}
	if err := w.Close(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to assemble submission")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chit_customer", &buf)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to build submission request")
	}
	httpReq.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "error submitting form")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return dErrors.Newf(dErrors.CodeUnavailable, "submission rejected with status %d", resp.StatusCode)
	}
	return nil
}

func (c *HTTPClient) VerifyOTP(ctx context.Context, code, mobile, sessionID string) (bool, error) {
	payload, err := json.Marshal(map[string]string{
		"OTP":       code,
		"mobileNo":  mobile,
		"sessionId": sessionID,
	})
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to encode verification request")
	}

	// The verify deadline is enforced client-side and reported distinctly from
	// a server-rejected code.
	ctx, cancel := context.WithTimeout(ctx, c.verifyTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chit_verify_otp", bytes.NewReader(payload))
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to build verification request")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return false, dErrors.Wrap(err, dErrors.CodeTimeout, "verification timed out")
		}
		return false, dErrors.Wrap(err, dErrors.CodeUnavailable, "verification request failed")
	}
	defer resp.Body.Close()

	var body struct {
		Exists bool `json:"exists"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to decode verification response")
	}
	return body.Exists, nil
}

func (c *HTTPClient) ResendOTP(ctx context.Context, mobile, sessionID string) error {
	u := fmt.Sprintf("%s/resend/%s?sessionId=%s", c.baseURL, url.PathEscape(mobile), url.QueryEscape(sessionID))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to build resend request")
	}
	resp, err := c.client.Do(httpReq)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to resend OTP")
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return dErrors.Newf(dErrors.CodeUnavailable, "resend rejected with status %d", resp.StatusCode)
	}
	return nil
}

// getJSON performs a breaker-guarded GET against an advisory read endpoint.
func (c *HTTPClient) getJSON(ctx context.Context, path string, out any) error {
	if c.breaker.IsOpen() {
		return dErrors.New(dErrors.CodeUnavailable, "upstream checks unavailable")
	}

	ctx, cancel := context.WithTimeout(ctx, c.checkTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to build request")
	}
	resp, err := c.client.Do(req)
	if err != nil {
		if _, change := c.breaker.RecordFailure(); change.Opened {
			c.logger.WarnContext(ctx, "upstream check breaker opened", "breaker", c.breaker.Name())
		}
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "upstream check failed")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		if _, change := c.breaker.RecordFailure(); change.Opened {
			c.logger.WarnContext(ctx, "upstream check breaker opened", "breaker", c.breaker.Name())
		}
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, resp.Body)
		return dErrors.Newf(dErrors.CodeUnavailable, "upstream check returned status %d", resp.StatusCode)
	}
	if _, change := c.breaker.RecordSuccess(); change.Closed {
		c.logger.InfoContext(ctx, "upstream check breaker closed", "breaker", c.breaker.Name())
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
