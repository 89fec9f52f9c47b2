// Package gateway drives per-tenant WhatsApp instances on a remote
// Evolution-style gateway cluster: existence check, creation, webhook
// configuration, QR retrieval, status polling and reset. All calls are
// synchronous round-trips; the remote instance state is never cached.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Config tunes the gateway client. Zero values take the documented defaults.
type Config struct {
	// FallbackCredential is tried once when the primary credential gets a 401.
	FallbackCredential string
	// Timeout bounds each individual HTTP round-trip. Default 15s.
	Timeout time.Duration
	// Retries is the extra-attempt budget for transient failures. Default 2.
	Retries int
	// Backoff is the pause between retries. Default 250ms.
	Backoff time.Duration
	// QRAttempts is the fixed QR polling budget. Default 5.
	QRAttempts int
	// QRInterval is the pause between QR polls. Default 1s.
	QRInterval time.Duration
	// Debug enables request-level logging including response bodies.
	Debug bool
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = 15 * time.Second
	}
	if c.Retries < 0 {
		c.Retries = 0
	}
	if c.Retries == 0 {
		c.Retries = 2
	}
	if c.Backoff <= 0 {
		c.Backoff = 250 * time.Millisecond
	}
	if c.QRAttempts <= 0 {
		c.QRAttempts = 5
	}
	if c.QRInterval <= 0 {
		c.QRInterval = time.Second
	}
	return c
}

// Target identifies one tenant instance on one gateway stack. Built from a
// routing record by the caller.
type Target struct {
	TenantID     string
	Endpoint     string
	Credential   string
	InstanceName string
	WebhookURL   string
	EventType    string
}

func (t Target) validate() error {
	if t.Endpoint == "" {
		return configErr("gateway endpoint is not configured for this tenant")
	}
	if t.Credential == "" {
		return configErr("gateway credential is not configured for this tenant")
	}
	if t.InstanceName == "" {
		return configErr("tenant has no instance name")
	}
	return nil
}

// QRResult is the payload of a successful QR fetch.
type QRResult struct {
	Base64      string `json:"base64"`
	Code        string `json:"code"`
	PairingCode string `json:"pairing_code,omitempty"`
}

func (q QRResult) empty() bool { return q.Base64 == "" && q.Code == "" }

// Client talks to gateway stacks. Safe for concurrent use; operations that
// mutate a tenant's remote instance are serialized per tenant.
type Client struct {
	http    *http.Client
	cfg     Config
	logger  *slog.Logger
	metrics *Metrics

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewClient creates a gateway client.
func NewClient(cfg Config, logger *slog.Logger, metrics *Metrics) *Client {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		http:    &http.Client{Timeout: cfg.Timeout},
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
		locks:   make(map[string]*sync.Mutex),
	}
}

// tenantLock returns the mutex serializing gateway mutations for one tenant.
func (c *Client) tenantLock(tenantID string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.locks[tenantID]
	if !ok {
		l = &sync.Mutex{}
		c.locks[tenantID] = l
	}
	return l
}

// ConnectAndGetQR runs the full connect pipeline: ensure the instance
// exists, configure its webhook, then poll for the QR code. Returns a
// qr_timeout error when the polling budget is exhausted without a QR.
func (c *Client) ConnectAndGetQR(ctx context.Context, t Target) (*QRResult, error) {
	if err := t.validate(); err != nil {
		c.metrics.observe("connect", "config_error")
		return nil, err
	}
	l := c.tenantLock(t.TenantID)
	l.Lock()
	defer l.Unlock()
	return c.connectLocked(ctx, t)
}

func (c *Client) connectLocked(ctx context.Context, t Target) (*QRResult, error) {
	if err := c.ensureInstance(ctx, t); err != nil {
		c.metrics.observe("connect", "error")
		return nil, err
	}
	if err := c.configureWebhook(ctx, t); err != nil {
		c.metrics.observe("connect", "error")
		return nil, err
	}

	healed := false
	for attempt := 1; attempt <= c.cfg.QRAttempts; attempt++ {
		qr, err := c.fetchQR(ctx, t)
		switch {
		case err == errInstanceMissing && !healed:
			// The instance vanished between check and use. Recreate it
			// once and keep polling.
			healed = true
			if c.metrics != nil {
				c.metrics.SelfHeals.Inc()
			}
			c.logger.Warn("instance missing mid QR poll, recreating",
				"tenant_id", t.TenantID, "instance", t.InstanceName)
			if err := c.ensureInstance(ctx, t); err != nil {
				c.metrics.observe("connect", "error")
				return nil, err
			}
			if err := c.configureWebhook(ctx, t); err != nil {
				c.metrics.observe("connect", "error")
				return nil, err
			}
			continue
		case err != nil:
			c.metrics.observe("connect", "error")
			return nil, err
		}
		if !qr.empty() {
			c.metrics.observe("connect", "ok")
			return &qr, nil
		}
		if attempt < c.cfg.QRAttempts {
			if err := sleep(ctx, c.cfg.QRInterval); err != nil {
				return nil, err
			}
		}
	}
	c.metrics.observe("connect", "qr_timeout")
	return nil, &Error{Kind: KindQRTimeout, Hint: "QR code was not ready in time, retry the connect action"}
}

// ConnectionState returns the remote instance state: open, close,
// connecting or unknown. A transport failure is returned as an error so
// callers can distinguish "gateway down" from "not connected".
func (c *Client) ConnectionState(ctx context.Context, t Target) (string, error) {
	if err := t.validate(); err != nil {
		c.metrics.observe("status", "config_error")
		return "", err
	}
	resp, err := c.do(ctx, t, http.MethodGet, "/instance/connectionState/"+t.InstanceName, nil)
	if err != nil {
		c.metrics.observe("status", "error")
		return "", err
	}
	if isNotFound(resp.status, resp.body) {
		c.metrics.observe("status", "ok")
		return "close", nil
	}
	if resp.status < 200 || resp.status >= 300 {
		c.metrics.observe("status", "error")
		return "", upstreamErr(resp, "gateway rejected the status request")
	}

	var payload struct {
		State    string `json:"state"`
		Instance struct {
			State string `json:"state"`
		} `json:"instance"`
	}
	if err := json.Unmarshal(resp.body, &payload); err != nil {
		c.metrics.observe("status", "ok")
		return "unknown", nil
	}
	state := payload.Instance.State
	if state == "" {
		state = payload.State
	}
	if state == "" {
		// No instance payload at all is reported as a clean disconnect.
		state = "close"
	}
	c.metrics.observe("status", "ok")
	return state, nil
}

// Reset issues a best-effort logout and re-runs the connect pipeline. The
// logout outcome is ignored entirely; the remote side may 404 or error
// without that being meaningful.
func (c *Client) Reset(ctx context.Context, t Target) (*QRResult, error) {
	if err := t.validate(); err != nil {
		c.metrics.observe("reset", "config_error")
		return nil, err
	}
	l := c.tenantLock(t.TenantID)
	l.Lock()
	defer l.Unlock()

	if _, err := c.do(ctx, t, http.MethodDelete, "/instance/logout/"+t.InstanceName, nil); err != nil {
		c.logger.Debug("logout before reset failed, continuing",
			"tenant_id", t.TenantID, "error", err)
	}
	qr, err := c.connectLocked(ctx, t)
	if err != nil {
		c.metrics.observe("reset", "error")
		return nil, err
	}
	c.metrics.observe("reset", "ok")
	return qr, nil
}

// ensureInstance checks the instance exists and creates it when absent. A
// create that races another create is treated as success.
func (c *Client) ensureInstance(ctx context.Context, t Target) error {
	resp, err := c.do(ctx, t, http.MethodGet, "/instance/connectionState/"+t.InstanceName, nil)
	if err != nil {
		return err
	}
	if resp.status >= 200 && resp.status < 300 {
		return nil
	}
	if !isNotFound(resp.status, resp.body) {
		return upstreamErr(resp, "gateway rejected the instance check")
	}

	createBody := map[string]any{
		"instanceName": t.InstanceName,
		"qrcode":       true,
		"integration":  "WHATSAPP-BAILEYS",
	}
	resp, err = c.do(ctx, t, http.MethodPost, "/instance/create", createBody)
	if err != nil {
		return err
	}
	if resp.status >= 200 && resp.status < 300 {
		c.logger.Info("instance created", "tenant_id", t.TenantID, "instance", t.InstanceName)
		return nil
	}
	if isAlreadyExists(resp.status, resp.body) {
		return nil
	}
	return upstreamErr(resp, "gateway refused to create the instance")
}

// configureWebhook points the remote instance at the tenant's downstream
// webhook URL. Both base64 field spellings are sent to cover old and new
// gateway versions. Failure here is fatal to the connect flow.
func (c *Client) configureWebhook(ctx context.Context, t Target) error {
	if t.WebhookURL == "" {
		return configErr("tenant has no webhook URL")
	}
	eventType := t.EventType
	if eventType == "" {
		eventType = "MESSAGES_UPSERT"
	}
	body := map[string]any{
		"webhook": map[string]any{
			"enabled":        true,
			"url":            t.WebhookURL,
			"webhook_base64": true,
			"webhookBase64":  true,
			"events":         []string{eventType},
		},
	}
	resp, err := c.do(ctx, t, http.MethodPost, "/webhook/set/"+t.InstanceName, body)
	if err != nil {
		return err
	}
	if resp.status < 200 || resp.status >= 300 {
		if isNotFound(resp.status, resp.body) {
			return errInstanceMissing
		}
		return upstreamErr(resp, "gateway rejected the webhook configuration")
	}
	return nil
}

// fetchQR requests the QR code for a connecting instance. Returns
// errInstanceMissing when the gateway reports the instance is gone.
func (c *Client) fetchQR(ctx context.Context, t Target) (QRResult, error) {
	resp, err := c.do(ctx, t, http.MethodGet, "/instance/connect/"+t.InstanceName, nil)
	if err != nil {
		return QRResult{}, err
	}
	if isNotFound(resp.status, resp.body) {
		return QRResult{}, errInstanceMissing
	}
	if resp.status < 200 || resp.status >= 300 {
		return QRResult{}, upstreamErr(resp, "gateway rejected the QR request")
	}

	var payload struct {
		Base64      string `json:"base64"`
		Code        string `json:"code"`
		PairingCode string `json:"pairingCode"`
		QRCode      struct {
			Base64 string `json:"base64"`
			Code   string `json:"code"`
		} `json:"qrcode"`
	}
	if err := json.Unmarshal(resp.body, &payload); err != nil {
		return QRResult{}, nil
	}
	qr := QRResult{Base64: payload.Base64, Code: payload.Code, PairingCode: payload.PairingCode}
	if qr.Base64 == "" {
		qr.Base64 = payload.QRCode.Base64
	}
	if qr.Code == "" {
		qr.Code = payload.QRCode.Code
	}
	return qr, nil
}

// upstream is one completed gateway response.
type upstream struct {
	status int
	body   []byte
}

// do issues one logical request with the retry and credential-fallback
// policy applied. Transient statuses and transport failures consume the
// retry budget; a 401 triggers a single switch to the fallback credential
// without consuming it. Non-transient statuses are returned to the caller
// for contextual handling.
func (c *Client) do(ctx context.Context, t Target, method, path string, payload any) (*upstream, error) {
	var bodyBytes []byte
	if payload != nil {
		var err error
		bodyBytes, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode gateway request: %w", err)
		}
	}
	url := strings.TrimRight(t.Endpoint, "/") + path

	credential := t.Credential
	fallbackUsed := false
	attempt := 0
	var lastErr error

	for {
		req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(bodyBytes))
		if err != nil {
			return nil, fmt.Errorf("build gateway request: %w", err)
		}
		req.Header.Set("apikey", credential)
		if bodyBytes != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			if attempt < c.cfg.Retries {
				attempt++
				if c.metrics != nil {
					c.metrics.Retries.Inc()
				}
				if err := sleep(ctx, c.cfg.Backoff); err != nil {
					return nil, err
				}
				continue
			}
			return nil, &Error{Kind: KindUnreachable, Hint: "gateway did not respond, check the endpoint", err: lastErr}
		}

		body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		resp.Body.Close()
		if err != nil {
			return nil, &Error{Kind: KindUnreachable, Hint: "gateway response was cut short", err: err}
		}
		if c.cfg.Debug {
			c.logger.Debug("gateway round-trip",
				"method", method, "path", path, "status", resp.StatusCode,
				"body", truncate(string(body), 512))
		}

		if resp.StatusCode == http.StatusUnauthorized {
			if !fallbackUsed && c.cfg.FallbackCredential != "" && c.cfg.FallbackCredential != credential {
				fallbackUsed = true
				credential = c.cfg.FallbackCredential
				if c.metrics != nil {
					c.metrics.Fallbacks.Inc()
				}
				c.logger.Warn("gateway 401, retrying with fallback credential",
					"tenant_id", t.TenantID, "path", path)
				continue
			}
			return nil, &Error{
				Kind:   KindUnauthorized,
				Status: resp.StatusCode,
				Hint:   "gateway rejected the credential, check the stack apikey and endpoint",
				Body:   truncate(string(body), 512),
			}
		}

		if retryableStatus(resp.StatusCode) && attempt < c.cfg.Retries {
			attempt++
			if c.metrics != nil {
				c.metrics.Retries.Inc()
			}
			if err := sleep(ctx, c.cfg.Backoff); err != nil {
				return nil, err
			}
			continue
		}
		if retryableStatus(resp.StatusCode) {
			return nil, &Error{
				Kind:   KindUnreachable,
				Status: resp.StatusCode,
				Hint:   "gateway kept failing after retries",
				Body:   truncate(string(body), 512),
			}
		}

		return &upstream{status: resp.StatusCode, body: body}, nil
	}
}

func upstreamErr(resp *upstream, hint string) *Error {
	return &Error{
		Kind:   KindUpstream,
		Status: resp.status,
		Hint:   hint,
		Body:   truncate(string(resp.body), 512),
	}
}

// retryableStatus reports whether a status is worth an automatic retry.
func retryableStatus(status int) bool {
	switch status {
	case http.StatusRequestTimeout, // 408
		http.StatusTooEarly,            // 425
		http.StatusTooManyRequests,     // 429
		http.StatusInternalServerError, // 500
		http.StatusBadGateway,          // 502
		http.StatusServiceUnavailable,  // 503
		http.StatusGatewayTimeout:      // 504
		return true
	}
	return false
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// MaskKey hides the middle of a credential for display, keeping the first
// four and last three characters. Short keys are fully masked.
func MaskKey(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 7 {
		return "****"
	}
	return key[:4] + "****" + key[len(key)-3:]
}
