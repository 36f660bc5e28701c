package radius

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/FiveStarManagement/LWS-Workflow/internal/infrastructure/config"
)

// maxResponseSize is the maximum allowed response size from the adapter (10MB)
const maxResponseSize = 10 * 1024 * 1024

// Client posts entity payloads to the ERP REST adapter. Payloads are JSON,
// base64-encoded inside the adapter envelope; replies come back the same
// way. Transient upstream statuses are retried with doubling backoff.
type Client struct {
	apiURL         string
	httpClient     *http.Client
	retryAttempts  int
	retryBaseDelay time.Duration
	logger         *zap.Logger
}

// NewClient creates an adapter client from the radius settings
func NewClient(cfg config.RadiusConfig, logger *zap.Logger) *Client {
	return &Client{
		apiURL: cfg.APIURL,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		retryAttempts:  cfg.RetryAttempts,
		retryBaseDelay: cfg.RetryBaseDelay,
		logger:         logger,
	}
}

// decodedResponse is one adapter reply, unwrapped and base64-decoded
type decodedResponse struct {
	HTTPStatus   int
	StatusCode   int
	EntityName   string
	ErrorMessage string
	// Payload is the decoded entity payload; nil when the adapter sent
	// none, and possibly non-JSON text on some failure paths
	Payload []byte
}

// OK reports whether the upstream accepted the payload
func (d *decodedResponse) OK() bool {
	return d.StatusCode == 1
}

// messages returns the failure detail, preferring the envelope error
func (d *decodedResponse) messages() []string {
	if d.ErrorMessage != "" {
		return []string{d.ErrorMessage}
	}
	return nil
}

// transientStatus reports whether an HTTP status is worth retrying
func transientStatus(status int) bool {
	switch status {
	case http.StatusTooManyRequests, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// post sends one entity payload and returns the decoded reply. Transport
// errors and transient HTTP statuses are retried up to the configured
// attempt budget; business failures (4xx, adapter statusCode != 1) are
// returned to the caller without retry.
func (c *Client) post(ctx context.Context, entityName string, payload interface{}) (*decodedResponse, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("radius: marshal %s payload: %w", entityName, err)
	}

	body, err := json.Marshal(requestEnvelope{
		Request: requestBody{
			EntityName: entityName,
			Payload:    base64.StdEncoding.EncodeToString(raw),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("radius: marshal %s envelope: %w", entityName, err)
	}

	attempts := c.retryAttempts
	if attempts < 1 {
		attempts = 1
	}
	delay := c.retryBaseDelay

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			c.logger.Warn("retrying adapter call",
				zap.String("entity", entityName),
				zap.Int("attempt", attempt),
				zap.Duration("backoff", delay),
				zap.Error(lastErr))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}

		decoded, err := c.doPost(ctx, entityName, body)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			// Transport-level failure (connection refused, timeout)
			lastErr = err
			continue
		}
		if transientStatus(decoded.HTTPStatus) {
			lastErr = fmt.Errorf("radius: %s returned HTTP %d", entityName, decoded.HTTPStatus)
			continue
		}
		return decoded, nil
	}

	return nil, fmt.Errorf("radius: %s failed after %d attempts: %w", entityName, attempts, lastErr)
}

// doPost performs one HTTP round trip and unwraps the adapter envelope
func (c *Client) doPost(ctx context.Context, entityName string, body []byte) (*decodedResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("radius: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("radius: post %s: %w", entityName, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("radius: read %s response: %w", entityName, err)
	}

	decoded := &decodedResponse{HTTPStatus: resp.StatusCode, EntityName: entityName}

	var envelope responseEnvelope
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		// The adapter occasionally replies with non-JSON bodies on its own
		// failure paths; surface them as the error message.
		decoded.ErrorMessage = fmt.Sprintf("adapter response was not JSON: %.200s", string(respBody))
		return decoded, nil
	}

	decoded.StatusCode = envelope.Response.StatusCode
	if envelope.Response.EntityName != "" {
		decoded.EntityName = envelope.Response.EntityName
	}
	decoded.ErrorMessage = envelope.Response.ErrorMessage

	if envelope.Response.Payload != "" {
		payload, err := base64.StdEncoding.DecodeString(envelope.Response.Payload)
		if err != nil {
			c.logger.Warn("adapter payload was not valid base64",
				zap.String("entity", entityName), zap.Error(err))
		} else {
			decoded.Payload = payload
		}
	}

	return decoded, nil
}
