package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"pairelay/internal/model"
	"pairelay/internal/resolver"

	"github.com/rs/zerolog"
)

// HeaderAPIKey carries the shared secret expected by the remote peer.
const HeaderAPIKey = "X-PAI-API-Key"

// OutcomeKind classifies the result of a single delivery attempt.
type OutcomeKind int

const (
	// OutcomeSuccess means the peer acknowledged the message with a 2xx.
	OutcomeSuccess OutcomeKind = iota
	// OutcomeHTTPError means the peer answered with a non-2xx status.
	OutcomeHTTPError
	// OutcomeNetworkError means the request never completed (refused, timeout).
	OutcomeNetworkError
	// OutcomeResolutionFailed means the target hostname could not be resolved.
	OutcomeResolutionFailed
)

// Outcome is the classified result of one delivery attempt. Raw transport
// errors never escape the client; the reason string survives for the error
// log on the message row.
type Outcome struct {
	Kind       OutcomeKind
	StatusCode int
	Body       []byte
	Reason     string
}

// Delivered reports whether the attempt succeeded.
func (o Outcome) Delivered() bool {
	return o.Kind == OutcomeSuccess
}

// Payload is the wire format POSTed to the remote inbox.
type Payload struct {
	Sender      string            `json:"sender"`
	Content     string            `json:"content"`
	Priority    model.Priority    `json:"priority"`
	MessageType model.MessageType `json:"message_type"`
	ContextID   string            `json:"context_id,omitempty"`
}

// PeerClient performs single delivery attempts against the remote PAI
// instance. Each attempt resolves the configured hostname first and keeps the
// original hostname as the Host header so virtual hosting still works when
// dialing a resolved address.
type PeerClient struct {
	baseURL      *url.URL
	apiKey       string
	resolver     resolver.Resolver
	sendClient   *http.Client
	healthClient *http.Client
	logger       zerolog.Logger
}

func NewPeerClient(rawURL, apiKey string, res resolver.Resolver, sendTimeout, healthTimeout time.Duration, logger zerolog.Logger) (*PeerClient, error) {
	base, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse remote url %q: %w", rawURL, err)
	}
	if base.Hostname() == "" {
		return nil, fmt.Errorf("remote url %q has no hostname", rawURL)
	}
	return &PeerClient{
		baseURL:      base,
		apiKey:       apiKey,
		resolver:     res,
		sendClient:   &http.Client{Timeout: sendTimeout},
		healthClient: &http.Client{Timeout: healthTimeout},
		logger:       logger.With().Str("component", "peer_client").Logger(),
	}, nil
}

// AttemptDelivery performs exactly one delivery attempt for the payload.
func (c *PeerClient) AttemptDelivery(ctx context.Context, payload Payload) Outcome {
	target, hostname, err := c.resolveTarget(ctx)
	if err != nil {
		c.logger.Warn().Err(err).Str("hostname", c.baseURL.Hostname()).Msg("target resolution failed")
		return Outcome{Kind: OutcomeResolutionFailed, Reason: err.Error()}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return Outcome{Kind: OutcomeNetworkError, Reason: fmt.Sprintf("encode payload: %v", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.JoinPath("inbox").String(), bytes.NewReader(body))
	if err != nil {
		return Outcome{Kind: OutcomeNetworkError, Reason: fmt.Sprintf("build request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderAPIKey, c.apiKey)
	req.Host = hostname

	return c.do(c.sendClient, req)
}

// Health queries the remote peer's liveness endpoint.
func (c *PeerClient) Health(ctx context.Context) Outcome {
	target, hostname, err := c.resolveTarget(ctx)
	if err != nil {
		return Outcome{Kind: OutcomeResolutionFailed, Reason: err.Error()}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.JoinPath("health").String(), nil)
	if err != nil {
		return Outcome{Kind: OutcomeNetworkError, Reason: fmt.Sprintf("build request: %v", err)}
	}
	req.Host = hostname

	return c.do(c.healthClient, req)
}

// resolveTarget resolves the configured hostname and returns the URL to dial
// plus the original hostname for the Host header.
func (c *PeerClient) resolveTarget(ctx context.Context) (*url.URL, string, error) {
	hostname := c.baseURL.Hostname()
	addr, err := c.resolver.Resolve(ctx, hostname)
	if err != nil {
		return nil, "", err
	}

	target := *c.baseURL
	if addr != hostname {
		host := addr
		if port := c.baseURL.Port(); port != "" {
			host = addr + ":" + port
		}
		target.Host = host
	}
	return &target, hostname, nil
}

func (c *PeerClient) do(httpClient *http.Client, req *http.Request) Outcome {
	resp, err := httpClient.Do(req)
	if err != nil {
		reason := errReason(err)
		c.logger.Debug().Str("url", req.URL.String()).Str("reason", reason).Msg("delivery attempt failed")
		return Outcome{Kind: OutcomeNetworkError, Reason: reason}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Outcome{
			Kind:       OutcomeHTTPError,
			StatusCode: resp.StatusCode,
			Body:       body,
			Reason:     fmt.Sprintf("HTTP %d from %s", resp.StatusCode, req.URL.Hostname()),
		}
	}
	return Outcome{Kind: OutcomeSuccess, StatusCode: resp.StatusCode, Body: body}
}

func errReason(err error) string {
	var uerr *url.Error
	if errors.As(err, &uerr) {
		if uerr.Timeout() {
			return fmt.Sprintf("request timed out: %v", uerr.Err)
		}
		return fmt.Sprintf("connection error: %v", uerr.Err)
	}
	return err.Error()
}
