// Package moderation calls the content-scoring service. Scoring internals
// are opaque here; the worker only consumes the approve/reject decision.
package moderation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/UnitedWeRise-org/feed-media-core/internal/domain/port"
)

type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

type evaluateRequest struct {
	MediaLocation string `json:"media_location"`
}

type evaluateResponse struct {
	Approved bool   `json:"approved"`
	Reason   string `json:"reason,omitempty"`
}

func (c *Client) Evaluate(ctx context.Context, mediaLocation string) (*port.ModerationDecision, error) {
	body, err := json.Marshal(evaluateRequest{MediaLocation: mediaLocation})
	if err != nil {
		return nil, fmt.Errorf("marshal moderation request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/evaluate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build moderation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("moderation request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("moderation service returned %d", resp.StatusCode)
	}

	var decoded evaluateResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode moderation response: %w", err)
	}
	return &port.ModerationDecision{Approved: decoded.Approved, Reason: decoded.Reason}, nil
}
