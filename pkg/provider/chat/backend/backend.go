// Package backend provides a chat.Provider backed by the interview backend's
// server-sent-events endpoint.
//
// The backend emits "data: {...}" lines, one JSON object per event: token
// events carry {"token": "..."} and the terminal event carries
// {"done": true, "next_index": n, ...}. Lines that fail to parse are logged
// and skipped; the stream continues.
package backend

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/greenroom-ai/greenroom/pkg/provider/chat"
)

// defaultEventBuf is the buffer depth of the event channel. Sized to absorb
// several sentences of tokens without blocking the reader goroutine.
const defaultEventBuf = 64

// dataPrefix marks SSE payload lines.
const dataPrefix = "data: "

// Option is a functional option for configuring the Provider.
type Option func(*Provider)

// WithHTTPClient overrides the HTTP client used for requests.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.httpClient = c }
}

// Provider implements chat.Provider against the interview backend.
type Provider struct {
	baseURL    string
	httpClient *http.Client
}

// New constructs a Provider for the backend at baseURL
// (e.g. "http://127.0.0.1:8080").
func New(baseURL string, opts ...Option) (*Provider, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("chat backend: baseURL must not be empty")
	}
	p := &Provider{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// turnBody is the JSON request body for the /api/chat endpoint.
type turnBody struct {
	Text            string  `json:"text"`
	QuestionIndex   int     `json:"question_index"`
	SessionID       string  `json:"session_id"`
	TimestampSec    float64 `json:"timestamp_sec"`
	ResumeText      string  `json:"resume_text,omitempty"`
	JobText         string  `json:"job_text,omitempty"`
	Persona         string  `json:"interviewer_persona,omitempty"`
	PressureScore   float64 `json:"pressure_score"`
	PressureTrend   string  `json:"pressure_trend"`
	SuppressScoring bool    `json:"suppress_scoring,omitempty"`
}

// streamEvent is one decoded "data:" line.
type streamEvent struct {
	Token        string   `json:"token"`
	Done         bool     `json:"done"`
	NextIndex    int      `json:"next_index"`
	IsCoding     bool     `json:"is_coding_phase"`
	QualityScore *float64 `json:"quality_score"`
	SkipScoring  bool     `json:"skip_scoring"`
	IsFinished   bool     `json:"is_finished"`
	Error        string   `json:"error"`
}

// StreamTurn implements chat.Provider. It POSTs the turn request and reads
// the SSE body line by line, forwarding events until the done event arrives
// or ctx is cancelled.
func (p *Provider) StreamTurn(ctx context.Context, req chat.TurnRequest) (<-chan chat.TurnEvent, error) {
	body, err := json.Marshal(turnBody{
		Text:            req.Text,
		QuestionIndex:   req.QuestionIndex,
		SessionID:       req.SessionID,
		TimestampSec:    req.TimestampSec,
		ResumeText:      req.ResumeText,
		JobText:         req.JobText,
		Persona:         req.Persona,
		PressureScore:   req.PressureScore,
		PressureTrend:   string(req.PressureTrend),
		SuppressScoring: req.SuppressScoring,
	})
	if err != nil {
		return nil, fmt.Errorf("chat backend: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("chat backend: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("chat backend: request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("chat backend: unexpected status %d", resp.StatusCode)
	}

	ch := make(chan chat.TurnEvent, defaultEventBuf)
	go func() {
		defer close(ch)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, dataPrefix) {
				continue
			}

			var ev streamEvent
			if err := json.Unmarshal([]byte(line[len(dataPrefix):]), &ev); err != nil {
				slog.Warn("chat backend: skipping malformed stream event", "err", err)
				continue
			}
			if ev.Error != "" {
				slog.Error("chat backend: backend reported stream error", "err", ev.Error)
				return
			}

			out := chat.TurnEvent{
				Token:        ev.Token,
				Done:         ev.Done,
				NextIndex:    ev.NextIndex,
				CodingPhase:  ev.IsCoding,
				QualityScore: ev.QualityScore,
				SkipScoring:  ev.SkipScoring,
				Finished:     ev.IsFinished,
			}
			select {
			case ch <- out:
			case <-ctx.Done():
				return
			}
			if ev.Done {
				return
			}
		}
		if err := scanner.Err(); err != nil && ctx.Err() == nil {
			slog.Error("chat backend: stream read failed", "err", err)
		}
	}()

	return ch, nil
}
