// Package openai provides a chat.Provider that drives the interviewer
// directly from the OpenAI chat completions API, with no intermediate
// backend. Judge scoring travels as inline control annotations in the reply
// text ([SCORE: x], [FINISHED], [CODING]); the provider parses them into the
// done event and the session layer strips them before display and speech.
package openai

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/greenroom-ai/greenroom/pkg/provider/chat"
)

// systemPromptFmt is the interviewer instruction template. The score tag is
// requested on every answered question so the difficulty engine has a judge
// signal each turn.
const systemPromptFmt = `You are %s, a professional interviewer running a live mock interview.

Candidate resume:
%s

Job description:
%s

The current interview difficulty is %.0f/100 and trending %s. Calibrate your
next question to that difficulty. Ask exactly one question per reply and keep
replies short enough to be spoken aloud.

After evaluating the candidate's most recent answer, append the tag
[SCORE: x] with x in [0,1] at the very end of your reply. If you are
concluding the interview, also append [FINISHED]. If the interview should
move to a live coding exercise, append [CODING]. Never mention these tags.`

// introPrompt is substituted for the candidate text on the opening turn.
const introPrompt = "(The interview has just started. Greet the candidate briefly and ask your first question. Do not emit a score tag.)"

// Option is a functional option for Provider.
type Option func(*Provider)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(p *Provider) { p.baseURL = url }
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) { p.timeout = d }
}

// Provider implements chat.Provider on the OpenAI API. It keeps the
// conversation history per session ID so each turn sees the full exchange.
// Safe for concurrent use.
type Provider struct {
	client  oai.Client
	model   string
	baseURL string
	timeout time.Duration

	mu      sync.Mutex
	history map[string][]oai.ChatCompletionMessageParamUnion
}

// New constructs a Provider for the given API key and model.
func New(apiKey, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("chat openai: apiKey must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("chat openai: model must not be empty")
	}

	p := &Provider{
		model:   model,
		history: make(map[string][]oai.ChatCompletionMessageParamUnion),
	}
	for _, o := range opts {
		o(p)
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if p.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(p.baseURL))
	}
	if p.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: p.timeout}))
	}
	p.client = oai.NewClient(reqOpts...)
	return p, nil
}

// StreamTurn implements chat.Provider.
func (p *Provider) StreamTurn(ctx context.Context, req chat.TurnRequest) (<-chan chat.TurnEvent, error) {
	userText := strings.TrimSpace(req.Text)
	if userText == "" {
		userText = introPrompt
	}

	p.mu.Lock()
	prior := make([]oai.ChatCompletionMessageParamUnion, len(p.history[req.SessionID]))
	copy(prior, p.history[req.SessionID])
	p.mu.Unlock()

	persona := req.Persona
	if persona == "" {
		persona = "a technical interviewer"
	}
	messages := []oai.ChatCompletionMessageParamUnion{
		oai.SystemMessage(fmt.Sprintf(systemPromptFmt,
			persona, req.ResumeText, req.JobText, req.PressureScore, req.PressureTrend)),
	}
	messages = append(messages, prior...)
	messages = append(messages, oai.UserMessage(userText))

	stream := p.client.Chat.Completions.NewStreaming(ctx, oai.ChatCompletionNewParams{
		Model:    shared.ChatModel(p.model),
		Messages: messages,
	})
	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("chat openai: start stream: %w", err)
	}

	ch := make(chan chat.TurnEvent, 64)
	go func() {
		defer close(ch)
		defer stream.Close()

		var full strings.Builder
		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 {
				continue
			}
			text := chunk.Choices[0].Delta.Content
			if text == "" {
				continue
			}
			full.WriteString(text)
			select {
			case ch <- chat.TurnEvent{Token: text}:
			case <-ctx.Done():
				return
			}
		}
		if err := stream.Err(); err != nil {
			// Startup succeeded but the stream died mid-reply; closing the
			// channel without a done event signals the failure upstream.
			return
		}

		reply := full.String()
		p.mu.Lock()
		p.history[req.SessionID] = append(append(prior,
			oai.UserMessage(userText)),
			oai.AssistantMessage(chat.StripAnnotations(reply)))
		p.mu.Unlock()

		ann := chat.ParseAnnotations(reply)
		done := chat.TurnEvent{
			Done:         true,
			NextIndex:    req.QuestionIndex + 1,
			QualityScore: ann.QualityScore,
			SkipScoring:  req.SuppressScoring || ann.QualityScore == nil,
			CodingPhase:  ann.CodingPhase,
			Finished:     ann.Finished,
		}
		select {
		case ch <- done:
		case <-ctx.Done():
		}
	}()

	return ch, nil
}

// Forget drops the stored conversation history for a session. Call when the
// session ends so the map does not grow without bound.
func (p *Provider) Forget(sessionID string) {
	p.mu.Lock()
	delete(p.history, sessionID)
	p.mu.Unlock()
}
