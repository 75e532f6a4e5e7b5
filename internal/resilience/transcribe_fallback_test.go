package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/greenroom-ai/greenroom/pkg/provider/transcribe"
	transmock "github.com/greenroom-ai/greenroom/pkg/provider/transcribe/mock"
)

func TestTranscribeFallback_PrimarySuccess(t *testing.T) {
	primary := &transmock.Provider{Result: &transcribe.Result{Text: "hello"}}
	secondary := &transmock.Provider{}

	f := NewTranscribeFallback(primary, "httpapi", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	f.AddFallback("spare", secondary)

	res, err := f.Transcribe(context.Background(), transcribe.Request{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Text != "hello" {
		t.Fatalf("text = %q, want %q", res.Text, "hello")
	}
	if secondary.CallCount() != 0 {
		t.Fatal("secondary should not be called when primary succeeds")
	}
}

func TestTranscribeFallback_FailoverAndAllFail(t *testing.T) {
	primary := &transmock.Provider{Err: errTest}
	secondary := &transmock.Provider{Result: &transcribe.Result{Text: "recovered"}}

	f := NewTranscribeFallback(primary, "httpapi", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	f.AddFallback("spare", secondary)

	res, err := f.Transcribe(context.Background(), transcribe.Request{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Text != "recovered" {
		t.Fatalf("text = %q, want %q", res.Text, "recovered")
	}

	secondary.Err = errTest
	if _, err := f.Transcribe(context.Background(), transcribe.Request{}); !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}
