package playback

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/greenroom-ai/greenroom/internal/observe"
	"github.com/greenroom-ai/greenroom/pkg/provider/voice/mock"
)

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestFragmentsPlayInEnqueueOrder(t *testing.T) {
	r := &mock.Renderer{ReadyValue: true}
	var done atomic.Int32
	s := New(r, func() { done.Add(1) }, WithSleep(func(time.Duration) {}))

	ctx := context.Background()
	gen := s.Generation()
	s.Enqueue(ctx, gen, Fragment{Text: "Tell me about a time"})
	s.Enqueue(ctx, gen, Fragment{Text: "you shipped under pressure."})
	s.SignalEndOfTurn(ctx, gen)

	waitUntil(t, func() bool { return done.Load() == 1 })

	starts, texts, ends, _ := r.Snapshot()
	if starts != 1 || ends != 1 {
		t.Fatalf("starts=%d ends=%d, want one playback session", starts, ends)
	}
	if len(texts) != 2 || texts[0] != "Tell me about a time" || texts[1] != "you shipped under pressure." {
		t.Fatalf("fragments out of order: %q", texts)
	}
}

func TestTeardownWaitsForEstimatedAudioPlusTrailingBuffer(t *testing.T) {
	r := &mock.Renderer{
		ReadyValue: true,
		Durations:  []time.Duration{2 * time.Second, 3 * time.Second},
	}

	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	var sleeps []time.Duration
	var done atomic.Int32

	s := New(r, func() { done.Add(1) },
		WithClock(func() time.Time { return t0 }),
		WithSleep(func(d time.Duration) {
			mu.Lock()
			sleeps = append(sleeps, d)
			mu.Unlock()
		}),
	)

	ctx := context.Background()
	gen := s.Generation()
	s.Enqueue(ctx, gen, Fragment{Text: "First sentence of the question."})
	s.Enqueue(ctx, gen, Fragment{Text: "Second sentence of the question."})
	s.SignalEndOfTurn(ctx, gen)

	waitUntil(t, func() bool { return done.Load() == 1 })

	mu.Lock()
	defer mu.Unlock()
	if len(sleeps) != 1 {
		t.Fatalf("sleeps = %v, want exactly the teardown wait", sleeps)
	}
	want := 5*time.Second + 500*time.Millisecond
	if sleeps[0] != want {
		t.Fatalf("teardown wait = %v, want %v", sleeps[0], want)
	}
}

func TestRendererNeverReadyDropsFragment(t *testing.T) {
	r := &mock.Renderer{ReadyValue: false}
	var done atomic.Int32
	s := New(r, func() { done.Add(1) },
		WithSleep(func(time.Duration) {}),
		WithReadinessPolling(3, time.Millisecond),
	)

	ctx := context.Background()
	gen := s.Generation()
	s.Enqueue(ctx, gen, Fragment{Text: "never spoken"})
	s.SignalEndOfTurn(ctx, gen)

	waitUntil(t, func() bool { return done.Load() == 1 })

	starts, texts, ends, _ := r.Snapshot()
	if starts != 0 || ends != 0 || len(texts) != 0 {
		t.Fatalf("dropped fragment must not touch the renderer: starts=%d texts=%q ends=%d",
			starts, texts, ends)
	}
}

func TestSignalEndOfTurnIsIdempotent(t *testing.T) {
	r := &mock.Renderer{ReadyValue: true, DefaultDuration: time.Second}

	release := make(chan struct{})
	var done atomic.Int32
	s := New(r, func() { done.Add(1) },
		WithSleep(func(time.Duration) { <-release }),
	)

	ctx := context.Background()
	gen := s.Generation()
	s.Enqueue(ctx, gen, Fragment{Text: "What tradeoffs did you weigh?"})
	waitUntil(t, func() bool {
		_, texts, _, _ := r.Snapshot()
		return len(texts) == 1
	})

	s.SignalEndOfTurn(ctx, gen)
	s.SignalEndOfTurn(ctx, gen)
	s.SignalEndOfTurn(ctx, gen)
	close(release)

	waitUntil(t, func() bool { return done.Load() >= 1 })
	time.Sleep(50 * time.Millisecond)

	if n := done.Load(); n != 1 {
		t.Fatalf("completion fired %d times, want 1", n)
	}
	_, _, ends, _ := r.Snapshot()
	if ends != 1 {
		t.Fatalf("EndSession called %d times, want 1", ends)
	}
}

func TestHardStopDiscardsQueueAndResets(t *testing.T) {
	r := &mock.Renderer{ReadyValue: true, DefaultDuration: 10 * time.Second}
	var done atomic.Int32
	s := New(r, func() { done.Add(1) }, WithSleep(func(time.Duration) {}))

	ctx := context.Background()
	s.Enqueue(ctx, s.Generation(), Fragment{Text: "Let me ask you about your"})
	waitUntil(t, func() bool {
		_, texts, _, _ := r.Snapshot()
		return len(texts) == 1
	})

	s.HardStop()

	_, _, _, stops := r.Snapshot()
	if stops != 1 {
		t.Fatalf("renderer hard stops = %d, want 1", stops)
	}

	// The scheduler must come back from a hard stop: a new turn's fragments
	// open a fresh session and play normally.
	gen := s.Generation()
	s.Enqueue(ctx, gen, Fragment{Text: "Different question entirely."})
	s.SignalEndOfTurn(ctx, gen)
	waitUntil(t, func() bool { return done.Load() == 1 })

	starts, texts, ends, _ := r.Snapshot()
	if starts != 2 || ends != 1 {
		t.Fatalf("starts=%d ends=%d after restart, want 2/1", starts, ends)
	}
	if texts[len(texts)-1] != "Different question entirely." {
		t.Fatalf("post-stop fragment not played: %q", texts)
	}
}

func TestEnqueueAfterIdleRestartsConsumeLoop(t *testing.T) {
	r := &mock.Renderer{ReadyValue: true}
	s := New(r, nil, WithSleep(func(time.Duration) {}))

	ctx := context.Background()
	gen := s.Generation()
	s.Enqueue(ctx, gen, Fragment{Text: "first"})
	waitUntil(t, func() bool {
		_, texts, _, _ := r.Snapshot()
		return len(texts) == 1
	})

	// Loop has drained and gone idle; a late fragment must restart it.
	s.Enqueue(ctx, gen, Fragment{Text: "second"})
	waitUntil(t, func() bool {
		_, texts, _, _ := r.Snapshot()
		return len(texts) == 2
	})
}

func TestEndOfTurnWithNoSessionCompletesImmediately(t *testing.T) {
	r := &mock.Renderer{}
	var done atomic.Int32
	var slept atomic.Int32
	s := New(r, func() { done.Add(1) },
		WithSleep(func(time.Duration) { slept.Add(1) }),
	)

	s.SignalEndOfTurn(context.Background(), s.Generation())
	waitUntil(t, func() bool { return done.Load() == 1 })

	if slept.Load() != 0 {
		t.Fatal("no playback session was opened, teardown must not wait")
	}
	_, _, ends, _ := r.Snapshot()
	if ends != 0 {
		t.Fatal("EndSession must not be called when no session was opened")
	}
}

func TestStaleGenerationIsRejected(t *testing.T) {
	r := &mock.Renderer{ReadyValue: true}
	var done atomic.Int32
	s := New(r, func() { done.Add(1) }, WithSleep(func(time.Duration) {}))

	ctx := context.Background()
	stale := s.Generation()
	s.HardStop()

	s.Enqueue(ctx, stale, Fragment{Text: "from the preempted turn"})
	s.SignalEndOfTurn(ctx, stale)
	time.Sleep(50 * time.Millisecond)

	if _, texts, _, _ := r.Snapshot(); len(texts) != 0 {
		t.Fatalf("stale fragment reached the renderer: %q", texts)
	}
	if done.Load() != 0 {
		t.Fatal("stale end-of-turn must not complete the new turn")
	}

	// The current generation keeps working after the rejected calls.
	gen := s.Generation()
	s.Enqueue(ctx, gen, Fragment{Text: "current turn question"})
	s.SignalEndOfTurn(ctx, gen)
	waitUntil(t, func() bool { return done.Load() == 1 })
}

// newSchedulerMetrics returns a Metrics instance backed by a ManualReader so
// tests can inspect what the scheduler records.
func newSchedulerMetrics(t *testing.T) (*observe.Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

func findMetric(t *testing.T, reader *sdkmetric.ManualReader, name string) *metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func TestRendererNeverReadyCountsDroppedFragment(t *testing.T) {
	m, reader := newSchedulerMetrics(t)
	r := &mock.Renderer{ReadyValue: false}
	var done atomic.Int32
	s := New(r, func() { done.Add(1) },
		WithSleep(func(time.Duration) {}),
		WithReadinessPolling(3, time.Millisecond),
		WithMetrics(m),
	)

	ctx := context.Background()
	gen := s.Generation()
	s.Enqueue(ctx, gen, Fragment{Text: "never spoken"})
	s.SignalEndOfTurn(ctx, gen)
	waitUntil(t, func() bool { return done.Load() == 1 })

	met := findMetric(t, reader, "greenroom.playback.dropped_fragments")
	if met == nil {
		t.Fatal("dropped fragment counter not recorded")
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatal("metric is not a sum")
	}
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	if total != 1 {
		t.Fatalf("dropped fragments = %d, want 1", total)
	}
}

func TestSynthesisLatencyIsRecorded(t *testing.T) {
	m, reader := newSchedulerMetrics(t)
	r := &mock.Renderer{ReadyValue: true}
	var done atomic.Int32
	s := New(r, func() { done.Add(1) },
		WithSleep(func(time.Duration) {}),
		WithMetrics(m),
	)

	ctx := context.Background()
	gen := s.Generation()
	s.Enqueue(ctx, gen, Fragment{Text: "How do you handle on-call incidents?"})
	s.SignalEndOfTurn(ctx, gen)
	waitUntil(t, func() bool { return done.Load() == 1 })

	met := findMetric(t, reader, "greenroom.synthesis.duration")
	if met == nil {
		t.Fatal("synthesis latency not recorded")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("metric is not a histogram")
	}
	if len(hist.DataPoints) == 0 || hist.DataPoints[0].Count != 1 {
		t.Fatalf("synthesis samples = %+v, want one recording", hist.DataPoints)
	}
}
