package authcore

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestMetricsCounters(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})

	m.Inc(MetricLoginSuccess)
	m.Inc(MetricLoginSuccess)
	m.Add(MetricSessionRevoked, 5)

	if got := m.Value(MetricLoginSuccess); got != 2 {
		t.Fatalf("MetricLoginSuccess = %d, want 2", got)
	}
	if got := m.Value(MetricSessionRevoked); got != 5 {
		t.Fatalf("MetricSessionRevoked = %d, want 5", got)
	}

	snap := m.Snapshot()
	if snap.Counters[MetricLoginSuccess] != 2 {
		t.Fatalf("snapshot counter = %d, want 2", snap.Counters[MetricLoginSuccess])
	}
}

func TestMetricsDisabled(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: false})

	m.Inc(MetricLoginSuccess)
	if got := m.Value(MetricLoginSuccess); got != 0 {
		t.Fatalf("disabled metrics counted: %d", got)
	}

	snap := m.Snapshot()
	if len(snap.Counters) != 0 {
		t.Fatalf("disabled snapshot has %d counters", len(snap.Counters))
	}

	var nilMetrics *Metrics
	nilMetrics.Inc(MetricLoginSuccess)
	if nilMetrics.Value(MetricLoginSuccess) != 0 {
		t.Fatal("nil metrics must be inert")
	}
}

func TestMetricsLatencyHistogram(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true, EnableLatencyHistograms: true})

	m.Observe(MetricValidateLatency, 3*time.Millisecond)
	m.Observe(MetricValidateLatency, 20*time.Millisecond)
	m.Observe(MetricValidateLatency, 2*time.Second)

	snap := m.Snapshot()
	buckets := snap.Histograms[MetricValidateLatency]
	if len(buckets) != histBucketCount {
		t.Fatalf("bucket count = %d, want %d", len(buckets), histBucketCount)
	}
	if buckets[0] != 1 || buckets[2] != 1 || buckets[histBucketCount-1] != 1 {
		t.Fatalf("unexpected bucket spread: %v", buckets)
	}
}

func TestMetricsConcurrentIncrement(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})

	const workers = 8
	const perWorker = 1000

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				m.Inc(MetricRefreshSuccess)
			}
		}()
	}
	wg.Wait()

	if got := m.Value(MetricRefreshSuccess); got != workers*perWorker {
		t.Fatalf("count = %d, want %d", got, workers*perWorker)
	}
}

func TestEngineCountsLifecycleMetrics(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) {
		cfg.Metrics.Enabled = true
	})
	env.seedAccount(t, "acc-1", "alice@example.com", "correct-horse-battery", "member", AccountActive)

	if _, err := env.engine.Login(context.Background(), "alice@example.com", "wrong-password-here"); err == nil {
		t.Fatal("expected login failure")
	}
	pair, err := env.engine.Login(context.Background(), "alice@example.com", "correct-horse-battery")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, err := env.engine.Refresh(context.Background(), pair.Refresh); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if _, err := env.engine.Refresh(context.Background(), pair.Refresh); err == nil {
		t.Fatal("expected reuse rejection")
	}

	snap := env.engine.MetricsSnapshot()
	checks := map[MetricID]uint64{
		MetricLoginFailure:         1,
		MetricLoginSuccess:         1,
		MetricRefreshSuccess:       1,
		MetricRefreshReuseDetected: 1,
	}
	for id, want := range checks {
		if got := snap.Counters[id]; got != want {
			t.Fatalf("metric %d = %d, want %d", id, got, want)
		}
	}
	if snap.Counters[MetricSessionCreated] != 2 {
		t.Fatalf("MetricSessionCreated = %d, want 2 (login + rotation)", snap.Counters[MetricSessionCreated])
	}
	if snap.Counters[MetricSessionRevoked] == 0 {
		t.Fatal("reuse sweep recorded no revocations")
	}
}
