package ratelimit

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeClock returns a limiter whose clock the test advances.
func fakeClock(rates map[string]Rate) (*Limiter, *time.Time) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l := New(rates)
	l.nowFunc = func() time.Time { return now }
	return l, &now
}

func TestCheck_WithinBurst(t *testing.T) {
	l, _ := fakeClock(map[string]Rate{"reload": {PerSecond: 1, Burst: 3}})

	for i := 0; i < 3; i++ {
		if err := l.Check("reload"); err != nil {
			t.Errorf("request %d should be allowed (within burst): %v", i+1, err)
		}
	}
	err := l.Check("reload")
	var limitErr *LimitError
	if !errors.As(err, &limitErr) {
		t.Fatalf("error = %v, want LimitError", err)
	}
	if limitErr.Tool != "reload" || limitErr.RetryAfter != time.Second {
		t.Errorf("LimitError = %+v, want reload retry after 1s", limitErr)
	}
}

func TestCheck_Refill(t *testing.T) {
	l, now := fakeClock(map[string]Rate{"render_scenario": {PerSecond: 10, Burst: 2}})

	l.Check("render_scenario")
	l.Check("render_scenario")
	if l.Check("render_scenario") == nil {
		t.Fatal("expected rejection after burst")
	}

	// 50ms refills half a token: still limited, with the remainder to wait.
	*now = now.Add(50 * time.Millisecond)
	var limitErr *LimitError
	if err := l.Check("render_scenario"); !errors.As(err, &limitErr) {
		t.Fatalf("error = %v, want LimitError", err)
	} else if d := limitErr.RetryAfter; d < 49*time.Millisecond || d > 51*time.Millisecond {
		t.Errorf("RetryAfter = %v, want about 50ms", d)
	}

	*now = now.Add(60 * time.Millisecond)
	if err := l.Check("render_scenario"); err != nil {
		t.Errorf("expected allow after refill: %v", err)
	}
}

func TestCheck_RefillCapsAtBurst(t *testing.T) {
	l, now := fakeClock(map[string]Rate{"scene_frame": {PerSecond: 100, Burst: 2}})

	*now = now.Add(time.Hour)
	allowed := 0
	for i := 0; i < 5; i++ {
		if l.Check("scene_frame") == nil {
			allowed++
		}
	}
	if allowed != 2 {
		t.Errorf("allowed = %d, want burst of 2", allowed)
	}
}

func TestCheck_ToolsAreIndependent(t *testing.T) {
	l, _ := fakeClock(map[string]Rate{
		"reload":     {PerSecond: 1, Burst: 1},
		"trajectory": {PerSecond: 1, Burst: 1},
	})

	l.Check("reload")
	if l.Check("reload") == nil {
		t.Error("reload should be exhausted")
	}
	if err := l.Check("trajectory"); err != nil {
		t.Errorf("trajectory should have its own bucket: %v", err)
	}
}

func TestCheck_ZeroRate(t *testing.T) {
	l, now := fakeClock(map[string]Rate{"reload": {Burst: 1}})

	if err := l.Check("reload"); err != nil {
		t.Fatalf("first call limited: %v", err)
	}
	*now = now.Add(24 * time.Hour)
	err := l.Check("reload")
	var limitErr *LimitError
	if !errors.As(err, &limitErr) || limitErr.RetryAfter != 0 {
		t.Errorf("error = %v, want LimitError without retry", err)
	}
	if err != nil && strings.Contains(err.Error(), "retry in") {
		t.Errorf("error %q should not suggest a retry", err)
	}
}

func TestCheck_UnlimitedTools(t *testing.T) {
	var nilLimiter *Limiter
	if err := nilLimiter.Check("anything"); err != nil {
		t.Errorf("nil limiter: %v", err)
	}

	l := New(nil)
	for i := 0; i < 100; i++ {
		if err := l.Check("scenario_info"); err != nil {
			t.Fatalf("tool without a rate was limited: %v", err)
		}
	}
}

func TestCheck_ConcurrentAccess(t *testing.T) {
	l, _ := fakeClock(map[string]Rate{"scene_frame": {PerSecond: 0, Burst: 50}})

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Check("scene_frame") == nil {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if allowed != 50 {
		t.Errorf("allowed = %d, want exactly the burst of 50", allowed)
	}
}

func TestDefaultToolRates(t *testing.T) {
	rates := DefaultToolRates()
	for _, tool := range []string{"scenario_info", "scene_frame", "resolve_identity", "trajectory", "render_scenario", "reload"} {
		r, ok := rates[tool]
		if !ok {
			t.Errorf("no rate for %s", tool)
			continue
		}
		if r.Burst < 1 || r.PerSecond <= 0 {
			t.Errorf("%s rate = %+v", tool, r)
		}
	}
	if got := PerMinute(6, 2); got.PerSecond != 0.1 || got.Burst != 2 {
		t.Errorf("PerMinute(6, 2) = %+v", got)
	}
}
