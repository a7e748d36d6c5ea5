package lifecycle

import (
	"testing"
	"time"
)

func TestFixedDelay(t *testing.T) {
	p := FixedDelay(3 * time.Second)
	for _, n := range []int{0, 1, 1000, 1 << 30} {
		d, ok := p.Delay(n)
		if !ok || d != 3*time.Second {
			t.Errorf("Delay(%d) = %v, %v", n, d, ok)
		}
	}
}

func TestExponentialBackoff(t *testing.T) {
	p := ExponentialBackoff{Initial: 100 * time.Millisecond, Max: time.Second}
	tests := []struct {
		restarts int
		want     time.Duration
	}{
		{0, 100 * time.Millisecond},
		{1, 200 * time.Millisecond},
		{2, 400 * time.Millisecond},
		{3, 800 * time.Millisecond},
		{4, time.Second},
		{1 << 30, time.Second},
	}
	for _, tt := range tests {
		d, ok := p.Delay(tt.restarts)
		if !ok || d != tt.want {
			t.Errorf("Delay(%d) = %v, %v; want %v", tt.restarts, d, ok, tt.want)
		}
	}
}

func TestExponentialBackoff_Jitter(t *testing.T) {
	p := ExponentialBackoff{Initial: time.Second, Max: time.Second, Jitter: 0.2}
	for i := 0; i < 100; i++ {
		d, _ := p.Delay(i)
		if d < 800*time.Millisecond || d > 1200*time.Millisecond {
			t.Fatalf("Delay(%d) = %v outside ±20%%", i, d)
		}
	}
}

func TestMaxAttempts(t *testing.T) {
	p := MaxAttempts{Policy: FixedDelay(time.Millisecond), Limit: 2}
	for n, want := range []bool{true, true, false, false} {
		if _, ok := p.Delay(n); ok != want {
			t.Errorf("Delay(%d) ok = %v, want %v", n, ok, want)
		}
	}
}

func TestNewPolicy(t *testing.T) {
	if _, ok := NewPolicy(time.Second, 0, 0).(FixedDelay); !ok {
		t.Error("zero max should select FixedDelay")
	}
	if _, ok := NewPolicy(time.Second, time.Minute, 0).(ExponentialBackoff); !ok {
		t.Error("max above delay should select ExponentialBackoff")
	}
	p, ok := NewPolicy(time.Second, 0, 5).(MaxAttempts)
	if !ok || p.Limit != 5 {
		t.Errorf("maxRestarts should wrap in MaxAttempts, got %#v", p)
	}
}
