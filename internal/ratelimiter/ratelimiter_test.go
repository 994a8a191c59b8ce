package ratelimiter

import (
	"testing"
	"time"
)

// TestNew verifies limiter construction for the configured accept rates.
func TestNew(t *testing.T) {
	tests := []struct {
		name          string
		perSecond     uint
		burst         uint
		wantUnlimited bool
		wantBurst     int
	}{
		{name: "configured burst", perSecond: 100, burst: 200, wantBurst: 200},
		{name: "burst defaults to rate", perSecond: 50, burst: 0, wantBurst: 50},
		{name: "zero rate is unlimited", perSecond: 0, burst: 0, wantUnlimited: true, wantBurst: unlimited},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			limiter := New(tt.perSecond, tt.burst)
			if limiter.Unlimited() != tt.wantUnlimited {
				t.Fatalf("Unlimited() = %v, want %v", limiter.Unlimited(), tt.wantUnlimited)
			}
			if got := limiter.limiter.Burst(); got != tt.wantBurst {
				t.Fatalf("burst = %d, want %d", got, tt.wantBurst)
			}
		})
	}
}

// TestAllowBurstThenRefuse verifies a full bucket admits exactly burst
// connections at one instant and then refuses.
func TestAllowBurstThenRefuse(t *testing.T) {
	limiter := New(10, 5)
	now := time.Now()

	for i := 0; i < 5; i++ {
		if !limiter.AllowAt(now) {
			t.Fatalf("accept %d should be admitted within burst", i)
		}
	}
	if limiter.AllowAt(now) {
		t.Fatal("accept beyond burst should be refused")
	}

	// 10/s refills one token every 100ms.
	if !limiter.AllowAt(now.Add(150 * time.Millisecond)) {
		t.Fatal("accept after refill should be admitted")
	}
}

// TestUnlimitedNeverRefuses verifies the zero-rate limiter admits everything.
func TestUnlimitedNeverRefuses(t *testing.T) {
	limiter := New(0, 0)
	for i := 0; i < 10000; i++ {
		if !limiter.Allow() {
			t.Fatalf("unlimited limiter refused accept %d", i)
		}
	}
}

// TestSetLimit verifies the rate can be switched between limited and unlimited.
func TestSetLimit(t *testing.T) {
	limiter := New(1, 1)
	now := time.Now()

	if !limiter.AllowAt(now) {
		t.Fatal("first accept should be admitted")
	}
	if limiter.AllowAt(now) {
		t.Fatal("second accept should be refused at 1/s")
	}

	limiter.SetLimit(0)
	if !limiter.Unlimited() || !limiter.AllowAt(now) {
		t.Fatal("SetLimit(0) should remove the limit")
	}

	limiter.SetLimit(1)
	limiter.SetBurst(1)
	if limiter.Unlimited() {
		t.Fatal("SetLimit(1) should restore limiting")
	}
}
