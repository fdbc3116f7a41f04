package retriever

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

// attemptGaps fetches from a server that fails every request until the last
// allowed attempt and returns the spacing between consecutive requests.
func attemptGaps(t *testing.T, policy Policy) []time.Duration {
	t.Helper()
	var (
		mu       sync.Mutex
		arrivals []time.Time
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		arrivals = append(arrivals, time.Now())
		n := len(arrivals)
		mu.Unlock()
		if n < policy.MaxAttempts {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	r := New(nil, nil)
	if _, err := r.FetchWithRetry(context.Background(), server.URL+"/v.mp4", filepath.Join(t.TempDir(), "v.mp4"), policy, nil); err != nil {
		t.Fatalf("FetchWithRetry: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(arrivals) != policy.MaxAttempts {
		t.Fatalf("expected %d attempts, got %d", policy.MaxAttempts, len(arrivals))
	}
	gaps := make([]time.Duration, 0, len(arrivals)-1)
	for i := 1; i < len(arrivals); i++ {
		gaps = append(gaps, arrivals[i].Sub(arrivals[i-1]))
	}
	return gaps
}

func TestFetchWithRetryBackoffGrowsByMultiplier(t *testing.T) {
	base := 40 * time.Millisecond
	gaps := attemptGaps(t, Policy{MaxAttempts: 3, BaseDelay: base, MaxDelay: time.Second, Multiplier: 3})

	if gaps[0] < base {
		t.Fatalf("first retry waited %v, want at least %v", gaps[0], base)
	}
	if gaps[1] < 3*base {
		t.Fatalf("second retry waited %v, want at least %v", gaps[1], 3*base)
	}
	if gaps[1] <= gaps[0] {
		t.Fatalf("expected growing delays, got %v", gaps)
	}
}

func TestFetchWithRetryBackoffIsCappedAtMaxDelay(t *testing.T) {
	base := 40 * time.Millisecond
	maxDelay := 60 * time.Millisecond
	gaps := attemptGaps(t, Policy{MaxAttempts: 3, BaseDelay: base, MaxDelay: maxDelay, Multiplier: 4})

	if gaps[1] < maxDelay {
		t.Fatalf("second retry waited %v, want at least %v", gaps[1], maxDelay)
	}
	// Uncapped the second delay would be 160ms.
	if gaps[1] >= 4*base {
		t.Fatalf("second retry waited %v, expected the %v cap", gaps[1], maxDelay)
	}
}

func TestFetchWithRetryEqualDelaysUseFixedDelay(t *testing.T) {
	base := 50 * time.Millisecond
	gaps := attemptGaps(t, Policy{MaxAttempts: 3, BaseDelay: base, MaxDelay: base, Multiplier: 2})

	for i, gap := range gaps {
		if gap < base {
			t.Fatalf("retry %d waited %v, want at least %v", i+1, gap, base)
		}
	}
	if gaps[1] >= 2*base {
		t.Fatalf("second retry waited %v; fixed delay should not grow", gaps[1])
	}
}

func TestPolicyNormalization(t *testing.T) {
	cases := []struct {
		name string
		in   Policy
		want Policy
	}{
		{
			name: "zero attempts become one",
			in:   Policy{BaseDelay: time.Second, MaxDelay: time.Second, Multiplier: 2},
			want: Policy{MaxAttempts: 1, BaseDelay: time.Second, MaxDelay: time.Second, Multiplier: 2},
		},
		{
			name: "max below base is raised",
			in:   Policy{MaxAttempts: 3, BaseDelay: 2 * time.Second, MaxDelay: time.Second, Multiplier: 2},
			want: Policy{MaxAttempts: 3, BaseDelay: 2 * time.Second, MaxDelay: 2 * time.Second, Multiplier: 2},
		},
		{
			name: "shrinking multiplier is clamped",
			in:   Policy{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: 5 * time.Second, Multiplier: 0.5},
			want: Policy{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: 5 * time.Second, Multiplier: 1},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.in.normalized(); got != tc.want {
				t.Fatalf("normalized() = %+v, want %+v", got, tc.want)
			}
		})
	}
}
