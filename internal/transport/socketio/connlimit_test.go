package socketio

import (
	"fmt"
	"testing"
)

func TestConnectionLimiterLoopbackNeverEvicts(t *testing.T) {
	cl := NewConnectionLimiter(1)

	addrs := []string{"127.0.0.1", "::1", "127.0.0.1:51234", "[::1]:8080", "::ffff:127.0.0.1", "localhost"}
	for i, addr := range addrs {
		if evicted := cl.TryAdd(fmt.Sprintf("local-%d", i), addr); evicted != "" {
			t.Errorf("loopback %q should not evict anyone, got %s", addr, evicted)
		}
	}

	total, remote := cl.Count()
	if total != len(addrs) || remote != 0 {
		t.Errorf("Count() = (%d, %d), want (%d, 0)", total, remote, len(addrs))
	}
}

func TestConnectionLimiterSecondRemoteEvictsOldest(t *testing.T) {
	cl := NewConnectionLimiter(1)

	if evicted := cl.TryAdd("ext-1", "192.168.1.100"); evicted != "" {
		t.Fatalf("first remote should not evict anyone, got %s", evicted)
	}
	if evicted := cl.TryAdd("ext-2", "192.168.1.101:40000"); evicted != "ext-1" {
		t.Errorf("expected eviction of ext-1, got %q", evicted)
	}
	if evicted := cl.TryAdd("ext-3", "10.0.0.7"); evicted != "ext-2" {
		t.Errorf("expected eviction of ext-2, got %q", evicted)
	}
}

func TestConnectionLimiterRemoveFreesSlot(t *testing.T) {
	cl := NewConnectionLimiter(2)

	cl.TryAdd("ext-1", "192.168.1.100")
	cl.TryAdd("ext-2", "192.168.1.101")
	cl.Remove("ext-1")

	if evicted := cl.TryAdd("ext-3", "192.168.1.102"); evicted != "" {
		t.Errorf("slot freed by Remove should be reused, got eviction of %s", evicted)
	}
	if _, remote := cl.Count(); remote != 2 {
		t.Errorf("remote count = %d, want 2", remote)
	}
}

func TestConnectionLimiterDuplicateAddIsNoop(t *testing.T) {
	cl := NewConnectionLimiter(1)

	cl.TryAdd("ext-1", "192.168.1.100")
	if evicted := cl.TryAdd("ext-1", "192.168.1.100"); evicted != "" {
		t.Errorf("re-adding the same client should not evict, got %s", evicted)
	}
	if total, _ := cl.Count(); total != 1 {
		t.Errorf("total = %d, want 1", total)
	}
}

func TestConnectionLimiterZeroMeansUnlimited(t *testing.T) {
	cl := NewConnectionLimiter(0)

	for i := 0; i < 20; i++ {
		if evicted := cl.TryAdd(fmt.Sprintf("ext-%d", i), "192.168.1.100"); evicted != "" {
			t.Fatalf("unlimited limiter evicted %s", evicted)
		}
	}
}

func TestConnectionLimiterRemoveUnknownIsSafe(t *testing.T) {
	cl := NewConnectionLimiter(1)
	cl.Remove("nobody")
	cl.TryAdd("local", "127.0.0.1")
	cl.Remove("local")
	if total, remote := cl.Count(); total != 0 || remote != 0 {
		t.Errorf("Count() = (%d, %d), want (0, 0)", total, remote)
	}
}

func TestIsLoopback(t *testing.T) {
	tests := []struct {
		addr string
		want bool
	}{
		{"127.0.0.1", true},
		{"127.0.0.53", true},
		{"::1", true},
		{"[::1]:3000", true},
		{"192.168.1.10", false},
		{"192.168.1.10:3000", false},
		{"", false},
		{"not-an-ip", false},
	}
	for _, tt := range tests {
		if got := isLoopback(tt.addr); got != tt.want {
			t.Errorf("isLoopback(%q) = %v, want %v", tt.addr, got, tt.want)
		}
	}
}
