package relay

import (
	"net/netip"
	"testing"
)

func TestSourceCell_EmptyUntilFirstStore(t *testing.T) {
	var c sourceCell

	if _, ok := c.Load(); ok {
		t.Error("Load() ok = true on empty cell, want false")
	}
}

func TestSourceCell_StoreReportsChanges(t *testing.T) {
	var c sourceCell

	a := netip.MustParseAddrPort("10.0.0.1:34567")
	b := netip.MustParseAddrPort("10.0.0.2:34567")

	if !c.Store(a) {
		t.Error("first Store() = false, want true")
	}
	if c.Store(a) {
		t.Error("repeated Store() of same endpoint = true, want false")
	}
	if !c.Store(b) {
		t.Error("Store() of new endpoint = false, want true")
	}

	got, ok := c.Load()
	if !ok {
		t.Fatal("Load() ok = false after stores")
	}
	if got != b {
		t.Errorf("Load() = %v, want %v", got, b)
	}
}

func TestResolveUDP4(t *testing.T) {
	addr, err := resolveUDP4("127.0.0.1", 49152)
	if err != nil {
		t.Fatalf("resolveUDP4() error = %v", err)
	}
	if addr.Port != 49152 {
		t.Errorf("Port = %d, want 49152", addr.Port)
	}
	if addr.IP.To4() == nil {
		t.Errorf("IP = %v, want an IPv4 address", addr.IP)
	}

	if _, err := resolveUDP4("relay-test.invalid", 49152); err == nil {
		t.Error("resolveUDP4() should fail for an unresolvable host")
	}
}
