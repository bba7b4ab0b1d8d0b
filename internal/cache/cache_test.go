package cache

import (
	"testing"
	"time"
)

func TestGetReturnsStoredValue(t *testing.T) {
	c := NewTTL[string](time.Minute, nil)
	defer c.Stop()

	c.Set("k", "v")
	got, ok := c.Get("k")
	if !ok || got != "v" {
		t.Errorf("Get = (%q, %v), want (v, true)", got, ok)
	}
}

func TestGetMissesUnknownKey(t *testing.T) {
	c := NewTTL[int](time.Minute, nil)
	defer c.Stop()

	if got, ok := c.Get("absent"); ok {
		t.Errorf("Get(absent) = (%d, true), want miss", got)
	}
}

func TestEntriesExpire(t *testing.T) {
	c := NewTTL[string](20*time.Millisecond, nil)
	defer c.Stop()

	c.Set("k", "v")
	if _, ok := c.Get("k"); !ok {
		t.Fatal("entry missing immediately after Set")
	}

	time.Sleep(50 * time.Millisecond)
	if _, ok := c.Get("k"); ok {
		t.Error("entry still present after TTL elapsed")
	}
}

func TestGetDoesNotExtendTTL(t *testing.T) {
	c := NewTTL[string](40*time.Millisecond, nil)
	defer c.Stop()

	c.Set("k", "v")
	for i := 0; i < 3; i++ {
		time.Sleep(15 * time.Millisecond)
		c.Get("k")
	}

	// 45ms elapsed; repeated hits must not have kept the entry alive.
	if _, ok := c.Get("k"); ok {
		t.Error("hits extended entry lifetime")
	}
}

func TestSetReplaces(t *testing.T) {
	c := NewTTL[string](time.Minute, nil)
	defer c.Stop()

	c.Set("k", "old")
	c.Set("k", "new")
	if got, _ := c.Get("k"); got != "new" {
		t.Errorf("Get = %q, want new", got)
	}
	if c.Len() != 1 {
		t.Errorf("Len = %d, want 1", c.Len())
	}
}

func TestDelete(t *testing.T) {
	c := NewTTL[string](time.Minute, nil)
	defer c.Stop()

	c.Set("k", "v")
	c.Delete("k")
	if _, ok := c.Get("k"); ok {
		t.Error("entry present after Delete")
	}
}
