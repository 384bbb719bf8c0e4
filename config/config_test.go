package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/ebusgo/ebusd/config"
)

func TestDefaultsWithNoFile(t *testing.T) {
	l, err := config.NewLoader("")
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}
	c := l.Current()
	if c.Address != 0xFF {
		t.Errorf("Address = %#x, want 0xff", c.Address)
	}
	if c.MaxLockCounter != 3 {
		t.Errorf("MaxLockCounter = %d, want 3", c.MaxLockCounter)
	}
	if c.AccessTimeoutUs != 4400 {
		t.Errorf("AccessTimeoutUs = %d, want 4400", c.AccessTimeoutUs)
	}
}

func TestFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ebusd.yml")
	body := "address: 16\nmax_lock_counter: 5\nhttp_addr: \":9000\"\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	l, err := config.NewLoader(path)
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}
	c := l.Current()
	if c.Address != 16 {
		t.Errorf("Address = %d, want 16", c.Address)
	}
	if c.MaxLockCounter != 5 {
		t.Errorf("MaxLockCounter = %d, want 5", c.MaxLockCounter)
	}
	if c.HTTPAddr != ":9000" {
		t.Errorf("HTTPAddr = %q, want :9000", c.HTTPAddr)
	}
	// Untouched fields keep their defaults.
	if c.SerialBaud != 2400 {
		t.Errorf("SerialBaud = %d, want 2400", c.SerialBaud)
	}
}

func TestWriteDefaultRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ebusd.yml")
	if err := config.WriteDefault(path); err != nil {
		t.Fatalf("WriteDefault: %v", err)
	}
	l, err := config.NewLoader(path)
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}
	if diff := cmp.Diff(config.Default(), l.Current()); diff != "" {
		t.Errorf("loaded config mismatch (-want +got):\n%s", diff)
	}
}

func TestWatchReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ebusd.yml")
	if err := os.WriteFile(path, []byte("address: 16\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	l, err := config.NewLoader(path)
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}
	defer l.Close()

	reloaded := make(chan config.Config, 1)
	l.OnReload(func(c config.Config) { reloaded <- c })
	if err := l.Watch(); err != nil {
		t.Fatalf("Watch: %v", err)
	}

	if err := os.WriteFile(path, []byte("address: 32\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	select {
	case c := <-reloaded:
		if c.Address != 32 {
			t.Errorf("reloaded Address = %d, want 32", c.Address)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("OnReload was never called after file write")
	}
}
