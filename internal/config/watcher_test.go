package config

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

type watchedConf struct {
	Config string
	Label  string `toml:"virtual.label"`
}

func TestWatcherReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[virtual]\nlabel = \"one\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	w := NewWatcher(path, func(string) (*watchedConf, error) {
		c := &watchedConf{Config: path}
		if err := Load(c, nil); err != nil {
			return nil, err
		}
		return c, nil
	}, slog.New(slog.NewTextHandler(io.Discard, nil)), WithDebounce[*watchedConf](50*time.Millisecond))
	defer w.Stop()

	reloaded := make(chan *watchedConf, 1)
	unsubscribe := w.OnReload(func(c *watchedConf) {
		select {
		case reloaded <- c:
		default:
		}
	})
	defer unsubscribe()

	if err := w.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if err := os.WriteFile(path, []byte("[virtual]\nlabel = \"two\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case c := <-reloaded:
		if c.Label != "two" {
			t.Errorf("Label = %q, want two", c.Label)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for reload")
	}
}

func TestWatcherUnsubscribe(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[virtual]\nlabel = \"one\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	w := NewWatcher(path, func(string) (*watchedConf, error) {
		return &watchedConf{}, nil
	}, slog.New(slog.NewTextHandler(io.Discard, nil)), WithDebounce[*watchedConf](20*time.Millisecond))
	defer w.Stop()

	called := make(chan struct{}, 1)
	unsubscribe := w.OnReload(func(*watchedConf) {
		select {
		case called <- struct{}{}:
		default:
		}
	})
	unsubscribe()

	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("[virtual]\nlabel = \"two\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case <-called:
		t.Error("callback fired after unsubscribe")
	case <-time.After(300 * time.Millisecond):
	}
}
