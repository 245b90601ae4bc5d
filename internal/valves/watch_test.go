package valves

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestWatch_ReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "valves.yaml")
	if err := os.WriteFile(path, []byte("TOOL_MODEL: first"), 0o644); err != nil {
		t.Fatal(err)
	}

	s := NewStoreWithLookup(noEnv)
	if err := s.SetFileDefaults(map[string]string{NameToolModel: "first"}); err != nil {
		t.Fatal(err)
	}

	load := func() (map[string]string, error) {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return map[string]string{NameToolModel: string(b)}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Watch(ctx, path, s, load, zap.NewNop()) }()

	// Give the watcher a moment to register before writing.
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(path, []byte("second"), 0o644); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(5 * time.Second)
	for {
		v, err := s.Resolve(nil)
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
		if v.ToolModel() == "second" {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("defaults never reloaded, ToolModel() = %q", v.ToolModel())
		case <-time.After(50 * time.Millisecond):
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Watch() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Error("Watch() did not stop after cancel")
	}
}

func TestWatch_BadLayerKeepsPrevious(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "valves.yaml")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	s := NewStoreWithLookup(noEnv)
	if err := s.SetFileDefaults(map[string]string{NameIndexURL: "http://localhost:3030"}); err != nil {
		t.Fatal(err)
	}

	// Loader that always produces an invalid layer.
	load := func() (map[string]string, error) {
		return map[string]string{NameIndexURL: "not a url"}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- Watch(ctx, path, s, load, zap.NewNop()) }()

	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(path, []byte("y"), 0o644); err != nil {
		t.Fatal(err)
	}

	// Wait past the debounce, then confirm the previous layer survived.
	time.Sleep(600 * time.Millisecond)
	v, err := s.Resolve(nil)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got := v.IndexURL(); got != "http://localhost:3030" {
		t.Errorf("IndexURL() = %q, want previous value", got)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Error("Watch() did not stop after cancel")
	}
}
