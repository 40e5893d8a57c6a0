package config

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

type sample struct {
	Name    string   `yaml:"name"`
	Sources []string `yaml:"sources"`
}

func (s *sample) Validate() error {
	if s.Name == "" {
		return errors.New("name is required")
	}
	return nil
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoad_ExpandsEnvAndValidates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "c.yaml")
	t.Setenv("STRATA_TEST_NAME", "from-env")
	writeFile(t, path, "name: ${STRATA_TEST_NAME}\nsources: [git, comments]\n")

	var s sample
	if err := Load(path, &s); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Name != "from-env" || len(s.Sources) != 2 {
		t.Errorf("loaded = %+v", s)
	}

	writeFile(t, path, "sources: []\n")
	if err := Load(path, &sample{}); err == nil {
		t.Error("validation failure should be reported")
	}
}

func TestLoadOptional(t *testing.T) {
	dir := t.TempDir()

	s := sample{Name: "default"}
	found, err := LoadOptional(filepath.Join(dir, "missing.yaml"), &s)
	if err != nil || found {
		t.Fatalf("missing file: found=%v err=%v", found, err)
	}
	if s.Name != "default" {
		t.Errorf("missing file changed target: %+v", s)
	}

	path := filepath.Join(dir, "c.yaml")
	writeFile(t, path, "name: present\n")
	found, err = LoadOptional(path, &s)
	if err != nil || !found {
		t.Fatalf("present file: found=%v err=%v", found, err)
	}
	if s.Name != "present" {
		t.Errorf("name = %q", s.Name)
	}

	if _, err := LoadOptional(filepath.Join(dir, "missing.yaml"), &sample{}); err == nil {
		t.Error("invalid defaults should be reported")
	}
}

func TestWatch_ReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "c.yaml")
	writeFile(t, path, "name: one\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var got []string
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = Watch(ctx, path, 20*time.Millisecond,
			func() *sample { return &sample{} },
			func(s *sample) {
				mu.Lock()
				got = append(got, s.Name)
				mu.Unlock()
			},
			slog.New(slog.NewJSONHandler(io.Discard, nil)))
	}()
	time.Sleep(100 * time.Millisecond)

	// An invalid file is skipped.
	writeFile(t, path, "sources: [x]\n")
	time.Sleep(100 * time.Millisecond)
	writeFile(t, path, "name: two\n")

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(got)
		mu.Unlock()
		if n > 0 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}

	mu.Lock()
	if len(got) == 0 {
		t.Error("change was never reloaded")
	}
	for _, name := range got {
		if name != "two" {
			t.Errorf("reloads = %v, only the valid file should be delivered", got)
		}
	}
	mu.Unlock()

	cancel()
	<-done
}
