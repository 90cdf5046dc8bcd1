package store

import (
	"errors"
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "greenroom.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestDefaultProjectCreatedOnFirstOpen(t *testing.T) {
	s := openTestStore(t)

	p, err := s.GetProject()
	if err != nil {
		t.Fatalf("GetProject failed: %v", err)
	}
	if p.Name != "My Project" {
		t.Errorf("unexpected default name %q", p.Name)
	}
	if p.Port != 8000 {
		t.Errorf("unexpected default port %d", p.Port)
	}
	if !p.QueueEnabled {
		t.Error("queue should be enabled by default")
	}
	if p.NgrokEnabled || p.CloudflareEnabled {
		t.Error("tunnels should be disabled by default")
	}
}

func TestUpdateProjectRoundTrip(t *testing.T) {
	s := openTestStore(t)

	p, _ := s.GetProject()
	p.Name = "api"
	p.Directory = "/home/dev/api"
	p.Command = "npm run dev"
	p.Port = 3000
	p.NgrokEnabled = true

	if err := s.UpdateProject(p); err != nil {
		t.Fatalf("UpdateProject failed: %v", err)
	}

	got, err := s.GetProject()
	if err != nil {
		t.Fatalf("GetProject failed: %v", err)
	}
	if got.Name != "api" || got.Directory != "/home/dev/api" || got.Command != "npm run dev" || got.Port != 3000 {
		t.Errorf("round trip mismatch: %+v", got)
	}
	if !got.NgrokEnabled {
		t.Error("ngrok flag lost")
	}
}

func TestReopenKeepsSingleProjectRow(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "greenroom.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("first open failed: %v", err)
	}
	p, _ := s.GetProject()
	p.Port = 5173
	s.UpdateProject(p)
	s.Close()

	s, err = Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer s.Close()

	got, err := s.GetProject()
	if err != nil {
		t.Fatalf("GetProject failed: %v", err)
	}
	if got.Port != 5173 {
		t.Errorf("reopen reset the project row: port %d", got.Port)
	}
}

func TestPresetLifecycle(t *testing.T) {
	s := openTestStore(t)

	if err := s.SavePreset("vite", "/home/dev/web", "npm run dev", 5173); err != nil {
		t.Fatalf("SavePreset failed: %v", err)
	}
	if err := s.SavePreset("api", "/home/dev/api", "go run .", 8080); err != nil {
		t.Fatalf("SavePreset failed: %v", err)
	}

	presets, err := s.ListPresets()
	if err != nil {
		t.Fatalf("ListPresets failed: %v", err)
	}
	if len(presets) != 2 {
		t.Fatalf("expected 2 presets, got %d", len(presets))
	}

	// Same name replaces, not duplicates
	if err := s.SavePreset("vite", "/home/dev/web2", "pnpm dev", 5173); err != nil {
		t.Fatalf("SavePreset replace failed: %v", err)
	}
	p, err := s.GetPreset("vite")
	if err != nil {
		t.Fatalf("GetPreset failed: %v", err)
	}
	if p.Directory != "/home/dev/web2" || p.Command != "pnpm dev" {
		t.Errorf("preset not replaced: %+v", p)
	}

	if err := s.DeletePreset("api"); err != nil {
		t.Fatalf("DeletePreset failed: %v", err)
	}
	if _, err := s.GetPreset("api"); !errors.Is(err, ErrPresetNotFound) {
		t.Errorf("expected ErrPresetNotFound, got %v", err)
	}
	if err := s.DeletePreset("api"); !errors.Is(err, ErrPresetNotFound) {
		t.Errorf("expected ErrPresetNotFound on double delete, got %v", err)
	}
}

func TestLoadPresetAppliesToProject(t *testing.T) {
	s := openTestStore(t)

	s.SavePreset("vite", "/home/dev/web", "npm run dev", 5173)

	project, err := s.LoadPreset("vite")
	if err != nil {
		t.Fatalf("LoadPreset failed: %v", err)
	}
	if project.Command != "npm run dev" || project.Port != 5173 {
		t.Errorf("preset not applied: %+v", project)
	}

	got, _ := s.GetProject()
	if got.Directory != "/home/dev/web" {
		t.Errorf("project row not updated: %+v", got)
	}

	if _, err := s.LoadPreset("nope"); !errors.Is(err, ErrPresetNotFound) {
		t.Errorf("expected ErrPresetNotFound, got %v", err)
	}
}

func TestEventLog(t *testing.T) {
	s := openTestStore(t)

	s.LogEvent("daemon", "started", "")
	s.LogEvent("server", "started", "pid 4242")
	s.LogEvent("tunnel", "established", "https://abc.ngrok.io")

	events, err := s.RecentEvents(2)
	if err != nil {
		t.Fatalf("RecentEvents failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	// Newest first
	if events[0].Category != "tunnel" {
		t.Errorf("expected newest event first, got %+v", events[0])
	}
	if events[1].EventType != "started" || events[1].Details != "pid 4242" {
		t.Errorf("unexpected second event: %+v", events[1])
	}
}
