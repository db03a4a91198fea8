package config

import (
	"path/filepath"
	"testing"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	want := &DeviceConfig{DeviceID: "d1", Alias: "desk", ListenPort: 53318, DownloadDir: "/tmp/dl"}

	if err := Save(path, want); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if *got != *want {
		t.Fatalf("Load() = %+v, want %+v", *got, *want)
	}
}

func TestLoadOrCreateBootstrapsOnFirstRun(t *testing.T) {
	t.Setenv("AIRCOPY_DATA_DIR", t.TempDir())

	cfg, path, err := LoadOrCreate()
	if err != nil {
		t.Fatalf("LoadOrCreate: %v", err)
	}
	if cfg.DeviceID == "" {
		t.Fatal("LoadOrCreate() did not bootstrap a device id")
	}
	if cfg.ListenPort != DefaultListenPort {
		t.Fatalf("ListenPort = %d, want %d", cfg.ListenPort, DefaultListenPort)
	}

	again, _, err := LoadOrCreate()
	if err != nil {
		t.Fatalf("LoadOrCreate (second call): %v", err)
	}
	if again.DeviceID != cfg.DeviceID {
		t.Fatalf("DeviceID changed across LoadOrCreate calls: %q != %q", again.DeviceID, cfg.DeviceID)
	}
	_ = path
}

func TestExpandDownloadDir(t *testing.T) {
	got, err := ExpandDownloadDir("relative/dir")
	if err != nil {
		t.Fatalf("ExpandDownloadDir: %v", err)
	}
	if got != "relative/dir" {
		t.Fatalf("ExpandDownloadDir(relative) = %q, want unchanged", got)
	}

	expanded, err := ExpandDownloadDir("~/Downloads")
	if err != nil {
		t.Fatalf("ExpandDownloadDir: %v", err)
	}
	if expanded == "~/Downloads" || expanded == "" {
		t.Fatalf("ExpandDownloadDir(~) did not expand: %q", expanded)
	}
}
