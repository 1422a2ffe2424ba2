package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestAtomicWrite_Success(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.json")

	data := map[string]any{"key": "value", "count": 42}
	if err := AtomicWrite(path, data); err != nil {
		t.Fatalf("AtomicWrite failed: %v", err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}

	var result map[string]any
	if err := json.Unmarshal(content, &result); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if result["key"] != "value" {
		t.Errorf("key: got %v, want %q", result["key"], "value")
	}
}

func TestAtomicWrite_CreatesBackup(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.json")

	if err := AtomicWrite(path, map[string]string{"version": "1"}); err != nil {
		t.Fatalf("first write failed: %v", err)
	}
	if err := AtomicWrite(path, map[string]string{"version": "2"}); err != nil {
		t.Fatalf("second write failed: %v", err)
	}

	bakContent, err := os.ReadFile(path + ".bak")
	if err != nil {
		t.Fatalf("ReadFile .bak failed: %v", err)
	}
	var bakData map[string]string
	if err := json.Unmarshal(bakContent, &bakData); err != nil {
		t.Fatalf("Unmarshal .bak failed: %v", err)
	}
	if bakData["version"] != "1" {
		t.Errorf("backup version: got %q, want %q", bakData["version"], "1")
	}

	curContent, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile current failed: %v", err)
	}
	var curData map[string]string
	if err := json.Unmarshal(curContent, &curData); err != nil {
		t.Fatalf("Unmarshal current failed: %v", err)
	}
	if curData["version"] != "2" {
		t.Errorf("current version: got %q, want %q", curData["version"], "2")
	}
}

func TestAtomicWriteRaw_InvalidJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.json")

	invalid := []byte(`{"broken": [`)
	err := AtomicWriteRaw(path, invalid)
	if err == nil {
		t.Fatal("expected error for invalid JSON")
	}

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("file should not exist after failed write")
	}
}

func TestAtomicWrite_NoTempFileLeftOnFailure(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.json")

	_ = AtomicWriteRaw(path, []byte(`{"broken": [`))

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".warden-tmp-") {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}

func TestLoad_MissingFile(t *testing.T) {
	dir := t.TempDir()
	var out map[string]any
	err := Load(filepath.Join(dir, "absent.json"), &out)
	if !os.IsNotExist(err) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}

func TestQuarantine_MovesCorruptFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "queue.json")
	if err := os.WriteFile(path, []byte("not json"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	if err := Quarantine(dir, path); err != nil {
		t.Fatalf("Quarantine failed: %v", err)
	}

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("corrupt file should be gone from original location")
	}

	entries, err := os.ReadDir(filepath.Join(dir, "quarantine"))
	if err != nil {
		t.Fatalf("ReadDir quarantine failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("quarantine entries: got %d, want 1", len(entries))
	}
	if !strings.HasPrefix(entries[0].Name(), "queue.json.") || !strings.HasSuffix(entries[0].Name(), ".corrupt") {
		t.Errorf("unexpected quarantine name: %s", entries[0].Name())
	}
}

func TestRestoreFromBackup(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")

	if err := AtomicWrite(path, map[string]int{"retries": 3}); err != nil {
		t.Fatalf("first write failed: %v", err)
	}
	if err := AtomicWrite(path, map[string]int{"retries": 4}); err != nil {
		t.Fatalf("second write failed: %v", err)
	}
	// Simulate corruption of the live document.
	if err := os.WriteFile(path, []byte("garbage"), 0644); err != nil {
		t.Fatalf("corrupt write failed: %v", err)
	}

	if err := RestoreFromBackup(path); err != nil {
		t.Fatalf("RestoreFromBackup failed: %v", err)
	}

	var out map[string]int
	if err := Load(path, &out); err != nil {
		t.Fatalf("Load after restore failed: %v", err)
	}
	if out["retries"] != 3 {
		t.Errorf("restored retries: got %d, want 3", out["retries"])
	}
}
