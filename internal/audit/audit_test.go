package audit

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readEntries(t *testing.T, path string) []Entry {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e Entry
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &e))
		entries = append(entries, e)
	}
	require.NoError(t, scanner.Err())
	return entries
}

func TestRecordAppendsJSONL(t *testing.T) {
	dir := t.TempDir()
	trail, err := Open(dir)
	require.NoError(t, err)
	defer trail.Close()

	require.NoError(t, trail.Record(KindConfidence, "task_1", map[string]any{"score": 0.84, "tier": "direct_review"}))
	require.NoError(t, trail.Record(KindRoute, "task_1", map[string]any{"route": "execute_with_review"}))

	entries := readEntries(t, filepath.Join(dir, "audit", "decisions.jsonl"))
	require.Len(t, entries, 2)
	assert.Equal(t, KindConfidence, entries[0].Kind)
	assert.Equal(t, "task_1", entries[0].TaskID)
	assert.Equal(t, "execute_with_review", entries[1].Detail["route"])
	assert.NotEmpty(t, entries[0].Timestamp)
}

func TestRecordSurvivesReopen(t *testing.T) {
	dir := t.TempDir()

	trail, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, trail.Record(KindTerminal, "", map[string]any{"reason": "interrupted"}))
	require.NoError(t, trail.Close())

	trail, err = Open(dir)
	require.NoError(t, err)
	require.NoError(t, trail.Record(KindTerminal, "", map[string]any{"reason": "failed"}))
	require.NoError(t, trail.Close())

	entries := readEntries(t, filepath.Join(dir, "audit", "decisions.jsonl"))
	assert.Len(t, entries, 2)
}

func TestRotation(t *testing.T) {
	dir := t.TempDir()
	trail, err := Open(dir)
	require.NoError(t, err)
	defer trail.Close()
	trail.maxSize = 256

	for i := 0; i < 20; i++ {
		require.NoError(t, trail.Record(KindDebate, "task_2", map[string]any{"verdict": "verified", "round": i}))
	}

	archives, err := os.ReadDir(filepath.Join(dir, "audit", "archive"))
	require.NoError(t, err)
	assert.NotEmpty(t, archives)

	// The live file keeps accepting writes after rotation.
	stat, err := os.Stat(filepath.Join(dir, "audit", "decisions.jsonl"))
	require.NoError(t, err)
	assert.Greater(t, stat.Size(), int64(0))
}

func TestNilTrailIsNoOp(t *testing.T) {
	var trail *Trail
	assert.NoError(t, trail.Record(KindRoute, "task_3", nil))
	assert.NoError(t, trail.Close())
}
