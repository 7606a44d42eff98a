package logging_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"grainbridge/internal/logging"
)

func TestCleanupOldLogs(t *testing.T) {
	dir := t.TempDir()

	old := filepath.Join(dir, "grainbridge-20260101T000000.000Z.log")
	current := filepath.Join(dir, "grainbridge-20260829T090000.000Z.log")
	stale := filepath.Join(dir, "grainbridge-20260102T000000.000Z.log")
	for _, path := range []string{old, current, stale} {
		if err := os.WriteFile(path, []byte("log\n"), 0o644); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
	}
	ancient := time.Now().AddDate(0, 0, -30)
	for _, path := range []string{old, stale} {
		if err := os.Chtimes(path, ancient, ancient); err != nil {
			t.Fatalf("chtimes %s: %v", path, err)
		}
	}

	// The current-log pointer sits beside the run logs and must survive
	// pruning even when its target ages out.
	pointer := filepath.Join(dir, "grainbridge-pointer.log")
	if err := os.Symlink(old, pointer); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	removed := logging.CleanupOldLogs(logging.NewNop(), 7,
		logging.RetentionTarget{Dir: dir, Pattern: "grainbridge-*.log", Exclude: []string{stale}},
	)
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Fatal("expected aged-out log to be removed")
	}
	if _, err := os.Stat(current); err != nil {
		t.Fatalf("recent log should remain: %v", err)
	}
	if _, err := os.Stat(stale); err != nil {
		t.Fatalf("excluded log should remain: %v", err)
	}
	if _, err := os.Lstat(pointer); err != nil {
		t.Fatalf("symlink pointer should remain: %v", err)
	}

	if got := logging.CleanupOldLogs(logging.NewNop(), 0,
		logging.RetentionTarget{Dir: dir, Pattern: "grainbridge-*.log"},
	); got != 0 {
		t.Fatalf("retention disabled should prune nothing, removed %d", got)
	}
}
