package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/slammyslinker-sketch/slammyslinker-sketch.github.io/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStore_RunLifecycle(t *testing.T) {
	store := newTestStore(t)

	run := &models.SearchRun{
		SearchID:  "req-1",
		Term:      "Fender Stratocaster",
		Kind:      models.KindGear,
		StartedAt: time.Now(),
		Status:    models.RunStatusRunning,
	}
	id, err := store.CreateRun(run)
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	run.ID = id

	now := time.Now()
	run.FinishedAt = &now
	run.Status = models.RunStatusCompleted
	run.ResultsFound = 3
	if err := store.UpdateRun(run); err != nil {
		t.Fatalf("UpdateRun: %v", err)
	}

	runs, err := store.GetRecentRuns(5)
	if err != nil {
		t.Fatalf("GetRecentRuns: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(runs))
	}
	if runs[0].Status != models.RunStatusCompleted || runs[0].ResultsFound != 3 {
		t.Fatalf("unexpected run: %+v", runs[0])
	}
}

func TestSQLiteStore_CommandInbox(t *testing.T) {
	store := newTestStore(t)

	params := &models.CommandParams{Term: "Boss DD-7", PostalCode: "10115", Kind: "gear"}
	if err := store.EnqueueCommand(models.CmdEnqueueSearch, params); err != nil {
		t.Fatalf("EnqueueCommand: %v", err)
	}
	if err := store.EnqueueCommand(models.CmdPause, nil); err != nil {
		t.Fatalf("EnqueueCommand: %v", err)
	}

	cmds, err := store.GetPendingCommands()
	if err != nil {
		t.Fatalf("GetPendingCommands: %v", err)
	}
	if len(cmds) != 2 {
		t.Fatalf("expected 2 pending commands, got %d", len(cmds))
	}

	got, err := store.ParseCommandParams(&cmds[0])
	if err != nil {
		t.Fatalf("ParseCommandParams: %v", err)
	}
	if got.Term != "Boss DD-7" || got.PostalCode != "10115" {
		t.Fatalf("unexpected params: %+v", got)
	}

	if err := store.MarkCommandProcessed(cmds[0].ID); err != nil {
		t.Fatalf("MarkCommandProcessed: %v", err)
	}
	cmds, err = store.GetPendingCommands()
	if err != nil {
		t.Fatalf("GetPendingCommands: %v", err)
	}
	if len(cmds) != 1 || cmds[0].Command != models.CmdPause {
		t.Fatalf("expected only the pause command pending, got %+v", cmds)
	}
}
