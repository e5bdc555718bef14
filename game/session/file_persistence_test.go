package session

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/qiaoqiao/match3-server/game/engine"
	"github.com/qiaoqiao/match3-server/game/service"
)

func newTestSession(t *testing.T, id string, owner service.Owner) *service.Session {
	t.Helper()
	config := createTestConfig()
	board, err := engine.NewBoardFromConfig(config, engine.WithSeed(11))
	if err != nil {
		t.Fatalf("Failed to create board: %v", err)
	}
	return service.NewSession(id, owner, "test", config, board)
}

func TestFilePersistence(t *testing.T) {
	tempDir := t.TempDir()

	persistence, err := NewFilePersistence(tempDir)
	if err != nil {
		t.Fatalf("Failed to create file persistence: %v", err)
	}

	session := newTestSession(t, "test1", service.Account(12))

	t.Run("Save and Load Session", func(t *testing.T) {
		if err := persistence.Save(session.Snapshot()); err != nil {
			t.Fatalf("Failed to save session: %v", err)
		}

		// Check file exists
		if !persistence.Exists("test1") {
			t.Error("Session file should exist after save")
		}
		if leftovers, _ := filepath.Glob(filepath.Join(tempDir, "*.tmp")); len(leftovers) > 0 {
			t.Errorf("Temporary files should be renamed away, found %v", leftovers)
		}

		snap, err := persistence.Load("test1")
		if err != nil {
			t.Fatalf("Failed to load session: %v", err)
		}
		loaded, err := service.SessionFromSnapshot(snap)
		if err != nil {
			t.Fatalf("Failed to restore session: %v", err)
		}

		if loaded.ID != session.ID {
			t.Errorf("Expected ID %s, got %s", session.ID, loaded.ID)
		}
		if loaded.Owner != session.Owner {
			t.Errorf("Expected owner %s, got %s", session.Owner, loaded.Owner)
		}
		if loaded.Config.Name != session.Config.Name {
			t.Errorf("Expected config name %s, got %s", session.Config.Name, loaded.Config.Name)
		}
		want, got := session.Info().Board, loaded.Info().Board
		if want.Render() != got.Render() || want.NextID != got.NextID || want.MovesLeft != got.MovesLeft {
			t.Errorf("Restored board differs:\n%s\nvs\n%s", got.Render(), want.Render())
		}
	})

	t.Run("List Sessions", func(t *testing.T) {
		if err := persistence.Save(newTestSession(t, "test2", service.Guest()).Snapshot()); err != nil {
			t.Fatalf("Failed to save session: %v", err)
		}
		// Stray files are ignored
		os.WriteFile(filepath.Join(tempDir, "notes.txt"), []byte("x"), 0644)

		ids, err := persistence.ListAll()
		if err != nil {
			t.Fatalf("Failed to list sessions: %v", err)
		}
		if len(ids) != 2 {
			t.Errorf("Expected 2 sessions, got %v", ids)
		}
	})

	t.Run("Delete Session", func(t *testing.T) {
		if err := persistence.Delete("test1"); err != nil {
			t.Fatalf("Failed to delete session: %v", err)
		}
		if persistence.Exists("test1") {
			t.Error("Session file should not exist after delete")
		}
		if err := persistence.Delete("test1"); !errors.Is(err, ErrSessionNotFound) {
			t.Errorf("Expected ErrSessionNotFound, got %v", err)
		}
	})

	t.Run("Load Non-existent Session", func(t *testing.T) {
		if _, err := persistence.Load("nonexistent"); !errors.Is(err, ErrSessionNotFound) {
			t.Errorf("Expected ErrSessionNotFound, got %v", err)
		}
	})

	t.Run("Load Corrupt Session", func(t *testing.T) {
		os.WriteFile(filepath.Join(tempDir, "broken.json"), []byte("{not json"), 0644)
		if _, err := persistence.Load("broken"); err == nil {
			t.Error("Expected error for corrupt session file")
		}
	})
}
