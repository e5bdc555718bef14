package main

import (
	"path/filepath"
	"testing"

	"github.com/qiaoqiao/match3-server/game/engine"
)

func TestSimulateGame(t *testing.T) {
	config := engine.DefaultConfig()

	stats, err := simulateGame(config, 7)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if stats.Stuck {
		t.Fatal("Expected the classic board not to deadlock")
	}
	if stats.MovesPlayed != config.Moves {
		t.Errorf("Expected %d moves played, got %d", config.Moves, stats.MovesPlayed)
	}
	if stats.Score <= 0 {
		t.Errorf("Expected a positive score, got %d", stats.Score)
	}
	// every accepted move clears at least one run
	if stats.TilesMatched < engine.MinMatchLength*stats.MovesPlayed {
		t.Errorf("Expected at least %d tiles matched, got %d", engine.MinMatchLength*stats.MovesPlayed, stats.TilesMatched)
	}
	if stats.MaxCascades < 1 {
		t.Errorf("Expected at least one cascade pass, got %d", stats.MaxCascades)
	}
}

func TestSimulateGame_Deterministic(t *testing.T) {
	config := engine.DefaultConfig()

	first, err := simulateGame(config, 42)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	second, err := simulateGame(config, 42)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if first != second {
		t.Errorf("Same seed should replay the same game: %+v vs %+v", first, second)
	}
}

func TestSimulateGame_InvalidConfig(t *testing.T) {
	config := engine.DefaultConfig()
	config.TileKinds = 2

	if _, err := simulateGame(config, 1); err == nil {
		t.Error("Expected error for too few tile kinds")
	}
}

func TestAnalyzePreset(t *testing.T) {
	config := engine.DefaultConfig()
	config.Moves = 5

	stats, err := analyzePreset(config, 10)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if stats.Games != 10 {
		t.Errorf("Expected 10 games, got %d", stats.Games)
	}
	if stats.Name != "classic" || stats.Rows != 8 || stats.Columns != 8 {
		t.Errorf("Unexpected preset summary: %+v", stats)
	}
	if stats.MinScore > stats.MedianScore || stats.MedianScore > stats.MaxScore {
		t.Errorf("Expected min <= median <= max, got %d/%d/%d", stats.MinScore, stats.MedianScore, stats.MaxScore)
	}
	if stats.MeanScore < float64(stats.MinScore) || stats.MeanScore > float64(stats.MaxScore) {
		t.Errorf("Mean %.1f outside [%d, %d]", stats.MeanScore, stats.MinScore, stats.MaxScore)
	}
}

func TestAnalyzePreset_NoGames(t *testing.T) {
	if _, err := analyzePreset(engine.DefaultConfig(), 0); err == nil {
		t.Error("Expected error for zero games")
	}
}

func TestAnalyzeRepositoryPresets(t *testing.T) {
	files, err := filepath.Glob(filepath.Join("..", "..", "configs", "*.json"))
	if err != nil || len(files) == 0 {
		t.Skip("Skipping test - configs directory not found")
	}

	for _, file := range files {
		t.Run(filepath.Base(file), func(t *testing.T) {
			config, err := engine.LoadGameConfig(file)
			if err != nil {
				t.Fatalf("Failed to load preset: %v", err)
			}
			stats, err := analyzePreset(config, 3)
			if err != nil {
				t.Fatalf("Failed to analyze preset: %v", err)
			}
			if stats.StuckGames > 0 {
				t.Errorf("Preset deadlocked in %d games", stats.StuckGames)
			}
		})
	}
}
