// Command analyze prints quick, human-readable heuristics about the board
// presets in a configs directory. For each preset it plays a batch of seeded
// games with the hint policy (always take the first legal swap) and summarizes
// scores, cascade depth, special tiles and how often the board deadlocked.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/qiaoqiao/match3-server/game/engine"
)

// gamesPerPreset is the sample size for each preset
const gamesPerPreset = 50

// maxReshuffles bounds deadlock recovery in a single simulated game
const maxReshuffles = 20

// GameStats summarizes one simulated game
type GameStats struct {
	Score        int
	MovesPlayed  int
	TilesMatched int
	MaxCascades  int
	Specials     int
	Reshuffles   int
	Stuck        bool
}

// PresetStats aggregates simulated games for one preset
type PresetStats struct {
	Name        string
	Rows        int
	Columns     int
	Moves       int
	TileKinds   int
	Games       int
	MinScore    int
	MaxScore    int
	MeanScore   float64
	MedianScore int
	MeanTiles   float64
	MaxCascades int
	Specials    int
	Reshuffles  int
	StuckGames  int
}

func main() {
	configDir := "configs"
	if len(os.Args) > 1 {
		configDir = os.Args[1]
	}

	files, err := filepath.Glob(filepath.Join(configDir, "*.json"))
	if err != nil || len(files) == 0 {
		fmt.Printf("No presets found in %s\n", configDir)
		os.Exit(1)
	}
	sort.Strings(files)

	for _, file := range files {
		fmt.Printf("\n=== Analyzing %s ===\n", filepath.Base(file))

		config, err := engine.LoadGameConfig(file)
		if err != nil {
			fmt.Printf("Error loading preset: %v\n", err)
			continue
		}

		stats, err := analyzePreset(config, gamesPerPreset)
		if err != nil {
			fmt.Printf("Error simulating preset: %v\n", err)
			continue
		}
		printStats(stats)
	}
}

// simulateGame plays one game with the given seed using the hint policy
func simulateGame(config *engine.GameConfig, seed int64) (GameStats, error) {
	var stats GameStats

	board, err := engine.NewBoardFromConfig(config, engine.WithSeed(seed))
	if err != nil {
		return stats, err
	}

	for !board.IsOver() {
		move, ok := board.FindLegalMove()
		if !ok {
			if stats.Reshuffles >= maxReshuffles {
				stats.Stuck = true
				break
			}
			board.Reshuffle()
			stats.Reshuffles++
			continue
		}

		result := board.Swap(move)
		if !result.Outcome.Accepted {
			// FindLegalMove promised a match; treat a refusal as a deadlock
			stats.Stuck = true
			break
		}

		stats.MovesPlayed++
		stats.TilesMatched += result.Outcome.TilesMatched
		if result.Outcome.Cascades > stats.MaxCascades {
			stats.MaxCascades = result.Outcome.Cascades
		}
		if result.Outcome.SpecialEffect != engine.EffectNone {
			stats.Specials++
		}
	}

	stats.Score = board.Score()
	return stats, nil
}

// analyzePreset simulates games seeded 1..games and aggregates the results
func analyzePreset(config *engine.GameConfig, games int) (PresetStats, error) {
	stats := PresetStats{
		Name:      config.Name,
		Rows:      config.Rows,
		Columns:   config.Columns,
		Moves:     config.Moves,
		TileKinds: config.TileKinds,
	}
	if games <= 0 {
		return stats, fmt.Errorf("games must be positive, got %d", games)
	}

	scores := make([]int, 0, games)
	totalScore, totalTiles := 0, 0
	for seed := int64(1); seed <= int64(games); seed++ {
		game, err := simulateGame(config, seed)
		if err != nil {
			return stats, fmt.Errorf("seed %d: %w", seed, err)
		}

		scores = append(scores, game.Score)
		totalScore += game.Score
		totalTiles += game.TilesMatched
		stats.Specials += game.Specials
		stats.Reshuffles += game.Reshuffles
		if game.MaxCascades > stats.MaxCascades {
			stats.MaxCascades = game.MaxCascades
		}
		if game.Stuck {
			stats.StuckGames++
		}
	}

	sort.Ints(scores)
	stats.Games = games
	stats.MinScore = scores[0]
	stats.MaxScore = scores[len(scores)-1]
	stats.MedianScore = scores[len(scores)/2]
	stats.MeanScore = float64(totalScore) / float64(games)
	stats.MeanTiles = float64(totalTiles) / float64(games)
	return stats, nil
}

func printStats(s PresetStats) {
	fmt.Printf("Name: %s\n", s.Name)
	fmt.Printf("Board: %d x %d, %d kinds\n", s.Rows, s.Columns, s.TileKinds)
	fmt.Printf("Moves: %d\n", s.Moves)
	fmt.Printf("Simulated games: %d\n", s.Games)
	fmt.Printf("Score: min %d / median %d / mean %.1f / max %d\n", s.MinScore, s.MedianScore, s.MeanScore, s.MaxScore)
	fmt.Printf("Tiles cleared per game: %.1f\n", s.MeanTiles)
	fmt.Printf("Deepest cascade: %d\n", s.MaxCascades)
	if s.Specials > 0 {
		fmt.Printf("Special effects triggered: %d\n", s.Specials)
	}

	if s.StuckGames > 0 {
		fmt.Printf("⚠️  WARNING: %d games deadlocked after %d reshuffles\n", s.StuckGames, maxReshuffles)
	} else if s.Reshuffles > 0 {
		fmt.Printf("⚠️  %d reshuffles needed across %d games\n", s.Reshuffles, s.Games)
	} else {
		fmt.Printf("✅ No deadlocks\n")
	}
	fmt.Println(strings.Repeat("-", 30))
}
