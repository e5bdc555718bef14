// Command validate checks the board preset JSON files in a configs directory
// (../configs by default, or the first argument). It checks:
//   - JSON structure, unknown fields and required fields
//   - Board dimensions, move budget and tile kinds within engine limits
//   - The game mode is one the server knows
//   - Playability: seeded boards fill without pre-existing matches and mostly offer a legal swap
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/qiaoqiao/match3-server/game/engine"
)

// playabilitySeeds is how many seeded boards each preset must fill cleanly
const playabilitySeeds = 25

var knownModes = map[string]bool{
	"classic":   true,
	"timed":     true,
	"challenge": true,
}

// ValidationResult captures the outcome of validating a single file.
// If Valid is true, Errors contains informational messages; otherwise it
// accumulates the validation errors that were found.
type ValidationResult struct {
	File   string
	Valid  bool
	Errors []string
}

func (r *ValidationResult) fail(format string, args ...interface{}) {
	r.Valid = false
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// validateConfig loads and validates a single preset file
func validateConfig(filePath string) ValidationResult {
	result := ValidationResult{
		File:   filepath.Base(filePath),
		Valid:  true,
		Errors: []string{},
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		result.fail("Failed to read file: %v", err)
		return result
	}

	var config engine.GameConfig
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&config); err != nil {
		result.fail("Invalid JSON: %v", err)
		return result
	}

	if config.Name == "" {
		result.fail("name is required")
	}
	if config.Description == "" {
		result.fail("description is required")
	}
	if config.Mode != "" && !knownModes[config.Mode] {
		result.fail("Unknown mode %q (use classic, timed or challenge)", config.Mode)
	}

	if config.Rows < engine.MinBoardSize || config.Rows > engine.MaxBoardSize {
		result.fail("rows must be between %d and %d, got %d", engine.MinBoardSize, engine.MaxBoardSize, config.Rows)
	}
	if config.Columns < engine.MinBoardSize || config.Columns > engine.MaxBoardSize {
		result.fail("columns must be between %d and %d, got %d", engine.MinBoardSize, engine.MaxBoardSize, config.Columns)
	}
	if config.Moves < engine.MinMoves || config.Moves > engine.MaxMoves {
		result.fail("moves must be between %d and %d, got %d", engine.MinMoves, engine.MaxMoves, config.Moves)
	}

	kinds := config.TileKinds
	if kinds == 0 {
		kinds = engine.DefaultKinds
	}
	if kinds < engine.MinTileKinds || kinds > engine.MaxTileKinds {
		result.fail("tile_kinds must be between %d and %d, got %d", engine.MinTileKinds, engine.MaxTileKinds, kinds)
	}

	// Playability is only meaningful once the shape is valid
	if result.Valid {
		config.TileKinds = kinds
		playability := validatePlayability(&config, playabilitySeeds)
		if !playability.Valid {
			result.Valid = false
		}
		result.Errors = append(result.Errors, playability.Errors...)
	}

	if result.Valid {
		mode := config.Mode
		if mode == "" {
			mode = "classic"
		}
		result.Errors = append(result.Errors, fmt.Sprintf("✓ Name: %s", config.Name))
		result.Errors = append(result.Errors, fmt.Sprintf("✓ Board: %dx%d", config.Rows, config.Columns))
		result.Errors = append(result.Errors, fmt.Sprintf("✓ Moves: %d", config.Moves))
		result.Errors = append(result.Errors, fmt.Sprintf("✓ Tile kinds: %d", kinds))
		result.Errors = append(result.Errors, fmt.Sprintf("✓ Mode: %s", mode))
		result.Errors = append(result.Errors, fmt.Sprintf("✓ Special tiles: %t", config.SpecialTiles))
	}

	return result
}

// validatePlayability fills seeds boards from config. Every board must start
// stable. A board with no legal swap only needs a reshuffle, so those are
// reported and fail the preset only when they are the majority.
func validatePlayability(config *engine.GameConfig, seeds int) ValidationResult {
	result := ValidationResult{
		Valid:  true,
		Errors: []string{},
	}

	unstable, deadlocked := 0, 0
	for seed := int64(1); seed <= int64(seeds); seed++ {
		board, err := engine.NewBoardFromConfig(config, engine.WithSeed(seed))
		if err != nil {
			result.fail("Board fill failed (seed %d): %v", seed, err)
			return result
		}
		if board.HasMatches() {
			unstable++
			result.Errors = append(result.Errors, fmt.Sprintf("Seed %d: board starts with a match", seed))
			continue
		}
		if !board.HasAnyLegalMove() {
			deadlocked++
		}
	}

	if unstable > 0 {
		result.fail("Playability failure: %d/%d seeded boards start with a match", unstable, seeds)
	}
	if deadlocked*2 > seeds {
		result.fail("Playability failure: %d/%d seeded boards have no legal swap", deadlocked, seeds)
	}
	if !result.Valid {
		return result
	}

	if deadlocked > 0 {
		result.Errors = append(result.Errors, fmt.Sprintf("✓ Playability: %d/%d seeded boards need a reshuffle before the first move", deadlocked, seeds))
	} else {
		result.Errors = append(result.Errors, fmt.Sprintf("✓ Playability: all %d seeded boards stable with a legal swap", seeds))
	}
	return result
}

// main validates every *.json preset, printing a concise report and exiting
// with non-zero status if any are invalid.
func main() {
	configDir := "../configs"
	if len(os.Args) > 1 {
		configDir = os.Args[1]
	}

	files, err := filepath.Glob(filepath.Join(configDir, "*.json"))
	if err != nil {
		fmt.Printf("Error finding config files: %v\n", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Printf("No presets found in %s\n", configDir)
		os.Exit(1)
	}

	allValid := true
	for _, file := range files {
		result := validateConfig(file)

		fmt.Printf("\n%s %s\n", strings.Repeat("=", 20), result.File)

		if result.Valid {
			fmt.Println("✅ VALID")
			for _, info := range result.Errors {
				fmt.Println("  " + info)
			}
		} else {
			fmt.Println("❌ INVALID")
			allValid = false
			for _, err := range result.Errors {
				if !strings.HasPrefix(err, "✓") {
					fmt.Println("  ❌ " + err)
				}
			}
		}
	}

	fmt.Printf("\n%s\n", strings.Repeat("=", 40))
	if allValid {
		fmt.Println("✅ All presets are valid!")
	} else {
		fmt.Println("❌ Some presets have errors")
		os.Exit(1)
	}
}
