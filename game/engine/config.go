package engine

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Known game modes. A mode is a label carried onto score records and does not
// change how a board plays.
var validModes = map[string]bool{
	"classic":   true,
	"timed":     true,
	"challenge": true,
}

// ValidateGameConfig validates a board preset for correctness and playability
func ValidateGameConfig(config *GameConfig) error {
	if config == nil {
		return fmt.Errorf("config validation: config is nil")
	}

	// Validate required fields
	if config.Name == "" {
		return fmt.Errorf("config validation: name is required")
	}
	if config.Description == "" {
		return fmt.Errorf("config validation: description is required")
	}
	if config.Mode != "" && !validModes[config.Mode] {
		return fmt.Errorf("config validation: mode must be one of classic, timed, challenge, got %q", config.Mode)
	}

	// Validate board size
	if config.Rows < MinBoardSize || config.Rows > MaxBoardSize {
		return fmt.Errorf("config validation: rows must be between %d and %d, got %d", MinBoardSize, MaxBoardSize, config.Rows)
	}
	if config.Columns < MinBoardSize || config.Columns > MaxBoardSize {
		return fmt.Errorf("config validation: columns must be between %d and %d, got %d", MinBoardSize, MaxBoardSize, config.Columns)
	}

	// Validate move budget
	if config.Moves < MinMoves || config.Moves > MaxMoves {
		return fmt.Errorf("config validation: moves must be between %d and %d, got %d", MinMoves, MaxMoves, config.Moves)
	}

	// Fewer than four kinds cannot always produce a stable fill
	if config.TileKinds < MinTileKinds || config.TileKinds > MaxTileKinds {
		return fmt.Errorf("config validation: tile_kinds must be between %d and %d, got %d", MinTileKinds, MaxTileKinds, config.TileKinds)
	}

	return nil
}

// LoadGameConfig loads a board preset from a JSON file
func LoadGameConfig(filename string) (*GameConfig, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}

	var config GameConfig
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, err
	}
	applyConfigDefaults(&config)

	if err := ValidateGameConfig(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// LoadConfigByName loads a board preset by name from dir
func LoadConfigByName(dir, configName string) (*GameConfig, error) {
	if !strings.HasSuffix(configName, ".json") {
		configName = configName + ".json"
	}

	configPath := filepath.Join(dir, configName)
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file '%s' not found", configName)
	}

	config, err := LoadGameConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("invalid config '%s': %w", configName, err)
	}
	return config, nil
}

// applyConfigDefaults fills fields a preset may leave out
func applyConfigDefaults(config *GameConfig) {
	if config.Mode == "" {
		config.Mode = "classic"
	}
	if config.TileKinds == 0 {
		config.TileKinds = DefaultKinds
	}
}
