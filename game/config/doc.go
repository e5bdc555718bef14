// Package config loads board presets for the match-three server.
//
// Presets are JSON files in a config directory, one per file, named by the file's
// base name:
//
//	{
//	  "name": "classic",
//	  "description": "Classic 8x8 board with 20 moves",
//	  "mode": "classic",
//	  "rows": 8,
//	  "columns": 8,
//	  "moves": 20,
//	  "tile_kinds": 6,
//	  "special_tiles": false
//	}
//
// Usage:
//
//	manager, err := config.NewManager("configs")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	preset, err := manager.LoadConfig("blitz")
//	def := manager.GetDefault()
//
// Loaded presets are cached. The default is classic.json when present, otherwise
// the first valid preset, otherwise the built-in classic board.
package config
