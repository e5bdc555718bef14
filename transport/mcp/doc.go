// Package mcp exposes the game to AI agents over the Model Context Protocol.
//
// The Client is a thin proxy: every tool calls the REST API and formats the JSON
// answer as text an agent can read, so the MCP surface never bypasses the HTTP
// layer's validation and error mapping.
//
// MCP Tools:
//   - create_session, list_sessions, session_info
//   - board_state: the grid with row/column indices, one letter per tile
//   - swap_tiles: swap two adjacent tiles, with an optional intent note
//   - pause_game, resume_game, reshuffle_board, hint
//   - list_configs, leaderboard, game_instructions
//
// Transport Modes:
//   - Stdio: server.ServeStdio(client.GetMCPServer())
//   - HTTP: the /mcp endpoint hands request bodies to GetMCPServer().HandleMessage
//
// Usage:
//
//	client := mcp.NewClient("http://localhost:8080")
//	if err := server.ServeStdio(client.GetMCPServer()); err != nil {
//		log.Fatal().Err(err).Msg("mcp stdio")
//	}
package mcp
