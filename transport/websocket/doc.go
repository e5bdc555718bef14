// Package websocket pushes game events to browser clients and accepts moves over
// the same connection.
//
// Architecture:
//
// A single Hub goroutine owns the session-to-client map and every client's send
// channel. Clients talk to it through the register, unregister, rebind and direct
// channels; the game service talks to it through Publish, which never blocks.
// Each connection has a read pump that dispatches inbound messages to the
// GameService and a write pump that sends one JSON document per frame.
//
// Message Protocol:
//
// Inbound messages are JSON objects with a type field:
//   - {"type":"join","game_id":"..."}: bind to a game, or start one when game_id is empty
//   - {"type":"newGame","config":"classic","user_id":"7"}: start and bind a new game
//   - {"type":"move","row1":0,"col1":0,"row2":0,"col2":1}: swap two tiles
//   - {"type":"pause"} and {"type":"resume"}
//
// Outbound messages are service events: gameState, gameOver, notification and
// error, each carrying game_id, user_id, board, score, moves_left and state.
//
// Usage:
//
//	hub := websocket.NewHub()
//	hub.SetGameService(games)
//	go hub.Run(ctx)
//
//	router.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
//		hub.ServeWS(w, r, r.URL.Query().Get("session"), owner, verified)
//	})
//
// A client that falls behind its send buffer is disconnected rather than allowed
// to stall delivery to the rest of its session.
package websocket
