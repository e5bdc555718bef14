// Package api provides the HTTP REST API for the match-three server.
//
// Endpoints:
//
// Sessions:
//   - POST   /api/sessions                 create {config?, user_id?}
//   - GET    /api/sessions                 list (?sort=created|accessed&order=asc|desc&limit=N)
//   - GET    /api/sessions/{id}            session info
//   - DELETE /api/sessions/{id}            teardown
//
// Play:
//   - GET  /api/sessions/{id}/board        board snapshot
//   - POST /api/sessions/{id}/move         {row1, col1, row2, col2}
//   - POST /api/sessions/{id}/pause        playing -> paused
//   - POST /api/sessions/{id}/resume       paused -> playing
//   - POST /api/sessions/{id}/reshuffle    new arrangement, same kinds
//   - GET  /api/sessions/{id}/hint         first legal swap, 404 when none
//
// Presets and scores:
//   - GET /api/configs, /api/configs/{name}
//   - GET /api/leaderboard?limit=N&mode=M    overall, or one game mode
//   - GET /api/scores/recent?days=D&limit=N  newest first, default 7 days
//   - GET /api/users/{id}                    account with games played, average and best
//   - GET /api/users/{id}/scores?limit=N
//
// Other:
//   - GET /ws?session={id}                 WebSocket upgrade
//   - GET /metrics                         Prometheus
//   - GET /health
//
// Owners:
//
// When the server has a JWT secret, a bearer token (or the match3_token cookie)
// decides the session owner from its sub claim and overrides any user_id in the
// body. A request without a token plays as a guest unless it names a numeric
// user_id; a request with an invalid token gets 401.
//
// Error Handling:
//
// Errors are JSON {"error": "..."}. Unknown sessions and accounts map to 404, moves in a
// paused or finished game to 409, and out-of-bounds or non-adjacent swaps to 400.
// A swap that forms no match is not an error: it returns 200 with success false
// and reason "no_match".
package api
