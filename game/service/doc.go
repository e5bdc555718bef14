// Package service provides the business logic layer for the match-three server.
//
// The service package implements:
//   - The session lifecycle (Ready, Playing, Paused, GameOver)
//   - Move evaluation against a session's board
//   - Score attribution for guests and accounts
//   - Event publication to push channels
//
// Core Interfaces:
//
// GameService is the coordinator used by every transport. SessionManager is the
// registry of live sessions. ConfigManager loads board presets. ScoreStore and
// UserStore persist finished games and accounts. Notifier receives events.
//
// Concurrency:
//
// Every session carries its own mutex. The coordinator holds no lock of its own,
// so moves on different sessions never wait on each other. Store I/O happens after
// the session lock is released.
//
// Usage:
//
//	sessions := session.NewManager()
//	configs := config.NewManager("configs")
//	games := service.NewGameService(sessions, configs,
//		service.WithScoreStore(scores),
//		service.WithNotifier(hub),
//	)
//
//	info, err := games.CreateSession(ctx, service.CreateSessionRequest{ConfigName: "classic"})
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	result, err := games.ApplyMove(ctx, info.ID, engine.NewMove(0, 0, 0, 1))
package service
