// Package session is the registry of live game sessions.
//
// Manager maps session ids to service.Session values behind a read-write lock
// that guards only the map. Moves never take the registry lock for longer than a
// lookup, so sessions progress independently.
//
// Session ids are UUIDs unless the caller supplies one; lookups are
// case-insensitive. Idle sessions are evicted by CleanupExpiredSessions, which
// reads each session's atomic access time and never waits on a session lock.
//
// Persistence is optional. FilePersistence writes one JSON document per session;
// RedisPersistence stores msgpack blobs under a key prefix with an optional TTL.
// Both store service.SessionSnapshot values, so a restored session resumes with
// its board, score, state and move counter.
//
// Usage:
//
//	store, err := session.NewFilePersistence("sessions")
//	if err != nil {
//		log.Fatal(err)
//	}
//	manager := session.NewManagerWithPersistence(store)
//	if err := manager.LoadPersistedSessions(); err != nil {
//		log.Fatal(err)
//	}
//
//	sess, err := manager.Create("", service.Guest(), "classic", config)
package session
