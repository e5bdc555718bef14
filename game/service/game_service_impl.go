package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/qiaoqiao/match3-server/game/engine"
	"github.com/qiaoqiao/match3-server/metrics"
)

// scoreTimeout bounds the store calls made after a game ends
const scoreTimeout = 5 * time.Second

// gameServiceImpl implements the GameService interface. It holds no lock of its
// own: every board mutation happens under the owning session's mutex.
type gameServiceImpl struct {
	sessions SessionManager
	configs  ConfigManager
	scores   ScoreStore
	users    UserStore
	notifier Notifier
}

// Option configures the game service
type Option func(*gameServiceImpl)

// WithScoreStore sets where finished games are recorded
func WithScoreStore(scores ScoreStore) Option {
	return func(s *gameServiceImpl) { s.scores = scores }
}

// WithUserStore sets how account owners are resolved
func WithUserStore(users UserStore) Option {
	return func(s *gameServiceImpl) { s.users = users }
}

// WithNotifier sets the push channel for events
func WithNotifier(n Notifier) Option {
	return func(s *gameServiceImpl) { s.notifier = n }
}

// NewGameService creates a new game service instance
func NewGameService(sessions SessionManager, configs ConfigManager, opts ...Option) GameService {
	s := &gameServiceImpl{
		sessions: sessions,
		configs:  configs,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateSession creates a new game session
func (s *gameServiceImpl) CreateSession(ctx context.Context, req CreateSessionRequest) (*SessionInfo, error) {
	config, configID, err := s.resolveConfig(req.ConfigName)
	if err != nil {
		return nil, err
	}

	session, err := s.sessions.Create("", req.Owner, configID, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	metrics.SessionsCreated.Inc()

	log.Info().
		Str("session", session.ID).
		Str("owner", req.Owner.String()).
		Str("config", configID).
		Msg("session created")

	info := session.Info()
	s.publish(Event{
		Type:      EventNotification,
		SessionID: session.ID,
		Owner:     session.Owner,
		Board:     info.Board,
		MovesLeft: info.Board.MovesLeft,
		State:     info.State,
		Message:   "new game started",
		Success:   true,
	})
	return info, nil
}

func (s *gameServiceImpl) resolveConfig(configName string) (*engine.GameConfig, string, error) {
	if configName == "" {
		config := s.configs.GetDefault()
		return config, s.configID(config.Name), nil
	}

	config, err := s.configs.LoadConfig(configName)
	if err != nil {
		// Provide helpful error message with available options
		available, listErr := s.configs.ListConfigs()
		if listErr == nil && len(available) > 0 {
			ids := make([]string, 0, len(available))
			for _, cfg := range available {
				ids = append(ids, cfg.ConfigID)
			}
			return nil, "", fmt.Errorf("config '%s' not found. Available configs: %v: %w", configName, ids, err)
		}
		return nil, "", fmt.Errorf("failed to load config %s: %w", configName, err)
	}
	return config, configName, nil
}

// configID returns the config_id for a display name, used for consistent API responses
func (s *gameServiceImpl) configID(configName string) string {
	available, err := s.configs.ListConfigs()
	if err == nil {
		for _, cfg := range available {
			if cfg.Name == configName {
				return cfg.ConfigID
			}
		}
	}
	if configName == "" {
		return "default"
	}
	return configName
}

// GetSession retrieves session information
func (s *gameServiceImpl) GetSession(ctx context.Context, sessionID string) (*SessionInfo, error) {
	session, err := s.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	return session.Info(), nil
}

// ListSessions returns all active sessions
func (s *gameServiceImpl) ListSessions(ctx context.Context) ([]*SessionInfo, error) {
	sessions := s.sessions.List()
	result := make([]*SessionInfo, 0, len(sessions))
	for _, sess := range sessions {
		result = append(result, sess.Info())
	}
	return result, nil
}

// DeleteSession removes a session
func (s *gameServiceImpl) DeleteSession(ctx context.Context, sessionID string) error {
	session, err := s.sessions.Get(sessionID)
	if err != nil {
		return err
	}
	if err := s.sessions.Delete(sessionID); err != nil {
		return err
	}

	log.Info().Str("session", session.ID).Msg("session deleted")
	s.publish(Event{
		Type:      EventNotification,
		SessionID: session.ID,
		Owner:     session.Owner,
		Message:   "session closed",
	})
	return nil
}

// ApplyMove evaluates a swap for a session.
//
// Structural failures return ErrSessionNotFound, ErrIllegalState or ErrInvalidMove
// and leave the session untouched. A legal swap without a match returns a result
// with Success false and Reason ReasonNoMatch. When an accepted move ends the game
// the score is recorded after the session lock is released.
func (s *gameServiceImpl) ApplyMove(ctx context.Context, sessionID string, move engine.Move) (*MoveResult, error) {
	session, err := s.lookup(sessionID)
	if err != nil {
		metrics.MovesTotal.WithLabelValues(metrics.OutcomeNotFound).Inc()
		return nil, err
	}

	session.mu.Lock()

	if !session.state.CanMove() {
		state := session.state
		session.mu.Unlock()
		metrics.MovesTotal.WithLabelValues(metrics.OutcomeIllegalState).Inc()
		return nil, fmt.Errorf("%w: session %s is %s", ErrIllegalState, sessionID, state)
	}

	rows, cols := session.board.Rows(), session.board.Columns()
	if !move.IsValid(rows, cols) {
		session.mu.Unlock()
		metrics.MovesTotal.WithLabelValues(metrics.OutcomeInvalidMove).Inc()
		return nil, fmt.Errorf("%w: %s on a %dx%d board", ErrInvalidMove, move, rows, cols)
	}

	if session.state == StateReady {
		session.state = StatePlaying
	}
	session.moveSeq++

	resolved := session.board.Swap(move)
	if resolved.Outcome.Accepted && session.board.IsOver() {
		session.state = StateGameOver
	}

	result := &MoveResult{
		Success:   resolved.Outcome.Accepted,
		GameOver:  session.state == StateGameOver,
		State:     session.state,
		Score:     session.board.Score(),
		MovesLeft: session.board.MovesLeft(),
		Sequence:  session.moveSeq,
		Move:      resolved,
		Board:     session.board.Snapshot(),
	}

	event := Event{
		SessionID: session.ID,
		Owner:     session.Owner,
		Board:     result.Board,
		Score:     result.Score,
		MovesLeft: result.MovesLeft,
		State:     result.State,
		Success:   result.Success,
		GameOver:  result.GameOver,
	}
	if result.Success {
		result.Message = fmt.Sprintf("matched %d tiles for %d points", resolved.Outcome.TilesMatched, resolved.Outcome.ScoreDelta)
		event.Type = EventGameState
		metrics.MovesTotal.WithLabelValues(metrics.OutcomeAccepted).Inc()
		metrics.CascadePasses.Observe(float64(resolved.Outcome.Cascades))
	} else {
		result.Reason = ReasonNoMatch
		result.Message = "invalid move: the swap makes no match"
		event.Type = EventError
		event.Message = result.Message
		metrics.MovesTotal.WithLabelValues(metrics.OutcomeNoMatch).Inc()
	}

	// Published under the lock so that events reach subscribers in move order
	s.publish(event)

	boardSize := max(rows, cols)
	movesUsed := session.board.MovesUsed()
	session.mu.Unlock()

	log.Debug().
		Str("session", sessionID).
		Str("move", move.String()).
		Bool("accepted", result.Success).
		Int("score", result.Score).
		Int("moves_left", result.MovesLeft).
		Msg("move evaluated")

	if result.GameOver {
		s.finishGame(ctx, session, result, boardSize, movesUsed)
	}

	// Auto-save session after move
	if err := s.sessions.Save(sessionID); err != nil {
		log.Warn().Err(err).Str("session", sessionID).Msg("failed to persist session after move")
	}

	return result, nil
}

// finishGame records the final score and announces the game over.
// Failures are logged; the session has already advanced.
func (s *gameServiceImpl) finishGame(ctx context.Context, session *Session, result *MoveResult, boardSize, movesUsed int) {
	ownerKind := "guest"
	if !session.Owner.IsGuest() {
		ownerKind = "account"
	}
	metrics.GamesFinished.WithLabelValues(ownerKind).Inc()

	log.Info().
		Str("session", session.ID).
		Str("owner", session.Owner.String()).
		Int("score", result.Score).
		Msg("game over")

	record := ScoreRecord{
		Owner:     session.Owner,
		Score:     result.Score,
		BoardSize: boardSize,
		MovesUsed: movesUsed,
		Completed: true,
		GameMode:  session.Config.Mode,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.recordScore(ctx, record); err != nil {
		metrics.ScoreRecordingFailures.Inc()
		log.Error().Err(err).Str("session", session.ID).Msg("score not recorded")
	}

	s.publish(Event{
		Type:      EventGameOver,
		SessionID: session.ID,
		Owner:     session.Owner,
		Score:     result.Score,
		MovesLeft: result.MovesLeft,
		State:     StateGameOver,
		Message:   fmt.Sprintf("game over, final score %d", result.Score),
		Success:   true,
		GameOver:  true,
	})
}

func (s *gameServiceImpl) recordScore(ctx context.Context, record ScoreRecord) error {
	if s.scores == nil {
		log.Debug().Int("score", record.Score).Msg("no score store configured")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), scoreTimeout)
	defer cancel()

	accountID, attributed := record.Owner.AccountID()
	if attributed && s.users != nil {
		_, err := s.users.FindByID(ctx, accountID)
		switch {
		case errors.Is(err, ErrUserNotFound):
			log.Warn().Int64("user_id", accountID).Msg("unknown account, recording score as guest")
			record.Owner = Guest()
			attributed = false
		case err != nil:
			return fmt.Errorf("%w: look up user %d: %v", ErrScoreRecordingFailed, accountID, err)
		}
	}

	if _, err := s.scores.RecordScore(ctx, record); err != nil {
		return fmt.Errorf("%w: %v", ErrScoreRecordingFailed, err)
	}

	if attributed && s.users != nil {
		if err := s.users.UpdateStats(ctx, accountID, record.Score); err != nil {
			log.Warn().Err(err).Int64("user_id", accountID).Msg("failed to update user stats")
		}
	}
	return nil
}

// Pause pauses a playing session
func (s *gameServiceImpl) Pause(ctx context.Context, sessionID string) (*SessionInfo, error) {
	return s.transition(sessionID, "paused", func(st State) (State, bool) {
		return StatePaused, st.CanPause()
	})
}

// Resume resumes a paused session
func (s *gameServiceImpl) Resume(ctx context.Context, sessionID string) (*SessionInfo, error) {
	return s.transition(sessionID, "resumed", func(st State) (State, bool) {
		return StatePlaying, st.CanResume()
	})
}

func (s *gameServiceImpl) transition(sessionID, verb string, next func(State) (State, bool)) (*SessionInfo, error) {
	session, err := s.lookup(sessionID)
	if err != nil {
		return nil, err
	}

	session.mu.Lock()
	to, ok := next(session.state)
	if !ok {
		from := session.state
		session.mu.Unlock()
		return nil, fmt.Errorf("%w: cannot be %s from %s", ErrIllegalState, verb, from)
	}
	session.state = to
	info := session.infoLocked()
	s.publish(Event{
		Type:      EventNotification,
		SessionID: session.ID,
		Owner:     session.Owner,
		Score:     info.Board.Score,
		MovesLeft: info.Board.MovesLeft,
		State:     to,
		Message:   "game " + verb,
		Success:   true,
	})
	session.mu.Unlock()

	log.Info().Str("session", sessionID).Str("state", to.String()).Msg("session " + verb)
	if err := s.sessions.Save(sessionID); err != nil {
		log.Warn().Err(err).Str("session", sessionID).Msg("failed to persist session after " + verb)
	}
	return info, nil
}

// Reshuffle re-randomizes a board that is still in play without costing a move
func (s *gameServiceImpl) Reshuffle(ctx context.Context, sessionID string) (*SessionInfo, error) {
	session, err := s.lookup(sessionID)
	if err != nil {
		return nil, err
	}

	session.mu.Lock()
	if !session.state.CanMove() {
		state := session.state
		session.mu.Unlock()
		return nil, fmt.Errorf("%w: cannot reshuffle while %s", ErrIllegalState, state)
	}
	session.board.Reshuffle()
	info := session.infoLocked()
	s.publish(Event{
		Type:      EventGameState,
		SessionID: session.ID,
		Owner:     session.Owner,
		Board:     info.Board,
		Score:     info.Board.Score,
		MovesLeft: info.Board.MovesLeft,
		State:     info.State,
		Message:   "board reshuffled",
		Success:   true,
	})
	session.mu.Unlock()

	if err := s.sessions.Save(sessionID); err != nil {
		log.Warn().Err(err).Str("session", sessionID).Msg("failed to persist session after reshuffle")
	}
	return info, nil
}

// Hint returns the first legal swap on the board
func (s *gameServiceImpl) Hint(ctx context.Context, sessionID string) (*HintResult, error) {
	session, err := s.lookup(sessionID)
	if err != nil {
		return nil, err
	}

	session.mu.Lock()
	move, ok := session.board.FindLegalMove()
	session.mu.Unlock()

	if !ok {
		return &HintResult{Available: false}, nil
	}
	return &HintResult{Available: true, Move: &move, Direction: string(move.Direction())}, nil
}

// GetBoard returns a snapshot of the session's board
func (s *gameServiceImpl) GetBoard(ctx context.Context, sessionID string) (*engine.Snapshot, error) {
	session, err := s.lookup(sessionID)
	if err != nil {
		return nil, err
	}

	session.mu.Lock()
	defer session.mu.Unlock()
	return session.board.Snapshot(), nil
}

// ListConfigs returns all available presets
func (s *gameServiceImpl) ListConfigs(ctx context.Context) ([]*ConfigInfo, error) {
	return s.configs.ListConfigs()
}

// LoadConfig loads a specific preset
func (s *gameServiceImpl) LoadConfig(ctx context.Context, configName string) (*engine.GameConfig, error) {
	return s.configs.LoadConfig(configName)
}

// Leaderboard returns the best recorded games
func (s *gameServiceImpl) Leaderboard(ctx context.Context, limit int) ([]*ScoreRecord, error) {
	if s.scores == nil {
		return []*ScoreRecord{}, nil
	}
	return s.scores.TopScores(ctx, clampLimit(limit, DefaultLeaderboardLimit))
}

// LeaderboardByMode returns the best recorded games of one mode
func (s *gameServiceImpl) LeaderboardByMode(ctx context.Context, mode string, limit int) ([]*ScoreRecord, error) {
	if mode == "" {
		return s.Leaderboard(ctx, limit)
	}
	if s.scores == nil {
		return []*ScoreRecord{}, nil
	}
	return s.scores.TopScoresByMode(ctx, mode, clampLimit(limit, DefaultLeaderboardLimit))
}

// RecentScores returns games finished in the last days, newest first
func (s *gameServiceImpl) RecentScores(ctx context.Context, days, limit int) ([]*ScoreRecord, error) {
	if s.scores == nil {
		return []*ScoreRecord{}, nil
	}
	switch {
	case days <= 0:
		days = DefaultRecentDays
	case days > MaxRecentDays:
		days = MaxRecentDays
	}
	since := time.Now().UTC().AddDate(0, 0, -days)
	return s.scores.RecentScores(ctx, since, clampLimit(limit, DefaultLeaderboardLimit))
}

// UserScores returns one account's best games
func (s *gameServiceImpl) UserScores(ctx context.Context, userID int64, limit int) ([]*ScoreRecord, error) {
	if s.scores == nil {
		return []*ScoreRecord{}, nil
	}
	return s.scores.UserScores(ctx, userID, clampLimit(limit, DefaultUserScoresLimit))
}

// UserProfile returns an account with its score aggregates. Without a user store
// only the id and the aggregates are known.
func (s *gameServiceImpl) UserProfile(ctx context.Context, userID int64) (*UserProfile, error) {
	profile := &UserProfile{User: User{ID: userID}}
	if s.users != nil {
		user, err := s.users.FindByID(ctx, userID)
		if err != nil {
			return nil, err
		}
		profile.User = *user
	}

	if s.scores != nil {
		stats, err := s.scores.UserStats(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("score stats for %d: %w", userID, err)
		}
		profile.Stats = *stats
	}
	return profile, nil
}

func (s *gameServiceImpl) lookup(sessionID string) (*Session, error) {
	session, err := s.sessions.Get(sessionID)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrSessionNotFound, err)
	}
	session.Touch()
	return session, nil
}

func (s *gameServiceImpl) publish(event Event) {
	if s.notifier == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	s.notifier.Publish(event)
}
