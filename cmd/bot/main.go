// Command bot plays match-three sessions against a running server through the
// REST API, choosing swaps with a greedy strategy. It can resume the session
// saved in .session from a previous run.
package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/qiaoqiao/match3-server/game/service"
)

// maxReshuffles bounds deadlock recovery within one game
const maxReshuffles = 10

// playOptions tunes a single game
type playOptions struct {
	Delay   time.Duration
	Verbose bool
}

// GameSummary is the outcome of one played game
type GameSummary struct {
	SessionID  string
	Score      int
	Moves      int
	Rejected   int
	Reshuffles int
	Finished   bool
}

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})

	cmd := &cli.Command{
		Name:  "bot",
		Usage: "play match-three sessions over the REST API",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "url", Value: "http://localhost:8080", Usage: "game server URL", Sources: cli.EnvVars("MATCH3_API_URL")},
			&cli.StringFlag{Name: "config", Usage: "board preset (classic, easy, hard, blitz)"},
			&cli.IntFlag{Name: "user-id", Usage: "account to record scores under"},
			&cli.StringFlag{Name: "token", Usage: "bearer token when the server verifies JWTs", Sources: cli.EnvVars("MATCH3_TOKEN")},
			&cli.StringFlag{Name: "continue", Usage: "resume playing an existing session by ID"},
			&cli.StringFlag{Name: "session-file", Value: ".session", Usage: "where the last session ID is kept"},
			&cli.IntFlag{Name: "games", Value: 1, Usage: "how many games to play"},
			&cli.DurationFlag{Name: "delay", Usage: "pause between moves"},
			&cli.Int64Flag{Name: "seed", Value: time.Now().UnixNano(), Usage: "strategy seed"},
			&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "log every move"},
		},
		Action: run,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal().Err(err).Msg("bot failed")
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	if cmd.Bool("verbose") {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	log.Info().Str("url", cmd.String("url")).Msg("connecting to game server")
	client := NewClient(cmd.String("url"), cmd.String("token"))
	strategy := NewGreedyStrategy(cmd.Int64("seed"))
	opts := playOptions{Delay: cmd.Duration("delay"), Verbose: cmd.Bool("verbose")}
	sessionFile := cmd.String("session-file")

	savedID := cmd.String("continue")
	if savedID == "" {
		if data, err := os.ReadFile(sessionFile); err == nil {
			savedID = string(bytes.TrimSpace(data))
		}
	}

	var best *GameSummary
	for game := 1; game <= int(cmd.Int("games")); game++ {
		info, err := openSession(ctx, client, savedID, cmd.String("config"), int64(cmd.Int("user-id")))
		if err != nil {
			return err
		}
		savedID = ""

		if err := os.WriteFile(sessionFile, []byte(client.sessionID), 0644); err != nil {
			log.Warn().Err(err).Msg("failed to save session ID")
		}

		log.Info().
			Int("game", game).
			Str("session", info.ID).
			Str("config", info.ConfigName).
			Int("moves_left", info.Board.MovesLeft).
			Msg("playing")

		summary, err := play(ctx, client, strategy, info, opts)
		if err != nil {
			return err
		}
		log.Info().
			Str("session", summary.SessionID).
			Int("score", summary.Score).
			Int("moves", summary.Moves).
			Int("reshuffles", summary.Reshuffles).
			Bool("finished", summary.Finished).
			Msg("game complete")

		if best == nil || summary.Score > best.Score {
			best = summary
		}
	}

	if best != nil {
		log.Info().Str("session", best.SessionID).Int("score", best.Score).Msg("best game")
	}
	return nil
}

// openSession resumes savedID when it is still playable, otherwise creates a new session
func openSession(ctx context.Context, client *Client, savedID, configName string, userID int64) (*service.SessionInfo, error) {
	if savedID != "" {
		client.sessionID = savedID
		info, err := client.GetSession(ctx)
		switch {
		case err != nil:
			log.Warn().Err(err).Str("session", savedID).Msg("failed to resume session (may be expired), creating a new one")
		case info.State == service.StateGameOver:
			log.Info().Str("session", savedID).Msg("saved session already finished, creating a new one")
		default:
			log.Info().Str("session", savedID).Msg("resuming session")
			return info, nil
		}
	}

	info, err := client.CreateSession(ctx, configName, userID)
	if err != nil {
		return nil, err
	}
	log.Info().Str("session", info.ID).Msg("session created")
	return info, nil
}

// play makes greedy moves until the game is over or the board stays deadlocked
func play(ctx context.Context, client *Client, strategy *GreedyStrategy, info *service.SessionInfo, opts playOptions) (*GameSummary, error) {
	summary := &GameSummary{SessionID: info.ID}
	if info.Board != nil {
		summary.Score = info.Board.Score
	}

	if info.State == service.StatePaused {
		resumed, err := client.Resume(ctx)
		if err != nil {
			return nil, err
		}
		info = resumed
	}

	board := info.Board
	state := info.State
	for state != service.StateGameOver {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		move, ok := strategy.NextMove(board)
		if !ok {
			if summary.Reshuffles >= maxReshuffles {
				log.Warn().Int("reshuffles", summary.Reshuffles).Msg("board stays deadlocked, giving up")
				return summary, nil
			}
			shuffled, err := client.Reshuffle(ctx)
			if err != nil {
				return nil, err
			}
			summary.Reshuffles++
			board, state = shuffled.Board, shuffled.State
			continue
		}

		result, err := client.Move(ctx, move)
		if err != nil {
			var apiErr *apiError
			if errors.As(err, &apiErr) && apiErr.Status < 500 {
				return summary, fmt.Errorf("server refused %s: %w", move, err)
			}
			return nil, err
		}

		if !result.Success {
			// the local estimate disagreed with the server's board
			summary.Rejected++
			if summary.Rejected > maxReshuffles {
				return summary, fmt.Errorf("too many rejected moves (last %s)", move)
			}
		} else {
			summary.Moves++
		}

		if opts.Verbose {
			log.Debug().
				Stringer("move", move).
				Bool("success", result.Success).
				Int("gained", result.Move.Outcome.ScoreDelta).
				Int("cascades", result.Move.Outcome.Cascades).
				Int("score", result.Score).
				Int("moves_left", result.MovesLeft).
				Msg("move")
		}

		summary.Score = result.Score
		board, state = result.Board, result.State
		if result.GameOver {
			summary.Finished = true
			break
		}

		if opts.Delay > 0 {
			time.Sleep(opts.Delay)
		}
	}

	summary.Finished = state == service.StateGameOver
	return summary, nil
}
