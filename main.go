// Command match3-server starts the match-three game server.
//
// It supports two commands:
//  1. "server" (default) runs the HTTP server exposing the REST API, WebSocket and an /mcp endpoint
//  2. "mcp" runs an MCP stdio server, spinning up an internal HTTP API if none is reachable
//
// Flags read from the environment (and a .env file) choose the score store, session
// persistence, optional JWT verification and an optional ngrok tunnel.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/server"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"
	"golang.ngrok.com/ngrok"
	ngrokConfig "golang.ngrok.com/ngrok/config"

	"github.com/qiaoqiao/match3-server/api"
	"github.com/qiaoqiao/match3-server/game/config"
	"github.com/qiaoqiao/match3-server/game/service"
	"github.com/qiaoqiao/match3-server/game/session"
	"github.com/qiaoqiao/match3-server/metrics"
	"github.com/qiaoqiao/match3-server/store"
	"github.com/qiaoqiao/match3-server/transport/mcp"
	"github.com/qiaoqiao/match3-server/transport/websocket"
)

// Version information
const (
	Version = "1.0.0"
	AppName = "Match Three Server"
)

// options is the resolved command line and environment configuration
type options struct {
	Host         string
	Port         int
	ConfigDir    string
	Store        string
	SQLitePath   string
	DatabaseURL  string
	RedisURL     string
	RedisPrefix  string
	JWTSecret    string
	SessionStore string
	SessionsDir  string
	SessionTTL   time.Duration
	CleanupEvery time.Duration
	SyncEvery    time.Duration
	APIURL       string
	Ngrok        bool
	NgrokAuth    string
	NgrokDomain  string
}

func (o options) addr() string {
	return fmt.Sprintf("%s:%d", o.Host, o.Port)
}

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "warning: loading .env: %v\n", err)
	}

	if err := newCommand().Run(context.Background(), os.Args); err != nil {
		log.Fatal().Err(err).Msg("exit")
	}
}

func newCommand() *cli.Command {
	return &cli.Command{
		Name:    "match3-server",
		Usage:   AppName,
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "host", Value: "localhost", Usage: "HTTP server host", Sources: cli.EnvVars("HOST")},
			&cli.IntFlag{Name: "port", Value: 8080, Usage: "HTTP server port", Sources: cli.EnvVars("PORT")},
			&cli.StringFlag{Name: "config-dir", Value: "configs", Usage: "directory containing board presets", Sources: cli.EnvVars("CONFIG_DIR")},
			&cli.StringFlag{Name: "log-level", Value: "info", Usage: "trace, debug, info, warn or error", Sources: cli.EnvVars("LOG_LEVEL")},
			&cli.BoolFlag{Name: "pretty", Usage: "human readable console logs", Sources: cli.EnvVars("LOG_PRETTY")},
			&cli.StringFlag{Name: "store", Value: "memory", Usage: "score and user store: memory, sqlite or postgres", Sources: cli.EnvVars("STORE")},
			&cli.StringFlag{Name: "sqlite-path", Value: "data/match3.db", Usage: "SQLite database file", Sources: cli.EnvVars("SQLITE_PATH")},
			&cli.StringFlag{Name: "database-url", Usage: "Postgres connection URL", Sources: cli.EnvVars("DATABASE_URL")},
			&cli.StringFlag{Name: "redis-url", Usage: "Redis URL for the leaderboard and redis session store", Sources: cli.EnvVars("REDIS_URL")},
			&cli.StringFlag{Name: "redis-prefix", Value: "match3", Usage: "Redis key prefix", Sources: cli.EnvVars("REDIS_PREFIX")},
			&cli.StringFlag{Name: "jwt-secret", Usage: "HS256 secret for bearer tokens; empty disables token checks", Sources: cli.EnvVars("JWT_SECRET")},
			&cli.StringFlag{Name: "session-store", Value: "file", Usage: "session persistence: file, redis or memory", Sources: cli.EnvVars("SESSION_STORE")},
			&cli.StringFlag{Name: "sessions-dir", Value: "sessions", Usage: "directory for file session snapshots", Sources: cli.EnvVars("SESSIONS_DIR")},
			&cli.DurationFlag{Name: "session-ttl", Value: 24 * time.Hour, Usage: "idle time before a session is evicted", Sources: cli.EnvVars("SESSION_TTL")},
			&cli.DurationFlag{Name: "cleanup-interval", Value: time.Hour, Usage: "how often idle sessions are evicted", Sources: cli.EnvVars("CLEANUP_INTERVAL")},
			&cli.DurationFlag{Name: "sync-interval", Value: 5 * time.Second, Usage: "how often memory is reconciled with persisted sessions", Sources: cli.EnvVars("SYNC_INTERVAL")},
			&cli.BoolFlag{Name: "ngrok", Usage: "expose the server through an ngrok tunnel", Sources: cli.EnvVars("NGROK_ENABLED")},
			&cli.StringFlag{Name: "ngrok-auth", Usage: "ngrok auth token", Sources: cli.EnvVars("NGROK_AUTHTOKEN", "NGROK_AUTH_TOKEN")},
			&cli.StringFlag{Name: "ngrok-domain", Usage: "custom ngrok domain", Sources: cli.EnvVars("NGROK_DOMAIN")},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			return ctx, setupLogging(cmd.String("log-level"), cmd.Bool("pretty"), os.Stderr)
		},
		Action: runServer,
		Commands: []*cli.Command{
			{
				Name:    "server",
				Aliases: []string{"http"},
				Usage:   "run the HTTP server with REST API, WebSocket and MCP endpoint",
				Action:  runServer,
			},
			{
				Name:    "mcp",
				Aliases: []string{"stdio-mcp", "mcp-stdio"},
				Usage:   "run an MCP stdio server backed by the REST API",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "api-url", Value: "http://localhost:8080", Usage: "REST API to proxy; an internal one starts when unreachable", Sources: cli.EnvVars("MATCH3_API_URL")},
				},
				Action: runStdioMCP,
			},
		},
	}
}

func optionsFromCommand(cmd *cli.Command) options {
	return options{
		Host:         cmd.String("host"),
		Port:         int(cmd.Int("port")),
		ConfigDir:    cmd.String("config-dir"),
		Store:        strings.ToLower(cmd.String("store")),
		SQLitePath:   cmd.String("sqlite-path"),
		DatabaseURL:  cmd.String("database-url"),
		RedisURL:     cmd.String("redis-url"),
		RedisPrefix:  cmd.String("redis-prefix"),
		JWTSecret:    cmd.String("jwt-secret"),
		SessionStore: strings.ToLower(cmd.String("session-store")),
		SessionsDir:  cmd.String("sessions-dir"),
		SessionTTL:   cmd.Duration("session-ttl"),
		CleanupEvery: cmd.Duration("cleanup-interval"),
		SyncEvery:    cmd.Duration("sync-interval"),
		APIURL:       cmd.String("api-url"),
		Ngrok:        cmd.Bool("ngrok"),
		NgrokAuth:    cmd.String("ngrok-auth"),
		NgrokDomain:  cmd.String("ngrok-domain"),
	}
}

// setupLogging configures the global zerolog logger
func setupLogging(level string, pretty bool, out io.Writer) error {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	if lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	zerolog.TimeFieldFormat = time.RFC3339

	if pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}
	}
	log.Logger = zerolog.New(out).With().Timestamp().Logger()
	return nil
}

// app holds the wired services for one process
type app struct {
	opts        options
	configs     *config.Manager
	store       store.Store
	redis       *redis.Client
	persistence session.SessionPersistence
	sessions    *session.Manager
	hub         *websocket.Hub
	games       service.GameService
	api         *api.Server
}

// newApp wires config, stores, session registry, hub and API
func newApp(ctx context.Context, opts options) (*app, error) {
	a := &app{opts: opts}

	configs, err := config.NewManager(opts.ConfigDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create config manager: %w", err)
	}
	a.configs = configs

	if opts.RedisURL != "" {
		a.redis, err = store.NewRedisClient(ctx, opts.RedisURL)
		if err != nil {
			return nil, err
		}
	}

	a.store, err = openStore(ctx, opts)
	if err != nil {
		a.Close()
		return nil, err
	}

	var scores service.ScoreStore = a.store
	if a.redis != nil {
		scores = store.NewRedisLeaderboard(a.store, a.redis, opts.RedisPrefix)
	}

	a.persistence, err = openPersistence(opts, a.redis)
	if err != nil {
		a.Close()
		return nil, err
	}

	if a.persistence != nil {
		a.sessions = session.NewManagerWithPersistence(a.persistence)
		if err := a.sessions.LoadPersistedSessions(); err != nil {
			log.Warn().Err(err).Msg("failed to load persisted sessions")
		}
	} else {
		a.sessions = session.NewManager()
	}
	metrics.RegisterSessionGauge(a.sessions.Count)

	a.hub = websocket.NewHub()
	a.games = service.NewGameService(a.sessions, configs,
		service.WithScoreStore(scores),
		service.WithUserStore(a.store),
		service.WithNotifier(a.hub),
	)
	a.hub.SetGameService(a.games)
	a.api = api.NewServer(a.games, a.hub, api.NewAuthenticator(opts.JWTSecret))

	log.Info().
		Str("store", opts.Store).
		Str("session_store", opts.SessionStore).
		Bool("redis", a.redis != nil).
		Bool("jwt", opts.JWTSecret != "").
		Msg("services initialized")
	return a, nil
}

// openStore picks the user and score backend
func openStore(ctx context.Context, opts options) (store.Store, error) {
	switch opts.Store {
	case "", "memory":
		return store.NewMemoryStore(), nil
	case "sqlite":
		return store.OpenSQLite(opts.SQLitePath)
	case "postgres", "postgresql":
		if opts.DatabaseURL == "" {
			return nil, errors.New("store postgres requires DATABASE_URL")
		}
		return store.OpenPostgres(ctx, opts.DatabaseURL)
	default:
		return nil, fmt.Errorf("unknown store %q (use memory, sqlite or postgres)", opts.Store)
	}
}

// openPersistence picks the session snapshot backend; nil keeps sessions in memory only
func openPersistence(opts options, rdb *redis.Client) (session.SessionPersistence, error) {
	switch opts.SessionStore {
	case "memory", "none":
		return nil, nil
	case "", "file":
		if opts.SessionsDir == "" {
			return nil, nil
		}
		p, err := session.NewFilePersistence(opts.SessionsDir)
		if err != nil {
			return nil, fmt.Errorf("failed to create session persistence: %w", err)
		}
		return p, nil
	case "redis":
		if rdb == nil {
			return nil, errors.New("session store redis requires REDIS_URL")
		}
		return session.NewRedisPersistence(rdb, opts.RedisPrefix, opts.SessionTTL), nil
	default:
		return nil, fmt.Errorf("unknown session store %q (use file, redis or memory)", opts.SessionStore)
	}
}

// handler combines the API with the /mcp endpoint
func (a *app) handler(mcpClient *mcp.Client) http.Handler {
	mainRouter := http.NewServeMux()
	mainRouter.Handle("/", a.api)

	if mcpClient != nil {
		mainRouter.HandleFunc("/mcp", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				http.Error(w, "Failed to read request", http.StatusBadRequest)
				return
			}
			defer r.Body.Close()

			response := mcpClient.GetMCPServer().HandleMessage(r.Context(), body)

			w.Header().Set("Content-Type", "application/json")
			if err := json.NewEncoder(w).Encode(response); err != nil {
				log.Error().Err(err).Msg("failed to write mcp response")
			}
		})
	}
	return mainRouter
}

// startBackground runs the hub, idle eviction and persistence sync until ctx is done
func (a *app) startBackground(ctx context.Context, wg *sync.WaitGroup) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.hub.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		sessionCleanupRoutine(ctx, a.sessions, a.opts.CleanupEvery, a.opts.SessionTTL)
	}()

	if a.persistence != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			persistenceSyncRoutine(ctx, a.sessions, a.persistence, a.opts.SyncEvery)
		}()
	}
}

// Close flushes sessions and releases backends
func (a *app) Close() {
	if a.sessions != nil && a.persistence != nil {
		if err := a.sessions.SaveAllSessions(); err != nil {
			log.Warn().Err(err).Msg("failed to save sessions on shutdown")
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close store")
		}
	}
	if a.redis != nil {
		a.redis.Close()
	}
}

// runServer starts the HTTP server with REST API, WebSocket hub, and an /mcp proxy endpoint.
// If ngrok is enabled, it also provisions a public tunnel.
func runServer(ctx context.Context, cmd *cli.Command) error {
	opts := optionsFromCommand(cmd)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}
	defer a.Close()

	addr := opts.addr()
	handler := a.handler(mcp.NewClient("http://" + addr))

	httpServer := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	var wg sync.WaitGroup
	a.startBackground(ctx, &wg)

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", addr).
			Str("api", "http://"+addr+"/api").
			Str("ws", "ws://"+addr+"/ws?session=<session_id>").
			Str("mcp", "http://"+addr+"/mcp").
			Msg("HTTP server listening")

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	if opts.Ngrok {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runNgrok(ctx, opts, handler)
		}()
	}

	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down")
	case err := <-errCh:
		stop()
		wg.Wait()
		return fmt.Errorf("HTTP server failed: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	wg.Wait()
	log.Info().Msg("server stopped")
	return nil
}

// runNgrok serves handler through an ngrok tunnel until ctx is done
func runNgrok(ctx context.Context, opts options, handler http.Handler) {
	if opts.NgrokAuth == "" {
		log.Warn().Msg("ngrok enabled but no auth token provided (use --ngrok-auth, NGROK_AUTHTOKEN or NGROK_AUTH_TOKEN)")
		return
	}

	var tunnel ngrokConfig.Tunnel
	if opts.NgrokDomain != "" {
		tunnel = ngrokConfig.HTTPEndpoint(ngrokConfig.WithDomain(opts.NgrokDomain))
		log.Info().Str("domain", opts.NgrokDomain).Msg("using custom ngrok domain")
	} else {
		tunnel = ngrokConfig.HTTPEndpoint()
	}

	tun, err := ngrok.Listen(ctx, tunnel, ngrok.WithAuthtoken(opts.NgrokAuth))
	if err != nil {
		log.Error().Err(err).Msg("failed to start ngrok tunnel")
		return
	}

	go func() {
		<-ctx.Done()
		if err := tun.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close ngrok tunnel")
		}
	}()

	url := tun.URL()
	log.Info().
		Str("url", url).
		Str("api", url+"/api").
		Str("ws", url+"/ws?session=<session_id>").
		Str("mcp", url+"/mcp").
		Msg("ngrok tunnel established")

	if err := http.Serve(tun, handler); err != nil && !errors.Is(err, http.ErrServerClosed) && ctx.Err() == nil {
		log.Error().Err(err).Msg("ngrok server error")
	}
	log.Info().Msg("ngrok tunnel closed")
}

// sessionCleanupRoutine periodically removes sessions that have not been accessed
// within maxAge
func sessionCleanupRoutine(ctx context.Context, manager *session.Manager, every, maxAge time.Duration) {
	if every <= 0 || maxAge <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := manager.CleanupExpiredSessions(maxAge); removed > 0 {
				log.Info().Int("removed", removed).Msg("cleaned up expired sessions")
			}
		}
	}
}

// persistenceSyncRoutine drops in-memory sessions whose snapshot was removed from
// the backing store
func persistenceSyncRoutine(ctx context.Context, manager *session.Manager, persistence session.SessionPersistence, every time.Duration) {
	if every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if pruned := pruneOrphans(manager, persistence); pruned > 0 {
				log.Info().Int("pruned", pruned).Msg("persistence sync pruned orphaned sessions")
			}
		}
	}
}

// pruneOrphans drops sessions whose snapshot disappeared from storage. Sessions
// that never reached storage are kept; their next save will write them.
func pruneOrphans(manager *session.Manager, persistence session.SessionPersistence) int {
	pruned := 0
	for _, s := range manager.List() {
		if !manager.Persisted(s.ID) || persistence.Exists(s.ID) {
			continue
		}
		if err := manager.DeleteFromMemory(s.ID); err == nil {
			pruned++
			log.Debug().Str("session", s.ID).Msg("pruned session from memory (snapshot deleted)")
		}
	}
	return pruned
}

// runStdioMCP runs an MCP stdio server. It reuses an API at --api-url when one
// answers; otherwise it starts an internal HTTP API on a random loopback port.
func runStdioMCP(ctx context.Context, cmd *cli.Command) error {
	opts := optionsFromCommand(cmd)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	baseURL := strings.TrimRight(opts.APIURL, "/")
	if apiAvailable(baseURL) {
		log.Info().Str("api", baseURL).Msg("external API server found, using it for MCP")
	} else {
		log.Info().Msg("no external API server found, starting internal HTTP server")

		a, err := newApp(ctx, opts)
		if err != nil {
			return fmt.Errorf("failed to initialize services: %w", err)
		}
		defer a.Close()

		var wg sync.WaitGroup
		a.startBackground(ctx, &wg)
		defer wg.Wait()

		listener, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			return fmt.Errorf("failed to get available port: %w", err)
		}
		httpServer := &http.Server{Handler: a.handler(nil)}
		go func() {
			if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("internal HTTP server error")
			}
		}()
		defer httpServer.Close()

		baseURL = "http://" + listener.Addr().String()
		log.Info().Str("api", baseURL).Msg("internal HTTP server started for MCP stdio")
	}

	mcpClient := mcp.NewClient(baseURL)
	log.Info().Msg("MCP stdio server ready")

	err := server.ServeStdio(mcpClient.GetMCPServer())
	stop()
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("MCP stdio server error: %w", err)
	}
	return nil
}

// apiAvailable reports whether baseURL answers its health check
func apiAvailable(baseURL string) bool {
	if baseURL == "" {
		return false
	}
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(baseURL + "/health")
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
