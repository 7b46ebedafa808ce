package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golekquiz-service/internal/app"
	"golekquiz-service/internal/config"
	"golekquiz-service/internal/infra/memory"
	"golekquiz-service/internal/infra/postgres"
	redisinfra "golekquiz-service/internal/infra/redis"
	"golekquiz-service/internal/realtime"
	"golekquiz-service/internal/realtime/natsbus"
	transport "golekquiz-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the session coordinator",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

// backend holds the storage choices made from config and what must be
// released on shutdown.
type backend struct {
	store    app.Store
	chat     app.ChatRepository
	loader   memory.QuizLoader
	closers  []func()
	redis    *redis.Client
	presence app.PresenceTracker
}

func (b *backend) close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	setupLogging(cfg.Log.Level, cfg.Log.Pretty)
	// Player credentials are signed with this secret, so nobody could join without it.
	if cfg.Auth.JWTSecret == "" {
		return errors.New("auth.jwtSecret (JWT_SECRET) must be set")
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	clock := clockwork.NewRealClock()
	be, err := openBackend(ctx, cfg, clock)
	if err != nil {
		return err
	}
	defer be.close()

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	var quizzes app.QuizRepository
	if be.redis != nil {
		quizzes = redisinfra.NewQuizCache(be.redis, be.loader, quizTTL)
	} else {
		quizzes = memory.NewQuizCache(be.loader, quizTTL, clock)
	}

	hub := realtime.NewHub()
	var broker app.Broker = hub
	if cfg.NATS.URL != "" {
		natsCfg := natsbus.DefaultConfig()
		natsCfg.URL = cfg.NATS.URL
		if cfg.NATS.SubjectPrefix != "" {
			natsCfg.SubjectPrefix = cfg.NATS.SubjectPrefix
		}
		bus, err := natsbus.Connect(hub, natsCfg)
		if err != nil {
			return err
		}
		defer bus.Close()
		broker = bus
	}

	opts := app.Options{
		Countdown: config.TTLDuration(cfg.Game.Countdown, 0),
		Clock:     clock,
		Presence:  be.presence,
	}
	if cfg.Game.SpeedScoring {
		opts.Scoring = app.SpeedScaled{Floor: cfg.Game.SpeedFloor}
	}
	sessions := app.NewSessionService(be.store, quizzes, broker, opts)
	defer sessions.Close()
	chat := app.NewChatService(be.chat, be.store, broker, clock)

	if err := sessions.Resume(ctx); err != nil {
		log.Error().Err(err).Msg("resume open sessions")
	}

	auth := transport.NewAuthenticator(cfg.Auth.JWTSecret)
	router := transport.NewRouter(
		transport.NewHandler(sessions, chat, auth),
		transport.NewWSHandler(sessions, chat, broker, auth, cfg.Server.AllowedOrigins),
		transport.RouterConfig{Auth: auth, AllowedOrigins: cfg.Server.AllowedOrigins},
	)
	srv := &http.Server{
		Addr:              ":" + finalPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	sweep := config.TTLDuration(cfg.Game.SweepInterval, 5*time.Second)
	grace := config.TTLDuration(cfg.Server.ShutdownGrace, 10*time.Second)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		sessions.RunSweeper(gctx, sweep)
		return nil
	})
	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func openBackend(ctx context.Context, cfg config.Config, clock clockwork.Clock) (*backend, error) {
	be := &backend{}
	window := config.TTLDuration(cfg.Redis.PresenceWindow, memory.DefaultPresenceWindow)

	if cfg.Redis.Addr != "" {
		be.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		client := be.redis
		be.closers = append(be.closers, func() { _ = client.Close() })
		if err := client.Ping(ctx).Err(); err != nil {
			log.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis unreachable, continuing with degraded cache")
		}
		be.presence = redisinfra.NewPresence(client, clock, window)
	} else {
		be.presence = memory.NewPresence(clock, window)
	}

	if cfg.Postgres.URL == "" {
		log.Warn().Msg("postgres not configured, sessions live in memory only")
		be.store = memory.NewStore()
		be.chat = memory.NewChatStore()
		static := memory.NewStaticQuizLoader()
		if cfg.Quiz.SeedFile != "" {
			quiz, err := memory.ReadQuizFile(cfg.Quiz.SeedFile)
			if err != nil {
				be.close()
				return nil, fmt.Errorf("load seed quiz: %w", err)
			}
			static.Put(quiz)
			log.Info().Str("quiz_id", quiz.ID).Msg("seed quiz loaded")
		}
		be.loader = static
		return be, nil
	}

	db, err := openBunDB(cfg.Postgres.URL)
	if err != nil {
		be.close()
		return nil, err
	}
	be.closers = append(be.closers, func() { _ = db.Close() })
	if err := runMigrations(ctx, db); err != nil {
		be.close()
		return nil, err
	}
	store := postgres.NewStore(db)
	be.store = store
	be.chat = store

	pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
	if err != nil {
		be.close()
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	be.closers = append(be.closers, pool.Close)
	be.loader = postgres.NewQuizLoader(pool)
	return be, nil
}
