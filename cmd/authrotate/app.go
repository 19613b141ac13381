package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/nkiryanov/authrotate/internal/db"
	"github.com/nkiryanov/authrotate/internal/handlers"
	"github.com/nkiryanov/authrotate/internal/logger"
	"github.com/nkiryanov/authrotate/internal/repository"
	"github.com/nkiryanov/authrotate/internal/repository/memory"
	"github.com/nkiryanov/authrotate/internal/repository/postgres"
	redisrepo "github.com/nkiryanov/authrotate/internal/repository/redis"
	"github.com/nkiryanov/authrotate/internal/service/auth"
	"github.com/nkiryanov/authrotate/internal/service/auth/tokencodec"
	"github.com/nkiryanov/authrotate/internal/service/rotation"
	"github.com/nkiryanov/authrotate/internal/service/sweeper"
	"github.com/nkiryanov/authrotate/internal/service/user"
)

type ServerApp struct {
	ListenAddr string
	Handler    http.Handler

	logger  logger.Logger
	sweeper *sweeper.Sweeper

	// Release storage resources, called in reverse order on stop
	closers []func()
}

type storage struct {
	users   repository.UserRepo
	refresh repository.RefreshTokenRepo
	closers []func()
}

func NewServerApp(ctx context.Context, c *Config) (*ServerApp, error) {
	// Initialize logger
	l, err := logger.New(c.Environment, c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("error while initializing logger: %w", err)
	}

	s, err := openStorage(ctx, c)
	if err != nil {
		return nil, err
	}
	app := &ServerApp{ListenAddr: c.ListenAddr, logger: l, closers: s.closers}

	// Initialize services
	codec, err := tokencodec.New(tokencodec.Config{
		AccessSecret:  c.AccessSecret,
		RefreshSecret: c.RefreshSecret,
		AccessTTL:     c.AccessTTL,
		RefreshTTL:    c.RefreshTTL,
	})
	if err != nil {
		app.close()
		return nil, fmt.Errorf("error while creating token codec. Err: %w", err)
	}
	controller, err := rotation.New(rotation.Config{}, codec, s.refresh, l)
	if err != nil {
		app.close()
		return nil, fmt.Errorf("error while creating rotation controller. Err: %w", err)
	}
	userService := user.NewService(user.DefaultHasher, s.users)
	authService, err := auth.NewService(auth.Config{SecureCookie: c.Environment == logger.EnvProduction}, userService, controller, l)
	if err != nil {
		app.close()
		return nil, fmt.Errorf("error while creating auth service. Err: %w", err)
	}

	app.sweeper, err = sweeper.New(sweeper.Config{Interval: c.SweepInterval}, s.refresh, l)
	if err != nil {
		app.close()
		return nil, fmt.Errorf("error while creating sweeper. Err: %w", err)
	}

	app.Handler = handlers.NewRouter(authService, l)
	return app, nil
}

func openStorage(ctx context.Context, c *Config) (storage, error) {
	switch c.Storage {
	case StorageMemory:
		m := memory.NewStorage()
		return storage{users: m.User(), refresh: m.Refresh(), closers: []func(){m.Close}}, nil

	case StoragePostgres, StorageRedis:
		// Connect to the database and run migrations
		pool, err := db.ConnectAndMigrate(ctx, c.DatabaseDSN)
		if err != nil {
			return storage{}, fmt.Errorf("error while connecting to db. Err: %w", err)
		}
		pg := postgres.NewStorage(pool)
		s := storage{users: pg.User(), refresh: pg.Refresh(), closers: []func(){pool.Close}}

		if c.Storage == StorageRedis {
			client := goredis.NewClient(&goredis.Options{Addr: c.RedisAddr})
			s.closers = append(s.closers, func() { _ = client.Close() })

			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			if err := client.Ping(pingCtx).Err(); err != nil {
				for _, fn := range slices.Backward(s.closers) {
					fn()
				}
				return storage{}, fmt.Errorf("error while connecting to redis. Err: %w", err)
			}
			s.refresh = redisrepo.NewRefreshTokenRepo(client, redisrepo.DefaultPrefix)
		}
		return s, nil

	default:
		return storage{}, fmt.Errorf("unknown storage %q", c.Storage)
	}
}

func (s *ServerApp) close() {
	for _, fn := range slices.Backward(s.closers) {
		fn()
	}
	s.closers = nil
}

// Run starts http server and sweeper; closes gracefully on context cancellation
func (s *ServerApp) Run(ctx context.Context) error {
	defer s.close()

	httpServer := &http.Server{
		Addr:              s.ListenAddr,
		Handler:           s.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	idleConnsClosed := make(chan struct{})
	srvCtx, srvCtxCancel := context.WithCancel(ctx)
	defer srvCtxCancel()

	sweeperStopped := s.sweeper.Run(srvCtx)

	go func() {
		<-srvCtx.Done()

		timeoutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(timeoutCtx); errors.Is(err, context.DeadlineExceeded) {
			s.logger.Error("HTTP server shutdown timeout exceeded, forcing shutdown...")
		}
		s.logger.Info("HTTP server stopped")
		close(idleConnsClosed)
	}()

	// Listen and serve until context is cancelled; then close gracefully connections
	s.logger.Info("Starting server", "address", s.ListenAddr)
	err := httpServer.ListenAndServe()
	srvCtxCancel()
	<-idleConnsClosed
	<-sweeperStopped

	return err
}
