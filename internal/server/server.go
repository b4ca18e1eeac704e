package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/growhive/apiserver/config"
	"github.com/growhive/apiserver/internal/cooldown"
	"github.com/growhive/apiserver/internal/db"
	"github.com/growhive/apiserver/internal/handlers"
	"github.com/growhive/apiserver/internal/logging"
	"github.com/growhive/apiserver/internal/mailer"
	"github.com/growhive/apiserver/internal/mq"
	"github.com/growhive/apiserver/internal/services"
	"github.com/growhive/apiserver/internal/storage"
	"github.com/growhive/apiserver/internal/store"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Server wraps the HTTP server and the connections it owns.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	logger     *zap.Logger

	db     *sql.DB
	broker mq.Backend
	redis  *redis.Client
}

// Dependencies are the collaborators NewRouter wires together.
type Dependencies struct {
	Config  config.Config
	Logger  *zap.Logger
	Users   services.UserRepository
	OTPs    services.OTPRepository
	Objects storage.ObjectStorage
	Mailer  mailer.Mailer
	Limiter services.ResendLimiter
}

// New connects to every configured backend and builds the server.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*Server, error) {
	if cfg.Auth.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}

	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	s := &Server{logger: logger, db: dbConn}

	objects, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		s.close()
		return nil, fmt.Errorf("init storage: %w", err)
	}

	broker, err := mq.New(ctx, cfg.MQ)
	if err != nil {
		s.close()
		return nil, fmt.Errorf("init mq: %w", err)
	}
	s.broker = broker

	var otpMailer mailer.Mailer
	if broker != nil {
		otpMailer = mailer.NewQueueMailer(broker, cfg.MQ.OTPQueue)
	} else if otpMailer, err = mailer.NewDelivery(cfg.SMTP, logger); err != nil {
		s.close()
		return nil, fmt.Errorf("init mailer: %w", err)
	}

	var limiter services.ResendLimiter
	if cfg.Redis.URL != "" {
		client, err := cooldown.Connect(ctx, cfg.Redis.URL)
		if err != nil {
			s.close()
			return nil, err
		}
		s.redis = client
		limiter = cooldown.NewRedisLimiter(client)
	}

	s.router = NewRouter(Dependencies{
		Config:  cfg,
		Logger:  logger,
		Users:   store.NewUserRepository(dbConn),
		OTPs:    store.NewOTPRepository(dbConn),
		Objects: objects,
		Mailer:  otpMailer,
		Limiter: limiter,
	})

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s, nil
}

// NewRouter builds the HTTP routes over deps.
func NewRouter(deps Dependencies) *chi.Mux {
	cfg := deps.Config
	logger := deps.Logger

	tokens := services.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	otpService := services.NewOTPService(deps.Users, deps.OTPs, deps.Mailer, services.OTPOptions{
		TTL:            cfg.OTP.TTL,
		ResendCooldown: cfg.OTP.ResendCooldown,
		Limiter:        deps.Limiter,
		Logger:         logger,
	})
	accountService := services.NewAccountService(deps.Users, deps.OTPs, tokens, services.AccountOptions{
		RequireVerifiedEmail: cfg.Auth.RequireVerifiedEmail,
		VerificationWindow:   cfg.Auth.VerificationWindow,
		Logger:               logger,
	})
	profileService := services.NewProfileService(deps.Users, logger)
	uploadService := services.NewUploadService(deps.Users, deps.Objects, logger)

	authHandler := handlers.NewAuthHandler(otpService, accountService, profileService, tokens, logger, cfg.IsDevelopment())
	uploadHandler := handlers.NewUploadHandler(uploadService, logger)
	filesHandler := handlers.NewFilesHandler(deps.Objects, logger)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		logging.RequestLogger(logger),
		middleware.Recoverer,
		cors.Handler(cors.Options{
			AllowedOrigins:   cfg.CORS.AllowedOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			ExposedHeaders:   []string{"Retry-After"},
			AllowCredentials: false,
			MaxAge:           300,
		}),
		middleware.Timeout(60*time.Second),
	)
	router.Get("/healthz", handlers.Healthz)
	router.Route("/api/auth", func(r chi.Router) {
		handlers.AuthRouter(r, authHandler)
	})
	router.Route("/api/upload", func(r chi.Router) {
		handlers.UploadRouter(r, uploadHandler, handlers.RequireAuth(tokens))
	})
	router.Route("/uploads", func(r chi.Router) {
		handlers.FilesRouter(r, filesHandler)
	})
	return router
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("http server listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and closes owned connections.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	s.close()
	return err
}

func (s *Server) close() {
	if s.broker != nil {
		if err := s.broker.Close(); err != nil {
			s.logger.Warn("failed to close mq", zap.Error(err))
		}
	}
	if s.redis != nil {
		_ = s.redis.Close()
	}
	if s.db != nil {
		_ = s.db.Close()
	}
}
