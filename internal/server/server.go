package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/nao1215/tasknotify/internal/config"
	"github.com/nao1215/tasknotify/internal/notification"
	"github.com/nao1215/tasknotify/internal/store"
	"github.com/nao1215/tasknotify/internal/task"
	"github.com/nao1215/tasknotify/pkg/middleware"
)

const (
	// serviceName はヘルスチェックで返すサービス名。
	serviceName = "tasknotify"
	// devUserEmail は開発用ユーザーのメールアドレス。
	devUserEmail = "dev@localhost"
	// shutdownTimeout はグレースフルシャットダウンの待ち時間。
	shutdownTimeout = 10 * time.Second
)

// Server はtasknotifyのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// cfg はアプリケーション設定。
	cfg *config.Config
	// store はデータベースへのアクセス層。
	store *store.Store
	// svc は通知サービス。
	svc *notification.Service
	// limiter は送信APIのレート制限。無効な場合はnil。
	limiter *middleware.LimiterStore
	// registry は/metricsで公開するメトリクスのレジストリ。
	registry *prometheus.Registry
	// logger はサーバーのロガー。
	logger zerolog.Logger
}

// New は新しいServerを生成する。
// senderにnilを渡すとプッシュ通知が無効になり、送信APIは503を返す。
func New(cfg *config.Config, st *store.Store, sender notification.Sender, registry *prometheus.Registry, logger zerolog.Logger) *Server {
	logger = logger.With().Str("component", "server").Logger()

	var limiter *middleware.LimiterStore
	if cfg.RateLimit.RPS > 0 {
		limiter = middleware.NewLimiterStore(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
	}
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	router := gin.New()
	router.Use(middleware.RequestLogger(logger))
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.CORS(cfg.Server.AllowedOrigins))

	s := &Server{
		router:   router,
		cfg:      cfg,
		store:    st,
		svc:      notification.NewService(st, sender, logger),
		limiter:  limiter,
		registry: registry,
		logger:   logger,
	}
	s.setupRoutes()
	return s
}

// Handler はルーティング済みのhttp.Handlerを返す。
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run はHTTPサーバーを起動し、ctxがキャンセルされるとグレースフルシャットダウンする。
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Server.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	if s.limiter != nil {
		s.limiter.StartJanitor(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		s.logger.Info().Str("addr", srv.Addr).Bool("push_enabled", s.svc.Available()).Msg("HTTPサーバーを起動します")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTPサーバーの起動に失敗: %w", err)
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info().Msg("HTTPサーバーを停止します")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTPサーバーの停止に失敗: %w", err)
	}
	return <-errCh
}

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth())
	s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry})))

	if s.cfg.Auth.DevTokens {
		// 開発用トークン発行
		s.router.POST("/auth/dev-token", s.handleDevToken())
	}

	// 認証必須のAPIエンドポイント
	api := s.router.Group("/api/v1")
	api.Use(middleware.JWTAuth(s.cfg.Auth.JWTSecret))
	{
		api.GET("/me", s.handleGetCurrentUser())
		notification.NewHandler(s.svc).Register(api, middleware.RateLimit(s.limiter))
		task.NewHandler(s.store, task.NewNotifier(s.svc, s.logger)).Register(api)
	}
}

// handleHealth はデータベースへの疎通を確認するハンドラを返す。
func (s *Server) handleHealth() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if err := s.store.Ping(ctx); err != nil {
			s.logger.Error().Err(err).Msg("ヘルスチェックでデータベースに接続できませんでした")
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "service": serviceName})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":       "ok",
			"service":      serviceName,
			"push_enabled": s.svc.Available(),
		})
	}
}

// devTokenRequest は開発用トークン発行リクエスト。
type devTokenRequest struct {
	// UserID を指定するとそのユーザーとしてトークンを発行する。
	UserID string `json:"user_id"`
}

// handleDevToken は開発用JWTトークンを発行するハンドラを返す。
// 本番環境では auth.dev_tokens を無効にすること。
func (s *Server) handleDevToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req devTokenRequest
		if c.Request.ContentLength > 0 && !notification.BindJSON(c, &req) {
			return
		}
		ctx := c.Request.Context()

		var (
			user *store.User
			err  error
		)
		if req.UserID != "" {
			user, err = s.store.GetUser(ctx, req.UserID)
		} else {
			user, err = s.devUser(ctx)
		}
		if err != nil {
			notification.RespondError(c, err)
			return
		}

		token, err := middleware.GenerateJWT(s.cfg.Auth.JWTSecret, user.ID, user.Email)
		if err != nil {
			s.logger.Error().Err(err).Msg("JWTの生成に失敗しました")
			notification.Fail(c, http.StatusInternalServerError, "トークン生成に失敗しました", nil)
			return
		}
		notification.OK(c, http.StatusOK, "開発用トークンを発行しました", gin.H{
			"token":   token,
			"user_id": user.ID,
		})
	}
}

// devUser は開発用ユーザーを返す。存在しなければ作成する。
func (s *Server) devUser(ctx context.Context) (*store.User, error) {
	u, err := s.store.GetUserByEmail(ctx, devUserEmail)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	u = &store.User{Name: "開発ユーザー", Email: devUserEmail}
	if err := s.store.CreateUser(ctx, u); err != nil {
		return nil, err
	}
	s.logger.Info().Str("user_id", u.ID).Msg("開発用ユーザーを作成しました")
	return u, nil
}

// handleGetCurrentUser は認証済みユーザーの情報を返すハンドラを返す。
func (s *Server) handleGetCurrentUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		u, err := s.store.GetUser(c.Request.Context(), middleware.GetUserID(c))
		if err != nil {
			notification.RespondError(c, err)
			return
		}
		notification.OK(c, http.StatusOK, "ユーザー情報を取得しました", gin.H{
			"user":              u,
			"has_notifications": u.HasDeviceToken(),
		})
	}
}
