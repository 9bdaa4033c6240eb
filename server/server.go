// Package server wires the HTTP surface of the repair classification service.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hrygo/repairsense/internal/profile"
	apierrors "github.com/hrygo/repairsense/server/internal/errors"
	ratelimit "github.com/hrygo/repairsense/server/middleware"
	apiv1 "github.com/hrygo/repairsense/server/router/api/v1"
	"github.com/hrygo/repairsense/store/cache"
)

const limiterIdleTimeout = 10 * time.Minute

// Server is the HTTP server of the repair classification service.
type Server struct {
	Profile *profile.Profile

	echoServer  *echo.Echo
	rateLimiter *ratelimit.RateLimiter
	register    cache.Register
	logger      *slog.Logger
}

// NewServer builds the echo instance and registers every route.
// register may be nil when caching is disabled; it is closed on Shutdown.
func NewServer(p *profile.Profile, repairService apiv1.RepairClassifier, register cache.Register, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		Profile:     p,
		rateLimiter: ratelimit.NewRateLimiter(p.Server.RateLimit, p.Server.RateBurst),
		register:    register,
		logger:      logger.With("component", "server"),
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = apiv1.NewRequestValidator()
	e.HTTPErrorHandler = s.handleError
	e.IPExtractor = s.ipExtractor()
	e.Server.ReadHeaderTimeout = p.Server.ReadHeaderTimeout
	e.Server.ReadTimeout = p.Server.ReadTimeout
	e.Server.WriteTimeout = p.Server.WriteTimeout
	e.Server.IdleTimeout = p.Server.IdleTimeout

	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			level := slog.LevelInfo
			if v.Status >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			s.logger.LogAttrs(context.Background(), level, "request",
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.String("request_id", v.RequestID),
				slog.Int64("latency_ms", v.Latency.Milliseconds()),
			)
			return nil
		},
	}))

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]any{
			"status":  "ok",
			"version": p.Version,
			"cache":   register != nil,
		})
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	apiV1Service := apiv1.NewAPIV1Service(p, repairService, logger)
	apiV1Service.RegisterRoutes(e.Group(""), ratelimit.RateLimit(s.rateLimiter))

	s.echoServer = e
	return s
}

// Handler returns the HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echoServer
}

// Start serves until ctx is cancelled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	addr := s.Profile.Server.Addr()
	s.logger.Info("repair classification server listening", "addr", addr, "mode", s.Profile.Server.Mode)

	go s.cleanupLimiters(ctx)

	if err := s.echoServer.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "failed to start server")
	}
	return nil
}

// Shutdown stops accepting requests, waits for in-flight ones and closes the cache.
func (s *Server) Shutdown(ctx context.Context) {
	s.logger.Info("server shutting down")
	if err := s.echoServer.Shutdown(ctx); err != nil {
		s.logger.Error("failed to shutdown server", "error", err)
	}
	if s.register != nil {
		if err := s.register.Close(); err != nil {
			s.logger.Error("failed to close cache", "error", err)
		}
	}
	s.logger.Info("server stopped")
}

// ipExtractor resolves the client IP used for rate limiting. Forwarding
// headers are honoured only when the peer is a configured trusted proxy.
func (s *Server) ipExtractor() echo.IPExtractor {
	nets, err := s.Profile.Server.TrustedProxyNets()
	if err != nil {
		s.logger.Error("ignoring trusted proxies", "error", err)
		return echo.ExtractIPDirect()
	}
	if len(nets) == 0 {
		return echo.ExtractIPDirect()
	}

	opts := []echo.TrustOption{
		echo.TrustLoopback(false),
		echo.TrustLinkLocal(false),
		echo.TrustPrivateNet(false),
	}
	for _, n := range nets {
		opts = append(opts, echo.TrustIPRange(n))
	}
	return echo.ExtractIPFromXFFHeader(opts...)
}

func (s *Server) cleanupLimiters(ctx context.Context) {
	ticker := time.NewTicker(limiterIdleTimeout)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.rateLimiter.Cleanup(limiterIdleTimeout); n > 0 {
				s.logger.Debug("removed idle rate limiters", "count", n)
			}
		}
	}
}

// handleError writes every error as {"code", "message"}; causes never reach the client.
func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var apiErr *apierrors.APIError
	var httpErr *echo.HTTPError
	switch {
	case errors.As(err, &apiErr):
	case errors.As(err, &httpErr):
		apiErr = fromHTTPError(httpErr)
	default:
		apiErr = apierrors.Internal(err)
	}

	status := apiErr.HTTPStatus()
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "path", c.Path(), "error", err)
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(status)
	} else {
		err = c.JSON(status, apiErr.Response())
	}
	if err != nil {
		s.logger.Error("failed to write error response", "error", err)
	}
}

// fromHTTPError maps echo's own errors (routing, binding) onto API errors.
func fromHTTPError(he *echo.HTTPError) *apierrors.APIError {
	var code apierrors.ErrorCode
	switch {
	case he.Code == http.StatusNotFound:
		code = apierrors.ErrCodeNotFound
	case he.Code == http.StatusMethodNotAllowed:
		code = apierrors.ErrCodeMethodNotAllowed
	case he.Code == http.StatusTooManyRequests:
		code = apierrors.ErrCodeRateLimitExceeded
	case he.Code >= http.StatusBadRequest && he.Code < http.StatusInternalServerError:
		code = apierrors.ErrCodeInvalidArgument
	default:
		return apierrors.Internal(he)
	}
	return &apierrors.APIError{Code: code, Message: http.StatusText(he.Code), Cause: he}
}
