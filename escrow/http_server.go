package escrow

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/GurakG/Enclave-PSSC/core/auth"
	"github.com/GurakG/Enclave-PSSC/model"
)

type HttpJsonResp[T any] struct {
	Data T `json:"data"`
}

// startHttpServer exposes the ops surface: health, registered oracles,
// metrics, and a jwt-guarded admin view of the pending table. The protocol
// itself never goes over HTTP.
func (s *Service) startHttpServer(ctx context.Context) {
	// If http_bind_address is not set, skip HTTP server startup entirely
	if s.config == nil || s.config.HttpBindAddress == "" {
		s.logger.Info("HTTP server disabled: no http_bind_address configured")
		return
	}

	e := echo.New()
	e.HideBanner = true

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	e.GET("/up", func(c echo.Context) error {
		if s.status == runningStatus {
			return c.String(http.StatusOK, "up")
		}

		return c.String(http.StatusServiceUnavailable, "pending...")
	})

	e.GET("/oracles", func(c echo.Context) error {
		return c.JSON(http.StatusOK, &HttpJsonResp[[]*model.OracleEntry]{
			Data: s.registry.ListAll(),
		})
	})

	e.GET("/metrics", echo.WrapHandler(
		promhttp.HandlerFor(s.metricsReg, promhttp.HandlerOpts{}),
	))

	admin := e.Group("/admin", s.adminAuth)
	admin.GET("/pending", func(c echo.Context) error {
		return c.JSON(http.StatusOK, &HttpJsonResp[[]*PendingView]{
			Data: s.orchestrator.PendingSnapshot(),
		})
	})

	addr := s.config.HttpBindAddress
	s.logger.Info("HTTP server listening", "address", addr)
	goSafe(func() {
		if err := e.Start(addr); err != nil {
			s.logger.Warn("HTTP server failed to start; continuing without HTTP endpoint", "address", addr, "error", err)
		}
	})
}

func (s *Service) adminAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if len(s.config.JwtSecret) == 0 {
			return c.String(http.StatusUnauthorized, "admin surface disabled: no jwt secret configured")
		}

		header := c.Request().Header.Get(echo.HeaderAuthorization)
		token := strings.TrimPrefix(header, "Bearer ")
		if token == "" || token == header {
			return c.String(http.StatusUnauthorized, "missing bearer token")
		}

		ok, err := auth.VerifyAdminKey(s.config.JwtSecret, token)
		if err != nil || !ok {
			return c.String(http.StatusUnauthorized, "invalid token")
		}

		return next(c)
	}
}
