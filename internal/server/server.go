package server

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mohammad-safakhou/studyflow/config"
	"github.com/mohammad-safakhou/studyflow/internal/store"
	"github.com/mohammad-safakhou/studyflow/internal/study"
	"github.com/mohammad-safakhou/studyflow/internal/telemetry"
	"github.com/mohammad-safakhou/studyflow/internal/youcom"
)

// Run wires the full service and blocks serving HTTP
func Run(cfg *config.Config) error {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	// Unified HTTP error handler with structured JSON and logging
	baseLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		baseLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type"},
		AllowCredentials: true,
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(200, "ok") })

	var tele *telemetry.Telemetry
	if cfg.Telemetry.Enabled {
		tele = telemetry.New(prometheus.DefaultRegisterer)
		e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	}

	ctx := context.Background()
	st, err := store.New(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("initialising store: %w", err)
	}

	gw := study.NewGateway(youcom.NewClient(cfg.YouCom))
	generator := study.NewGenerator(gw, cfg.YouCom.DefaultAgent)
	fetcher := study.NewFetcher(gw, cfg.Resources)
	orch := study.NewOrchestrator(generator, fetcher, tele)
	tutor := study.NewTutor(gw, cfg.YouCom.DefaultAgent, tele)

	h := NewSessionsHandler(st, orch, tutor, gw, cfg.YouCom.DefaultAgent, tele)
	h.Register(e.Group("/api/sessions"))

	baseLogger.Printf("listening on %s", cfg.Server.Address)
	return e.Start(cfg.Server.Address)
}
