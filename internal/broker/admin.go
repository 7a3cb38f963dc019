package broker

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/danmuck/chathack/internal/observability"
)

// AdminRouter builds the admin HTTP API.
func (b *Broker) AdminRouter() *gin.Engine {
	observability.RegisterMetrics()
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(log.Logger))
	r.Use(observability.RequestMetricsMiddleware("broker"))
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(b.cfg.AdminOrigins),
		AllowMethods: []string{"GET", "POST"},
		AllowHeaders: []string{"Origin", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"uptime":    b.Uptime().String(),
			"accepting": b.Accepting(),
			"directory": b.DirectoryConnected(),
		})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/logins", func(c *gin.Context) {
		logins := b.Logins()
		c.JSON(http.StatusOK, gin.H{
			"count":  len(logins),
			"logins": logins,
		})
	})

	r.POST("/onboarding/stop", func(c *gin.Context) {
		b.StopOnboarding()
		c.JSON(http.StatusOK, gin.H{"status": "ok", "accepting": false})
	})
	return r
}

// serveAdmin runs the admin API until ctx is done.
func (b *Broker) serveAdmin(ctx context.Context) error {
	srv := &http.Server{
		Addr:              b.cfg.AdminListenAddr,
		Handler:           b.AdminRouter(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	log.Info().Str("addr", srv.Addr).Msg("broker admin listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}
