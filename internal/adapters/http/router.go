package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/jingle/internal/adapters/signal"
	"github.com/dkeye/jingle/internal/app/orch"
	"github.com/dkeye/jingle/internal/config"
	"github.com/dkeye/jingle/internal/domain"
)

func genClientToken() string {
	return uuid.NewString()
}

// ClientTokenMiddleware gives every browser a stable client id cookie.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = genClientToken()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, o *orch.Orchestrator) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("JingleSessions", store))
	r.Use(ClientTokenMiddleware())

	r.Static("/static", cfg.StaticPath)
	r.GET("/", func(c *gin.Context) {
		c.File(cfg.StaticPath + "/index.html")
	})

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	var limiter *signal.InitiateRateLimiter
	if cfg.InitiateRateLimit > 0 {
		limiter = signal.NewInitiateRateLimiter(cfg.InitiateRateLimit, cfg.InitiateRateInterval)
	}
	ctrl := signal.NewSignalWSController(o, limiter)
	ctrl.ReadLimit = cfg.ReadLimit
	ctrl.PingPeriod = cfg.PingPeriod

	api := r.Group("/api")

	api.GET("/ws/signal", func(c *gin.Context) {
		log.Info().Str("module", "adapters.http").Str("client", c.GetString("client_token")).Msg("ws signal endpoint hit")
		ctrl.HandleSignal(ctx, c)
	})

	h := sessionHandlers{orch: o}
	api.GET("/sessions", h.list)
	api.POST("/sessions/:sid/accept", h.accept)
	api.DELETE("/sessions/:sid", h.hangup)

	return r
}

type sessionHandlers struct {
	orch *orch.Orchestrator
}

// The REST surface only reaches the sessions of the caller's client token.
func clientOf(c *gin.Context) domain.ClientID {
	return domain.ClientID(c.GetString("client_token"))
}

func (h sessionHandlers) list(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"sessions": h.orch.Registry.SnapshotOf(clientOf(c))})
}

func (h sessionHandlers) accept(c *gin.Context) {
	var cons *domain.Constraints
	if c.Request.ContentLength > 0 {
		cons = &domain.Constraints{}
		if err := c.ShouldBindJSON(cons); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "bad_payload"})
			return
		}
	}
	sid := domain.SessionID(c.Param("sid"))
	if err := h.orch.AcceptFrom(c.Request.Context(), clientOf(c), sid, cons); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h sessionHandlers) hangup(c *gin.Context) {
	reason := domain.Reason(c.DefaultQuery("reason", string(domain.ReasonSuccess)))
	sid := domain.SessionID(c.Param("sid"))
	if err := h.orch.HangupFrom(c.Request.Context(), clientOf(c), sid, reason); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func writeError(c *gin.Context, err error) {
	status := http.StatusConflict
	if errors.Is(err, orch.ErrUnknownSession) {
		status = http.StatusNotFound
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
