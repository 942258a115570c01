// Package status exposes a read-only HTTP view of one node: health,
// the reassembly slot table, and metrics.
package status

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/danmuck/camrelay/internal/node"
	"github.com/danmuck/camrelay/internal/observability"
	"github.com/danmuck/camrelay/internal/transfer"
)

// FlowLister supplies the slot table snapshot; a nil lister serves an
// empty table (producer nodes have no reassembler).
type FlowLister interface {
	Snapshot() []transfer.SlotStatus
}

// Server is the per-node status endpoint.
type Server struct {
	id      string
	kind    string
	started time.Time
	lister  FlowLister
	router  *gin.Engine
}

var _ node.Node = (*Server)(nil)

func NewServer(id, kind string, lister FlowLister, corsOrigins []string, logger zerolog.Logger) *Server {
	observability.RegisterMetrics()
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(logger))
	r.Use(observability.RequestMetricsMiddleware(id))
	if len(corsOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins: corsOrigins,
			AllowMethods: []string{"GET"},
			AllowHeaders: []string{"Origin", "Content-Type"},
			MaxAge:       12 * time.Hour,
		}))
	}
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	s := &Server{
		id:      id,
		kind:    kind,
		started: time.Now(),
		lister:  lister,
		router:  r,
	}
	s.registerRoutes()
	return s
}

func (s *Server) NodeID() string {
	return s.id
}

func (s *Server) Kind() string {
	return s.kind
}

func (s *Server) HTTPRouter() *gin.Engine {
	return s.router
}

func (s *Server) registerRoutes() {
	s.router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"node":   s.id,
			"kind":   s.kind,
			"uptime": time.Since(s.started).String(),
		})
	})

	s.router.GET("/flows", func(c *gin.Context) {
		slots := []transfer.SlotStatus{}
		if s.lister != nil {
			slots = s.lister.Snapshot()
		}
		c.JSON(http.StatusOK, gin.H{
			"node":  s.id,
			"slots": slots,
		})
	})

	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// Run serves until the listener fails; callers run it in its own
// goroutine.
func (s *Server) Run(addr string) error {
	return s.router.Run(addr)
}
