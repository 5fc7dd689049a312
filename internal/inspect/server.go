// Package inspect serves a read-mostly HTTP view of the unit registry.
package inspect

import (
	"errors"
	"net/http"
	"time"

	"github.com/danmuck/lazymod/internal/observability"
	"github.com/danmuck/lazymod/pkg/lazy"
	"github.com/danmuck/lazymod/pkg/registry"
	"github.com/danmuck/lazymod/pkg/unit"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const Version = "0.1.0"

var ErrUnknownUnit = errors.New("unit not registered")

type Server struct {
	ID       string    `json:"id"`
	Addr     string    `json:"addr"`
	Appeared time.Time `json:"appeared"`

	importer *lazy.Importer
	router   *gin.Engine
}

// UnitView is the JSON shape of one registry entry.
type UnitView struct {
	registry.Entry
	Attrs []string `json:"attrs,omitempty"`
	Error string   `json:"error,omitempty"`
}

func New(id, addr string, corsOrigins []string, importer *lazy.Importer) *Server {
	observability.RegisterMetrics()
	if importer == nil {
		importer = lazy.Default()
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(log.Logger))
	r.Use(observability.RequestMetricsMiddleware(id))
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(corsOrigins),
		AllowMethods: []string{"GET", "POST"},
		AllowHeaders: []string{"Origin", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	return &Server{
		ID:       id,
		Addr:     addr,
		Appeared: time.Now(),
		importer: importer,
		router:   r,
	}
}

func (s *Server) HTTPRouter() *gin.Engine {
	return s.router
}

func (s *Server) RegisterRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.Appeared).String(),
			"service": s.ID,
			"version": Version,
		})
	})

	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.router.GET("/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"ready":   true,
			"units":   s.registry().Len(),
			"service": s.ID,
			"version": Version,
		})
	})

	s.router.GET("/units", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"units": s.registry().Snapshot()})
	})

	s.router.GET("/units/:name", func(c *gin.Context) {
		view, err := s.Describe(c.Param("name"))
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, view)
	})

	s.router.POST("/units/:name/load", func(c *gin.Context) {
		view, err := s.Load(c.Param("name"))
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error(), "unit": view})
			return
		}
		c.JSON(http.StatusOK, view)
	})
}

// Describe reports a registry entry without loading it.
func (s *Server) Describe(name string) (UnitView, error) {
	if err := unit.Validate(name); err != nil {
		return UnitView{}, err
	}
	u, ok := s.registry().Lookup(name)
	if !ok {
		return UnitView{}, ErrUnknownUnit
	}
	return view(name, u), nil
}

// Load forces a registered unit.
func (s *Server) Load(name string) (UnitView, error) {
	if err := unit.Validate(name); err != nil {
		return UnitView{}, err
	}
	u, ok := s.registry().Lookup(name)
	if !ok {
		return UnitView{}, ErrUnknownUnit
	}
	if _, err := s.importer.Import(name); err != nil {
		log.Warn().Str("server", s.ID).Str("unit", name).Err(err).Msg("inspect: forced load failed")
		return view(name, u), err
	}
	log.Info().Str("server", s.ID).Str("unit", name).Msg("inspect: unit loaded")
	return view(name, u), nil
}

func (s *Server) Serve() error {
	s.RegisterRoutes()
	log.Info().Str("server", s.ID).Str("addr", s.Addr).Msg("inspect: serving")
	return s.router.Run(s.Addr)
}

func (s *Server) registry() *registry.Registry {
	return s.importer.Registry()
}

func view(name string, u unit.Unit) UnitView {
	out := UnitView{Entry: registry.Entry{Name: name, State: unit.Loaded.String(), Kind: registry.KindUnit}}
	if cell, ok := u.(registry.Cell); ok {
		out.Kind = registry.KindPlaceholder
		out.State = cell.State().String()
		if ph, ok := u.(*lazy.Placeholder); ok && ph.Err() != nil {
			out.Error = ph.Err().Error()
		}
	}
	if !registry.IsLoaded(u) {
		return out
	}
	if lister, ok := u.(unit.Lister); ok {
		if attrs, err := lister.Attrs(); err == nil {
			out.Attrs = attrs
		}
	}
	return out
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, unit.ErrMalformedName):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnknownUnit):
		return http.StatusNotFound
	default:
		return http.StatusBadGateway
	}
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}
