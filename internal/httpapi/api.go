// Package httpapi exposes the coordinator over HTTP: health, monitoring,
// run control and similar-item lookups against the latest report.
package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	defaultLimit = 10
	maxLimit     = 500
)

// API holds the handler dependencies.
type API struct {
	runner     *Runner
	workers    Workers
	minWorkers int
}

// New builds the API. workers may be nil when no cluster is running.
func New(runner *Runner, workers Workers, minWorkers int) *API {
	return &API{runner: runner, workers: workers, minWorkers: minWorkers}
}

// Router returns a gin engine with every route registered.
func (a *API) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	a.RegisterRoutes(r.Group("/"))
	return r
}

func (a *API) RegisterRoutes(g *gin.RouterGroup) {
	g.GET("/health", a.health)
	g.GET("/monitoring", a.monitoring)
	g.POST("/runs", a.startRun)
	g.GET("/runs/:id", a.getRun)
	// names may contain slashes, e.g. "Face/Off (1997)"
	g.GET("/similar/*name", a.similar)
}

func (a *API) startRun(c *gin.Context) {
	id, err := a.runner.Start()
	if errors.Is(err, ErrRunInProgress) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"id": id})
}

func (a *API) getRun(c *gin.Context) {
	run, ok := a.runner.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}
	c.JSON(http.StatusOK, run)
}

func (a *API) similar(c *gin.Context) {
	limit := defaultLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, maxLimit)
	}

	rep := a.runner.Latest()
	if rep == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no report available yet"})
		return
	}

	name := strings.TrimPrefix(c.Param("name"), "/")
	nbrs, ok := rep.Neighbors(name)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown item"})
		return
	}
	if len(nbrs) > limit {
		nbrs = nbrs[:limit]
	}
	c.JSON(http.StatusOK, gin.H{"anchor": name, "neighbors": nbrs})
}
