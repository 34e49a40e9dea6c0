package server

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	apperrors "github.com/kbukum/tilekit/errors"
	"github.com/kbukum/tilekit/observability"
	"github.com/kbukum/tilekit/resilience"
	"github.com/kbukum/tilekit/sse"
	"github.com/kbukum/tilekit/task"
	"github.com/kbukum/tilekit/util"
	"github.com/kbukum/tilekit/version"
)

func (s *Server) registerRoutes() {
	s.engine.GET("/healthz", s.handleHealth)
	s.engine.GET("/version", s.handleVersion)

	s.engine.GET("/tiles/:zoom/:row/:col", s.handleTile)

	s.engine.GET("/runs", s.handleListRuns)
	s.engine.POST("/runs", s.handleStartRun)
	s.engine.GET("/runs/:id", s.handleGetRun)
	s.engine.DELETE("/runs/:id", s.handleCancelRun)

	s.engine.GET("/progress", s.handleProgress)
}

// TileResponse is the payload of one computed tile.
type TileResponse struct {
	ID      string    `json:"id"`
	Zoom    int       `json:"zoom"`
	Row     int       `json:"row"`
	Col     int       `json:"col"`
	Width   int       `json:"width"`
	Height  int       `json:"height"`
	Nodata  float64   `json:"nodata"`
	Empty   bool      `json:"empty"`
	Written bool      `json:"written"`
	Data    []float64 `json:"data,omitempty"`
}

func (s *Server) handleTile(c *gin.Context) {
	if s.limiter != nil && !s.limiter.Allow() {
		RespondWithError(c, apperrors.RateLimited())
		return
	}

	zoom, err := pathInt(c, "zoom")
	if err != nil {
		RespondWithError(c, err)
		return
	}
	row, err := pathInt(c, "row")
	if err != nil {
		RespondWithError(c, err)
		return
	}
	col, err := pathInt(c, "col")
	if err != nil {
		RespondWithError(c, err)
		return
	}

	oc := observability.NewOperationContext(s.eng.Config().Name, "tile",
		"", fmt.Sprintf("%d-%d-%d", zoom, row, col), s.metrics)
	ctx, span := oc.StartSpanForOperation(c.Request.Context(), observability.SpanTileCompute)

	info, err := resilience.ExecuteWithResult(s.bulkhead, ctx,
		func() (task.Info, error) {
			return s.eng.ExecuteTile(ctx, zoom, row, col)
		})
	if err != nil {
		oc.EndOperation(ctx, span, "error", err)
		if stderrors.Is(err, resilience.ErrBulkheadFull) || stderrors.Is(err, resilience.ErrBulkheadTimeout) {
			RespondWithError(c, apperrors.Overloaded())
			return
		}
		RespondWithError(c, err)
		return
	}
	oc.EndOperation(ctx, span, "ok", nil)

	grid := info.Output
	resp := TileResponse{
		ID:      info.Task,
		Zoom:    info.Tile.Zoom,
		Row:     info.Tile.Row,
		Col:     info.Tile.Col,
		Width:   grid.Width,
		Height:  grid.Height,
		Nodata:  grid.Nodata,
		Empty:   grid.IsEmpty(),
		Written: info.Written,
	}
	if !resp.Empty {
		resp.Data = grid.Data
	}
	RespondOK(c, resp)
}

func (s *Server) handleStartRun(c *gin.Context) {
	r, err := s.runs.start(s.eng, s.hub)
	if err != nil {
		RespondWithError(c, err)
		return
	}
	s.log.Info("Run started over HTTP", map[string]interface{}{
		"run_id": r.id,
		"total":  r.stream.Total(),
	})
	RespondAccepted(c, r.status())
}

func (s *Server) handleListRuns(c *gin.Context) {
	RespondOK(c, s.runs.list())
}

func (s *Server) handleGetRun(c *gin.Context) {
	id, err := runID(c)
	if err != nil {
		RespondWithError(c, err)
		return
	}
	r, ok := s.runs.get(id)
	if !ok {
		RespondWithError(c, apperrors.Validation("Unknown run.").WithDetail("run_id", id))
		return
	}
	RespondOK(c, r.status())
}

func (s *Server) handleCancelRun(c *gin.Context) {
	id, err := runID(c)
	if err != nil {
		RespondWithError(c, err)
		return
	}
	r, ok := s.runs.cancel(id)
	if !ok {
		RespondWithError(c, apperrors.Validation("Unknown run.").WithDetail("run_id", id))
		return
	}
	s.log.Info("Run cancelled over HTTP", map[string]interface{}{
		"run_id": r.id,
	})
	RespondAccepted(c, r.status())
}

func (s *Server) handleProgress(c *gin.Context) {
	run := util.SanitizeString(c.Query("run"))
	if run != "" {
		if _, err := util.ValidateUUID("run", run); err != nil {
			RespondWithError(c, apperrors.Validation(err.Error()))
			return
		}
	}
	sse.ServeProgress(s.hub, c.Writer, c.Request, uuid.NewString(), run)
}

func (s *Server) handleHealth(c *gin.Context) {
	health := observability.NewServiceHealth(s.eng.Config().Name, version.GetVersionInfo().Version)
	health.AddComponent(observability.Health{
		Name:   s.Name(),
		Status: observability.HealthStatusUp,
	})
	health.AddComponent(observability.Health{
		Name:   "progress-hub",
		Status: observability.HealthStatusUp,
		Details: map[string]string{
			"clients": strconv.Itoa(s.hub.ClientCount()),
		},
	})

	status := http.StatusOK
	if health.Status == observability.HealthStatusDown {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, health)
}

func (s *Server) handleVersion(c *gin.Context) {
	c.JSON(http.StatusOK, version.GetVersionInfo())
}

func pathInt(c *gin.Context, name string) (int, error) {
	v, err := strconv.Atoi(c.Param(name))
	if err != nil {
		return 0, apperrors.Validation("Path parameter must be an integer.").
			WithDetail("param", name)
	}
	return v, nil
}

func runID(c *gin.Context) (string, error) {
	id := util.SanitizeString(c.Param("id"))
	if _, err := util.ValidateUUID("id", id); err != nil {
		return "", apperrors.Validation(err.Error())
	}
	return id, nil
}
