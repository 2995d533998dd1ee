package http

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/aescanero/cutdeck/internal/application/graphs"
	"github.com/aescanero/cutdeck/internal/application/orchestrator"
	"github.com/aescanero/cutdeck/pkg/domain"
	"github.com/aescanero/cutdeck/pkg/ports"
	"github.com/aescanero/cutdeck/pkg/pregel"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// RunSubmitRequest represents an asynchronous run request
type RunSubmitRequest struct {
	Graph  string                 `json:"graph" binding:"required"`
	Params map[string]interface{} `json:"params"`
}

// RunGraphRequest represents a synchronous run request
type RunGraphRequest struct {
	Params map[string]interface{} `json:"params"`
}

// RunSubmitResponse represents a run submission response
type RunSubmitResponse struct {
	RunID       string `json:"run_id"`
	Status      string `json:"status"`
	SubmittedAt string `json:"submitted_at"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail represents error details
type ErrorDetail struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// handleRoot describes the service
func (s *Server) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":    "Cutdeck API",
		"version": s.version,
		"docs":    "/docs",
	})
}

// handleHealth handles health check requests
func (s *Server) handleHealth(c *gin.Context) {
	status := "healthy"
	code := http.StatusOK
	checks := gin.H{
		"orchestrator": "ok",
	}

	if s.workers != nil {
		if s.workers.IsHealthy() {
			checks["workers"] = "ok"
		} else {
			checks["workers"] = "unhealthy"
			status = "degraded"
			code = http.StatusServiceUnavailable
		}
	}

	c.JSON(code, gin.H{
		"status":    status,
		"message":   "Cutdeck backend is running with DaggyD",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"checks":    checks,
	})
}

// handleEngineTest runs the counter graph and reports its final count
func (s *Server) handleEngineTest(c *gin.Context) {
	state, err := s.orchestrator.Run(c.Request.Context(), "counter", nil)
	if err != nil {
		s.logger.Error("engine self test failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: ErrorDetail{
				Code:    "ENGINE_TEST_FAILED",
				Message: err.Error(),
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "success",
		"message": "DaggyD test passed!",
		"result": gin.H{
			"final_count": state.Values["count"],
		},
	})
}

// handleListGraphs lists the graphs available to run
func (s *Server) handleListGraphs(c *gin.Context) {
	list := s.orchestrator.Graphs()
	c.JSON(http.StatusOK, gin.H{
		"graphs": list,
		"total":  len(list),
	})
}

// handleRunGraph runs a graph and waits for its result
func (s *Server) handleRunGraph(c *gin.Context) {
	var req RunGraphRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		s.badRequest(c, err)
		return
	}

	state, err := s.orchestrator.Run(c.Request.Context(), c.Param("name"), req.Params)
	if err != nil {
		if state != nil {
			// The run started and failed
			c.JSON(http.StatusInternalServerError, ErrorResponse{
				Error: ErrorDetail{
					Code:    "RUN_FAILED",
					Message: err.Error(),
					Details: state,
				},
			})
			return
		}
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, state)
}

// handleSubmitRun handles asynchronous run submission
func (s *Server) handleSubmitRun(c *gin.Context) {
	var req RunSubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}

	runID, err := s.orchestrator.SubmitRun(c.Request.Context(), req.Graph, req.Params)
	if err != nil {
		s.logger.Error("failed to submit run", zap.Error(err))
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, RunSubmitResponse{
		RunID:       runID,
		Status:      string(domain.ExecutionStatusSubmitted),
		SubmittedAt: time.Now().UTC().Format(time.RFC3339),
	})
}

// handleListRuns lists runs, newest first
func (s *Server) handleListRuns(c *gin.Context) {
	limit, err := queryInt(c, "limit", defaultListLimit)
	if err != nil || limit < 1 {
		s.badRequest(c, errors.New("limit must be a positive integer"))
		return
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	offset, err := queryInt(c, "offset", 0)
	if err != nil || offset < 0 {
		s.badRequest(c, errors.New("offset must be a non-negative integer"))
		return
	}

	runs, err := s.orchestrator.ListRuns(c.Request.Context())
	if err != nil {
		s.logger.Error("failed to list runs", zap.Error(err))
		s.writeError(c, err)
		return
	}

	// Filters
	status := c.Query("status")
	graph := c.Query("graph")
	filtered := make([]*domain.RunState, 0, len(runs))
	for _, r := range runs {
		if status != "" && string(r.Status) != status {
			continue
		}
		if graph != "" && r.Graph != graph {
			continue
		}
		filtered = append(filtered, r)
	}

	total := len(filtered)
	page := []*domain.RunState{}
	if offset < total {
		end := offset + limit
		if end > total {
			end = total
		}
		page = filtered[offset:end]
	}

	c.JSON(http.StatusOK, gin.H{
		"runs":   page,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

// handleGetRun returns the full run record
func (s *Server) handleGetRun(c *gin.Context) {
	state, err := s.orchestrator.GetStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, state)
}

// handleGetResult returns final values once the run is terminal
func (s *Server) handleGetResult(c *gin.Context) {
	state, err := s.orchestrator.GetStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}

	if !state.Status.IsTerminal() {
		c.JSON(http.StatusConflict, ErrorResponse{
			Error: ErrorDetail{
				Code:    "NOT_COMPLETED",
				Message: "Run not yet completed",
				Details: gin.H{"status": state.Status},
			},
		})
		return
	}

	result := gin.H{
		"run_id":       state.RunID,
		"graph":        state.Graph,
		"status":       state.Status,
		"rounds":       state.Rounds,
		"values":       state.Values,
		"completed_at": state.CompletedAt,
	}
	if state.Error != "" {
		result["error"] = state.Error
		result["error_kind"] = state.ErrorKind
	}

	c.JSON(http.StatusOK, result)
}

// handleCancelRun handles run cancellation
func (s *Server) handleCancelRun(c *gin.Context) {
	runID := c.Param("id")

	if err := s.orchestrator.CancelRun(c.Request.Context(), runID); err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"run_id":       runID,
		"status":       domain.ExecutionStatusCancelled,
		"cancelled_at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) badRequest(c *gin.Context, err error) {
	s.logger.Debug("invalid request", zap.Error(err))
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Error: ErrorDetail{
			Code:    "INVALID_REQUEST",
			Message: err.Error(),
		},
	})
}

// writeError maps application errors to HTTP responses
func (s *Server) writeError(c *gin.Context, err error) {
	code := http.StatusInternalServerError
	errCode := "INTERNAL_ERROR"

	switch {
	case errors.Is(err, graphs.ErrGraphNotFound):
		code, errCode = http.StatusNotFound, "GRAPH_NOT_FOUND"
	case errors.Is(err, graphs.ErrInvalidParams):
		code, errCode = http.StatusBadRequest, "INVALID_PARAMS"
	case pregel.IsConfigError(err):
		code, errCode = http.StatusUnprocessableEntity, "INVALID_GRAPH"
	case errors.Is(err, ports.ErrRunNotFound):
		code, errCode = http.StatusNotFound, "RUN_NOT_FOUND"
	case errors.Is(err, orchestrator.ErrRunTerminal):
		code, errCode = http.StatusConflict, "RUN_TERMINAL"
	case errors.Is(err, orchestrator.ErrRunNotLocal):
		code, errCode = http.StatusConflict, "RUN_NOT_LOCAL"
	}

	c.JSON(code, ErrorResponse{
		Error: ErrorDetail{
			Code:    errCode,
			Message: err.Error(),
		},
	})
}

func queryInt(c *gin.Context, key string, def int) (int, error) {
	v := c.Query(key)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}
