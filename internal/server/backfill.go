package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetBackfillStatus reports how many snapshots still lack cycle metadata.
func (s *Server) GetBackfillStatus(c *gin.Context) {
	status, err := s.backfillEng.Status(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// StartBackfill launches a run asynchronously and returns its initial
// progress. A run already in progress (locally or on another replica) maps
// to 409.
func (s *Server) StartBackfill(c *gin.Context) {
	progress, err := s.backfillEng.Start(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, progress)
}

// GetBackfillProgress reports the current (or last) run's progress.
func (s *Server) GetBackfillProgress(c *gin.Context) {
	c.JSON(http.StatusOK, s.backfillEng.Progress())
}

// GetBackfillResult returns the last finished run's result.
func (s *Server) GetBackfillResult(c *gin.Context) {
	result, ok := s.backfillEng.Result()
	if !ok {
		AbortWithError(c, ErrNotFound)
		return
	}
	c.JSON(http.StatusOK, result)
}

// CancelBackfill requests cooperative cancellation of the running backfill.
func (s *Server) CancelBackfill(c *gin.Context) {
	if err := s.backfillEng.Cancel(); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cancelling"})
}

// ResetBackfill returns a terminal engine to its initial state.
func (s *Server) ResetBackfill(c *gin.Context) {
	if err := s.backfillEng.Reset(); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "reset"})
}

// ValidateBackfill runs the read-only consistency scan over all snapshots.
func (s *Server) ValidateBackfill(c *gin.Context) {
	result, err := s.backfillEng.Validate(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
