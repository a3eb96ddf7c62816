package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	ingestdomain "github.com/fieldpulse/repboard/internal/ingest/domain"
)

// IngestReport accepts an uploaded report batch and runs it through the
// pipeline. Row-level failures come back in the result body, not as an
// HTTP error; only a malformed request or an empty batch is rejected.
func (s *Server) IngestReport(c *gin.Context) {
	var req ingestdomain.IngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	result, err := s.ingestSvc.Ingest(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}
