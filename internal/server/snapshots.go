package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"

	snapshotdomain "github.com/fieldpulse/repboard/internal/snapshot/domain"
	"github.com/fieldpulse/repboard/pkg/db/pagination"
)

type listSnapshotsResponse struct {
	Snapshots []*snapshotdomain.MetricSnapshot `json:"snapshots"`
	PageInfo  *pagination.PageInfo             `json:"page_info"`
}

// GetLatestSnapshot returns the representative's current state, optionally
// bounded to one cycle via ?cycle_number=.
func (s *Server) GetLatestSnapshot(c *gin.Context) {
	repID := strings.TrimSpace(c.Param("id"))
	if repID == "" {
		AbortWithError(c, newValidationError("id", "invalid_representative_id", "representative id is required"))
		return
	}

	var cycleNumber *int
	if raw := c.Query("cycle_number"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			AbortWithError(c, newValidationError("cycle_number", "invalid_cycle_number", "cycle_number must be a positive integer"))
			return
		}
		cycleNumber = &n
	}

	snap, err := s.snapshotRepo.Latest(c.Request.Context(), s.db, repID, cycleNumber)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if snap == nil {
		AbortWithError(c, ErrNotFound)
		return
	}

	c.JSON(http.StatusOK, snap)
}

// ListSnapshots pages a representative's snapshot history in insertion order.
func (s *Server) ListSnapshots(c *gin.Context) {
	repID := strings.TrimSpace(c.Param("id"))
	if repID == "" {
		AbortWithError(c, newValidationError("id", "invalid_representative_id", "representative id is required"))
		return
	}

	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if page.PageSize < 1 || page.PageSize > 250 {
		page.PageSize = 50
	}

	var afterID snowflake.ID
	if page.PageToken != "" {
		cursor, err := pagination.DecodeCursor(page.PageToken)
		if err != nil {
			AbortWithError(c, newValidationError("page_token", "invalid_page_token", "malformed page token"))
			return
		}
		parsed, err := snowflake.ParseString(cursor.ID)
		if err != nil {
			AbortWithError(c, newValidationError("page_token", "invalid_page_token", "malformed page token"))
			return
		}
		afterID = parsed
	}

	snaps, err := s.snapshotRepo.ListByRep(c.Request.Context(), s.db, repID, page.PageSize+1, afterID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	pageInfo := pagination.BuildCursorPageInfo(snaps, page.PageSize, func(snap *snapshotdomain.MetricSnapshot) string {
		token, _ := pagination.EncodeCursor(pagination.Cursor{ID: snap.ID.String()})
		return token
	})
	if len(snaps) > page.PageSize {
		snaps = snaps[:page.PageSize]
	}

	c.JSON(http.StatusOK, listSnapshotsResponse{
		Snapshots: snaps,
		PageInfo:  pageInfo,
	})
}
