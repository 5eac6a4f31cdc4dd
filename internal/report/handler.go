package report

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aevon-lab/attribution-rollup/internal/core/aggregation"
	httperr "github.com/aevon-lab/attribution-rollup/internal/core/errors"
	"github.com/aevon-lab/attribution-rollup/internal/pipeline"
)

// RegisterRoutes registers all report API routes on the given router.
func (s *Service) RegisterRoutes(r gin.IRouter) {
	g := r.Group("/v1/reports/:name")
	g.GET("/top", s.HandleTop)
	g.GET("/daily-new", s.HandleDailyNew)
	g.GET("/daily-totals", s.HandleDailyTotals)
	g.GET("/quality", s.HandleQuality)
	g.GET("/summary", s.HandleSummary)
}

// HandleTop handles GET /v1/reports/:name/top
// Query parameters: metric, n, min_count, start, end (YYYY-MM-DD, range variants only)
func (s *Service) HandleTop(c *gin.Context) {
	var query struct {
		Metric   string `form:"metric"`
		N        int    `form:"n,default=10" binding:"min=0"`
		MinCount int64  `form:"min_count" binding:"min=0"`
		Start    string `form:"start"`
		End      string `form:"end"`
	}
	if !bindQuery(c, &query) {
		return
	}

	q := TopQuery{Metric: query.Metric, N: query.N, MinCount: query.MinCount}
	var err error
	if q.Start, err = parseDay(query.Start); err == nil {
		q.End, err = parseDay(query.End)
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
			ErrorType: httperr.HttpInvalidJsonError,
			Message:   "Invalid query parameters",
			Details:   err.Error(),
		})
		return
	}

	out, err := s.Top(c.Request.Context(), c.Param("name"), q)
	respond(c, gin.H{"groups": out}, err)
}

// HandleDailyNew handles GET /v1/reports/:name/daily-new
func (s *Service) HandleDailyNew(c *gin.Context) {
	out, err := s.DailyNew(c.Request.Context(), c.Param("name"))
	respond(c, gin.H{"days": out}, err)
}

// HandleDailyTotals handles GET /v1/reports/:name/daily-totals
func (s *Service) HandleDailyTotals(c *gin.Context) {
	out, err := s.DailyTotals(c.Request.Context(), c.Param("name"))
	respond(c, gin.H{"days": out}, err)
}

// HandleQuality handles GET /v1/reports/:name/quality
// Query parameters: n, min_count (default 20)
func (s *Service) HandleQuality(c *gin.Context) {
	var query struct {
		N        int   `form:"n,default=10" binding:"min=0"`
		MinCount int64 `form:"min_count,default=20" binding:"min=0"`
	}
	if !bindQuery(c, &query) {
		return
	}
	out, err := s.Quality(c.Request.Context(), c.Param("name"), query.N, query.MinCount)
	respond(c, gin.H{"groups": out}, err)
}

// HandleSummary handles GET /v1/reports/:name/summary
func (s *Service) HandleSummary(c *gin.Context) {
	out, err := s.Summary(c.Request.Context(), c.Param("name"))
	respond(c, out, err)
}

func bindQuery(c *gin.Context, dst any) bool {
	if err := c.ShouldBindQuery(dst); err != nil {
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
			ErrorType: httperr.HttpInvalidJsonError,
			Message:   "Invalid query parameters",
			Details:   err.Error(),
		})
		return false
	}
	return true
}

func parseDay(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return aggregation.ParseInputDate(s, aggregation.DateStyleISO)
}

func respond(c *gin.Context, body any, err error) {
	switch {
	case err == nil:
		c.JSON(http.StatusOK, body)
	case errors.Is(err, pipeline.ErrVariantNotFound):
		c.JSON(http.StatusNotFound, httperr.ErrorResponse{
			ErrorType: httperr.HttpVariantNotFound,
			Message:   "Unknown pipeline variant",
			Details:   c.Param("name"),
		})
	case errors.Is(err, ErrInvalidQuery):
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
			ErrorType: httperr.HttpValidationError,
			Message:   "Invalid report query",
			Details:   err.Error(),
		})
	case errors.Is(err, ErrNotApplicable):
		c.JSON(http.StatusUnprocessableEntity, httperr.ErrorResponse{
			ErrorType: httperr.HttpReportNotApplicable,
			Message:   "Report does not apply to this variant",
			Details:   err.Error(),
		})
	default:
		c.JSON(http.StatusInternalServerError, httperr.ErrorResponse{
			ErrorType: httperr.HttpInternalError,
			Message:   "Failed to build report",
			Details:   err.Error(),
		})
	}
}
