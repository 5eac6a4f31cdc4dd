package pipeline

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"

	"github.com/aevon-lab/attribution-rollup/internal/analytics"
	"github.com/aevon-lab/attribution-rollup/internal/core/config"
	httperr "github.com/aevon-lab/attribution-rollup/internal/core/errors"
	"github.com/aevon-lab/attribution-rollup/internal/core/reconcile"
	"github.com/aevon-lab/attribution-rollup/internal/core/storage"
)

// Handler exposes variants and runs over HTTP.
type Handler struct {
	variants VariantRepository
	exec     Executor
	runs     storage.RunLog
}

func NewHandler(variants VariantRepository, exec Executor, runs storage.RunLog) *Handler {
	return &Handler{variants: variants, exec: exec, runs: runs}
}

// RegisterRoutes registers the pipeline API routes on the given router.
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.GET("/v1/pipelines", h.HandleListVariants)
	r.POST("/v1/pipelines/:name/runs", h.HandleTriggerRun)
	r.GET("/v1/pipelines/:name/runs/latest", h.HandleLatestRun)
}

type variantSummary struct {
	Name            string   `json:"name"`
	Description     string   `json:"description,omitempty"`
	Table           string   `json:"table"`
	Source          Source   `json:"source"`
	Mode            Mode     `json:"mode"`
	Window          Window   `json:"window"`
	KeyFormat       string   `json:"key_format"`
	DateInput       string   `json:"date_input"`
	Metrics         []string `json:"metrics"`
	DetectStaleness bool     `json:"detect_staleness"`
	Fingerprint     string   `json:"fingerprint"`
}

// HandleListVariants handles GET /v1/pipelines
func (h *Handler) HandleListVariants(c *gin.Context) {
	out := lo.Map(h.variants.Variants(), func(v *Variant, _ int) variantSummary {
		return variantSummary{
			Name:            v.Name,
			Description:     v.Description,
			Table:           v.Table,
			Source:          v.Source,
			Mode:            v.Mode,
			Window:          v.Window,
			KeyFormat:       string(v.KeyFormat),
			DateInput:       string(v.DateInput),
			Metrics:         v.RowMetrics(),
			DetectStaleness: v.DetectStaleness,
			Fingerprint:     v.Fingerprint,
		}
	})
	c.JSON(http.StatusOK, gin.H{"pipelines": out})
}

// HandleTriggerRun handles POST /v1/pipelines/:name/runs
// Body (optional): {"start": "1/1/25", "end": "3/15/25", "dry_run": true}
func (h *Handler) HandleTriggerRun(c *gin.Context) {
	v, ok := h.lookup(c)
	if !ok {
		return
	}

	var params RunParams
	if err := c.ShouldBindJSON(&params); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
			ErrorType: httperr.HttpInvalidJsonError,
			Message:   "Invalid run parameters",
			Details:   err.Error(),
		})
		return
	}

	result, err := h.exec.Run(c.Request.Context(), v, params)
	if err != nil {
		status, body := runErrorResponse(err)
		c.JSON(status, body)
		return
	}
	c.JSON(http.StatusOK, result)
}

// HandleLatestRun handles GET /v1/pipelines/:name/runs/latest
func (h *Handler) HandleLatestRun(c *gin.Context) {
	v, ok := h.lookup(c)
	if !ok {
		return
	}

	run, err := h.runs.LastRun(c.Request.Context(), v.Name)
	if errors.Is(err, storage.ErrRunNotFound) {
		c.JSON(http.StatusNotFound, httperr.ErrorResponse{
			ErrorType: httperr.HttpRunNotFound,
			Message:   "Variant has no recorded run",
			Details:   v.Name,
		})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, httperr.ErrorResponse{
			ErrorType: httperr.HttpInternalError,
			Message:   "Failed to read run log",
			Details:   err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, run)
}

func (h *Handler) lookup(c *gin.Context) (*Variant, bool) {
	v, err := h.variants.Get(c.Request.Context(), c.Param("name"))
	if err != nil {
		c.JSON(http.StatusNotFound, httperr.ErrorResponse{
			ErrorType: httperr.HttpVariantNotFound,
			Message:   "Unknown pipeline variant",
			Details:   c.Param("name"),
		})
		return nil, false
	}
	return v, true
}

// runErrorResponse maps a run failure onto a status and body.
func runErrorResponse(err error) (int, httperr.ErrorResponse) {
	var (
		verr *config.ValidationError
		qerr *analytics.QueryError
		aerr *reconcile.ApplyError
	)
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, httperr.ErrorResponse{
			ErrorType: httperr.HttpValidationError,
			Message:   "Invalid run parameters",
			Details:   verr.Problems,
		}
	case errors.Is(err, ErrRunInProgress):
		return http.StatusConflict, httperr.ErrorResponse{
			ErrorType: httperr.HttpRunInProgress,
			Message:   "Another run is writing this table",
			Details:   err.Error(),
		}
	case errors.As(err, &qerr):
		return http.StatusBadGateway, httperr.ErrorResponse{
			ErrorType: httperr.HttpUpstreamQueryError,
			Message:   "Analytics query failed",
			Details:   gin.H{"status": qerr.Status, "body": qerr.Body},
		}
	case errors.As(err, &aerr):
		return http.StatusInternalServerError, httperr.ErrorResponse{
			ErrorType: httperr.HttpStoreWriteError,
			Message:   "Writing to the table store failed",
			Details:   gin.H{"pass": aerr.Pass, "chunk": aerr.Chunk, "applied": aerr.Applied, "error": aerr.Err.Error()},
		}
	}
	return http.StatusInternalServerError, httperr.ErrorResponse{
		ErrorType: httperr.HttpInternalError,
		Message:   "Pipeline run failed",
		Details:   err.Error(),
	}
}
