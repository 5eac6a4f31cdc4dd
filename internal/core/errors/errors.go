package errors

const (
	HttpInternalError       = "internal_error"
	HttpInvalidJsonError    = "invalid_json"
	HttpValidationError     = "validation_failed"
	HttpVariantNotFound     = "variant_not_found"
	HttpRunInProgress       = "run_in_progress"
	HttpUpstreamQueryError  = "upstream_query_failed"
	HttpStoreWriteError     = "store_write_failed"
	HttpRunNotFound         = "run_not_found"
	HttpReportNotApplicable = "report_not_applicable"
)

// ErrorResponse is the error response body for every API error.
type ErrorResponse struct {
	ErrorType string      `json:"error_type"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details,omitempty"`
}
