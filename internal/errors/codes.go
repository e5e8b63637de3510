// Package errors provides the structured error taxonomy for pagegenie.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: Store errors (database, index, page files)
//   - 3XX: Upstream errors (embedding, generation, rerank, image)
//   - 4XX: Validation errors
//   - 5XX: Internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryStore indicates chunk, version or run storage errors.
	CategoryStore Category = "STORE"
	// CategoryUpstream indicates an external capability failed or timed out.
	CategoryUpstream Category = "UPSTREAM"
	// CategoryValidation indicates input validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
	// SeverityInfo indicates informational only.
	SeverityInfo Severity = "INFO"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"
	ErrCodeMissingAPIKey  = "ERR_103_MISSING_API_KEY"

	// Store errors (200-299)
	ErrCodeStoreUnavailable   = "ERR_201_STORE_UNAVAILABLE"
	ErrCodeStoreQuery         = "ERR_202_STORE_QUERY"
	ErrCodeStoreWrite         = "ERR_203_STORE_WRITE"
	ErrCodeCorruptIndex       = "ERR_204_CORRUPT_INDEX"
	ErrCodeVersionNotFound    = "ERR_205_VERSION_NOT_FOUND"
	ErrCodeDimensionMismatch  = "ERR_206_DIMENSION_MISMATCH"
	ErrCodePersistenceWarning = "ERR_207_PERSISTENCE_WARNING"
	ErrCodeStoreLocked        = "ERR_208_STORE_LOCKED"

	// Upstream errors (300-399)
	ErrCodeUpstreamTimeout  = "ERR_301_UPSTREAM_TIMEOUT"
	ErrCodeEmbeddingFailed  = "ERR_302_EMBEDDING_FAILED"
	ErrCodeGenerationFailed = "ERR_303_GENERATION_FAILED"
	ErrCodeRerankFailed     = "ERR_304_RERANK_FAILED"
	ErrCodeImageFailed      = "ERR_305_IMAGE_FAILED"

	// Validation errors (400-499)
	ErrCodeInvalidInput    = "ERR_401_INVALID_INPUT"
	ErrCodeQueryEmpty      = "ERR_402_QUERY_EMPTY"
	ErrCodeQueryTooLong    = "ERR_403_QUERY_TOO_LONG"
	ErrCodeInvalidSlug     = "ERR_404_INVALID_SLUG"
	ErrCodeInvalidMethod   = "ERR_405_INVALID_RETRIEVAL_METHOD"
	ErrCodeInvalidPoolSize = "ERR_406_INVALID_POOL_SIZE"

	// Internal errors (500-599)
	ErrCodeInternal       = "ERR_501_INTERNAL"
	ErrCodeIllegalState   = "ERR_502_ILLEGAL_STATE"
	ErrCodeChunkingFailed = "ERR_503_CHUNKING_FAILED"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	// Extract numeric portion (e.g., "301" from "ERR_301_UPSTREAM_TIMEOUT")
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryStore
	case '3':
		return CategoryUpstream
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeCorruptIndex, ErrCodeStoreLocked:
		return SeverityFatal
	case ErrCodePersistenceWarning, ErrCodeRerankFailed:
		return SeverityWarning
	}
	return SeverityError
}

// isRetryableCode reports whether a client may resend the request.
// Nothing is retried automatically inside a chat request.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeUpstreamTimeout, ErrCodeEmbeddingFailed, ErrCodeGenerationFailed,
		ErrCodeImageFailed, ErrCodeStoreUnavailable:
		return true
	default:
		return false
	}
}
