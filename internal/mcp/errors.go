// Package mcp implements the Model Context Protocol (MCP) server for pagegenie.
package mcp

import (
	"context"
	"errors"
	"fmt"

	perrors "github.com/Aman-CERP/pagegenie/internal/errors"
)

// Custom MCP error codes for pagegenie.
const (
	// ErrCodeVersionNotFound indicates the page or version does not exist.
	ErrCodeVersionNotFound = -32001

	// ErrCodeUpstreamFailed indicates an embedding, generation or image call failed.
	ErrCodeUpstreamFailed = -32002

	// ErrCodeTimeout indicates the request timed out.
	ErrCodeTimeout = -32003

	// ErrCodeStoreFailed indicates the chunk, version or run store failed.
	ErrCodeStoreFailed = -32004

	// Standard JSON-RPC error codes.
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// MCPError represents an MCP protocol error with code and message.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// MapError converts internal errors to MCP errors.
func MapError(err error) *MCPError {
	if err == nil {
		return nil
	}

	var mcpErr *MCPError
	if errors.As(err, &mcpErr) {
		return mcpErr
	}

	if pe, ok := perrors.As(err); ok {
		return mapPageError(pe)
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request timed out."}
	case errors.Is(err, context.Canceled):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request was canceled."}
	default:
		return &MCPError{Code: ErrCodeInternalError, Message: "Internal server error."}
	}
}

// NewInvalidParamsError creates an error for invalid parameters with a custom message.
func NewInvalidParamsError(msg string) *MCPError {
	return &MCPError{Code: ErrCodeInvalidParams, Message: msg}
}

// NewResourceNotFoundError creates an error for unknown resources.
func NewResourceNotFoundError(uri string) *MCPError {
	return &MCPError{
		Code:    ErrCodeVersionNotFound,
		Message: fmt.Sprintf("Resource '%s' not found.", uri),
	}
}

// mapPageError converts a PageError to an MCPError, keeping the page
// error code in the message so clients can match on it.
func mapPageError(pe *perrors.PageError) *MCPError {
	message := fmt.Sprintf("[%s] %s", pe.Code, pe.Message)
	if pe.Suggestion != "" {
		message = fmt.Sprintf("%s %s", message, pe.Suggestion)
	}

	if pe.Code == perrors.ErrCodeVersionNotFound {
		return &MCPError{Code: ErrCodeVersionNotFound, Message: message}
	}
	if pe.Code == perrors.ErrCodeUpstreamTimeout {
		return &MCPError{Code: ErrCodeTimeout, Message: message}
	}

	switch pe.Category {
	case perrors.CategoryValidation:
		return &MCPError{Code: ErrCodeInvalidParams, Message: message}
	case perrors.CategoryUpstream:
		return &MCPError{Code: ErrCodeUpstreamFailed, Message: message}
	case perrors.CategoryStore:
		return &MCPError{Code: ErrCodeStoreFailed, Message: message}
	default:
		return &MCPError{Code: ErrCodeInternalError, Message: message}
	}
}
