package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/codeready-toolchain/ctxengine/pkg/ctxerr"
)

// writeError maps a ctxerr.Kind to an HTTP status and writes the
// error response body.
func writeError(c *gin.Context, err error) {
	status := statusForKind(ctxerr.KindOf(err))
	if status == http.StatusInternalServerError {
		slog.Error("ctxengine api: request failed", "error", err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func statusForKind(kind ctxerr.Kind) int {
	switch kind {
	case ctxerr.KindNodeNotFound:
		return http.StatusNotFound
	case ctxerr.KindUnauthorized:
		return http.StatusForbidden
	case ctxerr.KindInvalidFrame, ctxerr.KindFrameMetadataPolicyViolation,
		ctxerr.KindConfigError, ctxerr.KindMissingPromptContractField:
		return http.StatusBadRequest
	case ctxerr.KindProviderNotConfigured, ctxerr.KindProviderModelNotFound:
		return http.StatusBadRequest
	case ctxerr.KindProviderRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
