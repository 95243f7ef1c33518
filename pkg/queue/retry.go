package queue

import "github.com/codeready-toolchain/ctxengine/pkg/ctxerr"

// nonRetryableKinds are the error kinds classified as terminal:
// ConfigError, MissingPromptContractField,
// FrameMetadataPolicyViolation, ProviderNotConfigured. Everything
// else, including any kind the classifier has never seen, is
// retryable by default.
var nonRetryableKinds = map[ctxerr.Kind]struct{}{
	ctxerr.KindConfigError:                  {},
	ctxerr.KindMissingPromptContractField:   {},
	ctxerr.KindFrameMetadataPolicyViolation: {},
	ctxerr.KindProviderNotConfigured:        {},
}

// isRetryable reports whether the worker should re-enqueue after err.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	_, nonRetryable := nonRetryableKinds[ctxerr.KindOf(err)]
	return !nonRetryable
}
