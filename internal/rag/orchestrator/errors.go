package orchestrator

import "manifold/internal/rag/protocol"

// The orchestrator's error taxonomy is a small closed set of types
// satisfying error, defined once in protocol so both storage and
// orchestrator can raise them. Aliased here for call-site brevity.
type (
	InvalidArgumentError    = protocol.InvalidArgumentError
	RequiredStepFailedError = protocol.RequiredStepFailedError
)

// ErrCancelled is returned by a suspension point once a request's
// cancellation flag is set. The orchestrator's run loop maps it to
// rag.done{cancelled} without an accompanying rag.error.
var ErrCancelled = protocol.ErrCancelled
