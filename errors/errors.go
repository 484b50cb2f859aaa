package errors

import "fmt"

var (
	// ErrDecode marks a malformed inbound payload. Absorbed at the
	// router boundary, never propagated to the caller.
	ErrDecode = fmt.Errorf("malformed envelope")
	// ErrDuplicateMessage marks a re-registration with conflicting content.
	ErrDuplicateMessage = fmt.Errorf("duplicate message id with different content")
	// ErrUnknownMessage marks a status advance against an untracked message.
	ErrUnknownMessage = fmt.Errorf("message not tracked")
	// ErrReferential marks a status event persisted before its message.
	ErrReferential = fmt.Errorf("status references unknown message")
	// ErrTransport marks broker unavailability. Surfaced, never retried here.
	ErrTransport = fmt.Errorf("transport unavailable")
	// ErrStorage marks store unavailability. Surfaced, never retried here.
	ErrStorage = fmt.Errorf("storage unavailable")
)
