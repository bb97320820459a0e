package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"
	ErrProtoBadEvent   = "E_PROTO_BAD_EVENT"

	// Catch preconditions (reported synchronously to the caller).
	ErrOutOfRange      = "E_OUT_OF_RANGE"
	ErrNoBalls         = "E_NO_BALLS"
	ErrAttemptPending  = "E_ATTEMPT_PENDING"
	ErrUnknownTarget   = "E_UNKNOWN_TARGET"

	// Mirror/ledger disagreement (self-healing, logged).
	ErrStaleEvent     = "E_STALE_EVENT"
	ErrDuplicateAdd   = "E_DUPLICATE_ADD"
	ErrSlotMismatch   = "E_SLOT_MISMATCH"

	// Resource exhaustion (operator-visible).
	ErrPoolExhausted = "E_POOL_EXHAUSTED"

	ErrInternal = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrProtoBadEvent:   {},
	ErrOutOfRange:      {},
	ErrNoBalls:         {},
	ErrAttemptPending:  {},
	ErrUnknownTarget:   {},
	ErrStaleEvent:      {},
	ErrDuplicateAdd:    {},
	ErrSlotMismatch:    {},
	ErrPoolExhausted:   {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
