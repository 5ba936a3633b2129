package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"

	// Game routing.
	ErrGameNotFound = "E_GAME_NOT_FOUND"
	ErrGameBusy     = "E_GAME_BUSY"

	// Rule layer.
	ErrBadRequest   = "E_BAD_REQUEST"
	ErrValidation   = "E_VALIDATION"
	ErrPrecondition = "E_PRECONDITION"
	ErrNoPermission = "E_NO_PERMISSION"
	ErrNoResource   = "E_NO_RESOURCE"
	ErrNotFound     = "E_NOT_FOUND"
	ErrConflict     = "E_CONFLICT"
	ErrInternal     = "E_INTERNAL"
)

// ResultOK is stamped on jobs whose terminal mutation succeeded.
const ResultOK = "OK"

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrGameNotFound:    {},
	ErrGameBusy:        {},
	ErrBadRequest:      {},
	ErrValidation:      {},
	ErrPrecondition:    {},
	ErrNoPermission:    {},
	ErrNoResource:      {},
	ErrNotFound:        {},
	ErrConflict:        {},
	ErrInternal:        {},
	ResultOK:           {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
