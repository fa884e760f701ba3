package errs

// Gateway failure taxonomy. Auth failures are terminal for the connection
// attempt; everything else is recoverable and reported through the ack path.
var (
	ErrAuthMissing = NewCodeError(1101, "credential missing")
	ErrAuthInvalid = NewCodeError(1102, "credential invalid")
	ErrAuthExpired = NewCodeError(1103, "credential expired")

	ErrUnauthenticated = NewCodeError(1104, "not authenticated")

	ErrValidation = NewCodeError(1201, "invalid input")

	ErrRoomNotFound = NewCodeError(1301, "room not found")
	ErrRoomExists   = NewCodeError(1302, "room name already exists")

	ErrInternal = NewCodeError(1500, "internal error")
)
