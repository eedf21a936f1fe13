package errors

import "fmt"

var (
	ErrWorkerPanic       = fmt.Errorf("worker panic")
	ErrNotIdentified     = fmt.Errorf("connection has not bound an identity")
	ErrUnknownEvent      = fmt.Errorf("unknown event name")
	ErrInvalidPayload    = fmt.Errorf("invalid event payload")
	ErrIdentityMismatch  = fmt.Errorf("declared identity does not match handshake token")
	ErrRoomValidation    = fmt.Errorf("room validation rejected the join")
	ErrMissingAuthToken  = fmt.Errorf("missing authentication token")
	ErrUnexpectedStatus  = fmt.Errorf("unexpected http status")
	ErrMailboxFull       = fmt.Errorf("router mailbox full")
	ErrUnknownConnection = fmt.Errorf("unknown connection")
)
