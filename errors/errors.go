package errors

import "fmt"

var (
	ErrWorkerPanic          = fmt.Errorf("worker panic")
	ErrUserNotFound         = fmt.Errorf("user not found")
	ErrConversationNotFound = fmt.Errorf("conversation not found")
	ErrSinkClosed           = fmt.Errorf("sink closed")
	ErrInvalidToken         = fmt.Errorf("invalid token")
)
