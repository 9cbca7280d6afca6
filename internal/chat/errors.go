package chat

import "errors"

var (
	ErrUnknownConnection  = errors.New("unknown connection")
	ErrAlreadyOpen        = errors.New("connection already open")
	ErrAlreadyJoined      = errors.New("connection already joined")
	ErrNotJoined          = errors.New("connection has not joined")
	ErrInvalidDisplayName = errors.New("invalid display name")
	ErrEmptyMessage       = errors.New("empty message body")
	ErrMessageTooLong     = errors.New("message body too long")
	ErrMalformedEvent     = errors.New("malformed event")
)
