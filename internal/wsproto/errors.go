package wsproto

import "errors"

// Transport error kinds (spec.md §7 "Transport errors").
var (
	ErrNotConnected   = errors.New("wsproto: peer not connected")
	ErrSendFailed     = errors.New("wsproto: send failed")
	ErrHeadersMissing = errors.New("wsproto: response missing required peer headers")
	ErrOwnAddress     = errors.New("wsproto: cannot connect to own advertised address")
	ErrDuplicate      = errors.New("wsproto: duplicate connection lost the tiebreak")
	ErrStopped        = errors.New("wsproto: endpoint is stopped")
	ErrMissingParam   = errors.New("wsproto: upgrade request missing required parameter")
	ErrTransport      = errors.New("wsproto: transport error")
)
