package server

import "github.com/quic-go/quic-go"

// CloseReason is the application error a connection is torn down with.
type CloseReason struct {
	Code    quic.ApplicationErrorCode
	Message string
}

// Label is the metrics label for r.
func (r CloseReason) Label() string { return r.Message }

var (
	ReasonNormal          = CloseReason{0, "normal"}
	ReasonTooMany         = CloseReason{1, "too_many_connections"}
	ReasonHandshakeFailed = CloseReason{2, "handshake_failed"}
	ReasonMalformed       = CloseReason{3, "malformed_message"}
	ReasonDecryptFailed   = CloseReason{4, "decryption_failed"}
	ReasonSlowConsumer    = CloseReason{5, "slow_consumer"}
	ReasonInternal        = CloseReason{6, "internal_error"}
)
