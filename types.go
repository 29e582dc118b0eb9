package goToken

import (
	"io"

	internalaudit "github.com/MrEthical07/goToken/internal/audit"
	"github.com/MrEthical07/goToken/jwt"
	"github.com/MrEthical07/goToken/refresh"
)

// TokenPair is the result of [Service.Issue] and [Service.Refresh]: one
// access token and one refresh token minted together. Both carry the same
// jti, so a single ledger entry denies the pair.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	// TokenType is always "Bearer"; it exists so the pair can be serialized
	// straight into an OAuth-style token response.
	TokenType string

	// JTI is the shared token identifier of the pair.
	JTI string
}

// Claims is the verified payload of a token, returned by
// [Service.ValidateAccessToken].
//
//	Docs: docs/jwt.md
type Claims = jwt.Claims

// DeviceInfo identifies the device a token pair is issued to.
type DeviceInfo = refresh.DeviceInfo

// AuditEvent is a structured audit record emitted by the service.
//
//	Docs: docs/audit.md
type AuditEvent = internalaudit.Event

// AuditSink receives [AuditEvent] values from the service's audit dispatcher.
//
//	Docs: docs/audit.md
type AuditSink = internalaudit.Sink

// NoOpSink is an [AuditSink] that silently discards all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based [AuditSink].
//
//	Docs: docs/audit.md
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink is an [AuditSink] that writes JSON-encoded events to an
// [io.Writer].
//
//	Docs: docs/audit.md
type JSONWriterSink = internalaudit.JSONWriterSink

// NewChannelSink creates a [ChannelSink] with the given buffer capacity.
//
//	Docs: docs/audit.md
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a [JSONWriterSink] that writes to w.
//
//	Docs: docs/audit.md
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}
