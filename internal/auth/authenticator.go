// Package auth builds the ByteBlast client logon line, which the supervisor
// sends right after the TCP handshake completes and again on every
// keepalive tick (spec.md §4.4, §6).
package auth

import (
	"errors"
	"strings"

	"github.com/bradsjm/byte-blaster/internal/obfuscate"
)

// ErrEmailRequired is returned by New when the configured email is empty.
// The spec treats a missing email as a fatal configuration error, not a
// retryable one (spec.md §7).
var ErrEmailRequired = errors.New("auth: email is required")

// clientVersion is the protocol version advertised in the logon line.
const clientVersion = "V2"

// Authenticator produces the masked logon payload for one configured
// identity. It holds no per-connection state — a single instance is reused
// across reconnects.
type Authenticator struct {
	email string
}

// New validates email and returns an Authenticator, or ErrEmailRequired.
func New(email string) (*Authenticator, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, ErrEmailRequired
	}
	return &Authenticator{email: email}, nil
}

// Logon returns the XOR-0xFF masked logon line, ready to write directly to
// the socket: "ByteBlast Client|NM-<email>|V2", masked byte for byte.
func (a *Authenticator) Logon() []byte {
	line := "ByteBlast Client|NM-" + a.email + "|" + clientVersion
	p := []byte(line)
	obfuscate.Mask(p)
	return p
}
