package byteblaster

import (
	"errors"
	"fmt"
)

// ErrInvalidConfig is returned by LoadConfig/Validate/New for any
// configuration problem. It is the only configuration-time error that ever
// propagates to the caller (spec.md §7).
var ErrInvalidConfig = errors.New("byteblaster: invalid configuration")

// ErrShutdown is returned by Start when called on a Client that has already
// had Stop called on it, mirroring client2/connection.go's ErrShutdown
// sentinel: once torn down, a connection (or client) does not come back.
var ErrShutdown = errors.New("byteblaster: client is shut down")

// ProtocolLimitError reports that the decoder's consecutive-resync budget
// was exceeded on one session, forcing the supervisor to reconnect. The
// client logs it and keeps running (the next session gets a fresh decoder
// and exception budget) — callers that want visibility into these events
// can read the most recent one back via Client.LastProtocolError, the same
// role client2's ConnectError/PKIError/ProtocolError family plays there.
type ProtocolLimitError struct {
	Exceptions int
	Source     string
}

func (e *ProtocolLimitError) Error() string {
	return fmt.Sprintf("byteblaster: decoder exceeded %d consecutive resyncs on %s", e.Exceptions, e.Source)
}
