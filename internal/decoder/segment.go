package decoder

import "time"

// ProtocolVersion distinguishes the two QBT block encodings this client
// understands. There is intentionally one segment type and one version
// enum — no inheritance, no deprecated alias (spec.md §9).
type ProtocolVersion int

const (
	V1 ProtocolVersion = 1
	V2 ProtocolVersion = 2
)

// Segment is one decoded QBT fragment of one file.
type Segment struct {
	Filename         string
	BlockNumber      int
	TotalBlocks      int
	Content          []byte
	DeclaredChecksum uint32
	DeclaredLength   int // V2 compressed length as declared by /DL; 0 for V1
	Version          ProtocolVersion
	FileTimestamp    time.Time
	ReceivedAt       time.Time
	RawHeader        string
	Source           string
}
