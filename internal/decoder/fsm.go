// Package decoder implements the QBT protocol finite state machine: it
// consumes an xorbuffer.Buffer of already-demasked bytes and emits either
// data-block Segments or in-band ServerListUpdates. The decoder never
// errors out of the stream — every failure path returns to RESYNC (see
// spec.md §4.2/§7).
package decoder

import (
	"time"

	"github.com/bradsjm/byte-blaster/internal/obfuscate"
	"github.com/bradsjm/byte-blaster/internal/xorbuffer"
)

// State is one state of the protocol decoder's finite state machine.
type State int

const (
	StateResync State = iota
	StateStartFrame
	StateBlockHeader
	StateBlockBody
	StateValidate
	StateServerList
)

func (s State) String() string {
	switch s {
	case StateResync:
		return "RESYNC"
	case StateStartFrame:
		return "START_FRAME"
	case StateBlockHeader:
		return "BLOCK_HEADER"
	case StateBlockBody:
		return "BLOCK_BODY"
	case StateValidate:
		return "VALIDATE"
	case StateServerList:
		return "SERVER_LIST"
	default:
		return "UNKNOWN"
	}
}

// syncMarker is six consecutive 0xFF bytes in the demasked buffer. The
// on-wire bytes are six 0x00 which XOR-0xFF into 0xFF — see spec.md §9 and
// DESIGN.md for the resolved ambiguity between the satellite draft's
// 0x00-prefix framing and the TCP leg's obfuscated view of it.
var syncMarker = [6]byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}

var crlf = [2]byte{'\r', '\n'}

// SegmentHandler receives one decoded QBT segment.
type SegmentHandler func(Segment)

// ServerListHandler receives one decoded server-list announcement.
type ServerListHandler func(ServerListUpdate)

// Decoder drives the QBT FSM over one session's XOR-buffer. It is not safe
// for concurrent use — one decoder belongs to exactly one reader task (R),
// matching the XOR-buffer's own single-writer rule.
type Decoder struct {
	buf    *xorbuffer.Buffer
	state  State
	source string

	pendingHeader header
	pendingBody   []byte

	exceptions int
}

// New returns a Decoder in its initial RESYNC state, as mandated on every
// (re)connection. source identifies the server endpoint this decoder's
// bytes came from, stamped onto every emitted Segment.
func New(source string) *Decoder {
	return &Decoder{
		buf:    xorbuffer.New(),
		state:  StateResync,
		source: source,
	}
}

// Feed appends already-demasked bytes to the decoder's buffer.
func (d *Decoder) Feed(p []byte) {
	d.buf.Append(p)
}

// State returns the decoder's current FSM state (for tests/observability).
func (d *Decoder) State() State {
	return d.state
}

// Exceptions returns the number of consecutive resyncs-without-emission
// since the last successfully emitted frame. The supervisor tears down and
// reconnects the session once this reaches max_exceptions.
func (d *Decoder) Exceptions() int {
	return d.exceptions
}

// Drain steps the FSM forward as far as buffered data allows, invoking
// onSegment / onServerList for each emitted event in decode order. It
// returns once no further progress can be made without more input.
func (d *Decoder) Drain(onSegment SegmentHandler, onServerList ServerListHandler) {
	for d.step(onSegment, onServerList) {
	}
	d.buf.Compact()
}

// step performs one FSM transition. It returns true if it made progress
// (and the caller should call it again), or false if it is blocked waiting
// for more buffered input.
func (d *Decoder) step(onSegment SegmentHandler, onServerList ServerListHandler) bool {
	switch d.state {
	case StateResync:
		return d.stepResync()
	case StateStartFrame:
		return d.stepStartFrame()
	case StateBlockHeader:
		return d.stepBlockHeader()
	case StateBlockBody:
		return d.stepBlockBody()
	case StateValidate:
		return d.stepValidate(onSegment)
	case StateServerList:
		return d.stepServerList(onServerList)
	default:
		d.state = StateResync
		return true
	}
}

func (d *Decoder) stepResync() bool {
	idx := d.buf.IndexOf(syncMarker[:], 0)
	if idx < 0 {
		d.discardNonMatchingPrefix()
		return false
	}
	d.buf.Consume(idx)
	d.buf.Consume(len(syncMarker))
	d.state = StateStartFrame
	return true
}

// discardNonMatchingPrefix drops every buffered byte except a trailing run
// of 0xFF bytes that could still grow into a sync marker with more input.
// Without this, a stream of non-matching garbage (e.g. link noise) would
// grow the buffer without bound while RESYNC waits for more data.
func (d *Decoder) discardNonMatchingPrefix() {
	all, ok := d.buf.Peek(d.buf.Len())
	if !ok {
		return
	}
	run := 0
	for i := len(all) - 1; i >= 0 && run < len(syncMarker)-1; i-- {
		if all[i] != 0xFF {
			break
		}
		run++
	}
	discard := len(all) - run
	if discard > 0 {
		d.buf.Consume(discard)
	}
}

func (d *Decoder) stepStartFrame() bool {
	b, ok := d.buf.PeekByte()
	if !ok {
		return false
	}
	switch {
	case b == '/':
		d.state = StateBlockHeader
	case isServerListLead(b):
		d.state = StateServerList
	default:
		d.exceptions++
		d.state = StateResync
	}
	return true
}

func isServerListLead(b byte) bool {
	return (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

func (d *Decoder) stepBlockHeader() bool {
	raw, ok := d.buf.Peek(headerLen)
	if !ok {
		return false
	}
	h, err := parseHeader(string(raw))
	d.buf.Consume(headerLen)
	if err != nil {
		d.exceptions++
		d.state = StateResync
		return true
	}
	d.pendingHeader = h
	d.state = StateBlockBody
	return true
}

func (d *Decoder) stepBlockBody() bool {
	length := 1024
	if d.pendingHeader.isV2 {
		length = d.pendingHeader.declaredLength
	}
	if length <= 0 {
		d.exceptions++
		d.state = StateResync
		return true
	}
	raw, ok := d.buf.Peek(length)
	if !ok {
		return false
	}
	body := make([]byte, length)
	copy(body, raw)
	d.buf.Consume(length)

	if d.pendingHeader.isV2 {
		inflated, err := inflate(body)
		if err != nil {
			d.exceptions++
			d.state = StateResync
			return true
		}
		d.pendingBody = inflated
	} else {
		d.pendingBody = body
	}
	d.state = StateValidate
	return true
}

func (d *Decoder) stepValidate(onSegment SegmentHandler) bool {
	sum := obfuscate.Checksum(d.pendingBody)
	if sum != d.pendingHeader.checksum {
		d.exceptions++
		d.state = StateResync
		return true
	}

	version := V1
	if d.pendingHeader.isV2 {
		version = V2
	}
	seg := Segment{
		Filename:         d.pendingHeader.filename,
		BlockNumber:      d.pendingHeader.blockNumber,
		TotalBlocks:      d.pendingHeader.totalBlocks,
		Content:          d.pendingBody,
		DeclaredChecksum: d.pendingHeader.checksum,
		DeclaredLength:   d.pendingHeader.declaredLength,
		Version:          version,
		FileTimestamp:    d.pendingHeader.fileTimestamp,
		ReceivedAt:       time.Now().UTC(),
		RawHeader:        d.pendingHeader.raw,
		Source:           d.source,
	}
	d.exceptions = 0
	d.state = StateResync
	if onSegment != nil {
		onSegment(seg)
	}
	return true
}

func (d *Decoder) stepServerList(onServerList ServerListHandler) bool {
	idx := d.buf.IndexOf(crlf[:], 0)
	if idx < 0 {
		if d.buf.Len() > maxServerListLine {
			d.exceptions++
			d.state = StateResync
			return true
		}
		return false
	}
	raw, _ := d.buf.Peek(idx + 2)
	line := string(raw)
	d.buf.Consume(idx + 2)

	upd, ok := parseServerList(line)
	if !ok {
		d.exceptions++
		d.state = StateResync
		return true
	}
	d.exceptions = 0
	d.state = StateResync
	if onServerList != nil {
		onServerList(upd)
	}
	return true
}
