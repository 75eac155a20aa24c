package decoder

import (
	"bytes"
	"strconv"
	"testing"

	"github.com/bradsjm/byte-blaster/internal/obfuscate"
	"github.com/stretchr/testify/require"
)

func buildHeaderFields(fields string) string {
	body := fields
	for len(body) < headerLen-2 {
		body += " "
	}
	if len(body) > headerLen-2 {
		body = body[:headerLen-2]
	}
	return body + "\r\n"
}

func v1Frame(filename string, blockNum, total int, content []byte) []byte {
	checksum := obfuscate.Checksum(content)
	hdr := buildHeaderFields(
		"/PF" + filename + " /PN " + strconv.Itoa(blockNum) + " /PT " + strconv.Itoa(total) + " /CS " + strconv.Itoa(int(checksum)))
	var buf bytes.Buffer
	buf.Write(syncMarker[:])
	buf.WriteString(hdr)
	buf.Write(content)
	return buf.Bytes()
}

func repeatByte(b byte, n int) []byte {
	p := make([]byte, n)
	for i := range p {
		p[i] = b
	}
	return p
}

func TestS1SingleThreeBlockV1File(t *testing.T) {
	d := New("test:2211")
	var segs []Segment
	content1 := repeatByte(0x41, 1024)
	content2 := repeatByte(0x42, 1024)
	content3 := repeatByte(0x43, 1024)

	var stream bytes.Buffer
	stream.Write(v1Frame("TEST.TXT", 1, 3, content1))
	stream.Write(v1Frame("TEST.TXT", 2, 3, content2))
	stream.Write(v1Frame("TEST.TXT", 3, 3, content3))

	d.Feed(stream.Bytes())
	d.Drain(func(s Segment) { segs = append(segs, s) }, nil)

	require.Len(t, segs, 3)
	for _, s := range segs {
		require.Equal(t, "TEST.TXT", s.Filename)
		require.Equal(t, uint32(obfuscate.Checksum(s.Content)), s.DeclaredChecksum)
		require.Len(t, s.Content, 1024)
	}
}

func TestS3ChecksumCorruption(t *testing.T) {
	d := New("test:2211")
	var segs []Segment
	content := repeatByte(0x41, 1024)
	frame := v1Frame("BAD.TXT", 1, 2, content)
	// Flip a payload byte after the checksum was computed over the
	// original content, so /CS no longer matches.
	bodyStart := len(frame) - 1024
	frame[bodyStart] ^= 0x01

	d.Feed(frame)
	d.Drain(func(s Segment) { segs = append(segs, s) }, nil)
	require.Empty(t, segs, "corrupted block must be discarded, not emitted")
	require.Equal(t, StateResync, d.State())
	require.Equal(t, 1, d.Exceptions())
}

func TestS4ResyncThroughGarbage(t *testing.T) {
	d := New("test:2211")
	var segs []Segment

	var stream bytes.Buffer
	stream.Write(repeatByte(0x00, 200))
	content := repeatByte(0x5A, 1024)
	stream.Write(v1Frame("GOOD.TXT", 1, 1, content))

	d.Feed(stream.Bytes())
	d.Drain(func(s Segment) { segs = append(segs, s) }, nil)

	require.Len(t, segs, 1)
	require.Equal(t, "GOOD.TXT", segs[0].Filename)
}

func TestArbitraryChunkBoundaries(t *testing.T) {
	content := repeatByte(0x37, 1024)
	whole := v1Frame("CHUNK.TXT", 1, 1, content)

	for split := 0; split <= len(whole); split += 37 {
		d := New("test:2211")
		var segs []Segment
		d.Feed(whole[:split])
		d.Drain(func(s Segment) { segs = append(segs, s) }, nil)
		d.Feed(whole[split:])
		d.Drain(func(s Segment) { segs = append(segs, s) }, nil)
		require.Len(t, segs, 1, "split at %d", split)
	}
}

func TestFillfileDiscardedByAssemblerNotDecoder(t *testing.T) {
	// The decoder itself has no notion of FILLFILE.TXT (that's an
	// assembler-level rule, spec.md §4.3) — it must still decode and
	// emit the segment like any other.
	d := New("test:2211")
	var segs []Segment
	content := repeatByte(0x20, 1024)
	d.Feed(v1Frame("FILLFILE.TXT", 1, 1, content))
	d.Drain(func(s Segment) { segs = append(segs, s) }, nil)
	require.Len(t, segs, 1)
}

func TestServerListEvent(t *testing.T) {
	d := New("test:2211")
	var updates []ServerListUpdate

	var stream bytes.Buffer
	stream.Write(syncMarker[:])
	stream.WriteString("1/ServerList/host1:2211+host2:2211/SatServers/sat1:2211\r\n")

	d.Feed(stream.Bytes())
	d.Drain(nil, func(u ServerListUpdate) { updates = append(updates, u) })

	require.Len(t, updates, 1)
	require.Equal(t, []string{"host1:2211", "host2:2211"}, updates[0].Primary)
	require.Equal(t, []string{"sat1:2211"}, updates[0].Satellite)
}

func TestMissingRequiredFieldResyncs(t *testing.T) {
	d := New("test:2211")
	var stream bytes.Buffer
	stream.Write(syncMarker[:])
	hdr := buildHeaderFields("/PFNOFIELDS.TXT /PN 1") // missing /PT and /CS
	stream.WriteString(hdr)
	stream.Write(repeatByte(0x11, 1024))

	d.Feed(stream.Bytes())
	var segs []Segment
	d.Drain(func(s Segment) { segs = append(segs, s) }, nil)
	require.Empty(t, segs)
	require.Equal(t, 1, d.Exceptions())
}
