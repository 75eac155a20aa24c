package byteblaster

import (
	"github.com/bradsjm/byte-blaster/internal/assembler"
	"github.com/bradsjm/byte-blaster/internal/decoder"
)

// Segment and CompletedFile are re-exported so callers never need to import
// internal packages directly (spec.md §9 Design Note: one name, no
// deprecated alias — carried through to the public surface as well).
type Segment = decoder.Segment
type CompletedFile = assembler.CompletedFile

// SegmentStream is a scoped, blocking subscription to every decoded
// segment, across every file (spec.md §4.7).
type SegmentStream struct {
	values <-chan Segment
	close  func()
}

// Values returns the channel of segments. Close does not close it; stop
// reading once Close has been called.
func (s *SegmentStream) Values() <-chan Segment { return s.values }

// Close releases the subscription.
func (s *SegmentStream) Close() { s.close() }

// FileStream is a scoped, blocking subscription to every completed file.
type FileStream struct {
	values <-chan CompletedFile
	close  func()
}

// Values returns the channel of completed files. Close does not close it;
// stop reading once Close has been called.
func (s *FileStream) Values() <-chan CompletedFile { return s.values }

// Close releases the subscription.
func (s *FileStream) Close() { s.close() }

// SubscribeSegments registers handler to be called for every decoded
// segment (callback style, drop-oldest on a full queue). The returned func
// unsubscribes.
func (c *Client) SubscribeSegments(handler func(Segment), queueSize int) func() {
	return c.segments.Subscribe(handler, queueSize)
}

// StreamSegments returns a blocking, iterator-style subscription to decoded
// segments.
func (c *Client) StreamSegments(queueSize int) *SegmentStream {
	st := c.segments.Stream(queueSize)
	return &SegmentStream{values: st.Values(), close: st.Close}
}

// SubscribeFiles registers handler to be called for every completed file.
func (c *Client) SubscribeFiles(handler func(CompletedFile), queueSize int) func() {
	return c.files.Subscribe(handler, queueSize)
}

// StreamFiles returns a blocking, iterator-style subscription to completed
// files.
func (c *Client) StreamFiles(queueSize int) *FileStream {
	st := c.files.Stream(queueSize)
	return &FileStream{values: st.Values(), close: st.Close}
}
