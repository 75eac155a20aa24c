package decoder

import (
	"sort"
	"strconv"
	"strings"
	"time"
)

// headerLen is the fixed size, in bytes, of a QBT block header including
// its CR LF terminator.
const headerLen = 80

// fdLayout matches /FD's unpadded month/day/hour, per spec: MM/DD/YYYY
// hh:mm:ss AM|PM. Go's reference-time numeric fields ("1", "2", "3") parse
// both padded and unpadded input, so this layout covers both wire variants.
const fdLayout = "1/2/2006 3:04:05 PM"

// header is the parsed form of a QBT block header.
type header struct {
	filename         string
	blockNumber      int
	totalBlocks      int
	checksum         uint32
	fileTimestamp    time.Time
	declaredLength   int // 0 unless /DL present
	isV2             bool
	raw              string
}

// knownTags is the set of field markers the header parser recognizes, in
// the order they're looked for. A direct positional scan (not a regex) is
// used per the spec's own design note: it is precise about field
// boundaries and tolerates /FD's embedded spaces.
var knownTags = []string{"PF", "PN", "PT", "CS", "FD", "DL"}

type tagHit struct {
	tag   string
	start int // index of the first byte of the value, i.e. just after "/XX"
}

// parseHeader extracts the recognized fields from an 80-byte raw header.
// Missing /PF, /PN, /PT, or /CS is reported as an error; the caller resets
// to RESYNC on any error. A malformed /FD is not an error: per spec it
// downgrades the frame to V1 with an epoch timestamp but does not abort.
func parseHeader(raw string) (header, error) {
	hits := scanTags(raw)
	values := sliceValues(raw, hits)

	h := header{raw: raw}

	pf, ok := values["PF"]
	if !ok {
		return header{}, errMissingField("PF")
	}
	h.filename = firstToken(pf)
	if h.filename == "" {
		return header{}, errMissingField("PF")
	}

	pn, ok := values["PN"]
	if !ok {
		return header{}, errMissingField("PN")
	}
	n, err := strconv.Atoi(strings.TrimSpace(pn))
	if err != nil {
		return header{}, errMissingField("PN")
	}
	h.blockNumber = n

	pt, ok := values["PT"]
	if !ok {
		return header{}, errMissingField("PT")
	}
	total, err := strconv.Atoi(strings.TrimSpace(pt))
	if err != nil {
		return header{}, errMissingField("PT")
	}
	h.totalBlocks = total

	cs, ok := values["CS"]
	if !ok {
		return header{}, errMissingField("CS")
	}
	checksum, err := strconv.ParseUint(strings.TrimSpace(cs), 10, 32)
	if err != nil {
		return header{}, errMissingField("CS")
	}
	h.checksum = uint32(checksum)

	if dl, ok := values["DL"]; ok {
		length, err := strconv.Atoi(strings.TrimSpace(dl))
		if err == nil {
			h.declaredLength = length
			h.isV2 = true
		}
	}

	if fd, ok := values["FD"]; ok {
		ts, err := time.ParseInLocation(fdLayout, strings.TrimSpace(fd), time.UTC)
		if err == nil {
			h.fileTimestamp = ts
		} else {
			h.fileTimestamp = time.Unix(0, 0).UTC()
			h.isV2 = false
			h.declaredLength = 0
		}
	} else {
		h.fileTimestamp = time.Unix(0, 0).UTC()
	}

	return h, nil
}

func scanTags(raw string) []tagHit {
	var hits []tagHit
	for i := 0; i+2 < len(raw); i++ {
		if raw[i] != '/' {
			continue
		}
		tag := raw[i+1 : i+3]
		for _, known := range knownTags {
			if tag == known {
				hits = append(hits, tagHit{tag: known, start: i + 3})
				break
			}
		}
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].start < hits[j].start })
	return hits
}

// sliceValues turns positionally-sorted tag hits into a tag->trimmed-value
// map, where each value spans from its tag to the start of the next tag
// marker (or end of header).
func sliceValues(raw string, hits []tagHit) map[string]string {
	values := make(map[string]string, len(hits))
	for i, h := range hits {
		end := len(raw)
		if i+1 < len(hits) {
			end = hits[i+1].start - 3 // back up over the next tag's "/XX"
		}
		if end < h.start {
			end = h.start
		}
		v := raw[h.start:end]
		v = strings.Trim(v, " \t\r\n")
		if _, exists := values[h.tag]; !exists {
			values[h.tag] = v
		}
	}
	return values
}

func firstToken(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexAny(s, " \t\r\n"); i >= 0 {
		return s[:i]
	}
	return s
}

type missingFieldError struct{ field string }

func (e *missingFieldError) Error() string { return "decoder: missing required field " + e.field }

func errMissingField(field string) error { return &missingFieldError{field: field} }
