package decoder

import "strings"

// ServerListUpdate is the decoded form of an in-band server-list
// announcement frame.
type ServerListUpdate struct {
	Primary   []string // "host:port" tokens
	Satellite []string // "host:port" tokens
}

const (
	serverListMarker = "/ServerList/"
	satServersMarker = "/SatServers/"
	// maxServerListLine bounds how far SERVER_LIST will scan looking for
	// a CR LF terminator before giving up and resyncing, so a malformed
	// or spoofed frame can't grow the buffer without bound.
	maxServerListLine = 4096
)

// parseServerList parses a server-list frame body (the bytes between the
// sync marker and its terminating CR LF). Per spec §6 the frame format is
// plain ASCII beginning with /ServerList/, "host:port" tokens separated by
// "+", with an optional /SatServers/ subsection. The START_FRAME routing
// rule only guarantees the byte right after the sync marker is alphanumeric
// (not necessarily "/"), so this scans forward for the /ServerList/ marker
// rather than assuming it sits at offset zero — see DESIGN.md.
func parseServerList(line string) (ServerListUpdate, bool) {
	idx := strings.Index(line, serverListMarker)
	if idx < 0 {
		return ServerListUpdate{}, false
	}
	rest := line[idx+len(serverListMarker):]

	primaryPart := rest
	satellitePart := ""
	if satIdx := strings.Index(rest, satServersMarker); satIdx >= 0 {
		primaryPart = rest[:satIdx]
		satellitePart = rest[satIdx+len(satServersMarker):]
	}

	upd := ServerListUpdate{
		Primary:   splitTokens(primaryPart),
		Satellite: splitTokens(satellitePart),
	}
	if len(upd.Primary) == 0 && len(upd.Satellite) == 0 {
		return ServerListUpdate{}, false
	}
	return upd, true
}

func splitTokens(s string) []string {
	s = strings.TrimRight(s, "\r\n")
	if s == "" {
		return nil
	}
	parts := strings.Split(s, "+")
	tokens := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if !strings.Contains(p, ":") {
			continue
		}
		tokens = append(tokens, p)
	}
	return tokens
}
