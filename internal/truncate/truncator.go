// Package truncate clamps captured client output before it is persisted,
// keeping the head and tail of oversized streams so both the startup
// banner and the final error survive.
package truncate

import "fmt"

// DefaultLimit bounds one persisted output stream.
const DefaultLimit = 1 << 20

// Clamp returns b unchanged when it fits the limit. Otherwise it keeps
// the leading and trailing portions with a marker naming the omitted
// byte count. A limit of 0 disables clamping.
func Clamp(b []byte, limit int) []byte {
	if limit <= 0 || len(b) <= limit {
		return b
	}

	marker := func(omitted int) []byte {
		return []byte(fmt.Sprintf("\n... [%d bytes omitted] ...\n", omitted))
	}

	// Reserve room for the marker; the marker length depends on the
	// omitted count, so compute with a worst-case estimate first.
	reserve := len(marker(len(b)))
	if limit <= reserve {
		return b[:limit]
	}
	keep := limit - reserve
	head := keep / 2
	tail := keep - head
	omitted := len(b) - head - tail

	out := make([]byte, 0, limit)
	out = append(out, b[:head]...)
	out = append(out, marker(omitted)...)
	out = append(out, b[len(b)-tail:]...)
	return out
}
