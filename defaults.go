package rollingdb

import "github.com/dustin/go-humanize"

// coalesce returns def when v is the zero value of T - otherwise v.
func coalesce[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}

// bytesHuman renders a byte count for log fields, e.g. "1.2 MB".
func bytesHuman(n uint64) string { return humanize.Bytes(n) }
