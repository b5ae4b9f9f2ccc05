package jsonutil

import "bytes"

// LastObject returns the last balanced top-level JSON object in raw. Bridge
// processes print log lines around their reply, so earlier objects are
// treated as noise.
func LastObject(raw []byte) ([]byte, bool) {
	var (
		last     []byte
		depth    int
		start    = -1
		inString bool
		escape   bool
	)
	for i, ch := range raw {
		if inString {
			switch {
			case escape:
				escape = false
			case ch == '\\':
				escape = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 && start >= 0 {
				last = raw[start : i+1]
				start = -1
			}
		}
	}
	if last == nil {
		return nil, false
	}
	return bytes.TrimSpace(last), true
}
