package stream

import "strings"

// StopMatcher detects configured stop strings across arbitrary chunk
// boundaries. It buffers at most max(len(s) for s in stopStrings) - 1
// trailing characters between calls to Feed, the minimum needed to catch a
// match split across two chunks.
//
// The buffer is never cleared except by consuming emitted text; a matcher
// that clears its whole buffer on every Feed call would lose a stop string
// straddling a chunk boundary, which is why Feed only ever releases the
// non-retained prefix.
type StopMatcher struct {
	stopStrings []string
	retain      int
	pending     string
}

// NewStopMatcher builds a matcher for the given ordered stop strings.
func NewStopMatcher(stopStrings []string) *StopMatcher {
	retain := 0
	for _, s := range stopStrings {
		if l := len(s); l-1 > retain {
			retain = l - 1
		}
	}
	return &StopMatcher{stopStrings: stopStrings, retain: retain}
}

// Feed appends chunk to the matcher's buffer and returns the text now safe
// to emit. If a configured stop string is found, emit is the text preceding
// the match, stopped is true, and the matcher must not be fed again.
// Otherwise emit is a prefix of the buffer with the last Feed.retain
// characters withheld for the next call, and stopped is false.
func (m *StopMatcher) Feed(chunk string) (emit string, stopped bool) {
	m.pending += chunk

	if idx, ok := m.firstMatch(); ok {
		emit = m.pending[:idx]
		m.pending = ""
		return emit, true
	}

	if len(m.pending) <= m.retain {
		return "", false
	}
	cut := len(m.pending) - m.retain
	emit = m.pending[:cut]
	m.pending = m.pending[cut:]
	return emit, false
}

// Flush returns any remaining buffered text once the underlying token
// stream has ended without a stop match. It must be called at most once,
// after the final Feed.
func (m *StopMatcher) Flush() string {
	rest := m.pending
	m.pending = ""
	return rest
}

// firstMatch scans stopStrings in configured order and returns the buffer
// index of the first one present; per the protocol, configuration order
// breaks ties, not earliest position in the buffer.
func (m *StopMatcher) firstMatch() (int, bool) {
	for _, s := range m.stopStrings {
		if s == "" {
			continue
		}
		if idx := strings.Index(m.pending, s); idx >= 0 {
			return idx, true
		}
	}
	return 0, false
}
