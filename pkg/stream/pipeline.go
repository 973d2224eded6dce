package stream

import "context"

// RawEvent is what a backend adapter yields for one step of generation, per
// §"Backend Adapter interface": a sequence of raw deltas followed by exactly
// one terminal reason and final stats.
type RawEvent struct {
	Text     string
	TokenIDs []int

	Done         bool
	FinishReason FinishReason
	Stats        Stats
	Err          error
}

// Run consumes raw from a backend adapter and produces the public Event
// stream for requestID: sequence-numbered, stop-matched, and terminated by
// exactly one finish or error event. Run returns immediately; a goroutine
// produces the events and closes the output channel when it stops. Callers
// should range over the returned channel to completion.
//
// If ctx is cancelled before raw reaches a terminal RawEvent, Run emits
// finish{finishReason=cancel} and stops reading raw.
func Run(ctx context.Context, requestID string, stopStrings []string, raw <-chan RawEvent) <-chan Event {
	out := make(chan Event)
	go func() {
		defer close(out)
		var seq uint64
		// cancelled sends the cancel terminal without a ctx guard: callers
		// range over the channel to completion, so it is always received.
		cancelled := func() {
			seq++
			out <- Event{RequestID: requestID, Sequence: seq, Type: EventFinish, FinishReason: FinishCancel}
		}
		next := func(ev Event) bool {
			seq++
			ev.RequestID = requestID
			ev.Sequence = seq
			select {
			case out <- ev:
				return true
			case <-ctx.Done():
				cancelled()
				return false
			}
		}

		matcher := NewStopMatcher(stopStrings)

		for {
			select {
			case <-ctx.Done():
				cancelled()
				return
			case re, ok := <-raw:
				if !ok {
					return
				}
				if re.Done {
					if re.Err != nil {
						if !next(Event{Type: EventError, FinishReason: FinishError, Err: re.Err}) {
							return
						}
						return
					}
					if tail := matcher.Flush(); tail != "" {
						if !next(Event{Type: EventDelta, DeltaText: tail}) {
							return
						}
					}
					next(Event{Type: EventFinish, FinishReason: re.FinishReason, Stats: re.Stats})
					return
				}

				emit, stopped := matcher.Feed(re.Text)
				if emit != "" {
					if !next(Event{Type: EventDelta, DeltaText: emit, TokenIDs: re.TokenIDs}) {
						return
					}
				}
				if stopped {
					next(Event{Type: EventFinish, FinishReason: FinishStop, Stats: re.Stats})
					return
				}
			}
		}
	}()
	return out
}
