package stream

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collectEvents(t *testing.T, ch <-chan Event) []Event {
	t.Helper()
	var out []Event
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-deadline:
			t.Fatal("timed out collecting stream events")
		}
	}
}

func TestRunSequenceStrictlyIncreasingAndSingleTerminal(t *testing.T) {
	t.Parallel()

	raw := make(chan RawEvent, 8)
	raw <- RawEvent{Text: "one "}
	raw <- RawEvent{Text: "two "}
	raw <- RawEvent{Text: "three"}
	raw <- RawEvent{Done: true, FinishReason: FinishEOS, Stats: Stats{CompletionTokens: 3}}
	close(raw)

	events := collectEvents(t, Run(context.Background(), "req-1", nil, raw))
	require.NotEmpty(t, events)

	var lastSeq uint64
	terminalSeen := 0
	for i, ev := range events {
		assert.Equal(t, "req-1", ev.RequestID)
		assert.Greater(t, ev.Sequence, lastSeq, "sequence must strictly increase")
		lastSeq = ev.Sequence
		if ev.Terminal() {
			terminalSeen++
			assert.Equal(t, len(events)-1, i, "terminal event must be last")
		}
	}
	assert.Equal(t, 1, terminalSeen, "exactly one terminal event")
	assert.Equal(t, FinishEOS, events[len(events)-1].FinishReason)
}

func TestRunCrossChunkStopString(t *testing.T) {
	t.Parallel()

	raw := make(chan RawEvent, 4)
	raw <- RawEvent{Text: "Hi there.\n"}
	raw <- RawEvent{Text: "\nUser:"}
	raw <- RawEvent{Done: true, FinishReason: FinishEOS}
	close(raw)

	events := collectEvents(t, Run(context.Background(), "req-2", []string{"\n\nUser:"}, raw))

	var deltas []string
	var finish *Event
	for i := range events {
		ev := events[i]
		if ev.Type == EventDelta {
			deltas = append(deltas, ev.DeltaText)
		}
		if ev.Type == EventFinish {
			finish = &events[i]
		}
	}

	require.Len(t, deltas, 1)
	assert.Equal(t, "Hi there.", deltas[0])
	require.NotNil(t, finish)
	assert.Equal(t, FinishStop, finish.FinishReason)
	for _, d := range deltas {
		assert.NotContains(t, d, "User:")
	}
}

func TestRunCancelMidGeneration(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	raw := make(chan RawEvent)

	out := Run(ctx, "req-3", nil, raw)

	go func() {
		raw <- RawEvent{Text: "a"}
		raw <- RawEvent{Text: "b"}
		raw <- RawEvent{Text: "c"}
	}()

	var seen []Event
	for i := 0; i < 3; i++ {
		seen = append(seen, <-out)
	}
	cancel()

	final := <-out
	assert.Equal(t, EventFinish, final.Type)
	assert.Equal(t, FinishCancel, final.FinishReason)
}

func TestToResultLosslessRoundTrip(t *testing.T) {
	t.Parallel()

	raw := make(chan RawEvent, 4)
	raw <- RawEvent{Text: "The quick "}
	raw <- RawEvent{Text: "brown fox"}
	raw <- RawEvent{Done: true, FinishReason: FinishLength, Stats: Stats{PromptTokens: 5, CompletionTokens: 4}}
	close(raw)

	result := ToResult(Run(context.Background(), "req-4", nil, raw))
	assert.Equal(t, "The quick brown fox", result.Text)
	assert.Equal(t, FinishLength, result.FinishReason)
	assert.Equal(t, Stats{PromptTokens: 5, CompletionTokens: 4}, result.Stats)
}

func TestStopMatcherRetainsAcrossArbitraryChunking(t *testing.T) {
	t.Parallel()

	stopStrings := []string{"STOP"}
	full := "hello worldSTOPignored"

	// Feed one byte at a time; the matcher must still find the match and
	// never emit any part of "STOP" or what follows it.
	m := NewStopMatcher(stopStrings)
	var emitted string
	stopped := false
	for i := 0; i < len(full) && !stopped; i++ {
		e, s := m.Feed(string(full[i]))
		emitted += e
		stopped = s
	}
	require.True(t, stopped)
	assert.Equal(t, "hello world", emitted)
}

func TestStopMatcherFirstConfiguredStringWins(t *testing.T) {
	t.Parallel()

	// "beta" occurs earlier in the text than "alpha", but alpha is first in
	// configuration order, so alpha must be the reported match.
	m := NewStopMatcher([]string{"alpha", "beta"})
	emit, stopped := m.Feed("xxbetaxxalphaxx")
	require.True(t, stopped)
	assert.Equal(t, "xxbetaxx", emit)
}
