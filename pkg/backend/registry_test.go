package backend

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modelrt/corerun/pkg/stream"
)

func TestRegistryGetMissingReturnsFalse(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	_, ok := r.Get("llama.cpp")
	assert.False(t, ok)
}

func TestRegistryRegisterAndGet(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	fake := NewFake("llama.cpp")
	r.Register(fake)

	got, ok := r.Get("llama.cpp")
	require.True(t, ok)
	assert.Same(t, fake, got)
	assert.Equal(t, []string{"llama.cpp"}, r.Names())
}

func TestFakeAdapterStreamEmitsConfiguredDeltas(t *testing.T) {
	t.Parallel()

	fake := NewFake("llama.cpp")
	fake.Deltas = []string{"hello ", "world"}
	fake.FinishReason = stream.FinishEOS

	handle, err := fake.Load(context.Background(), nil, LoadParams{})
	require.NoError(t, err)
	assert.Equal(t, 1, fake.Loaded)

	ch, err := fake.Stream(context.Background(), handle, "prompt", GenerationParams{})
	require.NoError(t, err)

	var texts []string
	var terminal stream.RawEvent
	for ev := range ch {
		if ev.Done {
			terminal = ev
			continue
		}
		texts = append(texts, ev.Text)
	}
	assert.Equal(t, []string{"hello ", "world"}, texts)
	assert.Equal(t, stream.FinishEOS, terminal.FinishReason)

	require.NoError(t, fake.Unload(context.Background(), handle))
	assert.Equal(t, 1, fake.Unloaded)
}

func TestFakeAdapterLoadErr(t *testing.T) {
	t.Parallel()

	fake := NewFake("llama.cpp")
	fake.LoadErr = ErrFakeNotConfigured

	_, err := fake.Load(context.Background(), nil, LoadParams{})
	assert.ErrorIs(t, err, ErrFakeNotConfigured)
}
