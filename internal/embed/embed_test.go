package embed

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "alice smith", Normalize("  Alice\tSMITH \n"))
	assert.Equal(t, "fi", Normalize("ﬁ")) // NFKC ligature
}

func TestCosine(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 1.0, Cosine([]float32{1, 2, 3}, []float32{2, 4, 6}), 1e-9)
	assert.Equal(t, 0.0, Cosine([]float32{1, 0}, []float32{-1, 0}))
	assert.Equal(t, 0.0, Cosine([]float32{1, 0}, []float32{1, 0, 0}))
	assert.Equal(t, 0.0, Cosine([]float32{0, 0}, []float32{1, 0}))
	assert.Equal(t, 0.0, Cosine(nil, nil))
}

func TestNgramEncoder_SelfSimilarity(t *testing.T) {
	t.Parallel()

	enc := NewNgramEncoder(0)
	ctx := context.Background()

	a, err := enc.Encode(ctx, "Alice Smith")
	require.NoError(t, err)
	b, err := enc.Encode(ctx, "alice  smith")
	require.NoError(t, err)
	assert.Len(t, a, DefaultNgramDim)
	assert.InDelta(t, 1.0, Cosine(a, b), 1e-6)

	c, err := enc.Encode(ctx, "Zebra Quantum Logistics")
	require.NoError(t, err)
	assert.Less(t, Cosine(a, c), 0.5)
}

func TestNgramEncoder_Cancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewNgramEncoder(64).Encode(ctx, "x")
	assert.ErrorIs(t, err, context.Canceled)
}

type countingEncoder struct {
	calls atomic.Int32
	err   error
}

func (c *countingEncoder) Encode(_ context.Context, text string) ([]float32, error) {
	c.calls.Add(1)
	if c.err != nil {
		return nil, c.err
	}
	return []float32{float32(len(text)), 1}, nil
}

func (c *countingEncoder) ModelID() string { return "counting" }
func (c *countingEncoder) Close() error    { return nil }

func TestCachedEncoder_Memory(t *testing.T) {
	t.Parallel()

	inner := &countingEncoder{}
	c, err := NewCachedEncoder(inner, "")
	require.NoError(t, err)

	ctx := context.Background()
	v1, err := c.Encode(ctx, "Software Engineer")
	require.NoError(t, err)
	v2, err := c.Encode(ctx, "software engineer")
	require.NoError(t, err)

	assert.Equal(t, v1, v2)
	assert.Equal(t, int32(1), inner.calls.Load())
	assert.Equal(t, 1, c.Len())

	v1[0] = 99
	v3, err := c.Encode(ctx, "Software Engineer")
	require.NoError(t, err)
	assert.NotEqual(t, float32(99), v3[0])
}

func TestCachedEncoder_Disk(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	ctx := context.Background()

	first := &countingEncoder{}
	c1, err := NewCachedEncoder(first, dir)
	require.NoError(t, err)
	want, err := c1.Encode(ctx, "Data Scientist")
	require.NoError(t, err)

	second := &countingEncoder{}
	c2, err := NewCachedEncoder(second, dir)
	require.NoError(t, err)
	got, err := c2.Encode(ctx, "Data Scientist")
	require.NoError(t, err)

	assert.Equal(t, want, got)
	assert.Equal(t, int32(0), second.calls.Load())
}

func TestCachedEncoder_ErrorNotCached(t *testing.T) {
	t.Parallel()

	inner := &countingEncoder{err: errors.New("model down")}
	c, err := NewCachedEncoder(inner, "")
	require.NoError(t, err)

	_, err = c.Encode(context.Background(), "x")
	require.Error(t, err)
	assert.Equal(t, 0, c.Len())
}

func TestMeanPool(t *testing.T) {
	t.Parallel()

	// Two tokens of width 2; the second is masked out.
	got := meanPool([]float32{3, 4, 100, 100}, []int64{1, 0}, 2, 2)
	assert.InDelta(t, 0.6, got[0], 1e-6)
	assert.InDelta(t, 0.8, got[1], 1e-6)
}
