package xorbuffer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAppendPeekConsume(t *testing.T) {
	b := New()
	b.Append([]byte("hello"))
	b.Append([]byte(" world"))
	require.Equal(t, 11, b.Len())

	p, ok := b.Peek(5)
	require.True(t, ok)
	require.Equal(t, "hello", string(p))
	require.Equal(t, 11, b.Len(), "peek must not consume")

	b.Consume(5)
	require.Equal(t, 6, b.Len())

	p, ok = b.Peek(6)
	require.True(t, ok)
	require.Equal(t, " world", string(p))

	_, ok = b.Peek(7)
	require.False(t, ok)
}

func TestArbitraryChunking(t *testing.T) {
	whole := []byte("chunk-independence")
	for split := 0; split <= len(whole); split++ {
		b := New()
		b.Append(whole[:split])
		b.Append(whole[split:])
		got, ok := b.Peek(len(whole))
		require.True(t, ok)
		require.Equal(t, whole, got)
	}
}

func TestIndexOf(t *testing.T) {
	b := New()
	b.Append([]byte{0x00, 0x00, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0x01})
	marker := []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}
	idx := b.IndexOf(marker, 0)
	require.Equal(t, 2, idx)

	require.Equal(t, -1, b.IndexOf([]byte{0xAA}, 0))
}

func TestConsumeThenIndexOfIsRelative(t *testing.T) {
	b := New()
	b.Append([]byte("garbageFOUNDtail"))
	b.Consume(len("garbage"))
	idx := b.IndexOf([]byte("FOUND"), 0)
	require.Equal(t, 0, idx)
}

func TestCompactPreservesUnconsumedBytes(t *testing.T) {
	b := New()
	b.Append(make([]byte, compactThreshold+100))
	b.Append([]byte("tail"))
	b.Consume(compactThreshold + 100)
	require.Equal(t, 4, b.Len())
	b.Compact()
	require.Equal(t, 4, b.Len())
	got, ok := b.Peek(4)
	require.True(t, ok)
	require.Equal(t, "tail", string(got))
}

func TestCompactNoopBelowThreshold(t *testing.T) {
	b := New()
	b.Append([]byte("abcdef"))
	b.Consume(3)
	b.Compact()
	require.Equal(t, 3, b.Len())
}
