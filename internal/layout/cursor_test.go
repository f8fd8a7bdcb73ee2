package layout

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursorPeekAndNext(t *testing.T) {
	c := NewCursor([]Token{{Text: "a"}, {Text: "b"}, {Text: "c"}})

	tok, ok := c.Peek()
	require.True(t, ok)
	assert.Equal(t, "a", tok.Text)

	tok, ok = c.PeekAt(2)
	require.True(t, ok)
	assert.Equal(t, "c", tok.Text)

	_, ok = c.PeekAt(3)
	assert.False(t, ok)
	_, ok = c.PeekAt(-1)
	assert.False(t, ok)

	tok, _ = c.Next()
	assert.Equal(t, "a", tok.Text)
	c.Skip(2)
	assert.True(t, c.Done())

	_, ok = c.Next()
	assert.False(t, ok)
}

func TestCursorPushBack(t *testing.T) {
	c := NewCursor([]Token{{Text: "a"}, {Text: "b"}})
	first, _ := c.Next()
	second, _ := c.Next()
	require.True(t, c.Done())

	c.PushBack(second)
	c.PushBack(first)
	assert.False(t, c.Done())

	tok, _ := c.PeekAt(1)
	assert.Equal(t, "b", tok.Text)

	tok, _ = c.Next()
	assert.Equal(t, "a", tok.Text)
	tok, _ = c.Next()
	assert.Equal(t, "b", tok.Text)
	assert.True(t, c.Done())
}

func TestCursorPeekAtSpansPushBack(t *testing.T) {
	c := NewCursor([]Token{{Text: "a"}, {Text: "b"}, {Text: "c"}})
	a, _ := c.Next()
	c.PushBack(a)

	tok, ok := c.PeekAt(1)
	require.True(t, ok)
	assert.Equal(t, "b", tok.Text)
	tok, ok = c.PeekAt(2)
	require.True(t, ok)
	assert.Equal(t, "c", tok.Text)
}

func TestCursorRow(t *testing.T) {
	c := NewCursor([]Token{
		{Text: "TE", Line: 1},
		{Text: "3.5", Line: 1},
		{Text: "ms", Line: 1},
		{Text: "TR", Line: 2},
		{Text: "TI", Page: 1, Line: 2},
	})

	row := c.Row()
	require.Len(t, row, 3)
	assert.Equal(t, "ms", row[2].Text)

	row = c.Row()
	require.Len(t, row, 1, "tokens of another page never share a row")
	assert.Equal(t, "TR", row[0].Text)

	assert.Len(t, c.Row(), 1)
	assert.Nil(t, c.Row())
}
