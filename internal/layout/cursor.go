package layout

// Cursor walks a token stream with arbitrary look-ahead and push-back.
type Cursor struct {
	tokens []Token
	pos    int
	// pushed holds tokens returned with PushBack, most recent last.
	pushed []Token
}

// NewCursor creates a cursor positioned before the first token
func NewCursor(tokens []Token) *Cursor {
	return &Cursor{tokens: tokens}
}

// Done reports whether the stream is exhausted
func (c *Cursor) Done() bool {
	return len(c.pushed) == 0 && c.pos >= len(c.tokens)
}

// Peek returns the next token without consuming it
func (c *Cursor) Peek() (Token, bool) {
	return c.PeekAt(0)
}

// PeekAt returns the token n positions ahead (0 is the next token)
func (c *Cursor) PeekAt(n int) (Token, bool) {
	if n < 0 {
		return Token{}, false
	}
	if n < len(c.pushed) {
		return c.pushed[len(c.pushed)-1-n], true
	}
	i := c.pos + n - len(c.pushed)
	if i >= len(c.tokens) {
		return Token{}, false
	}
	return c.tokens[i], true
}

// Next consumes and returns the next token
func (c *Cursor) Next() (Token, bool) {
	if n := len(c.pushed); n > 0 {
		t := c.pushed[n-1]
		c.pushed = c.pushed[:n-1]
		return t, true
	}
	if c.pos >= len(c.tokens) {
		return Token{}, false
	}
	t := c.tokens[c.pos]
	c.pos++
	return t, true
}

// PushBack returns a token to the front of the stream
func (c *Cursor) PushBack(t Token) {
	c.pushed = append(c.pushed, t)
}

// Skip consumes n tokens
func (c *Cursor) Skip(n int) {
	for i := 0; i < n; i++ {
		if _, ok := c.Next(); !ok {
			return
		}
	}
}

// Row consumes the next token and every following token on the same
// visual row of the same page.
func (c *Cursor) Row() []Token {
	first, ok := c.Next()
	if !ok {
		return nil
	}
	row := []Token{first}
	for {
		t, ok := c.Peek()
		if !ok || t.Page != first.Page || t.Line != first.Line {
			return row
		}
		c.Next()
		row = append(row, t)
	}
}
