package proto

import "strings"

// A resource path held as an ordered list of tokens. Path is a value type;
// every operation returns a new Path and never mutates the receiver, so a
// Path can be shared freely between goroutines.
type Path struct {
	tokens []string
}

// Parse a "/"-separated path string. A leading "/" is ignored, trailing empty
// tokens are dropped, and a string with no "/" becomes a single token. The
// empty string and "/" both parse to the root path.
func ParsePath(s string) Path {
	if s == "" {
		return Path{}
	}

	words := strings.Split(s, "/")

	// Trailing empty tokens never survive a parse.
	for len(words) > 0 && words[len(words)-1] == "" {
		words = words[:len(words)-1]
	}

	// Neither does the empty token produced by a leading separator.
	if len(words) > 0 && strings.HasPrefix(s, "/") && words[0] == "" {
		words = words[1:]
	}

	return Path{tokens: words}
}

// Build a path from individual tokens. Each token is added as by Append: a
// single leading "/" is stripped and empty tokens are ignored.
func NewPath(tokens ...string) Path {
	p := Path{}
	for _, t := range tokens {
		p = p.Append(t)
	}
	return p
}

// A path holding a copy of tokens as they are.
func pathOf(tokens []string) Path {
	if len(tokens) == 0 {
		return Path{}
	}
	return Path{tokens: append([]string(nil), tokens...)}
}

// The number of tokens in the path. Zero for the root path.
func (p Path) Len() int {
	return len(p.tokens)
}

// Whether this is the root path "/".
func (p Path) IsRoot() bool {
	return len(p.tokens) == 0
}

// The token at index i. Panics if i is out of range.
func (p Path) Token(i int) string {
	return p.tokens[i]
}

// A copy of the tokens making up the path.
func (p Path) Tokens() []string {
	return append([]string(nil), p.tokens...)
}

// The final token, or "" for the root path.
func (p Path) Last() string {
	if len(p.tokens) == 0 {
		return ""
	}
	return p.tokens[len(p.tokens)-1]
}

// Return the path with token appended. A single leading "/" is stripped from
// the token and an empty token is ignored.
func (p Path) Append(token string) Path {
	token = strings.TrimPrefix(token, "/")
	if token == "" {
		return p
	}

	tokens := make([]string, len(p.tokens), len(p.tokens)+1)
	copy(tokens, p.tokens)
	return Path{tokens: append(tokens, token)}
}

// Return the path with its last token removed. The parent of the root path is
// the root path.
func (p Path) Parent() Path {
	if len(p.tokens) == 0 {
		return p
	}
	return Path{tokens: p.tokens[:len(p.tokens)-1 : len(p.tokens)-1]}
}

// Whether the first tokens of p equal the tokens of prefix. Every path has the
// root path as a prefix.
func (p Path) HasPrefix(prefix Path) bool {
	if len(prefix.tokens) > len(p.tokens) {
		return false
	}
	for i, t := range prefix.tokens {
		if p.tokens[i] != t {
			return false
		}
	}
	return true
}

// Remove prefix from the front of p. Reports false if prefix is not a prefix
// of p. Subtracting a path from itself yields the root path.
func (p Path) Subtract(prefix Path) (Path, bool) {
	if !p.HasPrefix(prefix) {
		return Path{}, false
	}
	return pathOf(p.tokens[len(prefix.tokens):]), true
}

// Like HasPrefix, comparing tokens case-insensitively.
func (p Path) HasPrefixFold(prefix Path) bool {
	if len(prefix.tokens) > len(p.tokens) {
		return false
	}
	for i, t := range prefix.tokens {
		if !strings.EqualFold(p.tokens[i], t) {
			return false
		}
	}
	return true
}

// Like Subtract, comparing tokens case-insensitively.
func (p Path) SubtractFold(prefix Path) (Path, bool) {
	if !p.HasPrefixFold(prefix) {
		return Path{}, false
	}
	return pathOf(p.tokens[len(prefix.tokens):]), true
}

// Token-wise equality.
func (p Path) Equal(o Path) bool {
	return len(p.tokens) == len(o.tokens) && p.HasPrefix(o)
}

// Case-insensitive equality of the rendered forms.
func (p Path) EqualFold(o Path) bool {
	return strings.EqualFold(p.String(), o.String())
}

// Render the path. The result always starts with "/" and the root path
// renders as "/".
func (p Path) String() string {
	if len(p.tokens) == 0 {
		return "/"
	}
	return "/" + strings.Join(p.tokens, "/")
}

//
// Traversal.
//

// A Cursor walks the tokens of a Path one at a time. It is not safe for
// concurrent use, but each goroutine can hold its own cursor over a shared Path.
type Cursor struct {
	path  Path
	index int
}

// Create a cursor positioned before the first token of p.
func (p Path) Cursor() *Cursor {
	return &Cursor{path: p, index: -1}
}

// Advance to the next token. Reports false once the tokens are exhausted.
func (c *Cursor) Next() bool {
	if c.index+1 >= c.path.Len() {
		c.index = c.path.Len()
		return false
	}
	c.index++
	return true
}

// The token under the cursor, or "" when the cursor is not on a token.
func (c *Cursor) Token() string {
	if c.index < 0 || c.index >= c.path.Len() {
		return ""
	}
	return c.path.tokens[c.index]
}

// The index of the token under the cursor.
func (c *Cursor) Index() int {
	return c.index
}

// The tokens not yet visited, as a path.
func (c *Cursor) Rest() Path {
	start := c.index + 1
	if start < 0 {
		start = 0
	}
	if start >= c.path.Len() {
		return Path{}
	}
	return pathOf(c.path.tokens[start:])
}

// Move the cursor back before the first token.
func (c *Cursor) Reset() {
	c.index = -1
}
