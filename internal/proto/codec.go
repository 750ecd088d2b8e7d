package proto

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"

	"github.com/gologme/log"
)

// Longest request, status or header line the codec accepts.
const MAX_LINE_LENGTH = 8192

// Converts messages to and from their textual wire form:
//
//	METHOD SP target SP PROTOCOL/VERSION CRLF
//	Name: value CRLF
//	...
//	CRLF
//	body
//
// A Codec holds no per-message state and can be shared between goroutines.
type Codec struct {
	logger *log.Logger
}

func NewCodec(logger *log.Logger) *Codec {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Codec{logger: logger}
}

//
// Parsing.
//

// Parse a request from r. The returned message's Body reads the remainder of
// r: bounded by Content-Length when present, the raw chunked framing when
// Transfer-Encoding is chunked, and nil otherwise.
func (c *Codec) ReadActionMessage(r io.Reader) (*ActionMessage, error) {
	br := asBufioReader(r)

	line, err := readLine(br)
	if err != nil {
		return nil, err
	}

	words := splitWhitespace(line, 3)
	if len(words) < 3 {
		return nil, violation(line, "malformed request line")
	}

	m := &ActionMessage{Method: words[0]}

	if err := c.parseRequestTarget(m, words[1]); err != nil {
		return nil, err
	}

	m.Protocol, m.Version, err = parseVersion(words[2])
	if err != nil {
		return nil, err
	}

	m.Headers, err = c.readHeaders(br)
	if err != nil {
		return nil, err
	}

	m.Body = bodyReader(m.Headers, br, false)
	m.applyDefaults()

	return m, nil
}

// Parse a response from r. The returned message's Body reads the remainder of
// r: bounded by Content-Length when present, otherwise up to end of stream.
func (c *Codec) ReadStatusMessage(r io.Reader) (*StatusMessage, error) {
	br := asBufioReader(r)

	line, err := readLine(br)
	if err != nil {
		return nil, err
	}

	// The reason phrase may itself contain spaces.
	words := splitWhitespace(line, 3)
	if len(words) < 3 {
		return nil, violation(line, "malformed status line")
	}

	m := &StatusMessage{Reason: words[2]}

	m.Protocol, m.Version, err = parseVersion(words[0])
	if err != nil {
		return nil, err
	}

	m.StatusCode, err = strconv.Atoi(words[1])
	if err != nil {
		return nil, violation(line, "malformed status code")
	}

	m.Headers, err = c.readHeaders(br)
	if err != nil {
		return nil, err
	}

	m.Body = bodyReader(m.Headers, br, true)
	m.applyDefaults()

	return m, nil
}

// Accepts either an absolute target (proto://host[:port]/path?query) or a
// relative one (/path?query).
func (c *Codec) parseRequestTarget(m *ActionMessage, target string) error {
	rest := target

	if i := strings.Index(rest, "://"); i >= 0 {
		rest = rest[i+3:]

		authority := rest
		if j := strings.IndexByte(rest, '/'); j >= 0 {
			authority, rest = rest[:j], rest[j:]
		} else {
			rest = "/"
		}

		if strings.Contains(authority, ":") {
			host, rawPort, err := net.SplitHostPort(authority)
			if err != nil {
				return violation(target, "malformed request uri authority")
			}
			port, err := strconv.Atoi(rawPort)
			if err != nil {
				return violation(target, "malformed request uri port")
			}
			m.Host, m.Port = host, port
		} else {
			m.Host = authority
		}
	} else if !strings.HasPrefix(rest, "/") {
		return violation(target, "malformed request uri")
	}

	rawPath, rawQuery, _ := strings.Cut(rest, "?")
	m.Path = ParsePath(rawPath)

	query, err := ParseQuery(rawQuery)
	if err != nil {
		c.logger.Warnf("discarding query of %s: %v", target, err)
	}
	m.Query = query

	return nil
}

// Parse the header block up to and including the blank line which ends it.
// Lines without a name and ":" are skipped. End of stream also ends the block.
func (c *Codec) readHeaders(br *bufio.Reader) (Headers, error) {
	h := Headers{}

	for {
		line, err := readLine(br)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return h, nil
			}
			return h, err
		}

		if line == "" {
			return h, nil
		}

		name, value, ok := strings.Cut(line, ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			c.logger.Debugf("skipping malformed header line %q", line)
			continue
		}

		h[name] = strings.TrimSpace(value)
	}
}

func parseVersion(token string) (string, string, error) {
	parts := strings.Split(token, "/")
	if len(parts) != 2 {
		return "", "", violation(token, "malformed protocol version")
	}
	return parts[0], parts[1], nil
}

func bodyReader(h Headers, br *bufio.Reader, untilEOF bool) io.Reader {
	if strings.EqualFold(h.Get(HEADER_TRANSFER_ENCODING), TRANSFER_ENCODING_CHUNKED) {
		return br
	}

	if v, ok := h[HEADER_CONTENT_LENGTH]; ok {
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err == nil && n >= 0 {
			if n == 0 {
				return nil
			}
			return io.LimitReader(br, n)
		}
	}

	if untilEOF {
		return br
	}
	return nil
}

func asBufioReader(r io.Reader) *bufio.Reader {
	if br, ok := r.(*bufio.Reader); ok {
		return br
	}
	return bufio.NewReader(r)
}

// Read one line terminated by CRLF. Stray CR and LF bytes are dropped. Data
// cut off by end of stream is returned as a final line; an empty stream
// yields io.EOF.
func readLine(br *bufio.Reader) (string, error) {
	var sb strings.Builder
	sawCR := false
	read := false

	for {
		b, err := br.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) && read {
				return sb.String(), nil
			}
			return sb.String(), err
		}
		read = true

		switch b {
		case '\r':
			sawCR = true
		case '\n':
			if sawCR {
				return sb.String(), nil
			}
		default:
			sawCR = false
			if sb.Len() >= MAX_LINE_LENGTH {
				return "", violation("", "line too long")
			}
			sb.WriteByte(b)
		}
	}
}

// Split s at single whitespace characters into at most n fields. The last
// field holds the unsplit remainder.
func splitWhitespace(s string, n int) []string {
	var out []string
	start := 0
	for i := 0; i < len(s) && len(out) < n-1; i++ {
		switch s[i] {
		case ' ', '\t', '\f', '\v':
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	return append(out, s[start:])
}

//
// Serialisation.
//

// The request line and header block of m, including the terminating blank line.
func (c *Codec) ActionHeaderBytes(m *ActionMessage) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "%s %s %s/%s%s", m.Method, m.Target(), orDefault(m.Protocol, DEFAULT_PROTOCOL), orDefault(m.Version, DEFAULT_VERSION), CRLF)
	writeHeaders(&b, m.Headers)
	return b.Bytes()
}

// The status line and header block of m, including the terminating blank line.
func (c *Codec) StatusHeaderBytes(m *StatusMessage) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "%s/%s %d %s%s", orDefault(m.Protocol, DEFAULT_PROTOCOL), orDefault(m.Version, DEFAULT_VERSION), m.StatusCode, m.Reason, CRLF)
	writeHeaders(&b, m.Headers)
	return b.Bytes()
}

// A stream of the full serialised request. The body is copied on a separate
// goroutine and closed once drained.
func (c *Codec) ActionStream(m *ActionMessage) io.ReadCloser {
	return c.stream(c.ActionHeaderBytes(m), &m.Message)
}

// A stream of the full serialised response. The body is copied on a separate
// goroutine and closed once drained.
func (c *Codec) StatusStream(m *StatusMessage) io.ReadCloser {
	return c.stream(c.StatusHeaderBytes(m), &m.Message)
}

// Write the serialised request to w.
func (c *Codec) WriteAction(w io.Writer, m *ActionMessage) error {
	rc := c.ActionStream(m)
	defer rc.Close()

	_, err := io.Copy(w, rc)
	return err
}

// Write the serialised response to w.
func (c *Codec) WriteStatus(w io.Writer, m *StatusMessage) error {
	rc := c.StatusStream(m)
	defer rc.Close()

	_, err := io.Copy(w, rc)
	return err
}

// The serialised request held entirely in memory, body included.
func (c *Codec) ActionBytes(m *ActionMessage) ([]byte, error) {
	head := c.ActionHeaderBytes(m)
	if m.Body == nil {
		return head, nil
	}
	defer m.CloseBody()

	body, err := io.ReadAll(m.Body)
	if err != nil {
		return nil, fmt.Errorf("error while reading message body: %w", err)
	}
	return append(head, body...), nil
}

func (c *Codec) stream(head []byte, m *Message) io.ReadCloser {
	pr, pw := io.Pipe()

	go func() {
		if _, err := pw.Write(head); err != nil {
			pw.CloseWithError(err)
			return
		}

		if m.Body == nil {
			pw.Close()
			return
		}
		defer m.CloseBody()

		buf := make([]byte, STREAM_COPY_BUFFER)
		for {
			n, err := m.Body.Read(buf)
			if n > 0 {
				if _, werr := pw.Write(buf[:n]); werr != nil {
					c.logger.Debugf("body copy aborted: %v", werr)
					return
				}
			}
			if err != nil {
				if errors.Is(err, io.EOF) {
					pw.Close()
				} else {
					pw.CloseWithError(err)
				}
				return
			}
		}
	}()

	return pr
}

func writeHeaders(b *bytes.Buffer, h Headers) {
	for _, name := range h.Names() {
		b.WriteString(name)
		b.WriteString(": ")
		b.WriteString(h[name])
		b.WriteString(CRLF)
	}
	b.WriteString(CRLF)
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
