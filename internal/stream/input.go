package stream

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"dev.l1qu1d.net/wraith-labs/restac/internal/proto"
)

var ErrMalformedChunk = errors.New("malformed chunk")

// A readable message body.
type Input interface {
	// Read the next unit of the body: the whole body for plain streams, a single
	// chunk for chunked streams. Returns io.EOF once the body is exhausted.
	Read() ([]byte, error)

	// Read everything that remains.
	ReadBuffered() ([]byte, error)

	ContentType() string
	Charset() string
}

// Wrap the body of m in the appropriate input stream. Returns nil if m has no body.
func NewInput(m *proto.Message) Input {
	if m.Body == nil {
		return nil
	}

	contentType, charset := ParseContentType(m.Headers.Get(proto.HEADER_CONTENT_TYPE))

	if IsChunked(m) {
		return NewChunkedInput(m.Body, contentType, charset)
	}
	return NewPlainInput(m.Body, m.ContentLength(), contentType, charset)
}

//
// Plain.
//

type PlainInput struct {
	r           io.Reader
	length      int64
	contentType string
	charset     string
	done        bool
}

// A body of exactly length bytes. A negative length is treated as zero.
func NewPlainInput(r io.Reader, length int64, contentType, charset string) *PlainInput {
	if length < 0 {
		length = 0
	}
	return &PlainInput{r: r, length: length, contentType: contentType, charset: charset}
}

func (in *PlainInput) Read() ([]byte, error) {
	if in.done {
		return nil, io.EOF
	}
	in.done = true

	buf := make([]byte, in.length)
	n, err := io.ReadFull(in.r, buf)
	if err != nil && !errors.Is(err, io.EOF) {
		return buf[:n], err
	}
	return buf[:n], nil
}

func (in *PlainInput) ReadBuffered() ([]byte, error) {
	b, err := in.Read()
	if errors.Is(err, io.EOF) {
		return []byte{}, nil
	}
	return b, err
}

func (in *PlainInput) ContentType() string { return in.contentType }
func (in *PlainInput) Charset() string     { return in.charset }

//
// Chunked.
//

type ChunkedInput struct {
	r           *bufio.Reader
	contentType string
	charset     string
	done        bool
}

func NewChunkedInput(r io.Reader, contentType, charset string) *ChunkedInput {
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReader(r)
	}
	return &ChunkedInput{r: br, contentType: contentType, charset: charset}
}

// Read a single chunk. The terminating zero-size chunk yields io.EOF.
func (in *ChunkedInput) Read() ([]byte, error) {
	if in.done {
		return nil, io.EOF
	}

	line, err := in.readLine()
	if err != nil {
		return nil, err
	}

	// Chunk extensions are ignored.
	sizeField, _, _ := strings.Cut(line, ";")
	size, err := strconv.ParseInt(strings.TrimSpace(sizeField), 16, 64)
	if err != nil || size < 0 {
		return nil, fmt.Errorf("%w: bad size line %q", ErrMalformedChunk, line)
	}

	if size == 0 {
		in.done = true
		in.skipTrailer()
		return nil, io.EOF
	}

	data := make([]byte, size)
	if _, err := io.ReadFull(in.r, data); err != nil {
		return nil, fmt.Errorf("%w: short chunk: %v", ErrMalformedChunk, err)
	}

	// Every chunk is followed by a CRLF.
	if rest, err := in.readLine(); err != nil || rest != "" {
		return nil, fmt.Errorf("%w: missing chunk terminator", ErrMalformedChunk)
	}

	return data, nil
}

func (in *ChunkedInput) ReadBuffered() ([]byte, error) {
	var all bytes.Buffer
	for {
		chunk, err := in.Read()
		if errors.Is(err, io.EOF) {
			return all.Bytes(), nil
		}
		if err != nil {
			return all.Bytes(), err
		}
		all.Write(chunk)
	}
}

func (in *ChunkedInput) ContentType() string { return in.contentType }
func (in *ChunkedInput) Charset() string     { return in.charset }

// Trailers are not supported; consume the final blank line only. Any extra
// CRLF left by older peers stays unread.
func (in *ChunkedInput) skipTrailer() {
	_, _ = in.readLine()
}

func (in *ChunkedInput) readLine() (string, error) {
	line, err := in.r.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && line != "" {
			return strings.TrimRight(line, "\r\n"), nil
		}
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
