package stream

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"sync"

	"dev.l1qu1d.net/wraith-labs/restac/internal/proto"
)

// A writable message body which can be attached to a new message.
type Output interface {
	// Write a unit of the body.
	Write(p []byte) error

	// Write all of p and finish the body.
	WriteBuffered(p []byte) error

	// The body as it will be read by the message consumer.
	Reader() io.Reader

	// Build a request carrying this body. Framing headers are added to headers.
	ActionMessage(method, protocol, host string, port int, path proto.Path, query proto.ParameterList, headers proto.Headers) *proto.ActionMessage

	// Build a response carrying this body. Framing headers are added to headers.
	StatusMessage(status proto.Status, protocol string, headers proto.Headers) *proto.StatusMessage
}

func withHeaders(h proto.Headers) proto.Headers {
	if h == nil {
		return proto.Headers{}
	}
	return h
}

//
// Plain.
//

// A Content-Length delimited body held in memory.
type PlainOutput struct {
	lock        sync.Mutex
	buf         bytes.Buffer
	contentType string
	charset     string
}

func NewPlainOutput(contentType, charset string) *PlainOutput {
	return &PlainOutput{contentType: contentType, charset: charset}
}

func (o *PlainOutput) Write(p []byte) error {
	o.lock.Lock()
	defer o.lock.Unlock()

	o.buf.Write(p)
	return nil
}

func (o *PlainOutput) WriteBuffered(p []byte) error {
	return o.Write(p)
}

func (o *PlainOutput) Reader() io.Reader {
	o.lock.Lock()
	defer o.lock.Unlock()

	return bytes.NewReader(append([]byte(nil), o.buf.Bytes()...))
}

func (o *PlainOutput) Len() int {
	o.lock.Lock()
	defer o.lock.Unlock()

	return o.buf.Len()
}

func (o *PlainOutput) stamp(h proto.Headers) proto.Headers {
	h = withHeaders(h)
	if o.contentType != "" {
		h.Set(proto.HEADER_CONTENT_TYPE, FormatContentType(o.contentType, o.charset))
	}
	h.Set(proto.HEADER_CONTENT_LENGTH, strconv.Itoa(o.Len()))
	return h
}

func (o *PlainOutput) ActionMessage(method, protocol, host string, port int, path proto.Path, query proto.ParameterList, headers proto.Headers) *proto.ActionMessage {
	return proto.NewActionMessage(method, protocol, host, port, path, query, o.stamp(headers), o.Reader())
}

func (o *PlainOutput) StatusMessage(status proto.Status, protocol string, headers proto.Headers) *proto.StatusMessage {
	return proto.NewStatusMessage(status, protocol, o.stamp(headers), o.Reader())
}

//
// Chunked.
//

// A chunked body streamed through a pipe. Writes block until the consumer
// reads them, so the producer normally runs on its own goroutine.
type ChunkedOutput struct {
	MaxChunkSize int

	lock        sync.Mutex
	closed      bool
	pr          *io.PipeReader
	pw          *io.PipeWriter
	contentType string
	charset     string
}

func NewChunkedOutput(contentType, charset string) *ChunkedOutput {
	pr, pw := io.Pipe()
	return &ChunkedOutput{
		MaxChunkSize: proto.MAX_CHUNK_SIZE,
		pr:           pr,
		pw:           pw,
		contentType:  contentType,
		charset:      charset,
	}
}

// Emit p as a single chunk. An empty p ends the body.
func (o *ChunkedOutput) Write(p []byte) error {
	if len(p) == 0 {
		return o.Close()
	}

	o.lock.Lock()
	defer o.lock.Unlock()

	if o.closed {
		return io.ErrClosedPipe
	}

	if _, err := fmt.Fprintf(o.pw, "%x%s", len(p), proto.CRLF); err != nil {
		return err
	}
	if _, err := o.pw.Write(p); err != nil {
		return err
	}
	_, err := io.WriteString(o.pw, proto.CRLF)
	return err
}

// Split p into chunks of at most MaxChunkSize and emit them on a separate
// goroutine, followed by the terminating chunk.
func (o *ChunkedOutput) WriteBuffered(p []byte) error {
	data := append([]byte(nil), p...)

	go func() {
		size := o.MaxChunkSize
		if size <= 0 {
			size = proto.MAX_CHUNK_SIZE
		}

		for len(data) > 0 {
			n := size
			if n > len(data) {
				n = len(data)
			}
			if err := o.Write(data[:n]); err != nil {
				o.pw.CloseWithError(err)
				return
			}
			data = data[n:]
		}
		o.Close()
	}()

	return nil
}

// Emit the terminating chunk and close the stream. Further calls do nothing.
func (o *ChunkedOutput) Close() error {
	o.lock.Lock()
	defer o.lock.Unlock()

	if o.closed {
		return nil
	}
	o.closed = true

	_, err := io.WriteString(o.pw, "0"+proto.CRLF+proto.CRLF)
	o.pw.Close()
	return err
}

func (o *ChunkedOutput) Reader() io.Reader {
	return o.pr
}

func (o *ChunkedOutput) stamp(h proto.Headers) proto.Headers {
	h = withHeaders(h)
	if o.contentType != "" {
		h.Set(proto.HEADER_CONTENT_TYPE, FormatContentType(o.contentType, o.charset))
	}
	h.Set(proto.HEADER_TRANSFER_ENCODING, proto.TRANSFER_ENCODING_CHUNKED)
	h.Del(proto.HEADER_CONTENT_LENGTH)
	return h
}

func (o *ChunkedOutput) ActionMessage(method, protocol, host string, port int, path proto.Path, query proto.ParameterList, headers proto.Headers) *proto.ActionMessage {
	return proto.NewActionMessage(method, protocol, host, port, path, query, o.stamp(headers), o.pr)
}

func (o *ChunkedOutput) StatusMessage(status proto.Status, protocol string, headers proto.Headers) *proto.StatusMessage {
	return proto.NewStatusMessage(status, protocol, o.stamp(headers), o.pr)
}
