package proto

import (
	"io"
	"sort"
	"strconv"
)

// Message headers. Names are stored exactly as received.
type Headers map[string]string

func (h Headers) Get(name string) string {
	return h[name]
}

func (h Headers) Has(name string) bool {
	_, ok := h[name]
	return ok
}

func (h Headers) Set(name, value string) {
	h[name] = value
}

func (h Headers) Del(name string) {
	delete(h, name)
}

// Header names in lexical order.
func (h Headers) Names() []string {
	names := make([]string, 0, len(h))
	for n := range h {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (h Headers) Clone() Headers {
	c := make(Headers, len(h))
	for k, v := range h {
		c[k] = v
	}
	return c
}

// Fields shared by requests and responses.
type Message struct {
	Protocol string
	Version  string
	Headers  Headers

	// The body, or nil if the message has none. Whoever consumes the body is
	// responsible for closing it if it implements io.Closer.
	Body io.Reader
}

func (m *Message) applyDefaults() {
	if m.Protocol == "" {
		m.Protocol = DEFAULT_PROTOCOL
	}
	if m.Version == "" {
		m.Version = DEFAULT_VERSION
	}
	if m.Headers == nil {
		m.Headers = Headers{}
	}
}

// The declared Content-Length, or -1 if absent or unparseable.
func (m *Message) ContentLength() int64 {
	v, ok := m.Headers[HEADER_CONTENT_LENGTH]
	if !ok {
		return -1
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return -1
	}
	return n
}

// Close the body if it can be closed.
func (m *Message) CloseBody() error {
	if c, ok := m.Body.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// A request: a method applied to a path on a host.
type ActionMessage struct {
	Message

	Method string

	// An empty host acts as a wildcard when matched against filters.
	Host string
	Port int

	Path  Path
	Query ParameterList
}

// Build a request, filling in defaults: port 80 when port <= 0, protocol HTTP
// when empty, version 1.1.
func NewActionMessage(method, protocol, host string, port int, path Path, query ParameterList, headers Headers, body io.Reader) *ActionMessage {
	m := &ActionMessage{
		Message: Message{
			Protocol: protocol,
			Headers:  headers,
			Body:     body,
		},
		Method: method,
		Host:   host,
		Port:   port,
		Path:   path,
		Query:  query,
	}
	m.applyDefaults()
	return m
}

func (m *ActionMessage) applyDefaults() {
	m.Message.applyDefaults()
	if m.Port <= 0 {
		m.Port = DEFAULT_PORT
	}
}

// The serialised query, without a leading "?".
func (m *ActionMessage) QueryString() string {
	return m.Query.String()
}

// The request target as it appears on the request line: path plus query.
func (m *ActionMessage) Target() string {
	if q := m.QueryString(); q != "" {
		return m.Path.String() + "?" + q
	}
	return m.Path.String()
}

// A response: a status with optional headers and body.
type StatusMessage struct {
	Message

	StatusCode int
	Reason     string
}

// Build a response carrying status. An empty protocol defaults to HTTP.
func NewStatusMessage(status Status, protocol string, headers Headers, body io.Reader) *StatusMessage {
	m := &StatusMessage{
		Message: Message{
			Protocol: protocol,
			Headers:  headers,
			Body:     body,
		},
		StatusCode: status.Code,
		Reason:     status.Reason,
	}
	m.applyDefaults()
	return m
}

func (m *StatusMessage) Status() Status {
	return Status{Code: m.StatusCode, Reason: m.Reason}
}

// Copy the correlation ID of req onto res so that a transport holding req
// open can match res to it. Returns res.
func Correlate(res *StatusMessage, req *ActionMessage) *StatusMessage {
	if id, ok := req.Headers[HEADER_UNIQUE_ID]; ok {
		if res.Headers == nil {
			res.Headers = Headers{}
		}
		res.Headers.Set(HEADER_UNIQUE_ID, id)
	}
	return res
}
