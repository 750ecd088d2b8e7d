// Package resource serves REST resources mounted below a root path, routing
// each request by method and path suffix to a registered function.
package resource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"dev.l1qu1d.net/wraith-labs/restac/internal/content"
	"dev.l1qu1d.net/wraith-labs/restac/internal/dispatch"
	"dev.l1qu1d.net/wraith-labs/restac/internal/proto"
	"dev.l1qu1d.net/wraith-labs/restac/internal/stream"
	"github.com/gologme/log"
)

// Serves one method on one node. A nil output with a nil error means the
// node had nothing to return.
type Func func(ctx context.Context, req *Request) (stream.Output, error)

// A request as seen by a resource function.
type Request struct {
	*proto.ActionMessage

	// The request path with the mount root removed.
	Suffix proto.Path

	// Values captured by {name} segments of the route.
	Vars map[string]string

	// The request body, nil when there is none.
	Input stream.Input

	content *content.Registry
}

func (r *Request) Var(name string) string {
	return r.Vars[name]
}

// Convert the request body into v according to its media type.
func (r *Request) Decode(v any) error {
	if r.Input == nil {
		return NewError(proto.STATUS_BAD_REQUEST, "request has no body")
	}

	data, err := r.Input.ReadBuffered()
	if err != nil {
		return Errorf(proto.STATUS_BAD_REQUEST, "reading body: %v", err)
	}
	return r.content.Decode(r.Input.ContentType(), r.Input.Charset(), data, v)
}

// Encode v as mediaType into a new plain output, using the request charset
// when one was declared.
func (r *Request) Encode(mediaType string, v any) (stream.Output, error) {
	charset := proto.DEFAULT_CHARSET
	if r.Input != nil && r.Input.Charset() != "" {
		charset = r.Input.Charset()
	}

	data, err := r.content.Encode(mediaType, charset, v)
	if err != nil {
		return nil, err
	}

	out := stream.NewPlainOutput(mediaType, charset)
	return out, out.WriteBuffered(data)
}

type route struct {
	method   string
	pattern  []string
	literals int
	fn       Func
}

func (rt route) match(tokens []string) (map[string]string, bool) {
	if len(rt.pattern) != len(tokens) {
		return nil, false
	}

	var vars map[string]string
	for i, p := range rt.pattern {
		if name, ok := varName(p); ok {
			if vars == nil {
				vars = map[string]string{}
			}
			vars[name] = tokens[i]
			continue
		}
		if !strings.EqualFold(p, tokens[i]) {
			return nil, false
		}
	}
	return vars, true
}

func varName(segment string) (string, bool) {
	if len(segment) > 2 && strings.HasPrefix(segment, "{") && strings.HasSuffix(segment, "}") {
		return segment[1 : len(segment)-1], true
	}
	return "", false
}

// A resource mounted at the path of its filter.
type Resource struct {
	filter  dispatch.ResourceFilter
	handler *dispatch.Handler
	logger  *log.Logger

	lock      sync.RWMutex
	routes    []route
	content   *content.Registry
	registrar dispatch.Registrar
}

func New(filter dispatch.ResourceFilter, logger *log.Logger) *Resource {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	r := &Resource{
		filter:  filter,
		logger:  logger,
		content: content.Default(),
	}
	r.handler = &dispatch.Handler{
		Name: "resource " + filter.Root().String(),
		Sync: r.serve,
	}
	return r
}

// Route method requests for suffix to fn. Segments written as {name} match
// any token and capture it.
func (r *Resource) Handle(method, suffix string, fn Func) *Resource {
	rt := route{
		method:  strings.ToUpper(method),
		pattern: proto.ParsePath(suffix).Tokens(),
		fn:      fn,
	}
	for _, p := range rt.pattern {
		if _, ok := varName(p); !ok {
			rt.literals++
		}
	}

	r.lock.Lock()
	defer r.lock.Unlock()

	r.routes = append(r.routes, rt)
	return r
}

// Replace the converters used by Request.Decode and Request.Encode.
func (r *Resource) SetContent(reg *content.Registry) {
	r.lock.Lock()
	defer r.lock.Unlock()

	r.content = reg
}

func (r *Resource) Filter() dispatch.ResourceFilter {
	return r.filter
}

func (r *Resource) Handler() *dispatch.Handler {
	return r.handler
}

// Register the resource with reg, replacing any previous registration.
func (r *Resource) Register(reg dispatch.Registrar) {
	r.Unregister()

	r.lock.Lock()
	defer r.lock.Unlock()

	r.registrar = reg
	reg.Register(r.filter, r.handler)
}

func (r *Resource) Unregister() {
	r.lock.Lock()
	defer r.lock.Unlock()

	if r.registrar != nil {
		r.registrar.Unregister(r.filter, r.handler)
		r.registrar = nil
	}
}

//
// Serving.
//

// Pick the route for method among those matching tokens. Returns the methods
// the node supports when none serves method; known reports whether any route
// matched the node at all.
func (r *Resource) lookup(method string, tokens []string) (rt route, vars map[string]string, allow []string, known bool) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	found := false
	seen := map[string]bool{}

	for _, candidate := range r.routes {
		v, ok := candidate.match(tokens)
		if !ok {
			continue
		}
		known = true

		if candidate.method != method {
			if !seen[candidate.method] {
				seen[candidate.method] = true
				allow = append(allow, candidate.method)
			}
			continue
		}
		if !found || candidate.literals > rt.literals {
			rt, vars, found = candidate, v, true
		}
	}

	if found {
		return rt, vars, nil, true
	}
	sort.Strings(allow)
	return route{}, nil, allow, known
}

func (r *Resource) serve(ctx context.Context, msg *proto.ActionMessage) (*proto.StatusMessage, error) {
	respond := func(status proto.Status, headers proto.Headers, text string) *proto.StatusMessage {
		var res *proto.StatusMessage
		if text == "" {
			res = proto.NewStatusMessage(status, msg.Protocol, headers, nil)
		} else {
			out := stream.NewPlainOutput(proto.MIME_TEXT_PLAIN, proto.DEFAULT_CHARSET)
			_ = out.WriteBuffered([]byte(text))
			res = out.StatusMessage(status, msg.Protocol, headers)
		}
		return proto.Correlate(res, msg)
	}

	suffix, ok := msg.Path.SubtractFold(r.filter.Root())
	if !ok {
		return respond(proto.STATUS_NOT_FOUND, nil, ""), nil
	}

	method := strings.ToUpper(msg.Method)
	rt, vars, allow, known := r.lookup(method, suffix.Tokens())
	if !known {
		r.logger.Debugf("resource %s has no node %s", r.filter.Root(), suffix)
		return respond(proto.STATUS_NOT_FOUND, nil, ""), nil
	}
	if rt.fn == nil {
		return respond(proto.STATUS_METHOD_NOT_ALLOWED, proto.Headers{proto.HEADER_ALLOW: strings.Join(allow, ", ")}, ""), nil
	}

	r.lock.RLock()
	reg := r.content
	r.lock.RUnlock()

	req := &Request{
		ActionMessage: msg,
		Suffix:        suffix,
		Vars:          vars,
		Input:         stream.NewInput(&msg.Message),
		content:       reg,
	}

	out, err := rt.fn(ctx, req)
	if err != nil {
		var rerr *Error
		switch {
		case errors.As(err, &rerr):
			return respond(rerr.Status, nil, rerr.Message), nil
		case errors.Is(err, content.ErrConversion):
			return respond(proto.STATUS_UNSUPPORTED_MEDIA_TYPE, nil, err.Error()), nil
		default:
			r.logger.Warnf("resource %s failed on %s %s: %v", r.filter.Root(), method, suffix, err)
			return respond(proto.STATUS_INTERNAL_SERVER_ERROR, nil, ""), nil
		}
	}

	if out == nil {
		if method == proto.METHOD_GET || method == proto.METHOD_POST {
			return respond(proto.STATUS_NO_CONTENT, nil, ""), nil
		}
		return respond(proto.STATUS_OK, nil, ""), nil
	}
	return proto.Correlate(out.StatusMessage(proto.STATUS_OK, msg.Protocol, nil), msg), nil
}

//
// Errors.
//

// A failure that maps onto a specific response status. Message, when set, is
// sent back as a text/plain body.
type Error struct {
	Status  proto.Status
	Message string
}

func NewError(status proto.Status, message string) *Error {
	return &Error{Status: status, Message: message}
}

func Errorf(status proto.Status, format string, args ...any) *Error {
	return &Error{Status: status, Message: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Status.String()
	}
	return fmt.Sprintf("%s: %s", e.Status, e.Message)
}

// Two resource errors match when their status codes do.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Status.Code == e.Status.Code
}
