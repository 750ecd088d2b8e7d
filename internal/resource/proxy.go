package resource

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"dev.l1qu1d.net/wraith-labs/restac/internal/proto"
	"dev.l1qu1d.net/wraith-labs/restac/internal/stream"
)

// Anything that can carry a request to a remote resource and return the
// reply, normally an outbound dispatch.Dispatcher.
type Sender interface {
	DeliverSync(ctx context.Context, m *proto.ActionMessage) (*proto.StatusMessage, error)
}

// The client side of a remote resource. Every call is one synchronous
// exchange. Replies outside 2xx are returned as *Error carrying the reply
// status and any text/plain body.
type Proxy struct {
	Protocol string
	Host     string
	Port     int
	Path     proto.Path
	Query    proto.ParameterList

	// Sent with every request.
	Headers proto.Headers

	sender Sender
}

// A proxy for the resource at rawURL, such as http://host:2048/math/add.
func NewProxy(sender Sender, rawURL string) (*Proxy, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid resource url %q: %w", rawURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid resource url %q: scheme and host are required", rawURL)
	}

	port := proto.DEFAULT_PORT
	if p := u.Port(); p != "" {
		if port, err = strconv.Atoi(p); err != nil {
			return nil, fmt.Errorf("invalid resource url %q: bad port: %w", rawURL, err)
		}
	}

	query, err := proto.ParseQuery(u.RawQuery)
	if err != nil {
		return nil, fmt.Errorf("invalid resource url %q: %w", rawURL, err)
	}

	return &Proxy{
		Protocol: strings.ToUpper(u.Scheme),
		Host:     u.Hostname(),
		Port:     port,
		Path:     proto.ParsePath(u.Path),
		Query:    query,
		Headers:  proto.Headers{},
		sender:   sender,
	}, nil
}

func (p *Proxy) URI() string {
	uri := fmt.Sprintf("%s://%s:%d%s", strings.ToLower(p.Protocol), p.Host, p.Port, p.Path)
	if p.Query.Len() > 0 {
		uri += "?" + p.Query.String()
	}
	return uri
}

// Fetch the resource. The returned input is nil when the reply has no body.
func (p *Proxy) Get(ctx context.Context) (stream.Input, error) {
	res, err := p.do(ctx, proto.METHOD_GET, nil)
	if err != nil {
		return nil, err
	}
	return stream.NewInput(&res.Message), nil
}

func (p *Proxy) Head(ctx context.Context) error {
	res, err := p.do(ctx, proto.METHOD_HEAD, nil)
	if err != nil {
		return err
	}
	return res.CloseBody()
}

func (p *Proxy) Delete(ctx context.Context) error {
	res, err := p.do(ctx, proto.METHOD_DELETE, nil)
	if err != nil {
		return err
	}
	return res.CloseBody()
}

func (p *Proxy) Put(ctx context.Context, body stream.Output) error {
	res, err := p.do(ctx, proto.METHOD_PUT, body)
	if err != nil {
		return err
	}
	return res.CloseBody()
}

// Send body to the resource and return the reply body, nil when there is none.
func (p *Proxy) Post(ctx context.Context, body stream.Output) (stream.Input, error) {
	res, err := p.do(ctx, proto.METHOD_POST, body)
	if err != nil {
		return nil, err
	}
	return stream.NewInput(&res.Message), nil
}

func (p *Proxy) do(ctx context.Context, method string, body stream.Output) (*proto.StatusMessage, error) {
	var req *proto.ActionMessage
	if body == nil {
		req = proto.NewActionMessage(method, p.Protocol, p.Host, p.Port, p.Path, p.Query.Clone(), p.Headers.Clone(), nil)
	} else {
		req = body.ActionMessage(method, p.Protocol, p.Host, p.Port, p.Path, p.Query.Clone(), p.Headers.Clone())
	}

	res, err := p.sender.DeliverSync(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, p.URI(), err)
	}
	if res == nil {
		return nil, fmt.Errorf("%s %s: no reply", method, p.URI())
	}

	if res.StatusCode < 200 || res.StatusCode > 299 {
		defer res.CloseBody()
		return nil, replyError(res)
	}
	return res, nil
}

func replyError(res *proto.StatusMessage) *Error {
	e := &Error{Status: res.Status()}

	in := stream.NewInput(&res.Message)
	if in != nil && strings.EqualFold(in.ContentType(), proto.MIME_TEXT_PLAIN) {
		if data, err := in.ReadBuffered(); err == nil {
			e.Message = string(data)
		}
	}
	return e
}
