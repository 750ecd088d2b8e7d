package main

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"dev.l1qu1d.net/wraith-labs/restac/internal/dispatch"
	"dev.l1qu1d.net/wraith-labs/restac/internal/proto"
	"dev.l1qu1d.net/wraith-labs/restac/internal/resource"
	"dev.l1qu1d.net/wraith-labs/restac/internal/stream"
	"github.com/gologme/log"
)

// Adds up the terms of a form or CBOR map posted to /math/add.
func mathResource(logger *log.Logger) *resource.Resource {
	r := resource.New(dispatch.ResourceFilter{Path: "/math"}, logger)

	r.Handle(proto.METHOD_POST, "/add", func(_ context.Context, req *resource.Request) (stream.Output, error) {
		if req.Input == nil {
			return nil, resource.NewError(proto.STATUS_BAD_REQUEST, "nothing to add")
		}

		switch strings.ToLower(req.Input.ContentType()) {
		case proto.MIME_URLENCODED:
			var terms proto.ParameterList
			if err := req.Decode(&terms); err != nil {
				return nil, err
			}

			sum := 0
			for _, k := range terms.Keys() {
				for _, v := range terms.All(k) {
					if v.Null {
						continue
					}
					n, err := strconv.Atoi(strings.TrimSpace(v.Value))
					if err != nil {
						return nil, resource.Errorf(proto.STATUS_BAD_REQUEST, "%s=%s is not a number", k, v.Value)
					}
					sum += n
				}
			}

			var result proto.ParameterList
			result.Set("result", strconv.Itoa(sum))
			return req.Encode(proto.MIME_URLENCODED, result)

		case proto.MIME_CBOR:
			var terms map[string]int
			if err := req.Decode(&terms); err != nil {
				return nil, err
			}

			sum := 0
			for _, n := range terms {
				sum += n
			}
			return req.Encode(proto.MIME_CBOR, map[string]int{"result": sum})
		}

		return nil, resource.Errorf(proto.STATUS_UNSUPPORTED_MEDIA_TYPE, "cannot add %s content", req.Input.ContentType())
	})

	return r
}

// Holds a single document of any media type.
type echoStore struct {
	lock        sync.Mutex
	contentType string
	charset     string
	data        []byte
}

func (s *echoStore) output() stream.Output {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.data == nil {
		return nil
	}
	out := stream.NewPlainOutput(s.contentType, s.charset)
	_ = out.WriteBuffered(s.data)
	return out
}

func echoResource(logger *log.Logger) *resource.Resource {
	r := resource.New(dispatch.ResourceFilter{Path: "/echo"}, logger)
	store := &echoStore{}

	r.Handle(proto.METHOD_GET, "/", func(context.Context, *resource.Request) (stream.Output, error) {
		return store.output(), nil
	})
	r.Handle(proto.METHOD_HEAD, "/", func(context.Context, *resource.Request) (stream.Output, error) {
		return nil, nil
	})
	r.Handle(proto.METHOD_PUT, "/", func(_ context.Context, req *resource.Request) (stream.Output, error) {
		if req.Input == nil {
			return nil, resource.NewError(proto.STATUS_BAD_REQUEST, "nothing to store")
		}
		data, err := req.Input.ReadBuffered()
		if err != nil {
			return nil, err
		}

		store.lock.Lock()
		defer store.lock.Unlock()

		store.contentType, store.charset, store.data = req.Input.ContentType(), req.Input.Charset(), data
		return nil, nil
	})
	r.Handle(proto.METHOD_DELETE, "/", func(context.Context, *resource.Request) (stream.Output, error) {
		store.lock.Lock()
		defer store.lock.Unlock()

		store.contentType, store.charset, store.data = "", "", nil
		return nil, nil
	})
	r.Handle(proto.METHOD_POST, "/", func(_ context.Context, req *resource.Request) (stream.Output, error) {
		if req.Input == nil {
			return nil, nil
		}
		data, err := req.Input.ReadBuffered()
		if err != nil {
			return nil, err
		}
		out := stream.NewChunkedOutput(req.Input.ContentType(), req.Input.Charset())
		return out, out.WriteBuffered(data)
	})

	return r
}
