package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"dev.l1qu1d.net/wraith-labs/restac"
	"dev.l1qu1d.net/wraith-labs/restac/internal/proto"
	"dev.l1qu1d.net/wraith-labs/restac/internal/resource"
	"dev.l1qu1d.net/wraith-labs/restac/internal/stream"
	"github.com/gologme/log"
)

const (
	PRODUCT_NAME = "restac"

	ENVIRONMENT_PREFIX = "RESTAC_"

	ENV_DEBUG        = ENVIRONMENT_PREFIX + "DEBUG"
	ENV_CONTENT_TYPE = ENVIRONMENT_PREFIX + "CONTENT_TYPE"
	ENV_TIMEOUT      = ENVIRONMENT_PREFIX + "TIMEOUT"

	DEFAULT_TIMEOUT = 10 * time.Second
)

func usage() {
	fmt.Fprintf(os.Stderr, "usage: %s METHOD URL [BODY]\n", PRODUCT_NAME)
	fmt.Fprintf(os.Stderr, "  BODY \"-\" is read from stdin; %s sets its media type (default %s).\n", ENV_CONTENT_TYPE, proto.MIME_URLENCODED)
	fmt.Fprintf(os.Stderr, "  http:// URLs are sent over TCP, httpu:// as a single UDP datagram.\n")
	os.Exit(2)
}

func main() {
	if len(os.Args) < 3 || len(os.Args) > 4 {
		usage()
	}
	method := strings.ToUpper(os.Args[1])
	target := os.Args[2]

	logger := log.New(os.Stderr, fmt.Sprintf("%s ", PRODUCT_NAME), log.Flags())
	if os.Getenv(ENV_DEBUG) != "" {
		logger.EnableLevelsByNumber(10)
	}

	timeout := DEFAULT_TIMEOUT
	if v := os.Getenv(ENV_TIMEOUT); v != "" {
		parsed, err := time.ParseDuration(v)
		if err != nil {
			panic(errors.Join(fmt.Errorf("could not parse value of env var %s", ENV_TIMEOUT), err))
		}
		timeout = parsed
	}

	contentType := os.Getenv(ENV_CONTENT_TYPE)
	if contentType == "" {
		contentType = proto.MIME_URLENCODED
	}

	var body stream.Output
	if len(os.Args) == 4 {
		data := []byte(os.Args[3])
		if os.Args[3] == "-" {
			var err error
			if data, err = io.ReadAll(os.Stdin); err != nil {
				panic(errors.Join(errors.New("failed to read body from stdin"), err))
			}
		}
		out := stream.NewPlainOutput(contentType, proto.DEFAULT_CHARSET)
		_ = out.WriteBuffered(data)
		body = out
	}

	//
	// Send.
	//

	t, err := restac.New(restac.Options{
		Logger:          logger,
		EnableTCPClient: true,
		EnableUDP:       true,
		UDPAddr:         ":0",
	})
	if err != nil {
		panic(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := t.Start(ctx); err != nil {
		panic(errors.Join(errors.New("failed to start transceiver"), err))
	}
	defer t.Stop()

	p, err := t.Proxy(target)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	// Datagram protocols carry no reply.
	if p.Protocol != proto.PROTOCOL_HTTP {
		var req *proto.ActionMessage
		if body == nil {
			req = proto.NewActionMessage(method, p.Protocol, p.Host, p.Port, p.Path, p.Query, nil, nil)
		} else {
			req = body.ActionMessage(method, p.Protocol, p.Host, p.Port, p.Path, p.Query, nil)
		}
		if err := t.Notify(ctx, req); err != nil {
			fail(err)
		}
		return
	}

	var in stream.Input
	switch method {
	case proto.METHOD_GET:
		in, err = p.Get(ctx)
	case proto.METHOD_HEAD:
		err = p.Head(ctx)
	case proto.METHOD_DELETE:
		err = p.Delete(ctx)
	case proto.METHOD_PUT:
		err = p.Put(ctx, orEmpty(body, contentType))
	case proto.METHOD_POST:
		in, err = p.Post(ctx, orEmpty(body, contentType))
	default:
		fmt.Fprintf(os.Stderr, "unsupported method %s\n", method)
		os.Exit(2)
	}
	if err != nil {
		fail(err)
	}

	if in != nil {
		data, err := in.ReadBuffered()
		if err != nil {
			fail(err)
		}
		os.Stdout.Write(data)
		if len(data) > 0 && data[len(data)-1] != '\n' {
			fmt.Println()
		}
	}
}

func orEmpty(body stream.Output, contentType string) stream.Output {
	if body != nil {
		return body
	}
	return stream.NewPlainOutput(contentType, proto.DEFAULT_CHARSET)
}

func fail(err error) {
	var rerr *resource.Error
	if errors.As(err, &rerr) {
		fmt.Fprintln(os.Stderr, rerr.Status)
		if rerr.Message != "" {
			fmt.Fprintln(os.Stderr, rerr.Message)
		}
	} else {
		fmt.Fprintln(os.Stderr, err)
	}
	os.Exit(1)
}
