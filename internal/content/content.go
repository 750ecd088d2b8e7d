// Package content converts message bodies to and from Go values according to
// their media type.
package content

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"dev.l1qu1d.net/wraith-labs/restac/internal/proto"
	"golang.org/x/text/encoding/htmlindex"
)

var (
	ErrConversion           = errors.New("content conversion failed")
	ErrUnsupportedMediaType = errors.New("unsupported media type")
	ErrUnsupportedValue     = errors.New("unsupported value type")
)

// Returned by every converter failure. Matches ErrConversion with errors.Is.
type ConversionError struct {
	MediaType string
	Err       error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("cannot convert %s content: %v", e.MediaType, e.Err)
}

func (e *ConversionError) Unwrap() error {
	return e.Err
}

func (e *ConversionError) Is(target error) bool {
	return target == ErrConversion
}

func conversionError(mediaType string, err error) error {
	return &ConversionError{MediaType: mediaType, Err: err}
}

// Converts values of one media type.
type Converter interface {
	MediaType() string
	Encode(v any, charset string) ([]byte, error)
	Decode(data []byte, charset string, v any) error
}

// A set of converters keyed by media type.
type Registry struct {
	lock       sync.RWMutex
	converters map[string]Converter
}

func NewRegistry(converters ...Converter) *Registry {
	r := &Registry{converters: map[string]Converter{}}
	for _, c := range converters {
		r.Register(c)
	}
	return r
}

// A registry holding every built-in converter.
func Default() *Registry {
	return NewRegistry(
		URLEncoded{},
		Plain{},
		XML{Type: proto.MIME_TEXT_XML},
		XML{Type: proto.MIME_XML},
		CBOR{},
	)
}

func (r *Registry) Register(c Converter) {
	r.lock.Lock()
	defer r.lock.Unlock()

	r.converters[strings.ToLower(c.MediaType())] = c
}

func (r *Registry) Lookup(mediaType string) (Converter, bool) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	c, ok := r.converters[strings.ToLower(strings.TrimSpace(mediaType))]
	return c, ok
}

// Media types with a registered converter.
func (r *Registry) MediaTypes() []string {
	r.lock.RLock()
	defer r.lock.RUnlock()

	types := make([]string, 0, len(r.converters))
	for t := range r.converters {
		types = append(types, t)
	}
	return types
}

func (r *Registry) Encode(mediaType, charset string, v any) ([]byte, error) {
	c, ok := r.Lookup(mediaType)
	if !ok {
		return nil, conversionError(mediaType, ErrUnsupportedMediaType)
	}
	return c.Encode(v, charset)
}

func (r *Registry) Decode(mediaType, charset string, data []byte, v any) error {
	c, ok := r.Lookup(mediaType)
	if !ok {
		return conversionError(mediaType, ErrUnsupportedMediaType)
	}
	return c.Decode(data, charset, v)
}

//
// Charsets.
//

func isUTF8(charset string) bool {
	switch strings.ToLower(charset) {
	case "", "utf-8", "utf8":
		return true
	}
	return false
}

// Decode data from charset into a Go string.
func DecodeCharset(data []byte, charset string) (string, error) {
	if isUTF8(charset) {
		return string(data), nil
	}

	enc, err := htmlindex.Get(charset)
	if err != nil {
		return "", conversionError(charset, err)
	}

	out, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return "", conversionError(charset, err)
	}
	return string(out), nil
}

// Encode a Go string into charset.
func EncodeCharset(s string, charset string) ([]byte, error) {
	if isUTF8(charset) {
		return []byte(s), nil
	}

	enc, err := htmlindex.Get(charset)
	if err != nil {
		return nil, conversionError(charset, err)
	}

	out, err := enc.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return nil, conversionError(charset, err)
	}
	return out, nil
}
