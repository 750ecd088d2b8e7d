// Package stream wraps message bodies in typed input and output streams which
// understand Content-Length delimited and chunked transfer framing.
package stream

import (
	"strings"

	"dev.l1qu1d.net/wraith-labs/restac/internal/proto"
)

// Split a Content-Type header value into its media type and charset. A missing
// header yields two empty strings. A header without a charset parameter yields
// the default charset.
func ParseContentType(header string) (string, string) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", ""
	}

	mediaType, params, hasParams := strings.Cut(header, ";")
	mediaType = strings.TrimSpace(mediaType)
	if !hasParams {
		return mediaType, proto.DEFAULT_CHARSET
	}

	for _, param := range strings.Split(params, ";") {
		name, value, ok := strings.Cut(param, "=")
		if !ok || !strings.EqualFold(strings.TrimSpace(name), "charset") {
			continue
		}
		value = strings.Trim(strings.TrimSpace(value), `"`)
		if value != "" {
			return mediaType, value
		}
	}

	return mediaType, proto.DEFAULT_CHARSET
}

// Build a Content-Type header value.
func FormatContentType(mediaType, charset string) string {
	if charset == "" {
		return mediaType
	}
	return mediaType + "; charset=" + charset
}

// Whether the message declares chunked transfer coding.
func IsChunked(m *proto.Message) bool {
	return strings.EqualFold(m.Headers.Get(proto.HEADER_TRANSFER_ENCODING), proto.TRANSFER_ENCODING_CHUNKED)
}
