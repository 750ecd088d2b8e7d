package content

import (
	"fmt"
	"sort"

	"dev.l1qu1d.net/wraith-labs/restac/internal/proto"
)

// application/x-www-form-urlencoded bodies. Decodes into *proto.ParameterList
// or *map[string]string (first value per name); encodes from either of those
// or their non-pointer forms.
type URLEncoded struct{}

func (URLEncoded) MediaType() string {
	return proto.MIME_URLENCODED
}

func (URLEncoded) Decode(data []byte, charset string, v any) error {
	text, err := DecodeCharset(data, charset)
	if err != nil {
		return err
	}

	pl, err := proto.ParseQuery(text)
	if err != nil {
		return conversionError(proto.MIME_URLENCODED, err)
	}

	switch dst := v.(type) {
	case *proto.ParameterList:
		*dst = pl
	case *map[string]string:
		m := make(map[string]string, pl.Len())
		for _, k := range pl.Keys() {
			m[k] = pl.Get(k)
		}
		*dst = m
	default:
		return conversionError(proto.MIME_URLENCODED, fmt.Errorf("%w: %T", ErrUnsupportedValue, v))
	}

	return nil
}

func (URLEncoded) Encode(v any, charset string) ([]byte, error) {
	var pl proto.ParameterList

	switch src := v.(type) {
	case proto.ParameterList:
		pl = src
	case *proto.ParameterList:
		pl = *src
	case map[string]string:
		keys := make([]string, 0, len(src))
		for k := range src {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			pl.Set(k, src[k])
		}
	default:
		return nil, conversionError(proto.MIME_URLENCODED, fmt.Errorf("%w: %T", ErrUnsupportedValue, v))
	}

	return EncodeCharset(pl.String(), charset)
}
