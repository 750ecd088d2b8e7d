package content

import (
	"fmt"

	"dev.l1qu1d.net/wraith-labs/restac/internal/proto"
)

// text/plain bodies, transcoded from and to the declared charset.
type Plain struct{}

func (Plain) MediaType() string {
	return proto.MIME_TEXT_PLAIN
}

func (Plain) Decode(data []byte, charset string, v any) error {
	text, err := DecodeCharset(data, charset)
	if err != nil {
		return err
	}

	switch dst := v.(type) {
	case *string:
		*dst = text
	case *[]byte:
		*dst = []byte(text)
	default:
		return conversionError(proto.MIME_TEXT_PLAIN, fmt.Errorf("%w: %T", ErrUnsupportedValue, v))
	}
	return nil
}

func (Plain) Encode(v any, charset string) ([]byte, error) {
	switch src := v.(type) {
	case string:
		return EncodeCharset(src, charset)
	case []byte:
		return EncodeCharset(string(src), charset)
	case fmt.Stringer:
		return EncodeCharset(src.String(), charset)
	}
	return nil, conversionError(proto.MIME_TEXT_PLAIN, fmt.Errorf("%w: %T", ErrUnsupportedValue, v))
}
