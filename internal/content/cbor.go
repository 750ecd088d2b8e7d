package content

import (
	"dev.l1qu1d.net/wraith-labs/restac/internal/proto"
	"github.com/fxamacker/cbor/v2"
)

// application/cbor bodies. Charsets do not apply.
type CBOR struct{}

func (CBOR) MediaType() string {
	return proto.MIME_CBOR
}

func (CBOR) Decode(data []byte, _ string, v any) error {
	if err := cbor.Unmarshal(data, v); err != nil {
		return conversionError(proto.MIME_CBOR, err)
	}
	return nil
}

func (CBOR) Encode(v any, _ string) ([]byte, error) {
	data, err := cbor.Marshal(v)
	if err != nil {
		return nil, conversionError(proto.MIME_CBOR, err)
	}
	return data, nil
}
