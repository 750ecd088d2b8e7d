package content

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"

	"golang.org/x/text/encoding/htmlindex"
)

// XML bodies for any value encoding/xml can handle. Type selects the media
// type the converter is registered under.
type XML struct {
	Type string
}

func (c XML) MediaType() string {
	return c.Type
}

func (c XML) Decode(data []byte, charset string, v any) error {
	d := xml.NewDecoder(bytes.NewReader(data))
	d.CharsetReader = func(label string, input io.Reader) (io.Reader, error) {
		enc, err := htmlindex.Get(label)
		if err != nil {
			return nil, err
		}
		return enc.NewDecoder().Reader(input), nil
	}

	if err := d.Decode(v); err != nil {
		return conversionError(c.Type, err)
	}
	return nil
}

func (c XML) Encode(v any, charset string) ([]byte, error) {
	body, err := xml.Marshal(v)
	if err != nil {
		return nil, conversionError(c.Type, err)
	}

	if isUTF8(charset) {
		return append([]byte(xml.Header), body...), nil
	}

	head := fmt.Sprintf(`<?xml version="1.0" encoding="%s"?>`+"\n", charset)
	return EncodeCharset(head+string(body), charset)
}
