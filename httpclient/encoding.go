package httpclient

import (
	"encoding/xml"
	"strings"

	json "github.com/goccy/go-json"
)

// Encoder turns request bodies into bytes.
type Encoder interface {
	Encode(v any) ([]byte, error)
	ContentType() string
}

// Decoder turns response bodies into values.
type Decoder interface {
	Decode(data []byte, contentType string, v any) error
}

// JSONEncoder encodes with goccy/go-json.
type JSONEncoder struct{}

// Encode implements Encoder.
func (JSONEncoder) Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

// ContentType implements Encoder.
func (JSONEncoder) ContentType() string {
	return "application/json"
}

// XMLEncoder encodes with encoding/xml.
type XMLEncoder struct{}

// Encode implements Encoder.
func (XMLEncoder) Encode(v any) ([]byte, error) {
	return xml.Marshal(v)
}

// ContentType implements Encoder.
func (XMLEncoder) ContentType() string {
	return "application/xml"
}

// JSONDecoder always decodes JSON.
type JSONDecoder struct{}

// Decode implements Decoder.
func (JSONDecoder) Decode(data []byte, _ string, v any) error {
	return json.Unmarshal(data, v)
}

// ContentTypeDecoder picks XML for XML content types and JSON otherwise.
type ContentTypeDecoder struct{}

// Decode implements Decoder.
func (ContentTypeDecoder) Decode(data []byte, contentType string, v any) error {
	if strings.Contains(contentType, "application/xml") ||
		strings.Contains(contentType, "text/xml") {
		return xml.Unmarshal(data, v)
	}
	return json.Unmarshal(data, v)
}
