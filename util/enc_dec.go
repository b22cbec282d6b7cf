package util

import (
	"encoding/json"
	"fmt"
)

// EncoderDecoder is the byte codec every store uses for its rows.
type EncoderDecoder[T any] interface {
	Encode(value T) ([]byte, error)
	Decode(data []byte) (*T, error)
}

const ENCODING_JSON = "JSON"

// NewEncoderDecoder returns the codec registered under kind. An empty kind
// means JSON.
func NewEncoderDecoder[T any](kind string) (EncoderDecoder[T], error) {
	switch kind {
	case ENCODING_JSON, "":
		return NewJsonEncoderDecoder[T](), nil
	}
	return nil, fmt.Errorf("unsupported encoder decoder %q", kind)
}

type JsonEncDec[T any] struct{}

var _ EncoderDecoder[any] = new(JsonEncDec[any])

func NewJsonEncoderDecoder[T any]() *JsonEncDec[T] {
	return &JsonEncDec[T]{}
}

func (encdec *JsonEncDec[T]) Encode(value T) ([]byte, error) {
	return json.Marshal(value)
}

func (encdec *JsonEncDec[T]) Decode(data []byte) (*T, error) {
	var res T
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("decoding %T: %w", res, err)
	}
	return &res, nil
}
