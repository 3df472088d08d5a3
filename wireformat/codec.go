// Package wireformat defines how values are serialized when they cross the wasm
// boundary. The boundary itself only moves byte ranges; a Codec turns typed values
// into those bytes and back. Codecs must be deterministic and must never read past
// the byte range they are given.
package wireformat

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Codec is the pluggable serialization contract.
type Codec interface {
	// Name identifies the codec in configuration and error messages.
	Name() string

	// Marshal encodes v.
	Marshal(v any) ([]byte, error)

	// Unmarshal decodes data into v, which must be a pointer.
	Unmarshal(data []byte, v any) error
}

const (
	// CodecJSON selects the JSON codec.
	CodecJSON = "json"

	// CodecMsgpack selects the MessagePack codec.
	CodecMsgpack = "msgpack"
)

// JSON is the default codec. It rejects values JSON cannot represent, such as NaN.
var JSON Codec = jsonCodec{}

// Msgpack is a compact binary codec.
var Msgpack Codec = msgpackCodec{}

// CodecByName returns the codec registered under name.
func CodecByName(name string) (Codec, error) {
	switch name {
	case CodecJSON, "":
		return JSON, nil
	case CodecMsgpack:
		return Msgpack, nil
	default:
		return nil, fmt.Errorf("unknown codec %q", name)
	}
}

type jsonCodec struct{}

func (jsonCodec) Name() string { return CodecJSON }

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return fmt.Errorf("trailing data after JSON value")
	}
	return nil
}

type msgpackCodec struct{}

func (msgpackCodec) Name() string { return CodecMsgpack }

func (msgpackCodec) Marshal(v any) ([]byte, error) {
	return msgpack.Marshal(v)
}

func (msgpackCodec) Unmarshal(data []byte, v any) error {
	r := bytes.NewReader(data)
	dec := msgpack.NewDecoder(r)
	if err := dec.Decode(v); err != nil {
		return err
	}
	if r.Len() > 0 {
		return fmt.Errorf("trailing data after msgpack value: %d bytes", r.Len())
	}
	return nil
}
