// Package wire defines the worker wire schema, the two-way mapping between it
// and the durable object model, and the base64 transport encoding.
//
// Messages are CBOR with integer keys, encoded deterministically so the same
// logical message always yields identical bytes.
package wire

import (
	"encoding/base64"

	"github.com/fxamacker/cbor/v2"
	durable "github.com/goliatone/go-durable"
	"github.com/goliatone/go-errors"
)

const ErrCodeDecode = "WIRE_DECODE_FAILED"

var (
	encMode cbor.UserBufferEncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().UserBufferEncMode()
	if err != nil {
		panic("wire: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		DupMapKey: cbor.DupMapKeyEnforcedAPF,
		// failure chains nest one level per inner failure
		MaxNestedLevels: 128,
	}.DecMode()
	if err != nil {
		panic("wire: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes msg to CBOR.
func Marshal(msg any) ([]byte, error) {
	data, err := encMode.Marshal(msg)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "wire encode failed")
	}
	return data, nil
}

// Unmarshal decodes CBOR data into msg.
func Unmarshal(data []byte, msg any) error {
	if err := decMode.Unmarshal(data, msg); err != nil {
		return errors.Wrap(err, errors.CategoryBadInput, "wire decode failed").
			WithTextCode(ErrCodeDecode)
	}
	return nil
}

// EncodeBase64 serializes msg into a pooled growable buffer, since CBOR has
// no size pass, then base64 encodes exactly the serialized region into a
// pooled slab of exactly the encoded length. Both buffers go back to their
// pools before returning.
func EncodeBase64(msg any) (string, error) {
	buf := getBuffer()
	defer putBuffer(buf)

	if err := encMode.MarshalToBuffer(msg, buf); err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "wire encode failed")
	}

	size := buf.Len()
	out := getSlab(base64.StdEncoding.EncodedLen(size))
	defer putSlab(out)

	base64.StdEncoding.Encode(out.Bytes, buf.Bytes()[:size])
	return string(out.Bytes), nil
}

// DecodeBase64 is the inverse of EncodeBase64.
func DecodeBase64(encoded string, msg any) error {
	if encoded == "" {
		return durable.NewError(durable.ErrProtocolViolation, "empty wire payload", nil, nil)
	}

	scratch := getSlab(base64.StdEncoding.DecodedLen(len(encoded)))
	defer putSlab(scratch)

	n, err := base64.StdEncoding.Decode(scratch.Bytes, []byte(encoded))
	if err != nil {
		return durable.NewError(durable.ErrProtocolViolation, "wire payload is not valid base64", err, nil)
	}
	return Unmarshal(scratch.Bytes[:n], msg)
}
