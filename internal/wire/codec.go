// Package wire implements the length-prefixed binary codec for delegated
// recovery tokens: a fixed field order, all integers big-endian, the
// signature occupying every byte after the five length-prefixed fields.
package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"unicode/utf8"
)

// ErrMalformedToken is returned for any structural failure while decoding a
// token: a truncated buffer, an overrunning length field, or non-ASCII bytes
// in a string field. Bytes after the declared fields are the signature, not
// an error.
var ErrMalformedToken = errors.New("delegated recovery: malformed token")

// IDLen is the fixed length, in bytes, of a token's id field.
const IDLen = 16

const maxFieldLen = 0xFFFF // uint16 length prefix

// Fields holds every token attribute except the trailing signature, which is
// carried separately so callers can sign or verify over exactly the bytes
// EncodeSigningInput produces.
type Fields struct {
	Version    byte
	Type       byte
	ID         [IDLen]byte
	Options    byte
	Issuer     string
	Audience   string
	IssuedTime string
	Data       []byte
	Binding    []byte
}

// EncodeSigningInput serializes f into the canonical signing input: every
// byte of the wire format that precedes the signature.
func (f Fields) EncodeSigningInput() ([]byte, error) {
	if err := checkASCII("issuer", f.Issuer); err != nil {
		return nil, err
	}
	if err := checkASCII("audience", f.Audience); err != nil {
		return nil, err
	}
	if err := checkASCII("issued_time", f.IssuedTime); err != nil {
		return nil, err
	}
	if len(f.Issuer) > maxFieldLen || len(f.Audience) > maxFieldLen ||
		len(f.IssuedTime) > maxFieldLen || len(f.Data) > maxFieldLen || len(f.Binding) > maxFieldLen {
		return nil, fmt.Errorf("%w: field exceeds uint16 length", ErrMalformedToken)
	}

	buf := bytes.NewBuffer(make([]byte, 0, 23+len(f.Issuer)+len(f.Audience)+len(f.IssuedTime)+len(f.Data)+len(f.Binding)))
	buf.WriteByte(f.Version)
	buf.WriteByte(f.Type)
	buf.Write(f.ID[:])
	buf.WriteByte(f.Options)
	writeLengthPrefixed(buf, []byte(f.Issuer))
	writeLengthPrefixed(buf, []byte(f.Audience))
	writeLengthPrefixed(buf, []byte(f.IssuedTime))
	writeLengthPrefixed(buf, f.Data)
	writeLengthPrefixed(buf, f.Binding)
	return buf.Bytes(), nil
}

// Encode appends signature to the canonical signing input of f, producing
// the complete on-the-wire byte string (still to be base64-encoded by the
// caller).
func Encode(f Fields, signature []byte) ([]byte, error) {
	signingInput, err := f.EncodeSigningInput()
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(signingInput)+len(signature))
	out = append(out, signingInput...)
	out = append(out, signature...)
	return out, nil
}

// Decode parses raw into its Fields, the canonical signing input (the
// prefix of raw preceding the signature), and the signature itself. It
// enforces that every length-prefixed field fits within the remaining
// buffer; every byte after the binding field is returned as the signature,
// and the signature's DER structure is not checked here.
func Decode(raw []byte) (fields Fields, signingInput []byte, signature []byte, err error) {
	offset := 0
	readByte := func() (byte, bool) {
		if offset >= len(raw) {
			return 0, false
		}
		b := raw[offset]
		offset++
		return b, true
	}

	version, ok := readByte()
	if !ok {
		return Fields{}, nil, nil, fmt.Errorf("%w: buffer too short for version", ErrMalformedToken)
	}
	typ, ok := readByte()
	if !ok {
		return Fields{}, nil, nil, fmt.Errorf("%w: buffer too short for type", ErrMalformedToken)
	}
	if offset+IDLen > len(raw) {
		return Fields{}, nil, nil, fmt.Errorf("%w: buffer too short for id", ErrMalformedToken)
	}
	var id [IDLen]byte
	copy(id[:], raw[offset:offset+IDLen])
	offset += IDLen

	options, ok := readByte()
	if !ok {
		return Fields{}, nil, nil, fmt.Errorf("%w: buffer too short for options", ErrMalformedToken)
	}

	issuer, err := readLengthPrefixedASCII(raw, &offset, "issuer")
	if err != nil {
		return Fields{}, nil, nil, err
	}
	audience, err := readLengthPrefixedASCII(raw, &offset, "audience")
	if err != nil {
		return Fields{}, nil, nil, err
	}
	issuedTime, err := readLengthPrefixedASCII(raw, &offset, "issued_time")
	if err != nil {
		return Fields{}, nil, nil, err
	}
	data, err := readLengthPrefixed(raw, &offset, "data")
	if err != nil {
		return Fields{}, nil, nil, err
	}
	binding, err := readLengthPrefixed(raw, &offset, "binding")
	if err != nil {
		return Fields{}, nil, nil, err
	}

	fields = Fields{
		Version:    version,
		Type:       typ,
		ID:         id,
		Options:    options,
		Issuer:     issuer,
		Audience:   audience,
		IssuedTime: issuedTime,
		Data:       data,
		Binding:    binding,
	}
	signingInput = append([]byte(nil), raw[:offset]...)
	signature = append([]byte(nil), raw[offset:]...)
	return fields, signingInput, signature, nil
}

func writeLengthPrefixed(buf *bytes.Buffer, b []byte) {
	var lenBytes [2]byte
	binary.BigEndian.PutUint16(lenBytes[:], uint16(len(b)))
	buf.Write(lenBytes[:])
	buf.Write(b)
}

func readLengthPrefixed(raw []byte, offset *int, field string) ([]byte, error) {
	if *offset+2 > len(raw) {
		return nil, fmt.Errorf("%w: buffer too short for %s length", ErrMalformedToken, field)
	}
	length := int(binary.BigEndian.Uint16(raw[*offset : *offset+2]))
	*offset += 2
	if *offset+length > len(raw) {
		return nil, fmt.Errorf("%w: %s length exceeds remaining buffer", ErrMalformedToken, field)
	}
	value := raw[*offset : *offset+length]
	*offset += length
	return append([]byte(nil), value...), nil
}

func readLengthPrefixedASCII(raw []byte, offset *int, field string) (string, error) {
	b, err := readLengthPrefixed(raw, offset, field)
	if err != nil {
		return "", err
	}
	if err := checkASCII(field, string(b)); err != nil {
		return "", err
	}
	return string(b), nil
}

func checkASCII(field, s string) error {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return fmt.Errorf("%w: %s contains non-ASCII byte", ErrMalformedToken, field)
		}
	}
	return nil
}
