package wire

import (
	"bytes"
	"reflect"
	"testing"
)

func sampleFields() Fields {
	f := Fields{
		Version:    0x00,
		Type:       0x00,
		Options:    0x01,
		Issuer:     "https://ap.example",
		Audience:   "https://rp.example",
		IssuedTime: "2017-01-31T15:04:05+00:00",
		Data:       []byte("hello"),
		Binding:    nil,
	}
	copy(f.ID[:], []byte{0x00, 0x11, 0x22, 0x33, 0x44, 0x55, 0x66, 0x77, 0x88, 0x99, 0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff})
	return f
}

func TestRoundTrip(t *testing.T) {
	f := sampleFields()
	signature := []byte{0x30, 0x06, 0x02, 0x01, 0x01, 0x02, 0x01, 0x02}
	raw, err := Encode(f, signature)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	got, signingInput, gotSig, err := Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(got, f) {
		t.Fatalf("round-tripped fields differ:\n got=%+v\nwant=%+v", got, f)
	}
	if !bytes.Equal(gotSig, signature) {
		t.Fatalf("signature mismatch: got %x want %x", gotSig, signature)
	}
	wantSigningInput, _ := f.EncodeSigningInput()
	if !bytes.Equal(signingInput, wantSigningInput) {
		t.Fatalf("signing input mismatch")
	}
}

func TestDecodeTruncated(t *testing.T) {
	f := sampleFields()
	raw, _ := Encode(f, []byte{0x30, 0x02, 0x02, 0x00})
	for i := 0; i < 23; i++ {
		if _, _, _, err := Decode(raw[:i]); err == nil {
			t.Fatalf("expected malformed error decoding %d bytes", i)
		}
	}
}

func TestDecodeLengthOverrun(t *testing.T) {
	f := sampleFields()
	raw, _ := Encode(f, []byte{0x30, 0x00})
	// Corrupt the issuer length prefix (offset 19-20) to claim more bytes
	// than remain in the buffer.
	corrupted := append([]byte(nil), raw...)
	corrupted[19] = 0xFF
	corrupted[20] = 0xFF
	if _, _, _, err := Decode(corrupted); err == nil {
		t.Fatalf("expected malformed error for overrunning length field")
	}
}

func TestEncodeSigningInputRejectsNonASCII(t *testing.T) {
	f := sampleFields()
	f.Issuer = "https://ap.exämple"
	if _, err := f.EncodeSigningInput(); err == nil {
		t.Fatalf("expected error encoding non-ASCII issuer")
	}
}

func TestFieldTooLarge(t *testing.T) {
	f := sampleFields()
	f.Data = bytes.Repeat([]byte{0x41}, 65536)
	if _, err := f.EncodeSigningInput(); err == nil {
		t.Fatalf("expected error for data field exceeding uint16 length")
	}
}
