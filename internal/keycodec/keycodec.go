// Package keycodec parses and emits P-256 (secp256r1 / prime256v1) key
// material in the PEM and unwrapped base64 SubjectPublicKeyInfo forms used
// by the delegated recovery protocol's provider configurations.
package keycodec

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
)

// ErrNotP256 is returned when parsed key material is not on the P-256 curve.
var ErrNotP256 = errors.New("delegated recovery: key is not on the P-256 curve")

// spkiPrefix is the fixed 26-byte ASN.1 SubjectPublicKeyInfo header for an
// EC public key on the prime256v1/secp256r1 curve, as emitted by OpenSSL and
// the Go standard library for this curve. It precedes the 65-byte
// uncompressed point (0x04 || X(32) || Y(32)).
var spkiPrefix = []byte{
	0x30, 0x59, 0x30, 0x13, 0x06, 0x07, 0x2a, 0x86, 0x48, 0xce, 0x3d, 0x02, 0x01,
	0x06, 0x08, 0x2a, 0x86, 0x48, 0xce, 0x3d, 0x03, 0x01, 0x07, 0x03, 0x42, 0x00,
}

const uncompressedPointLen = 65 // 0x04 || X(32) || Y(32)

var spkiTotalLen = len(spkiPrefix) + uncompressedPointLen

// DecodeBase64PublicKey parses a base64-encoded SubjectPublicKeyInfo DER
// blob for a P-256 public key, as published in a provider's
// tokensign-pubkeys-secp256r1 / countersign-pubkeys-secp256r1 JSON array.
func DecodeBase64PublicKey(b64 string) (*ecdsa.PublicKey, error) {
	der, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, fmt.Errorf("delegated recovery: decode base64 public key: %w", err)
	}
	return parseSPKI(der)
}

// EncodeBase64PublicKey re-emits a P-256 public key as the base64-encoded
// SubjectPublicKeyInfo DER blob used in provider configuration JSON.
func EncodeBase64PublicKey(pub *ecdsa.PublicKey) (string, error) {
	der, err := encodeSPKI(pub)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(der), nil
}

func parseSPKI(der []byte) (*ecdsa.PublicKey, error) {
	if len(der) == spkiTotalLen {
		point := der[len(spkiPrefix):]
		return pointToKey(point)
	}
	// Fall back to generic x509 parsing for PEM-sourced or otherwise
	// differently-wrapped SubjectPublicKeyInfo blobs.
	pub, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("delegated recovery: parse public key: %w", err)
	}
	ecPub, ok := pub.(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("delegated recovery: public key is not EC")
	}
	if ecPub.Curve != elliptic.P256() {
		return nil, ErrNotP256
	}
	return ecPub, nil
}

func pointToKey(point []byte) (*ecdsa.PublicKey, error) {
	if len(point) != uncompressedPointLen || point[0] != 0x04 {
		return nil, fmt.Errorf("delegated recovery: malformed uncompressed EC point")
	}
	curve := elliptic.P256()
	x := new(big.Int).SetBytes(point[1:33])
	y := new(big.Int).SetBytes(point[33:65])
	if !curve.IsOnCurve(x, y) {
		return nil, ErrNotP256
	}
	return &ecdsa.PublicKey{Curve: curve, X: x, Y: y}, nil
}

func encodeSPKI(pub *ecdsa.PublicKey) ([]byte, error) {
	if pub.Curve != elliptic.P256() {
		return nil, ErrNotP256
	}
	point := elliptic.Marshal(elliptic.P256(), pub.X, pub.Y)
	der := make([]byte, 0, spkiTotalLen)
	der = append(der, spkiPrefix...)
	der = append(der, point...)
	return der, nil
}

// ParsePEMPrivateKey reads a PEM-encoded EC private key of the kind produced
// by `openssl ecparam -name prime256v1 -genkey -noout`.
func ParsePEMPrivateKey(pemBytes []byte) (*ecdsa.PrivateKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("delegated recovery: no PEM block found")
	}
	key, err := x509.ParseECPrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("delegated recovery: parse EC private key: %w", err)
	}
	if key.Curve != elliptic.P256() {
		return nil, ErrNotP256
	}
	return key, nil
}

// EncodePEMPrivateKey emits a PEM-encoded EC private key.
func EncodePEMPrivateKey(key *ecdsa.PrivateKey) ([]byte, error) {
	der, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("delegated recovery: marshal EC private key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der}), nil
}

// ParsePEMPublicKey reads a PEM-encoded SubjectPublicKeyInfo public key.
func ParsePEMPublicKey(pemBytes []byte) (*ecdsa.PublicKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("delegated recovery: no PEM block found")
	}
	return parseSPKI(block.Bytes)
}

// EncodePEMPublicKey emits a PEM-encoded SubjectPublicKeyInfo public key,
// matching the reference SDK's publicKeyToPEM output.
func EncodePEMPublicKey(pub *ecdsa.PublicKey) ([]byte, error) {
	der, err := encodeSPKI(pub)
	if err != nil {
		return nil, err
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), nil
}
