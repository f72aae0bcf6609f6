package model

import (
	"encoding/hex"
	"fmt"
)

const (
	// DigestSize is the size in bytes of a block digest (160 bits)
	DigestSize = 20

	// DigestSizeHex is the size of the hex representation of a digest, used as block file name
	DigestSizeHex = 2 * DigestSize
)

// Digest identifies a block by its content
type Digest [DigestSize]byte

// NewDigest creates a new digest from raw bytes
func NewDigest(data []byte) (Digest, error) {
	var d Digest
	if len(data) != DigestSize {
		return Digest{}, &BadDigestSize{Digest: data}
	}
	copy(d[:], data)
	return d, nil
}

// MustNewDigest creates a new digest from raw bytes but panics if there is an error
func MustNewDigest(data []byte) Digest {
	d, e := NewDigest(data)
	if e != nil {
		panic(e.Error())
	}
	return d
}

// ParseDigest converts the lowercase hex representation of a digest back to a Digest
func ParseDigest(s string) (Digest, error) {
	if len(s) != DigestSizeHex {
		return Digest{}, &BadDigestSize{Digest: []byte(s)}
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return Digest{}, err
	}
	return NewDigest(b)
}

// String yields the lowercase hex encoding of the digest
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// IsZero tells if this digest has never been set
func (d Digest) IsZero() bool {
	return d == Digest{}
}

// BadDigestSize is an error that's returned when the digest to create has an invalid size.
type BadDigestSize struct {
	Digest []byte
}

func (b *BadDigestSize) Error() string {
	return fmt.Sprintf("%x has invalid size of %d, expected %d", b.Digest, len(b.Digest), DigestSize)
}
