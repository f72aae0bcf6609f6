// Package hashing computes the content digests used to address blocks.
//
// Two deduplication schemes produce 160-bit digests:
//
//   - sha1 (default): the digest used by the on-disk block naming of the file index format
//   - blake2b: BLAKE2b with a 20 bytes output (https://github.com/minio/blake2b-simd),
//     usually 3 to 5 times faster than SHA's on large payloads
//
// A storage root must always be used with the same scheme: blocks hashed with a different
// scheme simply never deduplicate.
package hashing

import (
	"crypto/sha1" // #nosec: content addressing, not a security primitive
	"fmt"
	"hash"

	blake2b "github.com/minio/blake2b-simd"
	"github.com/oneconcern/cfs/pkg/model"
)

// Scheme is a deduplication scheme
type Scheme string

const (
	// SHA1 is the default deduplication scheme
	SHA1 Scheme = "sha1"

	// Blake2b is the BLAKE2b-160 deduplication scheme
	Blake2b Scheme = "blake2b"

	// DefaultScheme is used whenever no scheme is specified
	DefaultScheme = SHA1
)

// Hasher computes the digest of a block payload
type Hasher func([]byte) model.Digest

// ParseScheme validates a scheme name. An empty name yields the default scheme.
func ParseScheme(name string) (Scheme, error) {
	switch Scheme(name) {
	case "":
		return DefaultScheme, nil
	case SHA1, Blake2b:
		return Scheme(name), nil
	default:
		return "", fmt.Errorf("unsupported deduplication scheme %q (expected one of: %s, %s)", name, SHA1, Blake2b)
	}
}

// New yields the hasher for some scheme
func New(scheme Scheme) (Hasher, error) {
	switch scheme {
	case SHA1, "":
		return Sum, nil
	case Blake2b:
		// validate the configuration once
		if _, err := newBlake(); err != nil {
			return nil, err
		}
		return sumBlake, nil
	default:
		return nil, fmt.Errorf("unsupported deduplication scheme %q", scheme)
	}
}

// Sum computes the SHA-1 digest of a block payload
func Sum(data []byte) model.Digest {
	return model.Digest(sha1.Sum(data)) // #nosec
}

func newBlake() (hash.Hash, error) {
	return blake2b.New(&blake2b.Config{Size: model.DigestSize})
}

func sumBlake(data []byte) model.Digest {
	hasher, err := newBlake()
	if err != nil {
		// New only fails when configuration is wrong, which is checked by New(Blake2b)
		panic(err)
	}
	// hasher is actually always successful
	_, _ = hasher.Write(data)

	return model.MustNewDigest(hasher.Sum(nil))
}
