package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"io"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Digest accumulates a SHA-256 over everything written to it.
type Digest struct {
	h hash.Hash
	n int64
}

// NewDigest returns an empty Digest.
func NewDigest() *Digest {
	return &Digest{h: sha256.New()}
}

func (d *Digest) Write(p []byte) (int, error) {
	n, _ := d.h.Write(p)
	d.n += int64(n)
	return n, nil
}

// Size is the number of bytes written so far.
func (d *Digest) Size() int64 { return d.n }

// Hex returns the hex-encoded digest of the bytes written so far.
func (d *Digest) Hex() string {
	return hex.EncodeToString(d.h.Sum(nil))
}

// Tee returns a reader that feeds d with everything read from r.
func (d *Digest) Tee(r io.Reader) io.Reader {
	return io.TeeReader(r, d)
}
