package identity

// Deterministic entropy source for reproducible identities
// overview: half the result is used as the output
// [a|...] -> sha512(a) -> [b|output] -> sha512(b)

import (
	"crypto/sha512"
	"io"
)

// DetermRandIter is the number of times a seed is hashed with SHA-512 to produce
// starting state of a pseudo-random stream
const DetermRandIter = 2048

// NewDetermRand creates an io.Reader that produces pseudo random bytes that are deterministic
// from a seed
func NewDetermRand(seed []byte) io.Reader {
	var out []byte
	next := seed
	for i := 0; i < DetermRandIter; i++ {
		next, out = hash(next)
	}
	return &DetermRand{
		next: next,
		out:  out,
	}
}

// DetermRand keeps running state for a pseudorandom byte stream
type DetermRand struct {
	next, out []byte
}

func (d *DetermRand) Read(b []byte) (int, error) {
	n := 0
	for n < len(b) {
		if len(d.out) == 0 {
			d.next, d.out = hash(d.next)
		}
		c := copy(b[n:], d.out)
		d.out = d.out[c:]
		n += c
	}
	return n, nil
}

// hash computes an SHA-512 hash
func hash(input []byte) (next []byte, output []byte) {
	nextout := sha512.Sum512(input)
	return nextout[:sha512.Size/2], nextout[sha512.Size/2:]
}
