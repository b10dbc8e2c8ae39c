// Package identity generates the random session identities that tag every
// envelope on a shared string transport.
package identity

import (
	"crypto/rand"
	"encoding/binary"
	"io"
	"strconv"
	"strings"
	"sync"
)

const (
	// Bits is the entropy of one identity
	Bits = 128

	groupBits = 16
	numGroups = Bits / groupBits

	// Len is the length of an identity string: four lowercase hex digits per group
	Len = numGroups * groupBits / 4
)

// Generator produces identities from an entropy source. There is no collision
// detection; uniqueness rests on the 128 bits alone.
type Generator struct {
	lock sync.Mutex
	src  io.Reader
}

// NewGenerator creates a Generator reading from src. If src is nil, crypto/rand is used.
func NewGenerator(src io.Reader) *Generator {
	if src == nil {
		src = rand.Reader
	}
	return &Generator{src: src}
}

// Next returns a fresh identity: eight independently drawn 16-bit groups, each
// rendered as four lowercase hex digits. It panics if the entropy source fails.
func (g *Generator) Next() string {
	var buf [numGroups * 2]byte
	g.lock.Lock()
	_, err := io.ReadFull(g.src, buf[:])
	g.lock.Unlock()
	if err != nil {
		panic("identity: entropy source failed: " + err.Error())
	}
	var sb strings.Builder
	sb.Grow(Len)
	for i := 0; i < numGroups; i++ {
		group := binary.BigEndian.Uint16(buf[i*2:])
		s := strconv.FormatUint(uint64(group), 16)
		sb.WriteString("0000"[len(s):])
		sb.WriteString(s)
	}
	return sb.String()
}

var defaultGenerator = NewGenerator(nil)

// New returns a fresh identity from crypto/rand
func New() string {
	return defaultGenerator.Next()
}

// IsValid reports whether s has the shape of a generated identity
func IsValid(s string) bool {
	if len(s) != Len {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !('0' <= c && c <= '9' || 'a' <= c && c <= 'f') {
			return false
		}
	}
	return true
}
