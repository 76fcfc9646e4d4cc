// Package accesscode issues short numeric codes students type to check in.
package accesscode

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

// DefaultLength is used when a non-positive length is configured.
const DefaultLength = 4

// Source yields uniformly distributed integers in [0, n).
type Source interface {
	Intn(n int) (int, error)
}

// Generator produces fixed-length numeric codes.
type Generator struct {
	source Source
	length int
}

// NewGenerator builds a generator; a nil source uses crypto/rand.
func NewGenerator(source Source, length int) *Generator {
	if source == nil {
		source = CryptoSource{}
	}
	if length <= 0 {
		length = DefaultLength
	}
	return &Generator{source: source, length: length}
}

// Generate returns a zero-padded numeric code.
func (g *Generator) Generate() (string, error) {
	var b strings.Builder
	b.Grow(g.length)
	for i := 0; i < g.length; i++ {
		digit, err := g.source.Intn(10)
		if err != nil {
			return "", fmt.Errorf("generate access code: %w", err)
		}
		b.WriteByte(byte('0' + digit))
	}
	return b.String(), nil
}

// Length reports the configured code length.
func (g *Generator) Length() int {
	return g.length
}

// CryptoSource draws from crypto/rand.
type CryptoSource struct{}

// Intn implements Source.
func (CryptoSource) Intn(n int) (int, error) {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, err
	}
	return int(v.Int64()), nil
}
