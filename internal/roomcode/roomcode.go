// Package roomcode generates the short human-typable codes players use
// to join a room.
package roomcode

import (
	"math/rand"
	"strings"
	"sync"
)

// Alphabet deliberately omits 0/O, 1/I/L and other glyphs that read
// ambiguously on a projected screen.
const Alphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

// DefaultLength matches the code length clients are asked to type.
const DefaultLength = 6

// Generator produces room codes from an injected randomness source so
// code generation is deterministic in tests.
type Generator struct {
	mu     sync.Mutex
	rng    *rand.Rand
	length int
}

// NewGenerator creates a code generator of DefaultLength.
func NewGenerator(rng *rand.Rand) *Generator {
	return &Generator{rng: rng, length: DefaultLength}
}

// Next returns a fresh code. Uniqueness is the caller's problem; the
// room lifecycle manager retries against the live store on collision.
func (g *Generator) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	b := make([]byte, g.length)
	for i := range b {
		b[i] = Alphabet[g.rng.Intn(len(Alphabet))]
	}
	return string(b)
}

// Normalize canonicalizes a client-supplied code: trimmed, uppercase.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
