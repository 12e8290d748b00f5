package crypto

import (
	"crypto/rand"
	"errors"
	"math"
	"math/bits"
)

const (
	defaultAlphabet string = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789_-"
	defaultSize     int    = 22 // 22 * 6 = 132 bits (uuid is 128 bits) of entropy
	maxAlphabetSize int    = 255
	minAlphabetSize int    = 8
)

// IDSize is the length of identifiers returned by NewID.
const IDSize = defaultSize

var (
	ErrAlphabetTooLong  = errors.New("alphabet must contain no more than 255 characters")
	ErrAlphabetTooShort = errors.New("alphabet must contain at least 8 characters")
	ErrAlphabetNotASCII = errors.New("alphabet must contain only ASCII characters")
	ErrDuplicateSymbol  = errors.New("alphabet must not repeat characters")
)

// IDGenerator produces URL-safe random identifiers for sessions, tokens and
// reset artifacts. Bytes outside the alphabet are rejected rather than folded
// with a modulo, so every symbol is equally likely.
type IDGenerator struct {
	alphabet string
	mask     byte
	size     int
}

var defaultIDs = &IDGenerator{
	alphabet: defaultAlphabet,
	mask:     maskFor(len(defaultAlphabet)),
	size:     defaultSize,
}

// NewID returns an identifier from the default alphabet and size.
func NewID() (string, error) {
	return defaultIDs.Generate()
}

// maskFor returns the smallest all-ones byte covering indexes 0..n-1.
func maskFor(n int) byte {
	if n <= 1 {
		return 1
	}
	return byte(1<<bits.Len(uint(n-1)) - 1)
}

func NewIDGenerator(alphabet string, size int) (*IDGenerator, error) {
	if alphabet == "" {
		alphabet = defaultAlphabet
	}
	if size <= 0 {
		size = defaultSize
	}

	if len(alphabet) > maxAlphabetSize {
		return nil, ErrAlphabetTooLong
	}
	if len(alphabet) < minAlphabetSize {
		return nil, ErrAlphabetTooShort
	}

	// Generate() indexes by byte, so every symbol has to be a single byte.
	seen := make(map[byte]bool, len(alphabet))
	for i := 0; i < len(alphabet); i++ {
		c := alphabet[i]
		if c > 127 {
			return nil, ErrAlphabetNotASCII
		}
		if seen[c] {
			return nil, ErrDuplicateSymbol
		}
		seen[c] = true
	}

	return &IDGenerator{
		alphabet: alphabet,
		mask:     maskFor(len(alphabet)),
		size:     size,
	}, nil
}

func (g *IDGenerator) Generate() (string, error) {
	n := len(g.alphabet)
	// Enough random bytes to fill the id in one read on average.
	step := int(math.Ceil(1.6 * float64(int(g.mask)*g.size) / float64(n)))
	if step < g.size {
		step = g.size
	}

	id := make([]byte, 0, g.size)
	buf := make([]byte, step)

	for len(id) < g.size {
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			idx := b & g.mask
			if int(idx) >= n {
				continue
			}
			id = append(id, g.alphabet[idx])
			if len(id) == g.size {
				break
			}
		}
	}

	return string(id), nil
}
