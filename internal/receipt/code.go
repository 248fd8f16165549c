// Package receipt defines the receipt code format shared by the billing
// writer and the gate verification reader.
package receipt

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/width"
)

const DefaultPrefix = "EST"

const letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// Normalize returns the canonical form of a typed code: full-width
// characters folded to ASCII, surrounding whitespace trimmed, uppercased.
func Normalize(s string) string {
	s = width.Fold.String(s)
	s = strings.TrimSpace(s)
	return cases.Upper(language.Und).String(s)
}

// Generator mints codes shaped like EST-7834-XKL. It does not check
// uniqueness; callers own that against their code history.
type Generator struct {
	prefix string
	rand   io.Reader
}

func NewGenerator(prefix string) *Generator {
	prefix = Normalize(prefix)
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Generator{prefix: prefix, rand: rand.Reader}
}

func (g *Generator) Prefix() string {
	return g.prefix
}

func (g *Generator) Next() (string, error) {
	n, err := rand.Int(g.rand, big.NewInt(10000))
	if err != nil {
		return "", fmt.Errorf("generate code digits: %w", err)
	}

	var suffix [3]byte
	for i := range suffix {
		idx, err := rand.Int(g.rand, big.NewInt(int64(len(letters))))
		if err != nil {
			return "", fmt.Errorf("generate code letters: %w", err)
		}
		suffix[i] = letters[idx.Int64()]
	}

	return fmt.Sprintf("%s-%04d-%s", g.prefix, n.Int64(), string(suffix[:])), nil
}
