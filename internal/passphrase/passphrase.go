// Package passphrase picks or generates the PSK applied during a rotation.
package passphrase

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/sethvargo/go-diceware/diceware"

	apperrors "meraki-toolkit/internal/errors"
)

const (
	// MinLength is the shortest PSK the dashboard accepts
	MinLength = 8

	// Symbols are the characters Randomize may insert
	Symbols = "@#!.&()="

	minWordLength = 8
	maxWordLength = 12
	phraseWords   = 6
)

// Rand is the randomness a Provider draws from
type Rand interface {
	// IntN returns a value in [0, n). n is always > 0.
	IntN(n int) int
}

// WordSource produces a list of words
type WordSource func(words int) ([]string, error)

// Provider resolves the passphrase of a run
type Provider struct {
	rand  Rand
	words WordSource
}

// Option configures a Provider
type Option func(*Provider)

// WithRand replaces the crypto-backed randomness
func WithRand(r Rand) Option {
	return func(p *Provider) { p.rand = r }
}

// WithWordSource replaces the diceware word list
func WithWordSource(w WordSource) Option {
	return func(p *Provider) { p.words = w }
}

// NewProvider returns a Provider using crypto/rand and the diceware list
func NewProvider(opts ...Option) *Provider {
	p := &Provider{
		rand:  cryptoRand{},
		words: diceware.Generate,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Resolve picks one candidate at random. An empty pick (or no candidates)
// is replaced by a generated word, and randomization is then forced on.
// The result is validated.
func (p *Provider) Resolve(candidates []string, randomize bool) (string, error) {
	var chosen string
	if len(candidates) > 0 {
		chosen = candidates[p.rand.IntN(len(candidates))]
	}

	if chosen == "" {
		generated, err := p.Generate()
		if err != nil {
			return "", err
		}
		chosen = generated
		randomize = true
	}

	if randomize {
		chosen = p.Randomize(chosen)
	}

	if err := Validate(chosen); err != nil {
		return "", err
	}
	return chosen, nil
}

// Generate returns a lowercase segment of 8 to 12 characters taken from a
// diceware phrase. Adjacent words are joined when needed.
func (p *Provider) Generate() (string, error) {
	words, err := p.words(phraseWords)
	if err != nil {
		return "", fmt.Errorf("generating word list: %w", err)
	}

	var segments []string
	for i := range words {
		segment := words[i]
		for j := i + 1; utf8.RuneCountInString(segment) < minWordLength && j < len(words); j++ {
			segment += words[j]
		}
		if utf8.RuneCountInString(segment) < minWordLength {
			continue
		}
		if r := []rune(segment); len(r) > maxWordLength {
			segment = string(r[:maxWordLength])
		}
		segments = append(segments, segment)
	}

	if len(segments) == 0 {
		return "", fmt.Errorf("word list produced no segment of at least %d characters", minWordLength)
	}
	return segments[p.rand.IntN(len(segments))], nil
}

// Randomize uppercases one letter in place, then inserts one symbol and one
// digit at random positions. The result is two characters longer than s,
// or three when s has no letter to uppercase and one is inserted instead.
func (p *Provider) Randomize(s string) string {
	r := []rune(s)

	var letters []int
	for i, c := range r {
		if unicode.IsLetter(c) {
			letters = append(letters, i)
		}
	}
	if len(letters) > 0 {
		i := letters[p.rand.IntN(len(letters))]
		r[i] = unicode.ToUpper(r[i])
	}
	if !hasUpper(r) {
		r = p.insert(r, rune('A'+p.rand.IntN(26)))
	}

	r = p.insert(r, rune(Symbols[p.rand.IntN(len(Symbols))]))
	r = p.insert(r, rune('0'+p.rand.IntN(10)))
	return string(r)
}

func (p *Provider) insert(r []rune, c rune) []rune {
	at := p.rand.IntN(len(r) + 1)
	out := make([]rune, 0, len(r)+1)
	out = append(out, r[:at]...)
	out = append(out, c)
	return append(out, r[at:]...)
}

func hasUpper(r []rune) bool {
	for _, c := range r {
		if unicode.IsUpper(c) {
			return true
		}
	}
	return false
}

// Validate rejects passphrases shorter than MinLength
func Validate(p string) error {
	if n := utf8.RuneCountInString(p); n < MinLength {
		return apperrors.NewConfigurationError(
			fmt.Sprintf("passphrase must be at least %d characters (got %d)", MinLength, n), nil)
	}
	return nil
}

// ParseCandidates splits a "::" separated list as used by MERAKITK_PSK
func ParseCandidates(value string) []string {
	if value == "" {
		return nil
	}
	return strings.Split(value, "::")
}

type cryptoRand struct{}

func (cryptoRand) IntN(n int) int {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		panic(fmt.Sprintf("crypto/rand: %v", err))
	}
	return int(v.Int64())
}
