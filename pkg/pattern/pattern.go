// Package pattern validates and matches vanity address patterns.
//
// Patterns are base58 strings. A Spec holds any number of accepted prefixes,
// at most one suffix, and a case sensitivity flag. Validation runs before any
// device is touched; kernel constants are derived from a validated Spec.
package pattern

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mr-tron/base58"
)

// Alphabet is the Bitcoin/Solana base58 alphabet, in digit order. It is read
// back from the encoder so it always agrees with address encoding.
var Alphabet = alphabetOf(base58.BTCAlphabet)

// MaxAddressLength is the longest base58 encoding of a 32-byte public key.
const MaxAddressLength = 44

var (
	ErrInvalidCharacter = errors.New("pattern: character outside the base58 alphabet")
	ErrEmptyPattern     = errors.New("pattern: at least one prefix or suffix is required")
	ErrEmptyPrefix      = errors.New("pattern: prefix must be non-empty")
	ErrTooLong          = fmt.Errorf("pattern: prefix plus suffix exceeds %d characters", MaxAddressLength)
)

// alphabetOf lists the digits of a: every value below 58 encodes as one digit.
func alphabetOf(a *base58.Alphabet) string {
	var sb strings.Builder
	for v := 0; v < 58; v++ {
		sb.WriteString(base58.EncodeAlphabet([]byte{byte(v)}, a))
	}
	return sb.String()
}

// Spec describes which addresses count as a match.
type Spec struct {
	Prefixes      []string
	Suffix        string
	CaseSensitive bool
}

// ValidateCharacters checks that value only uses base58 characters. name is
// used in the error to tell the caller which field was wrong.
func ValidateCharacters(name, value string) error {
	if value == "" {
		return nil
	}
	if _, err := base58.Decode(value); err == nil {
		return nil
	}
	idx := strings.IndexFunc(value, func(r rune) bool {
		return !strings.ContainsRune(Alphabet, r)
	})
	return fmt.Errorf("%w: %q at position %d in %s", ErrInvalidCharacter, []rune(value[idx:])[0], idx, name)
}

// Validate checks every pattern in the spec.
func (s Spec) Validate() error {
	if len(s.Prefixes) == 0 && s.Suffix == "" {
		return ErrEmptyPattern
	}
	for i, p := range s.Prefixes {
		if p == "" {
			return fmt.Errorf("%w: starts_with[%d]", ErrEmptyPrefix, i)
		}
		if err := ValidateCharacters(fmt.Sprintf("starts_with[%d]", i), p); err != nil {
			return err
		}
		if len(p)+len(s.Suffix) > MaxAddressLength {
			return fmt.Errorf("%w: %q + %q", ErrTooLong, p, s.Suffix)
		}
	}
	if err := ValidateCharacters("ends_with", s.Suffix); err != nil {
		return err
	}
	if len(s.Suffix) > MaxAddressLength {
		return fmt.Errorf("%w: %q", ErrTooLong, s.Suffix)
	}
	return nil
}

// PrefixWidth returns the length of the longest prefix.
func (s Spec) PrefixWidth() int {
	width := 0
	for _, p := range s.Prefixes {
		if len(p) > width {
			width = len(p)
		}
	}
	return width
}

// PaddedPrefixes returns every prefix as bytes, zero-padded to PrefixWidth.
// With no prefixes it returns a single empty row, which the kernels treat as
// "any prefix".
func (s Spec) PaddedPrefixes() [][]byte {
	if len(s.Prefixes) == 0 {
		return [][]byte{{}}
	}
	width := s.PrefixWidth()
	out := make([][]byte, len(s.Prefixes))
	for i, p := range s.Prefixes {
		row := make([]byte, width)
		copy(row, p)
		out[i] = row
	}
	return out
}

// Match reports whether address satisfies the spec.
func (s Spec) Match(address string) bool {
	if !s.CaseSensitive {
		address = strings.ToLower(address)
	}
	if s.Suffix != "" && !strings.HasSuffix(address, s.fold(s.Suffix)) {
		return false
	}
	if len(s.Prefixes) == 0 {
		return true
	}
	for _, p := range s.Prefixes {
		if strings.HasPrefix(address, s.fold(p)) {
			return true
		}
	}
	return false
}

// MatchPadded is the byte-level matcher used by kernels: prefixes are
// zero-padded rows and a zero byte terminates a row early. address may be an
// encoded string or a byte buffer.
func MatchPadded[A ~string | ~[]byte](address A, prefixes [][]byte, suffix []byte, caseSensitive bool) bool {
	if len(suffix) > len(address) {
		return false
	}
	off := len(address) - len(suffix)
	for i := range suffix {
		if !equalByte(address[off+i], suffix[i], caseSensitive) {
			return false
		}
	}
	for _, row := range prefixes {
		if matchRow(address, row, caseSensitive) {
			return true
		}
	}
	return false
}

func matchRow[A ~string | ~[]byte](address A, row []byte, caseSensitive bool) bool {
	for i, c := range row {
		if c == 0 {
			return true
		}
		if i >= len(address) || !equalByte(address[i], c, caseSensitive) {
			return false
		}
	}
	return true
}

func equalByte(a, b byte, caseSensitive bool) bool {
	if caseSensitive {
		return a == b
	}
	return lower(a) == lower(b)
}

func lower(c byte) byte {
	if c >= 'A' && c <= 'Z' {
		return c + ('a' - 'A')
	}
	return c
}

func (s Spec) fold(p string) string {
	if s.CaseSensitive {
		return p
	}
	return strings.ToLower(p)
}

// String formats the spec for logs.
func (s Spec) String() string {
	quoted := make([]string, len(s.Prefixes))
	for i, p := range s.Prefixes {
		quoted[i] = fmt.Sprintf("%q", p)
	}
	return fmt.Sprintf("starts_with=(%s) ends_with=%q case_sensitive=%t",
		strings.Join(quoted, ", "), s.Suffix, s.CaseSensitive)
}
