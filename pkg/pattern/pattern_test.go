package pattern

import (
	"strings"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAlphabetMatchesEncoder(t *testing.T) {
	require.Len(t, Alphabet, 58)
	for i, r := range Alphabet {
		raw, err := base58.Decode(string(r))
		require.NoError(t, err)
		// "1" is the leading-zero digit and decodes to a single zero byte.
		require.Len(t, raw, 1)
		assert.Equal(t, byte(i), raw[0], "digit %q", r)
	}
	for _, r := range "0OIl+/" {
		assert.NotContains(t, Alphabet, string(r))
	}
}

func TestValidateCharacters(t *testing.T) {
	valid := []string{"", "So1", "abc", "9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin"}
	for _, v := range valid {
		assert.NoError(t, ValidateCharacters("test", v), "ValidateCharacters(%q)", v)
	}

	invalid := map[string]string{
		"zero":          "S0L",
		"capital O":     "SOL",
		"capital I":     "Ice",
		"lowercase l":   "lol",
		"space":         "So 1",
		"punctuation":   "So!",
		"non ascii":     "Soé",
		"trailing zero": "abc0",
	}
	for name, v := range invalid {
		t.Run(name, func(t *testing.T) {
			err := ValidateCharacters("starts_with", v)
			require.ErrorIs(t, err, ErrInvalidCharacter)
			assert.Contains(t, err.Error(), "starts_with")
		})
	}
}

func TestSpecValidate(t *testing.T) {
	tests := []struct {
		name string
		spec Spec
		want error
	}{
		{"prefix only", Spec{Prefixes: []string{"So1"}}, nil},
		{"suffix only", Spec{Suffix: "xyz"}, nil},
		{"several prefixes", Spec{Prefixes: []string{"a", "bcd"}, Suffix: "z"}, nil},
		{"nothing", Spec{}, ErrEmptyPattern},
		{"empty prefix", Spec{Prefixes: []string{""}, Suffix: "z"}, ErrEmptyPrefix},
		{"bad prefix", Spec{Prefixes: []string{"ok", "n0"}}, ErrInvalidCharacter},
		{"bad suffix", Spec{Prefixes: []string{"ok"}, Suffix: "I"}, ErrInvalidCharacter},
		{"too long", Spec{Prefixes: []string{strings.Repeat("a", 40)}, Suffix: "bcdef"}, ErrTooLong},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.spec.Validate()
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestPaddedPrefixes(t *testing.T) {
	s := Spec{Prefixes: []string{"ab", "cdef", "g"}}
	assert.Equal(t, 4, s.PrefixWidth())
	assert.Equal(t, [][]byte{
		{'a', 'b', 0, 0},
		{'c', 'd', 'e', 'f'},
		{'g', 0, 0, 0},
	}, s.PaddedPrefixes())

	assert.Equal(t, [][]byte{{}}, Spec{Suffix: "x"}.PaddedPrefixes())
}

func TestMatch(t *testing.T) {
	addr := "So1aNaPubKeyEndsWithXyz"
	tests := []struct {
		name string
		spec Spec
		want bool
	}{
		{"prefix", Spec{Prefixes: []string{"So1"}, CaseSensitive: true}, true},
		{"wrong case", Spec{Prefixes: []string{"so1"}, CaseSensitive: true}, false},
		{"case insensitive", Spec{Prefixes: []string{"so1"}}, true},
		{"second prefix", Spec{Prefixes: []string{"Abc", "So1a"}, CaseSensitive: true}, true},
		{"suffix", Spec{Suffix: "Xyz", CaseSensitive: true}, true},
		{"suffix insensitive", Spec{Suffix: "XYZ"}, true},
		{"prefix and suffix", Spec{Prefixes: []string{"So"}, Suffix: "yz", CaseSensitive: true}, true},
		{"prefix ok suffix wrong", Spec{Prefixes: []string{"So"}, Suffix: "abc", CaseSensitive: true}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.spec.Match(addr))
			padded := MatchPadded([]byte(addr), tt.spec.PaddedPrefixes(), []byte(tt.spec.Suffix), tt.spec.CaseSensitive)
			assert.Equal(t, tt.want, padded, "MatchPadded disagrees with Match")
		})
	}
}

func TestMatchPaddedShortAddress(t *testing.T) {
	assert.False(t, MatchPadded([]byte("ab"), [][]byte{[]byte("abc")}, nil, true))
	assert.False(t, MatchPadded([]byte("ab"), [][]byte{{}}, []byte("xab"), true))
	assert.True(t, MatchPadded("abXY", [][]byte{[]byte("AB\x00")}, []byte("xy"), false))
	assert.False(t, MatchPadded("abXY", [][]byte{[]byte("AB\x00")}, []byte("xy"), true))
}
