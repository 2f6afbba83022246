package opencl

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/solvanity/pkg/kernel"
	"github.com/orneryd/solvanity/pkg/pattern"
)

const testTemplate = `#define __generic
#define N 1
#define L 3
constant uchar PREFIXES[N][L] = {{83, 111, 76}};
constant uchar SUFFIX[] = {};
constant bool CASE_SENSITIVE = true;
__kernel void generate_pubkey() {}
`

func TestRender(t *testing.T) {
	c := kernel.ConstantsFor(pattern.Spec{Prefixes: []string{"ab", "C"}, Suffix: "z"})
	src, err := Render(testTemplate, c, false)
	require.NoError(t, err)

	assert.Contains(t, src, "#define N 2\n")
	assert.Contains(t, src, "#define L 2\n")
	assert.Contains(t, src, "constant uchar PREFIXES[N][L] = {{97, 98}, {67, 0}};")
	assert.Contains(t, src, "constant uchar SUFFIX[] = {122};")
	assert.Contains(t, src, "constant bool CASE_SENSITIVE = false;")
	assert.Contains(t, src, "#define __generic\n")
	assert.Contains(t, src, "__kernel void generate_pubkey")
}

func TestRenderSuffixOnly(t *testing.T) {
	c := kernel.ConstantsFor(pattern.Spec{Suffix: "xy", CaseSensitive: true})
	src, err := Render(testTemplate, c, true)
	require.NoError(t, err)

	assert.Contains(t, src, "#define N 1\n")
	assert.Contains(t, src, "#define L 0\n")
	assert.Contains(t, src, "constant uchar PREFIXES[N][L] = {{}};")
	assert.Contains(t, src, "constant uchar SUFFIX[] = {120, 121};")
	assert.Contains(t, src, "CASE_SENSITIVE = true;")
	assert.False(t, strings.Contains(src, "#define __generic"))
}

func TestRenderCached(t *testing.T) {
	c := kernel.ConstantsFor(pattern.Spec{Prefixes: []string{"Q"}})
	before := renders.Stats().Hits
	_, err := Render(testTemplate, c, false)
	require.NoError(t, err)
	_, err = Render(testTemplate, c, false)
	require.NoError(t, err)
	assert.Greater(t, renders.Stats().Hits, before)
}

func TestRenderMissingPlaceholder(t *testing.T) {
	_, err := Render("__kernel void generate_pubkey() {}", kernel.Constants{}, false)
	assert.ErrorIs(t, err, ErrTemplate)
}
