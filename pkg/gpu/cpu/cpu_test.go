package cpu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/solvanity/pkg/kernel"
	"github.com/orneryd/solvanity/pkg/keypair"
	"github.com/orneryd/solvanity/pkg/keyspace"
	"github.com/orneryd/solvanity/pkg/pattern"
)

func addressAt(base keyspace.Seed, offset uint64) (keyspace.Seed, string) {
	s := base
	keyspace.AdvanceBy(&s, offset)
	return s, keypair.Encode(keypair.Derive(s))
}

func TestDevices(t *testing.T) {
	devs := Devices(3)
	require.Len(t, devs, 3)
	for i, d := range devs {
		assert.Equal(t, i, d.Index())
		assert.Equal(t, BackendName, d.Backend())
		assert.GreaterOrEqual(t, d.Lanes(), 1)
		assert.Contains(t, d.Name(), "CPU")
	}
}

func TestProgramFindsCandidateInWindow(t *testing.T) {
	var base keyspace.Seed
	base[0] = 0x42

	args := kernel.DispatchArgs{
		IterationBytes:   1,
		GlobalSize:       64,
		WorkerOffset:     1,
		TotalParallelism: 2,
	}
	target, addr := addressAt(base, args.Candidate(10))

	for _, lanes := range []int{1, 3, 8} {
		dev := NewDevice(0, lanes)
		prog, err := dev.Build(kernel.ConstantsFor(pattern.Spec{Prefixes: []string{addr}, CaseSensitive: true}))
		require.NoError(t, err)

		var out kernel.MatchResult
		before := base
		require.NoError(t, prog.Run(&base, args, &out))
		assert.Equal(t, before, base, "program must not modify the seed")
		assert.True(t, out.Found(), "lanes=%d", lanes)
		assert.Equal(t, target, out.Seed, "lanes=%d", lanes)
		prog.Release()
	}
}

func TestProgramSkipsOtherWorkersCandidates(t *testing.T) {
	var base keyspace.Seed
	base[5] = 0x01

	args := kernel.DispatchArgs{GlobalSize: 32, WorkerOffset: 0, TotalParallelism: 2}
	// Offset 3 belongs to worker 1, not worker 0.
	_, addr := addressAt(base, 3)

	prog, err := NewDevice(0, 2).Build(kernel.ConstantsFor(pattern.Spec{Suffix: addr, CaseSensitive: true}))
	require.NoError(t, err)

	var out kernel.MatchResult
	require.NoError(t, prog.Run(&base, args, &out))
	assert.False(t, out.Found())
}

func TestProgramAnyPrefixMatchesFirstCandidate(t *testing.T) {
	var base keyspace.Seed
	_, addr := addressAt(base, 2)
	suffix := addr[len(addr)-1:]

	prog, err := NewDevice(0, 1).Build(kernel.ConstantsFor(pattern.Spec{Suffix: suffix, CaseSensitive: true}))
	require.NoError(t, err)

	var out kernel.MatchResult
	args := kernel.DispatchArgs{GlobalSize: 1, WorkerOffset: 2, TotalParallelism: 4}
	require.NoError(t, prog.Run(&base, args, &out))
	require.True(t, out.Found())

	want, _ := addressAt(base, 2)
	assert.Equal(t, want, out.Seed)
}

func TestProgramRejectsZeroParallelism(t *testing.T) {
	prog, err := NewDevice(0, 1).Build(kernel.Constants{Prefixes: [][]byte{{}}})
	require.NoError(t, err)
	var seed keyspace.Seed
	var out kernel.MatchResult
	assert.Error(t, prog.Run(&seed, kernel.DispatchArgs{GlobalSize: 1}, &out))
}
