package snapshot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fxperp/fxperpd/internal/core/book"
	"github.com/fxperp/fxperpd/internal/core/engine"
	"github.com/fxperp/fxperpd/internal/core/fixed"
	"github.com/fxperp/fxperpd/internal/core/state"
	"github.com/fxperp/fxperpd/internal/core/vault"
)

func testState(takenAt int64) *engine.State {
	return &engine.State{
		TakenAt: takenAt,
		Quote: map[state.Address]fixed.Amount{
			"alice": fixed.FromUnits(100),
		},
		Markets: []engine.MarketState{
			{
				Name: "fxEUR",
				Vaults: []vault.Vault{
					{ID: 0, Owner: "alice", Collateral: fixed.FromUnits(100), Debt: fixed.FromUnits(90)},
				},
				Multiplier: fixed.MustParse("1.0625"),
				Static: map[state.Address]fixed.Amount{
					"alice": fixed.FromUnits(90),
				},
				DynamicInternal: map[state.Address]fixed.Amount{},
			},
		},
		Book: book.Snapshot{},
	}
}

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestLatestOnEmptyStore(t *testing.T) {
	s := openStore(t)
	_, _, err := s.Latest()
	assert.ErrorIs(t, err, ErrNoSnapshot)
}

func TestSaveAndLoad(t *testing.T) {
	s := openStore(t)

	seq, err := s.Save(testState(1000))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), seq)

	seq, err = s.Save(testState(2000))
	require.NoError(t, err)
	assert.Equal(t, uint64(2), seq)

	got, latest, err := s.Latest()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), latest)
	assert.Equal(t, int64(2000), got.TakenAt)

	require.Len(t, got.Markets, 1)
	m := got.Markets[0]
	assert.Equal(t, "fxEUR", m.Name)
	assert.True(t, m.Multiplier.Equal(fixed.MustParse("1.0625")))
	require.Len(t, m.Vaults, 1)
	assert.Equal(t, state.Address("alice"), m.Vaults[0].Owner)
	assert.True(t, m.Vaults[0].Debt.Equal(fixed.FromUnits(90)))
	assert.True(t, got.Quote["alice"].Equal(fixed.FromUnits(100)))

	older, err := s.Load(1)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), older.TakenAt)
}

func TestPrune(t *testing.T) {
	s := openStore(t)
	for i := int64(1); i <= 5; i++ {
		_, err := s.Save(testState(i * 100))
		require.NoError(t, err)
	}

	require.NoError(t, s.Prune(2))

	_, err := s.Load(3)
	assert.ErrorIs(t, err, ErrNoSnapshot)
	_, err = s.Load(4)
	require.NoError(t, err)

	// The latest pointer survives pruning, and new saves continue from it.
	seq, err := s.Save(testState(600))
	require.NoError(t, err)
	assert.Equal(t, uint64(6), seq)
}

func TestStateSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)
	_, err = s.Save(testState(1234))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(dir)
	require.NoError(t, err)
	defer s.Close()
	got, seq, err := s.Latest()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), seq)
	assert.Equal(t, int64(1234), got.TakenAt)
}
