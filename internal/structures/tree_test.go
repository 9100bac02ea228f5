package structures

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTree_SearchWithoutRoot(t *testing.T) {
	_, tree := newTestDialect(t)
	_, _, err := tree.Search(1)
	require.ErrorIs(t, err, ErrTreeNotInitialised)
}

func TestTree_CreateEmptyThenSearchMisses(t *testing.T) {
	_, tree := newTestDialect(t)
	ref, err := tree.CreateEmpty()
	require.NoError(t, err)
	assert.NotZero(t, ref)

	got, found, err := tree.Search(42)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, got)
}

func TestTree_InsertThenSearchRoundTrip(t *testing.T) {
	_, tree := newTestDialect(t)
	_, err := tree.CreateEmpty()
	require.NoError(t, err)

	entry := leafEntry(tree.geo, 7, 0xAB)
	status, err := tree.Insert(entry)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, status)

	value, found, err := tree.Search(7)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, entry[tree.geo.KeySize:], value)

	require.NoError(t, tree.walk())
}

func TestTree_InsertDuplicateRejected(t *testing.T) {
	_, tree := newTestDialect(t)
	_, err := tree.CreateEmpty()
	require.NoError(t, err)

	entry := leafEntry(tree.geo, 3, 1)
	status, err := tree.Insert(entry)
	require.NoError(t, err)
	require.Equal(t, StatusSuccess, status)

	status, err = tree.Insert(leafEntry(tree.geo, 3, 2))
	require.NoError(t, err)
	assert.Equal(t, StatusDuplicate, status)
}

func TestTree_InsertRejectsWrongSizedEntry(t *testing.T) {
	_, tree := newTestDialect(t)
	_, err := tree.CreateEmpty()
	require.NoError(t, err)

	_, err = tree.Insert([]byte{1, 2, 3})
	require.ErrorIs(t, err, ErrBadEntrySize)
}

func TestChildSlotFor(t *testing.T) {
	assert.Equal(t, 5, childSlotFor(true, 5))
	assert.Equal(t, 2, childSlotFor(false, 3))
	assert.Equal(t, 0, childSlotFor(false, 0))
}
