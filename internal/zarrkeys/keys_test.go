package zarrkeys

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsMetaKey(t *testing.T) {
	require.True(t, IsMetaKey(".zgroup"))
	require.True(t, IsMetaKey("group/dataset/.zarray"))
	require.False(t, IsMetaKey("0.0"))
}

func TestDirAndJoin(t *testing.T) {
	require.Equal(t, "group/dataset", Dir("group/dataset/.zarray"))
	require.Equal(t, "", Dir(".zgroup"))
	require.Equal(t, "group/dataset/.zarray", Join("group/dataset", ".zarray"))
	require.Equal(t, ".zgroup", Join("", ".zgroup"))
}

func TestIsValid(t *testing.T) {
	require.True(t, IsValid(".zgroup"))
	require.True(t, IsValid("group/dataset/.zarray"))
	require.False(t, IsValid(""))
	require.False(t, IsValid("/leading"))
	require.False(t, IsValid("trailing/"))
	require.False(t, IsValid("group/../escape"))
	require.False(t, IsValid("group//dataset"))
}

func TestChunkIndicesAndKey(t *testing.T) {
	indices, err := ChunkIndices("1.2.3")
	require.NoError(t, err)
	require.Equal(t, []int{1, 2, 3}, indices)

	_, err = ChunkIndices("1.x.3")
	require.Error(t, err)

	require.Equal(t, "group/1.2.3", ChunkKey("group", []int{1, 2, 3}))
}
