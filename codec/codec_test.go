package codec

import (
	"bytes"
	"testing"

	"github.com/J-Pabon/ouisync/object"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeTreeIsDeterministic(t *testing.T) {
	tree := object.NewTree()
	tree.Entries["b"] = object.Sum([]byte("b"))
	tree.Entries["a"] = object.Sum([]byte("a"))

	first := bytes.NewBuffer(nil)
	enc := NewEncoder(first)
	require.NoError(t, enc.EncodeTree(tree))
	require.NoError(t, enc.Flush())

	second := bytes.NewBuffer(nil)
	enc = NewEncoder(second)
	require.NoError(t, enc.EncodeTree(tree))
	require.NoError(t, enc.Flush())

	assert.Equal(t, first.Bytes(), second.Bytes())
}

func TestCommitRoundTrip(t *testing.T) {
	user := object.NewUserID()
	stamp := object.NewVersionVector()
	stamp.Increment(user)
	commit := object.Commit{
		RootID: object.Sum([]byte("root")),
		Stamp:  stamp,
	}

	buff := bytes.NewBuffer(nil)
	enc := NewEncoder(buff)
	require.NoError(t, enc.EncodeCommit(commit))
	require.NoError(t, enc.Flush())

	decoded, err := NewDecoder(buff).DecodeCommit()
	require.NoError(t, err)

	assert.True(t, commit.Equal(decoded))
}

func TestDecodeDispatch(t *testing.T) {
	blob := object.Blob("payload")

	buff := bytes.NewBuffer(nil)
	enc := NewEncoder(buff)
	require.NoError(t, enc.Encode(blob))
	require.NoError(t, enc.Flush())

	value, err := NewDecoder(buff).Decode()
	require.NoError(t, err)

	assert.Equal(t, blob, value)
}

func TestIDSetMapRoundTrip(t *testing.T) {
	idA := object.Sum([]byte("a"))
	idB := object.Sum([]byte("b"))
	value := map[object.ID]map[object.ID]struct{}{
		idA: {idB: {}},
		idB: {},
	}

	buff := bytes.NewBuffer(nil)
	enc := NewEncoder(buff)
	require.NoError(t, enc.EncodeIDSetMap(value))
	require.NoError(t, enc.Flush())

	decoded, err := NewDecoder(buff).DecodeIDSetMap()
	require.NoError(t, err)

	assert.Equal(t, value, decoded)
}

func TestDecodeRejectsUnknownKind(t *testing.T) {
	_, err := NewDecoder(bytes.NewReader([]byte{0xff})).Decode()
	assert.Error(t, err)
}
