package gcs

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewValidatesConfig(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{Bucket: "perm-pages"})
	require.ErrorContains(t, err, "client is required")
}

func TestObjectKey(t *testing.T) {
	t.Parallel()

	key, err := objectKey("raw/2017-10-05/run-1/page-0001.json")
	require.NoError(t, err)
	require.Equal(t, "raw/2017-10-05/run-1/page-0001.json", key)

	key, err = objectKey("/2017-10-05//page-0001.json")
	require.NoError(t, err)
	require.Equal(t, "2017-10-05/page-0001.json", key)

	_, err = objectKey("  ")
	require.Error(t, err)

	_, err = objectKey("/")
	require.Error(t, err)
}
