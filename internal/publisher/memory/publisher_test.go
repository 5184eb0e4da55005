package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPublisherStoresMessages(t *testing.T) {
	t.Parallel()

	pub := New()
	id1, err := pub.Publish(context.Background(), "crawl-perm-started", map[string]string{"date": "2017-10-05"})
	require.NoError(t, err)
	require.Equal(t, "memory-1", id1)
	id2, err := pub.Publish(context.Background(), "crawl-perm-done", "payload")
	require.NoError(t, err)
	require.Equal(t, "memory-2", id2)

	require.Equal(t, []string{"crawl-perm-started", "crawl-perm-done"}, pub.Topics())

	msgs := pub.Messages()
	require.Len(t, msgs, 2)
	msgs[0].Topic = "modified"
	require.NotEqual(t, "modified", pub.Messages()[0].Topic)
}

func TestPublisherFailWith(t *testing.T) {
	t.Parallel()

	pub := New()
	boom := errors.New("topic unavailable")
	pub.FailWith(boom)

	_, err := pub.Publish(context.Background(), "crawl-perm-failed", nil)
	require.ErrorIs(t, err, boom)
	require.Empty(t, pub.Messages())

	pub.FailWith(nil)
	_, err = pub.Publish(context.Background(), "crawl-perm-failed", nil)
	require.NoError(t, err)
}
