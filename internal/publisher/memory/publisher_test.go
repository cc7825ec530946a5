package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPublisherRecordsEncodedPayloads(t *testing.T) {
	t.Parallel()

	pub := New()
	id, err := pub.Publish(context.Background(), "jobs", map[string]string{"job_id": "a"})
	require.NoError(t, err)
	require.Equal(t, "memory-1", id)
	id, err = pub.Publish(context.Background(), "audit", "plain")
	require.NoError(t, err)
	require.Equal(t, "memory-2", id)

	msgs := pub.Messages()
	require.Len(t, msgs, 2)
	require.Equal(t, "jobs", msgs[0].Topic)
	require.JSONEq(t, `{"job_id":"a"}`, string(msgs[0].Data))

	var got string
	require.NoError(t, msgs[1].Decode(&got))
	require.Equal(t, "plain", got)

	msgs[0].Topic = "changed"
	require.Equal(t, "jobs", pub.Messages()[0].Topic)
}

func TestPublisherFailWith(t *testing.T) {
	t.Parallel()

	pub := New()
	boom := errors.New("unavailable")
	pub.FailWith(boom)
	_, err := pub.Publish(context.Background(), "jobs", 1)
	require.ErrorIs(t, err, boom)
	require.Empty(t, pub.Messages())

	pub.FailWith(nil)
	_, err = pub.Publish(context.Background(), "jobs", 1)
	require.NoError(t, err)
}

func TestPublisherRejectsUnencodable(t *testing.T) {
	t.Parallel()

	_, err := New().Publish(context.Background(), "jobs", make(chan int))
	require.ErrorContains(t, err, "marshal payload")
}
