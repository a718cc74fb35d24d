package pubsub

import (
	"context"
	"testing"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

func newTestClient(t *testing.T) (*pubsub.Client, *pstest.Server) {
	t.Helper()

	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	client, err := pubsub.NewClient(context.Background(), "test-project", option.WithGRPCConn(conn))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client, srv
}

func TestPublishSendsJSON(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	client, srv := newTestClient(t)
	_, err := client.CreateTopic(ctx, "job-scraped")
	require.NoError(t, err)

	pub := New(client)
	defer pub.Close()

	id, err := pub.Publish(ctx, "job-scraped", map[string]string{"job_id": "abc"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	_, err = pub.Publish(ctx, "job-scraped", map[string]string{"job_id": "def"})
	require.NoError(t, err)
	require.Len(t, pub.topics, 1, "topic handles are reused")

	msgs := srv.Messages()
	require.Len(t, msgs, 2)
	require.JSONEq(t, `{"job_id":"abc"}`, string(msgs[0].Data))
	require.Equal(t, "application/json", msgs[0].Attributes["content_type"])
}

func TestPublishErrors(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	_, err := New(nil).Publish(ctx, "t", "x")
	require.Error(t, err)

	client, _ := newTestClient(t)
	pub := New(client)
	defer pub.Close()

	_, err = pub.Publish(ctx, "", "x")
	require.Error(t, err)
	_, err = pub.Publish(ctx, "t", make(chan int))
	require.Error(t, err)
	_, err = pub.Publish(ctx, "missing-topic", "x")
	require.Error(t, err)
}
