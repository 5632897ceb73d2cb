package pubsub

import (
	"context"
	"encoding/json"
	"testing"
	"time"

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

	client, err := pubsub.NewClient(context.Background(), "project-id", option.WithGRPCConn(conn))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client, srv
}

func TestNewRequiresExistingTopic(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t)
	_, err := New(context.Background(), client, "missing")
	require.Error(t, err)

	_, err = New(context.Background(), nil, "missing")
	require.Error(t, err)

	_, err = Connect(context.Background(), "", "topic")
	require.Error(t, err)
}

func TestPublisherPublishes(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	client, srv := newTestClient(t)
	_, err := client.CreateTopic(ctx, "curator-events")
	require.NoError(t, err)

	pub, err := New(ctx, client, "curator-events")
	require.NoError(t, err)

	id, err := pub.Publish(ctx, map[string]string{"kind": "products"}, map[string]any{"stage": "JOB_COMPLETED"})
	require.NoError(t, err)
	require.NotEmpty(t, id)
	require.NoError(t, pub.Close(ctx))

	require.Eventually(t, func() bool { return len(srv.Messages()) == 1 }, time.Second, 10*time.Millisecond)
	msg := srv.Messages()[0]
	require.Equal(t, "products", msg.Attributes["kind"])
	var body map[string]any
	require.NoError(t, json.Unmarshal(msg.Data, &body))
	require.Equal(t, "JOB_COMPLETED", body["stage"])
}
