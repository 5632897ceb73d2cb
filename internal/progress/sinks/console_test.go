package sinks

import (
	"bytes"
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestConsoleSinkPrintsNotifications(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	sink := NewConsoleSink(&buf, false)
	require.NoError(t, sink.Consume(context.Background(), lifecycle(uuid.New(), "products")))
	require.NoError(t, sink.Close(context.Background()))

	require.Equal(t,
		"[info] products: Analysis started\n"+
			"[success] products: Analysis complete: 3/3 products analyzed\n",
		buf.String())
}

func TestConsoleSinkShowsProgressWhenAsked(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	sink := NewConsoleSink(&buf, true)
	require.NoError(t, sink.Consume(context.Background(), lifecycle(uuid.New(), "posts")))
	require.Contains(t, buf.String(), "[info] posts: Analyzing products: 3/3\n")
	require.NotContains(t, buf.String(), "connection refused")
}
