package stream

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/trailview/trailview/internal/audit"
)

func newTestBroker(t *testing.T) *Broker {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewBroker(client, 4)
}

func TestBrokerPublishSubscribe(t *testing.T) {
	broker := newTestBroker(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sub, err := broker.Subscribe(ctx, "tenant-1")
	require.NoError(t, err)
	defer sub.Close()

	batch := []audit.Record{
		{ID: "r1", TenantID: "tenant-1", Action: audit.ActionCreate, ResourceType: "vendor"},
		{ID: "r2", TenantID: "tenant-1", Action: audit.ActionDelete, ResourceType: "vendor"},
	}
	require.NoError(t, broker.Publish(ctx, "tenant-1", batch))

	select {
	case got := <-sub.Records():
		require.Len(t, got, 2)
		require.Equal(t, "r1", got[0].ID)
		require.Equal(t, audit.ActionDelete, got[1].Action)
	case <-ctx.Done():
		t.Fatal("timed out waiting for batch")
	}
}

func TestBrokerTenantIsolation(t *testing.T) {
	broker := newTestBroker(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sub, err := broker.Subscribe(ctx, "tenant-a")
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, broker.Publish(ctx, "tenant-b", []audit.Record{{ID: "other"}}))
	require.NoError(t, broker.Publish(ctx, "tenant-a", []audit.Record{{ID: "mine"}}))

	select {
	case got := <-sub.Records():
		require.Len(t, got, 1)
		require.Equal(t, "mine", got[0].ID)
	case <-ctx.Done():
		t.Fatal("timed out waiting for batch")
	}
}

func TestBrokerPublishEmptyBatchIsNoop(t *testing.T) {
	broker := newTestBroker(t)
	require.NoError(t, broker.Publish(context.Background(), "tenant-1", nil))
}

func TestBrokerCloseEndsFeed(t *testing.T) {
	broker := newTestBroker(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sub, err := broker.Subscribe(ctx, "tenant-1")
	require.NoError(t, err)
	require.NoError(t, sub.Close())

	select {
	case _, ok := <-sub.Records():
		require.False(t, ok, "records channel should be closed")
	case <-ctx.Done():
		t.Fatal("timed out waiting for channel close")
	}
}
