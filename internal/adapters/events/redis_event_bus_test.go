//go:build integration

package events_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cdx-ehr/billreview/internal/adapters/events"
	"github.com/cdx-ehr/billreview/internal/domain/entities"
	"github.com/cdx-ehr/billreview/internal/domain/providers"
	"github.com/cdx-ehr/billreview/internal/infrastructure/clients/redis"
	"github.com/cdx-ehr/billreview/pkg/config"
)

func newTestRedisClient(t *testing.T) *redis.Client {
	t.Helper()

	host := os.Getenv("TEST_REDIS_HOST")
	if host == "" {
		t.Skip("Skipping integration test: TEST_REDIS_HOST not set")
	}

	client, err := redis.NewClient(&config.RedisConfig{Host: host, Port: 6379, DB: 0})
	require.NoError(t, err)
	return client
}

func waitForBillEvent(t *testing.T, events <-chan *entities.BillEvent) *entities.BillEvent {
	t.Helper()

	select {
	case event := <-events:
		return event
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for bill event")
		return nil
	}
}

func TestRedisEventBus_Fanout(t *testing.T) {
	redisClient := newTestRedisClient(t)
	defer redisClient.Close()

	eventBus := events.NewRedisEventBus(redisClient)
	defer eventBus.Close()

	channel := providers.EventChannelBillUpdates
	ctx1, cancel1 := context.WithCancel(context.Background())
	ctx2, cancel2 := context.WithCancel(context.Background())
	defer cancel1()
	defer cancel2()

	sub1, err := eventBus.Subscribe(ctx1, channel)
	require.NoError(t, err)
	sub2, err := eventBus.Subscribe(ctx2, channel)
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)

	action := entities.ActionToReview
	event := entities.NewBillEvent("bill-redis-1", entities.BillEventTypeMapped,
		entities.BillStatusReceived, entities.BillStatusMapped, &action)

	err = eventBus.Publish(context.Background(), channel, event)
	require.NoError(t, err)

	received1 := waitForBillEvent(t, sub1)
	received2 := waitForBillEvent(t, sub2)

	assert.Equal(t, event.ID, received1.ID)
	assert.Equal(t, event.ID, received2.ID)
	assert.Equal(t, entities.BillStatusMapped, received1.ToStatus)
}

func TestRedisEventBus_BillChannel(t *testing.T) {
	redisClient := newTestRedisClient(t)
	defer redisClient.Close()

	eventBus := events.NewRedisEventBus(redisClient)
	defer eventBus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	channel := providers.GetBillChannel("bill-redis-2")
	sub, err := eventBus.Subscribe(ctx, channel)
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)

	event := entities.NewBillEvent("bill-redis-2", entities.BillEventTypeAdjudicated,
		entities.BillStatusMapped, entities.BillStatusReviewed, nil)
	require.NoError(t, eventBus.Publish(context.Background(), channel, event))

	received := waitForBillEvent(t, sub)
	assert.Equal(t, "bill-redis-2", received.BillID)
	assert.Equal(t, entities.BillEventTypeAdjudicated, received.EventType)

	require.NoError(t, eventBus.Unsubscribe(context.Background(), channel))
}
