package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-school-api/internal/dto"
)

func TestImportProgressBrokerDeliversToSubscribersOfSameImport(t *testing.T) {
	broker := NewImportProgressBroker(nil, "", nil, testLogger())

	events, cleanup := broker.Subscribe("import-1")
	defer cleanup()
	other, cleanupOther := broker.Subscribe("import-2")
	defer cleanupOther()

	broker.Publish(context.Background(), dto.ImportProgressEvent{ImportID: "import-1", Processed: 1, Total: 2})

	select {
	case event := <-events:
		require.Equal(t, 1, event.Processed)
		require.False(t, event.At.IsZero())
	case <-time.After(time.Second):
		t.Fatal("expected progress event")
	}

	select {
	case <-other:
		t.Fatal("unexpected event for another import")
	default:
	}

	latest, ok := broker.Latest("import-1")
	require.True(t, ok)
	require.Equal(t, 2, latest.Total)
}

func TestImportProgressBrokerCleanupIsIdempotent(t *testing.T) {
	broker := NewImportProgressBroker(nil, "", nil, testLogger())
	events, cleanup := broker.Subscribe("import-1")
	cleanup()
	cleanup()

	_, open := <-events
	require.False(t, open)
}

func TestImportProgressBrokerRelaysRemoteEventsFromRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	broker := NewImportProgressBroker(client, "school", nil, testLogger())
	broker.Start(ctx)

	events, cleanup := broker.Subscribe("remote-import")
	defer cleanup()

	payload, err := json.Marshal(progressEnvelope{
		Source: "another-node",
		Event:  dto.ImportProgressEvent{ImportID: "remote-import", Processed: 3, Total: 3, Done: true},
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return client.Publish(ctx, "school:imports:progress", payload).Val() > 0
	}, 2*time.Second, 20*time.Millisecond)

	select {
	case event := <-events:
		require.True(t, event.Done)
		require.Equal(t, 3, event.Processed)
	case <-time.After(2 * time.Second):
		t.Fatal("expected relayed progress event")
	}
}

func TestImportProgressBrokerDeliversDoneToLaggingSubscriber(t *testing.T) {
	broker := NewImportProgressBroker(nil, "", nil, testLogger())
	events, cleanup := broker.Subscribe("slow-import")
	defer cleanup()

	ctx := context.Background()
	for i := 1; i <= 40; i++ {
		broker.Publish(ctx, dto.ImportProgressEvent{ImportID: "slow-import", Processed: i, Total: 40})
	}
	broker.Publish(ctx, dto.ImportProgressEvent{ImportID: "slow-import", Processed: 40, Total: 40, Done: true})

	var last dto.ImportProgressEvent
	received := 0
	for drained := false; !drained; {
		select {
		case event := <-events:
			last = event
			received++
		default:
			drained = true
		}
	}

	require.Equal(t, progressBufferSize, received)
	require.True(t, last.Done)
	require.Equal(t, 40, last.Processed)
}

func TestImportProgressBrokerIgnoresOutOfOrderRelay(t *testing.T) {
	broker := NewImportProgressBroker(nil, "", nil, testLogger()).(*importProgressBroker)
	events, cleanup := broker.Subscribe("relayed")
	defer cleanup()

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	relay := func(event dto.ImportProgressEvent) {
		payload, err := json.Marshal(progressEnvelope{Source: "another-node", Event: event})
		require.NoError(t, err)
		broker.handleEnvelope(payload)
	}

	done := dto.ImportProgressEvent{ImportID: "relayed", Processed: 2, Total: 2, Done: true, At: base.Add(time.Second)}
	relay(done)
	relay(dto.ImportProgressEvent{ImportID: "relayed", Processed: 1, Total: 2, At: base})
	relay(done)

	require.Len(t, events, 1)
	event := <-events
	require.True(t, event.Done)

	latest, ok := broker.Latest("relayed")
	require.True(t, ok)
	require.True(t, latest.Done)
	require.Equal(t, 2, latest.Processed)
}
