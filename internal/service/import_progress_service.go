package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-school-api/internal/dto"
	"github.com/noah-isme/gema-school-api/internal/observability"
)

const (
	progressBufferSize = 32
	progressRetention  = 10 * time.Minute
)

// ProgressPublisher receives one event per committed import row.
type ProgressPublisher interface {
	Publish(ctx context.Context, event dto.ImportProgressEvent)
}

// ImportProgressBroker fans import progress out to local subscribers and,
// when configured, to other nodes over NATS or, without NATS, redis.
type ImportProgressBroker interface {
	ProgressPublisher
	Subscribe(importID string) (<-chan dto.ImportProgressEvent, func())
	Latest(importID string) (dto.ImportProgressEvent, bool)
	Start(ctx context.Context)
}

type progressEnvelope struct {
	Source string                  `json:"source"`
	Event  dto.ImportProgressEvent `json:"event"`
}

type importProgressBroker struct {
	redis       *redis.Client
	redisStream string
	nats        *nats.Conn
	natsSubject string
	logger      zerolog.Logger
	nodeID      string
	now         func() time.Time

	mu          sync.RWMutex
	subscribers map[string]map[chan dto.ImportProgressEvent]struct{}
	latest      map[string]dto.ImportProgressEvent
}

// NewImportProgressBroker constructs the progress broker. Either transport may be nil.
func NewImportProgressBroker(redisClient *redis.Client, channelBase string, natsConn *nats.Conn, logger zerolog.Logger) ImportProgressBroker {
	stream := ""
	subject := ""
	if channelBase != "" {
		stream = channelBase + ":imports:progress"
		subject = strings.ReplaceAll(channelBase, ":", ".") + ".imports.progress"
	}

	return &importProgressBroker{
		redis:       redisClient,
		redisStream: stream,
		nats:        natsConn,
		natsSubject: subject,
		logger:      logger.With().Str("component", "import_progress_broker").Logger(),
		nodeID:      uuid.NewString(),
		now:         time.Now,
		subscribers: make(map[string]map[chan dto.ImportProgressEvent]struct{}),
		latest:      make(map[string]dto.ImportProgressEvent),
	}
}

func (b *importProgressBroker) Start(ctx context.Context) {
	switch {
	case b.useNATS():
		go b.consumeNATS(ctx)
	case b.useRedis():
		go b.consumeRedis(ctx)
	}
}

func (b *importProgressBroker) useNATS() bool {
	return b.nats != nil && b.natsSubject != ""
}

func (b *importProgressBroker) useRedis() bool {
	return !b.useNATS() && b.redis != nil && b.redisStream != ""
}

func (b *importProgressBroker) Publish(ctx context.Context, event dto.ImportProgressEvent) {
	if event.ImportID == "" {
		return
	}
	if event.At.IsZero() {
		event.At = b.now().UTC()
	}

	if !b.broadcast(event) {
		return
	}

	payload, err := json.Marshal(progressEnvelope{Source: b.nodeID, Event: event})
	if err != nil {
		return
	}

	switch {
	case b.useNATS():
		if err := b.nats.Publish(b.natsSubject, payload); err != nil {
			b.logger.Warn().Err(err).Str("import_id", event.ImportID).Msg("failed to publish progress to nats")
		}
	case b.useRedis():
		if err := b.redis.Publish(ctx, b.redisStream, payload).Err(); err != nil {
			b.logger.Warn().Err(err).Str("import_id", event.ImportID).Msg("failed to publish progress to redis")
		}
	}
}

func (b *importProgressBroker) Subscribe(importID string) (<-chan dto.ImportProgressEvent, func()) {
	channel := make(chan dto.ImportProgressEvent, progressBufferSize)

	b.mu.Lock()
	if _, exists := b.subscribers[importID]; !exists {
		b.subscribers[importID] = make(map[chan dto.ImportProgressEvent]struct{})
	}
	b.subscribers[importID][channel] = struct{}{}
	b.mu.Unlock()
	observability.ImportProgressSubscribers().Inc()

	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			b.mu.Lock()
			if subscribers, ok := b.subscribers[importID]; ok {
				delete(subscribers, channel)
				close(channel)
				if len(subscribers) == 0 {
					delete(b.subscribers, importID)
				}
			}
			b.mu.Unlock()
			observability.ImportProgressSubscribers().Dec()
		})
	}

	return channel, cleanup
}

// Latest returns the most recent event seen for an import, so late
// subscribers can render the current state.
func (b *importProgressBroker) Latest(importID string) (dto.ImportProgressEvent, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	event, ok := b.latest[importID]
	return event, ok
}

// broadcast stores and fans out event, reporting false when it was ignored
// as older than, or a repeat of, the stored latest event.
func (b *importProgressBroker) broadcast(event dto.ImportProgressEvent) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if previous, ok := b.latest[event.ImportID]; ok && staleProgress(event, previous) {
		return false
	}
	b.latest[event.ImportID] = event
	cutoff := b.now().Add(-progressRetention)
	for id, last := range b.latest {
		if last.At.Before(cutoff) {
			delete(b.latest, id)
		}
	}

	for ch := range b.subscribers[event.ImportID] {
		select {
		case ch <- event:
			continue
		default:
		}
		if !event.Done {
			// a lagging reader catches up from the next event
			continue
		}
		// Sends happen only under b.mu, so freeing one slot guarantees room.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- event:
		default:
		}
	}
	return true
}

func staleProgress(event, previous dto.ImportProgressEvent) bool {
	if event.At.Before(previous.At) {
		return true
	}
	return event.At.Equal(previous.At) &&
		event.Processed == previous.Processed &&
		event.Done == previous.Done
}

func (b *importProgressBroker) consumeRedis(ctx context.Context) {
	pubsub := b.redis.Subscribe(ctx, b.redisStream)
	defer func() { _ = pubsub.Close() }()

	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			b.logger.Error().Err(err).Msg("progress redis subscription closed")
			return
		}
		b.handleEnvelope([]byte(msg.Payload))
	}
}

func (b *importProgressBroker) consumeNATS(ctx context.Context) {
	// Every node needs every event, so this is a plain subscription rather
	// than a queue group.
	sub, err := b.nats.Subscribe(b.natsSubject, func(msg *nats.Msg) {
		b.handleEnvelope(msg.Data)
	})
	if err != nil {
		b.logger.Error().Err(err).Msg("failed to subscribe to nats progress subject")
		return
	}

	go func() {
		<-ctx.Done()
		if err := sub.Drain(); err != nil {
			b.logger.Warn().Err(err).Msg("failed to drain progress nats subscription")
		}
	}()
}

func (b *importProgressBroker) handleEnvelope(payload []byte) {
	var envelope progressEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		b.logger.Warn().Err(err).Msg("invalid progress event payload")
		return
	}
	if envelope.Source == b.nodeID || envelope.Event.ImportID == "" {
		return
	}
	b.broadcast(envelope.Event)
}
