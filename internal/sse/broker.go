package sse

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	redisclient "github.com/vipclub/access-server/internal/redis"
)

const (
	HeartbeatInterval = 30 * time.Second
	// TopicAdmin carries grant lifecycle activity for the admin dashboard.
	TopicAdmin   = "admin"
	clientBuffer = 64
)

type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type Client struct {
	Topic  string
	Events chan Event
	Done   chan struct{}
}

// PubSub is the subset of the Redis client the broker needs.
type PubSub interface {
	Publish(ctx context.Context, channel string, message interface{}) *goredis.IntCmd
	Subscribe(ctx context.Context, channels ...string) *goredis.PubSub
}

// Broker fans Redis pub/sub messages out to local SSE clients, so an event
// published by any replica reaches every connected dashboard. Each topic
// holds one Redis subscription while it has at least one local client.
type Broker struct {
	redis     PubSub
	clients   map[string]map[*Client]bool
	listeners map[string]context.CancelFunc
	mu        sync.RWMutex
	ctx       context.Context
	cancel    context.CancelFunc
	running   atomic.Int32
}

func NewBroker(redis PubSub) *Broker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Broker{
		redis:     redis,
		clients:   make(map[string]map[*Client]bool),
		listeners: make(map[string]context.CancelFunc),
		ctx:       ctx,
		cancel:    cancel,
	}
}

func (b *Broker) Subscribe(topic string) *Client {
	client := &Client{
		Topic:  topic,
		Events: make(chan Event, clientBuffer),
		Done:   make(chan struct{}),
	}

	b.mu.Lock()
	if b.clients[topic] == nil {
		b.clients[topic] = make(map[*Client]bool)
		b.startListener(topic)
	}
	b.clients[topic][client] = true
	count := len(b.clients[topic])
	b.mu.Unlock()

	log.Info().Str("topic", topic).Int("clientCount", count).Msg("sse client subscribed")
	return client
}

func (b *Broker) Unsubscribe(client *Client) {
	b.mu.Lock()
	defer b.mu.Unlock()

	clients, ok := b.clients[client.Topic]
	if !ok || !clients[client] {
		return
	}
	delete(clients, client)
	close(client.Done)
	if len(clients) == 0 {
		delete(b.clients, client.Topic)
		b.stopListener(client.Topic)
	}

	log.Info().Str("topic", client.Topic).Int("clientCount", len(clients)).Msg("sse client unsubscribed")
}

func (b *Broker) Publish(ctx context.Context, topic string, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return b.redis.Publish(ctx, redisclient.EventChannel(topic), data).Err()
}

// startListener must be called with mu held.
func (b *Broker) startListener(topic string) {
	if b.redis == nil {
		return
	}
	ctx, cancel := context.WithCancel(b.ctx)
	b.listeners[topic] = cancel
	b.running.Add(1)
	go b.subscribeToRedis(ctx, topic)
}

// stopListener must be called with mu held.
func (b *Broker) stopListener(topic string) {
	if cancel, ok := b.listeners[topic]; ok {
		cancel()
		delete(b.listeners, topic)
	}
}

func (b *Broker) subscribeToRedis(ctx context.Context, topic string) {
	defer b.running.Add(-1)

	channel := redisclient.EventChannel(topic)
	pubsub := b.redis.Subscribe(ctx, channel)
	defer pubsub.Close()

	log.Debug().Str("topic", topic).Str("channel", channel).Msg("redis pubsub subscribed")

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("topic", topic).Msg("redis pubsub unsubscribed")
			return

		case msg, ok := <-ch:
			if !ok {
				return
			}

			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				log.Error().Err(err).Msg("failed to unmarshal event")
				continue
			}
			b.broadcast(topic, event)
		}
	}
}

func (b *Broker) broadcast(topic string, event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for client := range b.clients[topic] {
		select {
		case client.Events <- event:
		default:
			log.Warn().Str("topic", topic).Str("type", event.Type).Msg("client event buffer full, dropping event")
		}
	}
}

func (b *Broker) Close() {
	b.cancel()

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, clients := range b.clients {
		for client := range clients {
			close(client.Done)
		}
	}
	b.clients = make(map[string]map[*Client]bool)
	b.listeners = make(map[string]context.CancelFunc)
}

// activeListeners counts Redis subscription goroutines that have not exited yet.
func (b *Broker) activeListeners() int {
	return int(b.running.Load())
}

func (b *Broker) ClientCount(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients[topic])
}
