package topup

import (
	"context"
	"encoding/json"
	"expvar"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const eventsChannel = "momo:events"

var (
	wsConnectionsGauge   = expvar.NewInt("momo_ws_connections")
	wsEventsSentTotal    = expvar.NewInt("momo_ws_events_sent_total")
	wsEventsDroppedTotal = expvar.NewInt("momo_ws_events_dropped_total")
)

type relayMessage struct {
	Event            *Event `json:"event"`
	SenderInstanceID string `json:"sender_instance_id"`
}

// Connection is one websocket client of an account
type Connection struct {
	AccountID uuid.UUID
	Conn      *websocket.Conn
	Send      chan []byte
}

// Hub delivers top-up events to connected terminals and apps.
// Events are relayed over redis so every API instance reaches its own clients.
type Hub struct {
	connections map[uuid.UUID]map[*Connection]bool
	mu          sync.RWMutex

	redis  *redis.Client
	pubsub *redis.PubSub

	register   chan *Connection
	unregister chan *Connection

	ctx    context.Context
	cancel context.CancelFunc

	instanceID string
}

// NewHub creates a hub; a nil redis client keeps delivery local
func NewHub(redisClient *redis.Client) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		connections: make(map[uuid.UUID]map[*Connection]bool),
		redis:       redisClient,
		register:    make(chan *Connection),
		unregister:  make(chan *Connection),
		ctx:         ctx,
		cancel:      cancel,
		instanceID:  uuid.NewString(),
	}
	if redisClient != nil {
		h.pubsub = redisClient.Subscribe(ctx, eventsChannel)
	}
	return h
}

// Run starts the hub (call in goroutine)
func (h *Hub) Run() {
	if h.pubsub != nil {
		go h.runRedisSubscriber()
	}

	for {
		select {
		case <-h.ctx.Done():
			return

		case conn := <-h.register:
			h.mu.Lock()
			if h.connections[conn.AccountID] == nil {
				h.connections[conn.AccountID] = make(map[*Connection]bool)
			}
			h.connections[conn.AccountID][conn] = true
			h.mu.Unlock()
			wsConnectionsGauge.Add(1)
			log.Debug().Str("account_id", conn.AccountID.String()).Msg("Client connected to momo events")

		case conn := <-h.unregister:
			h.mu.Lock()
			if conns, ok := h.connections[conn.AccountID]; ok {
				if _, exists := conns[conn]; exists {
					delete(conns, conn)
					close(conn.Send)
					wsConnectionsGauge.Add(-1)
				}
				if len(conns) == 0 {
					delete(h.connections, conn.AccountID)
				}
			}
			h.mu.Unlock()
			log.Debug().Str("account_id", conn.AccountID.String()).Msg("Client disconnected from momo events")
		}
	}
}

func (h *Hub) runRedisSubscriber() {
	ch := h.pubsub.Channel()
	for {
		select {
		case <-h.ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var relay relayMessage
			if err := json.Unmarshal([]byte(msg.Payload), &relay); err != nil || relay.Event == nil {
				continue
			}
			if relay.SenderInstanceID == h.instanceID {
				continue
			}
			h.deliverLocal(relay.Event)
		}
	}
}

// Register adds a connection. It returns false once the hub has shut down.
func (h *Hub) Register(conn *Connection) bool {
	select {
	case h.register <- conn:
		return true
	case <-h.ctx.Done():
		return false
	}
}

// Unregister removes a connection
func (h *Hub) Unregister(conn *Connection) {
	select {
	case h.unregister <- conn:
	case <-h.ctx.Done():
	}
}

// Publish delivers event to local clients and relays it to other instances
func (h *Hub) Publish(ctx context.Context, event *Event) {
	if event == nil {
		return
	}
	h.deliverLocal(event)

	if h.redis == nil {
		return
	}
	payload, err := json.Marshal(relayMessage{Event: event, SenderInstanceID: h.instanceID})
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal momo event")
		return
	}
	if err := h.redis.Publish(ctx, eventsChannel, payload).Err(); err != nil {
		log.Error().Err(err).Str("channel", eventsChannel).Msg("Redis publish failed")
	}
}

func (h *Hub) deliverLocal(event *Event) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, accountID := range event.Recipients() {
		for conn := range h.connections[accountID] {
			select {
			case conn.Send <- data:
				wsEventsSentTotal.Add(1)
			default:
				wsEventsDroppedTotal.Add(1)
				log.Warn().Str("account_id", accountID.String()).Msg("WebSocket send buffer full")
			}
		}
	}
}

// ConnectionCount returns number of local connections
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	total := 0
	for _, conns := range h.connections {
		total += len(conns)
	}
	return total
}

// Shutdown stops the hub
func (h *Hub) Shutdown() {
	h.cancel()
	if h.pubsub != nil {
		_ = h.pubsub.Close()
	}
}
