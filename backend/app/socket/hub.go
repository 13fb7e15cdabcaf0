package socket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"job-relay/backend/app/dto"
	"job-relay/backend/app/services"
	"job-relay/backend/app/session"
)

const maxFrameSize = 8 << 20

// Relay is what the push transport needs from the relay service.
type Relay interface {
	Apply(ctx context.Context, ev session.Event) error
	Subscribe(ctx context.Context, deviceID, connID string) *session.Subscription
	Unsubscribe(ctx context.Context, sub *session.Subscription)
	Dispatch(ctx context.Context, deviceID, transport string) []session.Command
	Requeue(ctx context.Context, deviceID string, cmds []session.Command)
}

type Config struct {
	// AllowedOrigins restricts browser origins; empty allows any.
	AllowedOrigins []string
	PingPeriod     time.Duration
	PongWait       time.Duration
	WriteWait      time.Duration
}

type clientConn struct {
	id       string
	deviceID string
	conn     *websocket.Conn
	sub      *session.Subscription
	send     chan []byte // error frames
	closed   chan struct{}
}

// Hub owns the push connections, one per device. A newer connection for the
// same device replaces the older one.
type Hub struct {
	relay    Relay
	cfg      Config
	log      zerolog.Logger
	upgrader websocket.Upgrader

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.RWMutex
	byID   map[string]*clientConn
	closed bool
}

func NewHub(relay Relay, cfg Config, log zerolog.Logger) *Hub {
	if cfg.PingPeriod <= 0 {
		cfg.PingPeriod = 30 * time.Second
	}
	if cfg.PongWait <= cfg.PingPeriod {
		cfg.PongWait = cfg.PingPeriod * 2
	}
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = 10 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		relay:  relay,
		cfg:    cfg,
		log:    log,
		ctx:    ctx,
		cancel: cancel,
		byID:   make(map[string]*clientConn),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	if len(h.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, o := range h.cfg.AllowedOrigins {
		if o == origin {
			return true
		}
	}
	return false
}

// Serve upgrades the request and runs the connection for deviceID.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, deviceID string) {
	if h.ctx.Err() != nil {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Str("device", deviceID).Msg("websocket upgrade failed")
		return
	}

	cc := &clientConn{
		id:       uuid.NewString(),
		deviceID: deviceID,
		conn:     conn,
		send:     make(chan []byte, 16),
		closed:   make(chan struct{}),
	}
	cc.sub = h.relay.Subscribe(h.ctx, deviceID, cc.id)
	if !h.register(cc) {
		h.relay.Unsubscribe(context.Background(), cc.sub)
		_ = conn.Close()
		return
	}
	h.log.Info().Str("device", deviceID).Str("conn", cc.id).Str("remote", r.RemoteAddr).Msg("push connection opened")

	go h.readPump(cc)
	go h.writePump(cc)
}

// register records cc and accounts for its pumps. It fails once Close has
// started.
func (h *Hub) register(cc *clientConn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.byID[cc.deviceID] = cc
	h.wg.Add(2)
	return true
}

// unregister removes cc only if it is still the device's current connection.
func (h *Hub) unregister(cc *clientConn) {
	h.mu.Lock()
	if cur, ok := h.byID[cc.deviceID]; ok && cur == cc {
		delete(h.byID, cc.deviceID)
	}
	h.mu.Unlock()
}

func (h *Hub) IsOnline(deviceID string) bool {
	h.mu.RLock()
	_, ok := h.byID[deviceID]
	h.mu.RUnlock()
	return ok
}

// OnlineDevices lists devices with an open push connection, sorted.
func (h *Hub) OnlineDevices() []string {
	h.mu.RLock()
	out := make([]string, 0, len(h.byID))
	for id := range h.byID {
		out = append(out, id)
	}
	h.mu.RUnlock()
	sort.Strings(out)
	return out
}

// Close drops every connection and waits for their goroutines.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	for _, cc := range h.byID {
		_ = cc.conn.Close()
	}
	h.mu.Unlock()
	h.cancel()
	h.wg.Wait()
}

func (h *Hub) readPump(cc *clientConn) {
	defer h.wg.Done()
	defer func() {
		h.relay.Unsubscribe(context.Background(), cc.sub)
		h.unregister(cc)
		close(cc.closed)
		_ = cc.conn.Close()
		h.log.Info().Str("device", cc.deviceID).Str("conn", cc.id).Msg("push connection closed")
	}()

	cc.conn.SetReadLimit(maxFrameSize)
	_ = cc.conn.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	cc.conn.SetPongHandler(func(string) error {
		return cc.conn.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	})

	for {
		_, message, err := cc.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.log.Warn().Err(err).Str("device", cc.deviceID).Msg("unexpected close")
			}
			return
		}
		_ = cc.conn.SetReadDeadline(time.Now().Add(h.cfg.PongWait))

		if msg := h.handleFrame(cc, message); msg != "" {
			h.reply(cc, dto.ErrorFrame(msg))
		}
	}
}

// handleFrame applies one inbound frame and returns an error message for the
// client, or "" on success.
func (h *Hub) handleFrame(cc *clientConn, message []byte) string {
	var frame dto.Frame
	if err := json.Unmarshal(message, &frame); err != nil {
		return "malformed frame"
	}
	if frame.Type != dto.FrameAgentData {
		return "unsupported frame type " + frame.Type
	}

	var req dto.AgentDataRequest
	if err := json.Unmarshal(frame.Payload, &req); err != nil {
		return "malformed agent_data payload"
	}
	if req.DeviceID == "" {
		req.DeviceID = cc.deviceID
	} else if req.DeviceID != cc.deviceID {
		return "deviceId does not match connection"
	}
	ev, err := req.ToEvent(time.Now())
	if err != nil {
		return err.Error()
	}
	if err := h.relay.Apply(h.ctx, ev); err != nil {
		if errors.Is(err, services.ErrRateLimited) {
			return "rate limited"
		}
		h.log.Error().Err(err).Str("device", cc.deviceID).Msg("apply event failed")
		return "internal error"
	}
	return ""
}

func (h *Hub) reply(cc *clientConn, data []byte) {
	select {
	case cc.send <- data:
	default:
		h.log.Debug().Str("device", cc.deviceID).Msg("error frame dropped, send buffer full")
	}
}

// writePump owns all writes: commands on wake-up, error frames and pings.
func (h *Hub) writePump(cc *clientConn) {
	defer h.wg.Done()
	ticker := time.NewTicker(h.cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		_ = cc.conn.Close()
	}()

	for {
		select {
		case <-cc.closed:
			return

		case <-cc.sub.Done():
			_ = cc.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteWait))
			_ = cc.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "replaced by a newer connection"))
			return

		case msg := <-cc.send:
			_ = cc.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteWait))
			if err := cc.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-cc.sub.C():
			select {
			case <-cc.sub.Done():
				continue
			default:
			}
			if !h.flush(cc) {
				return
			}

		case <-ticker.C:
			_ = cc.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteWait))
			if err := cc.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// flush pushes everything deliverable, one frame per command. On a failed
// write the unsent remainder goes back to the head of the queue.
func (h *Hub) flush(cc *clientConn) bool {
	cmds := h.relay.Dispatch(h.ctx, cc.deviceID, services.TransportPush)
	for i, c := range cmds {
		data, err := dto.CommandFrame(c)
		if err == nil {
			_ = cc.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteWait))
			err = cc.conn.WriteMessage(websocket.TextMessage, data)
		}
		if err != nil {
			h.log.Warn().Err(err).Str("device", cc.deviceID).Str("command_id", c.ID).Msg("push write failed")
			h.relay.Requeue(context.Background(), cc.deviceID, cmds[i:])
			return false
		}
	}
	return true
}
