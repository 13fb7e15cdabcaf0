package services

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"job-relay/backend/app/brain"
	"job-relay/backend/app/events"
	"job-relay/backend/app/models"
	"job-relay/backend/app/ratelimit"
	"job-relay/backend/app/session"
)

// ErrRateLimited is returned by Apply when a device reports faster than the
// ingest limit allows. The event is not applied.
var ErrRateLimited = errors.New("relay: rate limited")

// Transport names used in the journal and published events.
const (
	TransportPoll = "poll"
	TransportPush = "push"
)

// Command sources.
const (
	SourceEngine = "engine"
	SourceAdmin  = "admin"
)

// Presence mirrors device liveness to a shared store.
type Presence interface {
	Seen(ctx context.Context, deviceID string, at time.Time) error
	SetOnline(ctx context.Context, deviceID string, online bool) error
	Online(ctx context.Context) ([]string, error)
	Forget(ctx context.Context, deviceID string) error
}

// RelayDeps wires a RelayService. Registry and Gate are required; everything
// else falls back to a no-op.
type RelayDeps struct {
	Registry  *session.Registry
	Gate      *session.Gate
	Engine    brain.Engine
	Recorder  Recorder
	Presence  Presence
	Publisher events.Publisher
	Limiter   *ratelimit.PerDevice
	Logger    zerolog.Logger
}

// RelayService applies inbound events, runs the decision engine and hands
// queued commands to whichever transport asks for them.
type RelayService struct {
	reg      *session.Registry
	gate     *session.Gate
	engine   brain.Engine
	recorder Recorder
	presence Presence
	pub      events.Publisher
	limiter  *ratelimit.PerDevice
	log      zerolog.Logger
	now      func() time.Time
}

func NewRelayService(d RelayDeps) *RelayService {
	s := &RelayService{
		reg:      d.Registry,
		gate:     d.Gate,
		engine:   d.Engine,
		recorder: d.Recorder,
		presence: d.Presence,
		pub:      d.Publisher,
		limiter:  d.Limiter,
		log:      d.Logger,
		now:      time.Now,
	}
	if s.engine == nil {
		s.engine = brain.Noop{}
	}
	if s.recorder == nil {
		s.recorder = NopRecorder{}
	}
	if s.pub == nil {
		s.pub = &events.NoopPublisher{}
	}
	s.gate.OnExpire(s.onExpire)
	return s
}

// Apply records an inbound event, clears a matching confirmation on
// navigation_complete and lets the engine react. Engine output is never
// returned to the caller; commands reach the agent only through a transport.
func (s *RelayService) Apply(ctx context.Context, ev session.Event) error {
	if ev.DeviceID == "" {
		return session.ErrEmptyDeviceID
	}
	if !s.limiter.Allow(ev.DeviceID) {
		return ErrRateLimited
	}
	s.reg.RecordEvent(ev.DeviceID, ev.Kind)

	if s.presence != nil {
		if err := s.presence.Seen(ctx, ev.DeviceID, s.now()); err != nil {
			s.log.Warn().Err(err).Str("device", ev.DeviceID).Msg("presence update failed")
		}
	}
	if err := s.recorder.DeviceSeen(ev.DeviceID, ev.Timestamp); err != nil {
		s.log.Warn().Err(err).Str("device", ev.DeviceID).Msg("journal device failed")
	}
	if err := s.recorder.EventReceived(ev); err != nil {
		s.log.Warn().Err(err).Str("device", ev.DeviceID).Msg("journal event failed")
	}
	s.publish(ctx, events.TopicEventReceived, events.EventReceived{
		DeviceID:   ev.DeviceID,
		Kind:       ev.Kind,
		PayloadLen: len(ev.Payload),
		At:         ev.Timestamp,
	})

	if ev.Kind == session.KindNavigationComplete {
		url := navigatedURL(ev.Payload)
		if c, ok := s.gate.Confirm(ev.DeviceID, url); ok {
			s.log.Info().
				Str("device", ev.DeviceID).
				Str("command_id", c.Command.ID).
				Str("url", url).
				Msg("confirmation cleared")
			s.mark(c.Command.ID, models.CommandConfirmed, "")
			s.publish(ctx, events.TopicConfirmationCleared, events.ConfirmationCleared{
				DeviceID: ev.DeviceID,
				Command:  c.Command,
				URL:      url,
			})
		} else {
			s.log.Debug().Str("device", ev.DeviceID).Msg("navigation_complete without matching confirmation")
		}
	}

	if err := s.engine.Handle(ctx, ev, s); err != nil {
		s.log.Warn().Err(err).Str("device", ev.DeviceID).Str("kind", string(ev.Kind)).Msg("engine failed")
	}
	return nil
}

// navigatedURL pulls the reported URL out of a navigation_complete payload,
// which is either the bare URL or a JSON object with a url field.
func navigatedURL(payload string) string {
	p := strings.TrimSpace(payload)
	if strings.HasPrefix(p, "{") {
		var v struct {
			URL string `json:"url"`
		}
		if err := json.Unmarshal([]byte(p), &v); err == nil {
			return v.URL
		}
	}
	return p
}

// Submit implements brain.Sink.
func (s *RelayService) Submit(ctx context.Context, deviceID string, cmd session.Command) (session.Outcome, error) {
	return s.SubmitFrom(ctx, deviceID, cmd, SourceEngine)
}

// SubmitFrom runs cmd through the gate and journals the outcome.
func (s *RelayService) SubmitFrom(ctx context.Context, deviceID string, cmd session.Command, source string) (session.Outcome, error) {
	outcome, err := s.gate.Submit(deviceID, cmd)
	if err != nil {
		return "", err
	}
	ev := s.log.Info()
	topic := events.TopicCommandQueued
	var payload any = events.CommandQueued{DeviceID: deviceID, Command: cmd, Source: source}
	if outcome == session.OutcomeDropped {
		ev = s.log.Debug()
		topic = events.TopicCommandDropped
		payload = events.CommandDropped{DeviceID: deviceID, Command: cmd, Source: source}
	}
	ev.Str("device", deviceID).
		Str("command_id", cmd.ID).
		Str("action", cmd.Action).
		Str("outcome", string(outcome)).
		Str("source", source).
		Msg("command submitted")

	if err := s.recorder.CommandSubmitted(deviceID, cmd, outcome); err != nil {
		s.log.Warn().Err(err).Str("command_id", cmd.ID).Msg("journal command failed")
	}
	s.publish(ctx, topic, payload)
	return outcome, nil
}

// Dispatch drains whatever is deliverable for the device through the gate.
func (s *RelayService) Dispatch(ctx context.Context, deviceID, transport string) []session.Command {
	cmds := s.gate.Drain(deviceID)
	if len(cmds) == 0 {
		return cmds
	}
	for _, c := range cmds {
		s.mark(c.ID, models.CommandSent, transport)
	}
	s.log.Debug().Str("device", deviceID).Int("count", len(cmds)).Str("transport", transport).Msg("commands dispatched")
	s.publish(ctx, events.TopicCommandDispatched, events.CommandDispatched{
		DeviceID:  deviceID,
		Commands:  cmds,
		Transport: transport,
	})
	return cmds
}

// Poll is the pull transport: it marks the device as seen and drains it.
// Unknown devices are created and get an empty slice.
func (s *RelayService) Poll(ctx context.Context, deviceID string) ([]session.Command, error) {
	if deviceID == "" {
		return nil, session.ErrEmptyDeviceID
	}
	s.reg.Touch(deviceID)
	return s.Dispatch(ctx, deviceID, TransportPoll), nil
}

// Requeue returns undelivered commands to the head of the device's queue.
func (s *RelayService) Requeue(ctx context.Context, deviceID string, cmds []session.Command) {
	if len(cmds) == 0 {
		return
	}
	s.gate.Requeue(deviceID, cmds)
	for _, c := range cmds {
		s.mark(c.ID, models.CommandRequeued, "")
	}
	s.log.Warn().Str("device", deviceID).Int("count", len(cmds)).Msg("commands requeued after failed delivery")
}

// Subscribe attaches a push connection to the device.
func (s *RelayService) Subscribe(ctx context.Context, deviceID, connID string) *session.Subscription {
	sub := s.reg.Subscribe(deviceID, connID)
	if s.presence != nil {
		if err := s.presence.SetOnline(ctx, deviceID, true); err != nil {
			s.log.Warn().Err(err).Str("device", deviceID).Msg("presence online failed")
		}
	}
	return sub
}

// Unsubscribe detaches a push connection. The device stays online if a newer
// connection already took over.
func (s *RelayService) Unsubscribe(ctx context.Context, sub *session.Subscription) {
	sub.Close()
	if s.presence == nil {
		return
	}
	if info, ok := s.reg.Get(sub.DeviceID); ok && info.Subscribed {
		return
	}
	if err := s.presence.SetOnline(ctx, sub.DeviceID, false); err != nil {
		s.log.Warn().Err(err).Str("device", sub.DeviceID).Msg("presence offline failed")
	}
}

// ClearConfirmation force-clears a stuck confirmation.
func (s *RelayService) ClearConfirmation(ctx context.Context, deviceID string) (session.Confirmation, bool) {
	c, ok := s.gate.Clear(deviceID)
	if !ok {
		return c, false
	}
	s.log.Info().Str("device", deviceID).Str("command_id", c.Command.ID).Msg("confirmation force-cleared")
	s.mark(c.Command.ID, models.CommandConfirmed, "")
	s.publish(ctx, events.TopicConfirmationCleared, events.ConfirmationCleared{
		DeviceID: deviceID,
		Command:  c.Command,
		Forced:   true,
	})
	return c, true
}

// Devices returns the registry snapshot.
func (s *RelayService) Devices() []session.DeviceInfo { return s.reg.Snapshot() }

// Device returns one device without creating it.
func (s *RelayService) Device(deviceID string) (session.DeviceInfo, bool) {
	return s.reg.Get(deviceID)
}

// Queue returns what the device has not received yet and the pending
// confirmation, if any.
func (s *RelayService) Queue(deviceID string) ([]session.Command, *session.Confirmation) {
	cmds := s.reg.Pending(deviceID)
	c, ok := s.gate.Pending(deviceID)
	if !ok {
		return cmds, nil
	}
	return cmds, &c
}

func (s *RelayService) History(deviceID string, includeSent bool, limit int) ([]models.AgentCommand, error) {
	return s.recorder.History(deviceID, includeSent, limit)
}

func (s *RelayService) Logs(deviceID string, limit int) ([]models.AgentLog, error) {
	return s.recorder.Logs(deviceID, limit)
}

// OnlineDevices lists devices with a live push subscription here, merged with
// those other relay processes reported to the presence store.
func (s *RelayService) OnlineDevices(ctx context.Context) []string {
	seen := map[string]struct{}{}
	for _, d := range s.reg.Snapshot() {
		if d.Subscribed {
			seen[d.ID] = struct{}{}
		}
	}
	if s.presence != nil {
		ids, err := s.presence.Online(ctx)
		if err != nil {
			s.log.Warn().Err(err).Msg("presence online list failed")
		}
		for _, id := range ids {
			seen[id] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// OnEvict cleans up after the reaper removed an idle device.
func (s *RelayService) OnEvict(ev session.Eviction) {
	ctx := context.Background()
	s.limiter.Forget(ev.DeviceID)
	if f, ok := s.engine.(interface{ Forget(string) }); ok {
		f.Forget(ev.DeviceID)
	}
	if s.presence != nil {
		if err := s.presence.Forget(ctx, ev.DeviceID); err != nil {
			s.log.Warn().Err(err).Str("device", ev.DeviceID).Msg("presence forget failed")
		}
	}
	s.publish(ctx, events.TopicDeviceEvicted, events.DeviceEvicted{
		DeviceID:  ev.DeviceID,
		IdleFor:   ev.IdleFor.Truncate(time.Second).String(),
		Discarded: ev.Discarded,
	})
}

func (s *RelayService) onExpire(deviceID string, c session.Confirmation) {
	s.log.Warn().
		Str("device", deviceID).
		Str("command_id", c.Command.ID).
		Str("value", c.Command.Value).
		Msg("confirmation expired")
	s.mark(c.Command.ID, models.CommandExpired, "")
	s.publish(context.Background(), events.TopicConfirmationExpired, events.ConfirmationExpired{
		DeviceID: deviceID,
		Command:  c.Command,
	})
}

// Close releases the engine and the publisher.
func (s *RelayService) Close() error {
	if c, ok := s.engine.(brain.Closer); ok {
		if err := c.Close(); err != nil {
			s.log.Warn().Err(err).Msg("engine close failed")
		}
	}
	return s.pub.Close()
}

func (s *RelayService) mark(commandID, status, transport string) {
	if err := s.recorder.CommandStatus(commandID, status, transport); err != nil {
		s.log.Warn().Err(err).Str("command_id", commandID).Str("status", status).Msg("journal status failed")
	}
}

func (s *RelayService) publish(ctx context.Context, topic string, event any) {
	if err := s.pub.Publish(ctx, topic, event); err != nil {
		s.log.Warn().Err(err).Str("topic", topic).Msg("publish failed")
	}
}
