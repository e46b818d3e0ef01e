// Package coordinator implements the state coordinator: the single-owner
// actor that serializes every mutation of the waiting queue, idle set, and
// connection registry. Guarding the three containers with separate mutexes
// is exactly what lets a user id end up in more than one of them at once
// under racing goroutines; here only the Run goroutine ever touches the
// containers, and everyone else communicates through the small event API
// below, so container disagreement cannot arise.
package coordinator

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/tbs1996/pairwave/internal/metrics"
	"github.com/tbs1996/pairwave/internal/protocol"
	"github.com/tbs1996/pairwave/internal/queue"
	"github.com/tbs1996/pairwave/internal/registry"
	"github.com/tbs1996/pairwave/internal/user"
)

// Presence is an optional side channel the coordinator mirrors status
// transitions into, so that an HTTP handler on another instance can answer
// /status queries for a user it does not itself hold a connection for.
type Presence interface {
	Set(id string, status protocol.UserStatus)
}

// Notifier is an optional side channel for lifecycle events, used for
// external analytics/audit consumption. It is never read back by the
// coordinator itself.
type Notifier interface {
	UserConnected(id string)
	UserPaired(pairID, leftID, rightID string)
	UserDisconnected(id string)
}

// PairIDGen mints a trace id for one pairing, attached to log lines and the
// lifecycle notifier payload so operators can correlate both sides of a
// session without it ever reaching the wire protocol. Defaults to
// uuid.NewString; overridable in tests for deterministic output.
type PairIDGen func() string

type eventKind int

const (
	evEnqueue eventKind = iota
	evStateChange
	evRemove
	evGetStatus
	evTick
)

type event struct {
	kind   eventKind
	user   *user.User
	id     string
	target protocol.UserStatus
	reply  chan protocol.UserStatus
}

// mailboxSize bounds how many pending lifecycle events the coordinator will
// buffer before producers block; generous enough that a burst of connects
// never stalls endpoint goroutines under normal load.
const mailboxSize = 1024

// Coordinator is the event-driven owner of the waiting queue, idle set, and
// connection registry.
type Coordinator struct {
	events chan event

	queue *queue.Queue
	idle  map[string]*user.User
	reg   *registry.Registry

	presence Presence
	notifier Notifier
	pairID   PairIDGen
}

// Option configures optional side channels on a Coordinator.
type Option func(*Coordinator)

// WithPresence attaches a presence mirror.
func WithPresence(p Presence) Option {
	return func(c *Coordinator) { c.presence = p }
}

// WithNotifier attaches a lifecycle event notifier.
func WithNotifier(n Notifier) Option {
	return func(c *Coordinator) { c.notifier = n }
}

// WithPairIDGen overrides the default uuid-based pair trace id generator,
// mainly so tests get deterministic output.
func WithPairIDGen(gen PairIDGen) Option {
	return func(c *Coordinator) { c.pairID = gen }
}

// New creates a Coordinator. Call Run in its own goroutine to start
// processing events.
func New(opts ...Option) *Coordinator {
	c := &Coordinator{
		events: make(chan event, mailboxSize),
		queue:  queue.New(),
		idle:   make(map[string]*user.User),
		reg:    registry.New(),
		pairID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run processes events until ctx is canceled. It must be run in exactly one
// goroutine for the lifetime of the Coordinator.
func (c *Coordinator) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-c.events:
			c.handle(ev)
		}
	}
}

// Enqueue admits u into the waiting queue, evicting any prior occupant with
// the same id from wherever it currently sits.
func (c *Coordinator) Enqueue(u *user.User) {
	c.events <- event{kind: evEnqueue, user: u}
}

// RequestStateChange asks the coordinator to move id to target (Waiting or
// Idle). If id is currently paired, its peer is placed in the idle set.
func (c *Coordinator) RequestStateChange(id string, target protocol.UserStatus) {
	c.events <- event{kind: evStateChange, id: id, target: target}
}

// Remove evicts id entirely: it is taken from wherever it sits and its
// endpoint is closed. If it was paired, the peer is placed in the idle set.
func (c *Coordinator) Remove(id string) {
	c.events <- event{kind: evRemove, id: id}
}

// GetStatus synchronously queries id's current status.
func (c *Coordinator) GetStatus(id string) protocol.UserStatus {
	reply := make(chan protocol.UserStatus, 1)
	c.events <- event{kind: evGetStatus, id: id, reply: reply}
	return <-reply
}

// Tick asks the coordinator to drain as many pairs as the waiting queue can
// currently produce. The matchmaker calls this once per pairing interval;
// see internal/matchmaker.
func (c *Coordinator) Tick() {
	c.events <- event{kind: evTick}
}

func (c *Coordinator) handle(ev event) {
	switch ev.kind {
	case evEnqueue:
		c.handleEnqueue(ev.user)
	case evStateChange:
		c.handleStateChange(ev.id, ev.target)
	case evRemove:
		c.handleRemove(ev.id)
	case evGetStatus:
		ev.reply <- c.status(ev.id)
	case evTick:
		c.handleTick()
	}
}

func (c *Coordinator) handleEnqueue(u *user.User) {
	c.evictFromIdleAndRegistry(u.ID)
	c.queue.Enqueue(u)
	metrics.WaitingQueueSize.Set(float64(c.queue.Len()))
	if c.notifier != nil {
		c.notifier.UserConnected(u.ID)
	}
	c.mirror(u.ID, protocol.StatusWaiting)
}

func (c *Coordinator) handleStateChange(id string, target protocol.UserStatus) {
	u, ok := c.takeFromAny(id)
	if !ok {
		return
	}
	switch target {
	case protocol.StatusWaiting:
		c.queue.Enqueue(u)
		metrics.WaitingQueueSize.Set(float64(c.queue.Len()))
	case protocol.StatusIdle:
		c.idle[id] = u
	default:
		log.Printf("coordinator: ignoring invalid state-change target %q for %s", target, id)
		c.idle[id] = u
		return
	}
	c.mirror(id, target)
}

func (c *Coordinator) handleRemove(id string) {
	u, ok := c.takeFromAny(id)
	if !ok {
		return
	}
	u.Close()
	if c.notifier != nil {
		c.notifier.UserDisconnected(id)
	}
	c.mirror(id, protocol.StatusDisconnected)
}

func (c *Coordinator) handleTick() {
	for {
		left, right, ok := c.queue.PopPair()
		if !ok {
			metrics.WaitingQueueSize.Set(float64(c.queue.Len()))
			return
		}
		evicted := c.reg.Connect(left, right)
		for _, res := range evicted {
			log.Printf("coordinator: unexpected pre-existing pair evicted while connecting %s/%s", left.ID, right.ID)
			c.routeEvictedPeer(res.Left)
			c.routeEvictedPeer(res.Right)
		}
		metrics.ActivePairs.Inc()
		now := time.Now()
		metrics.PairLatencySeconds.Observe(now.Sub(left.ConnectedAt).Seconds())
		metrics.PairLatencySeconds.Observe(now.Sub(right.ConnectedAt).Seconds())
		pairID := c.pairID()
		log.Printf("coordinator: paired %s/%s pair_id=%s", left.ID, right.ID, pairID)
		if c.notifier != nil {
			c.notifier.UserPaired(pairID, left.ID, right.ID)
		}
		c.mirror(left.ID, protocol.StatusConnected)
		c.mirror(right.ID, protocol.StatusConnected)
	}
}

// routeEvictedPeer places a user freed by an unexpected registry eviction
// back into the idle set, provided its socket is still live.
func (c *Coordinator) routeEvictedPeer(u *user.User) {
	if u.Closed() {
		return
	}
	c.idle[u.ID] = u
	c.mirror(u.ID, protocol.StatusIdle)
}

// evictFromIdleAndRegistry removes id from the idle set and/or registry
// (closing its endpoint and idling its former peer, if any) ahead of a fresh
// Enqueue. Duplicate removal from the waiting queue itself is handled by
// Queue.Enqueue.
func (c *Coordinator) evictFromIdleAndRegistry(id string) {
	if u, ok := c.idle[id]; ok {
		delete(c.idle, id)
		u.Close()
	}
	if this, peer, ok := c.reg.Take(id); ok {
		metrics.ActivePairs.Dec()
		this.Close()
		c.routeEvictedPeer(peer)
	}
}

// takeFromAny removes id from whichever container currently holds it. If id
// was paired, its peer is placed into the idle set as a side effect.
func (c *Coordinator) takeFromAny(id string) (*user.User, bool) {
	if u, ok := c.queue.Take(id); ok {
		return u, true
	}
	if u, ok := c.idle[id]; ok {
		delete(c.idle, id)
		return u, true
	}
	if this, peer, ok := c.reg.Take(id); ok {
		metrics.ActivePairs.Dec()
		c.routeEvictedPeer(peer)
		return this, true
	}
	return nil, false
}

// status derives id's current UserStatus, leaving the containers untouched
// in the normal case. If id is found in more than one container — an invariant violation that
// should be structurally impossible given single-owner access, but is
// checked defensively — it is evicted everywhere and reported Disconnected.
func (c *Coordinator) status(id string) protocol.UserStatus {
	inQueue := c.queue.Contains(id)
	_, inIdle := c.idle[id]
	inReg := c.reg.Contains(id)

	count := 0
	for _, v := range []bool{inQueue, inIdle, inReg} {
		if v {
			count++
		}
	}

	switch {
	case count > 1:
		metrics.InvariantViolationsTotal.Inc()
		log.Printf("coordinator: invariant violated: %s present in %d containers", id, count)
		for {
			u, ok := c.takeFromAny(id)
			if !ok {
				break
			}
			u.Close()
		}
		return protocol.StatusDisconnected
	case inQueue:
		return protocol.StatusWaiting
	case inIdle:
		return protocol.StatusIdle
	case inReg:
		return protocol.StatusConnected
	default:
		return protocol.StatusDisconnected
	}
}

// mirror fans the status write out to its own goroutine rather than calling
// Presence.Set inline: this goroutine is the single owner of queue/idle/
// registry for every connected user, so a synchronous Redis round trip here
// would bound the whole service's pairing and status-query throughput on
// Redis latency, not just delay the one mirrored write.
func (c *Coordinator) mirror(id string, status protocol.UserStatus) {
	if c.presence != nil {
		go c.presence.Set(id, status)
	}
}
