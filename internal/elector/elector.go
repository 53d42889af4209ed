// Package elector implements the Bully-style leader election spec.md
// §4.5 describes: a three-state machine (Leaderless/Electing/Stable)
// driven by a periodic timer and ELECTION/OK/WINNER messages exchanged
// over IP multicast. No prior equivalent exists since nothing elects a
// leader elsewhere in the corpus; the timer/goroutine shape is grounded
// on the same ticker pattern internal/chord.Maintainer borrows from
// StartStabilizers.
package elector

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"tagstore-dht/internal/domain"
	"tagstore-dht/internal/logger"
	"tagstore-dht/internal/peerproxy"
	"tagstore-dht/internal/transport"
)

// Phase is one of the three Bully election states.
type Phase int

const (
	Leaderless Phase = iota
	Electing
	Stable
)

func (p Phase) String() string {
	switch p {
	case Leaderless:
		return "leaderless"
	case Electing:
		return "electing"
	case Stable:
		return "stable"
	default:
		return "unknown"
	}
}

const (
	msgElection = "ELECTION"
	msgOK       = "OK"
	msgWinner   = "WINNER"
)

// wireMsg is the JSON shape broadcast on the election multicast group.
type wireMsg struct {
	Type string `json:"type"`
	ID   string `json:"id"`
	IP   string `json:"ip"`
}

// Elector runs the Bully state machine for one node.
type Elector struct {
	self  domain.NodeRef
	group *transport.MulticastGroup
	pool  *peerproxy.Pool
	lgr   logger.Logger

	tickEvery      time.Duration
	electionRounds int
	stableMod      int

	mu        sync.Mutex
	phase     Phase
	countdown int
	leader    *domain.NodeRef
	imLeader  bool
	sawOK     bool
	ticks     int
}

// New builds an Elector for self. tickEvery is WAIT_CHECK*ElectionMod;
// electionRounds is the Electing countdown depth (spec.md's
// ELECTION_TIMEOUT expressed in ticks); stableMod gates how many ticks
// elapse between Stable-phase leader liveness checks.
func New(self domain.NodeRef, group *transport.MulticastGroup, pool *peerproxy.Pool, tickEvery time.Duration, electionRounds, stableMod int, lgr logger.Logger) *Elector {
	if lgr == nil {
		lgr = &logger.NopLogger{}
	}
	return &Elector{
		self:           self,
		group:          group,
		pool:           pool,
		lgr:            lgr.WithNode(self),
		tickEvery:      tickEvery,
		electionRounds: electionRounds,
		stableMod:      stableMod,
		phase:          Leaderless,
	}
}

// Start launches the tick loop and the multicast receive loop. Both stop
// when ctx is canceled.
func (e *Elector) Start(ctx context.Context) {
	go e.tickLoop(ctx)
	go e.receiveLoop(ctx)
}

func (e *Elector) tickLoop(ctx context.Context) {
	ticker := time.NewTicker(e.tickEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.tick(ctx)
		}
	}
}

func (e *Elector) receiveLoop(ctx context.Context) {
	for {
		dg, err := e.group.Receive(ctx)
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				continue
			}
		}
		var msg wireMsg
		if err := json.Unmarshal(dg.Body, &msg); err != nil {
			e.lgr.Warn("elector: malformed multicast message", logger.F("err", err.Error()))
			continue
		}
		e.handleMessage(msg)
	}
}

// tick advances the timer-driven part of the state machine (spec.md
// §4.5's per-phase transitions).
func (e *Elector) tick(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.phase {
	case Leaderless:
		e.broadcastLocked(msgElection)
		e.phase = Electing
		e.countdown = e.electionRounds
		e.sawOK = false
		e.lgr.Info("elector: starting election")

	case Electing:
		e.countdown--
		if e.countdown <= 0 {
			if !e.sawOK {
				e.selfPromoteLocked()
			} else {
				// An OK was seen but no WINNER yet; restart the round to
				// give the higher-id node time to finish its own election.
				e.broadcastLocked(msgElection)
				e.countdown = e.electionRounds
				e.sawOK = false
			}
		}

	case Stable:
		e.ticks++
		if e.stableMod <= 0 || e.ticks%e.stableMod != 0 {
			return
		}
		e.checkLeaderLiveness(ctx)
	}
}

// checkLeaderLiveness pings the current leader (unless it is self) and
// drops back to Leaderless on failure (spec.md §4.5 "Stable ... on
// leader liveness check ... failing").
func (e *Elector) checkLeaderLiveness(ctx context.Context) {
	if e.imLeader || e.leader == nil {
		return
	}
	leader := *e.leader
	e.mu.Unlock()
	proxy := e.pool.AddRef(leader)
	alive, werr := proxy.Ping(ctx)
	e.pool.Release(leader)
	e.mu.Lock()
	if werr != nil || !alive {
		e.lgr.Warn("elector: leader unresponsive, reverting to leaderless", logger.FNode("leader", leader))
		e.phase = Leaderless
		e.leader = nil
		e.imLeader = false
	}
}

// selfPromoteLocked makes this node the leader after an election
// countdown expires with no higher-id contender observed. Caller must
// hold e.mu.
func (e *Elector) selfPromoteLocked() {
	self := e.self
	e.imLeader = true
	e.leader = &self
	e.phase = Stable
	e.ticks = 0
	e.broadcastLocked(msgWinner)
	e.lgr.Info("elector: self-promoted to leader")
}

func (e *Elector) broadcastLocked(msgType string) {
	if e.group == nil {
		return
	}
	msg := wireMsg{Type: msgType, ID: e.self.ID.ToHexString(false), IP: e.self.IP}
	if err := e.group.Send(msg); err != nil {
		e.lgr.Warn("elector: multicast send failed", logger.F("type", msgType), logger.F("err", err.Error()))
	}
}

// handleMessage processes one inbound ELECTION/OK/WINNER datagram
// (spec.md §4.5 "Incoming message handlers").
func (e *Elector) handleMessage(msg wireMsg) {
	id := decodeHexID(msg.ID)
	if id == nil {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	switch msg.Type {
	case msgElection:
		if id.Equal(e.self.ID) {
			return
		}
		if domain.Bully(e.self.ID, id) {
			e.broadcastLocked(msgOK)
			if e.phase != Electing {
				e.phase = Electing
				e.countdown = e.electionRounds
				e.sawOK = false
			}
		}
		// else: id bullies self — remain silent, the higher id will win.

	case msgOK:
		if id.Equal(e.self.ID) {
			return
		}
		if e.phase == Electing && domain.Bully(id, e.self.ID) {
			e.sawOK = true
		}
		if e.leader != nil && domain.Bully(id, e.leader.ID) {
			e.phase = Leaderless
			e.leader = nil
			e.imLeader = false
		}

	case msgWinner:
		if domain.Bully(e.self.ID, id) {
			return
		}
		if e.leader != nil && domain.Bully(e.leader.ID, id) {
			return
		}
		winner := domain.NodeRef{IP: msg.IP, ChordPort: e.self.ChordPort, DataPort: e.self.DataPort, Protocol: e.self.Protocol, ID: id}
		e.leader = &winner
		e.imLeader = id.Equal(e.self.ID)
		e.phase = Stable
		e.ticks = 0
		e.lgr.Info("elector: accepted leader", logger.FNode("leader", winner))
	}
}

// Leader returns the current leader, or false if none is known.
func (e *Elector) Leader() (domain.NodeRef, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.leader == nil {
		return domain.NodeRef{}, false
	}
	return *e.leader, true
}

// ImLeader reports whether this node believes itself to be the leader.
func (e *Elector) ImLeader() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.imLeader
}

// InElection reports whether the node is mid-election, used by the
// router to block client requests (spec.md §4.7).
func (e *Elector) InElection() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.phase == Electing
}

// CurrentPhase returns the current election phase, mainly for diagnostics.
func (e *Elector) CurrentPhase() Phase {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.phase
}

// SetLeaderForTesting forces the elector into Stable with the given
// leader, skipping the multicast election entirely. It exists so
// dependents (router, node wiring tests) can exercise leader-dependent
// behavior without driving a real election.
func (e *Elector) SetLeaderForTesting(leader domain.NodeRef) {
	e.mu.Lock()
	defer e.mu.Unlock()
	l := leader
	e.leader = &l
	e.imLeader = leader.Equal(e.self)
	e.phase = Stable
}

func decodeHexID(s string) domain.ID {
	b, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return nil
	}
	return domain.ID(b)
}
