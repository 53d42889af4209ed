// Package discovery implements spec.md §4.6: the leader's periodic
// multicast announcement of its own address, and the one-shot
// "server_ip" seed request a not-yet-joined node sends to find its
// first peer. It is the only non-deterministic cluster-formation path;
// after seeding, all further growth is via the Chord join RPC (C4).
//
// Grounded on internal/bootstrap.Bootstrap's three-verb interface
// (Discover/Register/Deregister) — the shape is kept so cmd/node's
// startup control flow ("resolve peers, then Join or go solo") reads
// the same way, even though the underlying discovery mechanism is now
// IP multicast rather than a static peer list or DNS/Route53 lookup.
package discovery

import (
	"context"
	"encoding/json"
	"time"

	"tagstore-dht/internal/domain"
	"tagstore-dht/internal/elector"
	"tagstore-dht/internal/logger"
	"tagstore-dht/internal/transport"
)

// Announcer matches internal/bootstrap.Bootstrap's shape, retargeted at
// multicast-based peer discovery.
type Announcer interface {
	// Discover blocks until a seed peer address is found (or ctx is
	// done) and returns it. An empty result with a nil error means "no
	// one answered" and the caller should form a new ring solo.
	Discover(ctx context.Context) (string, error)
	// Register starts the periodic leader-announcement loop. A no-op
	// until this node becomes leader.
	Register(ctx context.Context)
	// Deregister stops the announcement loop.
	Deregister()
}

const seedRequestRetries = 3

type wireMsg struct {
	Type string `json:"type,omitempty"`
	// Request carries "server_ip" for a seed probe.
	Request string `json:"request,omitempty"`
	IP      string `json:"ip,omitempty"`
}

// Discovery implements Announcer over one shared multicast group.
type Discovery struct {
	self     domain.NodeRef
	group    *transport.MulticastGroup
	elector  *elector.Elector
	every    time.Duration
	lgr      logger.Logger
	cancelFn context.CancelFunc
}

// New builds a Discovery. every is WAIT_CHECK*BroadcastMod, the leader
// announcement cadence from spec.md §4.6.
func New(self domain.NodeRef, group *transport.MulticastGroup, el *elector.Elector, every time.Duration, lgr logger.Logger) *Discovery {
	if lgr == nil {
		lgr = &logger.NopLogger{}
	}
	return &Discovery{self: self, group: group, elector: el, every: every, lgr: lgr.WithNode(self)}
}

// Discover multicasts {"request":"server_ip"} and returns the ip of the
// first leader announcement received in reply, retrying a few times
// before giving up (spec.md §4.6: "receives the first leader response
// and uses its ip as seed").
func (d *Discovery) Discover(ctx context.Context) (string, error) {
	for attempt := 0; attempt < seedRequestRetries; attempt++ {
		if err := d.group.Send(wireMsg{Request: "server_ip"}); err != nil {
			d.lgr.Warn("discovery: seed request send failed", logger.F("err", err.Error()))
		}

		probeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		ip, found := d.awaitAnnouncement(probeCtx)
		cancel()
		if found {
			return ip, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
	}
	return "", nil
}

func (d *Discovery) awaitAnnouncement(ctx context.Context) (string, bool) {
	for {
		dg, err := d.group.Receive(ctx)
		if err != nil {
			return "", false
		}
		var msg wireMsg
		if err := json.Unmarshal(dg.Body, &msg); err != nil {
			continue
		}
		if msg.Type == "LEADER" && msg.IP != "" {
			return msg.IP, true
		}
	}
}

// Register starts the periodic leader-announcement loop. Ticks are
// no-ops while this node is not the leader, so Register is safe to call
// unconditionally at startup.
func (d *Discovery) Register(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	d.cancelFn = cancel
	go d.announceLoop(ctx)
}

// Deregister stops the announcement loop.
func (d *Discovery) Deregister() {
	if d.cancelFn != nil {
		d.cancelFn()
	}
}

func (d *Discovery) announceLoop(ctx context.Context) {
	ticker := time.NewTicker(d.every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.announceIfLeader()
			d.answerSeedRequests(ctx)
		}
	}
}

func (d *Discovery) announceIfLeader() {
	if d.elector == nil || !d.elector.ImLeader() {
		return
	}
	if err := d.group.Send(wireMsg{Type: "LEADER", IP: d.self.IP}); err != nil {
		d.lgr.Warn("discovery: leader announcement failed", logger.F("err", err.Error()))
	}
}

// answerSeedRequests drains one pending "server_ip" request, if any, and
// answers it immediately when this node is leader. It is a
// best-effort, non-blocking poll so the announce loop is never stalled
// waiting for a datagram that may never arrive.
func (d *Discovery) answerSeedRequests(ctx context.Context) {
	if d.elector == nil || !d.elector.ImLeader() {
		return
	}
	pollCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	dg, err := d.group.Receive(pollCtx)
	if err != nil {
		return
	}
	var msg wireMsg
	if err := json.Unmarshal(dg.Body, &msg); err != nil {
		return
	}
	if msg.Request == "server_ip" {
		d.announceIfLeader()
	}
}

// WatchLeaderDrift reports whether the announced ip differs from the
// locally known leader's ip, per spec.md §4.6: "Any node whose current
// leader ip differs from the announced ip may initiate join." The
// caller (node wiring) decides what to do with a drifted address.
func WatchLeaderDrift(known domain.NodeRef, announcedIP string) bool {
	return announcedIP != "" && known.IP != announcedIP
}

// WatchDrift passively listens for LEADER announcements and calls
// onDrift whenever one names an ip that differs from known(), letting a
// node that missed an election (e.g. it was on the losing side of a
// partition) rejoin through the newly announced leader instead of
// waiting indefinitely on stale ring state. It is a no-op while this
// node is itself the leader, since the announce loop already owns the
// group's Receive calls in that role. Runs until ctx is canceled.
func (d *Discovery) WatchDrift(ctx context.Context, known func() domain.NodeRef, onDrift func(announcedIP string)) {
	for {
		if d.elector != nil && d.elector.ImLeader() {
			select {
			case <-ctx.Done():
				return
			case <-time.After(d.every):
			}
			continue
		}
		dg, err := d.group.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			continue
		}
		var msg wireMsg
		if err := json.Unmarshal(dg.Body, &msg); err != nil {
			continue
		}
		if msg.Type != "LEADER" {
			continue
		}
		if WatchLeaderDrift(known(), msg.IP) {
			onDrift(msg.IP)
		}
	}
}
