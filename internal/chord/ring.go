package chord

import (
	"context"

	"tagstore-dht/internal/domain"
	"tagstore-dht/internal/logger"
	"tagstore-dht/internal/peerproxy"
	"tagstore-dht/internal/telemetry/lookuptrace"
	"tagstore-dht/internal/wire"
)

// Replicator is the narrow slice of internal/replication a Ring needs:
// pushing a full snapshot to a newly-adopted successor so it has every
// row it now owns (spec.md §4.8 "trigger replication push to new
// successor on change"). Kept as an interface so chord has no import
// dependency on the replication package (C4 sits below C8).
type Replicator interface {
	PushFullState(ctx context.Context, to domain.NodeRef)
	PullFullState(ctx context.Context, from domain.NodeRef)
}

// Ring wires a State to a peerproxy.Pool, giving it the ability to
// perform remote getSuccessor/closestPrecedingNode/notify/ping calls
// (spec.md §4.4's bootstrap and lookup algorithms).
type Ring struct {
	state *State
	pool  *peerproxy.Pool
	repl  Replicator
	lgr   logger.Logger
}

// NewRing builds a Ring over state, using pool for all remote RPCs.
// repl may be nil until the replication collaborator is wired in.
func NewRing(state *State, pool *peerproxy.Pool, repl Replicator, lgr logger.Logger) *Ring {
	if lgr == nil {
		lgr = &logger.NopLogger{}
	}
	return &Ring{state: state, pool: pool, repl: repl, lgr: lgr.WithNode(state.Self())}
}

// State exposes the underlying ring state.
func (r *Ring) State() *State { return r.state }

// Join attaches this node to the ring via seed, or collapses to a
// single-node ring if seed is nil (spec.md §4.4 "Bootstrap").
func (r *Ring) Join(ctx context.Context, seed *domain.NodeRef) *wire.Error {
	if seed == nil {
		r.state.InitSolo()
		return nil
	}

	seedProxy := r.pool.AddRef(*seed)
	alive, werr := seedProxy.Ping(ctx)
	if werr != nil || !alive {
		r.pool.Release(*seed)
		if werr == nil {
			werr = wire.NewError(wire.KindRefused, "join: seed %s did not respond to ping", seed.ChordAddr())
		}
		return werr
	}

	succRef, werr := seedProxy.Find(ctx, "getSuccessor", r.state.Self().ID)
	if werr != nil {
		return werr
	}
	if succRef == nil {
		return wire.NewError(wire.KindRemoteError, "join: seed returned no successor for our id")
	}
	r.state.SetSuccessor(*succRef)

	succProxy := r.pool.AddRef(*succRef)
	predRef, werr := succProxy.GetRef(ctx, "predecessor")
	if werr != nil {
		return werr
	}
	if predRef != nil {
		r.state.SetPredecessor(*predRef)
		predProxy := r.pool.AddRef(*predRef)
		if werr := predProxy.SetRef(ctx, "successor", r.state.Self()); werr != nil {
			r.lgr.Warn("join: failed to install self as predecessor's successor", logger.F("err", werr.Error()))
		}
	}
	if werr := succProxy.SetRef(ctx, "predecessor", r.state.Self()); werr != nil {
		r.lgr.Warn("join: failed to install self as successor's predecessor", logger.F("err", werr.Error()))
	}

	if r.repl != nil {
		go r.repl.PullFullState(context.Background(), *succRef)
	}

	r.lgr.Info("join: attached to ring", logger.F("seed", seed.ChordAddr()), logger.F("successor", succRef.ChordAddr()))
	return nil
}

// GetSuccessor answers the successor lookup for key, following
// closest-preceding-node hops until a fixed point is reached (spec.md
// §4.4's getSuccessor pseudocode).
func (r *Ring) GetSuccessor(ctx context.Context, key domain.ID) (domain.NodeRef, *wire.Error) {
	ctx = lookuptrace.WithLookup(ctx)
	ctx, span := lookuptrace.StartHop(ctx, "chord.getSuccessor")
	defer span.End()

	self := r.state.Self()
	if key.Equal(self.ID) {
		return self, nil
	}
	succ, ok := r.state.Successor()
	if !ok {
		return domain.NodeRef{}, wire.NewError(wire.KindFatal, "getSuccessor: local successor unset")
	}
	if key.Between(self.ID, succ.ID) {
		return succ, nil
	}

	n := self
	c, werr := r.closestPrecedingOrRemote(ctx, n, key)
	if werr != nil {
		return domain.NodeRef{}, werr
	}
	for !n.Equal(c) {
		n = c
		c, werr = r.closestPrecedingOrRemote(ctx, n, key)
		if werr != nil {
			return domain.NodeRef{}, werr
		}
	}
	if n.Equal(self) {
		return succ, nil
	}
	proxy := r.pool.AddRef(n)
	defer r.pool.Release(n)
	nsucc, werr := proxy.Find(ctx, "getSuccessor", key)
	if werr != nil {
		return domain.NodeRef{}, werr
	}
	if nsucc == nil {
		return domain.NodeRef{}, wire.NewError(wire.KindRemoteError, "getSuccessor: %s returned no successor", n.ChordAddr())
	}
	return *nsucc, nil
}

// closestPrecedingOrRemote evaluates closestPrecedingNode locally if n is
// self, otherwise issues a remote find call.
func (r *Ring) closestPrecedingOrRemote(ctx context.Context, n domain.NodeRef, key domain.ID) (domain.NodeRef, *wire.Error) {
	ctx, span := lookuptrace.StartHop(ctx, "chord.closestPrecedingOrRemote")
	defer span.End()

	self := r.state.Self()
	if n.Equal(self) {
		return r.ClosestPrecedingNode(ctx, key), nil
	}
	proxy := r.pool.AddRef(n)
	defer r.pool.Release(n)
	ref, werr := proxy.Find(ctx, "closestPrecedingNode", key)
	if werr != nil {
		return domain.NodeRef{}, werr
	}
	if ref == nil {
		return n, nil
	}
	return *ref, nil
}

// ClosestPrecedingNode scans the finger table from highest to lowest and
// returns the first live finger whose id lies in (self.id, key), falling
// back to self (spec.md §4.4).
func (r *Ring) ClosestPrecedingNode(ctx context.Context, key domain.ID) domain.NodeRef {
	self := r.state.Self()
	for i := r.state.FingerTableSize() - 1; i >= 0; i-- {
		ref, ok := r.state.Finger(i)
		if !ok || ref.Equal(self) {
			continue
		}
		if !ref.ID.Between(self.ID, key) || ref.ID.Equal(key) {
			continue
		}
		proxy := r.pool.AddRef(ref)
		alive, werr := proxy.Ping(ctx)
		r.pool.Release(ref)
		if werr == nil && alive {
			return ref
		}
	}
	return self
}

// Notify processes an arrival notification from candidate, adopting it
// as the new predecessor when it is a better fit (spec.md §4.4 "Arrival
// notification").
func (r *Ring) Notify(ctx context.Context, candidate domain.NodeRef) {
	self := r.state.Self()
	if candidate.Equal(self) {
		return
	}
	pred, hasPred := r.state.Predecessor()
	if !hasPred || candidate.ID.Between(pred.ID, self.ID) {
		r.state.SetPredecessor(candidate)
		r.lgr.Info("notify: predecessor updated", logger.FNode("candidate", candidate))
		if r.repl != nil {
			go r.repl.PushFullState(context.Background(), candidate)
		}
	}
}
