package chord

import (
	"context"
	"time"

	"tagstore-dht/internal/domain"
	"tagstore-dht/internal/logger"
)

// FingerBatchSize is the number of consecutive finger-table entries
// recomputed per fixFingers round (spec.md §4.4: "BATCH_SIZE=20"). The
// full 160-entry table is refreshed every FingerTableSize/FingerBatchSize
// rounds — 8 rounds for a 160-bit space.
const FingerBatchSize = 20

// Maintainer runs the three periodic timers spec.md §4.4 describes,
// grounded on internal/node/worker.go's StartStabilizers ticker/goroutine
// shape.
type Maintainer struct {
	ring           *Ring
	stabilizeEvery time.Duration
	fixFingerEvery time.Duration
	checkPredEvery time.Duration
	lgr            logger.Logger
}

// NewMaintainer builds a Maintainer for ring using the given timer
// periods (derived from WAIT_CHECK*STABLE_MOD etc. by the caller).
func NewMaintainer(ring *Ring, stabilizeEvery, fixFingerEvery, checkPredEvery time.Duration, lgr logger.Logger) *Maintainer {
	if lgr == nil {
		lgr = &logger.NopLogger{}
	}
	return &Maintainer{
		ring:           ring,
		stabilizeEvery: stabilizeEvery,
		fixFingerEvery: fixFingerEvery,
		checkPredEvery: checkPredEvery,
		lgr:            lgr.WithNode(ring.State().Self()),
	}
}

// Start launches the stabilize, fixFingers, and checkPredecessor loops.
// All three stop when ctx is canceled.
func (m *Maintainer) Start(ctx context.Context) {
	go m.loop(ctx, m.stabilizeEvery, m.stabilize)
	go m.loop(ctx, m.fixFingerEvery, m.fixFingers)
	go m.loop(ctx, m.checkPredEvery, m.checkPredecessor)
}

func (m *Maintainer) loop(ctx context.Context, every time.Duration, tick func(context.Context)) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tick(ctx)
		}
	}
}

// stabilize verifies the successor is alive and adopts its predecessor
// when it is a closer fit (spec.md §4.4 "Stabilize").
func (m *Maintainer) stabilize(ctx context.Context) {
	s := m.ring.state
	self := s.Self()
	succ, ok := s.Successor()
	if !ok {
		m.lgr.Error("stabilize: successor unset (invalid state)")
		return
	}
	if succ.Equal(self) {
		return
	}

	proxy := m.ring.pool.AddRef(succ)
	alive, werr := proxy.Ping(ctx)
	if werr != nil || !alive {
		m.ring.pool.Release(succ)
		m.promoteOrCollapse(ctx, succ)
		return
	}

	x, werr := proxy.GetRef(ctx, "predecessor")
	m.ring.pool.Release(succ)
	if werr != nil {
		m.lgr.Warn("stabilize: failed to read successor's predecessor", logger.F("err", werr.Error()))
		return
	}
	if x != nil && !x.Equal(self) && x.ID.Between(self.ID, succ.ID) {
		s.SetSuccessor(*x)
		succ = *x
		m.lgr.Info("stabilize: adopted closer successor", logger.FNode("successor", succ))
		if m.ring.repl != nil {
			go m.ring.repl.PushFullState(context.Background(), succ)
		}
	}

	succProxy := m.ring.pool.AddRef(succ)
	defer m.ring.pool.Release(succ)
	if werr := succProxy.SetRef(ctx, "predecessor", self); werr != nil {
		m.lgr.Warn("stabilize: notify successor failed", logger.F("err", werr.Error()))
	}
}

// promoteOrCollapse picks the first live, distinct successor-list entry
// as the new immediate successor, or collapses to solo if none answer
// (spec.md §4.4 "Else (successor dead)").
func (m *Maintainer) promoteOrCollapse(ctx context.Context, dead domain.NodeRef) {
	s := m.ring.state
	self := s.Self()
	for i := 1; i < s.SuccessorListSize(); i++ {
		cand, ok := s.SuccessorAt(i)
		if !ok || cand.Equal(dead) || cand.Equal(self) {
			continue
		}
		proxy := m.ring.pool.AddRef(cand)
		alive, werr := proxy.Ping(ctx)
		m.ring.pool.Release(cand)
		if werr == nil && alive {
			s.PromoteSuccessor(i)
			m.lgr.Warn("stabilize: successor dead, promoted candidate",
				logger.FNode("dead", dead), logger.FNode("promoted", cand))
			return
		}
	}
	m.lgr.Warn("stabilize: no live successor candidates, collapsing to solo", logger.FNode("dead", dead))
	s.InitSolo()
}

// fixFingers recomputes one FingerBatchSize-sized batch of finger-table
// entries per round, cycling through the whole table every
// ceil(FingerTableSize/FingerBatchSize) rounds (spec.md §4.4 "Fix fingers").
func (m *Maintainer) fixFingers(ctx context.Context) {
	s := m.ring.state
	self := s.Self()
	size := s.FingerTableSize()
	if size == 0 {
		return
	}

	for n := 0; n < FingerBatchSize; n++ {
		i := (s.fixCursor + n) % size
		start, err := s.Space().FingerStart(self.ID, i)
		if err != nil {
			m.lgr.Warn("fixFingers: failed to compute finger start", logger.F("index", i), logger.F("err", err.Error()))
			continue
		}
		ref, werr := m.ring.GetSuccessor(ctx, start)
		if werr != nil {
			m.lgr.Warn("fixFingers: lookup failed", logger.F("index", i), logger.F("err", werr.Error()))
			continue
		}
		s.SetFinger(i, ref)
	}
	s.fixCursor = (s.fixCursor + FingerBatchSize) % size
	s.fixRound++
}

// checkPredecessor verifies the predecessor is alive, clearing it on
// failure (spec.md §4.4 "Check predecessor").
func (m *Maintainer) checkPredecessor(ctx context.Context) {
	s := m.ring.state
	self := s.Self()
	pred, ok := s.Predecessor()
	if !ok || pred.Equal(self) {
		return
	}
	proxy := m.ring.pool.AddRef(pred)
	alive, werr := proxy.Ping(ctx)
	m.ring.pool.Release(pred)
	if werr != nil || !alive {
		m.lgr.Warn("checkPredecessor: predecessor unresponsive, clearing", logger.FNode("predecessor", pred))
		s.ClearPredecessor()
	}
}
