package loadtest

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"tagstore-dht/internal/loadtest/writer"
	"tagstore-dht/internal/logger"
	"tagstore-dht/internal/transport"
	"tagstore-dht/internal/wire"
)

// Tester drives repeated waves of concurrent list_files queries against a
// static set of node client addresses and records each outcome.
type Tester struct {
	cfg     *Config
	lgr     logger.Logger
	w       writer.Writer
	started time.Time
}

// New builds a Tester from cfg.
func New(cfg *Config, lgr logger.Logger, w writer.Writer) *Tester {
	return &Tester{cfg: cfg, lgr: lgr, w: w}
}

// Run fires query waves at cfg.Query.Rate until cfg.Simulation.Duration
// elapses or ctx is canceled.
func (t *Tester) Run(ctx context.Context) error {
	t.lgr.Info("loadtest started", logger.F("duration", t.cfg.Simulation.Duration.String()))
	t.started = time.Now()
	endTime := t.started.Add(t.cfg.Simulation.Duration)
	interval := time.Duration(float64(time.Second) / t.cfg.Query.Rate)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if time.Now().After(endTime) {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			t.runWave(ctx)
		}
	}

	t.lgr.Info("loadtest finished")
	return nil
}

// runWave fires a random number of concurrent queries, each against a
// randomly chosen configured peer.
func (t *Tester) runWave(ctx context.Context) {
	n := randomInt(t.cfg.Query.Parallelism.MinWorkers, t.cfg.Query.Parallelism.MaxWorkers)
	t.lgr.Debug("starting query wave", logger.F("parallel", n), logger.F("peers", len(t.cfg.Peers)))

	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			select {
			case <-ctx.Done():
			default:
				t.doQuery()
			}
		}()
	}
	wg.Wait()
}

// doQuery issues one list_files lookup against a random peer and records
// the outcome.
func (t *Tester) doQuery() {
	peer := t.cfg.Peers[rand.Intn(len(t.cfg.Peers))]

	req, err := wire.NewMessage("GetAll", "list_files", map[string]any{"tags": randomTags()})
	if err != nil {
		t.lgr.Warn("failed to encode query", logger.F("err", err.Error()))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), t.cfg.Query.Timeout)
	defer cancel()

	start := time.Now()
	reply, err := transport.Call(ctx, peer, req, t.cfg.Query.Timeout)
	delay := time.Since(start)

	var result string
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		result = "TIMEOUT"
	case err != nil:
		result = fmt.Sprintf("UNAVAILABLE_%v", err)
	default:
		if werr := wire.AsError(reply); werr != nil {
			if werr.Kind == wire.KindTimeout {
				result = "TIMEOUT"
			} else if werr.Kind == wire.KindNotFound {
				result = "NOT_FOUND"
			} else {
				result = fmt.Sprintf("ERROR_%s", werr.Kind)
			}
		} else {
			result = "SUCCESS"
		}
	}

	t.lgr.Info("query result",
		logger.F("peer", peer),
		logger.F("result", result),
		logger.F("delay_ms", delay.Milliseconds()),
	)

	if werr := t.w.WriteRow(peer, result, delay); werr != nil {
		t.lgr.Warn("failed to write result row", logger.F("err", werr.Error()))
	}
}

func randomInt(min, max int) int {
	if min >= max {
		return min
	}
	return rand.Intn(max-min+1) + min
}

// randomTags picks zero, one, or two tags from a small fixed vocabulary so
// waves exercise both the tagged and untagged list_files paths.
func randomTags() []string {
	vocab := []string{"photo", "invoice", "report", "archive", "draft"}
	n := rand.Intn(3)
	if n == 0 {
		return nil
	}
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, vocab[rand.Intn(len(vocab))])
	}
	return out
}
