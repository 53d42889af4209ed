// Package node wires every collaborator — transport, chord, elector,
// discovery, router, replication, catalog, blobstore — into one running
// ring participant. Handler registration lives in handlers.go; this
// file only builds and starts the collaborators.
package node

import (
	"context"
	"fmt"
	"net"
	"time"

	"tagstore-dht/internal/blobstore"
	"tagstore-dht/internal/catalog"
	"tagstore-dht/internal/chord"
	"tagstore-dht/internal/config"
	"tagstore-dht/internal/ctxutil"
	"tagstore-dht/internal/discovery"
	"tagstore-dht/internal/dispatcher"
	"tagstore-dht/internal/domain"
	"tagstore-dht/internal/elector"
	"tagstore-dht/internal/logger"
	"tagstore-dht/internal/peerproxy"
	"tagstore-dht/internal/replication"
	"tagstore-dht/internal/router"
	"tagstore-dht/internal/transport"
)

// Node is one running ring participant: its identity, every
// collaborator, and the two TCP listeners spec.md §6 names (client port,
// peer port).
type Node struct {
	cfg  *config.Config
	self domain.NodeRef
	lgr  logger.Logger

	space   domain.Space
	state   *chord.State
	ring    *chord.Ring
	maint   *chord.Maintainer
	pool    *peerproxy.Pool
	elect   *elector.Elector
	disco   *discovery.Discovery
	disp    *dispatcher.Dispatcher
	rtr     *router.Router
	repl    *replication.Replicator
	catalog *catalog.Catalog
	blobs   *blobstore.Store

	electionGroup  *transport.MulticastGroup
	discoveryGroup *transport.MulticastGroup

	clientLn *transport.Listener
	peerLn   *transport.Listener
}

// New builds a Node from cfg without starting any network activity.
func New(cfg *config.Config, lgr logger.Logger) (*Node, error) {
	if lgr == nil {
		lgr = &logger.NopLogger{}
	}

	space, err := domain.NewSpace(cfg.DHT.IDBits, cfg.DHT.FaultTolerance.SuccessorListSize)
	if err != nil {
		return nil, fmt.Errorf("node: build identifier space: %w", err)
	}

	chordAddr := fmt.Sprintf("%s:%d", cfg.Node.Host, cfg.Node.ChordPort)
	self := domain.NodeRef{
		IP:        cfg.Node.Host,
		ChordPort: cfg.Node.ChordPort,
		DataPort:  cfg.Node.Port,
		Protocol:  "tcp",
		ID:        space.NewIdFromString(chordAddr),
	}

	state := chord.New(self, space, cfg.DHT.FaultTolerance.SuccessorListSize, lgr)
	pool := peerproxy.NewPool(transport.WaitCheck, lgr)

	repl := replication.New(state, pool, cfg.DHT.FaultTolerance.ReplicationFactor, lgr)
	ring := chord.NewRing(state, pool, repl, lgr)
	stabilizeEvery := cfg.DHT.FaultTolerance.StabilizeInterval * time.Duration(cfg.DHT.FaultTolerance.StableMod)
	maint := chord.NewMaintainer(ring, stabilizeEvery, cfg.DHT.FaultTolerance.StabilizeInterval, stabilizeEvery, lgr)

	electionGroup, err := transport.JoinMulticast(cfg.DHT.Multicast.Addr, cfg.DHT.Multicast.ElectionPort)
	if err != nil {
		return nil, fmt.Errorf("node: join election multicast: %w", err)
	}
	discoveryGroup, err := transport.JoinMulticast(cfg.DHT.Multicast.Addr, cfg.DHT.Multicast.DiscoveryPort)
	if err != nil {
		electionGroup.Close()
		return nil, fmt.Errorf("node: join discovery multicast: %w", err)
	}

	tickEvery := cfg.DHT.FaultTolerance.StabilizeInterval * time.Duration(cfg.DHT.Election.ElectionMod)
	elect := elector.New(self, electionGroup, pool, tickEvery, cfg.DHT.Election.ElectionRounds, cfg.DHT.FaultTolerance.StableMod, lgr)
	disco := discovery.New(self, discoveryGroup, elect, cfg.DHT.FaultTolerance.StabilizeInterval*time.Duration(cfg.DHT.Election.BroadcastMod), lgr)

	disp := dispatcher.New()
	blockPoll := cfg.DHT.FaultTolerance.StabilizeInterval * time.Duration(cfg.DHT.Election.StartMod)
	rtr := router.New(self, elect, pool, disp, blockPoll, lgr)

	cat := catalog.New(lgr)
	blobDir := cfg.Store.ContentPath
	blobs, err := blobstore.New(blobDir, lgr)
	if err != nil {
		electionGroup.Close()
		discoveryGroup.Close()
		return nil, fmt.Errorf("node: open blobstore: %w", err)
	}
	repl.RegisterSource(cat)
	repl.RegisterSource(blobs)

	n := &Node{
		cfg: cfg, self: self, lgr: lgr.WithNode(self),
		space: space, state: state, ring: ring, maint: maint, pool: pool,
		elect: elect, disco: disco, disp: disp, rtr: rtr, repl: repl,
		catalog: cat, blobs: blobs,
		electionGroup: electionGroup, discoveryGroup: discoveryGroup,
	}
	n.registerHandlers()
	return n, nil
}

// Self returns this node's ring identity.
func (n *Node) Self() domain.NodeRef { return n.self }

// Run binds both listeners, joins the ring (via a static seed, multicast
// discovery, or as the sole founding node), and starts every background
// loop. It blocks until ctx is canceled, then drains and closes sockets
// (spec.md §7's "Fatal triggers orderly shutdown").
func (n *Node) Run(ctx context.Context) error {
	clientLn, err := transport.Listen(fmt.Sprintf("%s:%d", n.cfg.Node.Bind, n.cfg.Node.Port))
	if err != nil {
		return fmt.Errorf("node: bind client port: %w", err)
	}
	n.clientLn = clientLn

	peerLn, err := transport.Listen(fmt.Sprintf("%s:%d", n.cfg.Node.Bind, n.cfg.Node.ChordPort))
	if err != nil {
		clientLn.Close()
		return fmt.Errorf("node: bind peer port: %w", err)
	}
	n.peerLn = peerLn

	seed, err := n.resolveSeed(ctx)
	if err != nil {
		clientLn.Close()
		peerLn.Close()
		return fmt.Errorf("node: resolve bootstrap seed: %w", err)
	}
	if werr := n.ring.Join(ctx, seed); werr != nil {
		clientLn.Close()
		peerLn.Close()
		return fmt.Errorf("node: join ring: %w", werr)
	}

	n.elect.Start(ctx)
	n.maint.Start(ctx)
	n.disco.Register(ctx)
	go n.disco.WatchDrift(ctx, n.knownLeader, n.rejoinThroughDrift)

	errCh := make(chan error, 2)
	go func() { errCh <- clientLn.Serve(ctx, n.handleConn) }()
	go func() { errCh <- peerLn.Serve(ctx, n.handleConn) }()

	n.lgr.Info("node: serving", logger.F("client_addr", clientLn.Addr().String()), logger.F("peer_addr", peerLn.Addr().String()))

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			n.lgr.Error("node: listener failed", logger.F("err", err.Error()))
		}
	}

	n.disco.Deregister()
	n.electionGroup.Close()
	n.discoveryGroup.Close()
	clientLn.Close()
	peerLn.Close()
	return nil
}

// knownLeader reports this node's currently known leader, the
// discovery.WatchDrift comparison point.
func (n *Node) knownLeader() domain.NodeRef {
	ref, _ := n.elect.Leader()
	return ref
}

// rejoinThroughDrift re-joins the ring through the newly announced
// leader at announcedIP, the discovery.WatchDrift reaction to a
// partition-heal announcement naming a leader this node didn't know
// about.
func (n *Node) rejoinThroughDrift(announcedIP string) {
	addr := fmt.Sprintf("%s:%d", announcedIP, n.cfg.Node.ChordPort)
	ref := &domain.NodeRef{IP: announcedIP, ChordPort: n.cfg.Node.ChordPort, Protocol: "tcp", ID: n.space.NewIdFromString(addr)}
	n.lgr.Warn("node: leader drift detected, rejoining", logger.F("announced_ip", announcedIP))
	if werr := n.ring.Join(context.Background(), ref); werr != nil {
		n.lgr.Warn("node: rejoin after leader drift failed", logger.F("err", werr.Error()))
	}
}

// resolveSeed picks the bootstrap peer this node should join through,
// per cfg.DHT.Bootstrap.Mode (spec.md §4.6 / §9's bootstrap modes).
func (n *Node) resolveSeed(ctx context.Context) (*domain.NodeRef, error) {
	switch n.cfg.DHT.Bootstrap.Mode {
	case "init":
		return nil, nil
	case "static":
		if len(n.cfg.DHT.Bootstrap.Peers) == 0 {
			return nil, nil
		}
		addr := n.cfg.DHT.Bootstrap.Peers[0]
		host, portStr, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, fmt.Errorf("invalid static bootstrap peer %q: %w", addr, err)
		}
		var port int
		if _, err := fmt.Sscanf(portStr, "%d", &port); err != nil {
			return nil, fmt.Errorf("invalid static bootstrap peer port %q: %w", addr, err)
		}
		ref := &domain.NodeRef{IP: host, ChordPort: port, Protocol: "tcp", ID: n.space.NewIdFromString(addr)}
		return ref, nil
	default: // "multicast"
		ip, err := n.disco.Discover(ctx)
		if err != nil || ip == "" {
			return nil, nil // no peer answered: found the ring alone
		}
		addr := fmt.Sprintf("%s:%d", ip, n.cfg.Node.ChordPort)
		ref := &domain.NodeRef{IP: ip, ChordPort: n.cfg.Node.ChordPort, Protocol: "tcp", ID: n.space.NewIdFromString(addr)}
		return ref, nil
	}
}

// handleConn reads one framed request off conn, routes it, and writes
// the reply, closing the connection afterward (spec.md §5's
// one-request-per-connection model).
func (n *Node) handleConn(conn net.Conn) {
	defer conn.Close()

	req, err := transport.ReadRequest(conn)
	if err != nil {
		return
	}

	ctx, cancel := ctxutil.NewContext(ctxutil.WithTrace(n.self.ID), ctxutil.WithTimeout(transport.WaitCheck))
	defer cancel()

	n.lgr.Debug("node: handling request",
		logger.F("trace_id", ctxutil.TraceIDFromContext(ctx)),
		logger.F("command", req.Header.CommandName),
		logger.F("function", req.Header.Function),
	)

	reply := n.rtr.Route(ctx, conn, req)
	_ = transport.WriteReply(conn, reply)
}
