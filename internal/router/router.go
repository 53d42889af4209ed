// Package router implements spec.md §4.7: classify every inbound
// connection as a peer or client request, forward client requests to
// the current leader when this node is a follower, and otherwise hand
// the request to the dispatcher — rewriting the function name with the
// leader_ prefix (ClientPrefix) when this node is itself the leader and
// a handler is registered under the prefixed name, so that entry
// performs the mutation locally and replicates it (§4.8).
//
// Grounded on internal/server/dht_service.go and client_service.go's
// split: a peer-facing service and a client-facing service sharing one
// node, reworked here as one Router dispatching to one
// internal/dispatcher.Dispatcher keyed by command family instead of by
// generated grpc service.
package router

import (
	"context"
	"net"
	"time"

	"tagstore-dht/internal/dispatcher"
	"tagstore-dht/internal/domain"
	"tagstore-dht/internal/elector"
	"tagstore-dht/internal/logger"
	"tagstore-dht/internal/peerproxy"
	"tagstore-dht/internal/wire"
)

// peerCommands names the command families that always travel
// peer-to-peer (Chord ring maintenance, Bully election support). Any
// other command family is client-facing.
var peerCommands = map[string]bool{
	"Chord": true,
}

// ClientPrefix is prepended to a client command's function name when
// this node is the leader, routing it to the dispatcher entry that
// performs the mutation locally and replicates it (spec.md §4.8).
const ClientPrefix = "leader_"

// Router classifies and routes one inbound wire.Message.
type Router struct {
	self    domain.NodeRef
	elector *elector.Elector
	pool    *peerproxy.Pool
	disp    *dispatcher.Dispatcher
	lgr     logger.Logger

	blockPoll time.Duration
}

// New builds a Router. blockPoll is WAIT_CHECK*StartMod, the sleep
// increment used while client traffic is blocked during an election or
// before a leader is known (spec.md §4.7).
func New(self domain.NodeRef, el *elector.Elector, pool *peerproxy.Pool, disp *dispatcher.Dispatcher, blockPoll time.Duration, lgr logger.Logger) *Router {
	if lgr == nil {
		lgr = &logger.NopLogger{}
	}
	return &Router{self: self, elector: el, pool: pool, disp: disp, blockPoll: blockPoll, lgr: lgr.WithNode(self)}
}

// IsPeerRequest classifies msg by command family alone: peer RPCs only
// ever carry the "Chord" command name, and any other name is a client
// request. conn is not consulted; the connection's source port plays no
// part in the decision.
func IsPeerRequest(conn net.Conn, msg wire.Message) bool {
	return peerCommands[msg.Header.CommandName]
}

// Route handles one request end to end: peer requests go straight to
// the dispatcher; client requests block while the ring has no leader or
// is mid-election, then either forward to the leader or dispatch
// locally with the leader_ prefix rewrite.
func (r *Router) Route(ctx context.Context, conn net.Conn, msg wire.Message) wire.Message {
	if IsPeerRequest(conn, msg) {
		return r.disp.Dispatch(ctx, msg)
	}
	return r.routeClient(ctx, msg)
}

func (r *Router) routeClient(ctx context.Context, msg wire.Message) wire.Message {
	if werr := r.awaitLeader(ctx); werr != nil {
		return wire.ErrorReply(msg.Header.CommandName, msg.Header.Function, werr)
	}

	if r.elector.ImLeader() {
		return r.dispatchAsLeader(ctx, msg)
	}
	return r.forwardToLeader(ctx, msg)
}

// awaitLeader blocks, sleeping in blockPoll increments, while the node
// is mid-election or has no known leader (spec.md §4.7: "block client
// requests while inElection || leader == null").
func (r *Router) awaitLeader(ctx context.Context) *wire.Error {
	for {
		if _, ok := r.elector.Leader(); ok && !r.elector.InElection() {
			return nil
		}
		select {
		case <-ctx.Done():
			return wire.NewError(wire.KindTimeout, "router: no leader available before request deadline")
		case <-time.After(r.blockPoll):
		}
	}
}

// dispatchAsLeader rewrites msg's function name with ClientPrefix and
// dispatches locally, so the handler both performs the mutation and
// fans it out to replicas (spec.md §4.8).
func (r *Router) dispatchAsLeader(ctx context.Context, msg wire.Message) wire.Message {
	rewritten := msg
	if r.disp.Registered(msg.Header.CommandName, ClientPrefix+msg.Header.Function) {
		rewritten.Header.Function = ClientPrefix + msg.Header.Function
	}
	return r.disp.Dispatch(ctx, rewritten)
}

// forwardToLeader relays msg to the current leader via PeerProxy and
// returns its reply verbatim (spec.md §4.7: "return the leader's
// response verbatim").
func (r *Router) forwardToLeader(ctx context.Context, msg wire.Message) wire.Message {
	leader, ok := r.elector.Leader()
	if !ok {
		werr := wire.NewError(wire.KindNotLeader, "router: leader unknown")
		return wire.ErrorReply(msg.Header.CommandName, msg.Header.Function, werr)
	}
	proxy := r.pool.AddRef(leader)
	defer r.pool.Release(leader)

	var payload any
	if err := msg.Decode(&payload); err != nil {
		werr := wire.NewError(wire.KindMalformed, "router: decode forwarded payload: %v", err)
		return wire.ErrorReply(msg.Header.CommandName, msg.Header.Function, werr)
	}

	reply, werr := proxy.Forward(ctx, msg.Header.CommandName, msg.Header.Function, payload)
	if werr != nil {
		return wire.ErrorReply(msg.Header.CommandName, msg.Header.Function, werr)
	}
	return reply
}
