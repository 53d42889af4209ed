// Package peerproxy gives every Chord/replication operation a typed,
// in-process handle to a remote node (spec.md §4.3): getProperty/
// setProperty/getRef/setRef/find/notify/ping/pullReplication/
// pushReplication, each a single framed request-reply call over
// internal/transport.
package peerproxy

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"tagstore-dht/internal/domain"
	"tagstore-dht/internal/logger"
	"tagstore-dht/internal/transport"
	"tagstore-dht/internal/wire"
)

// Proxy is a remote handle to one ring participant. It carries no open
// connection — each call dials, sends, reads one reply, and closes, per
// the transport's one-request-per-connection model.
type Proxy struct {
	Ref     domain.NodeRef
	timeout time.Duration
	lgr     logger.Logger
}

// New builds a Proxy for ref using the given per-call timeout.
func New(ref domain.NodeRef, timeout time.Duration, lgr logger.Logger) *Proxy {
	if lgr == nil {
		lgr = &logger.NopLogger{}
	}
	return &Proxy{Ref: ref, timeout: timeout, lgr: lgr.WithNode(ref)}
}

func (p *Proxy) call(ctx context.Context, function string, data any) (wire.Message, *wire.Error) {
	return p.callAs(ctx, "Chord", function, data)
}

func (p *Proxy) callAs(ctx context.Context, command, function string, data any) (wire.Message, *wire.Error) {
	req, err := wire.NewMessage(command, function, data)
	if err != nil {
		return wire.Message{}, wire.NewError(wire.KindMalformed, "peerproxy: encode %s: %v", function, err)
	}
	reply, callErr := transport.Call(ctx, p.Ref.ChordAddr(), req, p.timeout)
	if callErr != nil {
		if werr, ok := callErr.(*wire.Error); ok {
			p.lgr.Warn("peer call failed", logger.F("function", function), logger.F("kind", string(werr.Kind)))
			return wire.Message{}, werr
		}
		return wire.Message{}, wire.NewError(wire.KindTransport, "peerproxy: %v", callErr)
	}
	if werr := wire.AsError(reply); werr != nil {
		return wire.Message{}, werr
	}
	return reply, nil
}

// Forward relays an arbitrary client request to this peer verbatim,
// used by internal/router to hand a request to the current leader
// without re-encoding it into one of the typed RPCs above.
func (p *Proxy) Forward(ctx context.Context, command, function string, data any) (wire.Message, *wire.Error) {
	return p.callAs(ctx, command, function, data)
}

// GetProperty reads remote scalar state such as "im_the_leader" or
// "in_election".
func (p *Proxy) GetProperty(ctx context.Context, name string) (string, *wire.Error) {
	reply, werr := p.call(ctx, "getProperty", map[string]string{"name": name})
	if werr != nil {
		return "", werr
	}
	var out struct {
		Value string `json:"value"`
	}
	if err := reply.Decode(&out); err != nil {
		return "", wire.NewError(wire.KindMalformed, "peerproxy: decode getProperty reply: %v", err)
	}
	return out.Value, nil
}

// SetProperty writes remote scalar state.
func (p *Proxy) SetProperty(ctx context.Context, name, value string) *wire.Error {
	_, werr := p.call(ctx, "setProperty", map[string]string{"name": name, "value": value})
	return werr
}

// GetRef reads one of the remote's successor/predecessor/leader refs. A
// nil result with no error means "remote has no such ref".
func (p *Proxy) GetRef(ctx context.Context, name string) (*domain.NodeRef, *wire.Error) {
	reply, werr := p.call(ctx, "getRef", map[string]string{"name": name})
	if werr != nil {
		return nil, werr
	}
	var out struct {
		Ref *refPayload `json:"ref"`
	}
	if err := reply.Decode(&out); err != nil {
		return nil, wire.NewError(wire.KindMalformed, "peerproxy: decode getRef reply: %v", err)
	}
	if out.Ref == nil {
		return nil, nil
	}
	ref := out.Ref.toNodeRef()
	return &ref, nil
}

// SetRef installs a reference on the remote node. The wire argument
// carries the full NodeRef (ip, ports, protocol, id) rather than a bare
// ip string, since the receiver needs ports and id to dial back — a
// concrete refinement of the abstract "setRef(name, ip)" signature.
func (p *Proxy) SetRef(ctx context.Context, name string, ref domain.NodeRef) *wire.Error {
	_, werr := p.call(ctx, "setRef", map[string]any{"name": name, "ref": fromNodeRef(ref)})
	return werr
}

// Find performs a remote successor/closest-preceding lookup keyed by id,
// invoking funcName ("getSuccessor" or "closestPrecedingNode") on the peer.
func (p *Proxy) Find(ctx context.Context, funcName string, key domain.ID) (*domain.NodeRef, *wire.Error) {
	reply, werr := p.call(ctx, "finding_call", map[string]any{
		"function": funcName,
		"key":      key.ToHexString(false),
	})
	if werr != nil {
		return nil, werr
	}
	var out struct {
		Ref *refPayload `json:"ref"`
	}
	if err := reply.Decode(&out); err != nil {
		return nil, wire.NewError(wire.KindMalformed, "peerproxy: decode find reply: %v", err)
	}
	if out.Ref == nil {
		return nil, nil
	}
	ref := out.Ref.toNodeRef()
	return &ref, nil
}

// Notify delivers a join/arrival notification carrying the sender's ref.
func (p *Proxy) Notify(ctx context.Context, funcName string, self domain.NodeRef) *wire.Error {
	_, werr := p.call(ctx, "notify_call", map[string]any{
		"function": funcName,
		"ref":      fromNodeRef(self),
	})
	return werr
}

// Ping is a single-round liveness echo.
func (p *Proxy) Ping(ctx context.Context) (bool, *wire.Error) {
	reply, werr := p.call(ctx, "pon_call", nil)
	if werr != nil {
		return false, werr
	}
	var out struct {
		Alive bool `json:"alive"`
	}
	if err := reply.Decode(&out); err != nil {
		return false, wire.NewError(wire.KindMalformed, "peerproxy: decode ping reply: %v", err)
	}
	return out.Alive, nil
}

// Delta is the channel-agnostic replication payload: a JSON blob whose
// shape is owned by the replication collaborator, not by peerproxy.
type Delta struct {
	Rows json.RawMessage `json:"rows"`
}

// PullReplication requests every row changed since `since` on channel.
func (p *Proxy) PullReplication(ctx context.Context, channel string, since int64) (Delta, *wire.Error) {
	reply, werr := p.call(ctx, "get_replication", map[string]any{"channel": channel, "since": since})
	if werr != nil {
		return Delta{}, werr
	}
	var out Delta
	if err := reply.Decode(&out); err != nil {
		return Delta{}, wire.NewError(wire.KindMalformed, "peerproxy: decode pullReplication reply: %v", err)
	}
	return out, nil
}

// PushReplication ships delta to the remote for channel and waits for ack.
func (p *Proxy) PushReplication(ctx context.Context, channel string, delta Delta) *wire.Error {
	_, werr := p.call(ctx, "update_replication", map[string]any{"channel": channel, "delta": delta})
	return werr
}

// refPayload is the wire shape of a NodeRef.
type refPayload struct {
	IP        string `json:"ip"`
	ChordPort int    `json:"chord_port"`
	DataPort  int    `json:"data_port"`
	Protocol  string `json:"protocol"`
	ID        string `json:"id"`
}

func fromNodeRef(n domain.NodeRef) refPayload {
	return refPayload{
		IP:        n.IP,
		ChordPort: n.ChordPort,
		DataPort:  n.DataPort,
		Protocol:  n.Protocol,
		ID:        n.ID.ToHexString(false),
	}
}

func (r refPayload) toNodeRef() domain.NodeRef {
	return domain.NodeRef{
		IP:        r.IP,
		ChordPort: r.ChordPort,
		DataPort:  r.DataPort,
		Protocol:  r.Protocol,
		ID:        decodeHexID(r.ID),
	}
}

// decodeHexID parses a hex-encoded ring id off the wire without
// requiring a domain.Space — the sender already validated it against
// its own space, so the receiver only needs the raw bytes.
func decodeHexID(s string) domain.ID {
	id, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return nil
	}
	return domain.ID(id)
}
