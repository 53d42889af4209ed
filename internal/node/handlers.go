// Handler wiring for every RPC spec.md §6 names: the Chord peer surface
// (getProperty/setProperty/getRef/setRef/finding_call/notify_call/
// pon_call/get_replication/update_replication) and the catalog command
// surface a client connects to. Registration happens once, from
// registerHandlers, called by New — never via package-level init().
package node

import (
	"context"
	"strconv"

	"tagstore-dht/internal/catalog"
	"tagstore-dht/internal/ctxutil"
	"tagstore-dht/internal/domain"
	"tagstore-dht/internal/peerproxy"
	"tagstore-dht/internal/router"
	"tagstore-dht/internal/wire"
)

// wireRef mirrors internal/peerproxy's unexported refPayload wire shape
// exactly, so a getRef/setRef reply/request round-trips through
// peerproxy.Proxy on the calling side without either package needing to
// export its codec type to the other.
type wireRef struct {
	IP        string `json:"ip"`
	ChordPort int    `json:"chord_port"`
	DataPort  int    `json:"data_port"`
	Protocol  string `json:"protocol"`
	ID        string `json:"id"`
}

func toWireRef(n domain.NodeRef) wireRef {
	return wireRef{IP: n.IP, ChordPort: n.ChordPort, DataPort: n.DataPort, Protocol: n.Protocol, ID: n.ID.ToHexString(false)}
}

func (n *Node) fromWireRef(r wireRef) (domain.NodeRef, *wire.Error) {
	id, err := n.space.FromHexString(r.ID)
	if err != nil {
		return domain.NodeRef{}, wire.NewError(wire.KindMalformed, "node: decode ref id: %v", err)
	}
	return domain.NodeRef{IP: r.IP, ChordPort: r.ChordPort, DataPort: r.DataPort, Protocol: r.Protocol, ID: id}, nil
}

// registerHandlers wires every dispatcher entry this node answers,
// peer RPCs under the "Chord" command and catalog commands under their
// own command names (spec.md §6).
func (n *Node) registerHandlers() {
	n.disp.Register("Chord", "getProperty", n.handleGetProperty)
	n.disp.Register("Chord", "setProperty", n.handleSetProperty)
	n.disp.Register("Chord", "getRef", n.handleGetRef)
	n.disp.Register("Chord", "setRef", n.handleSetRef)
	n.disp.Register("Chord", "finding_call", n.handleFindingCall)
	n.disp.Register("Chord", "notify_call", n.handleNotifyCall)
	n.disp.Register("Chord", "pon_call", n.handlePonCall)
	n.disp.Register("Chord", "get_replication", n.handleGetReplication)
	n.disp.Register("Chord", "update_replication", n.handleUpdateReplication)

	n.disp.Register("Create", router.ClientPrefix+"add", n.handleAdd)
	n.disp.Register("Delete", router.ClientPrefix+"delete", n.handleDelete)
	n.disp.Register("GetAll", "list_files", n.handleListFiles)
	n.disp.Register("Create", router.ClientPrefix+"add_tags", n.handleAddTags)
	n.disp.Register("Delete", router.ClientPrefix+"delete_tags", n.handleDeleteTags)
	n.disp.Register("Get", "get_user_id", n.handleGetUserID)
}

// ---- Chord peer RPCs ----

func (n *Node) handleGetProperty(ctx context.Context, req wire.Message) (any, *wire.Error) {
	var in struct {
		Name string `json:"name"`
	}
	if err := req.Decode(&in); err != nil {
		return nil, wire.NewError(wire.KindMalformed, "getProperty: decode request: %v", err)
	}
	switch in.Name {
	case "im_the_leader":
		return map[string]string{"value": strconv.FormatBool(n.elect.ImLeader())}, nil
	case "in_election":
		return map[string]string{"value": strconv.FormatBool(n.elect.InElection())}, nil
	default:
		return nil, wire.NewError(wire.KindNotFound, "getProperty: unknown property %q", in.Name)
	}
}

// handleSetProperty exists to satisfy the Chord RPC surface spec.md §6
// names, but this node has no externally settable scalar: leader state
// is driven entirely by the Bully election messages in internal/elector,
// never by a direct RPC write.
func (n *Node) handleSetProperty(ctx context.Context, req wire.Message) (any, *wire.Error) {
	var in struct {
		Name string `json:"name"`
	}
	if err := req.Decode(&in); err != nil {
		return nil, wire.NewError(wire.KindMalformed, "setProperty: decode request: %v", err)
	}
	return nil, wire.NewError(wire.KindNotFound, "setProperty: %q is not externally settable", in.Name)
}

func (n *Node) handleGetRef(ctx context.Context, req wire.Message) (any, *wire.Error) {
	var in struct {
		Name string `json:"name"`
	}
	if err := req.Decode(&in); err != nil {
		return nil, wire.NewError(wire.KindMalformed, "getRef: decode request: %v", err)
	}

	var ref domain.NodeRef
	var ok bool
	switch in.Name {
	case "successor":
		ref, ok = n.state.Successor()
	case "predecessor":
		ref, ok = n.state.Predecessor()
	case "leader":
		ref, ok = n.elect.Leader()
	default:
		return nil, wire.NewError(wire.KindNotFound, "getRef: unknown ref %q", in.Name)
	}
	if !ok {
		return map[string]any{"ref": nil}, nil
	}
	return map[string]any{"ref": toWireRef(ref)}, nil
}

func (n *Node) handleSetRef(ctx context.Context, req wire.Message) (any, *wire.Error) {
	var in struct {
		Name string  `json:"name"`
		Ref  wireRef `json:"ref"`
	}
	if err := req.Decode(&in); err != nil {
		return nil, wire.NewError(wire.KindMalformed, "setRef: decode request: %v", err)
	}
	ref, werr := n.fromWireRef(in.Ref)
	if werr != nil {
		return nil, werr
	}
	switch in.Name {
	case "successor":
		n.state.SetSuccessor(ref)
	case "predecessor":
		n.state.SetPredecessor(ref)
	default:
		return nil, wire.NewError(wire.KindNotFound, "setRef: unknown ref %q", in.Name)
	}
	return map[string]bool{"ok": true}, nil
}

func (n *Node) handleFindingCall(ctx context.Context, req wire.Message) (any, *wire.Error) {
	var in struct {
		Function string `json:"function"`
		Key      string `json:"key"`
	}
	if err := req.Decode(&in); err != nil {
		return nil, wire.NewError(wire.KindMalformed, "finding_call: decode request: %v", err)
	}
	id, err := n.space.FromHexString(in.Key)
	if err != nil {
		return nil, wire.NewError(wire.KindMalformed, "finding_call: decode key: %v", err)
	}

	switch in.Function {
	case "getSuccessor":
		ref, werr := n.ring.GetSuccessor(ctx, id)
		if werr != nil {
			return nil, werr
		}
		return map[string]any{"ref": toWireRef(ref)}, nil
	case "closestPrecedingNode":
		ref := n.ring.ClosestPrecedingNode(ctx, id)
		return map[string]any{"ref": toWireRef(ref)}, nil
	default:
		return nil, wire.NewError(wire.KindNotFound, "finding_call: unknown function %q", in.Function)
	}
}

func (n *Node) handleNotifyCall(ctx context.Context, req wire.Message) (any, *wire.Error) {
	var in struct {
		Function string  `json:"function"`
		Ref      wireRef `json:"ref"`
	}
	if err := req.Decode(&in); err != nil {
		return nil, wire.NewError(wire.KindMalformed, "notify_call: decode request: %v", err)
	}
	if in.Function != "notify" {
		return nil, wire.NewError(wire.KindNotFound, "notify_call: unknown function %q", in.Function)
	}
	ref, werr := n.fromWireRef(in.Ref)
	if werr != nil {
		return nil, werr
	}
	n.ring.Notify(ctx, ref)
	return map[string]bool{"ok": true}, nil
}

func (n *Node) handlePonCall(ctx context.Context, req wire.Message) (any, *wire.Error) {
	return map[string]bool{"alive": true}, nil
}

func (n *Node) handleGetReplication(ctx context.Context, req wire.Message) (any, *wire.Error) {
	var in struct {
		Channel string `json:"channel"`
		Since   int64  `json:"since"`
	}
	if err := req.Decode(&in); err != nil {
		return nil, wire.NewError(wire.KindMalformed, "get_replication: decode request: %v", err)
	}
	delta, err := n.repl.HandleGetReplication(in.Channel, in.Since)
	if err != nil {
		return nil, wire.NewError(wire.KindFatal, "get_replication: %v", err)
	}
	return delta, nil
}

func (n *Node) handleUpdateReplication(ctx context.Context, req wire.Message) (any, *wire.Error) {
	var in struct {
		Channel string          `json:"channel"`
		Delta   peerproxy.Delta `json:"delta"`
	}
	if err := req.Decode(&in); err != nil {
		return nil, wire.NewError(wire.KindMalformed, "update_replication: decode request: %v", err)
	}
	if err := n.repl.HandleUpdateReplication(in.Channel, in.Delta); err != nil {
		return nil, wire.NewError(wire.KindFatal, "update_replication: %v", err)
	}
	return map[string]bool{"ok": true}, nil
}

// ---- catalog command surface ----

func (n *Node) handleAdd(ctx context.Context, req wire.Message) (any, *wire.Error) {
	var in struct {
		Name     string   `json:"name"`
		FileType string   `json:"file_type"`
		UserID   int64    `json:"user_id"`
		Tags     []string `json:"tags"`
		Content  []byte   `json:"content"`
	}
	if err := req.Decode(&in); err != nil {
		return nil, wire.NewError(wire.KindMalformed, "add: decode request: %v", err)
	}
	if err := n.blobs.Write(in.Name, in.FileType, in.Content); err != nil {
		return nil, wire.NewError(wire.KindFatal, "add: write blob: %v", err)
	}
	row := n.catalog.Add(catalog.Row{
		Name: in.Name, FileType: in.FileType, Size: int64(len(in.Content)),
		UserID: in.UserID, Tags: in.Tags,
	})
	n.pushCatalogRow(ctx, row)
	n.pushBlobRow(ctx, in.Name, in.FileType)
	return map[string]any{"id": row.ID}, nil
}

func (n *Node) handleDelete(ctx context.Context, req wire.Message) (any, *wire.Error) {
	var in struct {
		Tags []string `json:"tags"`
	}
	if err := req.Decode(&in); err != nil {
		return nil, wire.NewError(wire.KindMalformed, "delete: decode request: %v", err)
	}
	affected := n.catalog.Delete(in.Tags)
	for _, row := range affected {
		n.pushCatalogRow(ctx, row)
		if err := n.blobs.Delete(row.Name, row.FileType); err == nil {
			n.pushBlobRow(ctx, row.Name, row.FileType)
		}
	}
	return map[string]int{"count": len(affected)}, nil
}

func (n *Node) handleListFiles(ctx context.Context, req wire.Message) (any, *wire.Error) {
	var in struct {
		Tags []string `json:"tags"`
	}
	if err := req.Decode(&in); err != nil {
		return nil, wire.NewError(wire.KindMalformed, "list_files: decode request: %v", err)
	}
	return map[string]any{"files": n.catalog.List(in.Tags)}, nil
}

func (n *Node) handleAddTags(ctx context.Context, req wire.Message) (any, *wire.Error) {
	var in struct {
		Tags    []string `json:"tags"`
		AddTags []string `json:"add_tags"`
	}
	if err := req.Decode(&in); err != nil {
		return nil, wire.NewError(wire.KindMalformed, "add_tags: decode request: %v", err)
	}
	affected := n.catalog.AddTags(in.Tags, in.AddTags)
	for _, row := range affected {
		n.pushCatalogRow(ctx, row)
	}
	return map[string]int{"count": len(affected)}, nil
}

func (n *Node) handleDeleteTags(ctx context.Context, req wire.Message) (any, *wire.Error) {
	var in struct {
		Tags       []string `json:"tags"`
		DeleteTags []string `json:"delete_tags"`
	}
	if err := req.Decode(&in); err != nil {
		return nil, wire.NewError(wire.KindMalformed, "delete_tags: decode request: %v", err)
	}
	affected := n.catalog.DeleteTags(in.Tags, in.DeleteTags)
	for _, row := range affected {
		n.pushCatalogRow(ctx, row)
	}
	return map[string]int{"count": len(affected)}, nil
}

func (n *Node) handleGetUserID(ctx context.Context, req wire.Message) (any, *wire.Error) {
	var in struct {
		UserName string `json:"user_name"`
	}
	if err := req.Decode(&in); err != nil {
		return nil, wire.NewError(wire.KindMalformed, "get_user_id: decode request: %v", err)
	}
	return map[string]int64{"id": n.catalog.GetUserID(in.UserName)}, nil
}

// pushCatalogRow fans one catalog mutation out to the current replica
// set immediately, instead of waiting for a periodic ListSince poll
// (spec.md §4.8 "push-after-mutation").
func (n *Node) pushCatalogRow(ctx context.Context, row catalog.Row) {
	rr, err := n.catalog.ToReplicationRow(row)
	if err != nil {
		n.lgr.Warn("node: encode catalog row for replication failed")
		return
	}
	// The handler's own context is request-scoped and may already be
	// canceled by the time this push completes, so the fan-out gets a
	// detached context with its own trace ID for correlating its logs.
	bg := ctxutil.EnsureTraceID(context.Background(), n.self.ID)
	go n.repl.PushMutation(bg, "catalog", rr)
	_ = ctx
}

func (n *Node) pushBlobRow(ctx context.Context, name, fileType string) {
	rr, err := n.blobs.ToReplicationRow(name, fileType)
	if err != nil {
		n.lgr.Warn("node: encode blob row for replication failed")
		return
	}
	bg := ctxutil.EnsureTraceID(context.Background(), n.self.ID)
	go n.repl.PushMutation(bg, "blob", rr)
	_ = ctx
}
