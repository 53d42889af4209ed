// Package dispatcher is the process-wide handler registry spec.md §4.9
// and §9's Design Note call for: handlers are registered explicitly by
// a setup routine, never discovered by import-time decoration, and each
// is keyed by its (command, function) pair, so registering the same pair
// twice is a registration-time error rather than a runtime surprise.
//
// Grounded on internal/server/dht_service.go's per-method shape
// (check context, validate request, delegate, map errors to a
// structured failure) with the generated grpc service interface
// replaced by a map keyed on wire.Header.
package dispatcher

import (
	"context"
	"fmt"
	"sync"

	"tagstore-dht/internal/ctxutil"
	"tagstore-dht/internal/wire"
)

// Handler processes one decoded request and returns the data payload
// for a successful reply, or a *wire.Error.
type Handler func(ctx context.Context, req wire.Message) (any, *wire.Error)

// key identifies a registered handler by its command and function only.
// The header's dataset (argument names) is not part of the key, so two
// handlers cannot share a command/function pair; each handler decodes
// and checks its own arguments.
type key struct {
	command  string
	function string
}

// Dispatcher routes an inbound wire.Message to its registered Handler.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[key]Handler
}

// New returns an empty Dispatcher. Handlers are added via Register,
// never discovered automatically.
func New() *Dispatcher {
	return &Dispatcher{handlers: make(map[key]Handler)}
}

// Register binds (command, function) to handler. It panics on a
// duplicate registration, a programming error that should never reach
// production: all Register calls happen once, at startup, from
// internal/node's explicit handler-wiring routine.
func (d *Dispatcher) Register(command, function string, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	k := key{command: command, function: function}
	if _, exists := d.handlers[k]; exists {
		panic(fmt.Sprintf("dispatcher: duplicate registration for %s//%s", command, function))
	}
	d.handlers[k] = h
}

// Dispatch looks up and invokes the handler for msg's header, returning
// a ready-to-send reply Message in every case (including failure).
func (d *Dispatcher) Dispatch(ctx context.Context, msg wire.Message) wire.Message {
	d.mu.RLock()
	h, ok := d.handlers[key{command: msg.Header.CommandName, function: msg.Header.Function}]
	d.mu.RUnlock()

	if !ok {
		werr := wire.NewError(wire.KindNotFound, "no handler registered for %s//%s", msg.Header.CommandName, msg.Header.Function)
		return wire.ErrorReply(msg.Header.CommandName, msg.Header.Function, werr)
	}

	if werr := ctxutil.CheckContext(ctx); werr != nil {
		return wire.ErrorReply(msg.Header.CommandName, msg.Header.Function, werr)
	}

	data, werr := h(ctx, msg)
	if werr != nil {
		return wire.ErrorReply(msg.Header.CommandName, msg.Header.Function, werr)
	}
	reply, err := wire.NewMessage(msg.Header.CommandName, msg.Header.Function, data)
	if err != nil {
		werr := wire.NewError(wire.KindMalformed, "dispatcher: encode reply: %v", err)
		return wire.ErrorReply(msg.Header.CommandName, msg.Header.Function, werr)
	}
	return reply
}

// Registered reports whether a handler exists for (command, function),
// used by the router to decide whether a leader-local rewrite target is
// actually wired before it commits to the rewrite.
func (d *Dispatcher) Registered(command, function string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.handlers[key{command: command, function: function}]
	return ok
}
