package domain

import "fmt"

// NodeRef is an immutable handle to a ring participant: (ip, chord_port,
// data_port, protocol, id). Two refs with equal ID name the same node
// (spec.md §3). NodeRef carries no connection state — PeerProxy resolves
// RPCs against it via the transport layer.
type NodeRef struct {
	IP        string
	ChordPort int
	DataPort  int
	Protocol  string
	ID        ID
}

// ChordAddr is the "ip:chord_port" string a node's id is derived from and
// the address peer RPCs dial.
func (n NodeRef) ChordAddr() string {
	return fmt.Sprintf("%s:%d", n.IP, n.ChordPort)
}

// DataAddr is the "ip:data_port" string client requests are sent to.
func (n NodeRef) DataAddr() string {
	return fmt.Sprintf("%s:%d", n.IP, n.DataPort)
}

// Equal reports whether two refs name the same ring participant.
func (n NodeRef) Equal(other NodeRef) bool {
	return n.ID.Equal(other.ID)
}

// IsZero reports whether n is the unset NodeRef value.
func (n NodeRef) IsZero() bool {
	return n.ID == nil
}

func (n NodeRef) String() string {
	return fmt.Sprintf("%s(%s)", n.ChordAddr(), n.ID.ToHexString(true))
}
