package cluster

import (
	"github.com/rsms/rdx/conn"
	"github.com/rsms/rdx/mux"
)

// Role distinguishes a shard's master from its replicas (spec.md §3).
type Role int

const (
	RoleMaster Role = iota
	RoleReplica
)

func (r Role) String() string {
	if r == RoleMaster {
		return "master"
	}
	return "replica"
}

// Node is one server endpoint within a shard: an opaque shard-assigned id,
// its address, its role, and the standalone connection the router opened to
// it (nil until first used, for lazily-opened replicas).
type Node struct {
	ID   string
	Host string
	Port int
	Role Role

	Conn *conn.Conn
	Mux  *mux.Mux
}

func (n *Node) Addr() string {
	return n.Host + ":" + itoaPort(n.Port)
}

func itoaPort(p int) string {
	if p == 0 {
		return "0"
	}
	var buf [6]byte
	i := len(buf)
	for p > 0 {
		i--
		buf[i] = byte('0' + p%10)
		p /= 10
	}
	return string(buf[i:])
}

// Shard is one master plus its replicas; index 0 is always the master
// (spec.md §3).
type Shard struct {
	Nodes []*Node
}

func (s *Shard) Master() *Node {
	if len(s.Nodes) == 0 {
		return nil
	}
	return s.Nodes[0]
}

// SlotRange is a contiguous, half-open-free [Low, High] range (both
// inclusive, spec.md §3) owned by ShardIndex.
type SlotRange struct {
	Low, High  uint16
	ShardIndex int
}

// RetryReasonKind distinguishes the two redirect kinds the router converts
// sub-reply errors into (spec.md §3 "Retry Reason").
type RetryReasonKind int

const (
	RetryMoved RetryReasonKind = iota
	RetryAsk
)

type RetryReason struct {
	Kind RetryReasonKind
	Slot uint16
	Host string
	Port uint16
}

// SubRequest identifies one sub-request's target node (by shard and node
// index) and the subset of the original keys it carries, for MultiShard
// reply re-ordering (spec.md §3).
type SubRequest struct {
	ShardIndex int
	NodeIndex  int
	Keys       [][]byte
	Asking     bool
}
