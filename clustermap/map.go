// Package clustermap models the cluster membership view of §4.10: the set
// of service and data nodes the head node has admitted, each node's stable
// slot number, and the cluster-wide INITIALIZING/READY state. It is the
// direct descendant of the teacher's cluster.Smap/cluster.Snode.
package clustermap

import (
	"strconv"

	"github.com/OneOfOne/xxhash"

	"github.com/hsds-go/hsds/cmn"
)

// Daemon types, mirroring the teacher's cmn.Proxy/cmn.Target enum.
const (
	TypeHead    = "head"
	TypeService = "sn"
	TypeData    = "dn"
)

// Cluster-wide states (§4.10).
const (
	StateInitializing = "INITIALIZING"
	StateReady        = "READY"
)

// Per-worker states (§4.10).
const (
	WorkerInitializing = "INITIALIZING"
	WorkerWaiting      = "WAITING"
	WorkerReady        = "READY"
)

// Node is one member of the cluster view: {id, host, port, type, number}
// (§4.10, §3 "Head pointer").
type Node struct {
	ID     string `json:"id"`
	Host   string `json:"host"`
	Port   int    `json:"port"`
	Type   string `json:"type"` // TypeService | TypeData
	Number int    `json:"number"`

	digest uint64
}

// Digest returns a fast, non-cryptographic hash of Node.ID, used only for
// the head node's in-memory peer table (NOT for id→DN ownership, which
// §4.1 fixes to MD5 via cmn.Partition). Grounded on the teacher's
// Snode.Digest(), which uses the same xxhash library for the same purpose.
func (n *Node) Digest() uint64 {
	if n.digest == 0 {
		n.digest = xxhash.ChecksumString64(n.ID)
	}
	return n.digest
}

func (n *Node) URL() string {
	return "http://" + n.Host + ":" + strconv.Itoa(n.Port)
}

// View is the full cluster view the head node publishes and every worker
// polls (§2, §4.10).
type View struct {
	Nodes        []Node `json:"nodes"`
	ClusterState string `json:"cluster_state"`
}

func (v *View) ServiceNodes() []Node {
	return v.nodesOfType(TypeService)
}

func (v *View) DataNodes() []Node {
	return v.nodesOfType(TypeData)
}

func (v *View) nodesOfType(t string) []Node {
	var out []Node
	for _, n := range v.Nodes {
		if n.Type == t {
			out = append(out, n)
		}
	}
	return out
}

// DataNodeFor resolves which DN owns objectID, per §4.1's partition
// function applied to the current set of data nodes.
func (v *View) DataNodeFor(objectID string) (Node, error) {
	dns := v.DataNodes()
	if len(dns) == 0 {
		return Node{}, cmn.NewServiceUnavailableError("no data nodes registered")
	}
	n := cmn.Partition(objectID, len(dns))
	for _, dn := range dns {
		if dn.Number == n {
			return dn, nil
		}
	}
	return Node{}, cmn.NewServiceUnavailableError("data node slot %d unfilled", n)
}

// HeadPointer is the JSON blob published under cmn.HeadPointerKey (§3).
type HeadPointer struct {
	HeadURL string `json:"head_url"`
}
