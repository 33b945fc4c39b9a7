// Package headnode implements the single-process cluster rendezvous point
// of §4.10: worker registration, slot assignment, and the health-poll
// protocol. It is deliberately trivial compared to the teacher's primary
// proxy, which additionally runs leader election (HRW voting) and
// metasync; this spec fixes the head node's identity and role rather than
// electing it, so only the join/registration/health-poll sequence of the
// teacher's ais/vote.go is carried over.
package headnode

import (
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/tidwall/buntdb"

	"github.com/hsds-go/hsds/clustermap"
	"github.com/hsds-go/hsds/cmn"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Registry holds the node-registration slot table: one row per (type,
// number) slot, each row expiring on its own heartbeat TTL so an absent
// worker's slot becomes reassignable without an explicit sweep
// (§4.10: "HN marks a node absent if it misses k consecutive heartbeats").
// Grounded on the teacher's smaptracker in ais/vote.go, generalized here to
// use buntdb's native key-TTL instead of a hand-rolled expiry sweep, since
// the teacher's own bucket-metadata store (bmdOwner) is itself buntdb-backed
// elsewhere in the pack (github.com/tidwall/buntdb in the teacher's go.mod).
type Registry struct {
	db         *buntdb.DB
	targetSN   int
	targetDN   int
	heartbeats int // k consecutive missed node_sleep_time intervals before absence
	sleepTime  time.Duration
}

// NewRegistry opens an in-memory buntdb store sized by the cluster's
// configured slot counts (§6 TARGET_SN_COUNT / TARGET_DN_COUNT).
func NewRegistry(c *cmn.Config) (*Registry, error) {
	db, err := buntdb.Open(":memory:")
	if err != nil {
		return nil, cmn.NewInternalError("opening registry store: %v", err)
	}
	return &Registry{
		db:         db,
		targetSN:   c.TargetSNCount,
		targetDN:   c.TargetDNCount,
		heartbeats: 3,
		sleepTime:  c.NodeSleepTime,
	}, nil
}

func (r *Registry) Close() error { return r.db.Close() }

func slotKey(nodeType string, number int) string {
	return fmt.Sprintf("slot:%s:%d", nodeType, number)
}

func (r *Registry) targetCount(nodeType string) int {
	if nodeType == clustermap.TypeService {
		return r.targetSN
	}
	return r.targetDN
}

func (r *Registry) ttl() time.Duration {
	return time.Duration(r.heartbeats) * r.sleepTime
}

// Register assigns id a stable slot number within its role, reusing its
// existing slot on re-registration, and returns (number, node_count) per
// the §4.10 registration response.
func (r *Registry) Register(id, host string, port int, nodeType string) (int, int, error) {
	target := r.targetCount(nodeType)
	if target <= 0 {
		return 0, 0, cmn.NewBadRequestError("node type %q is not configured for this cluster", nodeType)
	}

	var number = -1
	err := r.db.Update(func(tx *buntdb.Tx) error {
		// Re-registration: an id already holding a slot keeps it.
		for n := 0; n < target; n++ {
			val, err := tx.Get(slotKey(nodeType, n))
			if err == nil {
				var existing clustermap.Node
				if json.Unmarshal([]byte(val), &existing) == nil && existing.ID == id {
					number = n
					break
				}
			}
		}
		if number == -1 {
			for n := 0; n < target; n++ {
				if _, err := tx.Get(slotKey(nodeType, n)); err == buntdb.ErrNotFound {
					number = n
					break
				}
			}
		}
		if number == -1 {
			return cmn.NewServiceUnavailableError("no free %s slot available (target=%d)", nodeType, target)
		}
		node := clustermap.Node{ID: id, Host: host, Port: port, Type: nodeType, Number: number}
		buf, err := json.Marshal(node)
		if err != nil {
			return err
		}
		_, _, err = tx.Set(slotKey(nodeType, number), string(buf), &buntdb.SetOptions{
			Expires: true,
			TTL:     r.ttl(),
		})
		return err
	})
	if err != nil {
		return 0, 0, err
	}
	return number, target, nil
}

// Heartbeat refreshes id's slot TTL; called on every §4.10 /nodestate poll
// so a live worker's slot never expires out from under it.
func (r *Registry) Heartbeat(id, nodeType string) error {
	return r.db.Update(func(tx *buntdb.Tx) error {
		for n := 0; n < r.targetCount(nodeType); n++ {
			key := slotKey(nodeType, n)
			val, err := tx.Get(key)
			if err != nil {
				continue
			}
			var existing clustermap.Node
			if json.Unmarshal([]byte(val), &existing) == nil && existing.ID == id {
				_, _, err := tx.Set(key, val, &buntdb.SetOptions{Expires: true, TTL: r.ttl()})
				return err
			}
		}
		return cmn.NewNotFoundError(id, "node %q holds no registered slot", id)
	})
}

// View assembles the current cluster view (§4.10). ClusterState is READY
// iff every configured slot of every role is filled by a live (unexpired)
// node.
func (r *Registry) View() (*clustermap.View, error) {
	view := &clustermap.View{}
	err := r.db.View(func(tx *buntdb.Tx) error {
		return tx.Ascend("", func(key, val string) bool {
			var n clustermap.Node
			if json.Unmarshal([]byte(val), &n) == nil {
				view.Nodes = append(view.Nodes, n)
			}
			return true
		})
	})
	if err != nil {
		return nil, cmn.NewInternalError("listing registry: %v", err)
	}
	if len(view.ServiceNodes()) >= r.targetSN && len(view.DataNodes()) >= r.targetDN && r.targetSN+r.targetDN > 0 {
		view.ClusterState = clustermap.StateReady
	} else {
		view.ClusterState = clustermap.StateInitializing
	}
	return view, nil
}
