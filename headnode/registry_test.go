package headnode

import (
	"testing"
	"time"

	"github.com/hsds-go/hsds/clustermap"
	"github.com/hsds-go/hsds/cmn"
)

func newTestRegistry(t *testing.T, sn, dn int) *Registry {
	t.Helper()
	c := &cmn.Config{TargetSNCount: sn, TargetDNCount: dn, NodeSleepTime: 50 * time.Millisecond}
	r, err := NewRegistry(c)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestRegisterAssignsSequentialSlots(t *testing.T) {
	r := newTestRegistry(t, 2, 2)
	n0, count, err := r.Register("sn-a", "host-a", 6101, clustermap.TypeService)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected node_count=2, got %d", count)
	}
	n1, _, err := r.Register("sn-b", "host-b", 6102, clustermap.TypeService)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if n0 == n1 {
		t.Fatalf("expected distinct slots, got %d and %d", n0, n1)
	}
	if _, _, err := r.Register("sn-c", "host-c", 6103, clustermap.TypeService); err == nil {
		t.Fatalf("expected third service-node registration to fail: no free slots")
	}
}

func TestReregistrationKeepsSameSlot(t *testing.T) {
	r := newTestRegistry(t, 1, 1)
	n0, _, err := r.Register("dn-a", "host-a", 6201, clustermap.TypeData)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	n1, _, err := r.Register("dn-a", "host-a", 6201, clustermap.TypeData)
	if err != nil {
		t.Fatalf("re-Register: %v", err)
	}
	if n0 != n1 {
		t.Fatalf("expected stable slot across re-registration, got %d then %d", n0, n1)
	}
}

func TestViewReadyOnlyWhenAllSlotsFilled(t *testing.T) {
	r := newTestRegistry(t, 1, 1)
	view, err := r.View()
	if err != nil {
		t.Fatalf("View: %v", err)
	}
	if view.ClusterState != clustermap.StateInitializing {
		t.Fatalf("expected INITIALIZING with no nodes, got %s", view.ClusterState)
	}
	if _, _, err := r.Register("sn-a", "host-a", 6101, clustermap.TypeService); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, _, err := r.Register("dn-a", "host-b", 6201, clustermap.TypeData); err != nil {
		t.Fatalf("Register: %v", err)
	}
	view, err = r.View()
	if err != nil {
		t.Fatalf("View: %v", err)
	}
	if view.ClusterState != clustermap.StateReady {
		t.Fatalf("expected READY once all slots filled, got %s", view.ClusterState)
	}
}

func TestAbsentNodeSlotExpiresAndIsReassignable(t *testing.T) {
	r := newTestRegistry(t, 1, 0)
	r.heartbeats = 1
	r.sleepTime = 10 * time.Millisecond
	if _, _, err := r.Register("sn-a", "host-a", 6101, clustermap.TypeService); err != nil {
		t.Fatalf("Register: %v", err)
	}
	time.Sleep(40 * time.Millisecond)
	if _, _, err := r.Register("sn-b", "host-b", 6102, clustermap.TypeService); err != nil {
		t.Fatalf("expected expired slot to be reassignable, got: %v", err)
	}
}

func TestHeartbeatUnknownNodeReturnsNotFound(t *testing.T) {
	r := newTestRegistry(t, 1, 0)
	if err := r.Heartbeat("ghost", clustermap.TypeService); !cmn.IsNotFound(err) {
		t.Fatalf("expected NotFound for unregistered node, got %v", err)
	}
}
