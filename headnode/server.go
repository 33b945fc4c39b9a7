package headnode

import (
	"context"
	"net"
	"net/http"
	"strconv"

	"github.com/golang/glog"

	"github.com/hsds-go/hsds/authn"
	"github.com/hsds-go/hsds/clustermap"
	"github.com/hsds-go/hsds/cmn"
	"github.com/hsds-go/hsds/objstore"
)

// Server is the head node's §4.10 rendezvous HTTP surface: registration and
// health-poll, nothing else. Grounded on the teacher's minimal join-handler
// shape in ais/vote.go's httpVote/httpJoin handlers, stripped of voting.
type Server struct {
	reg    *Registry
	store  objstore.Client
	host   string
	port   int
	signer *authn.Signer // nil disables token verification (no cluster_secret configured)
}

func NewServer(reg *Registry, store objstore.Client, host string, port int, signer *authn.Signer) *Server {
	return &Server{reg: reg, store: store, host: host, port: port, signer: signer}
}

// PublishSelf writes this head node's coordinates to the well-known object
// store key (§3 "Head pointer", §4.10) so workers can discover it on boot.
func (s *Server) PublishSelf(ctx context.Context) error {
	ptr := clustermap.HeadPointer{HeadURL: "http://" + s.host + ":" + strconv.Itoa(s.port)}
	return s.store.PutJSON(ctx, cmn.S3Key(cmn.HeadPointerKey), ptr)
}

func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/register", s.handleRegister)
	mux.HandleFunc("/nodestate", s.handleNodeState)
	mux.HandleFunc("/info", s.handleInfo)
	return mux
}

type registerRequest struct {
	ID       string `json:"id"`
	Port     int    `json:"port"`
	NodeType string `json:"node_type"`
	Token    string `json:"token,omitempty"`
}

type registerResponse struct {
	NodeNumber int `json:"node_number"`
	NodeCount  int `json:"node_count"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, cmn.NewBadRequestError("POST required"))
		return
	}
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, cmn.NewBadRequestError("decoding registration body: %v", err))
		return
	}
	if req.ID == "" || req.NodeType == "" {
		writeErr(w, cmn.NewBadRequestError("id and node_type are required"))
		return
	}
	if s.signer != nil {
		claims, err := s.signer.Verify(req.Token)
		if err != nil || claims.Subject != req.ID || claims.NodeType != req.NodeType {
			writeErr(w, cmn.NewUnauthorizedError("registration token does not match id/node_type"))
			return
		}
	}
	host, _, _ := splitHostPort(r.RemoteAddr)
	number, count, err := s.reg.Register(req.ID, host, req.Port, req.NodeType)
	if err != nil {
		writeErr(w, err)
		return
	}
	glog.Infof("headnode: registered %s %s as slot %d/%d", req.NodeType, req.ID, number, count)
	writeJSON(w, http.StatusOK, registerResponse{NodeNumber: number, NodeCount: count})
}

func (s *Server) handleNodeState(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	nodeType := r.URL.Query().Get("node_type")
	if id != "" && nodeType != "" {
		if err := s.reg.Heartbeat(id, nodeType); err != nil {
			glog.Warningf("headnode: heartbeat for unknown node %s (%s): %v", id, nodeType, err)
		}
	}
	view, err := s.reg.View()
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type infoResponse struct {
	ClusterState string `json:"cluster_state"`
	ServiceNodes int    `json:"sn_count"`
	DataNodes    int    `json:"dn_count"`
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	view, err := s.reg.View()
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, infoResponse{
		ClusterState: view.ClusterState,
		ServiceNodes: len(view.ServiceNodes()),
		DataNodes:    len(view.DataNodes()),
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, err error) {
	writeJSON(w, cmn.StatusOf(err), map[string]string{"error": err.Error()})
}

func splitHostPort(addr string) (string, string, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return addr, "", err
	}
	return host, port, nil
}
