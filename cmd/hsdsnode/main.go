// Command hsdsnode is the single binary for all three node roles of §2/§3:
// head, service, and data. The role is selected with -role, mirroring the
// teacher's ais/daemon.go, which likewise drives proxy-vs-target startup
// off a single -role flag parsed in an init()-registered FlagSet ahead of
// cmn.LoadConfig.
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/hsds-go/hsds/authn"
	"github.com/hsds-go/hsds/chunkcache"
	"github.com/hsds-go/hsds/clustermap"
	"github.com/hsds-go/hsds/cmn"
	"github.com/hsds-go/hsds/datanode"
	"github.com/hsds-go/hsds/headnode"
	"github.com/hsds-go/hsds/metacache"
	"github.com/hsds-go/hsds/objstore"
	"github.com/hsds-go/hsds/servicenode"
	"github.com/hsds-go/hsds/stats"
	"github.com/hsds-go/hsds/syncer"

	"github.com/golang/glog"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// cliFlags mirrors the teacher's cliFlags struct (ais/daemon.go): the small
// set of knobs that must be known before cmn.LoadConfig can even be called,
// plus the -role selector LoadConfig itself has no opinion about.
type cliFlags struct {
	role   string
	nodeID string
}

func parseCLIFlags() cliFlags {
	var f cliFlags
	flag.StringVar(&f.role, "role", "", "node role: head | service | data")
	flag.StringVar(&f.nodeID, "id", "", "stable node id (defaults to a generated short id)")
	flag.Parse()
	return f
}

func main() {
	flags := parseCLIFlags()
	if flags.role == "" {
		fmt.Fprintln(os.Stderr, "hsdsnode: -role is required (head | service | data)")
		os.Exit(2)
	}
	if flags.nodeID == "" {
		flags.nodeID = cmn.NewShortID("node")
	}

	config, err := cmn.LoadConfig(flag.Args())
	if err != nil {
		glog.Fatalf("hsdsnode: loading config: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	switch flags.role {
	case clustermap.TypeHead:
		runHead(ctx, flags, config)
	case clustermap.TypeService:
		runService(ctx, flags, config)
	case clustermap.TypeData:
		runData(ctx, flags, config)
	default:
		glog.Fatalf("hsdsnode: unknown role %q", flags.role)
	}
}

// signerFor returns the §4.10 registration-token signer for c's configured
// cluster secret, or nil to disable token verification entirely — a
// cluster with no cluster_secret set trusts registration bodies as-is.
func signerFor(c *cmn.Config) *authn.Signer {
	if c.ClusterSecret == "" {
		return nil
	}
	return authn.NewSigner([]byte(c.ClusterSecret))
}

func newStore(c *cmn.Config) objstore.Client {
	if c.AWSGateway == "" && c.AWSAccessKey == "" {
		glog.Warningf("hsdsnode: no S3 credentials configured, using an in-memory store")
		return objstore.NewMemStore()
	}
	store, err := objstore.NewS3Store(c)
	if err != nil {
		glog.Fatalf("hsdsnode: building S3 store: %v", err)
	}
	return store
}

func serve(ctx context.Context, addr string, mux *http.ServeMux) {
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	glog.Infof("hsdsnode: listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		glog.Fatalf("hsdsnode: %v", err)
	}
}

// runHead starts the §4.10 rendezvous server: worker registration, the
// health-poll endpoint, and the well-known head-pointer publish that lets
// SNs/DNs find it on boot (§3).
func runHead(ctx context.Context, flags cliFlags, c *cmn.Config) {
	store := newStore(c)
	reg, err := headnode.NewRegistry(c)
	if err != nil {
		glog.Fatalf("hsdsnode: head registry: %v", err)
	}
	defer reg.Close()

	srv := headnode.NewServer(reg, store, c.HeadHost, c.HeadPort, signerFor(c))
	if err := srv.PublishSelf(ctx); err != nil {
		glog.Fatalf("hsdsnode: publishing head pointer: %v", err)
	}
	serve(ctx, fmt.Sprintf(":%d", c.HeadPort), srv.Routes())
}

// joinCluster performs the §4.10 boot sequence common to SNs and DNs:
// resolve the head pointer, register for a slot, and start a background
// poll loop that refreshes the cluster view and sends heartbeats. It
// returns a ViewFunc reading the latest polled snapshot plus this node's
// assigned (number, count) pair delivered on registration.
func joinCluster(ctx context.Context, c *cmn.Config, store objstore.Client, client *http.Client, id, nodeType string, port int) (func() *clustermap.View, int, int) {
	var ptr clustermap.HeadPointer
	for {
		if err := store.GetJSON(ctx, cmn.S3Key(cmn.HeadPointerKey), &ptr); err == nil && ptr.HeadURL != "" {
			break
		}
		glog.Warningf("hsdsnode: head pointer not yet published, retrying")
		select {
		case <-ctx.Done():
			return func() *clustermap.View { return nil }, 0, 0
		case <-time.After(c.NodeSleepTime):
		}
	}

	number, count := registerWith(ctx, c, client, ptr.HeadURL, id, nodeType, port)

	var latest clustermap.View
	poll := func() {
		view, err := pollView(ctx, client, ptr.HeadURL, id, nodeType)
		if err != nil {
			glog.Warningf("hsdsnode: polling head node: %v", err)
			return
		}
		latest = *view
	}
	poll()
	go func() {
		ticker := time.NewTicker(c.NodeSleepTime)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				poll()
			}
		}
	}()

	return func() *clustermap.View { v := latest; return &v }, number, count
}

func registerWith(ctx context.Context, c *cmn.Config, client *http.Client, headURL, id, nodeType string, port int) (int, int) {
	reqBody := map[string]interface{}{"id": id, "port": port, "node_type": nodeType}
	if signer := signerFor(c); signer != nil {
		token, err := signer.Sign(id, nodeType, c.NodeSleepTime*10)
		if err != nil {
			glog.Fatalf("hsdsnode: signing registration token: %v", err)
		}
		reqBody["token"] = token
	}
	body, _ := json.Marshal(reqBody)
	for {
		req, _ := http.NewRequestWithContext(ctx, http.MethodPost, headURL+"/register", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		resp, err := client.Do(req)
		if err == nil {
			defer resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				var out struct {
					NodeNumber int `json:"node_number"`
					NodeCount  int `json:"node_count"`
				}
				if json.NewDecoder(resp.Body).Decode(&out) == nil {
					glog.Infof("hsdsnode: registered as %s slot %d/%d", nodeType, out.NodeNumber, out.NodeCount)
					return out.NodeNumber, out.NodeCount
				}
			}
		}
		glog.Warningf("hsdsnode: registration with %s failed, retrying", headURL)
		select {
		case <-ctx.Done():
			return 0, 0
		case <-time.After(2 * time.Second):
		}
	}
}

func pollView(ctx context.Context, client *http.Client, headURL, id, nodeType string) (*clustermap.View, error) {
	url := headURL + "/nodestate?id=" + id + "&node_type=" + nodeType
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, cmn.NewInternalError("head node returned status %d", resp.StatusCode)
	}
	var view clustermap.View
	if err := json.NewDecoder(resp.Body).Decode(&view); err != nil {
		return nil, err
	}
	return &view, nil
}

// runService starts an SN process: joins the cluster, wires observability,
// and serves the §4.9/§6 public REST surface.
func runService(ctx context.Context, flags cliFlags, c *cmn.Config) {
	store := newStore(c)
	users := authn.NewUserStore()
	client := &http.Client{Timeout: c.Timeout}

	reg, metricsHandler := stats.New(clustermap.TypeService)

	view, _, _ := joinCluster(ctx, c, store, client, flags.nodeID, clustermap.TypeService, c.SNPort)

	snCtx := servicenode.NewContext(view, store, users, c)
	snCtx.Stats = reg

	mux := servicenode.Routes(snCtx)
	mux.Handle("/metrics", metricsHandler)
	serve(ctx, fmt.Sprintf(":%d", c.SNPort), mux)
}

// runData starts a DN process: joins the cluster, stands up its metadata
// and chunk caches and background syncer (§4.3/§4.4/§4.5), and serves the
// §4.7/§4.8 internal REST surface the SN dispatches to.
func runData(ctx context.Context, flags cliFlags, c *cmn.Config) {
	store := newStore(c)
	client := &http.Client{Timeout: c.Timeout}

	reg, metricsHandler := stats.New(clustermap.TypeData)

	meta := metacache.New(store, c.MaxTaskCount*1000)
	chunks := chunkcache.New(store, c.MaxChunkSize*int64(c.MaxTaskCount), c.MaxWaitTime)

	dnCtx := &datanode.Context{Store: store, Config: c, Meta: meta, Chunks: chunks}
	dnCtx.WireStats(reg)

	view, number, count := joinCluster(ctx, c, store, client, flags.nodeID, clustermap.TypeData, c.DNPort)
	dnCtx.SetRing(number, count)
	go watchRing(ctx, c, view, dnCtx)

	deflateLookup := func(chunkID string) int {
		datasetID, err := cmn.DatasetOf(chunkID)
		if err != nil {
			return -1
		}
		obj, ok := meta.Peek(datasetID)
		if !ok {
			return -1
		}
		props, _ := obj["creationProperties"].(map[string]interface{})
		if props == nil {
			return -1
		}
		filters, _ := props["filters"].([]interface{})
		if len(filters) == 0 {
			return -1
		}
		f0, _ := filters[0].(map[string]interface{})
		level, ok := f0["level"].(float64)
		if !ok {
			return -1
		}
		return int(level)
	}
	dnSyncer := syncer.New(store, meta, chunks, deflateLookup, nil, c.S3SyncInterval)
	go dnSyncer.Run(ctx)

	mux := datanode.Routes(dnCtx)
	mux.Handle("/metrics", metricsHandler)
	serve(ctx, fmt.Sprintf(":%d", c.DNPort), mux)
}

// watchRing keeps a DN's (number, count) in step with the cluster view as
// DNs join, per §4.1 invariant 1 ("current data-node count").
func watchRing(ctx context.Context, c *cmn.Config, view func() *clustermap.View, dnCtx *datanode.Context) {
	ticker := time.NewTicker(c.NodeSleepTime)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			v := view()
			if v == nil {
				continue
			}
			count := len(v.DataNodes())
			if count > 0 {
				dnCtx.SetRing(dnCtx.Number, count)
			}
		}
	}
}
