package cmn

import (
	"flag"
	"os"
	"strconv"
	"time"
)

// Config holds every configuration value of §6, resolved command-line flag
// -> environment variable -> built-in default, exactly the order the
// teacher's cmn.LoadConfig follows.
type Config struct {
	BucketName string

	AWSGateway   string
	AWSRegion    string
	AWSAccessKey string
	AWSSecretKey string

	HeadHost string
	HeadPort int

	SNPort int
	DNPort int
	ANPort int

	TargetSNCount int
	TargetDNCount int

	MaxTCPConnections int

	HeadSleepTime  time.Duration
	NodeSleepTime  time.Duration
	AsyncSleepTime time.Duration
	S3SyncInterval time.Duration

	MaxChunksPerRequest int

	MinChunkSize int64
	MaxChunkSize int64

	Timeout time.Duration

	AllowNoAuth bool

	MaxTaskCount int

	LogLevel string

	MaxWaitTime time.Duration // cache-pressure wait cap, §4.4

	GCNotifyURL string // where the syncer reports flushed ids, §4.5/§4.8

	ClusterSecret string // HMAC key signing §4.10 worker-registration tokens; empty disables token verification
}

func defaultConfig() Config {
	return Config{
		BucketName:          "hsds",
		AWSGateway:          "",
		AWSRegion:           "us-east-1",
		HeadHost:            "localhost",
		HeadPort:            5100,
		SNPort:              5101,
		DNPort:              5102,
		ANPort:              5103,
		TargetSNCount:       1,
		TargetDNCount:       1,
		MaxTCPConnections:   100,
		HeadSleepTime:       2 * time.Second,
		NodeSleepTime:       2 * time.Second,
		AsyncSleepTime:      10 * time.Second,
		S3SyncInterval:      10 * time.Second,
		MaxChunksPerRequest: 1000,
		MinChunkSize:        1 << 20,  // 1 MiB
		MaxChunkSize:        4 << 20,  // 4 MiB
		Timeout:             30 * time.Second,
		AllowNoAuth:         false,
		MaxTaskCount:        100,
		LogLevel:            "info",
		MaxWaitTime:         10 * time.Second,
		GCNotifyURL:         "",
		ClusterSecret:       "",
	}
}

// LoadConfig resolves Config per §6: command-line --key=val, environment
// KEY, then built-in default. args is normally os.Args[1:]; callers running
// under "go test" should pass nil.
func LoadConfig(args []string) (*Config, error) {
	c := defaultConfig()

	fs := flag.NewFlagSet("hsds", flag.ContinueOnError)
	raw := map[string]*string{}
	register := func(name string) {
		raw[name] = fs.String(name, "", "override for "+name)
	}
	for _, name := range []string{
		"bucket_name", "aws_s3_gateway", "aws_region", "aws_access_key_id", "aws_secret_access_key",
		"head_host", "head_port", "sn_port", "dn_port", "an_port",
		"target_sn_count", "target_dn_count", "max_tcp_connections",
		"head_sleep_time", "node_sleep_time", "async_sleep_time", "s3_sync_interval",
		"max_chunks_per_request", "min_chunk_size", "max_chunk_size", "timeout",
		"allow_noauth", "max_task_count", "log_level", "max_wait_time", "gc_notify_url",
		"cluster_secret",
	} {
		register(name)
	}
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	resolve := func(name string) (string, bool) {
		if v := raw[name]; v != nil && *v != "" {
			return *v, true
		}
		if v, ok := os.LookupEnv(envName(name)); ok && v != "" {
			return v, true
		}
		return "", false
	}

	if v, ok := resolve("bucket_name"); ok {
		c.BucketName = v
	}
	if v, ok := resolve("aws_s3_gateway"); ok {
		c.AWSGateway = v
	}
	if v, ok := resolve("aws_region"); ok {
		c.AWSRegion = v
	}
	if v, ok := resolve("aws_access_key_id"); ok {
		c.AWSAccessKey = v
	}
	if v, ok := resolve("aws_secret_access_key"); ok {
		c.AWSSecretKey = v
	}
	if v, ok := resolve("head_host"); ok {
		c.HeadHost = v
	}
	if err := resolveInt(resolve, "head_port", &c.HeadPort); err != nil {
		return nil, err
	}
	if err := resolveInt(resolve, "sn_port", &c.SNPort); err != nil {
		return nil, err
	}
	if err := resolveInt(resolve, "dn_port", &c.DNPort); err != nil {
		return nil, err
	}
	if err := resolveInt(resolve, "an_port", &c.ANPort); err != nil {
		return nil, err
	}
	if err := resolveInt(resolve, "target_sn_count", &c.TargetSNCount); err != nil {
		return nil, err
	}
	if err := resolveInt(resolve, "target_dn_count", &c.TargetDNCount); err != nil {
		return nil, err
	}
	if err := resolveInt(resolve, "max_tcp_connections", &c.MaxTCPConnections); err != nil {
		return nil, err
	}
	if err := resolveDuration(resolve, "head_sleep_time", &c.HeadSleepTime); err != nil {
		return nil, err
	}
	if err := resolveDuration(resolve, "node_sleep_time", &c.NodeSleepTime); err != nil {
		return nil, err
	}
	if err := resolveDuration(resolve, "async_sleep_time", &c.AsyncSleepTime); err != nil {
		return nil, err
	}
	if err := resolveDuration(resolve, "s3_sync_interval", &c.S3SyncInterval); err != nil {
		return nil, err
	}
	if err := resolveInt(resolve, "max_chunks_per_request", &c.MaxChunksPerRequest); err != nil {
		return nil, err
	}
	if err := resolveInt64(resolve, "min_chunk_size", &c.MinChunkSize); err != nil {
		return nil, err
	}
	if err := resolveInt64(resolve, "max_chunk_size", &c.MaxChunkSize); err != nil {
		return nil, err
	}
	if err := resolveDuration(resolve, "timeout", &c.Timeout); err != nil {
		return nil, err
	}
	if v, ok := resolve("allow_noauth"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, NewBadRequestError("allow_noauth: %v", err)
		}
		c.AllowNoAuth = b
	}
	if err := resolveInt(resolve, "max_task_count", &c.MaxTaskCount); err != nil {
		return nil, err
	}
	if v, ok := resolve("log_level"); ok {
		c.LogLevel = v
	}
	if err := resolveDuration(resolve, "max_wait_time", &c.MaxWaitTime); err != nil {
		return nil, err
	}
	if v, ok := resolve("gc_notify_url"); ok {
		c.GCNotifyURL = v
	}
	if v, ok := resolve("cluster_secret"); ok {
		c.ClusterSecret = v
	}
	return &c, nil
}

func envName(flagName string) string {
	b := []byte(flagName)
	for i, c := range b {
		if c >= 'a' && c <= 'z' {
			b[i] = c - ('a' - 'A')
		}
	}
	return string(b)
}

func resolveInt(resolve func(string) (string, bool), name string, dst *int) error {
	v, ok := resolve(name)
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return NewBadRequestError("%s: %v", name, err)
	}
	*dst = n
	return nil
}

func resolveInt64(resolve func(string) (string, bool), name string, dst *int64) error {
	v, ok := resolve(name)
	if !ok {
		return nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return NewBadRequestError("%s: %v", name, err)
	}
	*dst = n
	return nil
}

func resolveDuration(resolve func(string) (string, bool), name string, dst *time.Duration) error {
	v, ok := resolve(name)
	if !ok {
		return nil
	}
	// accept either a bare integer (seconds, as the source config files do)
	// or a Go duration string.
	if n, err := strconv.Atoi(v); err == nil {
		*dst = time.Duration(n) * time.Second
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return NewBadRequestError("%s: %v", name, err)
	}
	*dst = d
	return nil
}
