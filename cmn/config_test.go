package cmn

import (
	"os"
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	c, err := LoadConfig(nil)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if c.BucketName != "hsds" {
		t.Fatalf("default bucket_name = %q", c.BucketName)
	}
	if c.Timeout != 30*time.Second {
		t.Fatalf("default timeout = %v", c.Timeout)
	}
}

func TestLoadConfigEnvOverridesDefault(t *testing.T) {
	os.Setenv("BUCKET_NAME", "from-env")
	defer os.Unsetenv("BUCKET_NAME")

	c, err := LoadConfig(nil)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if c.BucketName != "from-env" {
		t.Fatalf("got %q, want from-env", c.BucketName)
	}
}

func TestLoadConfigFlagOverridesEnv(t *testing.T) {
	os.Setenv("BUCKET_NAME", "from-env")
	defer os.Unsetenv("BUCKET_NAME")

	c, err := LoadConfig([]string{"--bucket_name=from-flag"})
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if c.BucketName != "from-flag" {
		t.Fatalf("got %q, want from-flag", c.BucketName)
	}
}
