package common

import (
	"strings"
	"testing"

	"github.com/lni/dragonboat/v4/logger"
)

func validConfig() *Config {
	return &Config{
		Store:         StoreLocal,
		VFSName:       "kv1",
		BridgeWorkers: 4,
		PageSize:      4096,
		LogLevel:      "info",
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(c *Config)
		wantErr string
	}{
		{"local", func(c *Config) {}, ""},
		{"bolt without path", func(c *Config) { c.Store = StoreBolt }, "bolt-path"},
		{"bolt", func(c *Config) { c.Store = StoreBolt; c.BoltPath = "kvfs.db" }, ""},
		{"unknown store", func(c *Config) { c.Store = "redis" }, "invalid store type"},
		{"empty vfs name", func(c *Config) { c.VFSName = "" }, "vfs name"},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, "invalid log level"},
		{"dstore without replica", func(c *Config) { c.Store = StoreDistributed }, "replica-id"},
		{"dstore unknown replica", func(c *Config) {
			c.Store = StoreDistributed
			c.ReplicaID = HashString("node-3")
			c.ClusterMembers = map[uint64]string{HashString("node-1"): "localhost:63001"}
		}, "no address found"},
		{"dstore", func(c *Config) {
			c.Store = StoreDistributed
			c.ReplicaID = HashString("node-1")
			c.ClusterMembers = map[uint64]string{HashString("node-1"): "localhost:63001"}
			c.TimeoutSecond = 5
		}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.modify(c)
			err := c.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestParseClusterMembers(t *testing.T) {
	members, err := ParseClusterMembers("node-1=localhost:63001, node-2=localhost:63002")
	if err != nil {
		t.Fatalf("ParseClusterMembers() error = %v", err)
	}
	if len(members) != 2 {
		t.Fatalf("expected 2 members, got %d", len(members))
	}
	if got := members[HashString("node-2")]; got != "localhost:63002" {
		t.Errorf("node-2 address = %q", got)
	}

	for _, bad := range []string{"node-1", "node-1=", "=localhost:1", "a=b=c"} {
		if _, err := ParseClusterMembers(bad); err == nil {
			t.Errorf("ParseClusterMembers(%q) expected error", bad)
		}
	}

	members, err = ParseClusterMembers("")
	if err != nil || len(members) != 0 {
		t.Errorf("ParseClusterMembers(\"\") = %v, %v", members, err)
	}
}

func TestDragonboatConfig(t *testing.T) {
	c := validConfig()
	c.Store = StoreDistributed
	c.ShardID = 100
	c.ReplicaID = HashString("node-1")
	c.ClusterMembers = map[uint64]string{c.ReplicaID: "localhost:63001"}
	c.RTTMillisecond = 100
	c.SnapshotEntries = 10
	c.CompactionOverhead = 5
	c.DataDir = "data"

	rc := c.ToDragonboatConfig()
	if err := rc.Validate(); err != nil {
		t.Fatalf("shard config invalid: %v", err)
	}
	if rc.ShardID != 100 || rc.ReplicaID != c.ReplicaID {
		t.Errorf("unexpected ids: shard %d replica %d", rc.ShardID, rc.ReplicaID)
	}

	nh := c.ToNodeHostConfig()
	if nh.RaftAddress != "localhost:63001" || nh.NodeHostDir != "data" {
		t.Errorf("unexpected nodehost config: %+v", nh)
	}

	out := c.String()
	for _, want := range []string{"RAFT PARAMETERS", "localhost:63001", "dstore"} {
		if !strings.Contains(out, want) {
			t.Errorf("String() misses %q", want)
		}
	}
}

func TestParseLogLevel(t *testing.T) {
	for in, want := range map[string]logger.LogLevel{
		"debug": logger.DEBUG,
		"INFO":  logger.INFO,
		"warn":  logger.WARNING,
		"error": logger.ERROR,
	} {
		got, err := ParseLogLevel(in)
		if err != nil || got != want {
			t.Errorf("ParseLogLevel(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseLogLevel("trace"); err == nil {
		t.Error("expected error for unknown level")
	}
	if err := InitLoggers("verbose"); err == nil {
		t.Error("InitLoggers accepted an unknown level")
	}
}
