package common

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/lni/dragonboat/v4/config"
)

// --------------------------------------------------------------------------
// helper functions to interface with Dragonboat (for the dstore backend)
// --------------------------------------------------------------------------

// Dragonboat uses RTT (Round Trip Time) to determine the timing of elections and heartbeats.
// These default values are selected according to the RAFT Paper
const (
	electionRTTFactor  = 10
	heartbeatRTTFactor = 1
)

// ToDragonboatConfig converts the Config to the Dragonboat config of the store shard
func (c *Config) ToDragonboatConfig() config.Config {
	return config.Config{
		ReplicaID:          c.ReplicaID,
		ShardID:            c.ShardID,
		ElectionRTT:        electionRTTFactor,
		HeartbeatRTT:       heartbeatRTTFactor,
		CheckQuorum:        true,
		SnapshotEntries:    c.SnapshotEntries,
		CompactionOverhead: c.CompactionOverhead,
		MaxInMemLogSize:    0,
	}
}

// ToNodeHostConfig creates a NodeHostConfig for Dragonboat
func (c *Config) ToNodeHostConfig() config.NodeHostConfig {
	return config.NodeHostConfig{
		WALDir:         c.DataDir,
		NodeHostDir:    c.DataDir,
		RTTMillisecond: c.RTTMillisecond,
		RaftAddress:    c.ClusterMembers[c.ReplicaID],
	}
}

// --------------------------------------------------------------------------
// Configuration struct
// --------------------------------------------------------------------------

// StoreType selects the store backend of the vfs.
type StoreType string

const (
	StoreLocal       StoreType = "lstore"
	StoreBolt        StoreType = "bstore"
	StoreDistributed StoreType = "dstore"
)

// Config holds all settings of a kvfs process.
type Config struct {
	// Store backend
	Store    StoreType
	BoltPath string

	// Dragonboat parameters (dstore only)
	ShardID            uint64
	RTTMillisecond     uint64
	SnapshotEntries    uint64
	CompactionOverhead uint64
	DataDir            string
	ReplicaID          uint64
	ClusterMembers     map[uint64]string
	TimeoutSecond      int64

	// VFS settings
	VFSName       string
	BridgeWorkers int
	PerKeyLocks   bool
	PageSize      int

	// Logging configuration
	LogLevel string
}

// IsDistributed reports whether the store is replicated with RAFT.
func (c *Config) IsDistributed() bool {
	return c.Store == StoreDistributed
}

// Timeout returns TimeoutSecond as a duration.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecond) * time.Second
}

// Validate checks the configuration for missing or contradicting values.
func (c *Config) Validate() error {
	switch c.Store {
	case StoreLocal:
	case StoreBolt:
		if c.BoltPath == "" {
			return fmt.Errorf("bolt-path is required for store %s", c.Store)
		}
	case StoreDistributed:
		if c.ReplicaID == 0 {
			return fmt.Errorf("replica-id is required for store %s", c.Store)
		}
		if len(c.ClusterMembers) == 0 {
			return fmt.Errorf("cluster-members is required for store %s", c.Store)
		}
		if _, ok := c.ClusterMembers[c.ReplicaID]; !ok {
			return fmt.Errorf("no address found for replica ID %d in cluster members", c.ReplicaID)
		}
		if c.TimeoutSecond <= 0 {
			return fmt.Errorf("timeout must be positive, got %d", c.TimeoutSecond)
		}
	default:
		return fmt.Errorf("invalid store type: %s (expected one of: lstore, bstore, dstore)", c.Store)
	}
	if c.VFSName == "" {
		return fmt.Errorf("vfs name must not be empty")
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// String returns a formatted string representation of the configuration
func (c *Config) String() string {
	var sb strings.Builder

	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	addSection("VFS")
	addField("Name", c.VFSName)
	addField("Bridge Workers", strconv.Itoa(c.BridgeWorkers))
	addField("Per Key Locks", strconv.FormatBool(c.PerKeyLocks))
	addField("Page Size", strconv.Itoa(c.PageSize))

	addSection("Logging")
	addField("Log Level", c.LogLevel)

	addSection("Store")
	addField("Type", string(c.Store))
	if c.Store == StoreBolt {
		addField("Bolt Path", c.BoltPath)
	}

	if c.IsDistributed() {
		addSection("Node Identity")
		addField("RAFT Address", c.ClusterMembers[c.ReplicaID])
		addField("Node ID", strconv.FormatUint(c.ReplicaID, 10))
		addField("Shard ID", strconv.FormatUint(c.ShardID, 10))

		addSection("RAFT Parameters")
		addField("Round Trip Time (ms)", fmt.Sprintf("%d ms", c.RTTMillisecond))
		addField("Election RTT (ms)", fmt.Sprintf("%d", c.RTTMillisecond*electionRTTFactor))
		addField("Heartbeat RTT (ms)", fmt.Sprintf("%d", c.RTTMillisecond*heartbeatRTTFactor))
		addField("Check Quorum", fmt.Sprintf("%t", true))
		addField("Snapshot Entries", fmt.Sprintf("%d", c.SnapshotEntries))
		addField("Compaction Overhead", fmt.Sprintf("%d", c.CompactionOverhead))
		addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
		addField("Data Directory", c.DataDir)

		addSection("Cluster")
		sb.WriteString("  Initial Members:\n")

		// Sort keys for consistent output
		var keys []uint64
		for k := range c.ClusterMembers {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

		for _, k := range keys {
			sb.WriteString(fmt.Sprintf("    Node %d: %s\n", k, c.ClusterMembers[k]))
		}
	}
	return sb.String()
}

// --------------------------------------------------------------------------
// Parsing helpers
// --------------------------------------------------------------------------

// HashString maps a node name to a replica ID using FNV-1a.
func HashString(s string) uint64 {
	const (
		offset64 = 14695981039346656037
		prime64  = 1099511628211
	)
	hash := uint64(offset64)
	for i := 0; i < len(s); i++ {
		hash ^= uint64(s[i])
		hash *= prime64
	}
	return hash
}

// ParseClusterMembers parses 'node-1=localhost:63001,node-2=localhost:63002'.
// Node names are hashed to replica IDs with HashString.
func ParseClusterMembers(s string) (map[uint64]string, error) {
	members := make(map[uint64]string)
	if strings.TrimSpace(s) == "" {
		return members, nil
	}
	for _, member := range strings.Split(s, ",") {
		parts := strings.Split(member, "=")
		if len(parts) != 2 || strings.TrimSpace(parts[0]) == "" || strings.TrimSpace(parts[1]) == "" {
			return nil, fmt.Errorf("invalid cluster member format: %s (expected ID=address)", member)
		}
		members[HashString(strings.TrimSpace(parts[0]))] = strings.TrimSpace(parts[1])
	}
	return members, nil
}
