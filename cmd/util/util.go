package util

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ValentinKolb/kvfs/lib/bridge"
	"github.com/ValentinKolb/kvfs/lib/common"
	"github.com/ValentinKolb/kvfs/lib/store"
	"github.com/ValentinKolb/kvfs/lib/store/bstore"
	"github.com/ValentinKolb/kvfs/lib/store/dstore"
	"github.com/ValentinKolb/kvfs/lib/store/lstore"
	"github.com/ValentinKolb/kvfs/lib/vfs"
	"github.com/joho/godotenv"
	"github.com/lni/dragonboat/v4"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50
)

var log = logger.GetLogger("cmd")

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// --------------------------------------------------------------------------
// Configuration
// --------------------------------------------------------------------------

// SetupStoreFlags adds the store, RAFT and vfs flags to a command
func SetupStoreFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()

	key := "store"
	flags.String(key, "bstore", WrapString("Store backend of the vfs (lstore, bstore, dstore). lstore keeps the files in memory and loses them on exit"))

	key = "bolt-path"
	flags.String(key, "kvfs.db", WrapString("(bstore) Path of the bbolt database file"))

	key = "shard"
	flags.Uint64(key, 100, WrapString("(dstore) ID of the RAFT shard that holds the files"))

	key = "rtt-millisecond"
	flags.Uint64(key, 100, WrapString("(dstore) RTTMillisecond defines the average Round Trip Time (RTT) in milliseconds between two NodeHost instances. ElectionRTT and HeartbeatRTT are derived from this value"))

	key = "snapshot-entries"
	flags.Uint64(key, 10, WrapString("(dstore) SnapshotEntries defines how often the state machine should be snapshotted automatically, in applied Raft log entries. 0 disables automatic snapshots (not recommended)"))

	key = "compaction-overhead"
	flags.Uint64(key, 5, WrapString("(dstore) CompactionOverhead defines the number of log entries to keep after a snapshot. Recommended value is about 1/2 of SnapshotEntries"))

	key = "data-dir"
	flags.String(key, "data", WrapString("(dstore) DataDir is the directory used for the RAFT log and the snapshots"))

	key = "replica-id"
	flags.String(key, "", WrapString("(dstore) ReplicaID is the unique name of this NodeHost instance (e.g. 'node-1')"))

	key = "cluster-members"
	flags.String(key, "", WrapString("(dstore) ClusterMembers is a comma-separated list of NodeHost addresses in the format 'node-1=localhost:63001,node-2=localhost:63002,...'"))

	key = "timeout"
	flags.Int64(key, 5, WrapString("(dstore) Timeout in seconds of a single RAFT operation and of waiting for a leader"))

	key = "bridge-workers"
	flags.Int(key, 0, WrapString("Number of goroutines that execute blocking store calls (0 uses the number of CPUs)"))

	key = "per-key-locks"
	flags.Bool(key, false, WrapString("Lock each file separately instead of using one lock for the whole vfs"))

	key = "page-size"
	flags.Int(key, 4096, WrapString("Page size of newly created pager files (power of two between 512 and 65536)"))

	key = "vfs"
	flags.String(key, "kv1", WrapString("Name under which the vfs is registered"))

	key = "log-level"
	flags.String(key, "warn", WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))
}

// InitConfig loads .env files and binds the environment (KVFS_<FLAG>) to viper
func InitConfig() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	viper.SetEnvPrefix("kvfs")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}

// GetConfig reads the configuration from viper and validates it
func GetConfig() (*common.Config, error) {
	conf := &common.Config{
		Store:              common.StoreType(viper.GetString("store")),
		BoltPath:           viper.GetString("bolt-path"),
		ShardID:            viper.GetUint64("shard"),
		RTTMillisecond:     viper.GetUint64("rtt-millisecond"),
		SnapshotEntries:    viper.GetUint64("snapshot-entries"),
		CompactionOverhead: viper.GetUint64("compaction-overhead"),
		DataDir:            viper.GetString("data-dir"),
		TimeoutSecond:      viper.GetInt64("timeout"),
		VFSName:            viper.GetString("vfs"),
		BridgeWorkers:      viper.GetInt("bridge-workers"),
		PerKeyLocks:        viper.GetBool("per-key-locks"),
		PageSize:           viper.GetInt("page-size"),
		LogLevel:           viper.GetString("log-level"),
	}

	if id := viper.GetString("replica-id"); id != "" {
		conf.ReplicaID = common.HashString(id)
	}
	members, err := common.ParseClusterMembers(viper.GetString("cluster-members"))
	if err != nil {
		return nil, err
	}
	conf.ClusterMembers = members

	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

// --------------------------------------------------------------------------
// Bootstrap
// --------------------------------------------------------------------------

// Env is everything a command needs to work with files: the store, the
// bridge, and a registry with the configured vfs as default.
type Env struct {
	Config   *common.Config
	Store    store.IStore
	NodeHost *dragonboat.NodeHost
	Bridge   *bridge.Bridge
	VFS      vfs.IVFS
	Registry *vfs.Registry
}

// Setup binds the command's flags, reads the configuration and creates the Env.
func Setup(cmd *cobra.Command) (*Env, error) {
	if err := BindCommandFlags(cmd); err != nil {
		return nil, err
	}
	conf, err := GetConfig()
	if err != nil {
		return nil, err
	}
	return NewEnv(conf)
}

// NewEnv opens the store, starts the bridge and registers the vfs.
func NewEnv(conf *common.Config) (*Env, error) {
	if err := common.InitLoggers(conf.LogLevel); err != nil {
		return nil, err
	}
	log.Debugf("configuration:\n%s", conf)

	s, nh, err := OpenStore(conf)
	if err != nil {
		return nil, err
	}
	env := &Env{
		Config:   conf,
		Store:    s,
		NodeHost: nh,
		Bridge:   bridge.New(conf.BridgeWorkers),
		Registry: vfs.NewRegistry(),
	}

	env.VFS, err = vfs.NewKVVFS(conf.VFSName, s, vfs.Options{
		Bridge:      env.Bridge,
		PerKeyLocks: conf.PerKeyLocks,
	})
	if err != nil {
		_ = env.Close()
		return nil, err
	}
	if err := env.Registry.Register(conf.VFSName, env.VFS, true); err != nil {
		_ = env.Close()
		return nil, err
	}
	return env, nil
}

// Close tears the Env down in reverse order of creation.
func (e *Env) Close() error {
	var errs []error
	if e.VFS != nil {
		errs = append(errs, e.VFS.Close())
	}
	if e.Bridge != nil {
		errs = append(errs, e.Bridge.Close())
	}
	if e.Store != nil {
		errs = append(errs, e.Store.Close())
	}
	if e.NodeHost != nil {
		e.NodeHost.Close()
	}
	return errors.Join(errs...)
}

// OpenStore creates the configured store. For dstore it also starts the
// NodeHost and the replica and waits until the shard has a leader.
func OpenStore(conf *common.Config) (store.IStore, *dragonboat.NodeHost, error) {
	switch conf.Store {
	case common.StoreLocal:
		return lstore.NewLocalStore(), nil, nil

	case common.StoreBolt:
		s, err := bstore.NewBoltStore(conf.BoltPath)
		return s, nil, err

	case common.StoreDistributed:
		nh, err := dragonboat.NewNodeHost(conf.ToNodeHostConfig())
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create node host: %w", err)
		}
		err = nh.StartConcurrentReplica(conf.ClusterMembers, false, dstore.CreateStateMachineFactory(), conf.ToDragonboatConfig())
		if err != nil {
			nh.Close()
			return nil, nil, fmt.Errorf("failed to start shard %d: %w", conf.ShardID, err)
		}
		if err := waitForLeader(nh, conf.ShardID, conf.Timeout()); err != nil {
			nh.Close()
			return nil, nil, err
		}
		return dstore.NewDistributedStore(nh, conf.ShardID, conf.Timeout()), nh, nil

	default:
		return nil, nil, fmt.Errorf("invalid store type: %s", conf.Store)
	}
}

func waitForLeader(nh *dragonboat.NodeHost, shardID uint64, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		leader, _, valid, err := nh.GetLeaderID(shardID)
		if err == nil && valid {
			log.Infof("shard %d has leader %d", shardID, leader)
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("shard %d has no leader after %s", shardID, timeout)
		case <-ticker.C:
		}
	}
}
