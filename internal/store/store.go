package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb/v2"

	"github.com/mundrapranay/silhouette-obfuscator/pkg/obfuscate"
)

// ErrNotLeader is returned for writes on a follower.
var ErrNotLeader = errors.New("not the leader")

// Store wraps a Raft instance and exposes replicated obfuscation caches.
type Store struct {
	raft         *raft.Raft
	addr         raft.ServerAddress
	fsm          *FSM
	logger       hclog.Logger
	applyTimeout time.Duration
}

// Config holds configuration for initializing a Raft store.
type Config struct {
	NodeID           string
	ListenAddr       string
	DataDir          string
	Bootstrap        bool
	HeartbeatTimeout time.Duration
	ElectionTimeout  time.Duration
	CommitTimeout    time.Duration
	// ApplyTimeout bounds each replicated write. Defaults to 10s.
	ApplyTimeout time.Duration
	Logger       hclog.Logger
}

// NewStore creates and initializes a new Raft store.
func NewStore(config Config) (*Store, error) {
	logger := config.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	applyTimeout := config.ApplyTimeout
	if applyTimeout == 0 {
		applyTimeout = 10 * time.Second
	}

	fsm := NewFSM()

	raftConfig := raft.DefaultConfig()
	raftConfig.LocalID = raft.ServerID(config.NodeID)
	raftConfig.HeartbeatTimeout = config.HeartbeatTimeout
	raftConfig.ElectionTimeout = config.ElectionTimeout
	raftConfig.CommitTimeout = config.CommitTimeout
	raftConfig.Logger = logger.Named("raft")

	logStore, err := raftboltdb.NewBoltStore(filepath.Join(config.DataDir, "logs"))
	if err != nil {
		return nil, fmt.Errorf("failed to create log store: %w", err)
	}

	stableStore, err := raftboltdb.NewBoltStore(filepath.Join(config.DataDir, "stable"))
	if err != nil {
		return nil, fmt.Errorf("failed to create stable store: %w", err)
	}

	snapshotStore, err := raft.NewFileSnapshotStoreWithLogger(config.DataDir, 3, logger.Named("snapshot"))
	if err != nil {
		return nil, fmt.Errorf("failed to create snapshot store: %w", err)
	}

	addr, err := net.ResolveTCPAddr("tcp", config.ListenAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve address: %w", err)
	}

	// Advertise the bound address when listening on an ephemeral port.
	var advertise net.Addr
	if addr.Port != 0 {
		advertise = addr
	}

	transport, err := raft.NewTCPTransportWithLogger(config.ListenAddr, advertise, 3, 10*time.Second, logger.Named("transport"))
	if err != nil {
		return nil, fmt.Errorf("failed to create transport: %w", err)
	}

	r, err := raft.NewRaft(raftConfig, fsm, logStore, stableStore, snapshotStore, transport)
	if err != nil {
		return nil, fmt.Errorf("failed to create raft: %w", err)
	}

	if config.Bootstrap {
		configuration := raft.Configuration{
			Servers: []raft.Server{
				{
					ID:      raft.ServerID(config.NodeID),
					Address: transport.LocalAddr(),
				},
			},
		}
		if err := r.BootstrapCluster(configuration).Error(); err != nil && !errors.Is(err, raft.ErrCantBootstrap) {
			return nil, fmt.Errorf("failed to bootstrap cluster: %w", err)
		}
	}

	return &Store{
		raft:         r,
		addr:         transport.LocalAddr(),
		fsm:          fsm,
		logger:       logger,
		applyTimeout: applyTimeout,
	}, nil
}

// apply replicates a command and returns the FSM's response.
func (s *Store) apply(cmd Command) (interface{}, error) {
	if s.raft.State() != raft.Leader {
		return nil, ErrNotLeader
	}

	data, err := json.Marshal(cmd)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal command: %w", err)
	}

	future := s.raft.Apply(data, s.applyTimeout)
	if err := future.Error(); err != nil {
		if errors.Is(err, raft.ErrNotLeader) || errors.Is(err, raft.ErrLeadershipLost) {
			return nil, ErrNotLeader
		}
		return nil, fmt.Errorf("failed to apply command: %w", err)
	}

	if err, ok := future.Response().(error); ok {
		return nil, err
	}
	return future.Response(), nil
}

// CreateSession registers a new obfuscation cache bound to cfg.
func (s *Store) CreateSession(id string, cfg obfuscate.Config) error {
	if _, err := s.apply(Command{Op: OpCreateSession, Session: id, Config: &cfg}); err != nil {
		return err
	}
	s.logger.Info("session created", "session", id, "guarantee", cfg.Guarantee().String())
	return nil
}

// DropSession forgets a session and every answer cached in it.
func (s *Store) DropSession(id string) error {
	if _, err := s.apply(Command{Op: OpDropSession, Session: id}); err != nil {
		return err
	}
	s.logger.Info("session dropped", "session", id)
	return nil
}

// PutIfAbsent stores result at key unless a value is already there, and
// returns the value held at key afterwards.
func (s *Store) PutIfAbsent(sessionID string, key obfuscate.Key, result uint64) (uint64, error) {
	resp, err := s.apply(Command{
		Op:      OpPutIfAbsent,
		Session: sessionID,
		Value:   key.Value,
		Bin:     uint64(key.Bin),
		Result:  result,
	})
	if err != nil {
		return 0, err
	}
	stored, ok := resp.(uint64)
	if !ok {
		return 0, fmt.Errorf("unexpected FSM response %T", resp)
	}
	return stored, nil
}

// Lookup reads a cached result from the local FSM.
// Note: followers may lag the leader until the log is applied.
func (s *Store) Lookup(sessionID string, key obfuscate.Key) (uint64, bool) {
	return s.fsm.Lookup(sessionID, key)
}

// SessionConfig returns the config a session was created with.
func (s *Store) SessionConfig(id string) (obfuscate.Config, bool) {
	return s.fsm.SessionConfig(id)
}

// SessionLen returns the number of cached entries in a session.
func (s *Store) SessionLen(id string) int {
	return s.fsm.SessionLen(id)
}

// Sessions lists the live session ids.
func (s *Store) Sessions() []string {
	return s.fsm.Sessions()
}

// Cache returns a view of one session usable as an obfuscate.Cache.
func (s *Store) Cache(sessionID string) *SessionCache {
	return &SessionCache{store: s, session: sessionID}
}

// Addr returns the address this node advertises to its Raft peers.
func (s *Store) Addr() raft.ServerAddress {
	return s.addr
}

// IsLeader returns whether this node is currently the Raft leader.
func (s *Store) IsLeader() bool {
	return s.raft.State() == raft.Leader
}

// Leader returns the address of the current leader.
func (s *Store) Leader() raft.ServerAddress {
	addr, _ := s.raft.LeaderWithID()
	return addr
}

// WaitForLeader blocks until this node becomes leader or the timeout expires.
func (s *Store) WaitForLeader(timeout time.Duration) error {
	deadline := time.After(timeout)
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	for !s.IsLeader() {
		select {
		case <-deadline:
			return fmt.Errorf("no leadership after %s", timeout)
		case <-tick.C:
		}
	}
	return nil
}

// AddPeer adds a new peer to the cluster.
func (s *Store) AddPeer(peerID, peerAddr string) error {
	return s.raft.AddVoter(raft.ServerID(peerID), raft.ServerAddress(peerAddr), 0, 0).Error()
}

// RemovePeer removes a peer from the cluster.
func (s *Store) RemovePeer(peerID string) error {
	return s.raft.RemoveServer(raft.ServerID(peerID), 0, 0).Error()
}

// Shutdown gracefully shuts down the Raft instance.
func (s *Store) Shutdown() error {
	return s.raft.Shutdown().Error()
}

// SessionCache adapts one store session to obfuscate.Cache.
type SessionCache struct {
	store   *Store
	session string
}

func (c *SessionCache) Lookup(key obfuscate.Key) (uint64, bool) {
	return c.store.Lookup(c.session, key)
}

func (c *SessionCache) Insert(key obfuscate.Key, value uint64) (uint64, error) {
	return c.store.PutIfAbsent(c.session, key, value)
}
