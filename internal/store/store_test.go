package store

import (
	"errors"
	"testing"
	"time"

	"github.com/mundrapranay/silhouette-obfuscator/pkg/obfuscate"
)

func newTestStore(t *testing.T, nodeID string, bootstrap bool) *Store {
	t.Helper()
	config := Config{
		NodeID:           nodeID,
		ListenAddr:       "127.0.0.1:0", // Use port 0 for random port
		DataDir:          t.TempDir(),
		Bootstrap:        bootstrap,
		HeartbeatTimeout: 1000 * time.Millisecond,
		ElectionTimeout:  1000 * time.Millisecond,
		CommitTimeout:    50 * time.Millisecond,
	}

	store, err := NewStore(config)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Shutdown() })
	return store
}

func newLeaderStore(t *testing.T) *Store {
	t.Helper()
	store := newTestStore(t, "test-node", true)
	if err := store.WaitForLeader(5 * time.Second); err != nil {
		t.Fatalf("Timeout waiting for leadership: %v", err)
	}
	return store
}

func TestNewStore(t *testing.T) {
	store := newTestStore(t, "test-node", true)

	if store.fsm == nil {
		t.Fatal("Store FSM is nil")
	}
	if store.raft == nil {
		t.Fatal("Store Raft instance is nil")
	}
	if store.Addr() == "" {
		t.Fatal("Store has no advertised address")
	}
}

func TestStore_SessionLifecycle(t *testing.T) {
	store := newLeaderStore(t)

	if err := store.CreateSession("s1", testConfig()); err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}
	if err := store.CreateSession("s1", testConfig()); !errors.Is(err, ErrSessionExists) {
		t.Fatalf("Expected ErrSessionExists, got %v", err)
	}

	key := obfuscate.Key{Value: 42, Bin: 3}
	stored, err := store.PutIfAbsent("s1", key, 40)
	if err != nil {
		t.Fatalf("Failed to put: %v", err)
	}
	if stored != 40 {
		t.Fatalf("Expected 40, got %d", stored)
	}

	stored, err = store.PutIfAbsent("s1", key, 60)
	if err != nil {
		t.Fatalf("Failed to put: %v", err)
	}
	if stored != 40 {
		t.Fatalf("Existing entry was overwritten: got %d", stored)
	}

	if value, exists := store.Lookup("s1", key); !exists || value != 40 {
		t.Fatalf("Lookup returned %d, %v", value, exists)
	}

	if err := store.DropSession("s1"); err != nil {
		t.Fatalf("Failed to drop session: %v", err)
	}
	if _, err := store.PutIfAbsent("s1", key, 40); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("Expected ErrSessionNotFound, got %v", err)
	}
}

func TestStore_SessionCacheDrivesObfuscator(t *testing.T) {
	store := newLeaderStore(t)
	cfg := testConfig()
	if err := store.CreateSession("s1", cfg); err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}

	o, err := obfuscate.New(cfg, store.Cache("s1"), nil)
	if err != nil {
		t.Fatalf("Failed to create obfuscator: %v", err)
	}

	first, err := o.Obfuscate(1234, 7)
	if err != nil {
		t.Fatalf("Obfuscate failed: %v", err)
	}
	second, err := o.Obfuscate(1234, 7)
	if err != nil {
		t.Fatalf("Obfuscate failed: %v", err)
	}
	if first != second {
		t.Fatalf("Repeated query changed: %d then %d", first, second)
	}
	if store.SessionLen("s1") != 1 {
		t.Fatalf("Expected 1 cached entry, got %d", store.SessionLen("s1"))
	}

	// Small values short-circuit and never reach the store.
	if v, err := o.Obfuscate(3, 7); err != nil || v != 10 {
		t.Fatalf("Expected constant 10, got %d (%v)", v, err)
	}
	if store.SessionLen("s1") != 1 {
		t.Fatalf("Short-circuited value was cached")
	}
}

func TestStore_FollowerRejectsWrites(t *testing.T) {
	store := newTestStore(t, "lonely", false)

	if err := store.CreateSession("s1", testConfig()); !errors.Is(err, ErrNotLeader) {
		t.Fatalf("Expected ErrNotLeader, got %v", err)
	}
	if _, err := store.Cache("s1").Insert(obfuscate.Key{Value: 1}, 1); !errors.Is(err, ErrNotLeader) {
		t.Fatalf("Expected ErrNotLeader, got %v", err)
	}
}

func TestStore_ReplicatesToFollower(t *testing.T) {
	leader := newLeaderStore(t)
	follower := newTestStore(t, "follower", false)

	if err := leader.AddPeer("follower", string(follower.Addr())); err != nil {
		t.Fatalf("Failed to add peer: %v", err)
	}
	if err := leader.CreateSession("s1", testConfig()); err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}
	key := obfuscate.Key{Value: 500, Bin: 1}
	if _, err := leader.PutIfAbsent("s1", key, 510); err != nil {
		t.Fatalf("Failed to put: %v", err)
	}

	deadline := time.After(10 * time.Second)
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()
	for {
		if value, exists := follower.Lookup("s1", key); exists {
			if value != 510 {
				t.Fatalf("Follower has %d, want 510", value)
			}
			break
		}
		select {
		case <-deadline:
			t.Fatal("Timeout waiting for replication")
		case <-tick.C:
		}
	}

	if cfg, exists := follower.SessionConfig("s1"); !exists || cfg != testConfig() {
		t.Fatalf("Follower session config %+v (exists=%v)", cfg, exists)
	}
}
