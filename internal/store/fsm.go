package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/hashicorp/raft"

	"github.com/mundrapranay/silhouette-obfuscator/pkg/obfuscate"
)

// FSM operations.
const (
	OpCreateSession = "CREATE_SESSION"
	OpDropSession   = "DROP_SESSION"
	OpPutIfAbsent   = "PUT_IF_ABSENT"
)

var (
	// ErrSessionNotFound is returned for operations on an unknown session.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionExists is returned when creating a session id twice.
	ErrSessionExists = errors.New("session already exists")
)

// Command represents a single operation to be applied to the FSM.
type Command struct {
	Op      string            `json:"op"`
	Session string            `json:"session"`
	Config  *obfuscate.Config `json:"config,omitempty"`
	Value   uint64            `json:"value,omitempty"`
	Bin     uint64            `json:"bin,omitempty"`
	Result  uint64            `json:"result,omitempty"`
}

// session is one obfuscation cache together with the config it was built under.
type session struct {
	config  obfuscate.Config
	entries obfuscate.MapCache
}

// FSM replicates obfuscation caches. Entries are insert-only, so every
// replica hands out the same answer for a key once it has been written.
type FSM struct {
	mu       sync.RWMutex
	sessions map[string]*session
}

// NewFSM creates a new FSM instance.
func NewFSM() *FSM {
	return &FSM{
		sessions: make(map[string]*session),
	}
}

// Apply applies a Raft log entry to the FSM. PUT_IF_ABSENT returns the
// value stored at the key afterwards; failures are returned as errors.
func (f *FSM) Apply(log *raft.Log) interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()

	var cmd Command
	if err := json.Unmarshal(log.Data, &cmd); err != nil {
		return fmt.Errorf("failed to deserialize command: %w", err)
	}

	switch cmd.Op {
	case OpCreateSession:
		if _, exists := f.sessions[cmd.Session]; exists {
			return fmt.Errorf("%w: %s", ErrSessionExists, cmd.Session)
		}
		if cmd.Config == nil {
			return fmt.Errorf("session %s created without config", cmd.Session)
		}
		f.sessions[cmd.Session] = &session{
			config:  *cmd.Config,
			entries: obfuscate.NewMapCache(),
		}
		return nil
	case OpDropSession:
		if _, exists := f.sessions[cmd.Session]; !exists {
			return fmt.Errorf("%w: %s", ErrSessionNotFound, cmd.Session)
		}
		delete(f.sessions, cmd.Session)
		return nil
	case OpPutIfAbsent:
		s, exists := f.sessions[cmd.Session]
		if !exists {
			return fmt.Errorf("%w: %s", ErrSessionNotFound, cmd.Session)
		}
		key := obfuscate.Key{Value: cmd.Value, Bin: obfuscate.Bin(cmd.Bin)}
		stored, _ := s.entries.Insert(key, cmd.Result)
		return stored
	default:
		return fmt.Errorf("unrecognized command op: %s", cmd.Op)
	}
}

// Lookup returns the cached result for key in a session.
func (f *FSM) Lookup(sessionID string, key obfuscate.Key) (uint64, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	s, exists := f.sessions[sessionID]
	if !exists {
		return 0, false
	}
	return s.entries.Lookup(key)
}

// SessionConfig returns the config a session was created with.
func (f *FSM) SessionConfig(sessionID string) (obfuscate.Config, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	s, exists := f.sessions[sessionID]
	if !exists {
		return obfuscate.Config{}, false
	}
	return s.config, true
}

// SessionLen returns the number of cached entries in a session.
func (f *FSM) SessionLen(sessionID string) int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if s, exists := f.sessions[sessionID]; exists {
		return s.entries.Len()
	}
	return 0
}

// Sessions returns the ids of all live sessions in sorted order.
func (f *FSM) Sessions() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	ids := make([]string, 0, len(f.sessions))
	for id := range f.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// snapshotEntry and snapshotSession are the JSON form of the FSM state;
// struct map keys do not encode directly.
type snapshotEntry struct {
	Value  uint64 `json:"value"`
	Bin    uint64 `json:"bin"`
	Result uint64 `json:"result"`
}

type snapshotSession struct {
	ID      string           `json:"id"`
	Config  obfuscate.Config `json:"config"`
	Entries []snapshotEntry  `json:"entries"`
}

// Snapshot is used to support log compaction. It captures a snapshot
// of the FSM state.
func (f *FSM) Snapshot() (raft.FSMSnapshot, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	data := make([]snapshotSession, 0, len(f.sessions))
	for id, s := range f.sessions {
		snap := snapshotSession{
			ID:      id,
			Config:  s.config,
			Entries: make([]snapshotEntry, 0, s.entries.Len()),
		}
		for k, v := range s.entries {
			snap.Entries = append(snap.Entries, snapshotEntry{Value: k.Value, Bin: uint64(k.Bin), Result: v})
		}
		data = append(data, snap)
	}

	return &FSMSnapshot{data: data}, nil
}

// Restore is used to restore the FSM from a snapshot.
func (f *FSM) Restore(rc io.ReadCloser) error {
	defer rc.Close()

	var data []snapshotSession
	if err := json.NewDecoder(rc).Decode(&data); err != nil {
		return fmt.Errorf("failed to decode snapshot: %w", err)
	}

	sessions := make(map[string]*session, len(data))
	for _, snap := range data {
		s := &session{
			config:  snap.Config,
			entries: make(obfuscate.MapCache, len(snap.Entries)),
		}
		for _, e := range snap.Entries {
			s.entries[obfuscate.Key{Value: e.Value, Bin: obfuscate.Bin(e.Bin)}] = e.Result
		}
		sessions[snap.ID] = s
	}

	f.mu.Lock()
	f.sessions = sessions
	f.mu.Unlock()
	return nil
}

// FSMSnapshot represents a snapshot of the FSM state.
type FSMSnapshot struct {
	data []snapshotSession
}

// Persist writes the snapshot to the given sink.
func (s *FSMSnapshot) Persist(sink raft.SnapshotSink) error {
	encoder := json.NewEncoder(sink)
	if err := encoder.Encode(s.data); err != nil {
		sink.Cancel()
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return sink.Close()
}

// Release is called when the snapshot is no longer needed.
func (s *FSMSnapshot) Release() {}
