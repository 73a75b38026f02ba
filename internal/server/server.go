package server

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	apiv1 "github.com/mundrapranay/silhouette-obfuscator/api/v1"
	"github.com/mundrapranay/silhouette-obfuscator/internal/store"
	"github.com/mundrapranay/silhouette-obfuscator/pkg/obfuscate"
)

// Server implements the ObfuscationService gRPC server.
type Server struct {
	apiv1.UnimplementedObfuscationServiceServer

	store   *store.Store
	logger  hclog.Logger
	metrics *Metrics
	src     obfuscate.Source

	// Obfuscators per session, built lazily from the replicated config
	sessionsMu sync.Mutex
	sessions   map[string]*sessionHandle
}

// sessionHandle serializes all requests against one session's cache.
type sessionHandle struct {
	mu    sync.Mutex
	obf   *obfuscate.Obfuscator
	stats *obfuscate.StatsCache
}

// NewServer creates a new gRPC server instance.
// logger and metrics may be nil.
func NewServer(s *store.Store, logger hclog.Logger, metrics *Metrics) *Server {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Server{
		store:    s,
		logger:   logger,
		metrics:  metrics,
		src:      obfuscate.SecureSource(),
		sessions: make(map[string]*sessionHandle),
	}
}

// CreateSession freezes a config under a fresh session id.
func (s *Server) CreateSession(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if !s.store.IsLeader() {
		return nil, status.Errorf(codes.FailedPrecondition, "not the leader")
	}

	cfg, err := apiv1.ParseCreateSessionRequest(req)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid session config: %v", err)
	}
	// Building an obfuscator also rejects parameters with no usable distribution.
	if _, err := obfuscate.New(cfg, nil, s.src); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid session config: %v", err)
	}

	id := uuid.NewString()
	if err := s.store.CreateSession(id, cfg); err != nil {
		return nil, s.storeError(id, err)
	}
	return apiv1.NewSessionResponse(id, cfg.Guarantee().String()), nil
}

// Obfuscate releases the obfuscated form of a single count.
func (s *Server) Obfuscate(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if !s.store.IsLeader() {
		return nil, status.Errorf(codes.FailedPrecondition, "not the leader")
	}

	id, key, err := apiv1.ParseObfuscateRequest(req)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid request: %v", err)
	}

	h, err := s.handle(id)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	value, err := s.obfuscate(h, key)
	h.mu.Unlock()
	if err != nil {
		return nil, s.obfuscateError(id, key, err)
	}
	return apiv1.NewValueResponse(value), nil
}

// ObfuscateBatch releases several counts of one session in order. The batch
// stops at the first failure; answers cached before it stay cached.
func (s *Server) ObfuscateBatch(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if !s.store.IsLeader() {
		return nil, status.Errorf(codes.FailedPrecondition, "not the leader")
	}

	id, keys, err := apiv1.ParseBatchRequest(req)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid request: %v", err)
	}

	h, err := s.handle(id)
	if err != nil {
		return nil, err
	}

	values := make([]uint64, 0, len(keys))
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return nil, status.FromContextError(err).Err()
		}
		value, err := s.obfuscate(h, key)
		if err != nil {
			return nil, s.obfuscateError(id, key, err)
		}
		values = append(values, value)
	}
	return apiv1.NewBatchResponse(values), nil
}

// DropSession forgets a session and its cached answers.
func (s *Server) DropSession(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if !s.store.IsLeader() {
		return nil, status.Errorf(codes.FailedPrecondition, "not the leader")
	}

	id, err := apiv1.SessionID(req)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid request: %v", err)
	}

	if err := s.store.DropSession(id); err != nil {
		return nil, s.storeError(id, err)
	}
	s.evict(id)
	return apiv1.NewSessionRequest(id), nil
}

// GetGuarantee describes the privacy guarantee of a session. It reads local
// state, so followers answer too.
func (s *Server) GetGuarantee(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := apiv1.SessionID(req)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid request: %v", err)
	}

	cfg, exists := s.store.SessionConfig(id)
	if !exists {
		return nil, status.Errorf(codes.NotFound, "session %s not found", id)
	}
	return apiv1.NewGuaranteeResponse(cfg.Guarantee()), nil
}

// handle returns the obfuscator for a session, building it on first use.
func (s *Server) handle(id string) (*sessionHandle, error) {
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()

	// The replicated state is authoritative: a session dropped through
	// another leader must not keep answering from a handle built here.
	cfg, exists := s.store.SessionConfig(id)
	if !exists {
		s.evictLocked(id)
		return nil, status.Errorf(codes.NotFound, "session %s not found", id)
	}

	if h, ok := s.sessions[id]; ok {
		return h, nil
	}

	stats := obfuscate.NewStatsCache(s.store.Cache(id))
	obf, err := obfuscate.New(cfg, stats, s.src)
	if err != nil {
		// Configs are validated before they are replicated.
		return nil, status.Errorf(codes.Internal, "session %s has an unusable config: %v", id, err)
	}

	h := &sessionHandle{obf: obf, stats: stats}
	s.sessions[id] = h
	if s.metrics != nil {
		s.metrics.sessions.Inc()
	}
	return h, nil
}

func (s *Server) evict(id string) {
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()
	s.evictLocked(id)
}

// evictLocked forgets a session handle. The caller holds sessionsMu.
func (s *Server) evictLocked(id string) {
	if _, ok := s.sessions[id]; ok {
		delete(s.sessions, id)
		if s.metrics != nil {
			s.metrics.sessions.Dec()
		}
	}
}

// obfuscate runs one request and records how it was answered. The caller
// holds h.mu.
func (s *Server) obfuscate(h *sessionHandle, key obfuscate.Key) (uint64, error) {
	before := h.stats.Stats()
	value, err := h.obf.Obfuscate(key.Value, key.Bin)
	if s.metrics == nil {
		return value, err
	}

	after := h.stats.Stats()
	switch {
	case err != nil:
		s.metrics.observe(outcomeError)
	case after.Hits > before.Hits:
		s.metrics.observe(outcomeCacheHit)
	case after.Misses > before.Misses:
		s.metrics.observe(outcomeSampled)
	default:
		s.metrics.observe(outcomeShortCircuit)
	}
	return value, err
}

func (s *Server) obfuscateError(id string, key obfuscate.Key, err error) error {
	switch {
	case errors.Is(err, obfuscate.ErrResultOverflow):
		return status.Errorf(codes.OutOfRange, "value %d bin %d: %v", key.Value, key.Bin, err)
	case errors.Is(err, obfuscate.ErrDistribution):
		return status.Errorf(codes.Internal, "value %d bin %d: %v", key.Value, key.Bin, err)
	}
	return s.storeError(id, err)
}

// storeError maps store failures to gRPC codes.
func (s *Server) storeError(id string, err error) error {
	switch {
	case errors.Is(err, store.ErrNotLeader):
		return status.Errorf(codes.FailedPrecondition, "not the leader")
	case errors.Is(err, store.ErrSessionNotFound):
		s.evict(id)
		return status.Errorf(codes.NotFound, "session %s not found", id)
	case errors.Is(err, store.ErrSessionExists):
		return status.Errorf(codes.AlreadyExists, "session %s already exists", id)
	}
	s.logger.Error("store operation failed", "session", id, "error", err)
	return status.Errorf(codes.Internal, "session %s: %v", id, err)
}
