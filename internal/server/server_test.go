package server

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	apiv1 "github.com/mundrapranay/silhouette-obfuscator/api/v1"
	"github.com/mundrapranay/silhouette-obfuscator/internal/store"
	"github.com/mundrapranay/silhouette-obfuscator/pkg/obfuscate"
)

func newTestStore(t *testing.T, bootstrap bool) *store.Store {
	t.Helper()
	s, err := store.NewStore(store.Config{
		NodeID:           "test-node",
		ListenAddr:       "127.0.0.1:0",
		DataDir:          t.TempDir(),
		Bootstrap:        bootstrap,
		HeartbeatTimeout: 1000 * time.Millisecond,
		ElectionTimeout:  1000 * time.Millisecond,
		CommitTimeout:    50 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Shutdown() })
	return s
}

func setupTestServer(t *testing.T) (*Server, *Metrics) {
	t.Helper()
	s := newTestStore(t, true)
	if err := s.WaitForLeader(5 * time.Second); err != nil {
		t.Fatalf("Timeout waiting for leadership: %v", err)
	}
	metrics := NewMetrics(prometheus.NewRegistry())
	return NewServer(s, nil, metrics), metrics
}

func createSession(t *testing.T, srv *Server, cfg obfuscate.Config) string {
	t.Helper()
	req, err := apiv1.NewCreateSessionRequest(cfg)
	if err != nil {
		t.Fatalf("Failed to encode config: %v", err)
	}
	resp, err := srv.CreateSession(context.Background(), req)
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	id, err := apiv1.SessionID(resp)
	if err != nil {
		t.Fatalf("CreateSession returned no id: %v", err)
	}
	return id
}

func obfuscateOne(t *testing.T, srv *Server, id string, value uint64, bin obfuscate.Bin) uint64 {
	t.Helper()
	resp, err := srv.Obfuscate(context.Background(), apiv1.NewObfuscateRequest(id, obfuscate.Key{Value: value, Bin: bin}))
	if err != nil {
		t.Fatalf("Obfuscate(%d, %d) failed: %v", value, bin, err)
	}
	got, err := apiv1.ParseValueResponse(resp)
	if err != nil {
		t.Fatalf("Bad response: %v", err)
	}
	return got
}

func expectCode(t *testing.T, err error, want codes.Code) {
	t.Helper()
	if status.Code(err) != want {
		t.Fatalf("Expected %s, got %v", want, err)
	}
}

func fullConfig() obfuscate.Config {
	limit := 5.0
	return obfuscate.Config{
		Sensitivity:  1,
		Epsilon:      0.5,
		DomainLimit:  &limit,
		RoundingStep: 1,
		Mode:         obfuscate.ThresholdFull,
	}
}

func TestServer_ObfuscateIsStable(t *testing.T) {
	srv, metrics := setupTestServer(t)
	id := createSession(t, srv, fullConfig())

	first := obfuscateOne(t, srv, id, 100, 1)
	if first < 95 || first > 105 {
		t.Fatalf("Result %d outside domain limit", first)
	}
	for i := 0; i < 5; i++ {
		if got := obfuscateOne(t, srv, id, 100, 1); got != first {
			t.Fatalf("Repeated query returned %d, first answer was %d", got, first)
		}
	}

	if got := testutil.ToFloat64(metrics.obfuscations.WithLabelValues(outcomeSampled)); got != 1 {
		t.Fatalf("Expected 1 sampled answer, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.obfuscations.WithLabelValues(outcomeCacheHit)); got != 5 {
		t.Fatalf("Expected 5 cache hits, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.sessions); got != 1 {
		t.Fatalf("Expected 1 live session, got %v", got)
	}
}

func TestServer_ThresholdConstant(t *testing.T) {
	srv, metrics := setupTestServer(t)
	cfg := fullConfig()
	cfg.Mode = obfuscate.ThresholdConstant
	id := createSession(t, srv, cfg)

	for _, v := range []uint64{0, 1, 9} {
		if got := obfuscateOne(t, srv, id, v, 0); got != obfuscate.SmallCountBoundary {
			t.Fatalf("Small count %d returned %d", v, got)
		}
	}
	if got := testutil.ToFloat64(metrics.obfuscations.WithLabelValues(outcomeShortCircuit)); got != 3 {
		t.Fatalf("Expected 3 short circuits, got %v", got)
	}
}

func TestServer_ObfuscateBatch(t *testing.T) {
	srv, _ := setupTestServer(t)
	id := createSession(t, srv, fullConfig())

	keys := []obfuscate.Key{
		{Value: 50, Bin: 1},
		{Value: 50, Bin: 2},
		{Value: 50, Bin: 1},
	}
	resp, err := srv.ObfuscateBatch(context.Background(), apiv1.NewBatchRequest(id, keys))
	if err != nil {
		t.Fatalf("ObfuscateBatch failed: %v", err)
	}
	values, err := apiv1.ParseBatchResponse(resp)
	if err != nil {
		t.Fatalf("Bad response: %v", err)
	}
	if len(values) != len(keys) {
		t.Fatalf("Expected %d values, got %d", len(keys), len(values))
	}
	if values[0] != values[2] {
		t.Fatalf("Same key answered %d then %d", values[0], values[2])
	}
	if got := obfuscateOne(t, srv, id, 50, 2); got != values[1] {
		t.Fatalf("Single query %d disagrees with batch answer %d", got, values[1])
	}
}

func TestServer_CreateSession_InvalidConfig(t *testing.T) {
	srv, _ := setupTestServer(t)

	cfg := fullConfig()
	cfg.Epsilon = 0
	req, err := apiv1.NewCreateSessionRequest(cfg)
	if err != nil {
		t.Fatalf("Failed to encode config: %v", err)
	}
	_, err = srv.CreateSession(context.Background(), req)
	expectCode(t, err, codes.InvalidArgument)

	_, err = srv.CreateSession(context.Background(), &structpb.Struct{})
	expectCode(t, err, codes.InvalidArgument)
}

func TestServer_UnknownSession(t *testing.T) {
	srv, _ := setupTestServer(t)

	_, err := srv.Obfuscate(context.Background(), apiv1.NewObfuscateRequest("missing", obfuscate.Key{Value: 1}))
	expectCode(t, err, codes.NotFound)

	_, err = srv.GetGuarantee(context.Background(), apiv1.NewSessionRequest("missing"))
	expectCode(t, err, codes.NotFound)

	_, err = srv.DropSession(context.Background(), apiv1.NewSessionRequest("missing"))
	expectCode(t, err, codes.NotFound)
}

func TestServer_DropSession(t *testing.T) {
	srv, metrics := setupTestServer(t)
	id := createSession(t, srv, fullConfig())
	obfuscateOne(t, srv, id, 100, 1)

	if _, err := srv.DropSession(context.Background(), apiv1.NewSessionRequest(id)); err != nil {
		t.Fatalf("DropSession failed: %v", err)
	}
	if got := testutil.ToFloat64(metrics.sessions); got != 0 {
		t.Fatalf("Expected no live sessions, got %v", got)
	}

	_, err := srv.Obfuscate(context.Background(), apiv1.NewObfuscateRequest(id, obfuscate.Key{Value: 100, Bin: 1}))
	expectCode(t, err, codes.NotFound)
}

func TestServer_GetGuarantee(t *testing.T) {
	srv, _ := setupTestServer(t)
	cfg := fullConfig()
	cfg.Mechanism = obfuscate.MechanismGeometric
	id := createSession(t, srv, cfg)

	resp, err := srv.GetGuarantee(context.Background(), apiv1.NewSessionRequest(id))
	if err != nil {
		t.Fatalf("GetGuarantee failed: %v", err)
	}
	g, err := apiv1.ParseGuaranteeResponse(resp)
	if err != nil {
		t.Fatalf("Bad response: %v", err)
	}
	want := cfg.Guarantee()
	if g.Mechanism != want.Mechanism || g.Epsilon != want.Epsilon || g.Scale != want.Scale {
		t.Fatalf("Expected %+v, got %+v", want, g)
	}
	if g.Pure() {
		t.Fatal("A domain-limited session is not pure")
	}
}

func TestServer_NotLeader(t *testing.T) {
	srv := NewServer(newTestStore(t, false), nil, nil)

	req, err := apiv1.NewCreateSessionRequest(fullConfig())
	if err != nil {
		t.Fatalf("Failed to encode config: %v", err)
	}
	_, err = srv.CreateSession(context.Background(), req)
	expectCode(t, err, codes.FailedPrecondition)

	_, err = srv.Obfuscate(context.Background(), apiv1.NewObfuscateRequest("s1", obfuscate.Key{Value: 1}))
	expectCode(t, err, codes.FailedPrecondition)

	_, err = srv.DropSession(context.Background(), apiv1.NewSessionRequest("s1"))
	expectCode(t, err, codes.FailedPrecondition)
}

func TestServer_SessionDroppedElsewhere(t *testing.T) {
	srv, metrics := setupTestServer(t)
	cfg := fullConfig()
	cfg.Mode = obfuscate.ThresholdConstant
	id := createSession(t, srv, cfg)

	if got := obfuscateOne(t, srv, id, 5, 0); got != obfuscate.SmallCountBoundary {
		t.Fatalf("Expected %d, got %d", obfuscate.SmallCountBoundary, got)
	}

	// Drop through the replicated log only, as another leader would, so
	// this server still holds a handle for the session.
	if err := srv.store.DropSession(id); err != nil {
		t.Fatalf("Failed to drop session in store: %v", err)
	}

	_, err := srv.Obfuscate(context.Background(), apiv1.NewObfuscateRequest(id, obfuscate.Key{Value: 5}))
	expectCode(t, err, codes.NotFound)

	_, err = srv.ObfuscateBatch(context.Background(), apiv1.NewBatchRequest(id, []obfuscate.Key{{Value: 0}}))
	expectCode(t, err, codes.NotFound)

	if got := testutil.ToFloat64(metrics.sessions); got != 0 {
		t.Fatalf("Expected stale handle to be evicted, gauge is %v", got)
	}
}
