package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/cognidao/membank/internal/storage"
	"github.com/cognidao/membank/internal/types"
)

const storageScopeName = "github.com/cognidao/membank/internal/storage"

// InstrumentedStore wraps a storage.VersionedStore with OTel tracing
// and metrics. Every method gets a span and is counted in
// membank.store.* metrics. Use WrapStore to create one; it returns the
// original store unchanged when telemetry is disabled.
type InstrumentedStore struct {
	inner      storage.VersionedStore
	tracer     trace.Tracer
	ops        metric.Int64Counter
	dur        metric.Float64Histogram
	errs       metric.Int64Counter
	blockGauge metric.Int64Gauge
}

// WrapStore returns s decorated with OTel instrumentation. A store that
// also implements storage.RemoteStore keeps its remote methods, so
// storage.AsRemote still succeeds through the wrapper. When telemetry
// is disabled, s is returned as-is with zero overhead.
func WrapStore(s storage.VersionedStore) storage.VersionedStore {
	if !Enabled() {
		return s
	}
	m := Meter(storageScopeName)
	ops, _ := m.Int64Counter("membank.store.operations",
		metric.WithDescription("Total store operations executed"),
	)
	dur, _ := m.Float64Histogram("membank.store.operation.duration",
		metric.WithDescription("Store operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	errs, _ := m.Int64Counter("membank.store.errors",
		metric.WithDescription("Total store operation errors"),
	)
	blockGauge, _ := m.Int64Gauge("membank.block.count",
		metric.WithDescription("Number of memory blocks matching the last count query"),
	)
	wrapped := &InstrumentedStore{
		inner:      s,
		tracer:     Tracer(storageScopeName),
		ops:        ops,
		dur:        dur,
		errs:       errs,
		blockGauge: blockGauge,
	}
	if rs, ok := storage.AsRemote(s); ok {
		return &instrumentedRemoteStore{InstrumentedStore: wrapped, remote: rs}
	}
	return wrapped
}

// op starts a span and records a metric for the named store operation.
func (s *InstrumentedStore) op(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span, time.Time) {
	all := append([]attribute.KeyValue{attribute.String("db.operation", name)}, attrs...)
	ctx, span := s.tracer.Start(ctx, "store."+name,
		trace.WithAttributes(all...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
	s.ops.Add(ctx, 1, metric.WithAttributes(all...))
	return ctx, span, time.Now()
}

// done ends the span, records duration and optional error.
func (s *InstrumentedStore) done(ctx context.Context, span trace.Span, start time.Time, err error, attrs ...attribute.KeyValue) {
	ms := float64(time.Since(start).Milliseconds())
	s.dur.Record(ctx, ms, metric.WithAttributes(attrs...))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.errs.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
	span.End()
}

// ── Block CRUD ──────────────────────────────────────────────────────────────

func (s *InstrumentedStore) PutBlock(ctx context.Context, block *types.MemoryBlock) error {
	attrs := []attribute.KeyValue{
		attribute.String("membank.block.type", string(block.Type)),
		attribute.String("membank.namespace", block.NamespaceID),
	}
	ctx, span, t := s.op(ctx, "PutBlock", attrs...)
	err := s.inner.PutBlock(ctx, block)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStore) GetBlock(ctx context.Context, id string) (*types.MemoryBlock, error) {
	attrs := []attribute.KeyValue{attribute.String("membank.block.id", id)}
	ctx, span, t := s.op(ctx, "GetBlock", attrs...)
	v, err := s.inner.GetBlock(ctx, id)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStore) GetBlocks(ctx context.Context, ids []string) ([]*types.MemoryBlock, error) {
	attrs := []attribute.KeyValue{attribute.Int("membank.block.requested", len(ids))}
	ctx, span, t := s.op(ctx, "GetBlocks", attrs...)
	v, err := s.inner.GetBlocks(ctx, ids)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStore) ListBlocks(ctx context.Context, filter types.BlockFilter) ([]*types.MemoryBlock, error) {
	var attrs []attribute.KeyValue
	if filter.NamespaceID != "" {
		attrs = append(attrs, attribute.String("membank.namespace", filter.NamespaceID))
	}
	if filter.Type != nil {
		attrs = append(attrs, attribute.String("membank.block.type", string(*filter.Type)))
	}
	ctx, span, t := s.op(ctx, "ListBlocks", attrs...)
	v, err := s.inner.ListBlocks(ctx, filter)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStore) DeleteBlock(ctx context.Context, id string) error {
	attrs := []attribute.KeyValue{attribute.String("membank.block.id", id)}
	ctx, span, t := s.op(ctx, "DeleteBlock", attrs...)
	err := s.inner.DeleteBlock(ctx, id)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStore) BlockExists(ctx context.Context, id string) (bool, error) {
	ctx, span, t := s.op(ctx, "BlockExists")
	v, err := s.inner.BlockExists(ctx, id)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStore) CountBlocks(ctx context.Context, filter types.BlockFilter) (int, error) {
	var attrs []attribute.KeyValue
	if filter.NamespaceID != "" {
		attrs = append(attrs, attribute.String("membank.namespace", filter.NamespaceID))
	}
	ctx, span, t := s.op(ctx, "CountBlocks", attrs...)
	n, err := s.inner.CountBlocks(ctx, filter)
	s.done(ctx, span, t, err, attrs...)
	if err == nil {
		s.blockGauge.Record(ctx, int64(n), metric.WithAttributes(attrs...))
	}
	return n, err
}

// ── Properties ──────────────────────────────────────────────────────────────

func (s *InstrumentedStore) GetBlockProperties(ctx context.Context, blockID string) ([]*types.BlockProperty, error) {
	attrs := []attribute.KeyValue{attribute.String("membank.block.id", blockID)}
	ctx, span, t := s.op(ctx, "GetBlockProperties", attrs...)
	v, err := s.inner.GetBlockProperties(ctx, blockID)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStore) BatchGetBlockProperties(ctx context.Context, blockIDs []string) (map[string][]*types.BlockProperty, error) {
	attrs := []attribute.KeyValue{attribute.Int("membank.block.requested", len(blockIDs))}
	ctx, span, t := s.op(ctx, "BatchGetBlockProperties", attrs...)
	v, err := s.inner.BatchGetBlockProperties(ctx, blockIDs)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

// ── Links ───────────────────────────────────────────────────────────────────

func (s *InstrumentedStore) InsertLink(ctx context.Context, link *types.BlockLink, opts storage.InsertLinkOptions) error {
	attrs := []attribute.KeyValue{attribute.String("membank.relation", string(link.Relation))}
	ctx, span, t := s.op(ctx, "InsertLink", attrs...)
	err := s.inner.InsertLink(ctx, link, opts)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStore) InsertLinkPair(ctx context.Context, forward, inverse *types.BlockLink) error {
	attrs := []attribute.KeyValue{attribute.String("membank.relation", string(forward.Relation))}
	ctx, span, t := s.op(ctx, "InsertLinkPair", attrs...)
	err := s.inner.InsertLinkPair(ctx, forward, inverse)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStore) DeleteLink(ctx context.Context, fromID, toID string, relation types.Relation) error {
	attrs := []attribute.KeyValue{attribute.String("membank.relation", string(relation))}
	ctx, span, t := s.op(ctx, "DeleteLink", attrs...)
	err := s.inner.DeleteLink(ctx, fromID, toID, relation)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStore) LinksFrom(ctx context.Context, blockID string, q types.LinkQuery) (*types.LinkPage, error) {
	attrs := []attribute.KeyValue{attribute.String("membank.block.id", blockID)}
	ctx, span, t := s.op(ctx, "LinksFrom", attrs...)
	v, err := s.inner.LinksFrom(ctx, blockID, q)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStore) LinksTo(ctx context.Context, blockID string, q types.LinkQuery) (*types.LinkPage, error) {
	attrs := []attribute.KeyValue{attribute.String("membank.block.id", blockID)}
	ctx, span, t := s.op(ctx, "LinksTo", attrs...)
	v, err := s.inner.LinksTo(ctx, blockID, q)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStore) CountLinksTo(ctx context.Context, blockID string, relations []types.Relation) (int, error) {
	attrs := []attribute.KeyValue{attribute.String("membank.block.id", blockID)}
	ctx, span, t := s.op(ctx, "CountLinksTo", attrs...)
	v, err := s.inner.CountLinksTo(ctx, blockID, relations)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

// ── Namespaces ──────────────────────────────────────────────────────────────

func (s *InstrumentedStore) CreateNamespace(ctx context.Context, ns *types.Namespace) error {
	attrs := []attribute.KeyValue{attribute.String("membank.namespace", ns.ID)}
	ctx, span, t := s.op(ctx, "CreateNamespace", attrs...)
	err := s.inner.CreateNamespace(ctx, ns)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStore) GetNamespace(ctx context.Context, id string) (*types.Namespace, error) {
	attrs := []attribute.KeyValue{attribute.String("membank.namespace", id)}
	ctx, span, t := s.op(ctx, "GetNamespace", attrs...)
	v, err := s.inner.GetNamespace(ctx, id)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStore) ListNamespaces(ctx context.Context) ([]*types.Namespace, error) {
	ctx, span, t := s.op(ctx, "ListNamespaces")
	v, err := s.inner.ListNamespaces(ctx)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStore) NamespaceExists(ctx context.Context, id string) (bool, error) {
	ctx, span, t := s.op(ctx, "NamespaceExists")
	v, err := s.inner.NamespaceExists(ctx, id)
	s.done(ctx, span, t, err)
	return v, err
}

// ── Proofs ──────────────────────────────────────────────────────────────────

func (s *InstrumentedStore) AppendProof(ctx context.Context, proof *types.BlockProof) error {
	attrs := []attribute.KeyValue{attribute.String("membank.block.id", proof.BlockID)}
	ctx, span, t := s.op(ctx, "AppendProof", attrs...)
	err := s.inner.AppendProof(ctx, proof)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStore) ListProofs(ctx context.Context, blockID string) ([]*types.BlockProof, error) {
	attrs := []attribute.KeyValue{attribute.String("membank.block.id", blockID)}
	ctx, span, t := s.op(ctx, "ListProofs", attrs...)
	v, err := s.inner.ListProofs(ctx, blockID)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

// ── Configuration ───────────────────────────────────────────────────────────

func (s *InstrumentedStore) SetConfig(ctx context.Context, key, value string) error {
	attrs := []attribute.KeyValue{attribute.String("membank.config.key", key)}
	ctx, span, t := s.op(ctx, "SetConfig", attrs...)
	err := s.inner.SetConfig(ctx, key, value)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStore) GetConfig(ctx context.Context, key string) (string, error) {
	attrs := []attribute.KeyValue{attribute.String("membank.config.key", key)}
	ctx, span, t := s.op(ctx, "GetConfig", attrs...)
	v, err := s.inner.GetConfig(ctx, key)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

// ── Lifecycle ───────────────────────────────────────────────────────────────

func (s *InstrumentedStore) Ping(ctx context.Context) error {
	ctx, span, t := s.op(ctx, "Ping")
	err := s.inner.Ping(ctx)
	s.done(ctx, span, t, err)
	return err
}

func (s *InstrumentedStore) Close() error {
	return s.inner.Close()
}

// ── Staging and commits ─────────────────────────────────────────────────────

func (s *InstrumentedStore) AddToStaging(ctx context.Context, tables []string) error {
	attrs := []attribute.KeyValue{attribute.Int("membank.table.count", len(tables))}
	ctx, span, t := s.op(ctx, "AddToStaging", attrs...)
	err := s.inner.AddToStaging(ctx, tables)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStore) CommitChanges(ctx context.Context, message string, tables []string) (string, error) {
	ctx, span, t := s.op(ctx, "CommitChanges")
	hash, err := s.inner.CommitChanges(ctx, message, tables)
	s.done(ctx, span, t, err)
	return hash, err
}

func (s *InstrumentedStore) DiscardChanges(ctx context.Context, tables []string) error {
	ctx, span, t := s.op(ctx, "DiscardChanges")
	err := s.inner.DiscardChanges(ctx, tables)
	s.done(ctx, span, t, err)
	return err
}

func (s *InstrumentedStore) DiffSummary(ctx context.Context, fromRev, toRev string) ([]*storage.DiffSummaryEntry, error) {
	ctx, span, t := s.op(ctx, "DiffSummary")
	v, err := s.inner.DiffSummary(ctx, fromRev, toRev)
	s.done(ctx, span, t, err)
	return v, err
}

// ── Branch lifecycle ────────────────────────────────────────────────────────

func (s *InstrumentedStore) ListBranches(ctx context.Context) ([]*storage.BranchInfo, error) {
	ctx, span, t := s.op(ctx, "ListBranches")
	v, err := s.inner.ListBranches(ctx)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStore) CheckoutBranch(ctx context.Context, name string, force bool) error {
	attrs := []attribute.KeyValue{attribute.String("membank.branch", name)}
	ctx, span, t := s.op(ctx, "CheckoutBranch", attrs...)
	err := s.inner.CheckoutBranch(ctx, name, force)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStore) CreateBranch(ctx context.Context, name, startPoint string, force bool) error {
	attrs := []attribute.KeyValue{attribute.String("membank.branch", name)}
	ctx, span, t := s.op(ctx, "CreateBranch", attrs...)
	err := s.inner.CreateBranch(ctx, name, startPoint, force)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStore) DeleteBranch(ctx context.Context, name string, force bool) error {
	attrs := []attribute.KeyValue{attribute.String("membank.branch", name)}
	ctx, span, t := s.op(ctx, "DeleteBranch", attrs...)
	err := s.inner.DeleteBranch(ctx, name, force)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStore) Merge(ctx context.Context, opts storage.MergeOptions) (*storage.MergeResult, error) {
	attrs := []attribute.KeyValue{attribute.String("membank.branch", opts.Source)}
	ctx, span, t := s.op(ctx, "Merge", attrs...)
	v, err := s.inner.Merge(ctx, opts)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStore) Reset(ctx context.Context, opts storage.ResetOptions) error {
	ctx, span, t := s.op(ctx, "Reset")
	err := s.inner.Reset(ctx, opts)
	s.done(ctx, span, t, err)
	return err
}

func (s *InstrumentedStore) ActiveBranch(ctx context.Context) (string, error) {
	ctx, span, t := s.op(ctx, "ActiveBranch")
	v, err := s.inner.ActiveBranch(ctx)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStore) Status(ctx context.Context) (*storage.WorkingSetStatus, error) {
	ctx, span, t := s.op(ctx, "Status")
	v, err := s.inner.Status(ctx)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStore) Log(ctx context.Context, limit int) ([]*storage.CommitInfo, error) {
	ctx, span, t := s.op(ctx, "Log")
	v, err := s.inner.Log(ctx, limit)
	s.done(ctx, span, t, err)
	return v, err
}

// instrumentedRemoteStore adds the remote-sync methods so wrapping a
// RemoteStore does not hide its push/pull capability.
type instrumentedRemoteStore struct {
	*InstrumentedStore
	remote storage.RemoteStore
}

func (s *instrumentedRemoteStore) Push(ctx context.Context, opts storage.PushOptions) error {
	attrs := []attribute.KeyValue{
		attribute.String("membank.remote", opts.Remote),
		attribute.String("membank.branch", opts.Branch),
	}
	ctx, span, t := s.op(ctx, "Push", attrs...)
	err := s.remote.Push(ctx, opts)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *instrumentedRemoteStore) Pull(ctx context.Context, opts storage.PullOptions) error {
	attrs := []attribute.KeyValue{
		attribute.String("membank.remote", opts.Remote),
		attribute.String("membank.branch", opts.Branch),
	}
	ctx, span, t := s.op(ctx, "Pull", attrs...)
	err := s.remote.Pull(ctx, opts)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *instrumentedRemoteStore) AddRemote(ctx context.Context, name, url string) error {
	attrs := []attribute.KeyValue{attribute.String("membank.remote", name)}
	ctx, span, t := s.op(ctx, "AddRemote", attrs...)
	err := s.remote.AddRemote(ctx, name, url)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *instrumentedRemoteStore) ListRemotes(ctx context.Context) (map[string]string, error) {
	ctx, span, t := s.op(ctx, "ListRemotes")
	v, err := s.remote.ListRemotes(ctx)
	s.done(ctx, span, t, err)
	return v, err
}
