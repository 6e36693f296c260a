package engine

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/fulfillsync/mirror/internal/mapper"
	"github.com/fulfillsync/mirror/internal/progress"
	"github.com/fulfillsync/mirror/internal/vendorapi"
	"github.com/fulfillsync/mirror/internal/writer"
)

// fakeStore is an in-memory ProgressStore.
type fakeStore struct {
	mu sync.Mutex

	current      *progress.Progress
	startOffset  int
	lastSyncDate time.Time

	patches     []progress.Patch
	completed   bool
	success     bool
	reactivated bool
	lastSyncAt  time.Time
	lastSyncN   int
}

func (f *fakeStore) Start(ctx context.Context, entity, mode string, fresh bool) (*progress.Progress, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	offset := f.startOffset
	if fresh {
		offset = 0
	}
	f.current = &progress.Progress{
		SyncID:        progress.NewSyncID(entity),
		Entity:        entity,
		Mode:          mode,
		CurrentOffset: offset,
		Status:        progress.StatusInProgress,
		StartedAt:     time.Now().UTC(),
	}
	return f.current, nil
}

func (f *fakeStore) Get(ctx context.Context, syncID string) (*progress.Progress, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.current == nil || f.current.SyncID != syncID {
		return nil, progress.ErrNotFound
	}
	return f.current, nil
}

func (f *fakeStore) Reactivate(ctx context.Context, p *progress.Progress) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reactivated = true
	p.Status = progress.StatusInProgress
	return nil
}

func (f *fakeStore) Update(ctx context.Context, p *progress.Progress, patch progress.Patch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.patches = append(f.patches, patch)
	if patch.CurrentOffset != nil {
		p.CurrentOffset = *patch.CurrentOffset
	}
	if patch.ItemsProcessed != nil {
		p.ItemsProcessed = *patch.ItemsProcessed
	}
	if patch.Status != nil {
		p.Status = *patch.Status
	}
	return nil
}

func (f *fakeStore) Complete(ctx context.Context, p *progress.Progress, success bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed = true
	f.success = success
	return nil
}

func (f *fakeStore) LastSyncDate(ctx context.Context, entity, parentTable string) time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lastSyncDate.IsZero() {
		return time.Now().UTC().AddDate(0, 0, -30)
	}
	return f.lastSyncDate
}

func (f *fakeStore) SetLastSync(ctx context.Context, entity string, at time.Time, count int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastSyncAt = at
	f.lastSyncN = count
	return nil
}

func (f *fakeStore) lastStatus(t *testing.T) progress.Status {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.current == nil {
		t.Fatal("no progress recorded")
	}
	return f.current.Status
}

// fakeWriter collects chunks; fail injects a write error.
type fakeWriter struct {
	mu      sync.Mutex
	parents []*mapper.Mapped
	chunks  []int
	fail    error
}

func (f *fakeWriter) WriteChunk(ctx context.Context, spec mapper.TableSpec, recs []*mapper.Mapped) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	f.parents = append(f.parents, recs...)
	f.chunks = append(f.chunks, len(recs))
	return nil
}

// vendorStub serves list pages from items and detail payloads from
// details, recording list query parameters.
type vendorStub struct {
	items   []string
	details map[string]string

	mu       sync.Mutex
	listSeen []map[string]string
	detail   []string
}

func (v *vendorStub) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v.mu.Lock()
		defer v.mu.Unlock()

		if body, ok := v.details[r.URL.Path]; ok {
			v.detail = append(v.detail, r.URL.Path)
			w.Write([]byte(body))
			return
		}

		q := r.URL.Query()
		v.listSeen = append(v.listSeen, map[string]string{
			"offset":        q.Get("offset"),
			"limit":         q.Get("limit"),
			"updated_since": q.Get("updated_since"),
			"includestock":  q.Get("includestock"),
		})

		offset, _ := strconv.Atoi(q.Get("offset"))
		limit, _ := strconv.Atoi(q.Get("limit"))
		end := offset + limit
		if offset > len(v.items) {
			offset = len(v.items)
		}
		if end > len(v.items) {
			end = len(v.items)
		}

		out := "["
		for i, it := range v.items[offset:end] {
			if i > 0 {
				out += ","
			}
			out += it
		}
		w.Write([]byte(out + "]"))
	}
}

func newTestEngine(t *testing.T, stub *vendorStub, store *fakeStore, w ChunkWriter, cfg Config) *Engine {
	t.Helper()
	srv := httptest.NewServer(stub.handler())
	t.Cleanup(srv.Close)
	api := vendorapi.New(vendorapi.Options{BaseURL: srv.URL, APIKey: "k", PageLimit: cfg.PageLimit})
	return New(api, store, w, cfg)
}

func product(id int, updated string) string {
	return fmt.Sprintf(`{"idproduct": %d, "updated": %q}`, id, updated)
}

func TestSyncFullProcessesAllPages(t *testing.T) {
	stub := &vendorStub{items: []string{
		product(1, "2025-03-01 10:00:00"),
		product(2, "2025-03-02 10:00:00"),
		product(3, "2025-03-03 10:00:00"),
	}}
	store := &fakeStore{}
	fw := &fakeWriter{}
	e := newTestEngine(t, stub, store, fw, Config{PageLimit: 2})

	res := e.Sync(context.Background(), mapper.Products, Mode{Kind: Full})

	if !res.Success {
		t.Fatalf("Sync() failed: %s", res.Error)
	}
	if res.ItemsProcessed != 3 {
		t.Errorf("ItemsProcessed = %d, want 3", res.ItemsProcessed)
	}
	if len(fw.parents) != 3 {
		t.Errorf("writer received %d parents, want 3", len(fw.parents))
	}
	if !store.completed || !store.success {
		t.Error("sync should complete successfully")
	}
	if store.lastSyncAt.IsZero() || store.lastSyncN != 3 {
		t.Errorf("last sync mark = (%v, %d), want set with 3", store.lastSyncAt, store.lastSyncN)
	}

	// Full mode sends no updated_since; product listing carries its
	// fixed params.
	if got := stub.listSeen[0]["updated_since"]; got != "" {
		t.Errorf("full sync sent updated_since = %q", got)
	}
	if got := stub.listSeen[0]["includestock"]; got != "1" {
		t.Errorf("includestock = %q, want 1", got)
	}
}

func TestSyncIncrementalExpandsWindow(t *testing.T) {
	last := time.Date(2025, 4, 3, 17, 8, 9, 0, time.UTC)
	stub := &vendorStub{items: []string{product(1, "2025-04-01 10:00:00")}}
	store := &fakeStore{lastSyncDate: last}
	e := newTestEngine(t, stub, store, &fakeWriter{}, Config{
		PageLimit:     10,
		RollingWindow: 30 * 24 * time.Hour,
	})

	res := e.Sync(context.Background(), mapper.Products, Mode{Kind: Incremental})
	if !res.Success {
		t.Fatalf("Sync() failed: %s", res.Error)
	}

	// since = last sync minus the 30 day window.
	if got := stub.listSeen[0]["updated_since"]; got != "2025-03-04 17:08:09" {
		t.Errorf("updated_since = %q, want 2025-03-04 17:08:09", got)
	}
}

func TestSyncResumesFromCheckpoint(t *testing.T) {
	stub := &vendorStub{items: []string{
		product(1, "2025-03-01 10:00:00"),
		product(2, "2025-03-02 10:00:00"),
		product(3, "2025-03-03 10:00:00"),
	}}
	store := &fakeStore{startOffset: 2}
	fw := &fakeWriter{}
	e := newTestEngine(t, stub, store, fw, Config{PageLimit: 2})

	res := e.Sync(context.Background(), mapper.Products, Mode{Kind: Incremental})
	if !res.Success {
		t.Fatalf("Sync() failed: %s", res.Error)
	}

	if got := stub.listSeen[0]["offset"]; got != "2" {
		t.Errorf("first request offset = %s, want 2", got)
	}
	if len(fw.parents) != 1 {
		t.Errorf("writer received %d parents, want 1", len(fw.parents))
	}
}

func TestSyncSplitsPagesIntoBatchSizeWrites(t *testing.T) {
	stub := &vendorStub{items: []string{
		product(1, "2025-03-01 10:00:00"),
		product(2, "2025-03-02 10:00:00"),
		product(3, "2025-03-03 10:00:00"),
		product(4, "2025-03-04 10:00:00"),
		product(5, "2025-03-05 10:00:00"),
	}}
	store := &fakeStore{}
	fw := &fakeWriter{}
	e := newTestEngine(t, stub, store, fw, Config{PageLimit: 4, BatchSize: 2})

	res := e.Sync(context.Background(), mapper.Products, Mode{Kind: Full})
	if !res.Success {
		t.Fatalf("Sync() failed: %s", res.Error)
	}
	if res.ItemsProcessed != 5 {
		t.Errorf("ItemsProcessed = %d, want 5", res.ItemsProcessed)
	}

	// The first page holds 4 parents; each transaction holds at most
	// BatchSize of them.
	want := []int{2, 2, 1}
	if len(fw.chunks) != len(want) {
		t.Fatalf("WriteChunk calls = %v, want %v", fw.chunks, want)
	}
	for i, n := range want {
		if fw.chunks[i] != n {
			t.Errorf("chunk %d size = %d, want %d", i, fw.chunks[i], n)
		}
	}
}

func TestSyncFetchesPicklistDetails(t *testing.T) {
	stub := &vendorStub{
		items: []string{
			`{"idpicklist": 500, "status": "new", "updated": "2025-03-04 10:00:00"}`,
		},
		details: map[string]string{
			"/picklists/500": `{"idpicklist": 500, "status": "new",
				"products": [{"idpicklist_product": 1, "idproduct": 101, "amount": 2}],
				"updated": "2025-03-04 10:00:00"}`,
		},
	}
	store := &fakeStore{}
	fw := &fakeWriter{}
	e := newTestEngine(t, stub, store, fw, Config{PageLimit: 10})

	res := e.Sync(context.Background(), mapper.Picklists, Mode{Kind: Full})
	if !res.Success {
		t.Fatalf("Sync() failed: %s", res.Error)
	}

	if len(stub.detail) != 1 || stub.detail[0] != "/picklists/500" {
		t.Fatalf("detail fetches = %v, want [/picklists/500]", stub.detail)
	}
	if len(fw.parents) != 1 {
		t.Fatalf("writer received %d parents, want 1", len(fw.parents))
	}
	if got := len(fw.parents[0].Children["PicklistProducts"]); got != 1 {
		t.Errorf("picklist products = %d, want 1", got)
	}
}

func TestSyncSkipsDetailWhenPresent(t *testing.T) {
	stub := &vendorStub{
		items: []string{
			`{"idpicklist": 500, "status": "new", "products": [], "updated": "2025-03-04 10:00:00"}`,
		},
		details: map[string]string{},
	}
	store := &fakeStore{}
	e := newTestEngine(t, stub, store, &fakeWriter{}, Config{PageLimit: 10})

	res := e.Sync(context.Background(), mapper.Picklists, Mode{Kind: Full})
	if !res.Success {
		t.Fatalf("Sync() failed: %s", res.Error)
	}
	if len(stub.detail) != 0 {
		t.Errorf("detail fetches = %v, want none", stub.detail)
	}
}

func TestSyncAlwaysFetchesBatchDetails(t *testing.T) {
	// The batch list payload looks complete, but the child collections
	// only exist in the detail payload; it is fetched unconditionally.
	stub := &vendorStub{
		items: []string{
			`{"idpicklist_batch": 12, "status": "open", "updated_at": "2025-03-04 10:00:00"}`,
		},
		details: map[string]string{
			"/picklists/batches/12": `{"idpicklist_batch": 12, "status": "open",
				"products": [{"idproduct": 101, "amount": 2}],
				"picklists": [{"idpicklist": 500}],
				"updated_at": "2025-03-04 10:00:00"}`,
		},
	}
	store := &fakeStore{}
	fw := &fakeWriter{}
	e := newTestEngine(t, stub, store, fw, Config{PageLimit: 10})

	res := e.Sync(context.Background(), mapper.Batches, Mode{Kind: Full})
	if !res.Success {
		t.Fatalf("Sync() failed: %s", res.Error)
	}
	if len(stub.detail) != 1 {
		t.Fatalf("detail fetches = %v, want exactly one", stub.detail)
	}
	if got := len(fw.parents[0].Children["BatchProducts"]); got != 1 {
		t.Errorf("batch products = %d, want 1", got)
	}
	if got := len(fw.parents[0].Children["BatchPicklists"]); got != 1 {
		t.Errorf("batch picklists = %d, want 1", got)
	}
}

func TestSyncSkipsRecordsWithoutPrimaryKey(t *testing.T) {
	stub := &vendorStub{items: []string{
		product(1, "2025-03-01 10:00:00"),
		`{"name": "no id", "updated": "2025-03-02 10:00:00"}`,
	}}
	store := &fakeStore{}
	fw := &fakeWriter{}
	e := newTestEngine(t, stub, store, fw, Config{PageLimit: 10})

	res := e.Sync(context.Background(), mapper.Products, Mode{Kind: Full})
	if !res.Success {
		t.Fatalf("Sync() failed: %s", res.Error)
	}
	if res.SkippedRecords != 1 {
		t.Errorf("SkippedRecords = %d, want 1", res.SkippedRecords)
	}
	if res.ItemsProcessed != 1 {
		t.Errorf("ItemsProcessed = %d, want 1", res.ItemsProcessed)
	}
	if len(fw.parents) != 1 {
		t.Errorf("writer received %d parents, want 1", len(fw.parents))
	}
}

func TestSyncDeduplicatesWithinRun(t *testing.T) {
	stub := &vendorStub{items: []string{
		product(1, "2025-03-01 10:00:00"),
		product(1, "2025-03-01 10:00:00"),
	}}
	store := &fakeStore{}
	fw := &fakeWriter{}
	e := newTestEngine(t, stub, store, fw, Config{PageLimit: 10})

	res := e.Sync(context.Background(), mapper.Products, Mode{Kind: Full})
	if !res.Success {
		t.Fatalf("Sync() failed: %s", res.Error)
	}
	if len(fw.parents) != 1 {
		t.Errorf("writer received %d parents, want 1 after dedup", len(fw.parents))
	}
}

func TestSyncRecoverableWriteFailure(t *testing.T) {
	stub := &vendorStub{items: []string{product(1, "2025-03-01 10:00:00")}}
	store := &fakeStore{}
	fw := &fakeWriter{fail: &writer.RecoverableError{Err: fmt.Errorf("deadlock detected")}}
	e := newTestEngine(t, stub, store, fw, Config{PageLimit: 10})

	res := e.Sync(context.Background(), mapper.Products, Mode{Kind: Full})
	if res.Success {
		t.Fatal("Sync() should fail")
	}
	if store.completed {
		t.Error("recoverable failure must not complete the attempt")
	}
	if got := store.lastStatus(t); got != progress.StatusErrorRecoverable {
		t.Errorf("status = %s, want %s", got, progress.StatusErrorRecoverable)
	}
}

func TestSyncFatalUpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	store := &fakeStore{}
	api := vendorapi.New(vendorapi.Options{BaseURL: srv.URL, APIKey: "k", PageLimit: 10})
	e := New(api, store, &fakeWriter{}, Config{PageLimit: 10})

	res := e.Sync(context.Background(), mapper.Products, Mode{Kind: Full})
	if res.Success {
		t.Fatal("Sync() should fail")
	}
	if !store.completed || store.success {
		t.Error("fatal failure must complete the attempt as failed")
	}
}

func TestSyncCancellationIsRecoverable(t *testing.T) {
	stub := &vendorStub{items: []string{product(1, "2025-03-01 10:00:00")}}
	store := &fakeStore{}

	ctx, cancel := context.WithCancel(context.Background())
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cancel() // cancel mid-sync, before the page is consumed
		stub.handler()(w, r)
	}))
	t.Cleanup(srv.Close)

	api := vendorapi.New(vendorapi.Options{BaseURL: srv.URL, APIKey: "k", PageLimit: 10})
	e := New(api, store, &fakeWriter{}, Config{PageLimit: 10})

	res := e.Sync(ctx, mapper.Products, Mode{Kind: Full})
	if res.Success {
		t.Fatal("Sync() should fail after cancellation")
	}
	if got := store.lastStatus(t); got != progress.StatusErrorRecoverable {
		t.Errorf("status = %s, want %s", got, progress.StatusErrorRecoverable)
	}
}

func TestSyncRetryAdoptsRecordedMode(t *testing.T) {
	stub := &vendorStub{items: []string{product(1, "2025-03-01 10:00:00")}}
	store := &fakeStore{}
	store.current = &progress.Progress{
		SyncID:        "products-1700000000-abcd1234",
		Entity:        "products",
		Mode:          "full",
		CurrentOffset: 0,
		Status:        progress.StatusErrorRecoverable,
	}
	fw := &fakeWriter{}
	e := newTestEngine(t, stub, store, fw, Config{PageLimit: 10})

	res := e.Sync(context.Background(), mapper.Products, Mode{Kind: Retry, SyncID: "products-1700000000-abcd1234"})
	if !res.Success {
		t.Fatalf("Sync() failed: %s", res.Error)
	}
	if !store.reactivated {
		t.Error("retry must reactivate the stored attempt")
	}
	if res.Mode != "full" {
		t.Errorf("effective mode = %q, want full (recorded on the attempt)", res.Mode)
	}
	if res.SyncID != "products-1700000000-abcd1234" {
		t.Errorf("SyncID = %q, want the retried id", res.SyncID)
	}
}

func TestSyncRetryUnknownID(t *testing.T) {
	stub := &vendorStub{}
	store := &fakeStore{}
	e := newTestEngine(t, stub, store, &fakeWriter{}, Config{PageLimit: 10})

	res := e.Sync(context.Background(), mapper.Products, Mode{Kind: Retry, SyncID: "products-0-missing1"})
	if res.Success {
		t.Fatal("Sync() should fail for an unknown sync id")
	}
}
