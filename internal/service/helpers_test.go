package service

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bigkaa/goartstore/sheet-module/internal/database"
	"github.com/bigkaa/goartstore/sheet-module/internal/domain/access"
	"github.com/bigkaa/goartstore/sheet-module/internal/domain/model"
	"github.com/bigkaa/goartstore/sheet-module/internal/events"
	"github.com/bigkaa/goartstore/sheet-module/internal/repository"
	"github.com/bigkaa/goartstore/sheet-module/internal/storage/blobstore"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// recordingPublisher запоминает опубликованные события.
type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) Close() {}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

// flakyStore — хранилище с управляемыми сбоями.
type flakyStore struct {
	blobstore.Store
	existsErr map[string]error
	deleteErr error
}

func (f *flakyStore) Exists(ctx context.Context, key string) (bool, error) {
	if err, ok := f.existsErr[key]; ok {
		return false, err
	}
	return f.Store.Exists(ctx, key)
}

func (f *flakyStore) Delete(ctx context.Context, key string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	return f.Store.Delete(ctx, key)
}

// failingRepo — репозиторий, который не может создать запись.
type failingRepo struct {
	repository.FileRepository
	createErr error
}

func (r *failingRepo) Create(context.Context, *model.FileRecord) error {
	return r.createErr
}

// testEnv — сервисы поверх SQLite и файлового хранилища во временной директории.
type testEnv struct {
	repo       repository.FileRepository
	fs         *blobstore.FSStore
	store      blobstore.Store
	pub        *recordingPublisher
	cache      *SchemaCache
	ingest     *IngestService
	reconciler *Reconciler
	files      *FileService
	schema     *SchemaService
}

const testMaxFileSize = 1 << 20

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()

	db, err := database.OpenSQLite(ctx, filepath.Join(dir, "meta", "sheets.db"), testLogger())
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := database.MigrateSQLite(db, testLogger()); err != nil {
		t.Fatalf("MigrateSQLite: %v", err)
	}

	fs, err := blobstore.NewFSStore(filepath.Join(dir, "blobs"))
	if err != nil {
		t.Fatalf("NewFSStore: %v", err)
	}

	env := &testEnv{
		repo:  repository.NewSQLiteFileRepository(db),
		fs:    fs,
		store: fs,
		pub:   &recordingPublisher{},
		cache: NewSchemaCache(16, time.Minute),
	}
	env.wire()
	return env
}

// wire пересобирает сервисы с текущими repo и store.
func (e *testEnv) wire() {
	logger := testLogger()
	e.ingest = NewIngestService(e.repo, e.store, e.pub, testMaxFileSize, logger)
	e.reconciler = NewReconciler(e.repo, e.store, e.cache, e.pub, 0, time.Hour, logger)
	e.files = NewFileService(e.repo, e.store, access.NewGuard(), e.reconciler, e.cache, e.pub, logger)
	e.schema = NewSchemaService(e.files, e.repo, e.store, e.cache, e.pub, logger)
}

func (e *testEnv) upload(t *testing.T, owner, name, content string) *model.FileRecord {
	t.Helper()
	rec, err := e.ingest.Upload(context.Background(), UploadParams{
		OwnerID:      owner,
		Reader:       strings.NewReader(content),
		OriginalName: name,
		ContentType:  model.ContentKindCSV,
		Size:         int64(len(content)),
	})
	if err != nil {
		t.Fatalf("Upload(%s): %v", name, err)
	}
	return rec
}

// blobCount возвращает количество файлов в хранилище.
func (e *testEnv) blobCount(t *testing.T) int {
	t.Helper()
	n := 0
	if err := e.fs.Walk(context.Background(), func(blobstore.BlobInfo) error {
		n++
		return nil
	}); err != nil {
		t.Fatalf("Walk: %v", err)
	}
	return n
}
