package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bigkaa/goartstore/sheet-module/internal/domain/model"
	"github.com/bigkaa/goartstore/sheet-module/internal/repository"
)

// Сбой по одной записи не останавливает проход.
func TestReconcileOwner_ContinuesAfterError(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	flaky := env.upload(t, "alice", "flaky.csv", "a\n1\n")
	gone := env.upload(t, "alice", "gone.csv", "a\n1\n")
	kept := env.upload(t, "alice", "kept.csv", "a\n1\n")
	if err := os.Remove(gone.StoragePath); err != nil {
		t.Fatalf("os.Remove: %v", err)
	}

	env.store = &flakyStore{
		Store:     env.fs,
		existsErr: map[string]error{flaky.StoredName: errors.New("timeout")},
	}
	env.wire()

	res := env.reconciler.ReconcileOwner(ctx, "alice")
	if res.Checked != 3 || res.Removed != 1 || res.Errors != 1 {
		t.Errorf("ожидалось Checked=3 Removed=1 Errors=1, получено %+v", res)
	}

	if _, err := env.repo.GetByID(ctx, gone.ID); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("запись gone.csv должна быть удалена: %v", err)
	}
	for _, id := range []string{flaky.ID, kept.ID} {
		if _, err := env.repo.GetByID(ctx, id); err != nil {
			t.Errorf("запись %s не должна удаляться: %v", id, err)
		}
	}
}

// Запись, удалённая параллельно, — тоже успех.
func TestReconcileOwner_AlreadyDeleted(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	rec := env.upload(t, "alice", "a.csv", "a\n1\n")
	if err := os.Remove(rec.StoragePath); err != nil {
		t.Fatalf("os.Remove: %v", err)
	}

	// Сверке отдаётся снимок, в котором запись ещё есть
	records, err := env.repo.ListByOwner(ctx, "alice")
	if err != nil {
		t.Fatalf("ListByOwner: %v", err)
	}
	if err := env.repo.Delete(ctx, rec.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	res := env.reconciler.reconcileRecords(ctx, records)
	if res.Errors != 0 || res.Removed != 1 {
		t.Errorf("ожидалось Removed=1 Errors=0, получено %+v", res)
	}
}

func TestRunOnce_RecordsAndOrphans(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	deadAlice := env.upload(t, "alice", "a.csv", "a\n1\n")
	deadBob := env.upload(t, "bob", "b.csv", "a\n1\n")
	live := env.upload(t, "bob", "live.csv", "a\n1\n")
	for _, rec := range []string{deadAlice.StoragePath, deadBob.StoragePath} {
		if err := os.Remove(rec); err != nil {
			t.Fatalf("os.Remove: %v", err)
		}
	}

	// Старый файл без записи — удаляется; свежий — нет (загрузка может быть в процессе)
	oldOrphan := filepath.Join(env.fs.DataDir(), "20200101T000000000_aaaaaaaaaaaa_old.csv")
	freshOrphan := filepath.Join(env.fs.DataDir(), "20200101T000000000_bbbbbbbbbbbb_fresh.csv")
	for _, p := range []string{oldOrphan, freshOrphan} {
		if err := os.WriteFile(p, []byte("x"), 0o640); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
	}
	past := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(oldOrphan, past, past); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}

	res, skipped := env.reconciler.RunOnce(ctx)
	if skipped {
		t.Fatal("RunOnce не должен пропускаться")
	}
	if res.Owners != 2 {
		t.Errorf("Owners: ожидалось 2, получено %d", res.Owners)
	}
	if res.Records.Removed != 2 {
		t.Errorf("Records.Removed: ожидалось 2, получено %d", res.Records.Removed)
	}
	if res.OrphansRemoved != 1 {
		t.Errorf("OrphansRemoved: ожидалось 1, получено %d", res.OrphansRemoved)
	}

	if _, err := os.Stat(oldOrphan); !os.IsNotExist(err) {
		t.Errorf("старый файл-сирота должен быть удалён: %v", err)
	}
	if _, err := os.Stat(freshOrphan); err != nil {
		t.Errorf("свежий файл-сирота должен остаться: %v", err)
	}
	if _, err := os.Stat(live.StoragePath); err != nil {
		t.Errorf("файл с записью должен остаться: %v", err)
	}
	if env.reconciler.IsInProgress() {
		t.Error("после RunOnce флаг выполнения должен быть снят")
	}
}

// Temp файлы, оставшиеся после падения процесса посреди записи,
// удаляются после grace-периода.
func TestRunOnce_StaleTempFiles(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	staleTmp := filepath.Join(env.fs.DataDir(), ".20200101T000000000_aaaaaaaaaaaa_crash.csv.tmp")
	freshTmp := filepath.Join(env.fs.DataDir(), ".20200101T000000000_bbbbbbbbbbbb_writing.csv.tmp")
	for _, p := range []string{staleTmp, freshTmp} {
		if err := os.WriteFile(p, []byte("partial"), 0o640); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
	}
	past := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(staleTmp, past, past); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}

	res, skipped := env.reconciler.RunOnce(ctx)
	if skipped {
		t.Fatal("RunOnce не должен пропускаться")
	}
	if res.StaleRemoved != 1 {
		t.Errorf("StaleRemoved: ожидалось 1, получено %d", res.StaleRemoved)
	}
	if res.OrphanErrors != 0 {
		t.Errorf("OrphanErrors: ожидалось 0, получено %d", res.OrphanErrors)
	}
	if _, err := os.Stat(staleTmp); !os.IsNotExist(err) {
		t.Errorf("старый temp файл должен быть удалён: %v", err)
	}
	if _, err := os.Stat(freshTmp); err != nil {
		t.Errorf("свежий temp файл должен остаться: %v", err)
	}
}

// blockingRepo задерживает ListAll, пока тест не отпустит проход.
type blockingRepo struct {
	repository.FileRepository
	entered chan struct{}
	release chan struct{}
}

func (r *blockingRepo) ListAll(ctx context.Context) ([]*model.FileRecord, error) {
	close(r.entered)
	<-r.release
	return r.FileRepository.ListAll(ctx)
}

// Второй проход не запускается, пока идёт первый.
func TestRunOnce_SkipsWhileInProgress(t *testing.T) {
	env := newTestEnv(t)
	repo := &blockingRepo{
		FileRepository: env.repo,
		entered:        make(chan struct{}),
		release:        make(chan struct{}),
	}
	env.repo = repo
	env.wire()

	done := make(chan struct{})
	go func() {
		defer close(done)
		env.reconciler.RunOnce(context.Background())
	}()
	<-repo.entered

	if !env.reconciler.IsInProgress() {
		t.Error("во время прохода флаг выполнения должен быть установлен")
	}
	if res, skipped := env.reconciler.RunOnce(context.Background()); !skipped || res != nil {
		t.Errorf("параллельный RunOnce должен пропускаться, получено (%v, %v)", res, skipped)
	}

	close(repo.release)
	<-done
	if env.reconciler.IsInProgress() {
		t.Error("после прохода флаг выполнения должен быть снят")
	}
}

func TestReconciler_StartStop(t *testing.T) {
	env := newTestEnv(t)
	rec := env.upload(t, "alice", "a.csv", "a\n1\n")
	if err := os.Remove(rec.StoragePath); err != nil {
		t.Fatalf("os.Remove: %v", err)
	}

	r := NewReconciler(env.repo, env.store, env.cache, env.pub, 20*time.Millisecond, time.Hour, testLogger())
	r.Start(context.Background())

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := env.repo.GetByID(context.Background(), rec.ID); errors.Is(err, repository.ErrNotFound) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	r.Stop()

	if _, err := env.repo.GetByID(context.Background(), rec.ID); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("фоновая сверка должна удалить запись без файла: %v", err)
	}
}

// Нулевой интервал: Start и Stop ничего не запускают.
func TestReconciler_Disabled(t *testing.T) {
	env := newTestEnv(t)
	env.reconciler.Start(context.Background())
	env.reconciler.Stop()
}
