package cleanup

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/hewalbot/internal/metrics"
	"github.com/hitoshi/hewalbot/internal/model"
)

// fakeRepo はDeletePostedBeforeの結果を固定するArticleRepository。
type fakeRepo struct {
	deleted int64
	err     error
	cutoffs []time.Time
}

func (f *fakeRepo) UpsertArticles(context.Context, []*model.Article) (int, error) { return 0, nil }

func (f *fakeRepo) ListByStatus(context.Context, model.Status) ([]*model.Article, error) {
	return nil, nil
}

func (f *fakeRepo) FilterKnownURLs(context.Context, []string) (map[string]bool, error) {
	return nil, nil
}

func (f *fakeRepo) AdvanceToTranslated(context.Context, string, string, string, []string) error {
	return nil
}

func (f *fakeRepo) AdvanceToPosted(context.Context, string) error { return nil }

func (f *fakeRepo) DeletePostedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	f.cutoffs = append(f.cutoffs, cutoff)
	if f.err != nil {
		return 0, f.err
	}
	return f.deleted, nil
}

func newTestJob(repo *fakeRepo) *CleanupJob {
	collector := metrics.NewCollector(prometheus.NewRegistry())
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	j := NewCleanupJob(repo, collector, logger)
	j.now = func() time.Time { return time.Date(2026, 8, 28, 3, 0, 0, 0, time.UTC) }
	return j
}

func TestRun_DeletesWithRetentionCutoff(t *testing.T) {
	repo := &fakeRepo{deleted: 12}
	j := newTestJob(repo)

	if err := j.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v, want nil", err)
	}
	if len(repo.cutoffs) != 1 {
		t.Fatalf("DeletePostedBefore呼び出し回数 = %d, want 1", len(repo.cutoffs))
	}

	want := time.Date(2026, 5, 30, 3, 0, 0, 0, time.UTC) // 90日前
	if !repo.cutoffs[0].Equal(want) {
		t.Errorf("cutoff = %v, want %v", repo.cutoffs[0], want)
	}
}

func TestRun_CustomRetentionDays(t *testing.T) {
	repo := &fakeRepo{}
	j := newTestJob(repo)
	j.RetentionDays = 30

	if err := j.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v, want nil", err)
	}

	want := time.Date(2026, 7, 29, 3, 0, 0, 0, time.UTC) // 30日前
	if !repo.cutoffs[0].Equal(want) {
		t.Errorf("cutoff = %v, want %v", repo.cutoffs[0], want)
	}
}

func TestRun_RepositoryError(t *testing.T) {
	repo := &fakeRepo{err: errors.New("db down")}
	j := newTestJob(repo)

	if err := j.Run(context.Background()); err == nil {
		t.Fatal("Run() error = nil, want error")
	}
}

func TestRun_ZeroDeletionsIsNotError(t *testing.T) {
	repo := &fakeRepo{deleted: 0}
	j := newTestJob(repo)

	if err := j.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v, want nil（削除対象なしは正常）", err)
	}
}

func TestStart_StopsOnContextCancel(t *testing.T) {
	repo := &fakeRepo{}
	j := newTestJob(repo)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		j.Start(ctx, time.Hour)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("キャンセル後もStartが復帰しません")
	}
}
