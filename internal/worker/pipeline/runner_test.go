package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/hewalbot/internal/fetch"
	"github.com/hitoshi/hewalbot/internal/metrics"
	"github.com/hitoshi/hewalbot/internal/publish"
	"github.com/hitoshi/hewalbot/internal/translate"
)

// stageRecorder は各ステージの呼び出し順を記録する。
type stageRecorder struct {
	order *[]string
}

type fakeFetchStage struct {
	stageRecorder
	res   fetch.Result
	err   error
	panic bool
}

func (s *fakeFetchStage) Run(context.Context) (fetch.Result, error) {
	*s.order = append(*s.order, "fetch")
	if s.panic {
		panic("fetch stage panic")
	}
	return s.res, s.err
}

type fakeTranslateStage struct {
	stageRecorder
	res translate.Result
	err error
}

func (s *fakeTranslateStage) Run(context.Context) (translate.Result, error) {
	*s.order = append(*s.order, "translate")
	return s.res, s.err
}

type fakePublishStage struct {
	stageRecorder
	res publish.Result
	err error
}

func (s *fakePublishStage) Run(context.Context) (publish.Result, error) {
	*s.order = append(*s.order, "publish")
	if s.res.PlatformOK == nil {
		s.res.PlatformOK = map[string]int{}
		s.res.PlatformNG = map[string]int{}
		s.res.DropsBy = map[string]int{}
	}
	return s.res, s.err
}

func newTestRunner(f *fakeFetchStage, tr *fakeTranslateStage, p *fakePublishStage) (*Runner, *metrics.Collector, prometheus.Gatherer) {
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)
	log := slog.New(slog.NewJSONHandler(io.Discard, nil))
	r := NewRunner(f, tr, p, collector, log, time.Minute)
	r.sleep = func(context.Context, time.Duration) error { return nil }
	return r, collector, reg
}

func TestRunOnce_StageOrder(t *testing.T) {
	var order []string
	rec := stageRecorder{order: &order}
	f := &fakeFetchStage{stageRecorder: rec}
	tr := &fakeTranslateStage{stageRecorder: rec}
	p := &fakePublishStage{stageRecorder: rec}
	r, _, _ := newTestRunner(f, tr, p)

	if err := r.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce() error = %v, want nil", err)
	}

	want := []string{"fetch", "translate", "publish"}
	if len(order) != len(want) {
		t.Fatalf("ステージ実行数 = %d, want %d", len(order), len(want))
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order[%d] = %s, want %s", i, order[i], want[i])
		}
	}
}

func TestRunOnce_FetchFailureStopsCycle(t *testing.T) {
	var order []string
	rec := stageRecorder{order: &order}
	f := &fakeFetchStage{stageRecorder: rec, err: errors.New("db down")}
	tr := &fakeTranslateStage{stageRecorder: rec}
	p := &fakePublishStage{stageRecorder: rec}
	r, _, _ := newTestRunner(f, tr, p)

	if err := r.RunOnce(context.Background()); err == nil {
		t.Fatal("RunOnce() error = nil, want error")
	}
	for _, s := range order {
		if s == "translate" || s == "publish" {
			t.Errorf("フェッチ失敗後に %s ステージが実行されました", s)
		}
	}
}

func TestRunOnce_RecordsMetrics(t *testing.T) {
	var order []string
	rec := stageRecorder{order: &order}
	f := &fakeFetchStage{stageRecorder: rec, res: fetch.Result{Inserted: 5, Deduped: 2}}
	tr := &fakeTranslateStage{stageRecorder: rec, res: translate.Result{ChunksOK: 1, Translated: 5}}
	p := &fakePublishStage{stageRecorder: rec, res: publish.Result{
		Posted:     5,
		PlatformOK: map[string]int{"tumblr": 5, "telegram": 4},
		PlatformNG: map[string]int{"telegram": 1},
		DropsBy:    map[string]int{},
	}}
	r, _, reg := newTestRunner(f, tr, p)

	if err := r.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce() error = %v, want nil", err)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}

	found := map[string]bool{}
	for _, mf := range families {
		found[mf.GetName()] = true
	}
	for _, name := range []string{
		"hewalbot_articles_fetched_total",
		"hewalbot_articles_translated_total",
		"hewalbot_posts_total",
		"hewalbot_cycle_duration_seconds",
	} {
		if !found[name] {
			t.Errorf("メトリクス %s が記録されていません", name)
		}
	}
}

func TestRunCycle_RecoversPanic(t *testing.T) {
	var order []string
	rec := stageRecorder{order: &order}
	f := &fakeFetchStage{stageRecorder: rec, panic: true}
	tr := &fakeTranslateStage{stageRecorder: rec}
	p := &fakePublishStage{stageRecorder: rec}
	r, _, _ := newTestRunner(f, tr, p)

	var slept []time.Duration
	r.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	// panicがここまで伝播しないことが検証対象
	r.runCycle(context.Background())

	if len(slept) != 1 || slept[0] != time.Minute {
		t.Errorf("安全待機 = %v, want [1m]", slept)
	}
}

func TestRunCycle_SafetyPauseOnCycleError(t *testing.T) {
	var order []string
	rec := stageRecorder{order: &order}
	f := &fakeFetchStage{stageRecorder: rec, err: errors.New("db down")}
	tr := &fakeTranslateStage{stageRecorder: rec}
	p := &fakePublishStage{stageRecorder: rec}
	r, _, _ := newTestRunner(f, tr, p)

	var slept []time.Duration
	r.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	r.runCycle(context.Background())

	if len(slept) != 1 || slept[0] != time.Minute {
		t.Errorf("トップレベル失敗後の安全待機 = %v, want [1m]", slept)
	}
}

func TestRunCycle_NoSafetyPauseOnCancel(t *testing.T) {
	var order []string
	rec := stageRecorder{order: &order}
	f := &fakeFetchStage{stageRecorder: rec, err: context.Canceled}
	tr := &fakeTranslateStage{stageRecorder: rec}
	p := &fakePublishStage{stageRecorder: rec}
	r, _, _ := newTestRunner(f, tr, p)

	var slept []time.Duration
	r.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r.runCycle(ctx)

	if len(slept) != 0 {
		t.Errorf("キャンセル時に安全待機が入りました: %v", slept)
	}
}

func TestStart_StopsOnContextCancel(t *testing.T) {
	var order []string
	rec := stageRecorder{order: &order}
	f := &fakeFetchStage{stageRecorder: rec}
	tr := &fakeTranslateStage{stageRecorder: rec}
	p := &fakePublishStage{stageRecorder: rec}
	r, _, _ := newTestRunner(f, tr, p)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Start(ctx, time.Hour)
		close(done)
	}()

	// 起動直後の1サイクルが走るのを少し待ってからキャンセル
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("キャンセル後もStartが復帰しません")
	}

	if len(order) < 3 {
		t.Errorf("起動直後のサイクルが実行されていません: %v", order)
	}
}
