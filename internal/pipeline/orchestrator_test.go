package pipeline

import (
	"context"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/SamoM225/the-bible-translations/internal/domain"
	"github.com/SamoM225/the-bible-translations/internal/service/ai"
	"github.com/SamoM225/the-bible-translations/pkg/errors"
)

type fakeWork struct {
	entries  []domain.SourceEntry
	imported [][]domain.SourceEntry
	countErr error
}

func (f *fakeWork) CountSourceEntries(context.Context) (int, error) {
	if f.countErr != nil {
		return 0, f.countErr
	}
	return len(f.entries), nil
}

func (f *fakeWork) ListSourceEntries(_ context.Context, offset, limit int) ([]domain.SourceEntry, error) {
	if offset >= len(f.entries) {
		return nil, nil
	}
	end := min(offset+limit, len(f.entries))
	return f.entries[offset:end], nil
}

func (f *fakeWork) UpsertSourceEntries(_ context.Context, entries []domain.SourceEntry) error {
	f.imported = append(f.imported, entries)
	return nil
}

type fakeLanguages struct {
	languages map[string]domain.Language
	targets   []domain.Language
	langErr   error
}

func (f *fakeLanguages) Language(_ context.Context, code string) (domain.Language, error) {
	if f.langErr != nil {
		return domain.Language{}, f.langErr
	}
	lang, ok := f.languages[code]
	if !ok {
		return domain.Language{}, errors.NewStoreError("language not registered", "get_language", nil)
	}
	return lang, nil
}

func (f *fakeLanguages) ActiveTargets(context.Context) ([]domain.Language, error) {
	return f.targets, nil
}

type fakeStats struct {
	calls [][]string
}

func (f *fakeStats) RecomputeLanguageStats(_ context.Context, codes []string) error {
	f.calls = append(f.calls, codes)
	return nil
}

// steppingClock advances by step on every Now call.
type steppingClock struct {
	t    time.Time
	step time.Duration
}

func (c *steppingClock) Now() time.Time {
	now := c.t
	c.t = c.t.Add(c.step)
	return now
}

func noSleep(context.Context, time.Duration) error { return nil }

type orchestratorFixture struct {
	work   *fakeWork
	langs  *fakeLanguages
	engine *scriptedEngine
	store  *fakeStore
	stats  *fakeStats
	orch   *Orchestrator
	sleeps *sleepRecorder
}

func newFixture(entries int, engine *scriptedEngine, opts Options) *orchestratorFixture {
	work := &fakeWork{entries: makeEntries(entries)}
	langs := &fakeLanguages{
		languages: map[string]domain.Language{
			"cs": {Code: "cs", Name: "Czech", IsActive: true},
		},
		targets: []domain.Language{
			{Code: "cs", Name: "Czech", IsActive: true},
			{Code: "de", Name: "German", IsActive: true},
		},
	}
	store := &fakeStore{}
	stats := &fakeStats{}
	sleeps := &sleepRecorder{}

	logger := zap.NewNop()
	requester := NewRequester(engine, testPolicy(), logger).WithSleep(sleeps.sleep)
	reconciler := NewReconciler(store, testClassifier(), logger).WithNow(fixedNow)
	orch := NewOrchestrator(work, langs, requester, reconciler, stats, opts, logger).
		WithClock(sleeps.sleep, (&steppingClock{t: fixedNow(), step: time.Second}).Now)

	return &orchestratorFixture{
		work: work, langs: langs, engine: engine, store: store, stats: stats,
		orch: orch, sleeps: sleeps,
	}
}

// outputFor builds a successful engine response translating the given keys.
func outputFor(keys ...string) ai.Output {
	m := make(map[string]string, len(keys))
	for _, k := range keys {
		m[k] = "übersetzt:" + k
	}
	return ai.Output{Translations: m}
}

func TestTranslateLanguageProcessesAllBatches(t *testing.T) {
	engine := &scriptedEngine{
		outputs: []ai.Output{outputFor("key.000", "key.001"), outputFor("key.002", "key.003")},
		errs:    []error{nil, nil},
	}
	f := newFixture(4, engine, Options{BatchSize: 2})

	result, err := f.orch.TranslateLanguage(context.Background(), "cs", domain.JobCursor{})
	if err != nil {
		t.Fatalf("TranslateLanguage failed: %v", err)
	}

	if !result.Success || !result.Finished {
		t.Errorf("success=%v finished=%v, want both true", result.Success, result.Finished)
	}
	if result.NextOffset != 4 {
		t.Errorf("next_offset=%d, want 4", result.NextOffset)
	}
	if result.Report.TotalProcessed != 4 {
		t.Errorf("total_processed=%d, want 4", result.Report.TotalProcessed)
	}
	if len(result.Report.Warnings) != 0 {
		t.Errorf("unexpected warnings: %+v", result.Report.Warnings)
	}
	if len(f.store.upserts) != 2 {
		t.Errorf("persisted %d bulk upserts, want one per batch", len(f.store.upserts))
	}
	if len(f.stats.calls) != 1 || f.stats.calls[0][0] != "cs" {
		t.Errorf("stats recompute calls: %+v", f.stats.calls)
	}
}

func TestTranslateLanguageSuspendsOnBudgetAndResumes(t *testing.T) {
	engine := &scriptedEngine{
		outputs: []ai.Output{outputFor("key.000", "key.001"), outputFor("key.002", "key.003")},
		errs:    []error{nil, nil},
	}
	f := newFixture(4, engine, Options{BatchSize: 2, JobBudget: 90 * time.Second})
	// One simulated minute passes per clock read, so the budget survives
	// exactly one batch.
	f.orch.WithClock(f.sleeps.sleep, (&steppingClock{t: fixedNow(), step: time.Minute}).Now)

	first, err := f.orch.TranslateLanguage(context.Background(), "cs", domain.JobCursor{})
	if err != nil {
		t.Fatalf("first invocation failed: %v", err)
	}
	if first.Finished {
		t.Fatal("job finished inside the budget, expected suspension")
	}
	if first.NextOffset != 2 || first.Report.TotalProcessed != 2 {
		t.Fatalf("next_offset=%d processed=%d, want 2/2", first.NextOffset, first.Report.TotalProcessed)
	}

	second, err := f.orch.TranslateLanguage(context.Background(), "cs", domain.JobCursor{Offset: first.NextOffset})
	if err != nil {
		t.Fatalf("resumed invocation failed: %v", err)
	}
	if !second.Finished || second.NextOffset != 4 {
		t.Errorf("finished=%v next_offset=%d, want true/4", second.Finished, second.NextOffset)
	}
	if second.Report.TotalProcessed != 2 {
		t.Errorf("resumed run processed %d, want exactly the remaining 2", second.Report.TotalProcessed)
	}
}

func TestTranslateLanguageOutOfRangeOffset(t *testing.T) {
	engine := &scriptedEngine{outputs: []ai.Output{{}}, errs: []error{nil}}
	f := newFixture(4, engine, Options{BatchSize: 2})

	result, err := f.orch.TranslateLanguage(context.Background(), "cs", domain.JobCursor{Offset: 99})
	if err != nil {
		t.Fatalf("TranslateLanguage failed: %v", err)
	}
	if !result.Finished || result.Report.TotalProcessed != 0 {
		t.Errorf("finished=%v processed=%d, want finished with zero work", result.Finished, result.Report.TotalProcessed)
	}
	if engine.calls != 0 {
		t.Errorf("engine called %d times for an out-of-range cursor", engine.calls)
	}
}

func TestTranslateLanguageUnitFailureBecomesWarning(t *testing.T) {
	engine := &scriptedEngine{
		outputs: []ai.Output{{}, outputFor("key.002", "key.003")},
		errs:    []error{errors.NewEngineError("boom", "Gemini", nil), nil},
	}
	f := newFixture(4, engine, Options{BatchSize: 2})
	// One attempt per unit so the first batch exhausts retries immediately.
	f.orch.requester = NewRequester(engine, RetryPolicy{MaxAttempts: 1, BaseDelay: time.Second, RateLimitDelay: time.Second}, zap.NewNop()).WithSleep(noSleep)

	result, err := f.orch.TranslateLanguage(context.Background(), "cs", domain.JobCursor{})
	if err != nil {
		t.Fatalf("a unit failure must not fail the job: %v", err)
	}

	if !result.Finished {
		t.Error("job did not continue past the failed unit")
	}
	if result.Report.TotalProcessed != 4 {
		t.Errorf("total_processed=%d, want 4 (failed unit counts as processed-with-zero-output)", result.Report.TotalProcessed)
	}
	if len(result.Report.Warnings) != 1 {
		t.Fatalf("got %d warnings, want 1: %+v", len(result.Report.Warnings), result.Report.Warnings)
	}
	if result.Report.Warnings[0].Unit != "cs batch 1" {
		t.Errorf("warning unit %q", result.Report.Warnings[0].Unit)
	}
	if len(f.store.upserts) != 1 {
		t.Errorf("persisted %d upserts, want 1 (only the healthy batch)", len(f.store.upserts))
	}
}

func TestTranslateLanguageFatalWhenLanguageUnknown(t *testing.T) {
	engine := &scriptedEngine{outputs: []ai.Output{{}}, errs: []error{nil}}
	f := newFixture(4, engine, Options{BatchSize: 2})

	_, err := f.orch.TranslateLanguage(context.Background(), "xx", domain.JobCursor{})
	if err == nil {
		t.Fatal("expected a fatal job error")
	}
	if !errors.IsFatalJob(err) {
		t.Errorf("error %v is not a FatalJobError", err)
	}
	if engine.calls != 0 {
		t.Error("engine called despite fatal initiating failure")
	}
}

func TestTranslateImportCoversAllActiveTargets(t *testing.T) {
	rows := []domain.SourceEntry{
		{TranslationKey: "term.driver", SourceText: "Driver", Category: "glossary"},
		{TranslationKey: "app.start", SourceText: "Start Game", Category: "ui"},
	}
	// One batch per language; the first language leaves "Driver" untouched.
	engine := &scriptedEngine{
		outputs: []ai.Output{
			{Translations: map[string]string{"term.driver": "Driver", "app.start": "Spustit hru"}},
			{Translations: map[string]string{"term.driver": "Fahrer", "app.start": "Spiel starten"}},
		},
		errs: []error{nil, nil},
	}
	f := newFixture(0, engine, Options{BatchSize: 10, LanguageDelay: 5 * time.Second})

	result, err := f.orch.TranslateImport(context.Background(), rows)
	if err != nil {
		t.Fatalf("TranslateImport failed: %v", err)
	}

	if !result.Success {
		t.Error("import job not successful")
	}
	if len(f.work.imported) != 1 || len(f.work.imported[0]) != 2 {
		t.Errorf("source rows not upserted before translation: %+v", f.work.imported)
	}
	if got := result.Report.Units; len(got) != 2 || got[0] != "cs" || got[1] != "de" {
		t.Errorf("processed units %v, want [cs de]", got)
	}
	if result.Report.TotalProcessed != 4 {
		t.Errorf("total_processed=%d, want 2 rows x 2 languages", result.Report.TotalProcessed)
	}

	var critical *domain.ReviewItem
	for i := range result.Report.ReviewItems {
		if result.Report.ReviewItems[i].Classification == domain.ClassificationCriticalTerm {
			critical = &result.Report.ReviewItems[i]
		}
	}
	if critical == nil {
		t.Fatal("untranslated sensitive term was not flagged")
	}
	if critical.LanguageCode != "cs" || critical.Key != "term.driver" {
		t.Errorf("critical item %+v", *critical)
	}

	// Inter-language delay fires once: between cs and de, not after de.
	var languageSleeps int
	for _, d := range f.sleeps.slept {
		if d == 5*time.Second {
			languageSleeps++
		}
	}
	if languageSleeps != 1 {
		t.Errorf("inter-language delay slept %d times, want 1", languageSleeps)
	}

	if len(f.stats.calls) != 1 || len(f.stats.calls[0]) != 2 {
		t.Errorf("stats recompute calls: %+v", f.stats.calls)
	}
}

func TestTranslateImportInterruptedLanguageIsNotAUnit(t *testing.T) {
	rows := makeEntries(2)
	engine := &scriptedEngine{outputs: []ai.Output{outputFor("key.000")}, errs: []error{nil}}
	f := newFixture(0, engine, Options{BatchSize: 1, BatchDelay: time.Second})
	f.sleeps.err = context.Canceled

	result, err := f.orch.TranslateImport(context.Background(), rows)
	if err != nil {
		t.Fatalf("TranslateImport failed: %v", err)
	}

	if len(result.Report.Units) != 0 {
		t.Errorf("interrupted language listed as a completed unit: %v", result.Report.Units)
	}
	if len(result.Report.Warnings) != 1 || result.Report.Warnings[0].Unit != "cs" {
		t.Fatalf("warnings %+v, want one for cs", result.Report.Warnings)
	}
	if result.Report.TotalProcessed != 1 {
		t.Errorf("total_processed=%d, want 1 (only the batch before the interruption)", result.Report.TotalProcessed)
	}
	// The persisted batch still feeds the stats refresh.
	if len(f.stats.calls) != 1 || f.stats.calls[0][0] != "cs" {
		t.Errorf("stats recompute calls: %+v", f.stats.calls)
	}
}

func TestTranslateImportEmptyRows(t *testing.T) {
	engine := &scriptedEngine{outputs: []ai.Output{{}}, errs: []error{nil}}
	f := newFixture(0, engine, Options{BatchSize: 10})

	result, err := f.orch.TranslateImport(context.Background(), nil)
	if err != nil {
		t.Fatalf("TranslateImport failed: %v", err)
	}
	if !result.Success || result.Report.TotalProcessed != 0 {
		t.Errorf("empty import: %+v", result)
	}
	if len(f.work.imported) != 0 {
		t.Error("empty import touched the store")
	}
}

func TestTranslateLanguageRerunIsIdempotent(t *testing.T) {
	script := func() *scriptedEngine {
		return &scriptedEngine{
			outputs: []ai.Output{outputFor("key.000", "key.001")},
			errs:    []error{nil},
		}
	}

	var payloads [][]domain.TranslationRecord
	for i := 0; i < 2; i++ {
		f := newFixture(2, script(), Options{BatchSize: 2})
		if _, err := f.orch.TranslateLanguage(context.Background(), "cs", domain.JobCursor{}); err != nil {
			t.Fatalf("run %d failed: %v", i, err)
		}
		if len(f.store.upserts) != 1 {
			t.Fatalf("run %d produced %d upserts", i, len(f.store.upserts))
		}
		payloads = append(payloads, f.store.upserts[0])
	}

	byKey := func(records []domain.TranslationRecord) map[string]domain.TranslationRecord {
		m := map[string]domain.TranslationRecord{}
		for _, r := range records {
			m[fmt.Sprintf("%s/%s", r.TranslationKey, r.LanguageCode)] = r
		}
		return m
	}
	first, second := byKey(payloads[0]), byKey(payloads[1])
	if len(first) != len(second) {
		t.Fatalf("payload sizes differ: %d vs %d", len(first), len(second))
	}
	for k, r := range first {
		if second[k] != r {
			t.Errorf("rerun diverged for %s", k)
		}
	}
}
