package pipeline

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/SamoM225/the-bible-translations/internal/domain"
	"github.com/SamoM225/the-bible-translations/internal/prompt"
	pkgerrors "github.com/SamoM225/the-bible-translations/pkg/errors"
)

// WorkSource provides the source-language work set in a stable order.
type WorkSource interface {
	CountSourceEntries(ctx context.Context) (int, error)
	ListSourceEntries(ctx context.Context, offset, limit int) ([]domain.SourceEntry, error)
	UpsertSourceEntries(ctx context.Context, entries []domain.SourceEntry) error
}

// LanguageDirectory resolves language metadata for a job.
type LanguageDirectory interface {
	Language(ctx context.Context, code string) (domain.Language, error)
	ActiveTargets(ctx context.Context) ([]domain.Language, error)
}

// StatsRefresher recomputes derived per-language statistics after writes.
type StatsRefresher interface {
	RecomputeLanguageStats(ctx context.Context, codes []string) error
}

type Options struct {
	BatchSize     int
	BatchDelay    time.Duration
	LanguageDelay time.Duration
	// JobBudget bounds one invocation of the resumable language job.
	// Exceeding it suspends the job between batches instead of aborting it.
	JobBudget time.Duration
}

// Orchestrator drives chunking, requesting, and reconciliation across all
// batches of one job. Unit failures become Report warnings; only a failed
// initiating lookup is fatal for the whole job. It holds no per-job state
// between calls, so distinct jobs may run concurrently.
type Orchestrator struct {
	work       WorkSource
	languages  LanguageDirectory
	requester  *Requester
	reconciler *Reconciler
	stats      StatsRefresher
	opts       Options
	sleep      SleepFunc
	now        func() time.Time
	logger     *zap.Logger
}

func NewOrchestrator(work WorkSource, languages LanguageDirectory, requester *Requester, reconciler *Reconciler, stats StatsRefresher, opts Options, logger *zap.Logger) *Orchestrator {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}
	return &Orchestrator{
		work:       work,
		languages:  languages,
		requester:  requester,
		reconciler: reconciler,
		stats:      stats,
		opts:       opts,
		sleep:      SleepContext,
		now:        time.Now,
		logger:     logger,
	}
}

// WithClock replaces the sleep function and clock. Test hook.
func (o *Orchestrator) WithClock(sleep SleepFunc, now func() time.Time) *Orchestrator {
	o.sleep = sleep
	o.now = now
	return o
}

// LanguageJobResult answers one invocation of the resumable new-language
// job. The caller re-invokes with Offset = NextOffset until Finished.
type LanguageJobResult struct {
	Success    bool          `json:"success"`
	Finished   bool          `json:"finished"`
	NextOffset int           `json:"next_offset"`
	Report     domain.Report `json:"report"`
}

// ImportJobResult answers the single-shot new-import job.
type ImportJobResult struct {
	Success bool          `json:"success"`
	Report  domain.Report `json:"report"`
}

// TranslateLanguage translates all source entries into one target language,
// starting at cursor.Offset. Work already persisted by earlier batches stays
// durable across suspension: reconciliation commits per batch.
func (o *Orchestrator) TranslateLanguage(ctx context.Context, code string, cursor domain.JobCursor) (*LanguageJobResult, error) {
	lang, err := o.languages.Language(ctx, code)
	if err != nil {
		return nil, pkgerrors.NewFatalJobError(
			fmt.Sprintf("cannot resolve target language %q", code), "resolve_language", err)
	}

	systemPrompt, err := prompt.BuildSystem(prompt.SystemVars{LanguageName: lang.Name})
	if err != nil {
		return nil, pkgerrors.NewFatalJobError("cannot build system prompt", "load_prompt", err)
	}

	total, err := o.work.CountSourceEntries(ctx)
	if err != nil {
		return nil, pkgerrors.NewFatalJobError("cannot count the work set", "fetch_work", err)
	}

	if cursor.Offset < 0 {
		cursor.Offset = 0
	}
	// Idempotent at the tail: an out-of-range cursor is a finished job.
	if cursor.Offset >= total {
		return &LanguageJobResult{Success: true, Finished: true, NextOffset: cursor.Offset}, nil
	}

	entries, err := o.work.ListSourceEntries(ctx, cursor.Offset, total-cursor.Offset)
	if err != nil {
		return nil, pkgerrors.NewFatalJobError("cannot fetch the work set", "fetch_work", err)
	}

	batches := Chunk(entries, o.opts.BatchSize)
	started := o.now()
	var report domain.Report
	processed := 0

	o.logger.Info("Language job starting",
		zap.String("language", code),
		zap.Int("offset", cursor.Offset),
		zap.Int("total", total),
		zap.Int("batches", len(batches)),
	)

	for i, batch := range batches {
		if i > 0 && o.opts.BatchDelay > 0 {
			if err := o.sleep(ctx, o.opts.BatchDelay); err != nil {
				break
			}
		}
		if o.opts.JobBudget > 0 && o.now().Sub(started) >= o.opts.JobBudget {
			o.logger.Info("Job budget exhausted, suspending",
				zap.String("language", code),
				zap.Int("processed", processed),
			)
			break
		}

		unit := fmt.Sprintf("%s batch %d", code, i+1)
		done, err := o.processBatch(ctx, batch, lang, systemPrompt, unit, ModeNewLanguage, &report)
		if err != nil {
			// Cancellation mid-batch: suspend, keeping prior batches.
			break
		}
		if done {
			processed += batch.Len()
			report.AddUnit(unit)
		}
	}

	report.TotalProcessed = processed

	if processed > 0 && o.stats != nil {
		if err := o.stats.RecomputeLanguageStats(ctx, []string{code}); err != nil {
			o.logger.Warn("Failed to refresh language stats", zap.String("language", code), zap.Error(err))
		}
	}

	nextOffset := cursor.Offset + processed
	return &LanguageJobResult{
		Success:    true,
		Finished:   nextOffset >= total,
		NextOffset: nextOffset,
		Report:     report,
	}, nil
}

// TranslateImport upserts freshly imported source rows and translates them
// into every active target language in one call. Not resumable.
func (o *Orchestrator) TranslateImport(ctx context.Context, rows []domain.SourceEntry) (*ImportJobResult, error) {
	if len(rows) == 0 {
		return &ImportJobResult{Success: true}, nil
	}

	if err := o.work.UpsertSourceEntries(ctx, rows); err != nil {
		return nil, pkgerrors.NewFatalJobError("cannot persist imported rows", "fetch_work", err)
	}

	targets, err := o.languages.ActiveTargets(ctx)
	if err != nil {
		return nil, pkgerrors.NewFatalJobError("cannot list active target languages", "fetch_work", err)
	}

	var report domain.Report
	codes := make([]string, 0, len(targets))

	o.logger.Info("Import job starting",
		zap.Int("rows", len(rows)),
		zap.Int("languages", len(targets)),
	)

	for li, lang := range targets {
		if li > 0 && o.opts.LanguageDelay > 0 {
			if err := o.sleep(ctx, o.opts.LanguageDelay); err != nil {
				report.AddWarning(lang.Code, "job cancelled before this language was processed")
				break
			}
		}

		systemPrompt, err := prompt.BuildSystem(prompt.SystemVars{LanguageName: lang.Name})
		if err != nil {
			return nil, pkgerrors.NewFatalJobError("cannot build system prompt", "load_prompt", err)
		}

		batches := Chunk(rows, o.opts.BatchSize)
		cancelled := false
		for bi, batch := range batches {
			if bi > 0 && o.opts.BatchDelay > 0 {
				if err := o.sleep(ctx, o.opts.BatchDelay); err != nil {
					cancelled = true
					break
				}
			}

			unit := fmt.Sprintf("%s batch %d", lang.Code, bi+1)
			done, err := o.processBatch(ctx, batch, lang, systemPrompt, unit, ModeImport, &report)
			if err != nil {
				cancelled = true
				break
			}
			if done {
				report.TotalProcessed += batch.Len()
			}
		}

		// Earlier batches may have persisted, so the stats refresh still
		// covers an interrupted language; it just is not a completed unit.
		codes = append(codes, lang.Code)
		if cancelled {
			report.AddWarning(lang.Code, "job cancelled while this language was being processed")
			break
		}
		report.AddUnit(lang.Code)
	}

	if len(codes) > 0 && o.stats != nil {
		if err := o.stats.RecomputeLanguageStats(ctx, codes); err != nil {
			o.logger.Warn("Failed to refresh language stats", zap.Error(err))
		}
	}

	return &ImportJobResult{Success: true, Report: report}, nil
}

// processBatch runs Requesting → Reconciling for one batch. Returns
// done=true when the batch counts as processed (including
// processed-with-zero-output after retry exhaustion) and a non-nil error
// only for context cancellation.
func (o *Orchestrator) processBatch(ctx context.Context, batch domain.Batch, lang domain.Language, systemPrompt, unit string, mode Mode, report *domain.Report) (bool, error) {
	entriesJSON, err := prompt.MarshalEntries(batch.KeyTexts())
	if err != nil {
		report.AddWarning(unit, fmt.Sprintf("cannot encode batch entries: %v", err))
		return true, nil
	}
	instruction, err := prompt.BuildTranslate(prompt.TranslateVars{
		LanguageName: lang.Name,
		LanguageCode: lang.Code,
		KeyCount:     batch.Len(),
		EntriesJSON:  entriesJSON,
	})
	if err != nil {
		report.AddWarning(unit, fmt.Sprintf("cannot build instruction prompt: %v", err))
		return true, nil
	}

	output, err := o.requester.Request(ctx, systemPrompt, instruction)
	if err != nil {
		if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
			return false, err
		}
		report.AddWarning(unit, fmt.Sprintf("translation request failed after retries: %v", err))
		return true, nil
	}

	reviews, err := o.reconciler.Reconcile(ctx, batch, output, lang.Code, mode)
	report.AddReviewItems(reviews...)
	if err != nil {
		if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
			return false, err
		}
		report.AddWarning(unit, fmt.Sprintf("persistence failed for this batch: %v", err))
	}
	return true, nil
}
