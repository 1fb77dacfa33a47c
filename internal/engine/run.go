package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/leapstack-labs/leapcheck/internal/resultlog"
	"github.com/leapstack-labs/leapcheck/internal/state"
	"github.com/leapstack-labs/leapcheck/pkg/core"
	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/errgroup"
)

// RunForTask executes every rule registered for task and appends each
// outcome to the task's result log, which is truncated first. Results are
// returned in completion order.
//
// The returned error reports infrastructure problems only: an unknown task
// in strict mode or an unwritable result log. Rule failures are results.
func (e *Engine) RunForTask(ctx context.Context, rc *core.RunContext, task string) ([]core.RuleResult, error) {
	if rc == nil {
		return nil, errors.New("run context is required")
	}

	rules := e.registry.RulesFor(task)
	if len(rules) == 0 && e.strict {
		return nil, fmt.Errorf("%w: %s", core.ErrNoRulesForTask, task)
	}

	log, err := resultlog.Create(rc, task)
	if err != nil {
		return nil, err
	}

	logger := e.logger.With(slog.String("run_id", rc.RunID()), slog.String("task", task))
	if len(rules) == 0 {
		logger.Warn("no rules registered for task")
		return []core.RuleResult{}, log.Close()
	}

	logger.Info("running task", slog.Int("rules", len(rules)), slog.Int("workers", e.workers))
	startedAt := e.now()
	start := time.Now()

	var (
		mu      sync.Mutex
		results = make([]core.RuleResult, 0, len(rules))
		logErrs []error
		spent   time.Duration
	)

	g := new(errgroup.Group)
	g.SetLimit(e.workers)
	for _, rule := range rules {
		g.Go(func() error {
			t0 := time.Now()
			res := e.execute(ctx, rc, rule)
			elapsed := time.Since(t0)
			res.ExecutedAt = e.now()

			mu.Lock()
			results = append(results, res)
			spent += elapsed
			if err := log.Append(res); err != nil {
				logErrs = append(logErrs, err)
			}
			mu.Unlock()

			e.metrics.RecordExecution(task, res.Success, res.Severity.String(), elapsed)
			logger.Debug("rule executed",
				slog.String("rule_id", res.RuleID),
				slog.String("dataset", res.Dataset),
				slog.Bool("success", res.Success),
				slog.Duration("duration", elapsed))
			return nil
		})
	}
	_ = g.Wait()

	closeErr := log.Close()

	failed := 0
	for _, r := range results {
		if !r.Success {
			failed++
		}
	}
	logger.Info("task finished",
		slog.Int("total", len(results)),
		slog.Int("failed", failed),
		slog.Duration("avg", spent/time.Duration(len(results))),
		slog.Duration("elapsed", time.Since(start)),
		slog.String("log", log.Path()))

	runErr := errors.Join(append(logErrs, closeErr)...)
	if runErr != nil {
		runErr = fmt.Errorf("failed to write result log: %w", runErr)
	}
	e.record(ctx, logger, state.TaskRun{
		RunID:       rc.RunID(),
		Task:        task,
		StartedAt:   startedAt,
		CompletedAt: e.now(),
		Total:       len(results),
		Failed:      failed,
		Status:      state.StatusFor(failed, runErr),
	})
	return results, runErr
}

func (e *Engine) record(ctx context.Context, logger *slog.Logger, run state.TaskRun) {
	if e.state == nil {
		return
	}
	// history must be written even when the run was cancelled
	if _, err := e.state.RecordTaskRun(context.WithoutCancel(ctx), run); err != nil {
		logger.Warn("failed to record task run", slog.String("error", err.Error()))
	}
}

// execute runs one rule with retries and panic recovery.
func (e *Engine) execute(ctx context.Context, rc *core.RunContext, rule core.Rule) (res core.RuleResult) {
	attempts := 0
	defer func() {
		if p := recover(); p != nil {
			res = failure(rule, attempts, fmt.Errorf("panic: %v", p))
		}
	}()

	if err := ctx.Err(); err != nil {
		return failure(rule, 0, err)
	}

	err := retry.Do(ctx, e.backoff(), func(ctx context.Context) error {
		attempts++
		if attempts > 1 {
			e.metrics.RecordRetry(rule.Meta().Task)
			e.logger.Debug("retrying rule",
				slog.String("task", rule.Meta().Task),
				slog.String("rule_id", rule.Meta().RuleID),
				slog.Int("attempt", attempts))
		}
		r, err := e.attempt(ctx, rc, rule)
		if err != nil {
			if IsTransient(err) {
				return retry.RetryableError(err)
			}
			return err
		}
		res = r
		return nil
	})
	if err != nil {
		return failure(rule, attempts, err)
	}
	return res
}

func (e *Engine) backoff() retry.Backoff {
	b := retry.NewExponential(e.retry.BaseDelay)
	b = retry.WithJitterPercent(20, b)
	b = retry.WithCappedDuration(e.retry.MaxDelay, b)
	return retry.WithMaxRetries(uint64(e.retry.MaxAttempts-1), b)
}

// attempt checks out a connection, runs the empty-table probe and then the
// rule itself.
func (e *Engine) attempt(ctx context.Context, rc *core.RunContext, rule core.Rule) (core.RuleResult, error) {
	conn, err := e.adapter.Conn(ctx)
	if err != nil {
		return core.RuleResult{}, err
	}
	defer func() { _ = conn.Close() }()

	if c, ok := rule.(core.CountingRule); ok {
		if stmt, probe := c.CountQuery(rc); probe {
			row, err := conn.QueryOne(ctx, stmt)
			if err != nil {
				return core.RuleResult{}, fmt.Errorf("row count probe: %w", err)
			}
			if n, ok := row.Int64("total_count"); ok && n == 0 {
				return emptyResult(rule), nil
			}
		}
	}

	switch r := rule.(type) {
	case core.RowSetRule:
		stmt, err := r.Query(rc)
		if err != nil {
			return core.RuleResult{}, err
		}
		rows, err := conn.QueryAll(ctx, stmt, r.RowLimit())
		if err != nil {
			return core.RuleResult{}, err
		}
		if len(rows) == 0 {
			return emptyResult(rule), nil
		}
		return r.EvaluateRows(rows, rc), nil
	case core.QueryRule:
		stmt, err := r.Query(rc)
		if err != nil {
			return core.RuleResult{}, err
		}
		row, err := conn.QueryOne(ctx, stmt)
		if err != nil {
			return core.RuleResult{}, err
		}
		return r.Evaluate(row, rc), nil
	}
	return core.RuleResult{}, fmt.Errorf("rule %s is not executable", rule.Meta().RuleID)
}

func emptyResult(rule core.Rule) core.RuleResult {
	meta := rule.Meta()
	res := core.NewResult(meta, rule.Column())
	res.Success = true
	res.Severity = core.SeverityInfo
	res.Observed = int64(0)
	res.Message = fmt.Sprintf("table %s is empty; check skipped", meta.Dataset())
	return res
}

func failure(rule core.Rule, attempts int, err error) core.RuleResult {
	meta := rule.Meta()
	res := core.NewResult(meta, rule.Column())
	res.Success = false
	res.Severity = core.SeverityError
	res.Message = (&core.RuleExecutionError{
		Task:     meta.Task,
		RuleID:   meta.RuleID,
		Attempts: attempts,
		Err:      err,
	}).Error()
	return res
}
