// Package orchestrator runs external recognition and rewrite jobs on a
// worker pool and applies their results to stored questions. Results are
// applied through the same versioned-write discipline as user
// transitions, keyed by a per-question epoch so stale or re-delivered
// results are discarded instead of applied twice.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shangji-io/shangji/internal/async"
	"github.com/shangji-io/shangji/internal/domain/question"
	"github.com/shangji-io/shangji/internal/recognition"
	"github.com/shangji-io/shangji/internal/repository"
	"github.com/shangji-io/shangji/internal/rewrite"
)

// Options tune job execution.
type Options struct {
	PollInterval   time.Duration
	PollTimeout    time.Duration
	MaxAttempts    int
	BackoffBase    time.Duration
	PromptTemplate string
	PromptVersion  int
}

func (o *Options) fill() {
	if o.PollInterval <= 0 {
		o.PollInterval = 5 * time.Second
	}
	if o.PollTimeout <= 0 {
		o.PollTimeout = 10 * time.Minute
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.BackoffBase <= 0 {
		o.BackoffBase = time.Second
	}
}

const applyRetries = 5

// Orchestrator owns the worker pool and all external job bookkeeping.
// It implements question.JobLauncher.
type Orchestrator struct {
	questions  question.QuestionRepository
	recognizer recognition.Client
	rewriter   rewrite.Client
	pool       *async.Pool
	opts       Options
	logger     *slog.Logger
}

// New creates an orchestrator with its own started worker pool.
func New(
	questions question.QuestionRepository,
	recognizer recognition.Client,
	rewriter rewrite.Client,
	logger *slog.Logger,
	opts Options,
	poolOpts ...async.Option,
) *Orchestrator {
	opts.fill()
	return &Orchestrator{
		questions:  questions,
		recognizer: recognizer,
		rewriter:   rewriter,
		pool:       async.NewPool(logger, poolOpts...),
		opts:       opts,
		logger:     logger,
	}
}

// Shutdown drains in-flight jobs.
func (o *Orchestrator) Shutdown(ctx context.Context) {
	o.pool.Shutdown(ctx)
}

// LaunchRecognition enqueues a recognition job and returns immediately.
func (o *Orchestrator) LaunchRecognition(id string, epoch int64, images []string) {
	o.pool.Enqueue(async.Job{
		Name: "recognition",
		Run: func(ctx context.Context) {
			o.runRecognition(ctx, id, epoch, images)
		},
	})
}

// LaunchRewrite enqueues a five-variant rewrite job.
func (o *Orchestrator) LaunchRewrite(id string, epoch int64, questionText, answerText string) {
	o.pool.Enqueue(async.Job{
		Name: "rewrite",
		Run: func(ctx context.Context) {
			o.runRewrite(ctx, id, epoch, questionText, answerText)
		},
	})
}

// LaunchRewriteSlot enqueues a single-slot regeneration job.
func (o *Orchestrator) LaunchRewriteSlot(id string, epoch int64, index int, questionText, answerText string) {
	o.pool.Enqueue(async.Job{
		Name: "rewrite_slot",
		Run: func(ctx context.Context) {
			o.runRewriteSlot(ctx, id, epoch, index, questionText, answerText)
		},
	})
}

func (o *Orchestrator) runRecognition(ctx context.Context, id string, epoch int64, images []string) {
	log := o.logger.With("question_id", id, "kind", "recognition", "epoch", epoch)

	handle, err := o.submitRecognition(ctx, images, log)
	if err != nil {
		log.Warn("recognition submit gave up", "error", err)
		o.apply(ctx, id, log, func(q *question.Question, now time.Time) error {
			return question.ApplyRecognitionFailure(q, epoch, now)
		})
		return
	}

	o.apply(ctx, id, log, func(q *question.Question, now time.Time) error {
		if epoch != q.RecognitionEpoch {
			return question.ErrStaleResult
		}
		q.RecognitionHandle = handle
		q.UpdatedAt = now
		return nil
	})

	res, err := o.pollRecognition(ctx, handle, log)
	if err != nil || res.Status != recognition.JobDone {
		log.Warn("recognition job did not complete", "error", err, "status", res.Status)
		o.apply(ctx, id, log, func(q *question.Question, now time.Time) error {
			return question.ApplyRecognitionFailure(q, epoch, now)
		})
		return
	}

	o.apply(ctx, id, log, func(q *question.Question, now time.Time) error {
		return question.ApplyRecognitionResult(q, epoch, res.Question, res.Answer, now)
	})
	log.Info("recognition result applied", "handle", handle)
}

func (o *Orchestrator) runRewrite(ctx context.Context, id string, epoch int64, questionText, answerText string) {
	log := o.logger.With("question_id", id, "kind", "rewrite", "epoch", epoch)

	// Flip ocr_approved -> rewrite_generating before talking to the
	// service. A stale epoch here means a newer launch superseded this
	// job; drop it.
	if !o.apply(ctx, id, log, func(q *question.Question, now time.Time) error {
		return question.BeginRewriteGeneration(q, epoch, now)
	}) {
		return
	}

	fail := func() {
		o.apply(ctx, id, log, func(q *question.Question, now time.Time) error {
			return question.ApplyRewriteFailure(q, epoch, now)
		})
	}

	handle, err := o.submitRewrite(ctx, rewrite.Request{
		Question:       questionText,
		Answer:         answerText,
		PromptTemplate: o.opts.PromptTemplate,
		PromptVersion:  o.opts.PromptVersion,
		Count:          rewrite.MaxVariants,
	}, log)
	if err != nil {
		log.Warn("rewrite submit gave up", "error", err)
		fail()
		return
	}

	o.apply(ctx, id, log, func(q *question.Question, now time.Time) error {
		if epoch != q.RewriteEpoch {
			return question.ErrStaleResult
		}
		q.RewriteHandle = handle
		q.UpdatedAt = now
		return nil
	})

	res, err := o.pollRewrite(ctx, handle, log)
	if err != nil || res.Status != rewrite.JobDone {
		log.Warn("rewrite job did not complete", "error", err, "status", res.Status)
		fail()
		return
	}

	pairs := make([]question.RewritePair, 0, len(res.Variants))
	for _, v := range res.Variants {
		pairs = append(pairs, question.RewritePair{Question: v.Question, Answer: v.Answer})
	}
	o.apply(ctx, id, log, func(q *question.Question, now time.Time) error {
		return question.ApplyRewriteResult(q, epoch, pairs, o.opts.PromptVersion, now)
	})
	log.Info("rewrite result applied", "handle", handle, "variants", len(pairs))
}

func (o *Orchestrator) runRewriteSlot(ctx context.Context, id string, epoch int64, index int, questionText, answerText string) {
	log := o.logger.With("question_id", id, "kind", "rewrite_slot", "epoch", epoch, "slot", index)

	fail := func() {
		o.apply(ctx, id, log, func(q *question.Question, now time.Time) error {
			return question.ApplyRewriteSlotFailure(q, epoch, index, now)
		})
	}

	handle, err := o.submitRewrite(ctx, rewrite.Request{
		Question:       questionText,
		Answer:         answerText,
		PromptTemplate: o.opts.PromptTemplate,
		PromptVersion:  o.opts.PromptVersion,
		Count:          1,
	}, log)
	if err != nil {
		log.Warn("rewrite submit gave up", "error", err)
		fail()
		return
	}

	res, err := o.pollRewrite(ctx, handle, log)
	if err != nil || res.Status != rewrite.JobDone {
		log.Warn("rewrite job did not complete", "error", err, "status", res.Status)
		fail()
		return
	}

	var pair question.RewritePair
	if len(res.Variants) > 0 {
		pair = question.RewritePair{Question: res.Variants[0].Question, Answer: res.Variants[0].Answer}
	}
	o.apply(ctx, id, log, func(q *question.Question, now time.Time) error {
		return question.ApplyRewriteSlotResult(q, epoch, index, pair, now)
	})
	log.Info("rewrite slot result applied", "handle", handle)
}

func (o *Orchestrator) submitRecognition(ctx context.Context, images []string, log *slog.Logger) (string, error) {
	var handle string
	err := o.withRetry(ctx, log, "submit", func() error {
		var err error
		handle, err = o.recognizer.Submit(ctx, images)
		return err
	})
	return handle, err
}

func (o *Orchestrator) submitRewrite(ctx context.Context, req rewrite.Request, log *slog.Logger) (string, error) {
	var handle string
	err := o.withRetry(ctx, log, "submit", func() error {
		var err error
		handle, err = o.rewriter.Submit(ctx, req)
		return err
	})
	return handle, err
}

func (o *Orchestrator) pollRecognition(ctx context.Context, handle string, log *slog.Logger) (recognition.Result, error) {
	var res recognition.Result
	err := o.pollUntilTerminal(ctx, log, func() (bool, error) {
		var err error
		res, err = o.recognizer.Poll(ctx, handle)
		if err != nil {
			return false, err
		}
		return res.Status != recognition.JobPending, nil
	})
	return res, err
}

func (o *Orchestrator) pollRewrite(ctx context.Context, handle string, log *slog.Logger) (rewrite.Result, error) {
	var res rewrite.Result
	err := o.pollUntilTerminal(ctx, log, func() (bool, error) {
		var err error
		res, err = o.rewriter.Poll(ctx, handle)
		if err != nil {
			return false, err
		}
		return res.Status != rewrite.JobPending, nil
	})
	return res, err
}

// withRetry runs fn with exponential backoff. Unconfigured clients
// short-circuit: there is nothing to retry against.
func (o *Orchestrator) withRetry(ctx context.Context, log *slog.Logger, op string, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt < o.opts.MaxAttempts; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, o.backoff(attempt)); err != nil {
				return err
			}
		}
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if errors.Is(lastErr, recognition.ErrUnconfigured) || errors.Is(lastErr, rewrite.ErrUnconfigured) {
			return lastErr
		}
		log.Warn("external call failed", "op", op, "attempt", attempt+1, "error", lastErr)
	}
	return fmt.Errorf("%s failed after %d attempts: %w", op, o.opts.MaxAttempts, lastErr)
}

// pollUntilTerminal polls at the configured interval until the job
// reaches a terminal state, the transport budget is exhausted, or the
// overall timeout elapses.
func (o *Orchestrator) pollUntilTerminal(ctx context.Context, log *slog.Logger, poll func() (bool, error)) error {
	deadline := time.Now().Add(o.opts.PollTimeout)
	failures := 0
	for {
		terminal, err := poll()
		if err != nil {
			if errors.Is(err, recognition.ErrUnconfigured) || errors.Is(err, rewrite.ErrUnconfigured) {
				return err
			}
			failures++
			if failures >= o.opts.MaxAttempts {
				return fmt.Errorf("poll failed after %d attempts: %w", failures, err)
			}
			log.Warn("poll failed", "attempt", failures, "error", err)
			if err := sleepCtx(ctx, o.backoff(failures)); err != nil {
				return err
			}
			continue
		}
		failures = 0
		if terminal {
			return nil
		}
		if time.Now().After(deadline) {
			return errors.New("poll timeout exceeded")
		}
		if err := sleepCtx(ctx, o.opts.PollInterval); err != nil {
			return err
		}
	}
}

// apply performs a load-mutate-commit cycle with optimistic retries.
// Returns false when the mutation was dropped as stale or the question is
// gone; both are normal ends for a superseded job.
func (o *Orchestrator) apply(ctx context.Context, id string, log *slog.Logger, mutate func(q *question.Question, now time.Time) error) bool {
	for attempt := 0; attempt < applyRetries; attempt++ {
		q, err := o.questions.Get(ctx, id)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				log.Info("question gone, result dropped")
				return false
			}
			log.Error("loading question for result application", "error", err)
			return false
		}

		updated := *q
		if err := mutate(&updated, time.Now()); err != nil {
			if errors.Is(err, question.ErrStaleResult) {
				log.Info("stale result dropped", "status", q.Status)
				return false
			}
			log.Error("applying job result", "error", err)
			return false
		}

		updated.Version = q.Version + 1
		err = o.questions.Update(ctx, &updated, q.Version)
		if err == nil {
			return true
		}
		if errors.Is(err, repository.ErrConflict) {
			// Lost the race to a concurrent transition; reload and retry.
			continue
		}
		log.Error("committing job result", "error", err)
		return false
	}
	log.Error("result application kept losing version races")
	return false
}

func (o *Orchestrator) backoff(attempt int) time.Duration {
	d := o.opts.BackoffBase << uint(attempt-1)
	if max := 30 * time.Second; d > max {
		d = max
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
