package orchestrator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shangji-io/shangji/internal/async"
	"github.com/shangji-io/shangji/internal/domain/question"
	"github.com/shangji-io/shangji/internal/recognition"
	"github.com/shangji-io/shangji/internal/rewrite"
	"github.com/shangji-io/shangji/internal/sqlite"
	"github.com/stretchr/testify/require"
)

type stubRecognizer struct {
	submitErr error
	result    recognition.Result
	pollErr   error
}

func (s *stubRecognizer) Submit(ctx context.Context, images []string) (string, error) {
	if s.submitErr != nil {
		return "", s.submitErr
	}
	return "recog-1", nil
}

func (s *stubRecognizer) Poll(ctx context.Context, handle string) (recognition.Result, error) {
	if s.pollErr != nil {
		return recognition.Result{}, s.pollErr
	}
	return s.result, nil
}

type stubRewriter struct {
	submitErr error
	result    rewrite.Result
}

func (s *stubRewriter) Submit(ctx context.Context, req rewrite.Request) (string, error) {
	if s.submitErr != nil {
		return "", s.submitErr
	}
	return "rw-1", nil
}

func (s *stubRewriter) Poll(ctx context.Context, handle string) (rewrite.Result, error) {
	return s.result, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fastOptions() Options {
	return Options{
		PollInterval:   time.Millisecond,
		PollTimeout:    2 * time.Second,
		MaxAttempts:    2,
		BackoffBase:    time.Millisecond,
		PromptTemplate: "rewrite {question} / {answer}",
		PromptVersion:  3,
	}
}

func newTestRepo(t *testing.T) *sqlite.QuestionRepository {
	t.Helper()
	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	require.NoError(t, db.RunMigrations())
	t.Cleanup(func() { db.Close() })
	return sqlite.NewQuestionRepository(db)
}

func seedQuestion(t *testing.T, repo *sqlite.QuestionRepository, status question.Status, mutate func(*question.Question)) *question.Question {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Second)
	q := &question.Question{
		ID:           uuid.NewString(),
		Subject:      "数学",
		Grade:        "高中",
		QuestionType: "计算题",
		Source:       "HLE",
		Images:       []string{"img/1.png"},
		Status:       status,
		OCRReview:    question.ReviewRecord{Status: question.ReviewPending},
		CreatedAt:    now,
		UpdatedAt:    now,
		Version:      1,
	}
	for i := range q.Rewrites {
		q.Rewrites[i].Review = question.ReviewRecord{Status: question.ReviewPending}
	}
	if mutate != nil {
		mutate(q)
	}
	require.NoError(t, repo.Create(context.Background(), q))
	return q
}

func drain(o *Orchestrator) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	o.Shutdown(ctx)
}

func TestOrchestrator_RecognitionSuccess(t *testing.T) {
	repo := newTestRepo(t)
	q := seedQuestion(t, repo, question.StatusOCREditing, func(q *question.Question) {
		q.RecognitionEpoch = 1
	})

	recog := &stubRecognizer{result: recognition.Result{Status: recognition.JobDone, Question: "识别题目", Answer: "识别答案"}}
	o := New(repo, recog, &stubRewriter{}, testLogger(), fastOptions(), async.WithWorkers(1))

	o.LaunchRecognition(q.ID, 1, q.Images)
	drain(o)

	got, err := repo.Get(context.Background(), q.ID)
	require.NoError(t, err)
	require.Equal(t, "识别题目", got.OCRRawQuestion)
	require.Equal(t, "识别答案", got.OCRRawAnswer)
	require.Equal(t, "识别题目", got.DraftQuestion)
	require.Equal(t, question.StatusOCREditing, got.Status)
	require.Equal(t, int64(1), got.RecognitionAppliedEpoch)
	require.Equal(t, "recog-1", got.RecognitionHandle)
}

func TestOrchestrator_RecognitionRedeliveryDiscarded(t *testing.T) {
	repo := newTestRepo(t)
	q := seedQuestion(t, repo, question.StatusOCREditing, func(q *question.Question) {
		q.RecognitionEpoch = 1
	})

	recog := &stubRecognizer{result: recognition.Result{Status: recognition.JobDone, Question: "first", Answer: "a"}}
	o := New(repo, recog, &stubRewriter{}, testLogger(), fastOptions(), async.WithWorkers(1))

	o.LaunchRecognition(q.ID, 1, q.Images)
	drain(o)

	// Same epoch delivered again with different content: must be dropped.
	recog.result = recognition.Result{Status: recognition.JobDone, Question: "second", Answer: "b"}
	o2 := New(repo, recog, &stubRewriter{}, testLogger(), fastOptions(), async.WithWorkers(1))
	o2.LaunchRecognition(q.ID, 1, q.Images)
	drain(o2)

	got, err := repo.Get(context.Background(), q.ID)
	require.NoError(t, err)
	require.Equal(t, "first", got.OCRRawQuestion)
}

func TestOrchestrator_RecognitionUnconfiguredPlaceholder(t *testing.T) {
	repo := newTestRepo(t)
	q := seedQuestion(t, repo, question.StatusOCREditing, func(q *question.Question) {
		q.RecognitionEpoch = 1
	})

	recog := &stubRecognizer{submitErr: recognition.ErrUnconfigured}
	o := New(repo, recog, &stubRewriter{}, testLogger(), fastOptions(), async.WithWorkers(1))

	o.LaunchRecognition(q.ID, 1, q.Images)
	drain(o)

	got, err := repo.Get(context.Background(), q.ID)
	require.NoError(t, err)
	require.Equal(t, question.PlaceholderManualEntry, got.OCRRawQuestion)
	require.Equal(t, question.PlaceholderManualEntry, got.DraftQuestion)
	require.Equal(t, question.PlaceholderMissingAnswer, got.DraftAnswer)
	require.Equal(t, question.StatusOCREditing, got.Status)
}

func TestOrchestrator_RecognitionRetriesExhausted(t *testing.T) {
	repo := newTestRepo(t)
	q := seedQuestion(t, repo, question.StatusOCREditing, func(q *question.Question) {
		q.RecognitionEpoch = 1
	})

	recog := &stubRecognizer{pollErr: errors.New("connection reset")}
	o := New(repo, recog, &stubRewriter{}, testLogger(), fastOptions(), async.WithWorkers(1))

	o.LaunchRecognition(q.ID, 1, q.Images)
	drain(o)

	got, err := repo.Get(context.Background(), q.ID)
	require.NoError(t, err)
	// Never stuck: placeholder content and the question stays workable.
	require.Equal(t, question.PlaceholderManualEntry, got.OCRRawQuestion)
	require.Equal(t, int64(1), got.RecognitionAppliedEpoch)
}

func TestOrchestrator_RewriteSuccess(t *testing.T) {
	repo := newTestRepo(t)
	q := seedQuestion(t, repo, question.StatusOCRApproved, func(q *question.Question) {
		q.AcceptedQuestion = "原题"
		q.AcceptedAnswer = "答案"
		q.RewriteEpoch = 1
	})

	rw := &stubRewriter{result: rewrite.Result{
		Status: rewrite.JobDone,
		Variants: []rewrite.Variant{
			{Question: "变式1", Answer: "答1"},
			{Question: "变式2", Answer: "答2"},
			{Question: "变式3", Answer: "答3"},
		},
	}}
	o := New(repo, &stubRecognizer{}, rw, testLogger(), fastOptions(), async.WithWorkers(1))

	o.LaunchRewrite(q.ID, 1, q.AcceptedQuestion, q.AcceptedAnswer)
	drain(o)

	got, err := repo.Get(context.Background(), q.ID)
	require.NoError(t, err)
	require.Equal(t, question.StatusRewriteEditing, got.Status)
	require.Equal(t, "变式1", got.Rewrites[0].DraftQuestion)
	require.Equal(t, "变式3", got.Rewrites[2].DraftQuestion)
	// Missing candidates become explicit manual-authoring markers.
	require.Equal(t, question.PlaceholderGenerationFailed, got.Rewrites[3].DraftQuestion)
	require.Equal(t, question.PlaceholderGenerationFailed, got.Rewrites[4].DraftQuestion)
	require.Equal(t, 3, got.PromptVersion)
	require.Equal(t, int64(1), got.RewriteAppliedEpoch)
}

func TestOrchestrator_RewriteFailurePlaceholders(t *testing.T) {
	repo := newTestRepo(t)
	q := seedQuestion(t, repo, question.StatusOCRApproved, func(q *question.Question) {
		q.RewriteEpoch = 1
	})

	rw := &stubRewriter{submitErr: errors.New("upstream 500")}
	o := New(repo, &stubRecognizer{}, rw, testLogger(), fastOptions(), async.WithWorkers(1))

	o.LaunchRewrite(q.ID, 1, "q", "a")
	drain(o)

	got, err := repo.Get(context.Background(), q.ID)
	require.NoError(t, err)
	require.Equal(t, question.StatusRewriteEditing, got.Status)
	for i := range got.Rewrites {
		require.Equal(t, question.PlaceholderServiceFailed, got.Rewrites[i].DraftQuestion)
	}
}

func TestOrchestrator_RewriteStaleEpochDropped(t *testing.T) {
	repo := newTestRepo(t)
	q := seedQuestion(t, repo, question.StatusOCRApproved, func(q *question.Question) {
		q.RewriteEpoch = 2 // a newer launch superseded epoch 1
	})

	rw := &stubRewriter{result: rewrite.Result{Status: rewrite.JobDone, Variants: []rewrite.Variant{{Question: "x"}}}}
	o := New(repo, &stubRecognizer{}, rw, testLogger(), fastOptions(), async.WithWorkers(1))

	o.LaunchRewrite(q.ID, 1, "q", "a")
	drain(o)

	got, err := repo.Get(context.Background(), q.ID)
	require.NoError(t, err)
	require.Equal(t, question.StatusOCRApproved, got.Status)
	require.Empty(t, got.Rewrites[0].DraftQuestion)
}

func TestOrchestrator_RewriteSlotRegeneration(t *testing.T) {
	repo := newTestRepo(t)
	q := seedQuestion(t, repo, question.StatusRewriteEditing, func(q *question.Question) {
		q.RewriteEpoch = 2
		q.RewriteAppliedEpoch = 1
		for i := range q.Rewrites {
			q.Rewrites[i].DraftQuestion = "旧稿"
		}
	})

	rw := &stubRewriter{result: rewrite.Result{Status: rewrite.JobDone, Variants: []rewrite.Variant{{Question: "新变式", Answer: "新答案"}}}}
	o := New(repo, &stubRecognizer{}, rw, testLogger(), fastOptions(), async.WithWorkers(1))

	o.LaunchRewriteSlot(q.ID, 2, 3, "q", "a")
	drain(o)

	got, err := repo.Get(context.Background(), q.ID)
	require.NoError(t, err)
	require.Equal(t, question.StatusRewriteEditing, got.Status)
	require.Equal(t, "新变式", got.Rewrites[2].DraftQuestion)
	// Only the regenerated slot changes.
	require.Equal(t, "旧稿", got.Rewrites[0].DraftQuestion)
	require.Equal(t, "旧稿", got.Rewrites[4].DraftQuestion)
}
