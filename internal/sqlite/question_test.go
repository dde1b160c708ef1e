package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shangji-io/shangji/internal/domain/question"
	"github.com/shangji-io/shangji/internal/repository"
	"github.com/stretchr/testify/require"
)

func newTestQuestion() *question.Question {
	now := time.Now().UTC().Truncate(time.Second)
	q := &question.Question{
		ID:           uuid.NewString(),
		Subject:      "数学",
		Grade:        "高中",
		QuestionType: "计算题",
		Source:       "HLE",
		Tags:         []string{"代数"},
		Images:       []string{"img/1.png"},
		Status:       question.StatusNew,
		OCRReview:    question.ReviewRecord{Status: question.ReviewPending},
		CreatedAt:    now,
		UpdatedAt:    now,
		Version:      1,
	}
	for i := range q.Rewrites {
		q.Rewrites[i].Review = question.ReviewRecord{Status: question.ReviewPending}
	}
	return q
}

func TestQuestionRepository_CreateAndGet(t *testing.T) {
	db := NewTestDB(t)
	repo := NewQuestionRepository(db)
	ctx := context.Background()

	q := newTestQuestion()
	q.Rewrites[2].DraftQuestion = "variant 3"
	require.NoError(t, repo.Create(ctx, q))

	got, err := repo.Get(ctx, q.ID)
	require.NoError(t, err)
	require.Equal(t, q.ID, got.ID)
	require.Equal(t, "数学", got.Subject)
	require.Equal(t, []string{"代数"}, got.Tags)
	require.Equal(t, []string{"img/1.png"}, got.Images)
	require.Equal(t, question.StatusNew, got.Status)
	require.Equal(t, "variant 3", got.Rewrites[2].DraftQuestion)
	require.Equal(t, question.ReviewPending, got.Rewrites[0].Review.Status)
	require.Equal(t, int64(1), got.Version)
}

func TestQuestionRepository_GetNotFound(t *testing.T) {
	db := NewTestDB(t)
	repo := NewQuestionRepository(db)

	_, err := repo.Get(context.Background(), "missing")
	require.ErrorIs(t, err, repository.ErrNotFound)
}

func TestQuestionRepository_UpdateVersionCheck(t *testing.T) {
	db := NewTestDB(t)
	repo := NewQuestionRepository(db)
	ctx := context.Background()

	q := newTestQuestion()
	require.NoError(t, repo.Create(ctx, q))

	updated := *q
	updated.Status = question.StatusOCREditing
	updated.Rewrites[0].Review.Status = question.ReviewApproved
	updated.Version = 2
	require.NoError(t, repo.Update(ctx, &updated, 1))

	got, err := repo.Get(ctx, q.ID)
	require.NoError(t, err)
	require.Equal(t, question.StatusOCREditing, got.Status)
	require.Equal(t, question.ReviewApproved, got.Rewrites[0].Review.Status)
	require.Equal(t, int64(2), got.Version)

	// Stale writer loses.
	stale := *q
	stale.Status = question.StatusArchived
	stale.Version = 2
	require.ErrorIs(t, repo.Update(ctx, &stale, 1), repository.ErrConflict)

	missing := newTestQuestion()
	require.ErrorIs(t, repo.Update(ctx, missing, 1), repository.ErrNotFound)
}

func TestQuestionRepository_Delete(t *testing.T) {
	db := NewTestDB(t)
	repo := NewQuestionRepository(db)
	ctx := context.Background()

	q := newTestQuestion()
	require.NoError(t, repo.Create(ctx, q))
	require.NoError(t, repo.Delete(ctx, q.ID))
	require.ErrorIs(t, repo.Delete(ctx, q.ID), repository.ErrNotFound)

	// Slot rows cascade with the question.
	var slots int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM rewrite_slots WHERE question_id = ?`, q.ID).Scan(&slots))
	require.Zero(t, slots)
}

func TestQuestionRepository_ListFilters(t *testing.T) {
	db := NewTestDB(t)
	repo := NewQuestionRepository(db)
	ctx := context.Background()

	first := newTestQuestion()
	first.OCREditorID = "editor-1"
	require.NoError(t, repo.Create(ctx, first))

	second := newTestQuestion()
	second.Subject = "物理"
	second.Status = question.StatusOCREditing
	require.NoError(t, repo.Create(ctx, second))

	all, total, err := repo.List(ctx, question.ListOptions{Page: 1, PageSize: 10})
	require.NoError(t, err)
	require.Equal(t, 2, total)
	require.Len(t, all, 2)

	bySubject, total, err := repo.List(ctx, question.ListOptions{Subject: "物理", Page: 1, PageSize: 10})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Equal(t, second.ID, bySubject[0].ID)

	byStatus, total, err := repo.List(ctx, question.ListOptions{Status: question.StatusOCREditing, Page: 1, PageSize: 10})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Equal(t, second.ID, byStatus[0].ID)

	assigned, total, err := repo.List(ctx, question.ListOptions{AssignedTo: "editor-1", Page: 1, PageSize: 10})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Equal(t, first.ID, assigned[0].ID)

	paged, total, err := repo.List(ctx, question.ListOptions{Page: 2, PageSize: 1})
	require.NoError(t, err)
	require.Equal(t, 2, total)
	require.Len(t, paged, 1)

	finished := newTestQuestion()
	finished.Status = question.StatusDone
	finished.OCREditorID = "editor-1"
	require.NoError(t, repo.Create(ctx, finished))

	shelved := newTestQuestion()
	shelved.Status = question.StatusArchived
	shelved.OCREditorID = "editor-1"
	require.NoError(t, repo.Create(ctx, shelved))

	// Terminal states drop out of the active view.
	active, total, err := repo.List(ctx, question.ListOptions{AssignedTo: "editor-1", ActiveOnly: true, Page: 1, PageSize: 10})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Equal(t, first.ID, active[0].ID)
}

func TestQuestionRepository_ListProgress(t *testing.T) {
	db := NewTestDB(t)
	repo := NewQuestionRepository(db)
	ctx := context.Background()

	q := newTestQuestion()
	q.AcceptedQuestion = "已定稿"
	q.AcceptedAnswer = "答案"
	q.Rewrites[0].Review.Status = question.ReviewApproved
	q.Rewrites[1].Review.Status = question.ReviewApproved
	require.NoError(t, repo.Create(ctx, q))

	list, _, err := repo.List(ctx, question.ListOptions{Page: 1, PageSize: 10})
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, 100, list[0].OCRProgress)
	require.Equal(t, 40, list[0].RewriteProgress)
}

func TestQuestionRepository_Stats(t *testing.T) {
	db := NewTestDB(t)
	repo := NewQuestionRepository(db)
	ctx := context.Background()

	done := newTestQuestion()
	done.Status = question.StatusDone
	require.NoError(t, repo.Create(ctx, done))

	editing := newTestQuestion()
	editing.Status = question.StatusOCREditing
	editing.OCREditorID = "me"
	require.NoError(t, repo.Create(ctx, editing))

	fresh := newTestQuestion()
	require.NoError(t, repo.Create(ctx, fresh))

	stats, err := repo.Stats(ctx, "me")
	require.NoError(t, err)
	require.Equal(t, 3, stats.TotalQuestions)
	require.Equal(t, 1, stats.CompletedQuestions)
	require.Equal(t, 1, stats.InProgressQuestions)
	require.Equal(t, 1, stats.MyTasks)
}
