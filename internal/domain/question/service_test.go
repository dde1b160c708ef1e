package question_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shangji-io/shangji/internal/domain/question"
	"github.com/shangji-io/shangji/internal/domain/user"
	"github.com/shangji-io/shangji/internal/repository"
	"github.com/shangji-io/shangji/internal/repository/mocks"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var (
	admin           = &user.User{ID: "u-admin", Role: user.RoleAdmin}
	submitter       = &user.User{ID: "u-sub", Role: user.RoleQuestionSubmitter}
	ocrEditor       = &user.User{ID: "u-oe", Role: user.RoleOCREditor}
	ocrReviewer     = &user.User{ID: "u-or", Role: user.RoleOCRReviewer}
	rewriteEditor   = &user.User{ID: "u-re", Role: user.RoleRewriteEditor}
	rewriteReviewer = &user.User{ID: "u-rr", Role: user.RoleRewriteReviewer}
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	repo     *mocks.QuestionRepository
	picker   *mocks.AssigneePicker
	launcher *mocks.JobLauncher
	svc      *question.Service
}

func newFixture() *fixture {
	f := &fixture{
		repo:     &mocks.QuestionRepository{},
		picker:   &mocks.AssigneePicker{},
		launcher: &mocks.JobLauncher{},
	}
	f.svc = question.NewService(f.repo, f.picker, f.launcher, testLogger())
	return f
}

func baseQuestion(status question.Status) *question.Question {
	q := &question.Question{
		ID:           "q1",
		Subject:      "数学",
		Grade:        "高中",
		QuestionType: "计算题",
		Source:       "HLE",
		Images:       []string{"img/1.png"},
		Status:       status,
		OCRReview:    question.ReviewRecord{Status: question.ReviewPending},
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
		Version:      3,
	}
	for i := range q.Rewrites {
		q.Rewrites[i].Review = question.ReviewRecord{Status: question.ReviewPending}
	}
	return q
}

func TestService_Create(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.picker.On("PickAssignee", ctx, user.RoleOCREditor).Return("u-oe", nil)
	f.repo.On("Create", ctx, mock.Anything).Return(nil)

	q, err := f.svc.Create(ctx, submitter, question.CreateRequest{
		Subject:      "数学",
		Grade:        "高中",
		QuestionType: "计算题",
		Images:       []string{"img/1.png"},
	})
	require.NoError(t, err)
	require.Equal(t, question.StatusNew, q.Status)
	require.Equal(t, "HLE", q.Source)
	require.Equal(t, "u-oe", q.OCREditorID)
	require.Equal(t, question.ReviewPending, q.OCRReview.Status)
	require.Equal(t, 0, q.OCRProgress())
	require.Equal(t, 0, q.RewriteProgress())
	// Omitted tags must still serialize as an array, not null.
	require.NotNil(t, q.Tags)
	require.Empty(t, q.Tags)
}

func TestService_Create_RequiresImages(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	_, err := f.svc.Create(ctx, submitter, question.CreateRequest{
		Subject: "数学", Grade: "高中", QuestionType: "计算题",
	})
	require.ErrorIs(t, err, question.ErrMissingImages)
}

func TestService_Create_RoleGate(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	_, err := f.svc.Create(ctx, ocrEditor, question.CreateRequest{
		Subject: "数学", Grade: "高中", QuestionType: "计算题", Images: []string{"i"},
	})
	require.ErrorIs(t, err, question.ErrNotAuthorized)
}

func TestService_TriggerRecognition(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	q := baseQuestion(question.StatusNew)
	q.OCREditorID = ""
	f.repo.On("Get", ctx, "q1").Return(q, nil)
	f.repo.On("Update", ctx, mock.Anything, int64(3)).Return(nil)
	f.launcher.On("LaunchRecognition", "q1", int64(1), q.Images).Return()

	got, err := f.svc.TriggerRecognition(ctx, ocrEditor, "q1")
	require.NoError(t, err)
	require.Equal(t, question.StatusOCREditing, got.Status)
	require.Equal(t, int64(1), got.RecognitionEpoch)
	// Unassigned phase is claimed by the triggering editor.
	require.Equal(t, ocrEditor.ID, got.OCREditorID)
	f.launcher.AssertCalled(t, "LaunchRecognition", "q1", int64(1), q.Images)
}

func TestService_TriggerRecognition_WrongAssignee(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	q := baseQuestion(question.StatusOCREditing)
	q.OCREditorID = "someone-else"
	f.repo.On("Get", ctx, "q1").Return(q, nil)

	_, err := f.svc.TriggerRecognition(ctx, ocrEditor, "q1")
	require.ErrorIs(t, err, question.ErrNotAuthorized)
}

// Role gating runs before state validity: an actor without the role gets
// ErrNotAuthorized even when the state would also have been rejected.
func TestService_RoleCheckedBeforeState(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	q := baseQuestion(question.StatusDone) // invalid state for every workflow event
	f.repo.On("Get", ctx, "q1").Return(q, nil)

	_, err := f.svc.SubmitOCREdit(ctx, rewriteReviewer, "q1")
	require.ErrorIs(t, err, question.ErrNotAuthorized)

	_, err = f.svc.SubmitOCREdit(ctx, ocrEditor, "q1")
	require.ErrorIs(t, err, question.ErrInvalidTransition)
}

// Every (state, event) pair outside the legality table fails with
// ErrInvalidTransition.
func TestService_UnlistedTransitionsRejected(t *testing.T) {
	ctx := context.Background()

	calls := map[string]func(f *fixture) error{
		"trigger_recognition": func(f *fixture) error {
			_, err := f.svc.TriggerRecognition(ctx, ocrEditor, "q1")
			return err
		},
		"submit_ocr_edit": func(f *fixture) error {
			_, err := f.svc.SubmitOCREdit(ctx, ocrEditor, "q1")
			return err
		},
		"submit_ocr_review": func(f *fixture) error {
			_, err := f.svc.SubmitOCRReview(ctx, ocrReviewer, "q1", question.ReviewRequest{Decision: question.ReviewApproved})
			return err
		},
		"submit_all_rewrite_edits": func(f *fixture) error {
			_, err := f.svc.SubmitAllRewriteEdits(ctx, rewriteEditor, "q1")
			return err
		},
		"submit_rewrite_review": func(f *fixture) error {
			_, err := f.svc.SubmitRewriteReview(ctx, rewriteReviewer, "q1", 1, question.ReviewRequest{Decision: question.ReviewApproved})
			return err
		},
		"regenerate_rewrite": func(f *fixture) error {
			_, err := f.svc.RegenerateRewrite(ctx, rewriteEditor, "q1", 1)
			return err
		},
	}

	legal := map[string]map[question.Status]bool{
		"trigger_recognition":      {question.StatusNew: true, question.StatusOCREditing: true},
		"submit_ocr_edit":          {question.StatusOCREditing: true},
		"submit_ocr_review":        {question.StatusOCRReviewing: true},
		"submit_all_rewrite_edits": {question.StatusRewriteEditing: true},
		"submit_rewrite_review":    {question.StatusRewriteReviewing: true},
		"regenerate_rewrite":       {question.StatusRewriteEditing: true},
	}

	statuses := []question.Status{
		question.StatusNew, question.StatusOCREditing, question.StatusOCRReviewing,
		question.StatusOCRApproved, question.StatusRewriteGenerating,
		question.StatusRewriteEditing, question.StatusRewriteReviewing,
		question.StatusDone, question.StatusArchived,
	}

	for name, call := range calls {
		for _, status := range statuses {
			if legal[name][status] {
				continue
			}
			f := newFixture()
			f.repo.On("Get", ctx, "q1").Return(baseQuestion(status), nil)
			err := call(f)
			require.ErrorIs(t, err, question.ErrInvalidTransition,
				"event %s from %s must be rejected", name, status)
		}
	}
}

func TestService_SaveOCRDraft_LastWriteWins(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	q := baseQuestion(question.StatusOCREditing)
	q.OCREditorID = ocrEditor.ID
	q.OCRRawQuestion = "raw"
	f.repo.On("Get", ctx, "q1").Return(q, nil)
	f.repo.On("Update", ctx, mock.Anything, int64(3)).Return(nil)

	got, err := f.svc.SaveOCRDraft(ctx, ocrEditor, "q1", question.OCRDraftRequest{Question: "edited", Answer: "ans"})
	require.NoError(t, err)
	require.Equal(t, "edited", got.DraftQuestion)
	// The raw service output is never touched by draft edits.
	require.Equal(t, "raw", got.OCRRawQuestion)
	require.Empty(t, got.AcceptedQuestion)
}

func TestService_SubmitOCREdit(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	q := baseQuestion(question.StatusOCREditing)
	q.OCREditorID = ocrEditor.ID
	q.DraftQuestion = "draft"
	f.repo.On("Get", ctx, "q1").Return(q, nil)
	f.repo.On("Update", ctx, mock.Anything, int64(3)).Return(nil)
	f.picker.On("PickAssignee", ctx, user.RoleOCRReviewer).Return("u-or", nil)

	got, err := f.svc.SubmitOCREdit(ctx, ocrEditor, "q1")
	require.NoError(t, err)
	require.Equal(t, question.StatusOCRReviewing, got.Status)
	require.Equal(t, "u-or", got.OCRReviewerID)
	// Drafts stay drafts; acceptance happens at review time.
	require.Equal(t, "draft", got.DraftQuestion)
	require.Empty(t, got.AcceptedQuestion)
}

func TestService_SubmitOCRReview_RejectRequiresComment(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	q := baseQuestion(question.StatusOCRReviewing)
	q.OCRReviewerID = ocrReviewer.ID
	f.repo.On("Get", ctx, "q1").Return(q, nil)

	_, err := f.svc.SubmitOCRReview(ctx, ocrReviewer, "q1", question.ReviewRequest{
		Decision: question.ReviewChangesRequested,
	})
	require.ErrorIs(t, err, question.ErrMissingComment)
}

func TestService_SubmitOCRReview_RejectPreservesDrafts(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	q := baseQuestion(question.StatusOCRReviewing)
	q.OCRReviewerID = ocrReviewer.ID
	q.DraftQuestion = "editor work"
	q.DraftAnswer = "editor answer"
	f.repo.On("Get", ctx, "q1").Return(q, nil)
	f.repo.On("Update", ctx, mock.Anything, int64(3)).Return(nil)

	got, err := f.svc.SubmitOCRReview(ctx, ocrReviewer, "q1", question.ReviewRequest{
		Decision: question.ReviewChangesRequested,
		Comment:  "fix symbol",
	})
	require.NoError(t, err)
	require.Equal(t, question.StatusOCREditing, got.Status)
	require.Equal(t, "editor work", got.DraftQuestion)
	require.Equal(t, "editor answer", got.DraftAnswer)
	require.Equal(t, question.ReviewChangesRequested, got.OCRReview.Status)
	require.Equal(t, "fix symbol", got.OCRReview.Comment)
	f.launcher.AssertNotCalled(t, "LaunchRewrite", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestService_SubmitOCRReview_ApproveLaunchesRewrite(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	q := baseQuestion(question.StatusOCRReviewing)
	q.OCRReviewerID = ocrReviewer.ID
	q.DraftQuestion = "# 最终题目"
	q.DraftAnswer = "最终答案"
	f.repo.On("Get", ctx, "q1").Return(q, nil)
	f.repo.On("Update", ctx, mock.Anything, int64(3)).Return(nil)
	f.picker.On("PickAssignee", ctx, user.RoleRewriteEditor).Return("u-re", nil)
	f.launcher.On("LaunchRewrite", "q1", int64(1), mock.Anything, mock.Anything).Return()

	got, err := f.svc.SubmitOCRReview(ctx, ocrReviewer, "q1", question.ReviewRequest{
		Decision: question.ReviewApproved,
	})
	require.NoError(t, err)
	require.Equal(t, question.StatusOCRApproved, got.Status)
	// Markdown is collapsed to a single accepted line.
	require.Equal(t, "最终题目", got.AcceptedQuestion)
	require.Equal(t, "最终答案", got.AcceptedAnswer)
	require.Equal(t, 100, got.OCRProgress())
	require.Equal(t, "u-re", got.RewriteEditorID)
	require.NotNil(t, got.OCRCompletedAt)
	f.launcher.AssertCalled(t, "LaunchRewrite", "q1", int64(1), "最终题目", "最终答案")
}

func TestService_SubmitOCRReview_ApproveWithoutAnswerSeedsPlaceholder(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	q := baseQuestion(question.StatusOCRReviewing)
	q.OCRReviewerID = ocrReviewer.ID
	q.DraftQuestion = "# 最终题目"
	q.DraftAnswer = ""
	f.repo.On("Get", ctx, "q1").Return(q, nil)
	f.repo.On("Update", ctx, mock.Anything, int64(3)).Return(nil)
	f.picker.On("PickAssignee", ctx, user.RoleRewriteEditor).Return("u-re", nil)
	f.launcher.On("LaunchRewrite", "q1", int64(1), mock.Anything, mock.Anything).Return()

	got, err := f.svc.SubmitOCRReview(ctx, ocrReviewer, "q1", question.ReviewRequest{
		Decision: question.ReviewApproved,
	})
	require.NoError(t, err)
	require.Equal(t, question.StatusOCRApproved, got.Status)
	// Approval with no answer anywhere fills in the placeholder so
	// the OCR phase still reads as complete.
	require.Equal(t, "待补充 请补充答案内容", got.AcceptedAnswer)
	require.Equal(t, 100, got.OCRProgress())
}

func TestService_MyTasks_ExcludesFinishedWork(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.repo.On("List", ctx, mock.MatchedBy(func(opts question.ListOptions) bool {
		return opts.AssignedTo == ocrEditor.ID && opts.ActiveOnly
	})).Return([]question.Summary{}, 0, nil)

	_, _, err := f.svc.MyTasks(ctx, ocrEditor, question.ListOptions{Page: 1, PageSize: 10})
	require.NoError(t, err)
	f.repo.AssertExpectations(t)
}

func TestService_SubmitAllRewriteEdits_RequiresAllDrafts(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	q := baseQuestion(question.StatusRewriteEditing)
	q.RewriteEditorID = rewriteEditor.ID
	for i := 0; i < 4; i++ {
		q.Rewrites[i].DraftQuestion = "variant"
	}
	f.repo.On("Get", ctx, "q1").Return(q, nil)

	_, err := f.svc.SubmitAllRewriteEdits(ctx, rewriteEditor, "q1")
	require.ErrorIs(t, err, question.ErrMissingDraft)
}

func TestService_SubmitAllRewriteEdits(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	q := baseQuestion(question.StatusRewriteEditing)
	q.RewriteEditorID = rewriteEditor.ID
	for i := range q.Rewrites {
		q.Rewrites[i].DraftQuestion = "variant"
		q.Rewrites[i].Review = question.ReviewRecord{Status: question.ReviewChangesRequested, Comment: "old"}
	}
	f.repo.On("Get", ctx, "q1").Return(q, nil)
	f.repo.On("Update", ctx, mock.Anything, int64(3)).Return(nil)
	f.picker.On("PickAssignee", ctx, user.RoleRewriteReviewer).Return("u-rr", nil)

	got, err := f.svc.SubmitAllRewriteEdits(ctx, rewriteEditor, "q1")
	require.NoError(t, err)
	require.Equal(t, question.StatusRewriteReviewing, got.Status)
	require.Equal(t, "u-rr", got.RewriteReviewerID)
	for i := range got.Rewrites {
		require.Equal(t, question.ReviewPending, got.Rewrites[i].Review.Status)
	}
}

func TestService_SubmitRewriteReview_RejectResetsAllSlots(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	q := baseQuestion(question.StatusRewriteReviewing)
	q.RewriteReviewerID = rewriteReviewer.ID
	for i := range q.Rewrites {
		q.Rewrites[i].DraftQuestion = "variant"
	}
	// Four already approved.
	now := time.Now()
	for i := 0; i < 4; i++ {
		q.Rewrites[i].Review = question.ReviewRecord{Status: question.ReviewApproved, ReviewerID: "u-rr", ReviewedAt: &now}
		q.Rewrites[i].AcceptedQuestion = "accepted"
	}
	f.repo.On("Get", ctx, "q1").Return(q, nil)
	f.repo.On("Update", ctx, mock.Anything, int64(3)).Return(nil)

	got, err := f.svc.SubmitRewriteReview(ctx, rewriteReviewer, "q1", 5, question.ReviewRequest{
		Decision: question.ReviewChangesRequested,
		Comment:  "variant 5 drifts from the original",
	})
	require.NoError(t, err)
	// One rejection reopens everything: the four approvals are discarded.
	require.Equal(t, question.StatusRewriteEditing, got.Status)
	for i := range got.Rewrites {
		require.Equal(t, question.ReviewPending, got.Rewrites[i].Review.Status, "slot %d", i+1)
		require.Empty(t, got.Rewrites[i].AcceptedQuestion)
	}
	// The rejecting comment stays visible to the editor.
	require.Equal(t, "variant 5 drifts from the original", got.Rewrites[4].Review.Comment)
	require.Empty(t, got.Rewrites[0].Review.Comment)
	require.Equal(t, 0, got.RewriteProgress())
}

func TestService_SubmitRewriteReview_PartialApprovalsStay(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	q := baseQuestion(question.StatusRewriteReviewing)
	q.RewriteReviewerID = rewriteReviewer.ID
	for i := range q.Rewrites {
		q.Rewrites[i].DraftQuestion = "variant"
	}
	f.repo.On("Get", ctx, "q1").Return(q, nil)
	f.repo.On("Update", ctx, mock.Anything, int64(3)).Return(nil)

	got, err := f.svc.SubmitRewriteReview(ctx, rewriteReviewer, "q1", 2, question.ReviewRequest{
		Decision: question.ReviewApproved,
	})
	require.NoError(t, err)
	require.Equal(t, question.StatusRewriteReviewing, got.Status)
	require.Equal(t, question.ReviewApproved, got.Rewrites[1].Review.Status)
	require.Equal(t, 20, got.RewriteProgress())
}

func TestService_SubmitRewriteReview_AllApprovedCompletes(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	q := baseQuestion(question.StatusRewriteReviewing)
	q.RewriteReviewerID = rewriteReviewer.ID
	now := time.Now()
	for i := range q.Rewrites {
		q.Rewrites[i].DraftQuestion = "variant"
		if i < 4 {
			q.Rewrites[i].Review = question.ReviewRecord{Status: question.ReviewApproved, ReviewerID: "u-rr", ReviewedAt: &now}
			q.Rewrites[i].AcceptedQuestion = "accepted"
			q.Rewrites[i].AcceptedAnswer = "answer"
		}
	}
	f.repo.On("Get", ctx, "q1").Return(q, nil)
	f.repo.On("Update", ctx, mock.Anything, int64(3)).Return(nil)

	got, err := f.svc.SubmitRewriteReview(ctx, rewriteReviewer, "q1", 5, question.ReviewRequest{
		Decision: question.ReviewApproved,
	})
	require.NoError(t, err)
	require.Equal(t, question.StatusDone, got.Status)
	require.Equal(t, 100, got.RewriteProgress())
	require.NotNil(t, got.RewriteCompletedAt)
	require.Equal(t, "variant", got.Rewrites[4].AcceptedQuestion)
}

func TestService_SubmitRewriteReview_InvalidSlot(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	q := baseQuestion(question.StatusRewriteReviewing)
	q.RewriteReviewerID = rewriteReviewer.ID
	f.repo.On("Get", ctx, "q1").Return(q, nil)

	_, err := f.svc.SubmitRewriteReview(ctx, rewriteReviewer, "q1", 6, question.ReviewRequest{Decision: question.ReviewApproved})
	require.ErrorIs(t, err, question.ErrInvalidSlot)

	_, err = f.svc.SubmitRewriteReview(ctx, rewriteReviewer, "q1", 0, question.ReviewRequest{Decision: question.ReviewApproved})
	require.ErrorIs(t, err, question.ErrInvalidSlot)
}

func TestService_RegenerateRewrite(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	q := baseQuestion(question.StatusRewriteEditing)
	q.RewriteEditorID = rewriteEditor.ID
	q.RewriteEpoch = 1
	q.RewriteAppliedEpoch = 1
	q.AcceptedQuestion = "原题"
	q.AcceptedAnswer = "答案"
	f.repo.On("Get", ctx, "q1").Return(q, nil)
	f.repo.On("Update", ctx, mock.Anything, int64(3)).Return(nil)
	f.launcher.On("LaunchRewriteSlot", "q1", int64(2), 4, "原题", "答案").Return()

	got, err := f.svc.RegenerateRewrite(ctx, rewriteEditor, "q1", 4)
	require.NoError(t, err)
	require.Equal(t, question.StatusRewriteEditing, got.Status)
	require.Equal(t, int64(2), got.RewriteEpoch)
	f.launcher.AssertCalled(t, "LaunchRewriteSlot", "q1", int64(2), 4, "原题", "答案")
}

func TestService_ConcurrentModification(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	q := baseQuestion(question.StatusOCREditing)
	q.OCREditorID = ocrEditor.ID
	f.repo.On("Get", ctx, "q1").Return(q, nil)
	f.repo.On("Update", ctx, mock.Anything, int64(3)).Return(repository.ErrConflict)

	_, err := f.svc.SaveOCRDraft(ctx, ocrEditor, "q1", question.OCRDraftRequest{Question: "x"})
	require.ErrorIs(t, err, question.ErrConflict)
}

func TestService_Archive(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.repo.On("Get", ctx, "q1").Return(baseQuestion(question.StatusOCRReviewing), nil)
	f.repo.On("Update", ctx, mock.Anything, int64(3)).Return(nil)

	got, err := f.svc.Archive(ctx, admin, "q1")
	require.NoError(t, err)
	require.Equal(t, question.StatusArchived, got.Status)

	// Terminal states cannot be archived again.
	f2 := newFixture()
	f2.repo.On("Get", ctx, "q1").Return(baseQuestion(question.StatusDone), nil)
	_, err = f2.svc.Archive(ctx, admin, "q1")
	require.ErrorIs(t, err, question.ErrInvalidTransition)

	f3 := newFixture()
	f3.repo.On("Get", ctx, "q1").Return(baseQuestion(question.StatusNew), nil)
	_, err = f3.svc.Archive(ctx, ocrEditor, "q1")
	require.ErrorIs(t, err, question.ErrNotAuthorized)
}

func TestService_Delete(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.repo.On("Delete", ctx, "q1").Return(nil)

	require.NoError(t, f.svc.Delete(ctx, admin, "q1"))
	require.ErrorIs(t, f.svc.Delete(ctx, ocrEditor, "q1"), question.ErrNotAuthorized)
}

func TestService_SuperuserBypassesAssignment(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	q := baseQuestion(question.StatusOCREditing)
	q.OCREditorID = "someone-else"
	f.repo.On("Get", ctx, "q1").Return(q, nil)
	f.repo.On("Update", ctx, mock.Anything, int64(3)).Return(nil)

	super := &user.User{ID: "u-super", Role: user.RoleOCREditor, Superuser: true}
	_, err := f.svc.SaveOCRDraft(ctx, super, "q1", question.OCRDraftRequest{Question: "x"})
	require.NoError(t, err)
}

func TestService_UpdateMeta(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	q := baseQuestion(question.StatusOCREditing)
	f.repo.On("Get", ctx, "q1").Return(q, nil)
	f.repo.On("Update", ctx, mock.Anything, int64(3)).Return(nil)

	subject := "物理"
	got, err := f.svc.UpdateMeta(ctx, submitter, "q1", question.UpdateMetaRequest{Subject: &subject})
	require.NoError(t, err)
	require.Equal(t, "物理", got.Subject)

	bad := "天文"
	_, err = f.svc.UpdateMeta(ctx, submitter, "q1", question.UpdateMetaRequest{Subject: &bad})
	require.ErrorIs(t, err, question.ErrInvalidInput)

	f2 := newFixture()
	f2.repo.On("Get", ctx, "q1").Return(baseQuestion(question.StatusDone), nil)
	_, err = f2.svc.UpdateMeta(ctx, submitter, "q1", question.UpdateMetaRequest{Subject: &subject})
	require.ErrorIs(t, err, question.ErrInvalidTransition)
}
