package question

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shangji-io/shangji/internal/domain/user"
	"github.com/shangji-io/shangji/internal/markdown"
	"github.com/shangji-io/shangji/internal/repository"
)

// Service executes the question lifecycle. Every transition loads the
// question, gates role then assignment then state, mutates a copy, and
// commits with a version check so concurrent writers lose cleanly.
type Service struct {
	questions QuestionRepository
	assignees AssigneePicker
	launcher  JobLauncher
	logger    *slog.Logger
}

// NewService creates a new question service.
func NewService(questions QuestionRepository, assignees AssigneePicker, launcher JobLauncher, logger *slog.Logger) *Service {
	return &Service{
		questions: questions,
		assignees: assignees,
		launcher:  launcher,
		logger:    logger,
	}
}

// CreateRequest describes a question creation request.
type CreateRequest struct {
	Subject      string
	Grade        string
	QuestionType string
	Source       string
	Tags         []string
	Images       []string
}

// UpdateMetaRequest describes a partial classification update.
type UpdateMetaRequest struct {
	Subject      *string
	Grade        *string
	QuestionType *string
	Source       *string
	Tags         []string
}

// OCRDraftRequest carries the editor's working copy of the OCR content.
type OCRDraftRequest struct {
	Question string
	Answer   string
}

// ReviewRequest carries a reviewer decision. Question/Answer hold the
// reviewer-submitted final content and are only read on approval.
type ReviewRequest struct {
	Decision ReviewStatus
	Comment  string
	Question string
	Answer   string
}

// RewriteDraftRequest carries one rewrite slot's working copy.
type RewriteDraftRequest struct {
	Question    string
	Answer      string
	EditComment string
}

// AssignRequest sets assignment fields. Nil fields are left unchanged.
type AssignRequest struct {
	OCREditorID       *string
	OCRReviewerID     *string
	RewriteEditorID   *string
	RewriteReviewerID *string
}

// Create registers a new question in state new and assigns the first
// available OCR editor.
func (s *Service) Create(ctx context.Context, actor *user.User, req CreateRequest) (*Question, error) {
	if !actor.Satisfies(user.RoleQuestionSubmitter) {
		return nil, ErrNotAuthorized
	}
	if req.Source == "" {
		req.Source = DefaultSource
	}
	if err := ValidateCreateInput(req); err != nil {
		return nil, err
	}

	editorID, err := s.assignees.PickAssignee(ctx, user.RoleOCREditor)
	if err != nil {
		return nil, fmt.Errorf("picking ocr editor: %w", err)
	}

	// Tags stay a JSON array end to end; a nil slice would round-trip as null.
	tags := req.Tags
	if tags == nil {
		tags = []string{}
	}

	now := time.Now()
	q := &Question{
		ID:           uuid.NewString(),
		Subject:      req.Subject,
		Grade:        req.Grade,
		QuestionType: req.QuestionType,
		Source:       req.Source,
		Tags:         tags,
		Images:       req.Images,
		Status:       StatusNew,
		OCREditorID:  editorID,
		OCRReview:    ReviewRecord{Status: ReviewPending},
		CreatedAt:    now,
		UpdatedAt:    now,
		Version:      1,
	}
	for i := range q.Rewrites {
		q.Rewrites[i].Review = ReviewRecord{Status: ReviewPending}
	}

	if err := s.questions.Create(ctx, q); err != nil {
		return nil, fmt.Errorf("creating question: %w", err)
	}

	s.logger.Info("question created", "question_id", q.ID, "subject", q.Subject, "ocr_editor", editorID)
	return q, nil
}

// Get returns a question by ID.
func (s *Service) Get(ctx context.Context, id string) (*Question, error) {
	return s.load(ctx, id)
}

// List returns question summaries and the total matching count.
func (s *Service) List(ctx context.Context, opts ListOptions) ([]Summary, int, error) {
	opts.Normalize()
	return s.questions.List(ctx, opts)
}

// MyTasks lists questions where the actor holds any assignment. Finished
// and archived questions are no longer anyone's task, so they are
// excluded, matching the dashboard count.
func (s *Service) MyTasks(ctx context.Context, actor *user.User, opts ListOptions) ([]Summary, int, error) {
	opts.AssignedTo = actor.ID
	opts.ActiveOnly = true
	opts.Normalize()
	return s.questions.List(ctx, opts)
}

// Stats returns dashboard aggregates from the actor's perspective.
func (s *Service) Stats(ctx context.Context, actor *user.User) (Stats, error) {
	return s.questions.Stats(ctx, actor.ID)
}

// UpdateMeta changes classification fields. The state machine never
// touches these; they are editable until the question reaches a terminal
// state.
func (s *Service) UpdateMeta(ctx context.Context, actor *user.User, id string, req UpdateMetaRequest) (*Question, error) {
	if !actor.Satisfies(user.RoleQuestionSubmitter) {
		return nil, ErrNotAuthorized
	}

	q, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if q.Status.Terminal() {
		return nil, ErrInvalidTransition
	}

	updated := *q
	if req.Subject != nil {
		updated.Subject = *req.Subject
	}
	if req.Grade != nil {
		updated.Grade = *req.Grade
	}
	if req.QuestionType != nil {
		updated.QuestionType = *req.QuestionType
	}
	if req.Source != nil {
		updated.Source = *req.Source
	}
	if req.Tags != nil {
		updated.Tags = req.Tags
	}
	if err := ValidateClassification(updated.Subject, updated.Grade, updated.QuestionType, updated.Source); err != nil {
		return nil, err
	}
	updated.UpdatedAt = time.Now()

	if err := s.commit(ctx, &updated, q.Version); err != nil {
		return nil, err
	}
	return &updated, nil
}

// Assign sets assignment fields directly. Admin only.
func (s *Service) Assign(ctx context.Context, actor *user.User, id string, req AssignRequest) (*Question, error) {
	if actor.Role != user.RoleAdmin {
		return nil, ErrNotAuthorized
	}

	q, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	updated := *q
	if req.OCREditorID != nil {
		updated.OCREditorID = *req.OCREditorID
	}
	if req.OCRReviewerID != nil {
		updated.OCRReviewerID = *req.OCRReviewerID
	}
	if req.RewriteEditorID != nil {
		updated.RewriteEditorID = *req.RewriteEditorID
	}
	if req.RewriteReviewerID != nil {
		updated.RewriteReviewerID = *req.RewriteReviewerID
	}
	updated.UpdatedAt = time.Now()

	if err := s.commit(ctx, &updated, q.Version); err != nil {
		return nil, err
	}
	return &updated, nil
}

// TriggerRecognition starts (or restarts) the external recognition job.
// The question enters ocr_editing immediately; raw text arrives later
// through the orchestrator.
func (s *Service) TriggerRecognition(ctx context.Context, actor *user.User, id string) (*Question, error) {
	q, err := s.gate(ctx, actor, EventTriggerRecognition, id)
	if err != nil {
		return nil, err
	}
	if err := s.ensureAssignee(actor, q.OCREditorID); err != nil {
		return nil, err
	}

	updated := *q
	if updated.OCREditorID == "" {
		updated.OCREditorID = actor.ID
	}
	updated.Status = StatusOCREditing
	updated.RecognitionEpoch++
	updated.RecognitionHandle = ""
	updated.UpdatedAt = time.Now()

	if err := s.commit(ctx, &updated, q.Version); err != nil {
		return nil, err
	}

	s.launcher.LaunchRecognition(updated.ID, updated.RecognitionEpoch, updated.Images)
	s.logger.Info("recognition triggered", "question_id", updated.ID, "epoch", updated.RecognitionEpoch)
	return &updated, nil
}

// SaveOCRDraft overwrites the editor's OCR working copy. Last write wins;
// accepted fields and the raw service output are never touched here.
func (s *Service) SaveOCRDraft(ctx context.Context, actor *user.User, id string, req OCRDraftRequest) (*Question, error) {
	q, err := s.gate(ctx, actor, EventSaveOCRDraft, id)
	if err != nil {
		return nil, err
	}
	if err := s.ensureAssignee(actor, q.OCREditorID); err != nil {
		return nil, err
	}

	updated := *q
	updated.DraftQuestion = req.Question
	updated.DraftAnswer = req.Answer
	updated.UpdatedAt = time.Now()

	if err := s.commit(ctx, &updated, q.Version); err != nil {
		return nil, err
	}
	return &updated, nil
}

// SubmitOCREdit hands the drafts to a reviewer. Drafts remain drafts;
// only the status and reviewer assignment change.
func (s *Service) SubmitOCREdit(ctx context.Context, actor *user.User, id string) (*Question, error) {
	q, err := s.gate(ctx, actor, EventSubmitOCREdit, id)
	if err != nil {
		return nil, err
	}
	if err := s.ensureAssignee(actor, q.OCREditorID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(q.DraftQuestion) == "" {
		return nil, ErrMissingDraft
	}

	updated := *q
	if updated.OCREditorID == "" {
		updated.OCREditorID = actor.ID
	}
	if updated.OCRReviewerID == "" {
		reviewerID, err := s.assignees.PickAssignee(ctx, user.RoleOCRReviewer)
		if err != nil {
			return nil, fmt.Errorf("picking ocr reviewer: %w", err)
		}
		updated.OCRReviewerID = reviewerID
	}
	updated.Status = StatusOCRReviewing
	updated.UpdatedAt = time.Now()

	if err := s.commit(ctx, &updated, q.Version); err != nil {
		return nil, err
	}

	s.logger.Info("ocr edit submitted", "question_id", updated.ID, "reviewer", updated.OCRReviewerID)
	return &updated, nil
}

// SubmitOCRReview records the reviewer decision. Approval accepts the
// submitted content, completes the OCR phase, and launches rewrite
// generation. Rejection requires a comment and returns the question to
// the editor with drafts untouched.
func (s *Service) SubmitOCRReview(ctx context.Context, actor *user.User, id string, req ReviewRequest) (*Question, error) {
	q, err := s.gate(ctx, actor, EventSubmitOCRReview, id)
	if err != nil {
		return nil, err
	}
	if err := s.ensureAssignee(actor, q.OCRReviewerID); err != nil {
		return nil, err
	}

	now := time.Now()
	updated := *q

	switch req.Decision {
	case ReviewApproved:
		acceptedQ := firstNonEmpty(req.Question, q.DraftQuestion)
		acceptedA := firstNonEmpty(req.Answer, q.DraftAnswer)
		if strings.TrimSpace(acceptedQ) == "" {
			return nil, ErrMissingDraft
		}
		// An approved question must leave the OCR phase fully filled in;
		// a missing answer gets the fill-in placeholder instead of "".
		if strings.TrimSpace(acceptedA) == "" {
			acceptedA = PlaceholderMissingAnswer
		}
		updated.AcceptedQuestion = markdown.ToPlainInline(acceptedQ)
		updated.AcceptedAnswer = markdown.ToPlainInline(acceptedA)
		updated.OCRReview = ReviewRecord{Status: ReviewApproved, Comment: req.Comment, ReviewerID: actor.ID, ReviewedAt: &now}
		updated.OCRCompletedAt = &now
		if updated.RewriteEditorID == "" {
			editorID, err := s.assignees.PickAssignee(ctx, user.RoleRewriteEditor)
			if err != nil {
				return nil, fmt.Errorf("picking rewrite editor: %w", err)
			}
			updated.RewriteEditorID = editorID
		}
		updated.Status = StatusOCRApproved
		updated.RewriteEpoch++
		updated.RewriteHandle = ""

	case ReviewChangesRequested:
		if strings.TrimSpace(req.Comment) == "" {
			return nil, ErrMissingComment
		}
		updated.OCRReview = ReviewRecord{Status: ReviewChangesRequested, Comment: req.Comment, ReviewerID: actor.ID, ReviewedAt: &now}
		updated.Status = StatusOCREditing

	default:
		return nil, ErrInvalidInput
	}
	updated.UpdatedAt = now

	if err := s.commit(ctx, &updated, q.Version); err != nil {
		return nil, err
	}

	if req.Decision == ReviewApproved {
		s.launcher.LaunchRewrite(updated.ID, updated.RewriteEpoch, updated.AcceptedQuestion, updated.AcceptedAnswer)
		s.logger.Info("ocr approved, rewrite launched", "question_id", updated.ID, "epoch", updated.RewriteEpoch)
	} else {
		s.logger.Info("ocr changes requested", "question_id", updated.ID, "reviewer", actor.ID)
	}
	return &updated, nil
}

// SaveRewriteDraft overwrites one rewrite slot's working copy.
func (s *Service) SaveRewriteDraft(ctx context.Context, actor *user.User, id string, index int, req RewriteDraftRequest) (*Question, error) {
	q, err := s.gate(ctx, actor, EventSaveRewriteDraft, id)
	if err != nil {
		return nil, err
	}
	if err := s.ensureAssignee(actor, q.RewriteEditorID); err != nil {
		return nil, err
	}
	if err := ValidateSlot(index); err != nil {
		return nil, err
	}

	updated := *q
	slot := &updated.Rewrites[index-1]
	slot.DraftQuestion = req.Question
	slot.DraftAnswer = req.Answer
	slot.EditComment = req.EditComment
	updated.UpdatedAt = time.Now()

	if err := s.commit(ctx, &updated, q.Version); err != nil {
		return nil, err
	}
	return &updated, nil
}

// SubmitRewriteEdit marks one slot ready for review without leaving
// rewrite_editing. The phase only advances through SubmitAllRewriteEdits.
func (s *Service) SubmitRewriteEdit(ctx context.Context, actor *user.User, id string, index int) (*Question, error) {
	q, err := s.gate(ctx, actor, EventSubmitRewriteEdit, id)
	if err != nil {
		return nil, err
	}
	if err := s.ensureAssignee(actor, q.RewriteEditorID); err != nil {
		return nil, err
	}
	if err := ValidateSlot(index); err != nil {
		return nil, err
	}
	if strings.TrimSpace(q.Rewrites[index-1].DraftQuestion) == "" {
		return nil, ErrMissingDraft
	}

	updated := *q
	updated.Rewrites[index-1].Review = ReviewRecord{Status: ReviewPending}
	if updated.RewriteReviewerID == "" {
		reviewerID, err := s.assignees.PickAssignee(ctx, user.RoleRewriteReviewer)
		if err != nil {
			return nil, fmt.Errorf("picking rewrite reviewer: %w", err)
		}
		updated.RewriteReviewerID = reviewerID
	}
	updated.UpdatedAt = time.Now()

	if err := s.commit(ctx, &updated, q.Version); err != nil {
		return nil, err
	}
	return &updated, nil
}

// SubmitAllRewriteEdits hands all five slots to a reviewer. Every draft
// pair must be present; all review records reset to pending and any
// previously accepted rewrite content is cleared.
func (s *Service) SubmitAllRewriteEdits(ctx context.Context, actor *user.User, id string) (*Question, error) {
	q, err := s.gate(ctx, actor, EventSubmitAllRewriteEdits, id)
	if err != nil {
		return nil, err
	}
	if err := s.ensureAssignee(actor, q.RewriteEditorID); err != nil {
		return nil, err
	}
	for i := range q.Rewrites {
		if strings.TrimSpace(q.Rewrites[i].DraftQuestion) == "" {
			return nil, ErrMissingDraft
		}
	}

	updated := *q
	for i := range updated.Rewrites {
		slot := &updated.Rewrites[i]
		slot.Review = ReviewRecord{Status: ReviewPending}
		slot.AcceptedQuestion = ""
		slot.AcceptedAnswer = ""
	}
	if updated.RewriteReviewerID == "" {
		reviewerID, err := s.assignees.PickAssignee(ctx, user.RoleRewriteReviewer)
		if err != nil {
			return nil, fmt.Errorf("picking rewrite reviewer: %w", err)
		}
		updated.RewriteReviewerID = reviewerID
	}
	updated.Status = StatusRewriteReviewing
	updated.UpdatedAt = time.Now()

	if err := s.commit(ctx, &updated, q.Version); err != nil {
		return nil, err
	}

	s.logger.Info("rewrite edits submitted", "question_id", updated.ID, "reviewer", updated.RewriteReviewerID)
	return &updated, nil
}

// SubmitRewriteReview records a decision on one of the five slots, then
// reduces the five records to a single outcome. All approved finishes the
// question; any rejection returns every slot to the editor and resets the
// other reviews to pending for a full re-review.
func (s *Service) SubmitRewriteReview(ctx context.Context, actor *user.User, id string, index int, req ReviewRequest) (*Question, error) {
	q, err := s.gate(ctx, actor, EventSubmitRewriteReview, id)
	if err != nil {
		return nil, err
	}
	if err := s.ensureAssignee(actor, q.RewriteReviewerID); err != nil {
		return nil, err
	}
	if err := ValidateSlot(index); err != nil {
		return nil, err
	}

	now := time.Now()
	updated := *q
	slot := &updated.Rewrites[index-1]

	switch req.Decision {
	case ReviewApproved:
		finalQ := firstNonEmpty(req.Question, slot.DraftQuestion)
		finalA := firstNonEmpty(req.Answer, slot.DraftAnswer)
		if strings.TrimSpace(finalQ) == "" {
			return nil, ErrMissingDraft
		}
		slot.AcceptedQuestion = markdown.ToPlainInline(finalQ)
		slot.AcceptedAnswer = markdown.ToPlainInline(finalA)
		slot.Review = ReviewRecord{Status: ReviewApproved, Comment: req.Comment, ReviewerID: actor.ID, ReviewedAt: &now}

	case ReviewChangesRequested:
		if strings.TrimSpace(req.Comment) == "" {
			return nil, ErrMissingComment
		}
		slot.Review = ReviewRecord{Status: ReviewChangesRequested, Comment: req.Comment, ReviewerID: actor.ID, ReviewedAt: &now}

	default:
		return nil, ErrInvalidInput
	}

	switch AggregateRewrites(updated.Rewrites) {
	case AggregateApproved:
		updated.Status = StatusDone
		updated.RewriteCompletedAt = &now
	case AggregateRejected:
		// One rejection sends everything back: all five slots reopen and
		// the four other reviews are re-done after the next submission.
		for i := range updated.Rewrites {
			r := &updated.Rewrites[i]
			if i != index-1 {
				r.Review = ReviewRecord{Status: ReviewPending}
			} else {
				r.Review.Status = ReviewPending
			}
			r.AcceptedQuestion = ""
			r.AcceptedAnswer = ""
		}
		updated.Status = StatusRewriteEditing
	}
	updated.UpdatedAt = now

	if err := s.commit(ctx, &updated, q.Version); err != nil {
		return nil, err
	}

	s.logger.Info("rewrite review recorded",
		"question_id", updated.ID, "slot", index, "decision", req.Decision, "status", updated.Status)
	return &updated, nil
}

// RegenerateRewrite re-invokes the rewrite job for a single slot. The
// status stays rewrite_editing; a result from any previously launched job
// is invalidated by the epoch bump.
func (s *Service) RegenerateRewrite(ctx context.Context, actor *user.User, id string, index int) (*Question, error) {
	q, err := s.gate(ctx, actor, EventRegenerateRewrite, id)
	if err != nil {
		return nil, err
	}
	if err := s.ensureAssignee(actor, q.RewriteEditorID); err != nil {
		return nil, err
	}
	if err := ValidateSlot(index); err != nil {
		return nil, err
	}

	updated := *q
	updated.RewriteEpoch++
	updated.UpdatedAt = time.Now()

	if err := s.commit(ctx, &updated, q.Version); err != nil {
		return nil, err
	}

	s.launcher.LaunchRewriteSlot(updated.ID, updated.RewriteEpoch, index, updated.AcceptedQuestion, updated.AcceptedAnswer)
	s.logger.Info("rewrite regeneration launched", "question_id", updated.ID, "slot", index, "epoch", updated.RewriteEpoch)
	return &updated, nil
}

// Archive moves a non-terminal question to the archived state.
func (s *Service) Archive(ctx context.Context, actor *user.User, id string) (*Question, error) {
	q, err := s.gate(ctx, actor, EventArchive, id)
	if err != nil {
		return nil, err
	}

	updated := *q
	updated.Status = StatusArchived
	updated.UpdatedAt = time.Now()

	if err := s.commit(ctx, &updated, q.Version); err != nil {
		return nil, err
	}
	return &updated, nil
}

// Delete removes a question entirely. Admin only, always legal,
// irreversible.
func (s *Service) Delete(ctx context.Context, actor *user.User, id string) error {
	if actor.Role != user.RoleAdmin {
		return ErrNotAuthorized
	}
	if err := s.questions.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrQuestionNotFound
		}
		return fmt.Errorf("deleting question: %w", err)
	}
	s.logger.Info("question deleted", "question_id", id, "actor", actor.ID)
	return nil
}

// gate loads the question and checks role before state, so an
// unauthorized caller cannot probe lifecycle positions.
func (s *Service) gate(ctx context.Context, actor *user.User, ev Event, id string) (*Question, error) {
	q, err := s.load(ctx, id)
	if err != nil {
		// Role check still runs first for a consistent error surface.
		if rejErr := roleOnly(actor, ev); rejErr != nil {
			return nil, rejErr
		}
		return nil, err
	}
	if err := CheckTransition(actor, ev, q.Status); err != nil {
		return nil, err
	}
	return q, nil
}

func roleOnly(actor *user.User, ev Event) error {
	role, ok := RequiredRole(ev)
	if !ok {
		return ErrInvalidTransition
	}
	if !actor.Satisfies(role) {
		return ErrNotAuthorized
	}
	return nil
}

// ensureAssignee enforces assignment ownership. An empty assignment is
// claimable by any holder of the phase role; superusers bypass ownership
// but not the role check that already ran.
func (s *Service) ensureAssignee(actor *user.User, assigneeID string) error {
	if assigneeID == "" || actor.Superuser || actor.Role == user.RoleAdmin {
		return nil
	}
	if actor.ID != assigneeID {
		return ErrNotAuthorized
	}
	return nil
}

func (s *Service) load(ctx context.Context, id string) (*Question, error) {
	q, err := s.questions.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrQuestionNotFound
		}
		return nil, fmt.Errorf("loading question: %w", err)
	}
	return q, nil
}

func (s *Service) commit(ctx context.Context, q *Question, expectedVersion int64) error {
	q.Version = expectedVersion + 1
	if err := s.questions.Update(ctx, q, expectedVersion); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return ErrConflict
		}
		if errors.Is(err, repository.ErrNotFound) {
			return ErrQuestionNotFound
		}
		return fmt.Errorf("updating question: %w", err)
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
