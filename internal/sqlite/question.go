package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/shangji-io/shangji/internal/domain/question"
	"github.com/shangji-io/shangji/internal/repository"
)

// QuestionRepository implements question.QuestionRepository for SQLite.
// A question is one row plus five rewrite_slots rows; all writes to the
// pair happen in a single transaction guarded by the version column.
type QuestionRepository struct {
	db *DB
}

// NewQuestionRepository creates a new QuestionRepository
func NewQuestionRepository(db *DB) *QuestionRepository {
	return &QuestionRepository{db: db}
}

// Create inserts a question and its five slot rows.
func (r *QuestionRepository) Create(ctx context.Context, q *question.Question) error {
	tags, err := json.Marshal(q.Tags)
	if err != nil {
		return fmt.Errorf("failed to encode tags: %w", err)
	}
	images, err := json.Marshal(q.Images)
	if err != nil {
		return fmt.Errorf("failed to encode images: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO questions (
			id, subject, grade, question_type, source, tags, images,
			ocr_raw_question, ocr_raw_answer, draft_question, draft_answer,
			accepted_question, accepted_answer,
			ocr_review_status, ocr_review_comment, ocr_review_by, ocr_reviewed_at,
			prompt_version,
			ocr_editor_id, ocr_reviewer_id, rewrite_editor_id, rewrite_reviewer_id,
			status,
			recognition_epoch, recognition_applied_epoch, recognition_handle,
			rewrite_epoch, rewrite_applied_epoch, rewrite_handle,
			created_at, updated_at, ocr_completed_at, rewrite_completed_at,
			version
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		q.ID, q.Subject, q.Grade, q.QuestionType, q.Source, string(tags), string(images),
		q.OCRRawQuestion, q.OCRRawAnswer, q.DraftQuestion, q.DraftAnswer,
		q.AcceptedQuestion, q.AcceptedAnswer,
		string(reviewStatusOrPending(q.OCRReview.Status)), q.OCRReview.Comment, q.OCRReview.ReviewerID, nullTime(q.OCRReview.ReviewedAt),
		q.PromptVersion,
		q.OCREditorID, q.OCRReviewerID, q.RewriteEditorID, q.RewriteReviewerID,
		string(q.Status),
		q.RecognitionEpoch, q.RecognitionAppliedEpoch, q.RecognitionHandle,
		q.RewriteEpoch, q.RewriteAppliedEpoch, q.RewriteHandle,
		q.CreatedAt, q.UpdatedAt, nullTime(q.OCRCompletedAt), nullTime(q.RewriteCompletedAt),
		q.Version,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrConflict
		}
		return fmt.Errorf("failed to create question: %w", err)
	}

	for i := range q.Rewrites {
		if err := insertSlot(ctx, tx, q.ID, i+1, &q.Rewrites[i]); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func insertSlot(ctx context.Context, tx *sql.Tx, questionID string, idx int, slot *question.RewriteSlot) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO rewrite_slots (
			question_id, idx, draft_question, draft_answer,
			accepted_question, accepted_answer, edit_comment,
			review_status, review_comment, review_by, reviewed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		questionID, idx, slot.DraftQuestion, slot.DraftAnswer,
		slot.AcceptedQuestion, slot.AcceptedAnswer, slot.EditComment,
		string(reviewStatusOrPending(slot.Review.Status)), slot.Review.Comment, slot.Review.ReviewerID, nullTime(slot.Review.ReviewedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create rewrite slot %d: %w", idx, err)
	}
	return nil
}

// Get retrieves a question with its rewrite slots.
func (r *QuestionRepository) Get(ctx context.Context, id string) (*question.Question, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT
			id, subject, grade, question_type, source, tags, images,
			ocr_raw_question, ocr_raw_answer, draft_question, draft_answer,
			accepted_question, accepted_answer,
			ocr_review_status, ocr_review_comment, ocr_review_by, ocr_reviewed_at,
			prompt_version,
			ocr_editor_id, ocr_reviewer_id, rewrite_editor_id, rewrite_reviewer_id,
			status,
			recognition_epoch, recognition_applied_epoch, recognition_handle,
			rewrite_epoch, rewrite_applied_epoch, rewrite_handle,
			created_at, updated_at, ocr_completed_at, rewrite_completed_at,
			version
		FROM questions
		WHERE id = ?
	`, id)

	var (
		q                  question.Question
		tags, images       string
		ocrReviewStatus    string
		status             string
		ocrReviewedAt      sql.NullTime
		ocrCompletedAt     sql.NullTime
		rewriteCompletedAt sql.NullTime
	)
	err := row.Scan(
		&q.ID, &q.Subject, &q.Grade, &q.QuestionType, &q.Source, &tags, &images,
		&q.OCRRawQuestion, &q.OCRRawAnswer, &q.DraftQuestion, &q.DraftAnswer,
		&q.AcceptedQuestion, &q.AcceptedAnswer,
		&ocrReviewStatus, &q.OCRReview.Comment, &q.OCRReview.ReviewerID, &ocrReviewedAt,
		&q.PromptVersion,
		&q.OCREditorID, &q.OCRReviewerID, &q.RewriteEditorID, &q.RewriteReviewerID,
		&status,
		&q.RecognitionEpoch, &q.RecognitionAppliedEpoch, &q.RecognitionHandle,
		&q.RewriteEpoch, &q.RewriteAppliedEpoch, &q.RewriteHandle,
		&q.CreatedAt, &q.UpdatedAt, &ocrCompletedAt, &rewriteCompletedAt,
		&q.Version,
	)
	if err == sql.ErrNoRows {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get question: %w", err)
	}

	if err := json.Unmarshal([]byte(tags), &q.Tags); err != nil {
		return nil, fmt.Errorf("failed to decode tags: %w", err)
	}
	if err := json.Unmarshal([]byte(images), &q.Images); err != nil {
		return nil, fmt.Errorf("failed to decode images: %w", err)
	}
	// Rows written before tags were normalized may hold JSON null.
	if q.Tags == nil {
		q.Tags = []string{}
	}
	q.OCRReview.Status = question.ReviewStatus(ocrReviewStatus)
	q.OCRReview.ReviewedAt = timePtr(ocrReviewedAt)
	q.Status = question.Status(status)
	q.OCRCompletedAt = timePtr(ocrCompletedAt)
	q.RewriteCompletedAt = timePtr(rewriteCompletedAt)

	if err := r.loadSlots(ctx, &q); err != nil {
		return nil, err
	}
	return &q, nil
}

func (r *QuestionRepository) loadSlots(ctx context.Context, q *question.Question) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT idx, draft_question, draft_answer, accepted_question,
		       accepted_answer, edit_comment, review_status, review_comment,
		       review_by, reviewed_at
		FROM rewrite_slots
		WHERE question_id = ?
		ORDER BY idx
	`, q.ID)
	if err != nil {
		return fmt.Errorf("failed to load rewrite slots: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			idx          int
			slot         question.RewriteSlot
			reviewStatus string
			reviewedAt   sql.NullTime
		)
		if err := rows.Scan(
			&idx, &slot.DraftQuestion, &slot.DraftAnswer, &slot.AcceptedQuestion,
			&slot.AcceptedAnswer, &slot.EditComment, &reviewStatus, &slot.Review.Comment,
			&slot.Review.ReviewerID, &reviewedAt,
		); err != nil {
			return fmt.Errorf("failed to scan rewrite slot: %w", err)
		}
		if idx < 1 || idx > question.RewriteSlots {
			continue
		}
		slot.Review.Status = question.ReviewStatus(reviewStatus)
		slot.Review.ReviewedAt = timePtr(reviewedAt)
		q.Rewrites[idx-1] = slot
	}
	return rows.Err()
}

// Update commits a question with optimistic concurrency control.
func (r *QuestionRepository) Update(ctx context.Context, q *question.Question, expectedVersion int64) error {
	tags, err := json.Marshal(q.Tags)
	if err != nil {
		return fmt.Errorf("failed to encode tags: %w", err)
	}
	images, err := json.Marshal(q.Images)
	if err != nil {
		return fmt.Errorf("failed to encode images: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE questions
		SET subject = ?, grade = ?, question_type = ?, source = ?, tags = ?, images = ?,
		    ocr_raw_question = ?, ocr_raw_answer = ?, draft_question = ?, draft_answer = ?,
		    accepted_question = ?, accepted_answer = ?,
		    ocr_review_status = ?, ocr_review_comment = ?, ocr_review_by = ?, ocr_reviewed_at = ?,
		    prompt_version = ?,
		    ocr_editor_id = ?, ocr_reviewer_id = ?, rewrite_editor_id = ?, rewrite_reviewer_id = ?,
		    status = ?,
		    recognition_epoch = ?, recognition_applied_epoch = ?, recognition_handle = ?,
		    rewrite_epoch = ?, rewrite_applied_epoch = ?, rewrite_handle = ?,
		    updated_at = ?, ocr_completed_at = ?, rewrite_completed_at = ?,
		    version = ?
		WHERE id = ? AND version = ?
	`,
		q.Subject, q.Grade, q.QuestionType, q.Source, string(tags), string(images),
		q.OCRRawQuestion, q.OCRRawAnswer, q.DraftQuestion, q.DraftAnswer,
		q.AcceptedQuestion, q.AcceptedAnswer,
		string(reviewStatusOrPending(q.OCRReview.Status)), q.OCRReview.Comment, q.OCRReview.ReviewerID, nullTime(q.OCRReview.ReviewedAt),
		q.PromptVersion,
		q.OCREditorID, q.OCRReviewerID, q.RewriteEditorID, q.RewriteReviewerID,
		string(q.Status),
		q.RecognitionEpoch, q.RecognitionAppliedEpoch, q.RecognitionHandle,
		q.RewriteEpoch, q.RewriteAppliedEpoch, q.RewriteHandle,
		q.UpdatedAt, nullTime(q.OCRCompletedAt), nullTime(q.RewriteCompletedAt),
		q.Version,
		q.ID, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to update question: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		var exists bool
		err = tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM questions WHERE id = ?)`, q.ID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check question existence: %w", err)
		}
		if !exists {
			return repository.ErrNotFound
		}
		return repository.ErrConflict
	}

	for i := range q.Rewrites {
		slot := &q.Rewrites[i]
		_, err := tx.ExecContext(ctx, `
			UPDATE rewrite_slots
			SET draft_question = ?, draft_answer = ?,
			    accepted_question = ?, accepted_answer = ?, edit_comment = ?,
			    review_status = ?, review_comment = ?, review_by = ?, reviewed_at = ?
			WHERE question_id = ? AND idx = ?
		`,
			slot.DraftQuestion, slot.DraftAnswer,
			slot.AcceptedQuestion, slot.AcceptedAnswer, slot.EditComment,
			string(reviewStatusOrPending(slot.Review.Status)), slot.Review.Comment, slot.Review.ReviewerID, nullTime(slot.Review.ReviewedAt),
			q.ID, i+1,
		)
		if err != nil {
			return fmt.Errorf("failed to update rewrite slot %d: %w", i+1, err)
		}
	}

	return tx.Commit()
}

// Delete removes a question; slot rows cascade.
func (r *QuestionRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM questions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete question: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// List returns question summaries matching the options plus the total
// count before pagination.
func (r *QuestionRepository) List(ctx context.Context, opts question.ListOptions) ([]question.Summary, int, error) {
	base := sq.Select().From("questions q")
	base = applyListFilters(base, opts)

	countQuery, countArgs, err := base.Column("COUNT(*)").ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build count query: %w", err)
	}
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count questions: %w", err)
	}

	listQuery, listArgs, err := applyListFilters(sq.Select(
		"q.id", "q.subject", "q.grade", "q.question_type", "q.source", "q.status",
		"q.accepted_question", "q.accepted_answer",
		`(SELECT COUNT(*) FROM rewrite_slots s
		  WHERE s.question_id = q.id AND s.review_status = 'approved') AS approved_slots`,
		"q.created_at", "q.updated_at",
	).From("questions q"), opts).
		OrderBy("q.created_at DESC").
		Limit(uint64(opts.PageSize)).
		Offset(uint64(opts.Offset())).
		ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build list query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, listQuery, listArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list questions: %w", err)
	}
	defer rows.Close()

	summaries := []question.Summary{}
	for rows.Next() {
		var (
			s                    question.Summary
			status               string
			acceptedQ, acceptedA string
			approvedSlots        int
		)
		if err := rows.Scan(
			&s.ID, &s.Subject, &s.Grade, &s.QuestionType, &s.Source, &status,
			&acceptedQ, &acceptedA, &approvedSlots, &s.CreatedAt, &s.UpdatedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("failed to scan question summary: %w", err)
		}
		s.Status = question.Status(status)
		if acceptedQ != "" && acceptedA != "" {
			s.OCRProgress = 100
		}
		s.RewriteProgress = approvedSlots * 20
		summaries = append(summaries, s)
	}
	return summaries, total, rows.Err()
}

func applyListFilters(b sq.SelectBuilder, opts question.ListOptions) sq.SelectBuilder {
	if opts.Status != "" {
		b = b.Where(sq.Eq{"q.status": string(opts.Status)})
	}
	if opts.Subject != "" {
		b = b.Where(sq.Eq{"q.subject": opts.Subject})
	}
	if opts.Grade != "" {
		b = b.Where(sq.Eq{"q.grade": opts.Grade})
	}
	if opts.QuestionType != "" {
		b = b.Where(sq.Eq{"q.question_type": opts.QuestionType})
	}
	if opts.Source != "" {
		b = b.Where(sq.Eq{"q.source": opts.Source})
	}
	if opts.AssignedTo != "" {
		b = b.Where(sq.Or{
			sq.Eq{"q.ocr_editor_id": opts.AssignedTo},
			sq.Eq{"q.ocr_reviewer_id": opts.AssignedTo},
			sq.Eq{"q.rewrite_editor_id": opts.AssignedTo},
			sq.Eq{"q.rewrite_reviewer_id": opts.AssignedTo},
		})
	}
	if opts.ActiveOnly {
		b = b.Where(sq.NotEq{"q.status": []string{
			string(question.StatusDone), string(question.StatusArchived),
		}})
	}
	return b
}

// Stats returns the dashboard aggregates. In-progress means anything past
// new that is not done or archived; my-tasks counts questions where the
// user holds any assignment.
func (r *QuestionRepository) Stats(ctx context.Context, userID string) (question.Stats, error) {
	var stats question.Stats

	err := r.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COUNT(CASE WHEN status = 'done' THEN 1 END),
			COUNT(CASE WHEN status NOT IN ('new', 'done', 'archived') THEN 1 END)
		FROM questions
	`).Scan(&stats.TotalQuestions, &stats.CompletedQuestions, &stats.InProgressQuestions)
	if err != nil {
		return question.Stats{}, fmt.Errorf("failed to compute stats: %w", err)
	}

	if userID != "" {
		err = r.db.QueryRowContext(ctx, `
			SELECT COUNT(*)
			FROM questions
			WHERE status NOT IN ('done', 'archived')
			  AND (ocr_editor_id = ? OR ocr_reviewer_id = ?
			       OR rewrite_editor_id = ? OR rewrite_reviewer_id = ?)
		`, userID, userID, userID, userID).Scan(&stats.MyTasks)
		if err != nil {
			return question.Stats{}, fmt.Errorf("failed to compute my tasks: %w", err)
		}
	}

	return stats, nil
}

func reviewStatusOrPending(s question.ReviewStatus) question.ReviewStatus {
	if s == "" {
		return question.ReviewPending
	}
	return s
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
