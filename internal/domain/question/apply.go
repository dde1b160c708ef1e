package question

import "time"

// Placeholder content written when an external job cannot supply real
// text. The workflow continues with these markers so a record is never
// stuck waiting on a dead job.
const (
	PlaceholderManualEntry      = "# 待人工录入\n请根据图片录入题目内容"
	PlaceholderMissingAnswer    = "# 待补充\n请补充答案内容"
	PlaceholderGenerationFailed = "# 生成失败\n请人工编辑"
	PlaceholderServiceFailed    = "# API调用失败\n请人工编辑"
)

// Job results are applied through the functions below. Each validates the
// question's status and the (kind, epoch) idempotency key before mutating,
// so an at-least-once delivery or a result from a superseded job is
// discarded with ErrStaleResult instead of applied twice.

func checkRecognitionEpoch(q *Question, epoch int64) error {
	if epoch != q.RecognitionEpoch || epoch <= q.RecognitionAppliedEpoch {
		return ErrStaleResult
	}
	return nil
}

func checkRewriteEpoch(q *Question, epoch int64) error {
	if epoch != q.RewriteEpoch || epoch <= q.RewriteAppliedEpoch {
		return ErrStaleResult
	}
	return nil
}

// ApplyRecognitionResult writes the recognition service output into the
// raw OCR fields and seeds empty drafts with it. Status does not change;
// the question entered ocr_editing when the job was triggered.
func ApplyRecognitionResult(q *Question, epoch int64, text, answer string, now time.Time) error {
	if q.Status != StatusOCREditing {
		return ErrStaleResult
	}
	if err := checkRecognitionEpoch(q, epoch); err != nil {
		return err
	}

	q.OCRRawQuestion = text
	q.OCRRawAnswer = answer
	if q.DraftQuestion == "" {
		q.DraftQuestion = text
	}
	if q.DraftAnswer == "" {
		q.DraftAnswer = answer
		if answer == "" {
			q.DraftAnswer = PlaceholderMissingAnswer
		}
	}

	q.RecognitionAppliedEpoch = epoch
	q.UpdatedAt = now
	return nil
}

// ApplyRecognitionFailure records a recognition job that exhausted its
// retries. Raw content already produced by an earlier run is kept.
func ApplyRecognitionFailure(q *Question, epoch int64, now time.Time) error {
	if q.Status != StatusOCREditing {
		return ErrStaleResult
	}
	if err := checkRecognitionEpoch(q, epoch); err != nil {
		return err
	}

	if q.OCRRawQuestion == "" {
		q.OCRRawQuestion = PlaceholderManualEntry
	}
	if q.DraftQuestion == "" {
		q.DraftQuestion = PlaceholderManualEntry
	}
	if q.DraftAnswer == "" {
		q.DraftAnswer = PlaceholderMissingAnswer
	}

	q.RecognitionAppliedEpoch = epoch
	q.UpdatedAt = now
	return nil
}

// BeginRewriteGeneration moves an approved question into
// rewrite_generating when its generation job starts executing.
func BeginRewriteGeneration(q *Question, epoch int64, now time.Time) error {
	if q.Status != StatusOCRApproved {
		return ErrStaleResult
	}
	if epoch != q.RewriteEpoch || epoch <= q.RewriteAppliedEpoch {
		return ErrStaleResult
	}
	q.Status = StatusRewriteGenerating
	q.UpdatedAt = now
	return nil
}

// ApplyRewriteResult fills the five draft slots from the generated
// candidates and hands the question to the rewrite editor. Missing
// candidates become explicit manual-authoring markers.
func ApplyRewriteResult(q *Question, epoch int64, pairs []RewritePair, promptVersion int, now time.Time) error {
	if q.Status != StatusRewriteGenerating {
		return ErrStaleResult
	}
	if err := checkRewriteEpoch(q, epoch); err != nil {
		return err
	}

	for i := range q.Rewrites {
		slot := &q.Rewrites[i]
		if i < len(pairs) && pairs[i].Question != "" {
			slot.DraftQuestion = pairs[i].Question
			slot.DraftAnswer = pairs[i].Answer
		} else {
			slot.DraftQuestion = PlaceholderGenerationFailed
			slot.DraftAnswer = PlaceholderGenerationFailed
		}
		slot.Review = ReviewRecord{Status: ReviewPending}
	}

	q.PromptVersion = promptVersion
	q.Status = StatusRewriteEditing
	q.RewriteAppliedEpoch = epoch
	q.UpdatedAt = now
	return nil
}

// ApplyRewriteFailure records a generation job that exhausted its retries
// and still moves the question to the editor with placeholder drafts.
func ApplyRewriteFailure(q *Question, epoch int64, now time.Time) error {
	if q.Status != StatusRewriteGenerating {
		return ErrStaleResult
	}
	if err := checkRewriteEpoch(q, epoch); err != nil {
		return err
	}

	for i := range q.Rewrites {
		q.Rewrites[i].DraftQuestion = PlaceholderServiceFailed
		q.Rewrites[i].DraftAnswer = PlaceholderServiceFailed
		q.Rewrites[i].Review = ReviewRecord{Status: ReviewPending}
	}

	q.Status = StatusRewriteEditing
	q.RewriteAppliedEpoch = epoch
	q.UpdatedAt = now
	return nil
}

// ApplyRewriteSlotResult overwrites a single slot's draft pair after a
// regeneration job. Status stays rewrite_editing.
func ApplyRewriteSlotResult(q *Question, epoch int64, index int, pair RewritePair, now time.Time) error {
	if err := ValidateSlot(index); err != nil {
		return err
	}
	if q.Status != StatusRewriteEditing {
		return ErrStaleResult
	}
	if err := checkRewriteEpoch(q, epoch); err != nil {
		return err
	}

	slot := &q.Rewrites[index-1]
	if pair.Question != "" {
		slot.DraftQuestion = pair.Question
		slot.DraftAnswer = pair.Answer
	} else {
		slot.DraftQuestion = PlaceholderGenerationFailed
		slot.DraftAnswer = PlaceholderGenerationFailed
	}
	slot.Review = ReviewRecord{Status: ReviewPending}

	q.RewriteAppliedEpoch = epoch
	q.UpdatedAt = now
	return nil
}

// ApplyRewriteSlotFailure records a failed regeneration for one slot.
func ApplyRewriteSlotFailure(q *Question, epoch int64, index int, now time.Time) error {
	if err := ValidateSlot(index); err != nil {
		return err
	}
	if q.Status != StatusRewriteEditing {
		return ErrStaleResult
	}
	if err := checkRewriteEpoch(q, epoch); err != nil {
		return err
	}

	slot := &q.Rewrites[index-1]
	slot.DraftQuestion = PlaceholderServiceFailed
	slot.DraftAnswer = PlaceholderServiceFailed
	slot.Review = ReviewRecord{Status: ReviewPending}

	q.RewriteAppliedEpoch = epoch
	q.UpdatedAt = now
	return nil
}
