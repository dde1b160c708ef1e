package question

import "time"

// Status is the single lifecycle state of a question.
type Status string

const (
	StatusNew               Status = "new"
	StatusOCREditing        Status = "ocr_editing"
	StatusOCRReviewing      Status = "ocr_reviewing"
	StatusOCRApproved       Status = "ocr_approved"
	StatusRewriteGenerating Status = "rewrite_generating"
	StatusRewriteEditing    Status = "rewrite_editing"
	StatusRewriteReviewing  Status = "rewrite_reviewing"
	StatusDone              Status = "done"
	StatusArchived          Status = "archived"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusNew, StatusOCREditing, StatusOCRReviewing, StatusOCRApproved,
		StatusRewriteGenerating, StatusRewriteEditing, StatusRewriteReviewing,
		StatusDone, StatusArchived:
		return true
	}
	return false
}

// Terminal reports whether no further transitions leave s.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusArchived
}

// ReviewStatus is the decision state of a single review record.
type ReviewStatus string

const (
	ReviewPending          ReviewStatus = "pending"
	ReviewApproved         ReviewStatus = "approved"
	ReviewChangesRequested ReviewStatus = "changes_requested"
)

// ReviewRecord captures one reviewer decision on a slot.
// Comment is non-empty whenever Status is changes_requested.
type ReviewRecord struct {
	Status     ReviewStatus `json:"status"`
	Comment    string       `json:"comment,omitempty"`
	ReviewerID string       `json:"reviewer_id,omitempty"`
	ReviewedAt *time.Time   `json:"reviewed_at,omitempty"`
}

// RewriteSlots is the fixed fan-out width of the rewrite phase.
const RewriteSlots = 5

// RewriteSlot is one of the five independently edited and reviewed
// derivative variants of a question.
type RewriteSlot struct {
	DraftQuestion    string       `json:"draft_question,omitempty"`
	DraftAnswer      string       `json:"draft_answer,omitempty"`
	AcceptedQuestion string       `json:"question,omitempty"`
	AcceptedAnswer   string       `json:"answer,omitempty"`
	EditComment      string       `json:"edit_comment,omitempty"`
	Review           ReviewRecord `json:"review"`
}

// RewritePair is a generated question/answer candidate before it lands in
// a slot's draft fields.
type RewritePair struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Question is the central entity: source images, the OCR slot, five
// rewrite slots, assignments, and the orchestrator's job bookkeeping.
// Version is the optimistic concurrency counter every write goes through.
type Question struct {
	ID string `json:"id"`

	Subject      string   `json:"subject"`
	Grade        string   `json:"grade"`
	QuestionType string   `json:"question_type"`
	Source       string   `json:"source"`
	Tags         []string `json:"tags"`
	Images       []string `json:"images"`

	OCRRawQuestion   string       `json:"ocr_raw_question,omitempty"`
	OCRRawAnswer     string       `json:"ocr_raw_answer,omitempty"`
	DraftQuestion    string       `json:"draft_original_question,omitempty"`
	DraftAnswer      string       `json:"draft_original_answer,omitempty"`
	AcceptedQuestion string       `json:"original_question,omitempty"`
	AcceptedAnswer   string       `json:"original_answer,omitempty"`
	OCRReview        ReviewRecord `json:"ocr_review"`

	Rewrites      [RewriteSlots]RewriteSlot `json:"rewrites"`
	PromptVersion int                       `json:"rewrite_prompt_version"`

	OCREditorID       string `json:"ocr_editor_id,omitempty"`
	OCRReviewerID     string `json:"ocr_reviewer_id,omitempty"`
	RewriteEditorID   string `json:"rewrite_editor_id,omitempty"`
	RewriteReviewerID string `json:"rewrite_reviewer_id,omitempty"`

	Status Status `json:"status"`

	RecognitionEpoch        int64  `json:"-"`
	RecognitionAppliedEpoch int64  `json:"-"`
	RecognitionHandle       string `json:"-"`
	RewriteEpoch            int64  `json:"-"`
	RewriteAppliedEpoch     int64  `json:"-"`
	RewriteHandle           string `json:"-"`

	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
	OCRCompletedAt     *time.Time `json:"ocr_completed_at,omitempty"`
	RewriteCompletedAt *time.Time `json:"rewrite_completed_at,omitempty"`

	Version int64 `json:"version"`
}

// Summary is a lightweight list-view projection of a question.
type Summary struct {
	ID              string    `json:"id"`
	Subject         string    `json:"subject"`
	Grade           string    `json:"grade"`
	QuestionType    string    `json:"question_type"`
	Source          string    `json:"source"`
	Status          Status    `json:"status"`
	OCRProgress     int       `json:"ocr_progress"`
	RewriteProgress int       `json:"rewrite_progress"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Stats are the dashboard aggregate counts.
type Stats struct {
	TotalQuestions      int `json:"total_questions"`
	CompletedQuestions  int `json:"completed_questions"`
	InProgressQuestions int `json:"in_progress_questions"`
	MyTasks             int `json:"my_tasks"`
}
