package question

import (
	"strings"

	"github.com/shangji-io/shangji/internal/domain/user"
)

// Event names a state-machine operation on a question.
type Event string

const (
	EventTriggerRecognition    Event = "trigger_recognition"
	EventSaveOCRDraft          Event = "save_ocr_draft"
	EventSubmitOCREdit         Event = "submit_ocr_edit"
	EventSubmitOCRReview       Event = "submit_ocr_review"
	EventSaveRewriteDraft      Event = "save_rewrite_draft"
	EventSubmitRewriteEdit     Event = "submit_rewrite_edit"
	EventSubmitAllRewriteEdits Event = "submit_all_rewrite_edits"
	EventSubmitRewriteReview   Event = "submit_rewrite_review"
	EventRegenerateRewrite     Event = "regenerate_rewrite"
	EventArchive               Event = "archive"
)

type transitionRule struct {
	role user.Role
	from map[Status]bool
}

var nonTerminalStates = map[Status]bool{
	StatusNew:               true,
	StatusOCREditing:        true,
	StatusOCRReviewing:      true,
	StatusOCRApproved:       true,
	StatusRewriteGenerating: true,
	StatusRewriteEditing:    true,
	StatusRewriteReviewing:  true,
}

// transitionTable is the full legality map for workflow events. Anything
// not listed here fails with ErrInvalidTransition.
var transitionTable = map[Event]transitionRule{
	EventTriggerRecognition: {
		role: user.RoleOCREditor,
		from: map[Status]bool{StatusNew: true, StatusOCREditing: true},
	},
	EventSaveOCRDraft: {
		role: user.RoleOCREditor,
		from: map[Status]bool{StatusOCREditing: true},
	},
	EventSubmitOCREdit: {
		role: user.RoleOCREditor,
		from: map[Status]bool{StatusOCREditing: true},
	},
	EventSubmitOCRReview: {
		role: user.RoleOCRReviewer,
		from: map[Status]bool{StatusOCRReviewing: true},
	},
	EventSaveRewriteDraft: {
		role: user.RoleRewriteEditor,
		from: map[Status]bool{StatusRewriteEditing: true},
	},
	EventSubmitRewriteEdit: {
		role: user.RoleRewriteEditor,
		from: map[Status]bool{StatusRewriteEditing: true},
	},
	EventSubmitAllRewriteEdits: {
		role: user.RoleRewriteEditor,
		from: map[Status]bool{StatusRewriteEditing: true},
	},
	EventSubmitRewriteReview: {
		role: user.RoleRewriteReviewer,
		from: map[Status]bool{StatusRewriteReviewing: true},
	},
	EventRegenerateRewrite: {
		role: user.RoleRewriteEditor,
		from: map[Status]bool{StatusRewriteEditing: true},
	},
	EventArchive: {
		role: user.RoleAdmin,
		from: nonTerminalStates,
	},
}

// CheckTransition gates an event against the actor's role and the current
// status. The role check runs first: an unauthorized caller learns nothing
// about whether the state machine would have accepted the event.
func CheckTransition(actor *user.User, ev Event, current Status) error {
	rule, ok := transitionTable[ev]
	if !ok {
		return ErrInvalidTransition
	}
	if !actor.Satisfies(rule.role) {
		return ErrNotAuthorized
	}
	if !rule.from[current] {
		return ErrInvalidTransition
	}
	return nil
}

// RequiredRole returns the role the event demands.
func RequiredRole(ev Event) (user.Role, bool) {
	rule, ok := transitionTable[ev]
	return rule.role, ok
}

var validSubjects = map[string]bool{
	"数学": true, "物理": true, "化学": true, "生物": true, "语文": true,
	"英语": true, "历史": true, "地理": true, "政治": true,
}

var validGrades = map[string]bool{
	"小学": true, "初中": true, "高中": true,
}

var validQuestionTypes = map[string]bool{
	"选择题": true, "判断题": true, "填空题": true, "简答题": true,
	"论述题": true, "计算题": true, "证明题": true,
}

var validSources = map[string]bool{
	"HLE": true, "教材": true, "考试": true, "练习": true, "自定义": true,
}

// DefaultSource is used when a creation request omits the source.
const DefaultSource = "HLE"

// ValidateClassification checks the closed classification vocabularies.
func ValidateClassification(subject, grade, questionType, source string) error {
	if !validSubjects[subject] {
		return ErrInvalidInput
	}
	if !validGrades[grade] {
		return ErrInvalidInput
	}
	if !validQuestionTypes[questionType] {
		return ErrInvalidInput
	}
	if !validSources[source] {
		return ErrInvalidInput
	}
	return nil
}

// ValidateCreateInput validates fields required to create a question.
func ValidateCreateInput(req CreateRequest) error {
	source := req.Source
	if source == "" {
		source = DefaultSource
	}
	if err := ValidateClassification(req.Subject, req.Grade, req.QuestionType, source); err != nil {
		return err
	}
	if len(req.Images) == 0 {
		return ErrMissingImages
	}
	for _, img := range req.Images {
		if strings.TrimSpace(img) == "" {
			return ErrMissingImages
		}
	}
	return nil
}

// ValidateSlot checks a rewrite index given in API terms (1-based).
func ValidateSlot(index int) error {
	if index < 1 || index > RewriteSlots {
		return ErrInvalidSlot
	}
	return nil
}
