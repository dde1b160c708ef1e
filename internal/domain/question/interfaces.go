package question

import (
	"context"

	"github.com/shangji-io/shangji/internal/domain/user"
)

// QuestionRepository provides persistence for questions.
type QuestionRepository interface {
	Create(ctx context.Context, q *Question) error
	Get(ctx context.Context, id string) (*Question, error)
	Update(ctx context.Context, q *Question, expectedVersion int64) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, opts ListOptions) ([]Summary, int, error)
	Stats(ctx context.Context, userID string) (Stats, error)
}

// AssigneePicker selects a user to assign when a question enters a phase.
// An empty ID means nobody currently holds the role and the question stays
// unassigned.
type AssigneePicker interface {
	PickAssignee(ctx context.Context, role user.Role) (string, error)
}

// JobLauncher hands external work to the task orchestrator. Launch calls
// return after enqueueing; results arrive later through the repository
// under the same versioned-write discipline as user transitions.
type JobLauncher interface {
	LaunchRecognition(id string, epoch int64, images []string)
	LaunchRewrite(id string, epoch int64, questionText, answerText string)
	LaunchRewriteSlot(id string, epoch int64, index int, questionText, answerText string)
}
