package mocks

import (
	"context"

	"github.com/shangji-io/shangji/internal/domain/question"
	"github.com/shangji-io/shangji/internal/domain/user"
	"github.com/stretchr/testify/mock"
)

// QuestionRepository is a mock for question.QuestionRepository.
type QuestionRepository struct {
	mock.Mock
}

func (m *QuestionRepository) Create(ctx context.Context, q *question.Question) error {
	args := m.Called(ctx, q)
	return args.Error(0)
}

func (m *QuestionRepository) Get(ctx context.Context, id string) (*question.Question, error) {
	args := m.Called(ctx, id)
	if q, ok := args.Get(0).(*question.Question); ok {
		return q, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *QuestionRepository) Update(ctx context.Context, q *question.Question, expectedVersion int64) error {
	args := m.Called(ctx, q, expectedVersion)
	return args.Error(0)
}

func (m *QuestionRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *QuestionRepository) List(ctx context.Context, opts question.ListOptions) ([]question.Summary, int, error) {
	args := m.Called(ctx, opts)
	if list, ok := args.Get(0).([]question.Summary); ok {
		return list, args.Int(1), args.Error(2)
	}
	return nil, args.Int(1), args.Error(2)
}

func (m *QuestionRepository) Stats(ctx context.Context, userID string) (question.Stats, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(question.Stats), args.Error(1)
}

// UserRepository is a mock for user.UserRepository.
type UserRepository struct {
	mock.Mock
}

func (m *UserRepository) Upsert(ctx context.Context, u *user.User) error {
	args := m.Called(ctx, u)
	return args.Error(0)
}

func (m *UserRepository) Get(ctx context.Context, id string) (*user.User, error) {
	args := m.Called(ctx, id)
	if u, ok := args.Get(0).(*user.User); ok {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *UserRepository) GetByUsername(ctx context.Context, username string) (*user.User, error) {
	args := m.Called(ctx, username)
	if u, ok := args.Get(0).(*user.User); ok {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *UserRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*user.User, error) {
	args := m.Called(ctx, tokenHash)
	if u, ok := args.Get(0).(*user.User); ok {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *UserRepository) FirstActiveByRole(ctx context.Context, role user.Role) (*user.User, error) {
	args := m.Called(ctx, role)
	if u, ok := args.Get(0).(*user.User); ok {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}

// AssigneePicker is a mock for question.AssigneePicker.
type AssigneePicker struct {
	mock.Mock
}

func (m *AssigneePicker) PickAssignee(ctx context.Context, role user.Role) (string, error) {
	args := m.Called(ctx, role)
	return args.String(0), args.Error(1)
}

// JobLauncher is a mock for question.JobLauncher.
type JobLauncher struct {
	mock.Mock
}

func (m *JobLauncher) LaunchRecognition(id string, epoch int64, images []string) {
	m.Called(id, epoch, images)
}

func (m *JobLauncher) LaunchRewrite(id string, epoch int64, questionText, answerText string) {
	m.Called(id, epoch, questionText, answerText)
}

func (m *JobLauncher) LaunchRewriteSlot(id string, epoch int64, index int, questionText, answerText string) {
	m.Called(id, epoch, index, questionText, answerText)
}
