package testserver

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/shangji-io/shangji/internal/async"
	"github.com/shangji-io/shangji/internal/domain/question"
	"github.com/shangji-io/shangji/internal/domain/user"
	"github.com/shangji-io/shangji/internal/export"
	"github.com/shangji-io/shangji/internal/orchestrator"
	"github.com/shangji-io/shangji/internal/recognition"
	"github.com/shangji-io/shangji/internal/rewrite"
	"github.com/shangji-io/shangji/internal/sqlite"
	"github.com/shangji-io/shangji/internal/transport"
)

// Tokens issued for the seeded accounts, keyed by role.
const (
	TokenAdmin           = "tok-admin"
	TokenSubmitter       = "tok-submitter"
	TokenOCREditor       = "tok-ocr-editor"
	TokenOCRReviewer     = "tok-ocr-reviewer"
	TokenRewriteEditor   = "tok-rewrite-editor"
	TokenRewriteReviewer = "tok-rewrite-reviewer"
)

// StubRecognition is a scriptable recognition client.
type StubRecognition struct {
	mu     sync.Mutex
	result recognition.Result
	err    error
}

// SetResult scripts the next poll outcome.
func (s *StubRecognition) SetResult(res recognition.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.result = res
	s.err = nil
}

// SetError scripts submit/poll failures, e.g. recognition.ErrUnconfigured.
func (s *StubRecognition) SetError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *StubRecognition) Submit(_ context.Context, _ []string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	return "stub-recognition-job", nil
}

func (s *StubRecognition) Poll(_ context.Context, _ string) (recognition.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return recognition.Result{}, s.err
	}
	return s.result, nil
}

// StubRewrite is a scriptable rewrite client.
type StubRewrite struct {
	mu     sync.Mutex
	result rewrite.Result
	err    error
}

func (s *StubRewrite) SetResult(res rewrite.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.result = res
	s.err = nil
}

func (s *StubRewrite) SetError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *StubRewrite) Submit(_ context.Context, _ rewrite.Request) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	return "stub-rewrite-job", nil
}

func (s *StubRewrite) Poll(_ context.Context, _ string) (rewrite.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return rewrite.Result{}, s.err
	}
	return s.result, nil
}

// TestServer assembles the full stack over an in-memory database.
type TestServer struct {
	Server       *httptest.Server
	DB           *sqlite.DB
	Questions    *question.Service
	Users        *user.Service
	Recognition  *StubRecognition
	Rewrite      *StubRewrite
	Orchestrator *orchestrator.Orchestrator
}

func New(t *testing.T) *TestServer {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := sqlite.New(dsn)
	require.NoError(t, err)
	require.NoError(t, db.RunMigrations())

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	questionRepo := sqlite.NewQuestionRepository(db)
	userRepo := sqlite.NewUserRepository(db)

	userSvc := user.NewService(userRepo, logger)
	require.NoError(t, userSvc.SeedUsers(context.Background(), seedUsers()))

	recognizer := &StubRecognition{}
	rewriter := &StubRewrite{}

	orch := orchestrator.New(questionRepo, recognizer, rewriter, logger,
		orchestrator.Options{
			PollInterval: time.Millisecond,
			PollTimeout:  2 * time.Second,
			MaxAttempts:  2,
			BackoffBase:  time.Millisecond,
		},
		async.WithWorkers(2), async.WithJobTimeout(5*time.Second),
	)

	questionSvc := question.NewService(questionRepo, userSvc, orch, logger)
	exportSvc := export.NewService(questionSvc, logger)

	server := httptest.NewServer(transport.NewRouter(questionSvc, exportSvc, userSvc, nil, logger))

	t.Cleanup(func() {
		server.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		orch.Shutdown(ctx)
		_ = db.Close()
	})

	return &TestServer{
		Server:       server,
		DB:           db,
		Questions:    questionSvc,
		Users:        userSvc,
		Recognition:  recognizer,
		Rewrite:      rewriter,
		Orchestrator: orch,
	}
}

func seedUsers() []user.Seed {
	return []user.Seed{
		{Username: "admin", FullName: "管理员", Role: user.RoleAdmin, Superuser: true, Token: TokenAdmin},
		{Username: "submitter", FullName: "录题员", Role: user.RoleQuestionSubmitter, Token: TokenSubmitter},
		{Username: "ocr-editor", FullName: "OCR编辑", Role: user.RoleOCREditor, Token: TokenOCREditor},
		{Username: "ocr-reviewer", FullName: "OCR审核", Role: user.RoleOCRReviewer, Token: TokenOCRReviewer},
		{Username: "rewrite-editor", FullName: "改编编辑", Role: user.RoleRewriteEditor, Token: TokenRewriteEditor},
		{Username: "rewrite-reviewer", FullName: "改编审核", Role: user.RoleRewriteReviewer, Token: TokenRewriteReviewer},
	}
}
