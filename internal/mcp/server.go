package mcp

import (
	"context"
	"log/slog"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/shangji-io/shangji/internal/domain/question"
	"github.com/shangji-io/shangji/internal/domain/user"
)

const serverInstructions = `Shangji exposes a read-only view of the exam
question digitization pipeline. Use list_questions to browse the queue,
get_question for the full lifecycle record of one question (OCR drafts,
accepted content, the five rewrite slots and their reviews), and
dashboard_stats for aggregate progress counts. All mutations go through
the REST API.`

// QuestionService defines question operations needed by MCP.
type QuestionService interface {
	Get(ctx context.Context, id string) (*question.Question, error)
	List(ctx context.Context, opts question.ListOptions) ([]question.Summary, int, error)
	Stats(ctx context.Context, actor *user.User) (question.Stats, error)
}

// Config contains server configuration.
type Config struct {
	Questions QuestionService
	Resolver  UserResolver
	Logger    *slog.Logger
}

// NewServer creates an MCP server exposing the read-only tools.
func NewServer(cfg Config) *sdkmcp.Server {
	server := sdkmcp.NewServer(&sdkmcp.Implementation{
		Name:    "shangji",
		Version: "0.1.0",
	}, &sdkmcp.ServerOptions{
		Instructions: serverInstructions,
		Logger:       cfg.Logger,
	})

	if cfg.Resolver != nil {
		server.AddReceivingMiddleware(authMiddleware(cfg.Resolver))
	} else {
		// Local development only: every call acts as a built-in admin.
		server.AddReceivingMiddleware(noAuthMiddleware(localAdmin()))
	}
	server.AddReceivingMiddleware(loggingMiddleware(cfg.Logger))

	registerTools(server, cfg.Questions)

	return server
}
