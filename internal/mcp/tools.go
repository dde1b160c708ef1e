package mcp

import (
	"context"
	"fmt"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/shangji-io/shangji/internal/domain/question"
)

type listQuestionsInput struct {
	Status       string `json:"status,omitempty" jsonschema:"lifecycle status filter (new, ocr_editing, ocr_reviewing, ocr_approved, rewrite_generating, rewrite_editing, rewrite_reviewing, done, archived)"`
	Subject      string `json:"subject,omitempty" jsonschema:"subject filter"`
	Grade        string `json:"grade,omitempty" jsonschema:"grade filter"`
	QuestionType string `json:"question_type,omitempty" jsonschema:"question type filter"`
	Source       string `json:"source,omitempty" jsonschema:"source filter"`
	Page         int    `json:"page,omitempty" jsonschema:"page number, starting at 1"`
	PageSize     int    `json:"page_size,omitempty" jsonschema:"results per page, max 100"`
}

type listQuestionsOutput struct {
	Items    []question.Summary `json:"items"`
	Total    int                `json:"total"`
	Page     int                `json:"page"`
	PageSize int                `json:"page_size"`
}

type getQuestionInput struct {
	ID string `json:"id" jsonschema:"question identifier"`
}

type dashboardStatsInput struct{}

func registerTools(server *sdkmcp.Server, questions QuestionService) {
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "list_questions",
		Description: "List questions in the digitization pipeline, filtered by status and classification",
	}, func(ctx context.Context, _ *sdkmcp.CallToolRequest, input listQuestionsInput) (*sdkmcp.CallToolResult, listQuestionsOutput, error) {
		opts := question.ListOptions{
			Status:       question.Status(input.Status),
			Subject:      input.Subject,
			Grade:        input.Grade,
			QuestionType: input.QuestionType,
			Source:       input.Source,
			Page:         input.Page,
			PageSize:     input.PageSize,
		}
		items, total, err := questions.List(ctx, opts)
		if err != nil {
			return nil, listQuestionsOutput{}, fmt.Errorf("listing questions: %w", err)
		}
		opts.Normalize()
		return nil, listQuestionsOutput{
			Items:    items,
			Total:    total,
			Page:     opts.Page,
			PageSize: opts.PageSize,
		}, nil
	})

	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "get_question",
		Description: "Get the full lifecycle record of one question, including OCR content and the five rewrite slots",
	}, func(ctx context.Context, _ *sdkmcp.CallToolRequest, input getQuestionInput) (*sdkmcp.CallToolResult, *question.Question, error) {
		q, err := questions.Get(ctx, input.ID)
		if err != nil {
			return nil, nil, fmt.Errorf("getting question: %w", err)
		}
		return nil, q, nil
	})

	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "dashboard_stats",
		Description: "Get aggregate pipeline counts: total, completed, in progress, and the caller's open tasks",
	}, func(ctx context.Context, _ *sdkmcp.CallToolRequest, _ dashboardStatsInput) (*sdkmcp.CallToolResult, question.Stats, error) {
		actor, ok := actorFromContext(ctx)
		if !ok {
			return nil, question.Stats{}, fmt.Errorf("unauthorized: no authenticated user")
		}
		stats, err := questions.Stats(ctx, actor)
		if err != nil {
			return nil, question.Stats{}, fmt.Errorf("getting stats: %w", err)
		}
		return nil, stats, nil
	})
}
