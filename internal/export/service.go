// Package export produces XLSX workbooks of completed questions.
package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shangji-io/shangji/internal/domain/question"
	"github.com/xuri/excelize/v2"
)

// QuestionReader is the slice of the question service the exporter needs.
type QuestionReader interface {
	List(ctx context.Context, opts question.ListOptions) ([]question.Summary, int, error)
	Get(ctx context.Context, id string) (*question.Question, error)
}

// Service renders finished questions into a workbook.
type Service struct {
	questions QuestionReader
	logger    *slog.Logger
}

// NewService creates an export service.
func NewService(questions QuestionReader, logger *slog.Logger) *Service {
	return &Service{questions: questions, logger: logger}
}

const sheet = "Questions"

var headers = []string{
	"ID", "Subject", "Grade", "Type", "Source",
	"Question", "Answer",
	"Rewrite 1 Question", "Rewrite 1 Answer",
	"Rewrite 2 Question", "Rewrite 2 Answer",
	"Rewrite 3 Question", "Rewrite 3 Answer",
	"Rewrite 4 Question", "Rewrite 4 Answer",
	"Rewrite 5 Question", "Rewrite 5 Answer",
	"OCR Completed", "Rewrite Completed",
}

// ExportDoneXLSX returns a workbook containing every question in state
// done, with the accepted OCR pair and all five accepted rewrite pairs.
func (s *Service) ExportDoneXLSX(ctx context.Context) ([]byte, error) {
	start := time.Now()

	f := excelize.NewFile()
	index, err := f.NewSheet(sheet)
	if err != nil {
		return nil, fmt.Errorf("creating sheet: %w", err)
	}
	f.SetActiveSheet(index)
	_ = f.DeleteSheet("Sheet1")

	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	row := 2
	page := 1
	for {
		summaries, total, err := s.questions.List(ctx, question.ListOptions{
			Status:   question.StatusDone,
			Page:     page,
			PageSize: 100,
		})
		if err != nil {
			return nil, fmt.Errorf("listing completed questions: %w", err)
		}

		for _, summary := range summaries {
			q, err := s.questions.Get(ctx, summary.ID)
			if err != nil {
				return nil, fmt.Errorf("loading question %s: %w", summary.ID, err)
			}
			if err := s.writeRow(f, row, q); err != nil {
				return nil, err
			}
			row++
		}

		if page*100 >= total || len(summaries) == 0 {
			break
		}
		page++
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("writing workbook: %w", err)
	}

	s.logger.Info("export produced", "rows", row-2, "elapsed_ms", time.Since(start).Milliseconds())
	return buf.Bytes(), nil
}

func (s *Service) writeRow(f *excelize.File, row int, q *question.Question) error {
	values := []any{
		q.ID, q.Subject, q.Grade, q.QuestionType, q.Source,
		q.AcceptedQuestion, q.AcceptedAnswer,
	}
	for i := range q.Rewrites {
		values = append(values, q.Rewrites[i].AcceptedQuestion, q.Rewrites[i].AcceptedAnswer)
	}
	values = append(values, formatTime(q.OCRCompletedAt), formatTime(q.RewriteCompletedAt))

	for col, v := range values {
		cell, err := excelize.CoordinatesToCellName(col+1, row)
		if err != nil {
			return fmt.Errorf("addressing cell: %w", err)
		}
		if err := f.SetCellValue(sheet, cell, v); err != nil {
			return fmt.Errorf("writing cell %s: %w", cell, err)
		}
	}
	return nil
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
