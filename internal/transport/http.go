package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/shangji-io/shangji/internal/domain/question"
	"github.com/shangji-io/shangji/internal/domain/user"
)

// Exporter produces the completed-questions workbook.
type Exporter interface {
	ExportDoneXLSX(ctx context.Context) ([]byte, error)
}

// Server wires HTTP handlers over the question service.
type Server struct {
	questions *question.Service
	exporter  Exporter
	logger    *slog.Logger
}

// NewRouter creates the REST router. mcpHandler, when non-nil, is mounted
// at /mcp inside the authenticated group.
func NewRouter(questions *question.Service, exporter Exporter, resolver UserResolver, mcpHandler http.Handler, logger *slog.Logger) *chi.Mux {
	srv := &Server{questions: questions, exporter: exporter, logger: logger}

	r := chi.NewRouter()
	r.Get("/health", srv.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(resolver))

		r.Route("/questions", func(r chi.Router) {
			r.Post("/", srv.handleCreate)
			r.Get("/", srv.handleList)
			r.Get("/my/tasks", srv.handleMyTasks)
			r.Get("/stats/dashboard", srv.handleStats)
			r.Get("/export", srv.handleExport)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", srv.handleGet)
				r.Put("/", srv.handleUpdateMeta)
				r.Delete("/", srv.handleDelete)
				r.Put("/assign", srv.handleAssign)
				r.Post("/archive", srv.handleArchive)

				r.Post("/ocr/trigger", srv.handleOCRTrigger)
				r.Put("/ocr/draft", srv.handleOCRDraft)
				r.Post("/ocr/submit", srv.handleOCRSubmit)
				r.Post("/ocr/review", srv.handleOCRReview)

				r.Post("/rewrite/submit-all", srv.handleRewriteSubmitAll)
				r.Route("/rewrite/{index}", func(r chi.Router) {
					r.Put("/", srv.handleRewriteDraft)
					r.Post("/submit", srv.handleRewriteSubmit)
					r.Post("/review", srv.handleRewriteReview)
					r.Post("/regenerate", srv.handleRewriteRegenerate)
				})
			})
		})
	})

	// MCP does its own bearer auth from request headers.
	if mcpHandler != nil {
		r.Handle("/mcp", mcpHandler)
		r.Handle("/mcp/*", mcpHandler)
	}

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

type createBody struct {
	Subject      string   `json:"subject"`
	Grade        string   `json:"grade"`
	QuestionType string   `json:"question_type"`
	Source       string   `json:"source"`
	Tags         []string `json:"tags"`
	Images       []string `json:"images"`
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	actor, ok := UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing user")
		return
	}
	var body createBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	q, err := s.questions.Create(r.Context(), actor, question.CreateRequest{
		Subject:      body.Subject,
		Grade:        body.Grade,
		QuestionType: body.QuestionType,
		Source:       body.Source,
		Tags:         body.Tags,
		Images:       body.Images,
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusCreated, q, "question created")
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	actor, _ := UserFromContext(r.Context())
	opts := listOptionsFromQuery(r)
	if r.URL.Query().Get("assigned_to_me") == "true" && actor != nil {
		opts.AssignedTo = actor.ID
	}

	items, total, err := s.questions.List(r.Context(), opts)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writePage(w, items, total, opts)
}

func (s *Server) handleMyTasks(w http.ResponseWriter, r *http.Request) {
	actor, ok := UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing user")
		return
	}
	opts := listOptionsFromQuery(r)

	items, total, err := s.questions.MyTasks(r.Context(), actor, opts)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writePage(w, items, total, opts)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	actor, ok := UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing user")
		return
	}
	stats, err := s.questions.Stats(r.Context(), actor)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, stats, "")
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	actor, ok := UserFromContext(r.Context())
	if !ok || !actor.Satisfies(user.RoleAdmin) {
		writeError(w, http.StatusForbidden, "admin role required")
		return
	}
	data, err := s.exporter.ExportDoneXLSX(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="questions.xlsx"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	q, err := s.questions.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, q, "")
}

type updateMetaBody struct {
	Subject      *string  `json:"subject"`
	Grade        *string  `json:"grade"`
	QuestionType *string  `json:"question_type"`
	Source       *string  `json:"source"`
	Tags         []string `json:"tags"`
}

func (s *Server) handleUpdateMeta(w http.ResponseWriter, r *http.Request) {
	actor, _ := UserFromContext(r.Context())
	var body updateMetaBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	q, err := s.questions.UpdateMeta(r.Context(), actor, chi.URLParam(r, "id"), question.UpdateMetaRequest{
		Subject:      body.Subject,
		Grade:        body.Grade,
		QuestionType: body.QuestionType,
		Source:       body.Source,
		Tags:         body.Tags,
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, q, "question updated")
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	actor, _ := UserFromContext(r.Context())
	if err := s.questions.Delete(r.Context(), actor, chi.URLParam(r, "id")); err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, nil, "question deleted")
}

type assignBody struct {
	OCREditorID       *string `json:"ocr_editor_id"`
	OCRReviewerID     *string `json:"ocr_reviewer_id"`
	RewriteEditorID   *string `json:"rewrite_editor_id"`
	RewriteReviewerID *string `json:"rewrite_reviewer_id"`
}

func (s *Server) handleAssign(w http.ResponseWriter, r *http.Request) {
	actor, _ := UserFromContext(r.Context())
	var body assignBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	q, err := s.questions.Assign(r.Context(), actor, chi.URLParam(r, "id"), question.AssignRequest{
		OCREditorID:       body.OCREditorID,
		OCRReviewerID:     body.OCRReviewerID,
		RewriteEditorID:   body.RewriteEditorID,
		RewriteReviewerID: body.RewriteReviewerID,
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, q, "assignment updated")
}

func (s *Server) handleArchive(w http.ResponseWriter, r *http.Request) {
	actor, _ := UserFromContext(r.Context())
	q, err := s.questions.Archive(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, q, "question archived")
}

func (s *Server) handleOCRTrigger(w http.ResponseWriter, r *http.Request) {
	actor, _ := UserFromContext(r.Context())
	q, err := s.questions.TriggerRecognition(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, q, "recognition started")
}

type draftBody struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

func (s *Server) handleOCRDraft(w http.ResponseWriter, r *http.Request) {
	actor, _ := UserFromContext(r.Context())
	var body draftBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	q, err := s.questions.SaveOCRDraft(r.Context(), actor, chi.URLParam(r, "id"), question.OCRDraftRequest{
		Question: body.Question,
		Answer:   body.Answer,
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, q, "draft saved")
}

func (s *Server) handleOCRSubmit(w http.ResponseWriter, r *http.Request) {
	actor, _ := UserFromContext(r.Context())
	q, err := s.questions.SubmitOCREdit(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, q, "submitted for review")
}

type reviewBody struct {
	Decision string `json:"decision"`
	Comment  string `json:"comment"`
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

func (b reviewBody) toRequest() question.ReviewRequest {
	return question.ReviewRequest{
		Decision: question.ReviewStatus(b.Decision),
		Comment:  b.Comment,
		Question: b.Question,
		Answer:   b.Answer,
	}
}

func (s *Server) handleOCRReview(w http.ResponseWriter, r *http.Request) {
	actor, _ := UserFromContext(r.Context())
	var body reviewBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	q, err := s.questions.SubmitOCRReview(r.Context(), actor, chi.URLParam(r, "id"), body.toRequest())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, q, "review recorded")
}

type rewriteDraftBody struct {
	Question    string `json:"question"`
	Answer      string `json:"answer"`
	EditComment string `json:"edit_comment"`
}

func (s *Server) handleRewriteDraft(w http.ResponseWriter, r *http.Request) {
	actor, _ := UserFromContext(r.Context())
	index, err := slotIndex(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var body rewriteDraftBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	q, err := s.questions.SaveRewriteDraft(r.Context(), actor, chi.URLParam(r, "id"), index, question.RewriteDraftRequest{
		Question:    body.Question,
		Answer:      body.Answer,
		EditComment: body.EditComment,
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, q, "draft saved")
}

func (s *Server) handleRewriteSubmit(w http.ResponseWriter, r *http.Request) {
	actor, _ := UserFromContext(r.Context())
	index, err := slotIndex(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	q, err := s.questions.SubmitRewriteEdit(r.Context(), actor, chi.URLParam(r, "id"), index)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, q, "rewrite submitted")
}

func (s *Server) handleRewriteSubmitAll(w http.ResponseWriter, r *http.Request) {
	actor, _ := UserFromContext(r.Context())
	q, err := s.questions.SubmitAllRewriteEdits(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, q, "rewrites submitted for review")
}

func (s *Server) handleRewriteReview(w http.ResponseWriter, r *http.Request) {
	actor, _ := UserFromContext(r.Context())
	index, err := slotIndex(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var body reviewBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	q, err := s.questions.SubmitRewriteReview(r.Context(), actor, chi.URLParam(r, "id"), index, body.toRequest())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, q, "review recorded")
}

func (s *Server) handleRewriteRegenerate(w http.ResponseWriter, r *http.Request) {
	actor, _ := UserFromContext(r.Context())
	index, err := slotIndex(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	q, err := s.questions.RegenerateRewrite(r.Context(), actor, chi.URLParam(r, "id"), index)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, q, "regeneration started")
}

// writeServiceError maps domain sentinels onto HTTP status codes.
func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, question.ErrQuestionNotFound) || errors.Is(err, user.ErrUserNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, question.ErrNotAuthorized):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, question.ErrInvalidTransition) || errors.Is(err, question.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, question.ErrInvalidInput) ||
		errors.Is(err, question.ErrMissingImages) ||
		errors.Is(err, question.ErrMissingComment) ||
		errors.Is(err, question.ErrMissingDraft) ||
		errors.Is(err, question.ErrInvalidSlot):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		s.logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func listOptionsFromQuery(r *http.Request) question.ListOptions {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	pageSize, _ := strconv.Atoi(q.Get("page_size"))
	return question.ListOptions{
		Status:       question.Status(q.Get("status")),
		Subject:      q.Get("subject"),
		Grade:        q.Get("grade"),
		QuestionType: q.Get("question_type"),
		Source:       q.Get("source"),
		Page:         page,
		PageSize:     pageSize,
	}
}

func slotIndex(r *http.Request) (int, error) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		return 0, fmt.Errorf("invalid rewrite index: %w", err)
	}
	return index, nil
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

type pageEnvelope struct {
	Success    bool   `json:"success"`
	Message    string `json:"message,omitempty"`
	Data       any    `json:"data"`
	Total      int    `json:"total"`
	Page       int    `json:"page"`
	PageSize   int    `json:"page_size"`
	TotalPages int    `json:"total_pages"`
}

func writeData(w http.ResponseWriter, status int, data any, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Success: true, Message: message, Data: data})
}

func writePage(w http.ResponseWriter, items any, total int, opts question.ListOptions) {
	opts.Normalize()
	totalPages := (total + opts.PageSize - 1) / opts.PageSize
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(pageEnvelope{
		Success:    true,
		Data:       items,
		Total:      total,
		Page:       opts.Page,
		PageSize:   opts.PageSize,
		TotalPages: totalPages,
	})
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Success: false, Message: message})
}
