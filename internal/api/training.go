package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/phishcoach/internal/domain"
	"github.com/ashureev/phishcoach/internal/interaction"
	"github.com/ashureev/phishcoach/internal/session"
)

// UnavailableText is returned in place of a model answer when the language
// model could not be reached.
const UnavailableText = "The coach is unavailable right now. Please try again in a moment."

// Scoreboard reads the judgment journal.
type Scoreboard interface {
	Score(ctx context.Context) (domain.Score, error)
	ListJudgments(ctx context.Context, limit int) ([]domain.Judgment, error)
}

// TrainingHandler serves the trainee-facing endpoints.
type TrainingHandler struct {
	session *session.Session
	scores  Scoreboard
	ui      http.Handler
	// limit wraps the endpoints that reach the language model on demand.
	limit func(http.Handler) http.Handler
}

// NewTrainingHandler creates a training handler. ui serves the trainee page;
// limit may be nil.
func NewTrainingHandler(sess *session.Session, scores Scoreboard, ui http.Handler, limit func(http.Handler) http.Handler) *TrainingHandler {
	if limit == nil {
		limit = func(next http.Handler) http.Handler { return next }
	}
	return &TrainingHandler{session: sess, scores: scores, ui: ui, limit: limit}
}

// RegisterRoutes registers training routes.
func (h *TrainingHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.Index)
	r.Route("/messages", func(r chi.Router) {
		r.Get("/get", h.GetMessages)
		r.With(h.limit).Post("/flag", h.Flag)
		r.Post("/show", h.Show)
		r.Post("/reset", h.Reset)
	})
	r.With(h.limit).Post("/query", h.Query)
	r.Route("/api", func(r chi.Router) {
		r.Get("/state", h.State)
		r.Get("/score", h.Score)
		r.Get("/judgments", h.Judgments)
	})
}

// Index starts generation on first visit and serves the trainee page.
func (h *TrainingHandler) Index(w http.ResponseWriter, r *http.Request) {
	state := h.session.Start()
	slog.Debug("Trainee page requested", "state", state)
	if h.ui == nil {
		JSON(w, http.StatusOK, map[string]interface{}{"state": state})
		return
	}
	h.ui.ServeHTTP(w, r)
}

// GetMessages returns the next generated batch, or all messages once
// generation is over.
func (h *TrainingHandler) GetMessages(w http.ResponseWriter, r *http.Request) {
	batch, err := h.session.NextMessages(r.Context())
	if err != nil {
		if errors.Is(err, context.Canceled) {
			slog.Debug("Message poll cancelled", "error", err)
			return
		}
		slog.Error("Failed to generate messages", "error", err)
		Error(w, http.StatusBadGateway, "failed to generate messages")
		return
	}
	JSON(w, http.StatusOK, batch)
}

type flagRequest struct {
	MessageID  messageID `json:"message_id"`
	IsPhishing bool      `json:"is_phishing"`
}

// Flag records the trainee's decision and returns coaching feedback.
func (h *TrainingHandler) Flag(w http.ResponseWriter, r *http.Request) {
	var req flagRequest
	if err := decodeJSON(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !req.MessageID.set {
		Error(w, http.StatusBadRequest, "message_id is required")
		return
	}

	res, err := h.session.Flag(r.Context(), req.MessageID.value, req.IsPhishing)
	if err != nil {
		h.modelError(w, err)
		return
	}
	JSON(w, http.StatusOK, res)
}

type showRequest struct {
	EmailID messageID `json:"email_id"`
}

// Show marks a message as opened for viewing.
func (h *TrainingHandler) Show(w http.ResponseWriter, r *http.Request) {
	var req showRequest
	if err := decodeJSON(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !req.EmailID.set {
		Error(w, http.StatusBadRequest, "email_id is required")
		return
	}

	if err := h.session.Show(req.EmailID.value); err != nil {
		h.modelError(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]string{"response": ""})
}

type queryRequest struct {
	UserQuery string    `json:"user_query"`
	EmailID   messageID `json:"email_id"`
}

// Query answers a free-text question from the trainee.
func (h *TrainingHandler) Query(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserQuery == "" {
		Error(w, http.StatusBadRequest, "user_query is required")
		return
	}

	resp, err := h.session.Query(r.Context(), req.UserQuery, req.EmailID.ptr())
	if err != nil {
		h.modelError(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]string{"response": resp})
}

// Reset clears generated messages so generation restarts from the first sample.
func (h *TrainingHandler) Reset(w http.ResponseWriter, r *http.Request) {
	snap := h.session.ResetGeneration()
	slog.Info("Generation reset requested", "state", snap.State)
	JSON(w, http.StatusOK, snap)
}

// State returns the session status.
func (h *TrainingHandler) State(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, h.session.Snapshot())
}

// Score returns the judgment tally.
func (h *TrainingHandler) Score(w http.ResponseWriter, r *http.Request) {
	score, err := h.scores.Score(r.Context())
	if err != nil {
		slog.Error("Failed to read score", "error", err)
		Error(w, http.StatusInternalServerError, "failed to read score")
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"score":   score,
		"total":   score.Total(),
		"correct": score.Correct(),
	})
}

// Judgments returns the most recent judgments.
func (h *TrainingHandler) Judgments(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			Error(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	judgments, err := h.scores.ListJudgments(r.Context(), limit)
	if err != nil {
		slog.Error("Failed to list judgments", "error", err)
		Error(w, http.StatusInternalServerError, "failed to list judgments")
		return
	}
	if judgments == nil {
		judgments = []domain.Judgment{}
	}
	JSON(w, http.StatusOK, map[string]interface{}{"judgments": judgments})
}

func (h *TrainingHandler) modelError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrMessageNotFound):
		Error(w, http.StatusNotFound, err.Error())
	case errors.Is(err, interaction.ErrMessageRequired):
		Error(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, context.Canceled):
		slog.Debug("Request cancelled", "error", err)
	default:
		slog.Error("Language model request failed", "error", err)
		JSON(w, http.StatusBadGateway, map[string]string{
			"response": UnavailableText,
			"error":    err.Error(),
		})
	}
}
