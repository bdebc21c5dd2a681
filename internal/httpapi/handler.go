// Package httpapi exposes the coaching service over HTTP. Handlers stay
// thin: identity comes from a header, validation is minimal, and all real
// work happens in the chat, report, and store layers. Derived-view caching
// and its invalidation live here, next to the mutations that trigger it.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/kardiahealth/kardia/internal/ai"
	"github.com/kardiahealth/kardia/internal/cache"
	"github.com/kardiahealth/kardia/internal/reply"
	"github.com/kardiahealth/kardia/internal/store"
)

const titleLimit = 40

// ReplyService is the chat pipeline entry point.
type ReplyService interface {
	GetReply(ctx context.Context, conversationID, userID, messageText string) (reply.Reply, error)
}

// ReportService is the slow assessment-personalization path.
type ReportService interface {
	Personalize(ctx context.Context, userID, assessmentID string) (reply.Reply, error)
}

type Handler struct {
	store  store.Store
	chat   ReplyService
	report ReportService
	cache  cache.Store
	inval  *cache.Invalidator
	log    *zap.Logger
}

func NewHandler(st store.Store, chatSvc ReplyService, reportSvc ReportService, c cache.Store, log *zap.Logger) *Handler {
	return &Handler{
		store:  st,
		chat:   chatSvc,
		report: reportSvc,
		cache:  c,
		inval:  cache.NewInvalidator(c, log),
		log:    log,
	}
}

func (h *Handler) Register(r chi.Router) {
	r.Route("/v1", func(r chi.Router) {
		r.Get("/profile", h.getProfile)
		r.Patch("/profile", h.patchProfile)
		r.Get("/dashboard", h.dashboard)
		r.Post("/risk-assessments", h.createAssessment)
		r.Patch("/risk-assessments/{assessmentID}/personalize", h.personalize)

		r.Route("/chat/conversations", func(r chi.Router) {
			r.Get("/", h.listConversations)
			r.Post("/", h.createConversation)
			r.Get("/{conversationID}", h.showConversation)
			r.Patch("/{conversationID}", h.renameConversation)
			r.Delete("/{conversationID}", h.deleteConversation)
			r.Post("/{conversationID}/messages", h.sendMessage)
		})
	})
}

// --- chat ---

func (h *Handler) listConversations(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	key := cache.ConversationListKey(userID)
	if b, ok := h.cache.Get(key); ok {
		writeRawJSON(w, http.StatusOK, b)
		return
	}

	convs, err := h.store.ListConversations(userID)
	if err != nil {
		h.serverError(w, r, "listing conversations", err)
		return
	}
	payload, err := json.Marshal(map[string]any{"data": convs})
	if err != nil {
		h.serverError(w, r, "encoding conversations", err)
		return
	}
	h.cache.Set(key, payload, cache.ConversationListTTL)
	writeRawJSON(w, http.StatusOK, payload)
}

func (h *Handler) createConversation(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	var req struct {
		Message string `json:"message"`
	}
	if !readJSON(w, r, &req) {
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusUnprocessableEntity, "message is required")
		return
	}

	conv, err := h.store.CreateConversation(userID, truncateTitle(req.Message))
	if err != nil {
		h.serverError(w, r, "creating conversation", err)
		return
	}
	h.inval.ConversationChanged(userID, conv.ID)

	aiReply, err := h.chat.GetReply(r.Context(), conv.ID, userID, req.Message)
	if err != nil {
		h.replyError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"conversation": map[string]string{"id": conv.ID, "title": conv.Title},
		"reply":        aiReply,
	})
}

func (h *Handler) showConversation(w http.ResponseWriter, r *http.Request) {
	conv, ok := h.ownedConversation(w, r)
	if !ok {
		return
	}

	key := cache.ConversationDetailKey(conv.ID)
	if b, ok := h.cache.Get(key); ok {
		writeRawJSON(w, http.StatusOK, b)
		return
	}

	msgs, err := h.store.ListMessages(conv.ID)
	if err != nil {
		h.serverError(w, r, "listing messages", err)
		return
	}
	payload, err := json.Marshal(map[string]any{"conversation": conv, "messages": msgs})
	if err != nil {
		h.serverError(w, r, "encoding conversation", err)
		return
	}
	h.cache.Set(key, payload, cache.ConversationDetailTTL)
	writeRawJSON(w, http.StatusOK, payload)
}

func (h *Handler) renameConversation(w http.ResponseWriter, r *http.Request) {
	conv, ok := h.ownedConversation(w, r)
	if !ok {
		return
	}
	var req struct {
		Title string `json:"title"`
	}
	if !readJSON(w, r, &req) {
		return
	}
	if req.Title == "" {
		writeError(w, http.StatusUnprocessableEntity, "title is required")
		return
	}

	updated, err := h.store.RenameConversation(conv.ID, req.Title)
	if err != nil {
		h.serverError(w, r, "renaming conversation", err)
		return
	}
	// invalidate before the caller can observe success
	h.inval.ConversationChanged(conv.UserID, conv.ID)

	writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) deleteConversation(w http.ResponseWriter, r *http.Request) {
	conv, ok := h.ownedConversation(w, r)
	if !ok {
		return
	}

	h.inval.ConversationChanged(conv.UserID, conv.ID)
	if err := h.store.DeleteConversation(conv.ID); err != nil {
		h.serverError(w, r, "deleting conversation", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) sendMessage(w http.ResponseWriter, r *http.Request) {
	conv, ok := h.ownedConversation(w, r)
	if !ok {
		return
	}
	var req struct {
		Message string `json:"message"`
	}
	if !readJSON(w, r, &req) {
		return
	}

	aiReply, err := h.chat.GetReply(r.Context(), conv.ID, conv.UserID, req.Message)
	if err != nil {
		h.replyError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reply": aiReply})
}

// --- assessments & dashboard ---

func (h *Handler) dashboard(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	key := cache.DashboardKey(userID)
	if b, ok := h.cache.Get(key); ok {
		writeRawJSON(w, http.StatusOK, b)
		return
	}

	assessments, err := h.store.RecentAssessments(userID, 0)
	if err != nil {
		h.serverError(w, r, "loading dashboard", err)
		return
	}

	var payload []byte
	if len(assessments) == 0 {
		payload, err = json.Marshal(map[string]any{"data": nil, "message": "No assessment history found."})
	} else {
		payload, err = json.Marshal(map[string]any{"data": assessments})
	}
	if err != nil {
		h.serverError(w, r, "encoding dashboard", err)
		return
	}
	h.cache.Set(key, payload, cache.DashboardTTL)
	writeRawJSON(w, http.StatusOK, payload)
}

func (h *Handler) createAssessment(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	var req struct {
		RiskPercentage float64 `json:"risk_percentage"`
		RiskCategory   string  `json:"risk_category"`
	}
	if !readJSON(w, r, &req) {
		return
	}
	if req.RiskCategory == "" || req.RiskPercentage < 0 || req.RiskPercentage > 100 {
		writeError(w, http.StatusUnprocessableEntity, "risk_percentage (0-100) and risk_category are required")
		return
	}

	a, err := h.store.CreateAssessment(userID, req.RiskPercentage, req.RiskCategory)
	if err != nil {
		h.serverError(w, r, "creating assessment", err)
		return
	}
	h.inval.AssessmentsChanged(userID)

	writeJSON(w, http.StatusAccepted, map[string]any{
		"message":       "Initial assessment complete.",
		"assessment_id": a.ID,
	})
}

func (h *Handler) personalize(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	assessmentID := chi.URLParam(r, "assessmentID")

	rep, err := h.report.Personalize(r.Context(), userID, assessmentID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "assessment not found")
			return
		}
		h.log.Error("personalized report failed",
			zap.String("user_id", userID),
			zap.String("assessment_id", assessmentID),
			zap.Error(err))
		writeError(w, http.StatusBadGateway, "failed to generate personalized report")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Personalized report generated successfully.",
		"data":    rep,
	})
}

// --- profile ---

func (h *Handler) getProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	p, err := h.store.GetProfile(userID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "profile not found")
		return
	}
	if err != nil {
		h.serverError(w, r, "loading profile", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) patchProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	var req struct {
		FirstName   string `json:"first_name"`
		DateOfBirth string `json:"date_of_birth"` // YYYY-MM-DD
		Sex         string `json:"sex"`
		Language    string `json:"language"`
	}
	if !readJSON(w, r, &req) {
		return
	}

	p := store.Profile{
		UserID:    userID,
		FirstName: req.FirstName,
		Sex:       req.Sex,
		Language:  req.Language,
	}
	if req.DateOfBirth != "" {
		dob, err := time.Parse("2006-01-02", req.DateOfBirth)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "date_of_birth must be YYYY-MM-DD")
			return
		}
		p.DateOfBirth = dob
	}

	if err := h.store.SaveProfile(p); err != nil {
		h.serverError(w, r, "saving profile", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// --- helpers ---

// userID reads the caller identity. Authentication proper sits in front of
// this service; here the header is trusted.
func (h *Handler) userID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.Header.Get("X-User-ID")
	if id == "" {
		writeError(w, http.StatusUnauthorized, "missing X-User-ID header")
		return "", false
	}
	return id, true
}

// ownedConversation resolves the route conversation and enforces ownership.
func (h *Handler) ownedConversation(w http.ResponseWriter, r *http.Request) (*store.Conversation, bool) {
	userID, ok := h.userID(w, r)
	if !ok {
		return nil, false
	}
	conv, err := h.store.GetConversation(chi.URLParam(r, "conversationID"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "conversation not found")
		return nil, false
	}
	if err != nil {
		h.serverError(w, r, "loading conversation", err)
		return nil, false
	}
	if conv.UserID != userID {
		writeError(w, http.StatusForbidden, "not your conversation")
		return nil, false
	}
	return conv, true
}

// replyError maps GetReply's two caller-visible error kinds to statuses.
func (h *Handler) replyError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *ai.ValidationError
	if errors.As(err, &ve) {
		writeError(w, http.StatusUnprocessableEntity, ve.Msg)
		return
	}
	h.serverError(w, r, "reply pipeline", err)
}

func (h *Handler) serverError(w http.ResponseWriter, r *http.Request, op string, err error) {
	h.log.Error(op, zap.String("path", r.URL.Path), zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}

func truncateTitle(s string) string {
	runes := []rune(s)
	if len(runes) <= titleLimit {
		return s
	}
	return string(runes[:titleLimit])
}

func readJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeRawJSON(w http.ResponseWriter, status int, b []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(b)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
