package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/chanakya-ai/chanakya/pkg/feedback"
	"github.com/chanakya-ai/chanakya/pkg/logger"
	"github.com/chanakya-ai/chanakya/pkg/orchestrator"
	"github.com/chanakya-ai/chanakya/pkg/rag"
)

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	var utt orchestrator.Utterance
	if err := json.NewDecoder(r.Body).Decode(&utt); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	resp, err := s.engine.Process(r.Context(), &utt)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

// handleProcessStream emits the pipeline's progress events as SSE. Each
// event is one data frame; the sequence ends with a final or error event.
func (s *Server) handleProcessStream(w http.ResponseWriter, r *http.Request) {
	var utt orchestrator.Utterance
	if err := json.NewDecoder(r.Body).Decode(&utt); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	log := logger.GetLogger()
	for event := range s.engine.ProcessStreaming(r.Context(), &utt) {
		payload, err := json.Marshal(event)
		if err != nil {
			log.Error("event_encode_failed", "error", err)
			continue
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
			// Client went away; the engine drops at its next stage.
			return
		}
		flusher.Flush()
	}
}

func (s *Server) handleGetContext(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	snapshot, ok := s.engine.GetContext(sessionID)
	if !ok {
		respondError(w, http.StatusNotFound, "session not found: "+sessionID)
		return
	}
	respondJSON(w, http.StatusOK, snapshot)
}

func (s *Server) handleClearContext(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	cleared := s.engine.ClearContext(sessionID)
	respondJSON(w, http.StatusOK, map[string]any{"cleared": cleared})
}

type queryRequest struct {
	Question string `json:"question"`
	Class    string `json:"class,omitempty"`
	Subject  string `json:"subject,omitempty"`
	Language string `json:"language,omitempty"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	if s.answers == nil {
		respondError(w, http.StatusServiceUnavailable, "retrieval is not configured")
		return
	}

	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Question == "" {
		respondError(w, http.StatusBadRequest, "question is required")
		return
	}

	answer, err := s.answers.Answer(r.Context(), req.Question, rag.Filters{
		Class:    req.Class,
		Subject:  req.Subject,
		Language: req.Language,
	})
	if err != nil {
		logger.GetLogger().Error("query_failed", "error", err)
		respondError(w, http.StatusInternalServerError, "query failed")
		return
	}
	respondJSON(w, http.StatusOK, answer)
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	if s.analyzer == nil {
		respondError(w, http.StatusServiceUnavailable, "feedback analysis is not configured")
		return
	}

	var session feedback.Session
	if err := json.NewDecoder(r.Body).Decode(&session); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := session.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	card, err := s.analyzer.Analyze(r.Context(), &session)
	if err != nil {
		logger.GetLogger().Error("feedback_failed", "error", err)
		respondError(w, http.StatusInternalServerError, "analysis failed")
		return
	}
	respondJSON(w, http.StatusOK, card)
}

func (s *Server) handleGetFeedback(w http.ResponseWriter, r *http.Request) {
	if s.fbStore == nil {
		respondError(w, http.StatusServiceUnavailable, "feedback storage is not configured")
		return
	}

	sessionID := chi.URLParam(r, "sessionID")
	card, err := s.fbStore.Get(r.Context(), sessionID)
	if errors.Is(err, feedback.ErrNotFound) {
		respondError(w, http.StatusNotFound, "feedback not found: "+sessionID)
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load feedback")
		return
	}
	respondJSON(w, http.StatusOK, card)
}

func (s *Server) handleTeacherHistory(w http.ResponseWriter, r *http.Request) {
	if s.fbStore == nil {
		respondError(w, http.StatusServiceUnavailable, "feedback storage is not configured")
		return
	}

	teacherID := chi.URLParam(r, "teacherID")
	history, err := s.fbStore.TeacherHistory(r.Context(), teacherID, 5)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load history")
		return
	}
	respondJSON(w, http.StatusOK, history)
}
