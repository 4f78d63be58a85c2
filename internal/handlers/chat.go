package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/MegaGrindStone/site-assistant/internal/models"
	"github.com/MegaGrindStone/site-assistant/internal/session"
)

type createThreadRequest struct {
	WebsiteURL string `json:"website_url"`
}

type createThreadResponse struct {
	ThreadID string `json:"thread_id"`
}

type chatRequest struct {
	ThreadID string `json:"thread_id"`
	Message  string `json:"message"`
}

type chatResponse struct {
	Response string `json:"response"`
}

const threadNotFoundMessage = "Thread not found"

func decodeBody(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// HandleCreateThread binds the active thread to the posted website, creating the thread on first use.
// It expects a JSON body with a "website_url" field and responds with the thread id.
func (m Main) HandleCreateThread(w http.ResponseWriter, r *http.Request) {
	var req createThreadRequest
	if err := decodeBody(r, &req); err != nil {
		m.logger.Error("Invalid request body", slog.String(errLoggerKey, err.Error()))
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if req.WebsiteURL == "" {
		writeError(w, http.StatusBadRequest, "Missing website_url parameter")
		return
	}

	threadID, err := m.sessions.CreateOrUpdateThread(r.Context(), req.WebsiteURL)
	if err != nil {
		m.logger.Error("Failed to create or update thread",
			slog.String("url", req.WebsiteURL),
			slog.String(errLoggerKey, err.Error()))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, createThreadResponse{ThreadID: threadID})
}

func (m Main) decodeChatRequest(w http.ResponseWriter, r *http.Request) (chatRequest, bool) {
	var req chatRequest
	if err := decodeBody(r, &req); err != nil {
		m.logger.Error("Invalid request body", slog.String(errLoggerKey, err.Error()))
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return chatRequest{}, false
	}
	if req.ThreadID == "" {
		writeError(w, http.StatusBadRequest, "Missing thread_id parameter")
		return chatRequest{}, false
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "Missing message parameter")
		return chatRequest{}, false
	}
	return req, true
}

// HandleChat answers a question within a thread and responds with the complete reply. It expects a JSON
// body with "thread_id" and "message" fields.
func (m Main) HandleChat(w http.ResponseWriter, r *http.Request) {
	req, ok := m.decodeChatRequest(w, r)
	if !ok {
		return
	}

	// A disconnected client does not abort the turn, matching the stream endpoint.
	reply, err := m.sessions.Chat(context.WithoutCancel(r.Context()), req.ThreadID, req.Message)
	if err != nil {
		if errors.Is(err, models.ErrThreadNotFound) {
			writeError(w, http.StatusNotFound, threadNotFoundMessage)
			return
		}
		m.logger.Error("Failed to chat",
			slog.String("threadID", req.ThreadID),
			slog.String(errLoggerKey, err.Error()))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, chatResponse{Response: reply})
}

// HandleChatStream answers a question within a thread, writing reply fragments to a plain text body as
// they arrive. Validation failures are reported as JSON before the stream starts; a failure during the
// stream ends the body early without an error payload.
func (m Main) HandleChatStream(w http.ResponseWriter, r *http.Request) {
	req, ok := m.decodeChatRequest(w, r)
	if !ok {
		return
	}

	if _, err := m.sessions.Thread(r.Context(), req.ThreadID); err != nil {
		if errors.Is(err, models.ErrThreadNotFound) {
			writeError(w, http.StatusNotFound, threadNotFoundMessage)
			return
		}
		m.logger.Error("Failed to get thread",
			slog.String("threadID", req.ThreadID),
			slog.String(errLoggerKey, err.Error()))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	// The producer outlives a disconnected client.
	produceCtx := context.WithoutCancel(r.Context())

	m.streams.Add(1)
	relay := session.StartRelay(func(sink func(string)) error {
		_, err := m.sessions.ChatStream(produceCtx, req.ThreadID, req.Message, sink)
		return err
	})
	go func() {
		defer m.streams.Done()
		<-relay.Done()
		if err := relay.Err(); err != nil {
			m.logger.Error("Stream ended with error",
				slog.String("threadID", req.ThreadID),
				slog.String(errLoggerKey, err.Error()))
		}
	}()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	for token := range relay.Tokens(r.Context()) {
		if _, err := io.WriteString(w, token); err != nil {
			m.logger.Debug("Client went away", slog.String(errLoggerKey, err.Error()))
			return
		}
		if err := rc.Flush(); err != nil {
			m.logger.Debug("Failed to flush", slog.String(errLoggerKey, err.Error()))
		}
	}
}

type activeThreadResponse struct {
	ThreadID string `json:"thread_id"`
}

// HandleActiveThread responds with the id of the thread that the next website submission will update.
// The id is empty when no thread exists yet.
func (m Main) HandleActiveThread(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, activeThreadResponse{ThreadID: m.sessions.ActiveThreadID()})
}

// HandleHealth reports that the server is up.
func (m Main) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
