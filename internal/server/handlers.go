package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/agleyzer/linkinbio/internal/session"
	"github.com/agleyzer/linkinbio/internal/viewer"
)

// MountRequest is the body of POST /sessions. Both fields are optional.
type MountRequest struct {
	// Stories overrides the configured stories list.
	Stories json.RawMessage `json:"stories,omitempty"`

	// DurationMS overrides the per-slide duration.
	DurationMS int `json:"duration_ms,omitempty"`
}

// MountResponse is returned when a session is created.
type MountResponse struct {
	ID    string       `json:"id"`
	State viewer.State `json:"state"`
}

// Tap is a pointer tap on the viewer surface.
type Tap struct {
	X     float64 `json:"x"`
	Width float64 `json:"width"`
}

// InputRequest carries one user input: a key, a tap, or a named action
// (close, next, prev).
type InputRequest struct {
	Key    string `json:"key,omitempty"`
	Tap    *Tap   `json:"tap,omitempty"`
	Action string `json:"action,omitempty"`
}

// InputResponse reports whether the input was bound and the resulting state.
type InputResponse struct {
	Handled bool         `json:"handled"`
	State   viewer.State `json:"state"`
}

// AssetRequest reports the load result for one slide activation.
type AssetRequest struct {
	Index  int    `json:"index"`
	Seq    uint64 `json:"seq"`
	Status string `json:"status"`
}

const (
	assetLoaded = "loaded"
	assetError  = "error"
)

var errNoInput = errors.New("request must carry key, tap or action")

// handleMount creates a viewer session.
func (s *Server) handleMount(w http.ResponseWriter, r *http.Request) {
	var req MountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	var raw any
	if len(req.Stories) > 0 {
		if err := json.Unmarshal(req.Stories, &raw); err != nil {
			writeError(w, http.StatusBadRequest, "invalid stories")
			return
		}
	} else {
		raw = s.stories()
	}

	sess := s.sessions.Mount(raw, time.Duration(req.DurationMS)*time.Millisecond)

	writeJSON(w, http.StatusCreated, MountResponse{
		ID:    sess.ID,
		State: sess.Viewer().State(),
	})
}

// handleState serves a session's current state.
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sess.Viewer().State())
}

// handleUnmount removes a session.
func (s *Server) handleUnmount(w http.ResponseWriter, r *http.Request) {
	err := s.sessions.Unmount(chi.URLParam(r, "id"))
	if errors.Is(err, session.ErrNotFound) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleInput applies a key, tap or action to a session.
func (s *Server) handleInput(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}

	var req InputRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	handled, err := applyInput(sess.Viewer(), req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, InputResponse{
		Handled: handled,
		State:   sess.Viewer().State(),
	})
}

// applyInput routes one input to the viewer's input surface.
func applyInput(v *viewer.Viewer, req InputRequest) (bool, error) {
	switch {
	case req.Key != "":
		return v.HandleKey(req.Key), nil
	case req.Tap != nil:
		return v.HandleTap(req.Tap.X, req.Tap.Width), nil
	case req.Action != "":
		switch req.Action {
		case "close":
			return v.HandleKey(viewer.KeyEscape), nil
		case "next":
			return v.HandleKey(viewer.KeyArrowRight), nil
		case "prev":
			return v.HandleKey(viewer.KeyArrowLeft), nil
		default:
			return false, nil
		}
	default:
		return false, errNoInput
	}
}

// handleAsset records a client-side image load result.
func (s *Server) handleAsset(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}

	var req AssetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	a := viewer.Activation{Index: req.Index, Seq: req.Seq}
	switch req.Status {
	case assetLoaded:
		sess.Viewer().ReportLoaded(a)
	case assetError:
		sess.Viewer().ReportError(a)
	default:
		writeError(w, http.StatusBadRequest, `status must be "loaded" or "error"`)
		return
	}

	writeJSON(w, http.StatusOK, sess.Viewer().State())
}

// handleWebSocket streams a session's state and accepts input messages
// shaped like InputRequest. The stream ends once the session is closed or
// unmounted.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
	if s.cfg.AllowAll {
		upgrader.CheckOrigin = func(r *http.Request) bool { return true }
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "session", sess.ID, "error", err)
		return
	}
	defer conn.Close()

	v := sess.Viewer()
	readerDone := make(chan struct{})

	go func() {
		defer close(readerDone)
		for {
			var req InputRequest
			if err := conn.ReadJSON(&req); err != nil {
				return
			}
			if _, err := applyInput(v, req); err != nil {
				s.logger.Debug("ignoring websocket message", "session", sess.ID, "error", err)
			}
		}
	}()

	ticker := time.NewTicker(s.cfg.PushInterval)
	defer ticker.Stop()

	for {
		if err := conn.WriteJSON(v.State()); err != nil {
			return
		}

		select {
		case <-readerDone:
			return
		case <-sess.Done():
			conn.WriteJSON(v.State())
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended"))
			return
		case <-ticker.C:
		}
	}
}
