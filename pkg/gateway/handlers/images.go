package handlers

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/VighneshNilajakar/HOTPIN/pkg/gateway/imagestore"
	"github.com/VighneshNilajakar/HOTPIN/pkg/gateway/live/sessions"
)

// jpegMagic is the SOI marker every JPEG starts with.
var jpegMagic = []byte{0xff, 0xd8}

// ImagesHandler accepts POST /images/{session_id}: a camera frame that
// rides along with the session's next utterance. Either a raw image/jpeg
// body or a multipart form with an "image" field.
type ImagesHandler struct {
	Store    imagestore.Store
	Registry *sessions.Registry
	Logger   *slog.Logger
}

func (h ImagesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	sessionID := strings.TrimPrefix(r.URL.Path, "/images/")
	if sessionID == "" || strings.Contains(sessionID, "/") {
		writeError(w, r, http.StatusNotFound, "not found")
		return
	}
	if h.Registry != nil && !h.Registry.Active(sessionID) {
		writeError(w, r, http.StatusNotFound, "unknown session")
		return
	}

	jpeg, err := h.readImage(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.Store.Put(r.Context(), sessionID, jpeg); err != nil {
		if h.Logger != nil {
			h.Logger.Error("store image", "session_id", sessionID, "error", err)
		}
		writeError(w, r, http.StatusInternalServerError, "could not store image")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"session_id": sessionID,
		"bytes":      len(jpeg),
	})
}

func (h ImagesHandler) readImage(r *http.Request) ([]byte, error) {
	r.Body = http.MaxBytesReader(nil, r.Body, imagestore.MaxImageBytes)

	var raw []byte
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		file, _, err := r.FormFile("image")
		if err != nil {
			return nil, errBadImage("multipart form needs an image field")
		}
		defer file.Close()
		raw, err = io.ReadAll(file)
		if err != nil {
			return nil, errBadImage("image body unreadable")
		}
	} else {
		var err error
		raw, err = io.ReadAll(r.Body)
		if err != nil {
			return nil, errBadImage("image body unreadable")
		}
	}
	if !bytes.HasPrefix(raw, jpegMagic) {
		return nil, errBadImage("body is not a JPEG")
	}
	return raw, nil
}

type errBadImage string

func (e errBadImage) Error() string { return string(e) }
