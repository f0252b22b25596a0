package handlers

import (
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/maneesh/musicbox/internal/library"
	"github.com/maneesh/musicbox/internal/models"
	"github.com/sirupsen/logrus"
)

// maxJSONBody caps JSON and form request bodies.
const maxJSONBody = 1 << 20

// LibraryHandler exposes accounts, saved songs and the uploads listing
type LibraryHandler struct {
	service *library.Service
	logger  logrus.FieldLogger
}

// NewLibraryHandler creates a new library handler
func NewLibraryHandler(service *library.Service, logger logrus.FieldLogger) *LibraryHandler {
	return &LibraryHandler{
		service: service,
		logger:  logger,
	}
}

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type saveSongRequest struct {
	Username string             `json:"username"`
	Song     *library.SongInput `json:"song"`
}

// LoginResponse is returned on a successful login
type LoginResponse struct {
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	Username string `json:"username"`
}

// SavedSongsResponse lists a user's saved songs
type SavedSongsResponse struct {
	Success bool                    `json:"success"`
	Songs   []models.SavedSongEntry `json:"songs"`
}

// Signup handles POST /signup
func (lh *LibraryHandler) Signup(w http.ResponseWriter, r *http.Request) {
	creds, err := decodeCredentials(w, r)
	if err != nil {
		writeFail(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	err = lh.service.Signup(r.Context(), creds.Username, creds.Password)
	switch {
	case err == nil:
		writeOK(w, "Signup successful")
	case errors.Is(err, library.ErrMissingCredentials):
		writeFail(w, http.StatusBadRequest, "Missing username or password")
	case errors.Is(err, library.ErrUserExists):
		writeFail(w, http.StatusConflict, "Username already exists")
	default:
		lh.logger.WithError(err).Error("signup failed")
		writeFail(w, http.StatusInternalServerError, "Error during signup")
	}
}

// Login handles POST /login
func (lh *LibraryHandler) Login(w http.ResponseWriter, r *http.Request) {
	creds, err := decodeCredentials(w, r)
	if err != nil {
		writeFail(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	username, err := lh.service.Login(r.Context(), creds.Username, creds.Password)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, LoginResponse{Success: true, Message: "Login successful", Username: username})
	case errors.Is(err, library.ErrMissingCredentials):
		writeFail(w, http.StatusBadRequest, "Missing username or password")
	case errors.Is(err, library.ErrUserNotFound):
		writeFail(w, http.StatusNotFound, "User not found")
	case errors.Is(err, library.ErrWrongPassword):
		writeFail(w, http.StatusUnauthorized, "Wrong password")
	default:
		lh.logger.WithError(err).Error("login failed")
		writeFail(w, http.StatusInternalServerError, "Something went wrong")
	}
}

// SaveSong handles POST /api/save-song
func (lh *LibraryHandler) SaveSong(w http.ResponseWriter, r *http.Request) {
	var req saveSongRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody)).Decode(&req); err != nil {
		writeFail(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	err := lh.service.SaveSong(r.Context(), req.Username, req.Song)
	switch {
	case err == nil:
		writeOK(w, "Song saved successfully")
	case errors.Is(err, library.ErrMissingSong):
		writeFail(w, http.StatusBadRequest, "Missing username or song data")
	case errors.Is(err, library.ErrUserNotFound):
		writeFail(w, http.StatusNotFound, "User not found")
	default:
		lh.logger.WithError(err).Error("save song failed")
		writeFail(w, http.StatusInternalServerError, "Error saving song")
	}
}

// SavedSongs handles GET /api/saved-songs/{username}
func (lh *LibraryHandler) SavedSongs(w http.ResponseWriter, r *http.Request) {
	songs, err := lh.service.SavedSongs(r.Context(), mux.Vars(r)["username"])
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, SavedSongsResponse{Success: true, Songs: songs})
	case errors.Is(err, library.ErrUserNotFound):
		writeFail(w, http.StatusNotFound, "User not found")
	default:
		lh.logger.WithError(err).Error("fetch songs failed")
		writeFail(w, http.StatusInternalServerError, "Error fetching songs")
	}
}

// DeleteSong handles DELETE /api/delete-song/{username}/{title}
func (lh *LibraryHandler) DeleteSong(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	err := lh.service.DeleteSong(r.Context(), vars["username"], vars["title"])
	switch {
	case err == nil:
		writeOK(w, "Song deleted successfully")
	case errors.Is(err, library.ErrUserNotFound):
		writeFail(w, http.StatusNotFound, "User not found")
	case errors.Is(err, library.ErrSongNotFound):
		writeFail(w, http.StatusNotFound, "Song not found in saved songs")
	default:
		lh.logger.WithError(err).Error("delete song failed")
		writeFail(w, http.StatusInternalServerError, "Error deleting song")
	}
}

// RecentUploads handles GET /get-all-uploads and GET /api/uploads?limit=
func (lh *LibraryHandler) RecentUploads(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			writeFail(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = n
	}

	records, err := lh.service.RecentUploads(r.Context(), limit)
	if err != nil {
		lh.logger.WithError(err).Error("fetch uploads failed")
		writeFail(w, http.StatusInternalServerError, "Failed to fetch uploads")
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// RecordPlay handles POST /api/uploads/{id}/play
func (lh *LibraryHandler) RecordPlay(w http.ResponseWriter, r *http.Request) {
	err := lh.service.RecordPlay(r.Context(), mux.Vars(r)["id"])
	switch {
	case err == nil:
		writeOK(w, "Play recorded")
	case errors.Is(err, library.ErrUploadNotFound):
		writeFail(w, http.StatusNotFound, "Upload not found")
	default:
		lh.logger.WithError(err).Error("record play failed")
		writeFail(w, http.StatusInternalServerError, "Failed to record play")
	}
}

// decodeCredentials accepts a JSON body or a url-encoded form.
func decodeCredentials(w http.ResponseWriter, r *http.Request) (*credentials, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)

	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mt == "application/json" {
		var creds credentials
		if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
			return nil, err
		}
		return &creds, nil
	}

	if err := r.ParseForm(); err != nil {
		return nil, err
	}
	return &credentials{
		Username: r.PostForm.Get("username"),
		Password: r.PostForm.Get("password"),
	}, nil
}
