package handlers

import (
	"context"
	"net/http"

	"github.com/maneesh/musicbox/internal/models"
	"github.com/sirupsen/logrus"
)

// SongSource supplies the trending list
type SongSource interface {
	Songs(ctx context.Context) ([]models.TrendingSong, error)
}

// TrendingHandler handles GET /api/trending
type TrendingHandler struct {
	source SongSource
	logger logrus.FieldLogger
}

// NewTrendingHandler creates a new trending handler
func NewTrendingHandler(source SongSource, logger logrus.FieldLogger) *TrendingHandler {
	return &TrendingHandler{source: source, logger: logger}
}

func (th *TrendingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	songs, err := th.source.Songs(r.Context())
	if err != nil {
		th.logger.WithError(err).Warn("trending fetch failed")
		writeJSON(w, http.StatusInternalServerError, Response{Error: "Failed to fetch trending songs"})
		return
	}
	writeJSON(w, http.StatusOK, songs)
}
