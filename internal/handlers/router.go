package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/maneesh/musicbox/internal/ratelim"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// RouterConfig carries everything the HTTP surface is built from
type RouterConfig struct {
	Upload   *UploadHandler
	Blobs    *BlobHandler
	Library  *LibraryHandler
	Trending *TrendingHandler

	// Limiter, when set, guards the upload and account routes.
	Limiter     *ratelim.RateLimiter
	CORSOrigins []string
	// StaticDir, when set, is served for every unmatched path.
	StaticDir string
	Logger    logrus.FieldLogger
}

// NewRouter builds the full handler chain: logging -> CORS -> router.
func NewRouter(cfg RouterConfig) http.Handler {
	router := mux.NewRouter()

	// Health check endpoint (no tracing needed)
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods(http.MethodGet)

	limit := func(h http.Handler) http.Handler {
		if cfg.Limiter == nil {
			return h
		}
		return cfg.Limiter.Limit(h)
	}
	traced := func(h http.Handler, name string) http.Handler {
		return otelhttp.NewHandler(h, name)
	}

	// Uploads
	uploadHandler := limit(traced(cfg.Upload, "POST /upload-song"))
	router.Handle("/upload-song", uploadHandler).Methods(http.MethodPost)
	router.Handle("/api/uploads", uploadHandler).Methods(http.MethodPost)

	recent := traced(http.HandlerFunc(cfg.Library.RecentUploads), "GET /api/uploads")
	router.Handle("/get-all-uploads", recent).Methods(http.MethodGet)
	router.Handle("/api/uploads", recent).Methods(http.MethodGet)
	router.Handle("/api/uploads/{id}/play",
		traced(http.HandlerFunc(cfg.Library.RecordPlay), "POST /api/uploads/{id}/play")).Methods(http.MethodPost)

	router.Handle("/uploads/{key:.+}", traced(cfg.Blobs, "GET /uploads/{key}")).Methods(http.MethodGet, http.MethodHead)

	// Accounts
	router.Handle("/signup", limit(traced(http.HandlerFunc(cfg.Library.Signup), "POST /signup"))).Methods(http.MethodPost)
	router.Handle("/login", limit(traced(http.HandlerFunc(cfg.Library.Login), "POST /login"))).Methods(http.MethodPost)

	// Saved songs
	router.Handle("/api/save-song",
		traced(http.HandlerFunc(cfg.Library.SaveSong), "POST /api/save-song")).Methods(http.MethodPost)
	router.Handle("/api/saved-songs/{username}",
		traced(http.HandlerFunc(cfg.Library.SavedSongs), "GET /api/saved-songs/{username}")).Methods(http.MethodGet)
	router.Handle("/api/delete-song/{username}/{title}",
		traced(http.HandlerFunc(cfg.Library.DeleteSong), "DELETE /api/delete-song/{username}/{title}")).Methods(http.MethodDelete)

	if cfg.Trending != nil {
		router.Handle("/api/trending", traced(cfg.Trending, "GET /api/trending")).Methods(http.MethodGet)
	}

	if cfg.StaticDir != "" {
		router.PathPrefix("/").Handler(http.FileServer(http.Dir(cfg.StaticDir))).Methods(http.MethodGet, http.MethodHead)
	}

	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	corsHandler := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	}).Handler(router)

	return LoggingMiddleware(cfg.Logger)(corsHandler)
}
