// Package library implements the account and saved-song operations around
// the upload pipeline.
package library

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/maneesh/musicbox/internal/models"
	"github.com/maneesh/musicbox/internal/storage"
	"github.com/sirupsen/logrus"
)

// Listing limits for RecentUploads.
const (
	DefaultRecentLimit = 50
	MaxRecentLimit     = 100
)

var (
	ErrMissingCredentials = errors.New("missing username or password")
	ErrMissingSong        = errors.New("missing username or song data")
	ErrUserExists         = errors.New("username already exists")
	ErrUserNotFound       = errors.New("user not found")
	ErrWrongPassword      = errors.New("wrong password")
	ErrSongNotFound       = errors.New("song not found in saved songs")
	ErrUploadNotFound     = errors.New("upload not found")
)

// SongInput is a song as submitted by the frontend's save button.
type SongInput struct {
	Title     string `json:"title"`
	Artist    string `json:"artist"`
	Movie     string `json:"movie"`
	Album     string `json:"album"`
	URL       string `json:"url"`
	Thumbnail string `json:"thumbnail"`
	CoverURL  string `json:"coverUrl"`
	File      string `json:"file"`
}

// Service implements the library operations on a DocumentStore
type Service struct {
	docs   storage.DocumentStore
	logger logrus.FieldLogger
	now    func() time.Time
}

// NewService creates a new library service
func NewService(docs storage.DocumentStore, logger logrus.FieldLogger) *Service {
	return &Service{
		docs:   docs,
		logger: logger,
		now:    time.Now,
	}
}

// Signup creates an account with an empty saved-song list.
func (s *Service) Signup(ctx context.Context, username, password string) error {
	username = models.NormalizeUsername(username)
	if username == "" || password == "" {
		return ErrMissingCredentials
	}

	err := s.docs.CreateUser(ctx, &models.User{
		Username:   username,
		Password:   password,
		SavedSongs: []models.SavedSongEntry{},
	})
	if errors.Is(err, storage.ErrDuplicate) {
		return ErrUserExists
	} else if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	s.logger.WithField("username", username).Info("user signed up")
	return nil
}

// Login checks the credentials and returns the normalized username.
func (s *Service) Login(ctx context.Context, username, password string) (string, error) {
	username = models.NormalizeUsername(username)
	if username == "" || password == "" {
		return "", ErrMissingCredentials
	}

	user, err := s.findUser(ctx, username)
	if err != nil {
		return "", err
	}
	if subtle.ConstantTimeCompare([]byte(user.Password), []byte(password)) != 1 {
		return "", ErrWrongPassword
	}
	return username, nil
}

// SaveSong adds a song to the user's list unless one with the same title is
// already there. Saving a duplicate title is a successful no-op.
func (s *Service) SaveSong(ctx context.Context, username string, song *SongInput) error {
	username = models.NormalizeUsername(username)
	if username == "" || song == nil || song.Title == "" {
		return ErrMissingSong
	}

	user, err := s.findUser(ctx, username)
	if err != nil {
		return err
	}
	if user.HasSong(song.Title) {
		return nil
	}

	user.SavedSongs = append(user.SavedSongs, entryFromInput(song, s.now().UTC()))
	if err := s.docs.SaveUser(ctx, user); err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}
	return nil
}

// entryFromInput fills the blanks of a saved song the way the bundled
// frontend expects: static song files live under /Allsongs and their
// thumbnails under /Thumbnails.
func entryFromInput(song *SongInput, addedAt time.Time) models.SavedSongEntry {
	file := path.Base("/" + song.File)
	if file == "/" {
		file = ""
	}

	songURL := song.URL
	if songURL == "" {
		songURL = "/Allsongs/" + file
	}

	thumb := song.Thumbnail
	if thumb == "" {
		thumb = song.CoverURL
	}
	if thumb == "" {
		thumb = "/Thumbnails/" + url.PathEscape(strings.Replace(file, ".mp3", ".jpg", 1))
	}

	cover := song.CoverURL
	if cover == "" {
		cover = song.Thumbnail
	}

	return models.SavedSongEntry{
		Title:     song.Title,
		Artist:    song.Artist,
		Movie:     song.Movie,
		Album:     song.Album,
		URL:       songURL,
		Thumbnail: thumb,
		CoverURL:  cover,
		AddedAt:   addedAt,
	}
}

// SavedSongs returns the user's saved songs in insertion order.
func (s *Service) SavedSongs(ctx context.Context, username string) ([]models.SavedSongEntry, error) {
	user, err := s.findUser(ctx, models.NormalizeUsername(username))
	if err != nil {
		return nil, err
	}
	if user.SavedSongs == nil {
		return []models.SavedSongEntry{}, nil
	}
	return user.SavedSongs, nil
}

// DeleteSong removes every saved song with the given title.
func (s *Service) DeleteSong(ctx context.Context, username, title string) error {
	user, err := s.findUser(ctx, models.NormalizeUsername(username))
	if err != nil {
		return err
	}

	kept := user.SavedSongs[:0:0]
	for _, song := range user.SavedSongs {
		if song.Title != title {
			kept = append(kept, song)
		}
	}
	if len(kept) == len(user.SavedSongs) {
		return ErrSongNotFound
	}

	user.SavedSongs = kept
	if err := s.docs.SaveUser(ctx, user); err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}
	return nil
}

// RecentUploads lists uploads newest first. limit is clamped to
// [1, MaxRecentLimit]; zero or less selects DefaultRecentLimit.
func (s *Service) RecentUploads(ctx context.Context, limit int) ([]*models.UploadRecord, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	if limit > MaxRecentLimit {
		limit = MaxRecentLimit
	}

	records, err := s.docs.ListRecentUploads(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list uploads: %w", err)
	}
	return records, nil
}

// RecordPlay increments an upload's play count.
func (s *Service) RecordPlay(ctx context.Context, uploadID string) error {
	err := s.docs.IncrementPlayCount(ctx, uploadID)
	if errors.Is(err, storage.ErrNotFound) {
		return ErrUploadNotFound
	}
	return err
}

func (s *Service) findUser(ctx context.Context, username string) (*models.User, error) {
	user, err := s.docs.FindUser(ctx, username)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrUserNotFound
	} else if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return user, nil
}
