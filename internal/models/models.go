package models

import (
	"strings"
	"time"
)

// DefaultArtist and DefaultAlbum fill upload metadata the uploader left blank.
const (
	DefaultArtist = "Unknown"
	DefaultAlbum  = "Unknown"
)

// NormalizeUsername trims and lower-cases a username. Every lookup by
// username goes through it.
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// UploadRecord is the authoritative metadata entry for one uploaded song
type UploadRecord struct {
	ID              string    `json:"_id" bson:"_id"`
	Title           string    `json:"title" bson:"title"`
	Artist          string    `json:"artist" bson:"artist"`
	Album           string    `json:"album" bson:"album"`
	AudioURL        string    `json:"url" bson:"url"`
	CoverURL        string    `json:"coverUrl" bson:"coverUrl"`
	ThumbnailURL    string    `json:"thumbnailUrl,omitempty" bson:"thumbnailUrl,omitempty"`
	UploadedBy      string    `json:"uploadedBy" bson:"uploadedBy"`
	DurationSeconds *float64  `json:"duration,omitempty" bson:"duration,omitempty"`
	PlayCount       int64     `json:"playCount" bson:"playCount"`
	AudioSHA256     string    `json:"audioSha256,omitempty" bson:"audioSha256,omitempty"`
	UploadedAt      time.Time `json:"uploadedAt" bson:"uploadedAt"`
}

// SavedSongEntry is a song in a user's saved list. Entries created by an
// upload mirror the UploadRecord's URLs.
type SavedSongEntry struct {
	Title     string    `json:"title" bson:"title"`
	Artist    string    `json:"artist" bson:"artist"`
	Movie     string    `json:"movie" bson:"movie"`
	Album     string    `json:"album" bson:"album"`
	URL       string    `json:"url" bson:"url"`
	Thumbnail string    `json:"thumbnail" bson:"thumbnail"`
	CoverURL  string    `json:"coverUrl" bson:"coverUrl"`
	AddedAt   time.Time `json:"addedAt" bson:"addedAt"`
}

// User is the account aggregate owning the saved-song list
type User struct {
	Username   string           `json:"username" bson:"username"`
	Password   string           `json:"-" bson:"password"`
	SavedSongs []SavedSongEntry `json:"savedSongs" bson:"savedSongs"`
}

// Clone returns a deep copy, so callers can mutate SavedSongs freely.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	c.SavedSongs = append([]SavedSongEntry(nil), u.SavedSongs...)
	return &c
}

// HasSong reports whether a saved song with the given title exists.
func (u *User) HasSong(title string) bool {
	for _, s := range u.SavedSongs {
		if s.Title == title {
			return true
		}
	}
	return false
}

// MirrorOutcome describes what happened to the saved-song mirror of an upload.
type MirrorOutcome string

const (
	MirrorAppended     MirrorOutcome = "appended"
	MirrorUserNotFound MirrorOutcome = "user_not_found"
	MirrorFailed       MirrorOutcome = "failed"
)

// EventUploadCreated is published once per stored UploadRecord.
const EventUploadCreated = "upload.created"

// UploadEvent is emitted after an UploadRecord has been written
type UploadEvent struct {
	Type        string        `json:"type"`
	UploadID    string        `json:"uploadId"`
	Username    string        `json:"username"`
	Title       string        `json:"title"`
	AudioURL    string        `json:"url"`
	CoverURL    string        `json:"coverUrl"`
	Mirror      MirrorOutcome `json:"mirror"`
	MirrorError string        `json:"mirrorError,omitempty"`
	At          time.Time     `json:"at"`
}

// TrendingSong is one entry of the trending list
type TrendingSong struct {
	Title  string `json:"title"`
	Artist string `json:"artist"`
	Image  string `json:"image"`
	URL    string `json:"url"`
}
