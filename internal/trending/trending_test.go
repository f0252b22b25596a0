package trending

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/maneesh/musicbox/internal/logging"
)

func TestSongsFromChartTracks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"tracks":{"data":[
			{"title":"One","preview":"https://cdn/1.mp3","artist":{"name":"A"},"album":{"cover_medium":"https://img/1.jpg"}},
			{"title":"Two","preview":"https://cdn/2.mp3","artist":{"name":"B"}}
		]}}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, logging.Discard())
	songs, err := c.Songs(context.Background())
	if err != nil {
		t.Fatalf("Songs failed: %v", err)
	}
	if len(songs) != 2 {
		t.Fatalf("expected 2 songs, got %d", len(songs))
	}
	if songs[0].Title != "One" || songs[0].Artist != "A" || songs[0].Image != "https://img/1.jpg" || songs[0].URL != "https://cdn/1.mp3" {
		t.Errorf("unexpected first song %+v", songs[0])
	}
	if songs[1].Image != "" {
		t.Errorf("expected no image, got %q", songs[1].Image)
	}
}

func TestSongsFromPlaylists(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/chart", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"tracks":{"data":[]},"playlists":{"data":[
			{"tracklist":"%[1]s/p1","picture_medium":"https://img/p1.jpg"},
			{"tracklist":"%[1]s/broken","picture_medium":"https://img/p2.jpg"},
			{"tracklist":"%[1]s/p3","picture_medium":"https://img/p3.jpg"}
		]}}`, srv.URL)
	})
	mux.HandleFunc("/p1", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":[{"title":"silent","preview":""},{"title":"Playable","preview":"https://cdn/p1.mp3","artist":{"name":"X"}}]}`)
	})
	mux.HandleFunc("/broken", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	})
	mux.HandleFunc("/p3", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":[{"title":"Three","preview":"https://cdn/p3.mp3","album":{"cover_medium":"https://img/t3.jpg"}}]}`)
	})

	c := NewClient(srv.URL+"/chart", logging.Discard())
	songs, err := c.Songs(context.Background())
	if err != nil {
		t.Fatalf("Songs failed: %v", err)
	}
	if len(songs) != 2 {
		t.Fatalf("expected 2 songs, got %+v", songs)
	}
	if songs[0].Title != "Playable" || songs[0].Image != "https://img/p1.jpg" {
		t.Errorf("unexpected first song %+v", songs[0])
	}
	if songs[1].Title != "Three" || songs[1].Image != "https://img/t3.jpg" {
		t.Errorf("unexpected second song %+v", songs[1])
	}
}

func TestSongsFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{}`)
	}))
	defer srv.Close()

	songs, err := NewClient(srv.URL, logging.Discard()).Songs(context.Background())
	if err != nil {
		t.Fatalf("Songs failed: %v", err)
	}
	if len(songs) != 1 || songs[0].Title != "Shape of You" {
		t.Errorf("expected fallback song, got %+v", songs)
	}
}

func TestSongsChartError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	if _, err := NewClient(srv.URL, logging.Discard()).Songs(context.Background()); err == nil {
		t.Fatal("expected an error when the chart is unavailable")
	}
}
