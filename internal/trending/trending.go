// Package trending proxies the Deezer chart API.
package trending

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/maneesh/musicbox/internal/models"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("musicbox-trending")

// DefaultChartURL is the public Deezer chart endpoint.
const DefaultChartURL = "https://api.deezer.com/chart"

// maxPlaylists bounds the playlist fallback.
const maxPlaylists = 5

// Fallback is returned when the chart yields nothing playable.
var Fallback = []models.TrendingSong{
	{
		Title:  "Shape of You",
		Artist: "Ed Sheeran",
		Image:  "https://i.scdn.co/image/ab67616d0000b2735d2cfa845b12163a47e43b76",
		URL:    "https://p.scdn.co/mp3-preview/29b0d72c320a.mp3?cid=774b29d4f13844c495f206cafdad9c86",
	},
}

type deezerTrack struct {
	Title   string `json:"title"`
	Preview string `json:"preview"`
	Artist  *struct {
		Name string `json:"name"`
	} `json:"artist"`
	Album *struct {
		CoverMedium string `json:"cover_medium"`
	} `json:"album"`
}

type deezerPlaylist struct {
	Tracklist     string `json:"tracklist"`
	PictureMedium string `json:"picture_medium"`
}

type chartResponse struct {
	Tracks *struct {
		Data []deezerTrack `json:"data"`
	} `json:"tracks"`
	Playlists *struct {
		Data []deezerPlaylist `json:"data"`
	} `json:"playlists"`
}

type tracklistResponse struct {
	Data []deezerTrack `json:"data"`
}

// Client fetches trending songs
type Client struct {
	chartURL   string
	httpClient *http.Client
	logger     logrus.FieldLogger
}

// NewClient creates a client for chartURL. Outgoing requests are traced.
func NewClient(chartURL string, logger logrus.FieldLogger) *Client {
	if chartURL == "" {
		chartURL = DefaultChartURL
	}
	return &Client{
		chartURL: chartURL,
		httpClient: &http.Client{
			Timeout:   10 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: logger,
	}
}

// Songs returns chart tracks, or one playable track from each of the first
// playlists when the chart has no tracks, or Fallback when both are empty.
// Only a failure to fetch the chart itself is an error.
func (c *Client) Songs(ctx context.Context) ([]models.TrendingSong, error) {
	ctx, span := tracer.Start(ctx, "trending.songs",
		trace.WithAttributes(attribute.String("chart_url", c.chartURL)),
	)
	defer span.End()

	var chart chartResponse
	if err := c.getJSON(ctx, c.chartURL, &chart); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to fetch chart: %w", err)
	}

	songs := make([]models.TrendingSong, 0)
	if chart.Tracks != nil {
		for _, t := range chart.Tracks.Data {
			songs = append(songs, toSong(t, ""))
		}
	}

	if len(songs) == 0 && chart.Playlists != nil {
		songs = c.fromPlaylists(ctx, chart.Playlists.Data)
	}

	if len(songs) == 0 {
		span.SetAttributes(attribute.Bool("fallback", true))
		return append([]models.TrendingSong(nil), Fallback...), nil
	}

	span.SetAttributes(attribute.Int("count", len(songs)))
	return songs, nil
}

func (c *Client) fromPlaylists(ctx context.Context, playlists []deezerPlaylist) []models.TrendingSong {
	if len(playlists) > maxPlaylists {
		playlists = playlists[:maxPlaylists]
	}

	songs := make([]models.TrendingSong, 0, len(playlists))
	for _, p := range playlists {
		var list tracklistResponse
		if err := c.getJSON(ctx, p.Tracklist, &list); err != nil {
			c.logger.WithError(err).WithField("tracklist", p.Tracklist).Debug("skipping playlist")
			continue
		}
		for _, t := range list.Data {
			if t.Preview != "" {
				songs = append(songs, toSong(t, p.PictureMedium))
				break
			}
		}
	}
	return songs
}

func toSong(t deezerTrack, fallbackImage string) models.TrendingSong {
	song := models.TrendingSong{
		Title: t.Title,
		URL:   t.Preview,
		Image: fallbackImage,
	}
	if t.Artist != nil {
		song.Artist = t.Artist.Name
	}
	if t.Album != nil && t.Album.CoverMedium != "" {
		song.Image = t.Album.CoverMedium
	}
	return song
}

func (c *Client) getJSON(ctx context.Context, url string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}
