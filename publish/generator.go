package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// BookRequest is the prompt-neutral payload sent to the generation backend.
type BookRequest struct {
	Category    string   `json:"category"`
	SubCategory string   `json:"subCategory,omitempty"`
	Genre       string   `json:"genre,omitempty"`
	Keywords    []string `json:"keywords,omitempty"`
	IsSeries    bool     `json:"isSeries"`
	Title       string   `json:"title,omitempty"`
	EndingStyle string   `json:"endingStyle,omitempty"`
	Tone        string   `json:"selectedTone,omitempty"`
	Mood        string   `json:"selectedMood,omitempty"`
}

// GeneratedBook is a finished generation result.
type GeneratedBook struct {
	Title          string `json:"title"`
	Content        string `json:"content"`
	Summary        string `json:"summary"`
	StorySummary   string `json:"storySummary,omitempty"`
	Synopsis       string `json:"synopsis,omitempty"`
	CharacterSheet string `json:"characterSheet,omitempty"`
	SettingSheet   string `json:"settingSheet,omitempty"`
}

// EpisodeRequest asks the backend for the next installment of a series.
type EpisodeRequest struct {
	SeriesID           string `json:"seriesId"`
	Category           string `json:"category"`
	SubCategory        string `json:"subCategory,omitempty"`
	CumulativeSummary  string `json:"cumulativeSummary"`
	LastEpisodeContent string `json:"lastEpisodeContent"`
	// ContinuationType is "ongoing" or "finalize".
	ContinuationType string `json:"continuationType"`
}

// GeneratedEpisode is one generated installment.
type GeneratedEpisode struct {
	Content           string `json:"content"`
	Summary           string `json:"summary"`
	CumulativeSummary string `json:"cumulativeSummary"`
	IsFinale          bool   `json:"isFinale"`
}

// Generator is the external content-generation collaborator. Implementations
// handle their own retry/fallback; calls may take minutes. Cancelling ctx
// stops the local wait but cannot abort work already running server-side.
type Generator interface {
	GenerateBook(ctx context.Context, req *BookRequest) (*GeneratedBook, error)
	GenerateSeriesEpisode(ctx context.Context, req *EpisodeRequest) (*GeneratedEpisode, error)
}

// HTTPGenerator calls the generation cloud function over JSON/HTTP.
type HTTPGenerator struct {
	baseURL string
	client  *http.Client
}

// NewHTTPGenerator creates a client for the generation backend. The timeout
// should be generous; the backend enforces its own server-side limit.
func NewHTTPGenerator(baseURL string, timeout time.Duration) *HTTPGenerator {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &HTTPGenerator{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// GenerateBook requests a complete short book.
func (g *HTTPGenerator) GenerateBook(ctx context.Context, req *BookRequest) (*GeneratedBook, error) {
	var out GeneratedBook
	if err := g.post(ctx, "/generateBook", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GenerateSeriesEpisode requests the next episode of an ongoing series.
func (g *HTTPGenerator) GenerateSeriesEpisode(ctx context.Context, req *EpisodeRequest) (*GeneratedEpisode, error) {
	var out GeneratedEpisode
	if err := g.post(ctx, "/generateSeriesEpisode", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (g *HTTPGenerator) post(ctx context.Context, path string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("generation backend returned %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
