// Embywatch - Emby Playback Statistics Notifications and Reports
// Copyright 2026 Embywatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/embywatch/embywatch

package report

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"strings"
	"testing"
	"time"

	"github.com/embywatch/embywatch/internal/models"
)

type fakeStats struct {
	summary    models.ReportSummary
	topContent []models.ReportItem
	topUsers   []models.ReportUser
	typeStats  []models.TypeStat
	topErr     error
}

func (f *fakeStats) PlaybackSummary(ctx context.Context, start, end time.Time) (*models.ReportSummary, error) {
	s := f.summary
	return &s, nil
}

func (f *fakeStats) TopContent(ctx context.Context, start, end time.Time, limit int) ([]models.ReportItem, error) {
	if f.topErr != nil {
		return nil, f.topErr
	}
	return f.topContent, nil
}

func (f *fakeStats) TopUsers(ctx context.Context, start, end time.Time, limit int) ([]models.ReportUser, error) {
	return f.topUsers, nil
}

func (f *fakeStats) TypeStats(ctx context.Context, start, end time.Time) ([]models.TypeStat, error) {
	return f.typeStats, nil
}

func sampleStats() *fakeStats {
	return &fakeStats{
		summary: models.ReportSummary{TotalPlays: 42, TotalHours: 25.5, TotalTitles: 11},
		topContent: []models.ReportItem{
			{ItemID: "1", Name: "Dune", Type: "Movie", PlayCount: 7, Hours: 5.2},
			{ItemID: "2", Name: "Severance", Type: "Episode", PlayCount: 5, Hours: 3.8},
		},
		topUsers: []models.ReportUser{
			{Name: "alice", PlayCount: 20, Hours: 12.0},
		},
		typeStats: []models.TypeStat{{Type: "Movie", PlayCount: 30, Hours: 18.0}},
	}
}

func TestGenerate(t *testing.T) {
	gen := NewGenerator(sampleStats())
	rep, err := gen.Generate(context.Background(), models.ReportTypeWeekly)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if rep.Title != "Weekly Playback Report" {
		t.Errorf("Title = %q", rep.Title)
	}
	if rep.Summary.TotalPlays != 42 {
		t.Errorf("TotalPlays = %d", rep.Summary.TotalPlays)
	}
	if len(rep.TopContent) != 2 || rep.TopContent[0].Name != "Dune" {
		t.Errorf("unexpected TopContent %+v", rep.TopContent)
	}
	if rep.Period == "" {
		t.Error("Period is empty")
	}
}

func TestGenerateInvalidType(t *testing.T) {
	gen := NewGenerator(sampleStats())
	_, err := gen.Generate(context.Background(), models.ReportType("hourly"))
	var vErr *models.ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestGenerateDegradesOnTopContentFailure(t *testing.T) {
	stats := sampleStats()
	stats.topErr = errors.New("query timeout")
	gen := NewGenerator(stats)
	rep, err := gen.Generate(context.Background(), models.ReportTypeDaily)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(rep.TopContent) != 0 {
		t.Errorf("expected empty TopContent, got %+v", rep.TopContent)
	}
	if rep.Summary.TotalPlays != 42 {
		t.Error("summary lost on partial failure")
	}
}

func TestTemplateContext(t *testing.T) {
	gen := NewGenerator(sampleStats())
	rep, err := gen.Generate(context.Background(), models.ReportTypeDaily)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	ctx := TemplateContext(rep)
	if ctx["total_plays"] != 42 {
		t.Errorf("total_plays = %v", ctx["total_plays"])
	}
	top, _ := ctx["top_content"].(string)
	if !strings.Contains(top, "1. Dune (7 plays)") {
		t.Errorf("top_content = %q", top)
	}
}

func TestFormatPeriod(t *testing.T) {
	loc := time.UTC
	start := time.Date(2026, 8, 24, 0, 0, 0, 0, loc)
	end := time.Date(2026, 8, 31, 0, 0, 0, 0, loc)
	if got := formatPeriod(start, end); got != "2026-08-24 ~ 2026-08-30" {
		t.Errorf("formatPeriod = %q", got)
	}
	if got := formatPeriod(start, start.AddDate(0, 0, 1)); got != "2026-08-24" {
		t.Errorf("single-day period = %q", got)
	}
}

type fixedLibrary struct {
	img       []byte
	err       error
	providers map[string]string
}

func (l *fixedLibrary) PrimaryImage(ctx context.Context, itemID string, maxWidth int) ([]byte, error) {
	return l.img, l.err
}

func (l *fixedLibrary) ProviderIDs(ctx context.Context, itemID string) (map[string]string, error) {
	if l.providers == nil {
		return nil, models.ErrNotFound
	}
	return l.providers, nil
}

type fixedPosterSource struct {
	img []byte
	err error
}

func (f *fixedPosterSource) Poster(ctx context.Context, tmdbID, mediaType, size string) ([]byte, error) {
	return f.img, f.err
}

func encodePNG(t *testing.T) []byte {
	t.Helper()
	return encodePNGSized(t, 60, 80)
}

func encodePNGSized(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func renderSample(t *testing.T, posters *PosterResolver) []byte {
	t.Helper()
	renderer, err := NewRenderer(posters)
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	gen := NewGenerator(sampleStats())
	rep, err := gen.Generate(context.Background(), models.ReportTypeWeekly)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	data, err := renderer.Render(context.Background(), rep)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	return data
}

func TestRenderProducesPNG(t *testing.T) {
	posters := NewPosterResolver(&fixedLibrary{img: encodePNG(t)}, nil)
	data := renderSample(t, posters)

	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("output is not a PNG: %v", err)
	}
	if img.Bounds().Dx() != canvasWidth {
		t.Errorf("width = %d, want %d", img.Bounds().Dx(), canvasWidth)
	}
}

func TestRenderPlaceholderOnMissingCover(t *testing.T) {
	posters := NewPosterResolver(&fixedLibrary{err: models.ErrNotFound}, nil)
	data := renderSample(t, posters)
	if _, err := png.Decode(bytes.NewReader(data)); err != nil {
		t.Fatalf("output is not a PNG: %v", err)
	}
}

func TestPosterResolverPrefersTMDB(t *testing.T) {
	lib := &fixedLibrary{
		img:       encodePNGSized(t, 60, 80),
		providers: map[string]string{"Tmdb": "603"},
	}
	tmdbSrc := &fixedPosterSource{img: encodePNGSized(t, 300, 450)}
	posters := NewPosterResolver(lib, tmdbSrc)

	img := posters.Resolve(context.Background(), models.ReportItem{ItemID: "x", Type: "Movie"})
	if img == nil {
		t.Fatal("expected a cover")
	}
	if img.Bounds().Dx() != 300 {
		t.Errorf("cover width = %d, want the 300-wide tmdb poster", img.Bounds().Dx())
	}
}

func TestPosterResolverFallsBackToLibraryImage(t *testing.T) {
	lib := &fixedLibrary{
		img:       encodePNGSized(t, 60, 80),
		providers: map[string]string{"Tmdb": "603"},
	}
	tmdbSrc := &fixedPosterSource{err: models.ErrNotFound}
	posters := NewPosterResolver(lib, tmdbSrc)

	img := posters.Resolve(context.Background(), models.ReportItem{ItemID: "x", Type: "Movie"})
	if img == nil {
		t.Fatal("expected the library cover")
	}
	if img.Bounds().Dx() != 60 {
		t.Errorf("cover width = %d, want the 60-wide library image", img.Bounds().Dx())
	}
}

func TestPosterResolverFallsBackToNil(t *testing.T) {
	posters := NewPosterResolver(&fixedLibrary{err: models.ErrNotFound}, nil)
	img := posters.Resolve(context.Background(), models.ReportItem{ItemID: "x"})
	if img != nil {
		t.Error("expected nil image for missing cover")
	}
}
