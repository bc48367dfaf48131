// Embywatch - Emby Playback Statistics Notifications and Reports
// Copyright 2026 Embywatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/embywatch/embywatch

package report

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"time"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/embywatch/embywatch/internal/metrics"
	"github.com/embywatch/embywatch/internal/models"
)

// Canvas geometry. The image is always 1080 wide; height grows with
// the content.
const (
	canvasWidth  = 1080
	marginX      = 48.0
	headerHeight = 170.0
	tileHeight   = 140.0
	tileGap      = 24.0
	rowHeight    = 144.0
	rowGap       = 16.0
	coverWidth   = 90
	coverHeight  = 120
	sectionHead  = 72.0
	footerHeight = 80.0
)

// Palette.
var (
	colorBackground = [3]int{26, 32, 44}
	colorCard       = [3]int{45, 55, 72}
	colorCyan       = [3]int{56, 189, 248}
	colorPurple     = [3]int{167, 139, 250}
	colorYellow     = [3]int{251, 191, 36}
	colorText       = [3]int{226, 232, 240}
	colorMuted      = [3]int{148, 163, 184}
)

func setRGB(dc *gg.Context, c [3]int) {
	dc.SetRGB255(c[0], c[1], c[2])
}

// Renderer draws a report into a PNG. posters may be nil; every item
// then gets the placeholder tile.
type Renderer struct {
	posters *PosterResolver
	regular *truetype.Font
	bold    *truetype.Font
}

// NewRenderer parses the embedded fonts once and reuses them across
// renders.
func NewRenderer(posters *PosterResolver) (*Renderer, error) {
	regular, err := truetype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("parse regular font: %w", err)
	}
	bold, err := truetype.Parse(gobold.TTF)
	if err != nil {
		return nil, fmt.Errorf("parse bold font: %w", err)
	}
	return &Renderer{posters: posters, regular: regular, bold: bold}, nil
}

func (r *Renderer) face(f *truetype.Font, size float64) font.Face {
	return truetype.NewFace(f, &truetype.Options{Size: size})
}

// Render draws the report and returns PNG bytes.
func (r *Renderer) Render(ctx context.Context, report *models.Report) ([]byte, error) {
	started := time.Now()
	defer func() {
		metrics.ReportRenderDuration.Observe(time.Since(started).Seconds())
	}()

	height := headerHeight + tileHeight + tileGap
	if len(report.TopContent) > 0 {
		height += sectionHead + float64(len(report.TopContent))*(rowHeight+rowGap)
	}
	if len(report.TopUsers) > 0 {
		height += sectionHead + float64(len(report.TopUsers))*44
	}
	height += footerHeight

	dc := gg.NewContext(canvasWidth, int(height))
	setRGB(dc, colorBackground)
	dc.Clear()

	y := r.drawHeader(dc, report)
	y = r.drawStatTiles(dc, y, report.Summary)
	if len(report.TopContent) > 0 {
		y = r.drawTopContent(ctx, dc, y, report.TopContent)
	}
	if len(report.TopUsers) > 0 {
		y = r.drawTopUsers(dc, y, report.TopUsers)
	}
	r.drawFooter(dc, report)

	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return nil, models.NewRenderError("encode", err)
	}
	return buf.Bytes(), nil
}

func (r *Renderer) drawHeader(dc *gg.Context, report *models.Report) float64 {
	dc.SetFontFace(r.face(r.bold, 44))
	setRGB(dc, colorText)
	dc.DrawString(report.Title, marginX, 76)

	dc.SetFontFace(r.face(r.regular, 24))
	setRGB(dc, colorMuted)
	dc.DrawString(report.Period, marginX, 120)
	return headerHeight
}

func (r *Renderer) drawStatTiles(dc *gg.Context, y float64, summary models.ReportSummary) float64 {
	tiles := []struct {
		value string
		label string
		color [3]int
	}{
		{fmt.Sprintf("%.1f", summary.TotalHours), "Watch Hours", colorCyan},
		{fmt.Sprintf("%d", summary.TotalPlays), "Total Plays", colorPurple},
		{fmt.Sprintf("%d", summary.TotalTitles), "Titles Played", colorYellow},
	}

	tileWidth := (canvasWidth - 2*marginX - 2*tileGap) / 3
	for i, tile := range tiles {
		x := marginX + float64(i)*(tileWidth+tileGap)
		setRGB(dc, colorCard)
		dc.DrawRoundedRectangle(x, y, tileWidth, tileHeight, 12)
		dc.Fill()

		dc.SetFontFace(r.face(r.bold, 40))
		setRGB(dc, tile.color)
		dc.DrawStringAnchored(tile.value, x+tileWidth/2, y+58, 0.5, 0.5)

		dc.SetFontFace(r.face(r.regular, 22))
		setRGB(dc, colorMuted)
		dc.DrawStringAnchored(tile.label, x+tileWidth/2, y+104, 0.5, 0.5)
	}
	return y + tileHeight + tileGap
}

func (r *Renderer) drawTopContent(ctx context.Context, dc *gg.Context, y float64, items []models.ReportItem) float64 {
	dc.SetFontFace(r.face(r.bold, 28))
	setRGB(dc, colorText)
	dc.DrawString("Most Played", marginX, y+44)
	y += sectionHead

	rowWidth := canvasWidth - 2*marginX
	for i, item := range items {
		setRGB(dc, colorCard)
		dc.DrawRoundedRectangle(marginX, y, rowWidth, rowHeight, 12)
		dc.Fill()

		coverX := marginX + 12
		coverY := y + 12
		var cover image.Image
		if r.posters != nil {
			cover = r.posters.Resolve(ctx, item)
		}
		if cover != nil {
			r.drawCover(dc, cover, coverX, coverY)
		} else {
			r.drawPlaceholder(dc, coverX, coverY)
		}

		textX := coverX + coverWidth + 24
		dc.SetFontFace(r.face(r.bold, 26))
		setRGB(dc, colorCyan)
		dc.DrawString(fmt.Sprintf("%d", i+1), textX, y+56)

		dc.SetFontFace(r.face(r.bold, 26))
		setRGB(dc, colorText)
		dc.DrawString(truncateText(dc, item.Name, rowWidth-(textX-marginX)-60), textX+44, y+56)

		dc.SetFontFace(r.face(r.regular, 22))
		setRGB(dc, colorMuted)
		detail := fmt.Sprintf("%s · %d plays · %.1f h", item.Type, item.PlayCount, item.Hours)
		dc.DrawString(detail, textX+44, y+98)

		y += rowHeight + rowGap
	}
	return y
}

// drawCover scales the poster into the fixed cover box and clips it to
// rounded corners.
func (r *Renderer) drawCover(dc *gg.Context, cover image.Image, x, y float64) {
	scaled := image.NewRGBA(image.Rect(0, 0, coverWidth, coverHeight))
	draw.ApproxBiLinear.Scale(scaled, scaled.Bounds(), cover, cover.Bounds(), draw.Over, nil)

	dc.Push()
	dc.DrawRoundedRectangle(x, y, coverWidth, coverHeight, 8)
	dc.Clip()
	dc.DrawImage(scaled, int(x), int(y))
	dc.Pop()
}

func (r *Renderer) drawPlaceholder(dc *gg.Context, x, y float64) {
	dc.SetRGB255(55, 65, 81)
	dc.DrawRoundedRectangle(x, y, coverWidth, coverHeight, 8)
	dc.Fill()

	dc.SetFontFace(r.face(r.regular, 18))
	setRGB(dc, colorMuted)
	dc.DrawStringAnchored("no art", x+coverWidth/2, y+coverHeight/2, 0.5, 0.5)
}

func (r *Renderer) drawTopUsers(dc *gg.Context, y float64, users []models.ReportUser) float64 {
	dc.SetFontFace(r.face(r.bold, 28))
	setRGB(dc, colorText)
	dc.DrawString("Most Active", marginX, y+44)
	y += sectionHead

	for i, user := range users {
		dc.SetFontFace(r.face(r.bold, 22))
		setRGB(dc, colorPurple)
		dc.DrawString(fmt.Sprintf("%d", i+1), marginX+12, y+28)

		dc.SetFontFace(r.face(r.regular, 22))
		setRGB(dc, colorText)
		dc.DrawString(user.Name, marginX+56, y+28)

		setRGB(dc, colorMuted)
		stats := fmt.Sprintf("%d plays · %.1f h", user.PlayCount, user.Hours)
		dc.DrawStringAnchored(stats, canvasWidth-marginX, y+28, 1, 0)

		y += 44
	}
	return y
}

func (r *Renderer) drawFooter(dc *gg.Context, report *models.Report) {
	dc.SetFontFace(r.face(r.regular, 18))
	setRGB(dc, colorMuted)
	footer := "Embywatch · " + report.GeneratedAt.Format("2006-01-02 15:04 MST")
	dc.DrawStringAnchored(footer, canvasWidth/2, float64(dc.Height())-36, 0.5, 0.5)
}

// truncateText shortens s with an ellipsis until it fits maxWidth
// under the current font face.
func truncateText(dc *gg.Context, s string, maxWidth float64) string {
	if w, _ := dc.MeasureString(s); w <= maxWidth {
		return s
	}
	runes := []rune(s)
	for len(runes) > 1 {
		runes = runes[:len(runes)-1]
		candidate := string(runes) + "…"
		if w, _ := dc.MeasureString(candidate); w <= maxWidth {
			return candidate
		}
	}
	return "…"
}
