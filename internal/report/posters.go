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
	_ "image/jpeg"
	_ "image/png"

	"github.com/embywatch/embywatch/internal/logging"
	"github.com/embywatch/embywatch/internal/models"
)

// coverMaxWidth is the server-side resize hint for fetched covers.
const coverMaxWidth = 300

// LibrarySource fetches cover art and metadata from the media server.
// *emby.Client satisfies it.
type LibrarySource interface {
	PrimaryImage(ctx context.Context, itemID string, maxWidth int) ([]byte, error)
	ProviderIDs(ctx context.Context, itemID string) (map[string]string, error)
}

// PosterSource fetches fallback poster art by external ID.
// *tmdb.Client satisfies it.
type PosterSource interface {
	Poster(ctx context.Context, tmdbID, mediaType, size string) ([]byte, error)
}

// PosterResolver finds a cover image for a library item, trying TMDB
// first and the media server's primary image second. tmdb may be nil.
type PosterResolver struct {
	library LibrarySource
	tmdb    PosterSource
}

// NewPosterResolver builds a resolver. Pass nil for tmdb to disable
// the fallback.
func NewPosterResolver(library LibrarySource, tmdb PosterSource) *PosterResolver {
	return &PosterResolver{library: library, tmdb: tmdb}
}

// Resolve returns a decoded cover for the item, or nil when no cover
// could be found. A nil return is not an error; callers draw a
// placeholder tile instead.
func (p *PosterResolver) Resolve(ctx context.Context, item models.ReportItem) image.Image {
	if p.tmdb != nil {
		if img := p.resolveTMDB(ctx, item); img != nil {
			return img
		}
	}

	if p.library != nil && item.ItemID != "" {
		data, err := p.library.PrimaryImage(ctx, item.ItemID, coverMaxWidth)
		if err == nil {
			if img := decodeImage(data); img != nil {
				return img
			}
		} else if !errors.Is(err, models.ErrNotFound) {
			log := logging.WithComponent("report")
			log.Debug().Err(err).Str("item_id", item.ItemID).Msg("primary image fetch failed")
		}
	}
	return nil
}

func (p *PosterResolver) resolveTMDB(ctx context.Context, item models.ReportItem) image.Image {
	if p.library == nil || item.ItemID == "" {
		return nil
	}
	providers, err := p.library.ProviderIDs(ctx, item.ItemID)
	if err != nil {
		return nil
	}
	tmdbID, ok := providers["Tmdb"]
	if !ok || tmdbID == "" {
		return nil
	}
	data, err := p.tmdb.Poster(ctx, tmdbID, item.Type, "w300")
	if err != nil {
		log := logging.WithComponent("report")
		log.Debug().Err(err).Str("tmdb_id", tmdbID).Msg("tmdb poster fetch failed")
		return nil
	}
	return decodeImage(data)
}

func decodeImage(data []byte) image.Image {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil
	}
	return img
}
