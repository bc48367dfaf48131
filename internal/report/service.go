// Embywatch - Emby Playback Statistics Notifications and Reports
// Copyright 2026 Embywatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/embywatch/embywatch

package report

import (
	"context"
	"fmt"

	"github.com/embywatch/embywatch/internal/logging"
	"github.com/embywatch/embywatch/internal/models"
	"github.com/embywatch/embywatch/internal/notify"
	"github.com/embywatch/embywatch/internal/store"
)

// Service runs the full report pipeline: aggregate, render, fan out.
type Service struct {
	generator  *Generator
	renderer   *Renderer
	store      *store.Store
	dispatcher *notify.Dispatcher
}

// NewService wires the pipeline together.
func NewService(generator *Generator, renderer *Renderer, st *store.Store, dispatcher *notify.Dispatcher) *Service {
	return &Service{
		generator:  generator,
		renderer:   renderer,
		store:      st,
		dispatcher: dispatcher,
	}
}

// Generate builds the report payload and its PNG without sending
// anything.
func (s *Service) Generate(ctx context.Context, reportType models.ReportType) (*models.Report, []byte, error) {
	rep, err := s.generator.Generate(ctx, reportType)
	if err != nil {
		return nil, nil, err
	}
	png, err := s.renderer.Render(ctx, rep)
	if err != nil {
		return rep, nil, err
	}
	return rep, png, nil
}

// Send generates the report and dispatches it as an image to the
// channels enabled in the report schedule. When kinds is non-empty it
// overrides the schedule's channel selection.
func (s *Service) Send(ctx context.Context, reportType models.ReportType, kinds []models.ChannelKind) (*notify.DispatchReport, error) {
	log := logging.WithComponent("report")

	if len(kinds) == 0 {
		sched, err := s.store.GetSchedule(ctx)
		if err != nil {
			return nil, fmt.Errorf("load schedule: %w", err)
		}
		kinds = sched.EnabledChannels()
	}
	channels, err := s.targetChannels(ctx, kinds)
	if err != nil {
		return nil, err
	}
	if len(channels) == 0 {
		log.Warn().Str("type", string(reportType)).Msg("no enabled channels for report, skipping send")
		return &notify.DispatchReport{}, nil
	}

	rep, png, err := s.Generate(ctx, reportType)
	if err != nil {
		return nil, err
	}

	caption := fmt.Sprintf("%s · %s\n%d plays · %.1f hours · %d titles",
		rep.Title, rep.Period,
		rep.Summary.TotalPlays, rep.Summary.TotalHours, rep.Summary.TotalTitles)

	return s.dispatcher.Dispatch(ctx, &notify.DispatchRequest{
		Channels: channels,
		Message: &notify.Message{
			Text:         caption,
			ImagePNG:     png,
			ImageCaption: caption,
		},
	}), nil
}

// targetChannels loads the enabled channel configs for the given
// kinds.
func (s *Service) targetChannels(ctx context.Context, kinds []models.ChannelKind) ([]*models.ChannelConfig, error) {
	enabled := true
	all, err := s.store.ListChannels(ctx, store.ChannelFilter{Enabled: &enabled})
	if err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}
	wanted := make(map[models.ChannelKind]bool, len(kinds))
	for _, k := range kinds {
		wanted[k] = true
	}
	var out []*models.ChannelConfig
	for _, ch := range all {
		if wanted[ch.Type] {
			out = append(out, ch)
		}
	}
	return out, nil
}
