package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/monitord/internal/cmm"
	"github.com/dokzlo13/monitord/internal/display"
	"github.com/dokzlo13/monitord/internal/schedule"
	"github.com/dokzlo13/monitord/internal/store"
	"github.com/dokzlo13/monitord/internal/vcp"
)

// Discoverer enumerates attached displays with their schedulable codes.
type Discoverer interface {
	Discover(ctx context.Context) ([]cmm.Discovered, error)
}

// DisplayService keeps the registry in sync with attached monitors and their
// schedule files.
type DisplayService struct {
	Registry  *display.Registry
	Files     *store.Files
	discovery Discoverer
}

// NewDisplayService creates a new DisplayService.
func NewDisplayService(registry *display.Registry, files *store.Files, discovery Discoverer) *DisplayService {
	return &DisplayService{
		Registry:  registry,
		Files:     files,
		discovery: discovery,
	}
}

// Load discovers displays, loads or creates each schedule file and replaces
// the registry contents. A display whose file cannot be loaded is skipped.
func (s *DisplayService) Load(ctx context.Context) (int, error) {
	found, err := s.discovery.Discover(ctx)
	if err != nil {
		return 0, fmt.Errorf("discover displays: %w", err)
	}

	displays := make([]*display.Display, 0, len(found))
	for _, f := range found {
		d, err := s.Files.LoadOrCreate(f.Info, f.Codes)
		if err != nil {
			log.Error().Err(err).Str("display", f.Info.LongID()).Msg("Failed to load display schedule, skipping")
			continue
		}
		displays = append(displays, d)
	}

	s.Registry.Replace(displays)
	log.Info().Int("displays", len(displays)).Msg("Loaded displays")
	return len(displays), nil
}

// ScheduleUpdate edits one controller. Nil fields are left unchanged.
type ScheduleUpdate struct {
	Points *[]schedule.Point `json:"points,omitempty"`
	Active *bool             `json:"active,omitempty"`
}

// Update persists an edit and then publishes it to the registry. The
// scheduler sees the edit on its next tick.
func (s *DisplayService) Update(longID, code string, upd ScheduleUpdate) (*display.Display, error) {
	edit := func(c *vcp.Controller) error {
		if upd.Points != nil {
			if err := c.SetPoints(*upd.Points); err != nil {
				return err
			}
		}
		if upd.Active != nil {
			c.IsActive = *upd.Active
		}
		return nil
	}

	d, err := s.Registry.Update(longID, code, edit, s.Files.Save)
	if err != nil {
		return nil, err
	}

	log.Info().Str("display", longID).Str("code", code).Msg("Updated display schedule")
	return d, nil
}
