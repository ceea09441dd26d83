// Package store persists each display's controllers and schedules as one
// JSON file per monitor, keyed by the monitor's stable long id.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/monitord/internal/display"
	"github.com/dokzlo13/monitord/internal/schedule"
	"github.com/dokzlo13/monitord/internal/vcp"
)

// BackupDir is the subfolder that receives copies of superseded files.
const BackupDir = "Old"

var ErrNotFound = errors.New("no saved schedule")

// Files is a directory of per-display schedule files.
type Files struct {
	dir string
}

// NewFiles creates a store rooted at dir.
func NewFiles(dir string) *Files {
	return &Files{dir: dir}
}

// Dir returns the root directory.
func (f *Files) Dir() string {
	return f.dir
}

// Path returns the file path for a display.
func (f *Files) Path(info display.Info) string {
	return filepath.Join(f.dir, info.ConfigFileName())
}

// Load reads the saved display for info. The live info replaces whatever
// identity was saved, so a changed NumberID does not leak into commands.
func (f *Files) Load(info display.Info) (*display.Display, error) {
	d, err := f.LoadFile(f.Path(info))
	if err != nil {
		return nil, err
	}
	d.Info = info
	return d, nil
}

// LoadFile reads and validates a single schedule file.
func (f *Files) LoadFile(path string) (*display.Display, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, filepath.Base(path))
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var d display.Display
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	for _, c := range d.Controllers {
		points, folded := foldEndOfDay(c.Points)
		if folded {
			log.Warn().Str("path", path).Str("code", c.Code).Msg("Schedule point at hour 24 folded onto hour 0")
		}
		if err := c.SetPoints(points); err != nil {
			return nil, fmt.Errorf("validate %s: %w", path, err)
		}
	}
	return &d, nil
}

// Save writes the display's file.
func (f *Files) Save(d *display.Display) error {
	return f.saveTo(f.dir, d)
}

// Backup writes a copy of the display's file into the backup folder.
func (f *Files) Backup(d *display.Display) error {
	return f.saveTo(filepath.Join(f.dir, BackupDir), d)
}

func (f *Files) saveTo(dir string, d *display.Display) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", d.Info.LongID(), err)
	}

	path := filepath.Join(dir, d.Info.ConfigFileName())
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename %s: %w", tmp, err)
	}

	log.Debug().Str("display", d.Info.LongID()).Str("path", path).Msg("Saved display schedule")
	return nil
}

// Migrate carries the active schedules of a saved display over to freshly
// enumerated controllers. If an active code is no longer reported, the old
// file is backed up once before being overwritten.
func (f *Files) Migrate(saved *display.Display, fresh []*vcp.Controller) (*display.Display, error) {
	backedUp := false

	for _, old := range saved.Controllers {
		if !old.IsActive {
			continue
		}

		ctrl, err := vcp.Find(fresh, old.Code)
		if err != nil {
			log.Warn().
				Str("display", saved.Info.LongID()).
				Str("code", old.Code).
				Str("name", old.Name).
				Msg("Active VCP code is no longer supported")

			if !backedUp {
				if err := f.Backup(saved); err != nil {
					return nil, err
				}
				backedUp = true
				log.Info().Str("display", saved.Info.LongID()).Msg("Saved a backup of the display schedule")
			}
			continue
		}

		if err := ctrl.SetPoints(old.Points); err != nil {
			log.Warn().Err(err).Str("display", saved.Info.LongID()).Str("code", old.Code).Msg("Dropping invalid schedule")
			continue
		}
		ctrl.IsActive = true
	}

	migrated := &display.Display{Info: saved.Info, Controllers: fresh}
	if err := f.Save(migrated); err != nil {
		return nil, err
	}
	return migrated, nil
}

// LoadOrCreate returns the saved display for info, migrated onto the given
// capabilities when the saved set of codes differs. Without a saved file a
// fresh display is created and saved.
func (f *Files) LoadOrCreate(info display.Info, codes []vcp.Code) (*display.Display, error) {
	fresh, err := vcp.NewControllers(codes)
	if err != nil {
		return nil, fmt.Errorf("display %s: %w", info.LongID(), err)
	}

	saved, err := f.Load(info)
	switch {
	case errors.Is(err, ErrNotFound):
		d := &display.Display{Info: info, Controllers: fresh}
		if err := f.Save(d); err != nil {
			return nil, err
		}
		log.Info().Str("display", info.LongID()).Int("codes", len(fresh)).Msg("Created display schedule")
		return d, nil

	case err != nil:
		return nil, err
	}

	if sameCodes(saved.Controllers, fresh) {
		return saved, nil
	}
	log.Info().Str("display", info.LongID()).Msg("Display capabilities changed, migrating schedule")
	return f.Migrate(saved, fresh)
}

func sameCodes(a, b []*vcp.Controller) bool {
	if len(a) != len(b) {
		return false
	}
	for _, c := range a {
		if _, err := vcp.Find(b, c.Code); err != nil {
			return false
		}
	}
	return true
}

// foldEndOfDay maps points at hour 24 onto hour 0, which is the same instant
// of the circular day. If hour 0 is already taken the end point is dropped.
func foldEndOfDay(points []schedule.Point) ([]schedule.Point, bool) {
	hasZero := false
	for _, p := range points {
		if p.Hour == 0 {
			hasZero = true
		}
	}

	folded := false
	out := make([]schedule.Point, 0, len(points))
	for _, p := range points {
		if p.Hour != schedule.HoursPerDay {
			out = append(out, p)
			continue
		}
		folded = true
		if !hasZero {
			out = append(out, schedule.Point{Hour: 0, Value: p.Value})
			hasZero = true
		}
	}
	return out, folded
}
