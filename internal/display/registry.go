package display

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/monitord/internal/vcp"
)

var ErrUnknownDisplay = errors.New("unknown display")

// Registry is the shared set of displays. Readers get copies, so edits made
// while a tick is running show up on the following tick.
type Registry struct {
	mu       sync.RWMutex
	displays []*Display
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Replace swaps the whole display set, e.g. after re-enumeration.
func (r *Registry) Replace(displays []*Display) {
	r.mu.Lock()
	r.displays = displays
	r.mu.Unlock()

	log.Debug().Int("displays", len(displays)).Msg("Display registry replaced")
}

// Len returns the number of displays.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.displays)
}

// Displays returns deep copies of all displays.
func (r *Registry) Displays() []*Display {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Display, len(r.displays))
	for i, d := range r.displays {
		out[i] = d.Clone()
	}
	return out
}

// Get returns a copy of the display with the given long id.
func (r *Registry) Get(longID string) (*Display, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, err := r.find(longID)
	if err != nil {
		return nil, err
	}
	return d.Clone(), nil
}

// Refresh replaces the display with the given long id by whatever load
// returns for its live identity. load runs under the write lock, so it never
// interleaves with Update.
func (r *Registry) Refresh(longID string, load func(Info) (*Display, error)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	i, err := r.index(longID)
	if err != nil {
		return err
	}
	live := r.displays[i].Info

	d, err := load(live)
	if err != nil {
		return err
	}
	// Keep the live NumberID, the saved one may be stale.
	d.Info = live
	r.displays[i] = d
	return nil
}

// Update edits one controller on a copy of its display. A non-nil commit runs
// with the edited copy before it becomes visible, and a commit error leaves
// the registry unchanged. It returns a copy of the resulting display.
func (r *Registry) Update(longID, code string, fn func(*vcp.Controller) error, commit func(*Display) error) (*Display, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	i, err := r.index(longID)
	if err != nil {
		return nil, err
	}

	edited := r.displays[i].Clone()
	ctrl, err := edited.Controller(code)
	if err != nil {
		return nil, err
	}
	if err := fn(ctrl); err != nil {
		return nil, err
	}
	if commit != nil {
		if err := commit(edited); err != nil {
			return nil, err
		}
	}
	r.displays[i] = edited

	return edited.Clone(), nil
}

// Target is a schedulable controller paired with the display it belongs to.
type Target struct {
	Display    Info
	Controller *vcp.Controller
}

// Snapshot returns copies of every active controller with a non-empty
// schedule, across all displays.
func (r *Registry) Snapshot() []Target {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Target
	for _, d := range r.displays {
		for _, c := range d.Controllers {
			if !c.Schedulable() {
				continue
			}
			out = append(out, Target{Display: d.Info, Controller: c.Clone()})
		}
	}
	return out
}

func (r *Registry) find(longID string) (*Display, error) {
	i, err := r.index(longID)
	if err != nil {
		return nil, err
	}
	return r.displays[i], nil
}

func (r *Registry) index(longID string) (int, error) {
	for i, d := range r.displays {
		if d.Info.LongID() == longID {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%w: %s", ErrUnknownDisplay, longID)
}
