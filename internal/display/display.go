// Package display holds monitor identities and the registry of controllers
// the scheduler reads from.
package display

import (
	"fmt"
	"regexp"

	"github.com/dokzlo13/monitord/internal/vcp"
)

// Info identifies a physical monitor.
type Info struct {
	// NumberID is the OS device name (e.g. \\.\DISPLAY1\Monitor0). It can
	// change between boots and is only used to address the tool.
	NumberID     string `json:"DisplayNumber"`
	Name         string `json:"Name"`
	SerialNumber string `json:"SerialNumber"`
	ShortID      string `json:"ShortID"`
}

// LongID is stable across re-enumeration and keys the saved schedule.
func (i Info) LongID() string {
	return fmt.Sprintf("%s_%s_%s", i.Name, i.SerialNumber, i.ShortID)
}

// ConfigFileName is the per-monitor schedule file name.
func (i Info) ConfigFileName() string {
	return SafeFileName(i.LongID()) + ".json"
}

func (i Info) String() string {
	return fmt.Sprintf("%s (%s)", i.LongID(), i.NumberID)
}

var unsafeFileChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]`)

// SafeFileName replaces characters that are invalid in file names.
func SafeFileName(name string) string {
	return unsafeFileChars.ReplaceAllString(name, "_")
}

// Display is a monitor together with its controllers.
type Display struct {
	Info        Info              `json:"Display"`
	Controllers []*vcp.Controller `json:"VCPCodeControllers"`
}

// New creates a display from freshly enumerated capabilities.
func New(info Info, codes []vcp.Code) (*Display, error) {
	ctrls, err := vcp.NewControllers(codes)
	if err != nil {
		return nil, fmt.Errorf("display %s: %w", info.LongID(), err)
	}
	return &Display{Info: info, Controllers: ctrls}, nil
}

// Clone returns a deep copy.
func (d *Display) Clone() *Display {
	out := &Display{Info: d.Info, Controllers: make([]*vcp.Controller, len(d.Controllers))}
	for i, c := range d.Controllers {
		out.Controllers[i] = c.Clone()
	}
	return out
}

// Controller returns the controller for code.
func (d *Display) Controller(code string) (*vcp.Controller, error) {
	return vcp.Find(d.Controllers, code)
}
