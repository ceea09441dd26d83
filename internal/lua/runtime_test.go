package lua

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/dokzlo13/monitord/internal/display"
	"github.com/dokzlo13/monitord/internal/scheduler"
)

var testCmd = scheduler.Command{
	Display: display.Info{NumberID: `\\.\DISPLAY1\Monitor0`, Name: "DELL", SerialNumber: "S1", ShortID: "DEL1"},
	Code:    "10",
}

func TestAdjust(t *testing.T) {
	tests := []struct {
		name    string
		script  string
		raw     float64
		want    float64
		wantErr bool
	}{
		{"no script", ``, 40, 40, false},
		{"no adjust function", `x = 1`, 40, 40, false},
		{"nil keeps value", `function adjust(d, code, v, h) return nil end`, 40, 40, false},
		{"scale", `function adjust(d, code, v, h) return v * 0.5 end`, 40, 20, false},
		{"by code", `function adjust(d, code, v, h) if code == "12" then return 0 end return v end`, 40, 40, false},
		{"by display", `function adjust(d, code, v, h) if d.long_id == "DELL_S1_DEL1" then return 99 end end`, 40, 99, false},
		{"by hour", `function adjust(d, code, v, h) if h >= 22 then return 5 end return v end`, 40, 5, false},
		{"runtime error", `function adjust(d, code, v, h) error("boom") end`, 40, 40, true},
		{"wrong type", `function adjust(d, code, v, h) return "bright" end`, 40, 40, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRuntime()
			defer r.Close()

			if tt.script != "" {
				if err := r.LoadString(tt.script); err != nil {
					t.Fatalf("LoadString: %v", err)
				}
			}

			got, err := r.Adjust(testCmd, tt.raw, 22.5)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLoadScript_RelativeToBaseDir(t *testing.T) {
	dir := t.TempDir()
	src := `
local log = require("log")
function adjust(d, code, v, h)
  log.debug("adjusting", {code = code, value = v})
  return v + 1
end
`
	if err := os.WriteFile(filepath.Join(dir, "adjust.lua"), []byte(src), 0o644); err != nil {
		t.Fatal(err)
	}

	r := NewRuntime()
	defer r.Close()

	if err := r.LoadScript("adjust.lua", dir); err != nil {
		t.Fatalf("LoadScript: %v", err)
	}
	got, err := r.Adjust(testCmd, 10, 8)
	if err != nil {
		t.Fatalf("Adjust: %v", err)
	}
	if got != 11 {
		t.Errorf("got %v, want 11", got)
	}
}

func TestLoadScript_Errors(t *testing.T) {
	r := NewRuntime()
	defer r.Close()

	if err := r.LoadScript(filepath.Join(t.TempDir(), "missing.lua"), ""); err == nil {
		t.Error("expected error for missing script")
	}
	if err := r.LoadString(`function (`); err == nil {
		t.Error("expected syntax error")
	}
}

func TestClosedRuntime(t *testing.T) {
	r := NewRuntime()
	r.Close()
	r.Close()

	if _, err := r.Adjust(testCmd, 1, 1); !errors.Is(err, ErrRuntimeClosed) {
		t.Errorf("err = %v, want ErrRuntimeClosed", err)
	}
	if err := r.LoadString(`x = 1`); !errors.Is(err, ErrRuntimeClosed) {
		t.Errorf("err = %v, want ErrRuntimeClosed", err)
	}
}

var _ scheduler.Adjuster = (*Runtime)(nil)
