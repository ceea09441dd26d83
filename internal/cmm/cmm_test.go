package cmm

import (
	"context"
	"errors"
	"os"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/dokzlo13/monitord/internal/display"
	"github.com/dokzlo13/monitord/internal/scheduler"
)

const monitorsFixture = `Monitor Device Name: "\\.\DISPLAY1\Monitor0"
Monitor Name: "DELL U2720Q"
Serial Number: "7G1K2"
Adapter Name: "NVIDIA GeForce RTX 3070"
Monitor ID: "MONITOR\DEL4190\{4d36e96e-e325-11ce-bfc1-08002be10318}\0004"
Short Monitor ID: "DEL4190"

Monitor Device Name: "\\.\DISPLAY2\Monitor0"
Monitor Name: "LG HDR 4K"
Serial Number: ""
Short Monitor ID: "GSM7707"
`

const codesFixture = `[
  {"VCP Code": "10", "VCP Code Name": "Brightness", "Read-Write": "Read+Write", "Current Value": "45", "Maximum Value": "100", "Possible Values": ""},
  {"VCP Code": "12", "VCP Code Name": "Contrast", "Read-Write": "Read+Write", "Current Value": "75", "Maximum Value": "100", "Possible Values": ""},
  {"VCP Code": "14", "VCP Code Name": "Select Color Preset", "Read-Write": "Read+Write", "Current Value": "5", "Maximum Value": "11", "Possible Values": "1, 5, 6, 8, 11"},
  {"VCP Code": "60", "VCP Code Name": "Input Select", "Read-Write": "Read+Write", "Current Value": "15", "Maximum Value": "0", "Possible Values": ""},
  {"VCP Code": "04", "VCP Code Name": "Restore Factory Defaults", "Read-Write": "Write Only", "Current Value": "", "Maximum Value": "1", "Possible Values": ""},
  {"VCP Code": "C0", "VCP Code Name": "Display Usage Time", "Read-Write": "Read Only", "Current Value": "1200", "Maximum Value": "65535", "Possible Values": ""},
  {"VCP Code": "10", "VCP Code Name": "Brightness", "Read-Write": "Read+Write", "Current Value": "45", "Maximum Value": "100", "Possible Values": ""}
]`

// fakeRunner writes fixtures to the output path the tool would write to.
type fakeRunner struct {
	mu    sync.Mutex
	calls [][]string
	err   error

	// dumps overrides the capability dump per display number.
	dumps map[string]string
}

func (f *fakeRunner) Run(_ context.Context, args ...string) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, args)
	f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}
	switch args[0] {
	case "/smonitors":
		return nil, os.WriteFile(args[1], []byte(monitorsFixture), 0o644)
	case "/sjson":
		dump, ok := f.dumps[args[2]]
		if !ok {
			dump = codesFixture
		}
		return nil, os.WriteFile(args[1], []byte(dump), 0o644)
	}
	return nil, nil
}

func (f *fakeRunner) count(verb string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c[0] == verb {
			n++
		}
	}
	return n
}

func TestParseMonitors(t *testing.T) {
	got := ParseMonitors([]byte(monitorsFixture))
	want := []display.Info{
		{NumberID: `\\.\DISPLAY1\Monitor0`, Name: "DELL U2720Q", SerialNumber: "7G1K2", ShortID: "DEL4190"},
		{NumberID: `\\.\DISPLAY2\Monitor0`, Name: "LG HDR 4K", SerialNumber: "", ShortID: "GSM7707"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ParseMonitors = %+v, want %+v", got, want)
	}
}

func TestParseMonitors_IgnoresOrphanFields(t *testing.T) {
	got := ParseMonitors([]byte("Monitor Name: \"orphan\"\ngarbage\n"))
	if len(got) != 0 {
		t.Errorf("got %d displays, want 0", len(got))
	}
}

func TestParseAndFilterCodes(t *testing.T) {
	raw, err := ParseCodes([]byte(codesFixture))
	if err != nil {
		t.Fatalf("ParseCodes error: %v", err)
	}
	if len(raw) != 7 {
		t.Fatalf("raw codes = %d, want 7", len(raw))
	}
	if raw[2].PossibleValues != "1, 5, 6, 8, 11" {
		t.Errorf("possible values = %q", raw[2].PossibleValues)
	}

	filtered := FilterCodes(raw)
	var codes []string
	for _, c := range filtered {
		codes = append(codes, c.Code)
	}
	if want := []string{"10", "12", "14"}; !reflect.DeepEqual(codes, want) {
		t.Errorf("filtered codes = %v, want %v", codes, want)
	}

	if _, err := ParseCodes([]byte(`{"not": "array"}`)); err == nil {
		t.Error("expected error for non-array json")
	}
	if _, err := ParseCodes([]byte(`[{`)); err == nil {
		t.Error("expected error for invalid json")
	}
}

func TestDiscover(t *testing.T) {
	runner := &fakeRunner{}
	d := NewDiscovery(runner, t.TempDir())

	found, err := d.Discover(context.Background())
	if err != nil {
		t.Fatalf("Discover error: %v", err)
	}
	if len(found) != 2 {
		t.Fatalf("displays = %d, want 2", len(found))
	}
	for _, f := range found {
		if len(f.Codes) != 3 {
			t.Errorf("%s: codes = %d, want 3", f.Info.LongID(), len(f.Codes))
		}
	}

	// Dumps are reused on the next run.
	if _, err := d.Discover(context.Background()); err != nil {
		t.Fatalf("second Discover error: %v", err)
	}
	if n := runner.count("/sjson"); n != 2 {
		t.Errorf("/sjson calls = %d, want 2", n)
	}
	if n := runner.count("/smonitors"); n != 2 {
		t.Errorf("/smonitors calls = %d, want 2", n)
	}
}

func TestDiscover_SkipsUnreadableDisplay(t *testing.T) {
	dir := t.TempDir()
	runner := &fakeRunner{dumps: map[string]string{`\\.\DISPLAY2\Monitor0`: ""}}
	d := NewDiscovery(runner, dir)

	found, err := d.Discover(context.Background())
	if err != nil {
		t.Fatalf("Discover error: %v", err)
	}
	if len(found) != 1 || found[0].Info.NumberID != `\\.\DISPLAY1\Monitor0` {
		t.Fatalf("found = %+v, want only DISPLAY1", found)
	}

	// The empty dump is not kept, so the next run asks the tool again.
	if _, err := d.Discover(context.Background()); err != nil {
		t.Fatalf("second Discover error: %v", err)
	}
	if n := runner.count("/sjson"); n != 3 {
		t.Errorf("/sjson calls = %d, want 3", n)
	}
}

func TestRawCodes_WrapsParseError(t *testing.T) {
	info := display.Info{NumberID: `\\.\DISPLAY2\Monitor0`, Name: "LG HDR 4K", ShortID: "GSM7707"}
	d := NewDiscovery(&fakeRunner{dumps: map[string]string{info.NumberID: "[{"}}, t.TempDir())

	_, err := d.RawCodes(context.Background(), info)
	if err == nil {
		t.Fatal("expected error for invalid dump")
	}
	if !strings.Contains(err.Error(), info.String()) {
		t.Errorf("err = %v, want display %s in message", err, info)
	}
}

func TestDiscover_ToolFailure(t *testing.T) {
	d := NewDiscovery(&fakeRunner{err: errors.New("not found")}, t.TempDir())
	if _, err := d.Discover(context.Background()); err == nil {
		t.Error("expected error when the tool fails")
	}
}

func TestSink_SingleInvocationPerBatch(t *testing.T) {
	runner := &fakeRunner{}
	sink := NewSink(runner)

	a := display.Info{NumberID: `\\.\DISPLAY1\Monitor0`}
	b := display.Info{NumberID: `\\.\DISPLAY2\Monitor0`}
	batch := scheduler.Batch{ID: "b1", Commands: []scheduler.Command{
		{Display: a, Code: "10", Value: 50},
		{Display: b, Code: "E2", Value: 3},
	}}

	if err := sink.Apply(context.Background(), batch); err != nil {
		t.Fatalf("Apply error: %v", err)
	}
	if len(runner.calls) != 1 {
		t.Fatalf("tool invocations = %d, want 1", len(runner.calls))
	}
	want := []string{
		"/SetValueIfNeeded", `\\.\DISPLAY1\Monitor0`, "10", "50",
		"/SetValueIfNeeded", `\\.\DISPLAY2\Monitor0`, "E2", "3",
	}
	if !reflect.DeepEqual(runner.calls[0], want) {
		t.Errorf("args = %v, want %v", runner.calls[0], want)
	}

	if err := sink.Apply(context.Background(), scheduler.Batch{}); err != nil {
		t.Errorf("empty batch error: %v", err)
	}
	if len(runner.calls) != 1 {
		t.Error("empty batch should not spawn the tool")
	}
}

func TestSink_PropagatesFailure(t *testing.T) {
	sink := NewSink(&fakeRunner{err: errors.New("exit status 1")})
	batch := scheduler.Batch{Commands: []scheduler.Command{{Code: "10", Value: 1}}}
	if err := sink.Apply(context.Background(), batch); err == nil {
		t.Error("expected error")
	}
}
