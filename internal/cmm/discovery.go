package cmm

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
	"golang.org/x/sync/errgroup"

	"github.com/dokzlo13/monitord/internal/display"
	"github.com/dokzlo13/monitord/internal/vcp"
)

// InvalidCodes are writable codes that must never be scheduled: presets,
// factory resets, input selection, power and similar one-shot functions.
var InvalidCodes = map[string]bool{
	// Preset functions
	"08": true, "04": true, "06": true, "05": true, "0A": true, "B0": true, "00": true,
	// Image adjustment
	"0E": true, "1C": true, "1E": true, "1F": true, "3E": true, "56": true, "58": true,
	"73": true, "74": true, "75": true, "7C": true, "88": true, "A2": true, "A4": true,
	"A5": true, "A6": true, "A7": true,
	// Display control
	"C8": true, "C9": true, "C6": true, "AC": true, "DB": true, "CA": true, "CC": true,
	"B5": true, "B4": true, "DF": true, "AE": true,
	// Geometry
	"95": true, "96": true, "97": true, "98": true, "DA": true,
	// Miscellaneous
	"02": true, "03": true, "52": true, "76": true, "78": true, "B2": true, "B6": true,
	"C2": true, "C3": true, "C4": true, "C7": true, "CE": true, "D2": true, "DE": true,
	"8D": true, "94": true,
}

const monitorsFile = "smonitors.txt"

// Discovery enumerates displays and their VCP capabilities through the tool.
type Discovery struct {
	runner  Runner
	tempDir string

	// ReuseDumps skips the capability query when a dump for the display
	// already exists in tempDir.
	ReuseDumps bool

	// Concurrency bounds parallel capability queries.
	Concurrency int
}

// NewDiscovery creates a discovery that writes tool output to tempDir.
func NewDiscovery(runner Runner, tempDir string) *Discovery {
	return &Discovery{
		runner:      runner,
		tempDir:     tempDir,
		ReuseDumps:  true,
		Concurrency: 2,
	}
}

// ListDisplays asks the tool for the attached monitors.
func (d *Discovery) ListDisplays(ctx context.Context) ([]display.Info, error) {
	if err := os.MkdirAll(d.tempDir, 0o755); err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}

	path := filepath.Join(d.tempDir, monitorsFile)
	if _, err := d.runner.Run(ctx, "/smonitors", path); err != nil {
		return nil, fmt.Errorf("list monitors: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read monitor list: %w", err)
	}
	return ParseMonitors(data), nil
}

// ParseMonitors parses the tool's monitor listing. Each record starts with a
// "Monitor Device Name" line.
func ParseMonitors(data []byte) []display.Info {
	var displays []display.Info

	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		key, value, ok := strings.Cut(scanner.Text(), ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), `"`)

		if key == "Monitor Device Name" {
			displays = append(displays, display.Info{NumberID: value})
			continue
		}
		if len(displays) == 0 {
			continue
		}

		current := &displays[len(displays)-1]
		switch key {
		case "Monitor Name":
			current.Name = value
		case "Serial Number":
			current.SerialNumber = value
		case "Short Monitor ID":
			current.ShortID = value
		}
	}

	return displays
}

// Codes returns the schedulable VCP codes of a display.
func (d *Discovery) Codes(ctx context.Context, info display.Info) ([]vcp.Code, error) {
	raw, err := d.RawCodes(ctx, info)
	if err != nil {
		return nil, err
	}
	return FilterCodes(raw), nil
}

// RawCodes returns every code the display reports.
func (d *Discovery) RawCodes(ctx context.Context, info display.Info) ([]vcp.Code, error) {
	if err := os.MkdirAll(d.tempDir, 0o755); err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}

	path := filepath.Join(d.tempDir, info.ConfigFileName())

	_, statErr := os.Stat(path)
	if !d.ReuseDumps || errors.Is(statErr, os.ErrNotExist) {
		if _, err := d.runner.Run(ctx, "/sjson", path, info.NumberID); err != nil {
			return nil, fmt.Errorf("dump codes for %s: %w", info, err)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read codes for %s: %w", info, err)
	}
	codes, err := ParseCodes(data)
	if err != nil {
		// Drop the dump so the next discovery queries the display again.
		if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			log.Warn().Err(rmErr).Str("path", path).Msg("Failed to remove capability dump")
		}
		return nil, fmt.Errorf("parse codes for %s: %w", info, err)
	}
	return codes, nil
}

// ParseCodes parses the tool's JSON capability dump.
func ParseCodes(data []byte) ([]vcp.Code, error) {
	if !gjson.ValidBytes(data) {
		return nil, errors.New("invalid capability json")
	}
	root := gjson.ParseBytes(data)
	if !root.IsArray() {
		return nil, errors.New("capability json is not an array")
	}

	var codes []vcp.Code
	root.ForEach(func(_, item gjson.Result) bool {
		codes = append(codes, vcp.Code{
			Code:           item.Get("VCP Code").String(),
			Name:           item.Get("VCP Code Name").String(),
			ReadWrite:      item.Get("Read-Write").String(),
			CurrentValue:   item.Get("Current Value").String(),
			MaximumValue:   item.Get("Maximum Value").String(),
			PossibleValues: item.Get("Possible Values").String(),
		})
		return true
	})
	return codes, nil
}

// FilterCodes drops unsupported, read-only and blacklisted codes and keeps
// the first record of each code.
func FilterCodes(codes []vcp.Code) []vcp.Code {
	seen := make(map[string]bool)
	var out []vcp.Code
	for _, c := range codes {
		if c.MaximumValue == "0" || !c.IsWritable() || InvalidCodes[strings.ToUpper(c.Code)] {
			continue
		}
		if seen[c.Code] {
			continue
		}
		seen[c.Code] = true
		out = append(out, c)
	}
	return out
}

// Discovered is a display with its schedulable codes.
type Discovered struct {
	Info  display.Info
	Codes []vcp.Code
}

// Discover lists displays and queries their codes in parallel. A display
// whose capabilities cannot be read is logged and left out.
func (d *Discovery) Discover(ctx context.Context) ([]Discovered, error) {
	infos, err := d.ListDisplays(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]*Discovered, len(infos))
	g, gctx := errgroup.WithContext(ctx)
	if d.Concurrency > 0 {
		g.SetLimit(d.Concurrency)
	}

	for i, info := range infos {
		i, info := i, info
		g.Go(func() error {
			codes, err := d.Codes(gctx, info)
			if err != nil {
				log.Warn().Err(err).Str("display", info.LongID()).Msg("Skipping display without readable capabilities")
				return nil
			}
			results[i] = &Discovered{Info: info, Codes: codes}
			log.Debug().Str("display", info.LongID()).Int("codes", len(codes)).Msg("Discovered display")
			return nil
		})
	}
	g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make([]Discovered, 0, len(results))
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}

	log.Info().Int("displays", len(out)).Int("skipped", len(infos)-len(out)).Msg("Display discovery finished")
	return out, nil
}
