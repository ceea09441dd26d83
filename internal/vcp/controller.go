// Package vcp models the VCP codes a monitor exposes over DDC/CI and the
// per-code schedules that drive them.
package vcp

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/dokzlo13/monitord/internal/schedule"
)

var ErrUnknownCode = errors.New("unknown vcp code")

// Code is a capability record as reported by the monitor tool.
type Code struct {
	Code           string
	Name           string
	ReadWrite      string
	CurrentValue   string
	MaximumValue   string
	PossibleValues string
}

// IsWritable reports whether the code accepts set commands.
func (c Code) IsWritable() bool {
	return strings.Contains(strings.ToLower(c.ReadWrite), "write")
}

// Controller is one schedulable VCP code on one monitor.
type Controller struct {
	Code           string           `json:"Code"`
	Name           string           `json:"Name"`
	CurrentValue   *int             `json:"CurrentValue"`
	MaximumValue   *int             `json:"MaximumValue"`
	PossibleValues []int            `json:"PossibleValues"`
	Points         []schedule.Point `json:"TimedValues"`
	IsActive       bool             `json:"IsActive"`
}

// NewController builds an inactive controller with an empty schedule.
func NewController(c Code) (*Controller, error) {
	cur, err := parseOptionalInt(c.CurrentValue)
	if err != nil {
		return nil, fmt.Errorf("code %s: current value: %w", c.Code, err)
	}
	max, err := parseOptionalInt(c.MaximumValue)
	if err != nil {
		return nil, fmt.Errorf("code %s: maximum value: %w", c.Code, err)
	}
	possible, err := parseIntList(c.PossibleValues)
	if err != nil {
		return nil, fmt.Errorf("code %s: possible values: %w", c.Code, err)
	}

	return &Controller{
		Code:           c.Code,
		Name:           c.Name,
		CurrentValue:   cur,
		MaximumValue:   max,
		PossibleValues: possible,
		Points:         []schedule.Point{},
	}, nil
}

// NewControllers builds controllers for every capability record.
func NewControllers(codes []Code) ([]*Controller, error) {
	out := make([]*Controller, 0, len(codes))
	for _, c := range codes {
		ctrl, err := NewController(c)
		if err != nil {
			return nil, err
		}
		out = append(out, ctrl)
	}
	return out, nil
}

// Constraint returns the value constraint for this code.
func (c *Controller) Constraint() Constraint {
	if len(c.PossibleValues) > 0 {
		return DiscreteSet(c.PossibleValues...)
	}
	if c.MaximumValue != nil {
		return Continuous(0, *c.MaximumValue)
	}
	return Constraint{}
}

// SetPoints validates, snaps and stores a new schedule.
func (c *Controller) SetPoints(points []schedule.Point) error {
	normalized, err := schedule.Normalize(points)
	if err != nil {
		return fmt.Errorf("code %s: %w", c.Code, err)
	}
	constraint := c.Constraint()
	for i := range normalized {
		normalized[i].Value = constraint.Snap(normalized[i].Value)
	}
	c.Points = normalized
	return nil
}

// Schedulable reports whether the scheduler should drive this code.
func (c *Controller) Schedulable() bool {
	return c.IsActive && len(c.Points) > 0
}

// Clone returns a deep copy.
func (c *Controller) Clone() *Controller {
	out := *c
	if c.CurrentValue != nil {
		v := *c.CurrentValue
		out.CurrentValue = &v
	}
	if c.MaximumValue != nil {
		v := *c.MaximumValue
		out.MaximumValue = &v
	}
	out.PossibleValues = append([]int(nil), c.PossibleValues...)
	out.Points = schedule.Clone(c.Points)
	return &out
}

// Find returns the controller with the given code.
func Find(controllers []*Controller, code string) (*Controller, error) {
	for _, c := range controllers {
		if strings.EqualFold(c.Code, code) {
			return c, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownCode, code)
}

func parseOptionalInt(s string) (*int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func parseIntList(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	var out []int
	for _, part := range strings.Split(s, ",") {
		v, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
