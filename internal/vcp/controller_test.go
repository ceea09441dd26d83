package vcp

import (
	"errors"
	"testing"

	"github.com/dokzlo13/monitord/internal/schedule"
)

func TestConstraintSnap_Discrete(t *testing.T) {
	c := DiscreteSet(100, 0, 50, 25, 75)

	tests := []struct {
		in   float64
		want float64
	}{
		{60, 50},
		{62.5, 75}, // tie resolves to the larger value
		{12.5, 25},
		{-10, 0},
		{140, 100},
		{75, 75},
	}
	for _, tt := range tests {
		if got := c.Snap(tt.in); got != tt.want {
			t.Errorf("Snap(%g) = %g, want %g", tt.in, got, tt.want)
		}
	}
}

func TestConstraintSnap_Continuous(t *testing.T) {
	c := Continuous(0, 100)

	tests := []struct {
		in   float64
		want float64
	}{
		{42.4, 42},
		{-3, 0},
		{101, 100},
		{10.5, 10},
	}
	for _, tt := range tests {
		if got := c.Snap(tt.in); got != tt.want {
			t.Errorf("Snap(%g) = %g, want %g", tt.in, got, tt.want)
		}
	}

	var unbounded Constraint
	if got := unbounded.Snap(512.2); got != 512 {
		t.Errorf("unbounded Snap = %g, want 512", got)
	}
}

func TestNewController(t *testing.T) {
	ctrl, err := NewController(Code{
		Code:           "14",
		Name:           "Select Color Preset",
		ReadWrite:      "Read+Write",
		CurrentValue:   "5",
		MaximumValue:   "11",
		PossibleValues: "1, 5, 6, 8, 11",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ctrl.IsActive {
		t.Error("new controllers should be inactive")
	}
	if *ctrl.CurrentValue != 5 || *ctrl.MaximumValue != 11 {
		t.Errorf("values = %d/%d, want 5/11", *ctrl.CurrentValue, *ctrl.MaximumValue)
	}
	if !ctrl.Constraint().IsDiscrete() {
		t.Error("possible values should yield a discrete constraint")
	}

	if _, err := NewController(Code{Code: "10", MaximumValue: "abc"}); err == nil {
		t.Error("expected parse error for bad maximum")
	}
}

func TestControllerSetPoints(t *testing.T) {
	max := 100
	ctrl := &Controller{Code: "10", MaximumValue: &max}

	err := ctrl.SetPoints([]schedule.Point{{Hour: 20, Value: 120}, {Hour: 7, Value: 30.4}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []schedule.Point{{Hour: 7, Value: 30}, {Hour: 20, Value: 100}}
	for i := range want {
		if ctrl.Points[i] != want[i] {
			t.Errorf("Points[%d] = %v, want %v", i, ctrl.Points[i], want[i])
		}
	}

	err = ctrl.SetPoints([]schedule.Point{{Hour: 7, Value: 1}, {Hour: 7, Value: 2}})
	if !errors.Is(err, schedule.ErrDuplicateHour) {
		t.Errorf("err = %v, want ErrDuplicateHour", err)
	}
	if len(ctrl.Points) != 2 {
		t.Error("failed SetPoints must not modify the schedule")
	}
}

func TestControllerClone(t *testing.T) {
	max := 100
	orig := &Controller{Code: "10", MaximumValue: &max, IsActive: true,
		Points: []schedule.Point{{Hour: 1, Value: 2}}}

	clone := orig.Clone()
	clone.Points[0].Value = 99
	*clone.MaximumValue = 5

	if orig.Points[0].Value != 2 || *orig.MaximumValue != 100 {
		t.Error("Clone shares state with the original")
	}
}

func TestFind(t *testing.T) {
	ctrls := []*Controller{{Code: "10"}, {Code: "E2"}}
	if c, err := Find(ctrls, "e2"); err != nil || c.Code != "E2" {
		t.Errorf("Find(e2) = %v, %v", c, err)
	}
	if _, err := Find(ctrls, "12"); !errors.Is(err, ErrUnknownCode) {
		t.Errorf("err = %v, want ErrUnknownCode", err)
	}
}
