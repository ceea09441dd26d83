package cmm

import (
	"context"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/monitord/internal/scheduler"
)

// Sink applies a whole batch with a single tool invocation.
type Sink struct {
	runner Runner
}

// NewSink creates a sink on top of runner.
func NewSink(runner Runner) *Sink {
	return &Sink{runner: runner}
}

// Apply implements scheduler.Sink.
func (s *Sink) Apply(ctx context.Context, batch scheduler.Batch) error {
	if len(batch.Commands) == 0 {
		return nil
	}

	args := SetValueArgs(batch.Commands)
	for _, c := range batch.Commands {
		log.Debug().
			Str("batch_id", batch.ID).
			Str("display", c.Display.LongID()).
			Str("number_id", c.Display.NumberID).
			Str("code", c.Code).
			Int("value", c.Value).
			Msg("Setting VCP code")
	}

	_, err := s.runner.Run(ctx, args...)
	return err
}

// SetValueArgs renders one /SetValueIfNeeded command per entry, so the tool
// only writes codes whose current value differs.
func SetValueArgs(cmds []scheduler.Command) []string {
	args := make([]string, 0, len(cmds)*4)
	for _, c := range cmds {
		args = append(args, "/SetValueIfNeeded", c.Display.NumberID, c.Code, strconv.Itoa(c.Value))
	}
	return args
}
