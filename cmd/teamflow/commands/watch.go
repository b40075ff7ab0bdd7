package commands

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dyluth/teamflow/internal/filter"
	"github.com/dyluth/teamflow/internal/format"
	"github.com/dyluth/teamflow/internal/printer"
	"github.com/dyluth/teamflow/internal/watch"
	"github.com/spf13/cobra"
)

var (
	watchOutput  string
	watchFrom    int64
	watchTimeout time.Duration
	watchFollow  bool
	watchSince   string
	watchUntil   string
	watchType    string
	watchStep    string
)

var watchCmd = &cobra.Command{
	Use:   "watch <run-id>",
	Short: "Stream a run's events",
	Long: `Print a run's events as they are recorded.

Output Formats:
  default - Human-readable lines with timestamps
  json    - Line-delimited JSON for programmatic processing

The stream stops at the first event that ends the run unless --follow is set,
which keeps watching through regenerations until --timeout.

Examples:
  teamflow watch run_3f2a
  teamflow watch run_3f2a --from 12 --output=json > events.jsonl
  teamflow watch run_3f2a --type 'revision_*' --since 10m`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVarP(&watchOutput, "output", "o", "default", "Output format (default or json)")
	watchCmd.Flags().Int64Var(&watchFrom, "from", 0, "First event index to print")
	watchCmd.Flags().DurationVar(&watchTimeout, "timeout", 30*time.Minute, "Maximum watch duration")
	watchCmd.Flags().BoolVarP(&watchFollow, "follow", "f", false, "Keep watching after the run ends")
	watchCmd.Flags().StringVar(&watchSince, "since", "", "Only events after this time (duration like 1h or RFC3339)")
	watchCmd.Flags().StringVar(&watchUntil, "until", "", "Only events before this time (duration like 1h or RFC3339)")
	watchCmd.Flags().StringVar(&watchType, "type", "", "Only event types matching this glob, e.g. 'step_*'")
	watchCmd.Flags().StringVar(&watchStep, "step", "", "Only events for this stage")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out, err := format.ParseOutput(watchOutput)
	if err != nil {
		return printer.Error("invalid output format", err.Error(), "Valid formats: default, json")
	}

	since, until, err := filter.ParseRange(watchSince, watchUntil, time.Now())
	if err != nil {
		return printer.Error("invalid time range", err.Error())
	}
	criteria := &filter.Criteria{Since: since, Until: until, TypeGlob: watchType, Step: watchStep}

	a, err := newApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close()

	w := cmd.OutOrStdout()
	err = a.service.Stream(ctx, args[0], watch.Options{
		Start:          watchFrom,
		MaxDuration:    watchTimeout,
		StopOnTerminal: !watchFollow,
	}, func(f watch.Frame) error {
		if f.Heartbeat || !criteria.Matches(f.Record.Event) {
			return nil
		}
		return format.Event(w, f.Record, out)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return serviceError(err, args[0])
	}
	return nil
}
