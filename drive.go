package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"drive_collector/config"
	"drive_collector/models"
	"drive_collector/pipeline"
	"drive_collector/sampler"
	"drive_collector/sensors"
	"drive_collector/uploader"

	"github.com/spf13/cobra"
)

var errNoHardware = errors.New("no hardware sensor source available; enable sensors.simulate")

var keyLabels = map[string]models.Label{
	"n": models.LabelNormal,
	"b": models.LabelHardBraking,
	"a": models.LabelHardAcceleration,
	"t": models.LabelHardTurning,
}

func newDriveCommand(opts *rootOptions) *cobra.Command {
	var duration time.Duration
	cmd := &cobra.Command{
		Use:   "drive",
		Short: "Record a labelled drive and upload it when stopped",
		Long: `Starts sampling and reads label changes from stdin, one per line:
  b  hard braking      a  hard acceleration
  t  hard turning      n  normal driving
  q  stop and upload
End of input, an interrupt or --duration also stop the drive.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDrive(cmd, opts, duration)
		},
	}
	cmd.Flags().DurationVarP(&duration, "duration", "d", 0, "stop automatically after this long")
	return cmd
}

func newSource(cfg *config.Config) (sensors.Source, error) {
	if !cfg.Sensors.Simulate {
		return nil, errNoHardware
	}
	return sensors.NewSimulator(cfg.Sensors.RateHz), nil
}

func runDrive(cmd *cobra.Command, opts *rootOptions, duration time.Duration) error {
	_, st, cleanup, err := openStore(opts)
	if err != nil {
		return err
	}
	defer cleanup()

	coord, err := uploader.New(st, opts.cfg.Upload)
	if err != nil {
		return err
	}
	src, err := newSource(opts.cfg)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	var warnOnce sync.Once
	p := pipeline.New(src, st, coord, opts.cfg.SampleInterval(),
		sampler.WithFailureHandler(func(err error) {
			warnOnce.Do(func() {
				fmt.Fprintf(cmd.ErrOrStderr(), "Warning: samples are not being stored: %v\n", err)
			})
		}))

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := p.Start(ctx); err != nil {
		return err
	}
	fmt.Fprintf(out, "Recording. Label: %s (b/a/t/n to change, q to stop)\n", p.Label().DisplayName())

	var deadline <-chan time.Time
	if duration > 0 {
		timer := time.NewTimer(duration)
		defer timer.Stop()
		deadline = timer.C
	}

	readCtx, stopReading := context.WithCancel(ctx)
	defer stopReading()
	lines := readLines(readCtx, cmd.InOrStdin())
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-deadline:
			break loop
		case line, ok := <-lines:
			if !ok {
				break loop
			}
			label, quit, err := parseInput(line)
			switch {
			case quit:
				break loop
			case err != nil:
				fmt.Fprintln(out, err)
			case label != "":
				p.SetLabel(label)
				fmt.Fprintf(out, "Label: %s\n", label.DisplayName())
			}
		}
	}

	stopReading()
	// further interrupts are acknowledged instead of ending the command
	stop()
	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(interrupts)

	fmt.Fprintln(out, "Stopping, uploading samples...")
	results, err := p.StopAsync(context.WithoutCancel(ctx))
	if err != nil {
		return err
	}
	res := awaitUpload(out, results, interrupts, opts.cfg.UploadTimeout())
	return reportUpload(cmd, res.Session, res.Err)
}

// awaitUpload waits for the upload result. An interrupt meanwhile is answered
// with a notice; the exchange is bounded by the upload timeout.
func awaitUpload(out io.Writer, results <-chan uploader.Result, interrupts <-chan os.Signal, timeout time.Duration) uploader.Result {
	for {
		select {
		case res := <-results:
			return res
		case <-interrupts:
			fmt.Fprintf(out, "Upload in progress, waiting up to %v for the service so no samples are lost\n", timeout)
		}
	}
}

// parseInput maps one line of operator input to a label change or a stop request.
// Full label names are accepted as well as the single-key shortcuts.
func parseInput(line string) (models.Label, bool, error) {
	s := strings.ToLower(strings.TrimSpace(line))
	switch s {
	case "":
		return "", false, nil
	case "q", "quit", "stop":
		return "", true, nil
	}
	if l, ok := keyLabels[s]; ok {
		return l, false, nil
	}
	l, err := models.ParseLabel(s)
	if err != nil {
		return "", false, fmt.Errorf("unknown input %q (b/a/t/n or q)", s)
	}
	return l, false, nil
}

// readLines delivers lines from r until EOF or until ctx is done
func readLines(ctx context.Context, r io.Reader) <-chan string {
	ch := make(chan string)
	go func() {
		defer close(ch)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			select {
			case ch <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch
}
