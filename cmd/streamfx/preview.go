package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"pkt.systems/pslog"
	"pkt.systems/streamfx"
	"pkt.systems/streamfx/core"
	"pkt.systems/streamfx/internal/appconfig"
	"pkt.systems/streamfx/schema"
)

const previewHelp = "enter=toggle, s=status, h=history, q=quit"

func newPreviewCmd(opts *rootOptions) *cobra.Command {
	var effect string
	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Drive the preview controller from the terminal",
		Long:  "Runs the preview controller without network listeners. Commands are read from stdin: " + previewHelp + ".",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := pslog.Ctx(ctx)

			stopProfile, err := startProfile(opts.profile, opts.profilePath)
			if err != nil {
				return err
			}
			defer stopProfile()

			cfg, err := appconfig.Load(opts.configPath)
			if err != nil {
				return err
			}
			if effect != "" {
				cfg.Preview.Effect = effect
			}
			rt, err := streamfx.NewRuntime(ctx, cfg.ControllerConfig(), streamfx.RuntimeDeps{
				Logger:     logger,
				MaxWindows: cfg.Preview.MaxWindows,
			})
			if err != nil {
				return err
			}
			defer func() {
				closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := rt.Close(closeCtx); err != nil {
					logger.Warn("preview runtime close failed", "err", err)
				}
			}()
			return runPreview(ctx, rt, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&effect, "effect", "e", "", "effect to apply (style_transfer, background_blur, invert)")
	return cmd
}

// runPreview reads commands from in until EOF, q or ctx is done. Toggles
// go through a command queue carrying the state observed when the key
// was read, so a repeated Enter behaves like a double click.
func runPreview(ctx context.Context, rt *streamfx.Runtime, in io.Reader, out io.Writer) error {
	out = &syncWriter{w: out}
	queue := core.NewCommandQueue(ctx, 8)
	defer queue.Close()

	events, unsubscribe := rt.Events.Subscribe()
	printed := make(chan struct{})
	go func() {
		defer close(printed)
		for event := range events {
			fmt.Fprintln(out, formatEvent(event))
		}
	}()
	defer func() {
		unsubscribe()
		<-printed
	}()

	fmt.Fprintln(out, formatSnapshot(rt.Controller.Snapshot()))
	fmt.Fprintln(out, previewHelp)

	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					return err
				default:
					return nil
				}
			}
			switch strings.ToLower(strings.TrimSpace(line)) {
			case "", "t", "toggle":
				observed := rt.Controller.State()
				err := queue.Submit(ctx, "toggle", func(ctx context.Context) error {
					_, err := rt.Controller.ToggleFrom(ctx, observed)
					return err
				})
				if err != nil {
					fmt.Fprintf(out, "toggle failed: %v\n", err)
				}
			case "s", "status":
				fmt.Fprintln(out, formatSnapshot(rt.Controller.Snapshot()))
			case "h", "history":
				for _, record := range rt.History.Recent(10) {
					fmt.Fprintln(out, formatRecord(record))
				}
			case "q", "quit", "exit":
				return nil
			default:
				fmt.Fprintf(out, "unknown command %q (%s)\n", line, previewHelp)
			}
		}
	}
}

func formatSnapshot(snap schema.SessionSnapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "state=%s effect=%s", snap.State, snap.Effect)
	if snap.SessionID != "" {
		fmt.Fprintf(&b, " session=%s window=%s", snap.SessionID, snap.WindowID)
	}
	if snap.SpareReady {
		fmt.Fprintf(&b, " spare=%s", snap.SpareWindowID)
	} else {
		b.WriteString(" spare=none")
	}
	if snap.Task != nil {
		fmt.Fprintf(&b, " frames=%d", snap.Task.Frames)
		if snap.Task.Completed {
			fmt.Fprintf(&b, " ended=%s", snap.Task.Reason)
		}
	}
	if snap.Closed {
		b.WriteString(" closed")
	}
	return b.String()
}

func formatEvent(event schema.StateEvent) string {
	line := fmt.Sprintf("[%s] %s", event.Type, formatSnapshot(event.Snapshot))
	if event.Task != nil && event.Type == schema.StateEventTaskCompleted {
		line += fmt.Sprintf(" reason=%s", event.Task.Reason)
	}
	if event.Err != "" {
		line += " error=" + event.Err
	}
	return line
}

func formatRecord(record schema.SessionRecord) string {
	line := fmt.Sprintf("%s %s effect=%s frames=%d duration=%s reason=%s",
		record.Started.Format(time.RFC3339),
		record.SessionID,
		record.Effect,
		record.Frames,
		record.Ended.Sub(record.Started).Round(time.Millisecond),
		record.Reason,
	)
	if record.Err != "" {
		line += " error=" + record.Err
	}
	return line
}

type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (w *syncWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.w.Write(p)
}
