package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"job-relay/agent/internal/command"
	"job-relay/agent/internal/relayclient"
)

const sampleCompanyPage = `<html><body><a href="https://www.linkedin.com/company/test-company">Test Company</a></body></html>`

var errScenario = errors.New("scenario failed")

// runScenario reports a snapshot, expects exactly one NAVIGATE, confirms it
// and then collects the scroll burst.
func runScenario(ctx context.Context, c *relayclient.Client, out io.Writer) error {
	fmt.Fprintln(out, "> dom_snapshot")
	if err := c.Report(ctx, relayclient.KindDOMSnapshot, sampleCompanyPage); err != nil {
		return err
	}

	var nav relayclient.Command
	for nav.ID == "" {
		cmds, err := c.Poll(ctx)
		if err != nil {
			return err
		}
		for _, cmd := range cmds {
			fmt.Fprintln(out, "<", command.Format(cmd))
			if cmd.Action != "NAVIGATE" {
				return fmt.Errorf("%w: expected NAVIGATE first, got %s", errScenario, cmd.Action)
			}
			nav = cmd
		}
		if nav.ID == "" {
			if err := sleep(ctx, 200*time.Millisecond); err != nil {
				return fmt.Errorf("%w: no NAVIGATE arrived", errScenario)
			}
		}
	}

	// gated until confirmed
	cmds, err := c.Poll(ctx)
	if err != nil {
		return err
	}
	if len(cmds) != 0 {
		return fmt.Errorf("%w: %d command(s) delivered before confirmation", errScenario, len(cmds))
	}

	fmt.Fprintln(out, "> navigation_complete", nav.Value)
	if err := c.Report(ctx, relayclient.KindNavigationComplete, nav.Value); err != nil {
		return err
	}

	scrolls := 0
	quiet := 0
	for quiet < 20 {
		cmds, err := c.Poll(ctx)
		if err != nil {
			return err
		}
		if len(cmds) == 0 {
			quiet++
		} else {
			quiet = 0
		}
		for _, cmd := range cmds {
			fmt.Fprintln(out, "<", command.Format(cmd))
			if cmd.Action == "SCROLL" {
				scrolls++
			}
		}
		if err := sleep(ctx, 250*time.Millisecond); err != nil {
			break
		}
	}
	if scrolls == 0 {
		return fmt.Errorf("%w: no SCROLL after confirmation", errScenario)
	}
	fmt.Fprintf(out, "ok: 1 navigate, %d scroll(s)\n", scrolls)
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
