package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	soloerrors "github.com/twitter/solo/common/errors"
	"github.com/twitter/solo/daemon/protocol"
	"github.com/twitter/solo/runner"
)

type runOpts struct {
	params   runner.Params
	policy   string
	replace  bool
	debounce time.Duration
	out      string
	quiet    bool
}

func makeRunCmd(c *CliClient) *cobra.Command {
	o := &runOpts{}
	cmd := &cobra.Command{
		Use:   "run [prompt...]",
		Short: "generate an image, streaming progress until it settles",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, args, o)
		},
	}
	f := cmd.Flags()
	f.StringVar(&o.params.NegativePrompt, "negative", "", "negative prompt")
	f.StringVar(&o.params.Model, "model", "", "model name, executor default if empty")
	f.IntVar(&o.params.Width, "width", 0, "image width")
	f.IntVar(&o.params.Height, "height", 0, "image height")
	f.IntVar(&o.params.Steps, "steps", 0, "sampling steps")
	f.Int64Var(&o.params.Seed, "seed", 0, "sampling seed")
	f.Float64Var(&o.params.GuidanceScale, "guidance", 0, "guidance scale")
	f.StringArrayVar(&o.params.Script, "script", nil, "simulated executor step, repeatable")
	f.StringVar(&o.policy, "policy", "", "busy policy: reject, queue or abort_and_queue (daemon default if empty)")
	f.BoolVar(&o.replace, "replace", true, "replace a job already waiting in the queue")
	f.DurationVar(&o.debounce, "debounce", 0, "quiet period before a queued job starts")
	f.StringVar(&o.out, "out", "", "file to write the image to")
	f.BoolVar(&o.quiet, "quiet", false, "do not print progress")
	return cmd
}

func (o *runOpts) options(cmd *cobra.Command) (*protocol.Options, error) {
	opts := &protocol.Options{}
	if o.policy != "" {
		p, err := runner.ParseBusyPolicy(o.policy)
		if err != nil {
			return nil, err
		}
		opts.BusyPolicy = &p
	}
	if cmd.Flags().Changed("replace") {
		opts.ReplaceQueued = &o.replace
	}
	if cmd.Flags().Changed("debounce") {
		ms := o.debounce.Milliseconds()
		opts.DebounceMs = &ms
	}
	return opts, nil
}

func (c *CliClient) run(cmd *cobra.Command, args []string, o *runOpts) error {
	opts, err := o.options(cmd)
	if err != nil {
		return soloerrors.NewError(err, soloerrors.UnsupportedOptionExitCode)
	}
	params := o.params
	params.Prompt = strings.Join(args, " ")

	conn, err := c.comms.Dial()
	if err != nil {
		return soloerrors.NewError(err, soloerrors.ConnectionFailureExitCode)
	}

	errOut := cmd.ErrOrStderr()
	sink := func(p runner.Progress) {
		if o.quiet {
			return
		}
		fmt.Fprintln(errOut, formatProgress(p))
	}

	ctx := context.Background()
	job, err := conn.Submit(ctx, params, sink, opts)
	if err != nil {
		return soloerrors.NewError(err, soloerrors.ConnectionFailureExitCode)
	}
	log.Debugf("submitted %s", job.ID())

	r, err := job.Wait(ctx)
	if err != nil {
		return soloerrors.NewError(err, soloerrors.ConnectionFailureExitCode)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s", r.JobID, r.Outcome)
	if r.Outcome == runner.OK {
		fmt.Fprintf(cmd.OutOrStdout(), " %d bytes in %s", len(r.Payload), r.Elapsed)
	}
	fmt.Fprintln(cmd.OutOrStdout())

	if r.Outcome != runner.OK {
		msg := r.Outcome.String()
		if r.Error != "" {
			msg = fmt.Sprintf("%s: %s", r.Outcome, r.Error)
		}
		return soloerrors.NewError(errors.New(msg), soloerrors.ExitCodeFor(r.Outcome))
	}
	if o.out != "" {
		if err := os.WriteFile(o.out, r.Payload, 0644); err != nil {
			return errors.Wrapf(err, "writing %s", o.out)
		}
	}
	return nil
}

func formatProgress(p runner.Progress) string {
	var b strings.Builder
	if p.Percent != nil {
		fmt.Fprintf(&b, "%3d%%", *p.Percent)
	} else {
		b.WriteString("   -")
	}
	if p.Phase != "" {
		fmt.Fprintf(&b, " %s", p.Phase)
	}
	if p.TotalSteps > 0 {
		fmt.Fprintf(&b, " %d/%d", p.Step, p.TotalSteps)
	}
	if p.Message != "" {
		fmt.Fprintf(&b, " %s", p.Message)
	}
	return b.String()
}
