package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"text/tabwriter"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	soloerrors "github.com/twitter/solo/common/errors"
	"github.com/twitter/solo/history"
)

func makeCancelCmd(c *CliClient) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel",
		Short: "cancel the running job, if any",
		Args:  cobra.NoArgs,
		RunE:  c.cancel,
	}
}

func (c *CliClient) cancel(cmd *cobra.Command, args []string) error {
	conn, err := c.comms.Dial()
	if err != nil {
		return soloerrors.NewError(err, soloerrors.ConnectionFailureExitCode)
	}
	if err := conn.Cancel(context.Background()); err != nil {
		return soloerrors.NewError(err, soloerrors.ConnectionFailureExitCode)
	}
	return nil
}

func makeStateCmd(c *CliClient) *cobra.Command {
	return &cobra.Command{
		Use:   "state",
		Short: "print the scheduler state",
		Args:  cobra.NoArgs,
		RunE:  c.state,
	}
}

func (c *CliClient) state(cmd *cobra.Command, args []string) error {
	conn, err := c.comms.Dial()
	if err != nil {
		return soloerrors.NewError(err, soloerrors.ConnectionFailureExitCode)
	}
	st, err := conn.State(context.Background())
	if err != nil {
		return soloerrors.NewError(err, soloerrors.ConnectionFailureExitCode)
	}
	fmt.Fprintln(cmd.OutOrStdout(), st)
	return nil
}

func makeHistoryCmd(c *CliClient) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "list recently settled jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.history(cmd, limit)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of jobs to list, 0 for all")
	return cmd
}

func (c *CliClient) history(cmd *cobra.Command, limit int) error {
	url := fmt.Sprintf("http://%s/admin/history.json?limit=%d", c.httpAddr, limit)
	resp, err := c.http.Get(url)
	if err != nil {
		return soloerrors.NewError(errors.Wrapf(err, "fetching %s", url), soloerrors.ConnectionFailureExitCode)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return soloerrors.NewError(errors.Errorf("fetching %s: %s", url, resp.Status), soloerrors.ConnectionFailureExitCode)
	}

	var records []history.Record
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return errors.Wrap(err, "decoding history")
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "JOB\tOUTCOME\tSETTLED\tELAPSED\tPROMPT")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			r.JobID, r.Outcome, r.Settled.Format(time.RFC3339), r.Elapsed.Round(time.Millisecond), r.Prompt)
	}
	return w.Flush()
}
