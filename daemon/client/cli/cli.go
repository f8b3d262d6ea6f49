package cli

import (
	"io"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/twitter/solo/common"
	"github.com/twitter/solo/daemon/client/conn"
)

// HTTPClient fetches from the daemon's admin endpoints. *pester.Client satisfies it.
type HTTPClient interface {
	Get(url string) (*http.Response, error)
}

type CliClient struct {
	rootCmd *cobra.Command
	comms   conn.Dialer
	http    HTTPClient

	httpAddr string
}

func (c *CliClient) Exec() error {
	return c.rootCmd.Execute()
}

// ExecArgs runs args instead of os.Args, writing to out and errOut.
func (c *CliClient) ExecArgs(out, errOut io.Writer, args ...string) error {
	c.rootCmd.SetArgs(args)
	c.rootCmd.SetOut(out)
	c.rootCmd.SetErr(errOut)
	return c.rootCmd.Execute()
}

func (c *CliClient) Close() error {
	return c.comms.Close()
}

func NewCliClient(dialer conn.Dialer, httpClient HTTPClient) (*CliClient, error) {
	r := &CliClient{comms: dialer, http: httpClient}

	rootCmd := &cobra.Command{
		Use:                "soloctl",
		Short:              "Soloctl is a command-line client to the solo daemon",
		Run:                func(*cobra.Command, []string) {},
		PersistentPostRunE: func(*cobra.Command, []string) error { return r.Close() },
		SilenceUsage:       true,
		SilenceErrors:      true,
	}
	rootCmd.PersistentFlags().StringVar(&r.httpAddr, "http", common.DefaultHTTPAddr, "address of the daemon's admin endpoints")

	r.rootCmd = rootCmd

	rootCmd.AddCommand(makeRunCmd(r))
	rootCmd.AddCommand(makeCancelCmd(r))
	rootCmd.AddCommand(makeStateCmd(r))
	rootCmd.AddCommand(makeHistoryCmd(r))
	return r, nil
}
