package main

import (
	"fmt"
	"net"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/openclipboard/meshd/internal/control"
	"github.com/openclipboard/meshd/internal/ipc"
)

func newHistoryCmd() *cobra.Command {
	v := viper.New()
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent clipboard entries from a running 'meshd serve'",
		Long: `Queries the control socket of a locally running "meshd serve" for
its recent clipboard history. Requires a daemon to be running on
this host; meshd itself never persists history to disk.`,
		Args: cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			return v.BindPFlags(cmd.Flags())
		},
		RunE: func(_ *cobra.Command, _ []string) error { return runHistory(v) },
	}
	cmd.Flags().Int("limit", 20, "maximum number of entries to show")
	cmd.Flags().String("peer", "", "show only entries from this source peer (or \"local\")")
	return cmd
}

func runHistory(v *viper.Viper) error {
	if !ipc.IsRunning() {
		return fmt.Errorf("no meshd daemon is listening on %s — is 'meshd serve' running?", ipc.SocketPath())
	}

	resp, err := control.Query(func() (net.Conn, error) { return ipc.Dial() }, control.Request{
		Op:    "history",
		Peer:  v.GetString("peer"),
		Limit: v.GetInt("limit"),
	})
	if err != nil {
		return err
	}

	if len(resp.Entries) == 0 {
		fmt.Println("No clipboard history yet.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 1, 0, 2, ' ', 0)
	fmt.Fprintln(w, "WHEN\tSOURCE\tCONTENT")
	for _, e := range resp.Entries {
		when := time.UnixMilli(e.TimestampMs).Format("15:04:05")
		content := e.Content
		if len(content) > 60 {
			content = content[:57] + "..."
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", when, e.SourcePeer, content)
	}
	return w.Flush()
}
