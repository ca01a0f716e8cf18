package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/openclipboard/meshd/internal/trust"
)

func newTrustCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trust",
		Short: "List or remove pinned peer identities",
	}
	cmd.AddCommand(newTrustListCmd(), newTrustRemoveCmd())
	return cmd
}

func newTrustListCmd() *cobra.Command {
	v := viper.New()
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List every trusted peer",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			return v.BindPFlags(cmd.Flags())
		},
		RunE: func(_ *cobra.Command, _ []string) error { return runTrustList(v) },
	}
	cmd.Flags().String("data-dir", "", "directory containing trust.json (default: ~/.config/meshd)")
	return cmd
}

func newTrustRemoveCmd() *cobra.Command {
	v := viper.New()
	cmd := &cobra.Command{
		Use:   "remove <peer-id>",
		Short: "Remove a trusted peer",
		Args:  cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			return v.BindPFlags(cmd.Flags())
		},
		RunE: func(_ *cobra.Command, args []string) error { return runTrustRemove(v, args[0]) },
	}
	cmd.Flags().String("data-dir", "", "directory containing trust.json (default: ~/.config/meshd)")
	return cmd
}

func openTrustStore(v *viper.Viper) (*trust.Store, error) {
	dir, err := dataDir(v)
	if err != nil {
		return nil, err
	}
	return trust.Open(filepath.Join(dir, "trust.json"))
}

func runTrustList(v *viper.Viper) error {
	store, err := openTrustStore(v)
	if err != nil {
		return err
	}

	records := store.List()
	if len(records) == 0 {
		fmt.Println("No trusted peers. Run \"meshd pair\" to add one.")
		return nil
	}
	sort.Slice(records, func(i, j int) bool { return records[i].DisplayName < records[j].DisplayName })

	w := tabwriter.NewWriter(os.Stdout, 1, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tPEER ID\tPAIRED")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\n", r.DisplayName, r.PeerID, r.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	return w.Flush()
}

func runTrustRemove(v *viper.Viper, peerID string) error {
	store, err := openTrustStore(v)
	if err != nil {
		return err
	}
	removed, err := store.Remove(peerID)
	if err != nil {
		return fmt.Errorf("remove %s: %w", peerID, err)
	}
	if !removed {
		return fmt.Errorf("no trusted peer with id %s", peerID)
	}
	fmt.Printf("Removed %s.\n", peerID)
	return nil
}
