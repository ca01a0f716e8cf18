// meshd: peer-to-peer clipboard and small-file sync over a trusted mesh.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/openclipboard/meshd/internal/logging"
)

// Version is set at build time via -ldflags "-X main.Version=x.y.z".
var Version = "dev"

func main() {
	root := &cobra.Command{
		Use:   "meshd",
		Short: "Peer-to-peer clipboard and file sync over a trusted mesh",
		Long: `meshd synchronizes the system clipboard (and small files) across a
set of devices that have paired with each other once, over an
authenticated, encrypted peer-to-peer mesh — no relay server, no
account, no cloud.

Run "meshd pair" once per pair of devices to exchange long-term
identities (QR code + short confirmation code). After that, run
"meshd serve" on each device: every trusted device currently online
receives your clipboard changes, and you receive theirs.`,
		SilenceUsage: true,
	}

	root.AddCommand(
		newServeCmd(),
		newPairCmd(),
		newTrustCmd(),
		newHistoryCmd(),
		newVersionCmd(),
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("meshd %s\n", Version)
		},
	}
}

// resolveLogging sets up the global slog logger after flags are parsed.
func resolveLogging(interactive bool, formatStr, levelStr string) {
	format := logging.ParseFormat(formatStr)
	level := logging.ParseLevel(levelStr)
	if levelStr == "" {
		if interactive {
			level = logging.ParseLevel("debug")
		} else {
			level = logging.ParseLevel("info")
		}
	}
	logging.Setup(format, level)
}
