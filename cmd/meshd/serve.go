package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/openclipboard/meshd/internal/clip"
	"github.com/openclipboard/meshd/internal/control"
	"github.com/openclipboard/meshd/internal/discovery"
	"github.com/openclipboard/meshd/internal/echo"
	"github.com/openclipboard/meshd/internal/history"
	"github.com/openclipboard/meshd/internal/identity"
	"github.com/openclipboard/meshd/internal/ipc"
	"github.com/openclipboard/meshd/internal/mesh"
	"github.com/openclipboard/meshd/internal/nettransport"
	"github.com/openclipboard/meshd/internal/protocol"
	"github.com/openclipboard/meshd/internal/registry"
	"github.com/openclipboard/meshd/internal/replay"
	"github.com/openclipboard/meshd/internal/trust"
)

func newServeCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the mesh orchestrator (+ local clipboard integration)",
		Long: `Starts meshd: opens a listener for inbound connections, dials every
trusted peer with a known address and a lower sort priority, and
relays local clipboard changes to (and remote changes from) every
peer currently online.

Peer addresses are not discovered automatically (no mDNS in this
build) — list them under [peer_addresses] in the config file, keyed
by peer-id, or use "meshd trust" to see which peer-ids need one.

Flags, environment variables, and config-file keys
  Flag                  Env var                  Config key
  ─────────────────────────────────────────────────────────────
  --addr                MESHD_ADDR               addr
  --data-dir             MESHD_DATA_DIR           data-dir
  --history-size         MESHD_HISTORY_SIZE       history-size
  --replay-window        MESHD_REPLAY_WINDOW      replay-window
  --harden-transport     MESHD_HARDEN_TRANSPORT   harden-transport
  --log-level            MESHD_LOG_LEVEL          log-level    (debug|info|warn|error)
  --log-format           MESHD_LOG_FORMAT         log-format   (auto|text|json)
  --config               (flag only)

Config file search order (first found wins)
  /etc/meshd/meshd.toml
  $HOME/.config/meshd/meshd.toml
A path supplied via --config is read instead, and the search is skipped.

Precedence: defaults → config file → MESHD_* env vars → CLI flags`,
		Args:    cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE:    func(_ *cobra.Command, _ []string) error { return runServe(v) },
	}

	f := cmd.Flags()
	f.String("addr", "0.0.0.0:7420", "TCP listen address for mesh connections")
	f.String("data-dir", "", "directory for identity.json and trust.json (default: ~/.config/meshd)")
	f.Int("history-size", 200, "number of recent clipboard entries to retain")
	f.Int("replay-window", 256, "number of recently-seen nonces to retain per peer")
	f.Bool("harden-transport", false, "derive an additional secretbox layer from the handshake nonce")
	addLoggingFlags(cmd)
	addConfigFlag(cmd)

	return cmd
}

func runServe(v *viper.Viper) error {
	setupLogging(v)

	dir, err := dataDir(v)
	if err != nil {
		return err
	}
	id, err := identity.Load(filepath.Join(dir, "identity.json"))
	if err != nil {
		return fmt.Errorf("load identity: %w", err)
	}

	store, err := trust.Open(filepath.Join(dir, "trust.json"))
	if err != nil {
		return fmt.Errorf("open trust store: %w", err)
	}

	addr := v.GetString("addr")
	ln, err := nettransport.Listen(addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}

	disc := discovery.NewStatic(store, nil)
	for peerID, peerAddr := range v.GetStringMapString("peer_addresses") {
		disc.SetAddress(peerID, peerAddr)
	}

	reg := registry.NewFromTrustStore(store)
	hist := history.New(v.GetInt("history-size"))
	sup := echo.New(32)

	slog.Info("meshd starting",
		"version", Version,
		"peer_id", id.PeerID(),
		"addr", ln.Addr(),
		"trusted_peers", len(store.List()),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	orch := mesh.New(mesh.Config{
		Identity:        id,
		Listener:        ln,
		Transport:       nettransport.Transport{},
		Discovery:       disc,
		TrustStore:      store,
		Replay:          replay.New(v.GetInt("replay-window")),
		Clipboard:       clip.New(),
		Registry:        reg,
		History:         hist,
		Echo:            sup,
		HardenTransport: v.GetBool("harden-transport"),
		MeshMode:        true,
		Callbacks: mesh.Callbacks{
			OnPeerConnected:    func(peerID string) { slog.Info("peer connected", "peer", peerID) },
			OnPeerDisconnected: func(peerID string) { slog.Info("peer disconnected", "peer", peerID) },
			OnClipboardText: func(peerID, text string) {
				slog.Info("clipboard updated from peer", "peer", peerID, "bytes", len(text))
			},
			OnMessage: func(peerID string, msg protocol.Variant) {
				slog.Debug("message received", "peer", peerID, "type", msg.MsgType())
			},
			OnError: func(err error) { slog.Warn("mesh error", "err", err) },
		},
	})

	if ctrlLn, err := ipc.Listen(); err != nil {
		slog.Warn("control socket unavailable", "err", err)
	} else {
		slog.Info("control socket listening", "path", ipc.SocketPath())
		srv := &control.Server{History: hist, Registry: reg}
		go func() {
			if err := srv.Serve(ctrlLn); err != nil && ctx.Err() == nil {
				slog.Warn("control socket stopped", "err", err)
			}
		}()
		go func() { <-ctx.Done(); _ = ctrlLn.Close() }()
	}

	orch.Run(ctx)
	time.Sleep(50 * time.Millisecond) // let in-flight disconnect callbacks log before exit
	return nil
}
