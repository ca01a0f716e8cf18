package main

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/skip2/go-qrcode"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/openclipboard/meshd/internal/identity"
	"github.com/openclipboard/meshd/internal/pairing"
	"github.com/openclipboard/meshd/internal/trust"
)

func newPairCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pair",
		Short: "Exchange long-term identities with another device",
		Long: `Pairing is the one-time, human-mediated step that lets two devices
trust each other's long-term identity before they will accept a
mesh connection from one another.

Run "meshd pair init" on the first device; it prints a QR code (and
the underlying payload string, for when a camera isn't handy). Scan
or paste that payload into "meshd pair join <payload>" on the second
device. Both devices then show the same 6-digit confirmation code —
read it aloud and confirm it matches before accepting.`,
	}
	cmd.AddCommand(newPairInitCmd(), newPairJoinCmd())
	return cmd
}

func pairFlags(cmd *cobra.Command) {
	cmd.Flags().String("data-dir", "", "directory for identity.json and trust.json (default: ~/.config/meshd)")
	cmd.Flags().String("advertise", "", "LAN address advertised in the QR payload; the port is carried separately via --port (default: first non-loopback IPv4 address)")
	cmd.Flags().Int("port", 7420, "mesh listen port advertised in the QR payload")
	cmd.Flags().String("name", "", "display name advertised to the other device (default: hostname)")
}

func newPairInitCmd() *cobra.Command {
	v := viper.New()
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Start pairing: print this device's QR payload",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			return v.BindPFlags(cmd.Flags())
		},
		RunE: func(_ *cobra.Command, _ []string) error { return runPairInit(v) },
	}
	pairFlags(cmd)
	return cmd
}

func newPairJoinCmd() *cobra.Command {
	v := viper.New()
	cmd := &cobra.Command{
		Use:   "join <payload>",
		Short: "Complete pairing with the payload shown by 'meshd pair init'",
		Args:  cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			return v.BindPFlags(cmd.Flags())
		},
		RunE: func(_ *cobra.Command, args []string) error { return runPairJoin(v, args[0]) },
	}
	pairFlags(cmd)
	return cmd
}

func runPairInit(v *viper.Viper) error {
	dir, id, store, err := openPairingState(v)
	if err != nil {
		return err
	}

	nonce, err := pairing.NewNonce()
	if err != nil {
		return err
	}
	self, err := buildSelfPayload(v, id, nonce)
	if err != nil {
		return err
	}
	payload, err := pairing.Encode(self)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	if err := printPayloadQR(payload); err != nil {
		return err
	}
	fmt.Printf("\nIf scanning fails, paste this into the other device:\n\n  meshd pair join %s\n\n", payload)
	fmt.Print("Paste the other device's payload here, then press Enter:\n> ")

	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("read peer payload: %w", err)
	}
	peer, err := pairing.Decode(strings.TrimSpace(line))
	if err != nil {
		return fmt.Errorf("decode peer payload: %w", err)
	}

	initiatorRecord, responderRecord, err := pairing.Finalize(self, peer)
	if err != nil {
		return fmt.Errorf("finalize pairing: %w", err)
	}
	_ = initiatorRecord // this device is the initiator; its own record isn't stored locally

	code := pairing.DeriveCode(nonce, self.PeerID, peer.PeerID)
	if !confirmCode(code) {
		return fmt.Errorf("pairing aborted: confirmation code mismatch")
	}

	if err := store.Save(responderRecord); err != nil {
		return fmt.Errorf("save trust record: %w", err)
	}
	fmt.Printf("Paired with %s (%s). Trust stored in %s.\n", responderRecord.DisplayName, responderRecord.PeerID, filepath.Join(dir, "trust.json"))
	return nil
}

func runPairJoin(v *viper.Viper, initPayload string) error {
	dir, id, store, err := openPairingState(v)
	if err != nil {
		return err
	}

	init, err := pairing.Decode(initPayload)
	if err != nil {
		return fmt.Errorf("decode initiator payload: %w", err)
	}

	self, err := buildSelfPayload(v, id, init.Nonce)
	if err != nil {
		return err
	}
	payload, err := pairing.Encode(self)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	if err := printPayloadQR(payload); err != nil {
		return err
	}
	fmt.Printf("\nIf scanning fails, paste this back into the first device:\n\n  %s\n\n", payload)

	initiatorRecord, _, err := pairing.Finalize(init, self)
	if err != nil {
		return fmt.Errorf("finalize pairing: %w", err)
	}

	code := pairing.DeriveCode(init.Nonce, init.PeerID, self.PeerID)
	if !confirmCode(code) {
		return fmt.Errorf("pairing aborted: confirmation code mismatch")
	}

	if err := store.Save(initiatorRecord); err != nil {
		return fmt.Errorf("save trust record: %w", err)
	}
	fmt.Printf("Paired with %s (%s). Trust stored in %s.\n", initiatorRecord.DisplayName, initiatorRecord.PeerID, filepath.Join(dir, "trust.json"))
	return nil
}

func openPairingState(v *viper.Viper) (dir string, id *identity.Identity, store *trust.Store, err error) {
	dir, err = dataDir(v)
	if err != nil {
		return "", nil, nil, err
	}
	id, err = identity.Load(filepath.Join(dir, "identity.json"))
	if err != nil {
		return "", nil, nil, fmt.Errorf("load identity: %w", err)
	}
	store, err = trust.Open(filepath.Join(dir, "trust.json"))
	if err != nil {
		return "", nil, nil, fmt.Errorf("open trust store: %w", err)
	}
	return dir, id, store, nil
}

func buildSelfPayload(v *viper.Viper, id *identity.Identity, nonce []byte) (pairing.Payload, error) {
	name := v.GetString("name")
	if name == "" {
		name, _ = os.Hostname()
	}
	advertise := v.GetString("advertise")
	if advertise == "" {
		addr, err := firstNonLoopbackAddr()
		if err != nil {
			return pairing.Payload{}, fmt.Errorf("determine advertise address: %w", err)
		}
		advertise = addr
	}

	return pairing.Payload{
		Version:           1,
		PeerID:            id.PeerID(),
		DisplayName:       name,
		IdentityPublicKey: id.PublicKey(),
		LANPort:           uint16(v.GetInt("port")),
		Nonce:             nonce,
		LANAddrs:          []string{advertise},
	}, nil
}

func firstNonLoopbackAddr() (string, error) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "", err
	}
	for _, a := range addrs {
		ipNet, ok := a.(*net.IPNet)
		if !ok || ipNet.IP.IsLoopback() || ipNet.IP.To4() == nil {
			continue
		}
		return ipNet.IP.String(), nil
	}
	return "", fmt.Errorf("no non-loopback IPv4 address found")
}

func printPayloadQR(payload string) error {
	qr, err := qrcode.New(payload, qrcode.Medium)
	if err != nil {
		return fmt.Errorf("render QR: %w", err)
	}
	fmt.Println(qr.ToString(false))
	return nil
}

func confirmCode(code string) bool {
	fmt.Printf("Confirmation code: %s\nDoes the other device show the same code? [y/N] ", code)
	reader := bufio.NewReader(os.Stdin)
	line, _ := reader.ReadString('\n')
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}
