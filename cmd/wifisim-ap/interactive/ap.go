// Package interactive provides the interactive command-line interface
// for the access point.
package interactive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/wifisim/wifisim-go/pkg/handshake"
	"github.com/wifisim/wifisim-go/pkg/keystore"
	"github.com/wifisim/wifisim-go/pkg/service"
	"github.com/wifisim/wifisim-go/pkg/sessionstore"
	"github.com/wifisim/wifisim-go/pkg/topology"
)

// DefaultKeyBits is the RSA size used by keygen.
const DefaultKeyBits = 2048

// AccessPoint is the part of service.APService the shell drives.
type AccessPoint interface {
	BSSID() string
	State() service.ServiceState
	Handshakes() []handshake.Status
	Sessions(ctx context.Context) ([]*sessionstore.Record, error)
	Stats() service.APStats
	SendDemo(ctx context.Context, deviceID, text, targetID string) error
	Deauthenticate(ctx context.Context, deviceID string) error
}

// AP handles interactive mode for wifisim-ap.
type AP struct {
	ap       AccessPoint
	topology *topology.Registry
	keys     *keystore.Store
	rl       *readline.Instance
	out      io.Writer
}

// New creates a new interactive access point handler.
func New(ap AccessPoint, registry *topology.Registry, keys *keystore.Store) (*AP, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "ap> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}

	a := newAP(ap, registry, keys, rl.Stdout())
	a.rl = rl
	return a, nil
}

func newAP(ap AccessPoint, registry *topology.Registry, keys *keystore.Store, out io.Writer) *AP {
	return &AP{ap: ap, topology: registry, keys: keys, out: out}
}

// Stdout returns a writer that properly coordinates with the readline input.
func (a *AP) Stdout() io.Writer {
	return a.out
}

// Run starts the interactive command loop.
func (a *AP) Run(ctx context.Context, cancel context.CancelFunc) {
	defer a.rl.Close()

	a.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := a.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(a.out, "Exiting...")
			cancel()
			return
		}

		if !a.exec(ctx, line) {
			fmt.Fprintln(a.out, "Exiting...")
			cancel()
			return
		}
	}
}

// exec runs one command line. It returns false when the shell should exit.
func (a *AP) exec(ctx context.Context, line string) bool {
	parts := strings.Fields(strings.TrimSpace(line))
	if len(parts) == 0 {
		return true
	}
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case "help", "?":
		a.printHelp()
	case "topology", "t":
		a.cmdTopology()
	case "add":
		a.cmdAdd(args)
	case "sessions", "s":
		a.cmdSessions(ctx)
	case "send":
		a.cmdSend(ctx, args)
	case "kick":
		a.cmdKick(ctx, args)
	case "keygen":
		a.cmdKeygen(args)
	case "keys":
		a.cmdKeys(args)
	case "stats":
		a.cmdStats()
	case "quit", "exit", "q":
		return false
	default:
		fmt.Fprintf(a.out, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}
	return true
}

func (a *AP) printHelp() {
	fmt.Fprintln(a.out, `
Access Point Commands:
  Topology:
    topology                      - Show access points and devices
    add <device-id>               - Add a device to the topology

  Sessions:
    sessions                      - Show handshake states and the session ledger
    send <device-id> [--to <id>] [text]
                                  - Ask a device to send one uplink frame
    kick <device-id>              - Destroy a device session
    stats                         - Show uplink counters

  Keys:
    keygen <id> [bits]            - Generate an RSA key pair and save it
    keys <id>                     - Show a saved key pair

  General:
    help                          - Show this help
    quit                          - Exit access point`)
}

func (a *AP) cmdTopology() {
	t := a.topology.Snapshot()
	fmt.Fprintf(a.out, "\nAccess points (%d):\n", len(t.APs))
	for _, ap := range t.APs {
		rogue := ""
		if ap.Rogue {
			rogue = " [ROGUE]"
		}
		fmt.Fprintf(a.out, "  %s%s\n", ap.ID, rogue)
	}
	fmt.Fprintf(a.out, "Devices (%d):\n", len(t.Devices))
	for _, d := range t.Devices {
		fmt.Fprintf(a.out, "  %s\n", d.ID)
	}
}

func (a *AP) cmdAdd(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(a.out, "Usage: add <device-id>")
		return
	}
	added, err := a.topology.AddDevice(args[0])
	if err != nil {
		fmt.Fprintf(a.out, "Error: %v\n", err)
		return
	}
	if !added {
		fmt.Fprintf(a.out, "%s already present\n", args[0])
		return
	}
	fmt.Fprintf(a.out, "Added %s\n", args[0])
}

func (a *AP) cmdSessions(ctx context.Context) {
	fmt.Fprintf(a.out, "\nHandshakes on %s:\n", a.ap.BSSID())
	states := a.ap.Handshakes()
	if len(states) == 0 {
		fmt.Fprintln(a.out, "  (none)")
	}
	for _, st := range states {
		fmt.Fprintf(a.out, "  %-16s %s\n", st.DeviceID, st.State)
	}

	records, err := a.ap.Sessions(ctx)
	if err != nil {
		fmt.Fprintf(a.out, "Session ledger unavailable: %v\n", err)
		return
	}
	fmt.Fprintf(a.out, "Sessions (%d):\n", len(records))
	for _, r := range records {
		fmt.Fprintf(a.out, "  %-16s key=%s suite=%s frames=%d last_seq=%d since=%s\n",
			r.DeviceID, r.KeyFingerprint, r.Suite, r.Frames, r.LastSeq,
			time.UnixMilli(r.EstablishedAt).Format("15:04:05"))
	}
}

func (a *AP) cmdSend(ctx context.Context, args []string) {
	if len(args) < 1 {
		fmt.Fprintln(a.out, "Usage: send <device-id> [--to <id>] [text]")
		return
	}
	deviceID := args[0]
	args = args[1:]

	var target string
	if len(args) >= 2 && args[0] == "--to" {
		target = args[1]
		args = args[2:]
	}
	text := strings.Join(args, " ")

	if err := a.ap.SendDemo(ctx, deviceID, text, target); err != nil {
		fmt.Fprintf(a.out, "Send failed: %v\n", err)
		return
	}
	fmt.Fprintf(a.out, "Asked %s to send\n", deviceID)
}

func (a *AP) cmdKick(ctx context.Context, args []string) {
	if len(args) < 1 {
		fmt.Fprintln(a.out, "Usage: kick <device-id>")
		return
	}
	if err := a.ap.Deauthenticate(ctx, args[0]); err != nil {
		fmt.Fprintf(a.out, "Kick failed: %v\n", err)
		return
	}
	fmt.Fprintf(a.out, "Session for %s destroyed\n", args[0])
}

func (a *AP) cmdKeygen(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(a.out, "Usage: keygen <id> [bits]")
		return
	}
	bits := DefaultKeyBits
	if len(args) > 1 {
		n, err := strconv.Atoi(args[1])
		if err != nil || n < 1024 {
			fmt.Fprintf(a.out, "Invalid key size: %s\n", args[1])
			return
		}
		bits = n
	}

	kp, err := keystore.GenerateRSAKeyHex(args[0], bits)
	if err != nil {
		fmt.Fprintf(a.out, "Key generation failed: %v\n", err)
		return
	}
	path, err := a.keys.Save(kp)
	if err != nil {
		fmt.Fprintf(a.out, "Save failed: %v\n", err)
		return
	}
	fmt.Fprintf(a.out, "Saved %s\n", path)
}

func (a *AP) cmdKeys(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(a.out, "Usage: keys <id>")
		return
	}
	kp, err := a.keys.Load(args[0])
	if errors.Is(err, keystore.ErrNotFound) {
		fmt.Fprintf(a.out, "No keys saved for %s\n", args[0])
		return
	}
	if err != nil {
		fmt.Fprintf(a.out, "Load failed: %v\n", err)
		return
	}
	fmt.Fprintf(a.out, "\nKeys for %s (%s)\n", kp.ID, a.keys.Path(kp.ID))
	fmt.Fprintf(a.out, "  Public:  %d bytes, %s...\n", len(kp.PubHex)/2, shortHex(kp.PubHex))
	fmt.Fprintf(a.out, "  Private: %d bytes\n", len(kp.PrivHex)/2)
}

func shortHex(h string) string {
	if len(h) > 16 {
		return h[:16]
	}
	return h
}

func (a *AP) cmdStats() {
	stats := a.ap.Stats()
	fmt.Fprintf(a.out, "\nAccess Point %s (%s)\n", a.ap.BSSID(), a.ap.State())
	fmt.Fprintf(a.out, "  Frames opened:   %d\n", stats.Received)
	fmt.Fprintf(a.out, "  Frames rejected: %d\n", stats.Rejected)
}
