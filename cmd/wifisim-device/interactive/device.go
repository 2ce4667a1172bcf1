// Package interactive provides the interactive command-line interface
// for the device.
package interactive

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"

	"github.com/wifisim/wifisim-go/pkg/handshake"
	"github.com/wifisim/wifisim-go/pkg/service"
)

// Station is the part of service.DeviceService the shell drives.
type Station interface {
	DeviceID() string
	State() service.ServiceState
	HandshakeState() handshake.State
	Active() bool
	KeyFingerprint() string
	Seq() uint64
	Stats() service.DeviceStats
	Send(ctx context.Context, text, targetID string) error
	Restart(ctx context.Context) error
}

// Device handles interactive mode for wifisim-device.
type Device struct {
	dev Station
	rl  *readline.Instance
	out io.Writer
}

// New creates a new interactive device handler.
func New(dev Station) (*Device, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "device> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	return &Device{dev: dev, rl: rl, out: rl.Stdout()}, nil
}

// Stdout returns a writer that properly coordinates with the readline input.
func (d *Device) Stdout() io.Writer {
	return d.out
}

// Run starts the interactive command loop.
func (d *Device) Run(ctx context.Context, cancel context.CancelFunc) {
	defer d.rl.Close()

	d.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := d.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(d.out, "Exiting...")
			cancel()
			return
		}

		if !d.exec(ctx, line) {
			fmt.Fprintln(d.out, "Exiting...")
			cancel()
			return
		}
	}
}

func (d *Device) exec(ctx context.Context, line string) bool {
	parts := strings.Fields(strings.TrimSpace(line))
	if len(parts) == 0 {
		return true
	}

	switch cmd := strings.ToLower(parts[0]); cmd {
	case "help", "?":
		d.printHelp()
	case "send":
		d.cmdSend(ctx, parts[1:])
	case "restart":
		d.cmdRestart(ctx)
	case "status":
		d.cmdStatus()
	case "quit", "exit", "q":
		return false
	default:
		fmt.Fprintf(d.out, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}
	return true
}

func (d *Device) printHelp() {
	fmt.Fprintln(d.out, `
Device Commands:
    send [--to <id>] <text>  - Send one uplink frame
    restart                  - Run a fresh handshake (new session key)
    status                   - Show session state
    help                     - Show this help
    quit                     - Exit device`)
}

func (d *Device) cmdSend(ctx context.Context, args []string) {
	var target string
	if len(args) >= 2 && args[0] == "--to" {
		target = args[1]
		args = args[2:]
	}
	if len(args) == 0 {
		fmt.Fprintln(d.out, "Usage: send [--to <id>] <text>")
		return
	}

	if err := d.dev.Send(ctx, strings.Join(args, " "), target); err != nil {
		fmt.Fprintf(d.out, "Send failed: %v\n", err)
		return
	}
	fmt.Fprintf(d.out, "Sent seq=%d\n", d.dev.Seq())
}

func (d *Device) cmdRestart(ctx context.Context) {
	if err := d.dev.Restart(ctx); err != nil {
		fmt.Fprintf(d.out, "Restart failed: %v\n", err)
		return
	}
	fmt.Fprintln(d.out, "Handshake restarted")
}

func (d *Device) cmdStatus() {
	stats := d.dev.Stats()
	fmt.Fprintln(d.out, "\nDevice Status")
	fmt.Fprintln(d.out, "-------------------------------------------")
	fmt.Fprintf(d.out, "  Device ID:      %s\n", d.dev.DeviceID())
	fmt.Fprintf(d.out, "  Service State:  %s\n", d.dev.State())
	fmt.Fprintf(d.out, "  Handshake:      %s\n", d.dev.HandshakeState())
	if d.dev.Active() {
		fmt.Fprintf(d.out, "  Session Key:    %s\n", d.dev.KeyFingerprint())
	}
	fmt.Fprintf(d.out, "  Last Seq:       %d\n", d.dev.Seq())
	fmt.Fprintf(d.out, "  Frames Sent:    %d (rejected %d)\n", stats.Sent, stats.Nacked)
}
