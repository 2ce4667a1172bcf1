// Command wifisim-device runs a simulated station.
//
// The device connects to the access point hub, performs the WPA-style
// handshake and then sends AEAD-sealed uplink frames on a timer.
//
// Usage:
//
//	wifisim-device [flags]
//
// Flags:
//
//	-config string        Configuration file path (YAML)
//	-device-id string     Device identity (default "Device1")
//	-bssid string         Access point to join (default "AP1")
//	-psk string           Pre-shared key
//	-ap-url string        Hub address (default "localhost:3000")
//	-discovery            Find the hub over mDNS instead of -ap-url
//	-interval duration    Uplink interval (default 2s)
//	-demo                 Seal frames with random per-frame keys (INSECURE)
//	-protocol-log string  Write protocol events to a .wlog file
//	-interactive          Enable interactive command mode
//
// Examples:
//
//	# Join the local access point
//	wifisim-device -device-id Device2
//
//	# Classroom demo mode, found via mDNS
//	wifisim-device -demo -discovery -interactive
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/wifisim/wifisim-go/cmd/wifisim-device/interactive"
	"github.com/wifisim/wifisim-go/internal/app"
	"github.com/wifisim/wifisim-go/pkg/config"
	"github.com/wifisim/wifisim-go/pkg/discovery"
	wlog "github.com/wifisim/wifisim-go/pkg/log"
	"github.com/wifisim/wifisim-go/pkg/service"
	"github.com/wifisim/wifisim-go/pkg/transport"
	"github.com/wifisim/wifisim-go/pkg/wpacrypto"
)

var (
	flags          = config.RegisterFlags(flag.CommandLine)
	interactiveArg = flag.Bool("interactive", false, "Enable interactive command mode")
)

func main() {
	flag.Parse()

	cfg, err := flags.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	// Validated above.
	suite, _ := wpacrypto.ParseSuite(cfg.Suite)

	log.SetFlags(log.Ltime | log.Lmicroseconds)
	logger := app.NewLogger(cfg.LogLevel, os.Stderr)

	log.Println("wifisim device")
	log.Println("==============")
	log.Printf("Device: %s", cfg.DeviceID)
	log.Printf("AP:     %s", cfg.APBSSID)
	log.Printf("Suite:  %s", suite)
	if cfg.DemoMode {
		log.Println("DEMO MODE: frames carry their own key (INSECURE, teaching only)")
	}

	protoLog, err := app.OpenProtocolLog(cfg.ProtocolLog, logger)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer func() { _ = protoLog.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	addr, err := hubAddress(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to locate access point: %v", err)
	}

	client, err := transport.Dial(ctx, addr, transport.ClientConfig{
		Logger: protoLog,
		Role:   wlog.RoleDevice,
		OnError: func(err error) {
			logger.Warn("hub read", "error", err)
		},
	})
	if err != nil {
		log.Fatalf("Failed to connect to %s: %v", addr, err)
	}
	defer func() { _ = client.Close() }()
	log.Printf("Connected to hub %s", addr)

	devConfig := service.DefaultDeviceConfig(cfg.DeviceID)
	devConfig.APBSSID = cfg.APBSSID
	devConfig.PSK = cfg.PSK
	devConfig.Suite = suite
	devConfig.DemoMode = cfg.DemoMode
	devConfig.UplinkInterval = cfg.Interval()
	devConfig.Logger = logger
	devConfig.ProtocolLogger = protoLog

	dev, err := service.NewDeviceService(client, devConfig)
	if err != nil {
		log.Fatalf("Failed to create device: %v", err)
	}
	dev.OnEvent(handleEvent)

	if err := dev.Start(ctx); err != nil {
		log.Fatalf("Failed to start device: %v", err)
	}
	log.Printf("Service started (state: %s)", dev.State())

	if *interactiveArg {
		shell, err := interactive.New(dev)
		if err != nil {
			log.Fatalf("Failed to create interactive shell: %v", err)
		}
		log.SetOutput(shell.Stdout())
		go shell.Run(ctx, cancel)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Printf("Received signal: %v", sig)
	case <-client.Done():
		log.Println("Hub connection lost")
	case <-ctx.Done():
	}

	log.Println("Shutting down...")

	if err := dev.Stop(); err != nil {
		log.Printf("Error stopping device: %v", err)
	}
	cancel()

	if n := protoLog.Written(); n > 0 {
		log.Printf("Wrote %d protocol events to %s", n, cfg.ProtocolLog)
	}
	log.Println("Goodbye!")
}

// hubAddress resolves the hub from mDNS when discovery is enabled,
// falling back to the configured URL.
func hubAddress(ctx context.Context, cfg *config.Config) (string, error) {
	if cfg.Discovery {
		browser := discovery.NewMDNSBrowser(discovery.DefaultBrowserConfig())
		svc, err := browser.FindByBSSID(ctx, cfg.APBSSID)
		if err == nil {
			log.Printf("Discovered %s at %s", svc.InstanceName, svc.HubAddress())
			return svc.HubAddress(), nil
		}
		if cfg.APURL == "" {
			return "", err
		}
		log.Printf("Discovery failed (%v), using %s", err, cfg.APURL)
	}
	return cfg.HubAddress()
}

func handleEvent(event service.Event) {
	switch event.Type {
	case service.EventHandshakeStarted:
		log.Println("[EVENT] Handshake started")
	case service.EventSessionActive:
		log.Println("[EVENT] Session active")
	case service.EventHandshakeFailed:
		log.Printf("[EVENT] Handshake failed: %s", event.Reason)
	case service.EventUplinkSent:
		log.Printf("[UPLINK] Sent seq=%d", event.Seq)
	case service.EventAckError:
		log.Printf("[UPLINK] AP rejected seq=%d: %v", event.Seq, event.Error)
	}
}
