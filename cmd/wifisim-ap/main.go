// Command wifisim-ap runs the simulated access point.
//
// The access point hosts the TCP hub devices connect to, answers WPA-style
// handshakes, decrypts uplink frames and serves an HTTP admin API.
//
// Usage:
//
//	wifisim-ap [flags]
//
// Flags:
//
//	-config string        Configuration file path (YAML)
//	-psk string           Pre-shared key
//	-bssid string         Access point identity (default "AP1")
//	-listen string        Hub listen address (default ":3000")
//	-port int             Admin HTTP port, 0 disables (default 3001)
//	-allow-demo           Accept INSECURE demo frames
//	-topology string      Topology seed file (YAML)
//	-redis string         Redis address for the session ledger
//	-session-db string    SQLite file for the session ledger
//	-discovery            Advertise the access point over mDNS
//	-protocol-log string  Write protocol events to a .wlog file
//	-interactive          Enable interactive command mode
//
// Every flag can also be set with a WIFISIM_ environment variable, e.g.
// WIFISIM_PSK or PORT.
//
// Examples:
//
//	# Start with defaults
//	wifisim-ap
//
//	# Persist sessions in Redis and capture protocol events
//	wifisim-ap -redis localhost:6379 -protocol-log ap.wlog -interactive
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/wifisim/wifisim-go/cmd/wifisim-ap/interactive"
	"github.com/wifisim/wifisim-go/internal/app"
	"github.com/wifisim/wifisim-go/pkg/admin"
	"github.com/wifisim/wifisim-go/pkg/config"
	"github.com/wifisim/wifisim-go/pkg/discovery"
	"github.com/wifisim/wifisim-go/pkg/keystore"
	"github.com/wifisim/wifisim-go/pkg/service"
	"github.com/wifisim/wifisim-go/pkg/topology"
	"github.com/wifisim/wifisim-go/pkg/transport"
	"github.com/wifisim/wifisim-go/pkg/version"
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

	log.Println("wifisim access point")
	log.Println("====================")
	log.Printf("BSSID:  %s", cfg.APBSSID)
	log.Printf("Suite:  %s", suite)
	log.Printf("Hub:    %s", cfg.ListenAddr)
	if cfg.AllowDemo {
		log.Println("Demo frames ACCEPTED (INSECURE teaching mode)")
	}

	protoLog, err := app.OpenProtocolLog(cfg.ProtocolLog, logger)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer func() { _ = protoLog.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	topo, err := topology.LoadOrDefault(cfg.TopologyFile)
	if err != nil {
		log.Fatalf("Failed to load topology: %v", err)
	}
	registry := topology.NewRegistry(topo)
	if cfg.TopologyFile != "" {
		store := topology.NewStore(cfg.TopologyFile)
		registry.OnChange(func(t topology.Topology) {
			if err := store.Save(t); err != nil {
				logger.Warn("save topology", "path", cfg.TopologyFile, "error", err)
			}
		})
	}

	sessions, backend, closer, err := app.OpenSessionStore(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to open session store: %v", err)
	}
	defer func() { _ = closer.Close() }()
	log.Printf("Sessions: %s", backend)

	hub := transport.NewServer(transport.ServerConfig{
		Address: cfg.ListenAddr,
		Logger:  protoLog,
		OnConnect: func(connID, remote string) {
			logger.Info("peer connected", "conn_id", connID, "remote", remote)
		},
		OnDisconnect: func(connID string) {
			logger.Info("peer disconnected", "conn_id", connID)
		},
	})
	if err := hub.Start(ctx); err != nil {
		log.Fatalf("Failed to start hub: %v", err)
	}

	apConfig := service.DefaultAPConfig()
	apConfig.BSSID = cfg.APBSSID
	apConfig.PSK = cfg.PSK
	apConfig.Suite = suite
	apConfig.AllowDemo = cfg.AllowDemo
	apConfig.Topology = registry
	apConfig.Sessions = sessions
	apConfig.Logger = logger
	apConfig.ProtocolLogger = protoLog

	ap, err := service.NewAPService(hub, apConfig)
	if err != nil {
		log.Fatalf("Failed to create access point: %v", err)
	}
	ap.OnEvent(handleEvent)

	if err := ap.Start(ctx); err != nil {
		log.Fatalf("Failed to start access point: %v", err)
	}
	log.Printf("Service started (state: %s)", ap.State())

	keys := keystore.NewStore(cfg.KeysDir)

	var adminSrv *admin.Server
	if addr := cfg.AdminAddress(); addr != "" {
		adminSrv, err = admin.NewServer(admin.Config{
			Address:  addr,
			Topology: registry,
			Keys:     keys,
			AP:       ap,
			Version:  version.Version,
			Logger:   logger,
		})
		if err != nil {
			log.Fatalf("Failed to create admin server: %v", err)
		}
		go func() {
			if err := adminSrv.ListenAndServe(); err != nil {
				logger.Error("admin server", "error", err)
			}
		}()
		log.Printf("Admin:  http://localhost%s/api/health", addr)
	}

	var advertiser *discovery.MDNSAdvertiser
	if cfg.Discovery {
		advertiser = discovery.NewMDNSAdvertiser(discovery.DefaultAdvertiserConfig())
		info := &discovery.APInfo{
			BSSID:     cfg.APBSSID,
			Suite:     string(suite),
			Version:   discovery.ProtocolVersion,
			Port:      listenPort(hub.Addr()),
			AdminPort: uint16(cfg.AdminPort),
		}
		if err := advertiser.Advertise(ctx, info); err != nil {
			log.Printf("Warning: mDNS advertisement failed: %v", err)
		} else {
			log.Printf("Advertising %s.%s", info.InstanceName(), discovery.ServiceType)
		}
	}

	if *interactiveArg {
		shell, err := interactive.New(ap, registry, keys)
		if err != nil {
			log.Fatalf("Failed to create interactive shell: %v", err)
		}
		// Route log output through readline so it does not clobber the prompt.
		log.SetOutput(shell.Stdout())
		go shell.Run(ctx, cancel)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Printf("Received signal: %v", sig)
	case <-ctx.Done():
	}

	log.Println("Shutting down...")

	if advertiser != nil {
		advertiser.StopAll()
	}
	if adminSrv != nil {
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		if err := adminSrv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
			log.Printf("Error stopping admin server: %v", err)
		}
		done()
	}
	if err := ap.Stop(); err != nil {
		log.Printf("Error stopping access point: %v", err)
	}
	cancel()
	_ = hub.Close()

	if n := protoLog.Written(); n > 0 {
		log.Printf("Wrote %d protocol events to %s", n, cfg.ProtocolLog)
	}
	log.Println("Goodbye!")
}

func handleEvent(event service.Event) {
	switch event.Type {
	case service.EventDeviceRegistered:
		log.Printf("[EVENT] Device registered: %s", event.DeviceID)
	case service.EventSessionActive:
		log.Printf("[EVENT] Session active: %s", event.DeviceID)
	case service.EventHandshakeFailed:
		log.Printf("[EVENT] Handshake failed for %s: %s", event.DeviceID, event.Reason)
	case service.EventSessionClosed:
		log.Printf("[EVENT] Session closed: %s", event.DeviceID)
	case service.EventUplinkReceived:
		m := event.Message
		label := ""
		if m.Demo {
			label = " (demo, INSECURE)"
		}
		log.Printf("[UPLINK] %s seq=%d%s: %s", m.From, m.Seq, label, m.Plaintext)
	case service.EventUplinkRejected:
		log.Printf("[UPLINK] Rejected frame from %s: %v", event.DeviceID, event.Error)
	}
}

func listenPort(addr net.Addr) uint16 {
	if addr == nil {
		return 0
	}
	_, port, err := net.SplitHostPort(addr.String())
	if err != nil {
		return 0
	}
	n, _ := strconv.ParseUint(port, 10, 16)
	return uint16(n)
}
