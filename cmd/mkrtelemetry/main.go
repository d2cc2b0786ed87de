// mkr-telemetry - MKR 1010 telemetry agent
//
// This is the main entry point for the telemetry agent. The agent:
//   - Joins the network, retrying a bounded number of times
//   - Opens an MQTT-over-TLS session with a slot-held device key
//   - Publishes a synthetic temperature/humidity sample every period
//   - Echoes every message received on the inbound topic
package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nerrad567/mkr-telemetry/internal/device"
	"github.com/nerrad567/mkr-telemetry/internal/inbound"
	"github.com/nerrad567/mkr-telemetry/internal/infrastructure/config"
	"github.com/nerrad567/mkr-telemetry/internal/infrastructure/influxdb"
	"github.com/nerrad567/mkr-telemetry/internal/infrastructure/logging"
	"github.com/nerrad567/mkr-telemetry/internal/infrastructure/mqtt"
	"github.com/nerrad567/mkr-telemetry/internal/network"
	"github.com/nerrad567/mkr-telemetry/internal/secureelement"
	"github.com/nerrad567/mkr-telemetry/internal/session"
	"github.com/nerrad567/mkr-telemetry/internal/telemetry"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// envConfigPath names the variable that overrides defaultConfigPath.
const envConfigPath = "MKR_CONFIG"

func main() {
	// Cancel on interrupt signals (Ctrl+C, SIGTERM) for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	return runWithConsole(ctx, logging.NewConsole(os.Stdout))
}

func runWithConsole(ctx context.Context, console *logging.Console) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting mkr-telemetry",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded",
		"path", configPath,
		"broker", cfg.MQTT.BrokerAddress(),
		"network_driver", cfg.Network.Driver,
	)

	link, err := network.NewLink(cfg.Network)
	if err != nil {
		return fmt.Errorf("creating network link: %w", err)
	}

	tlsConfig, err := buildTLSConfig(cfg, network.TimeSource(link), console)
	if err != nil {
		return err
	}

	mqttClient, err := mqtt.NewClient(cfg.MQTT, tlsConfig)
	if err != nil {
		return fmt.Errorf("creating MQTT client: %w", err)
	}
	mqttClient.SetLogger(log)
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT connected", "client_id", mqttClient.ClientID())
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()

	netConnector := network.NewConnector(link, cfg.Network, console)
	netConnector.SetLogger(log)

	sessionConnector := session.NewConnector(mqttClient, cfg.MQTT, console)
	sessionConnector.SetLogger(log)

	publisher := telemetry.NewPublisher(
		telemetry.NewGenerator(cfg.Telemetry, nil),
		cfg.MQTT.Topics.Outgoing,
		console,
	)
	publisher.SetLogger(log)

	// Mirror telemetry to InfluxDB (optional)
	if cfg.InfluxDB.Enabled {
		mirror, influxErr := influxdb.Open(ctx, cfg.InfluxDB)
		if influxErr != nil {
			return fmt.Errorf("opening InfluxDB mirror: %w", influxErr)
		}
		defer func() {
			log.Info("closing InfluxDB mirror", "dropped", mirror.Dropped())
			if closeErr := mirror.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		mirror.SetLogger(log)
		mirror.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		if !mirror.Healthy() {
			log.Warn("InfluxDB unreachable, telemetry mirror paused", "url", cfg.InfluxDB.URL)
		}
		go mirror.Watch(ctx)
		publisher.SetSink(mirror)
		log.Info("InfluxDB mirror enabled",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	dev := device.New(device.Components{
		Link:      link,
		Network:   netConnector,
		Session:   sessionConnector,
		Transport: mqttClient,
		Publisher: publisher,
		Handler:   inbound.NewHandler(console),
		Console:   console,
	}, *cfg)
	dev.SetLogger(log)

	if err := dev.Run(ctx); err != nil {
		return fmt.Errorf("device loop: %w", err)
	}

	log.Info("mkr-telemetry stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses MKR_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv(envConfigPath); path != "" {
		return path
	}
	return defaultConfigPath
}

// buildTLSConfig pairs the slot key with the device certificate.
// It returns nil when TLS is disabled. A missing secure element is fatal.
func buildTLSConfig(cfg *config.Config, now func() time.Time, console *logging.Console) (*tls.Config, error) {
	if !cfg.MQTT.Broker.TLS {
		return nil, nil
	}

	element, err := secureelement.Open(cfg.SecureElement.Path)
	if err != nil {
		console.Println("No secure element present!")
		return nil, fmt.Errorf("opening secure element: %w", err)
	}

	signer, err := element.Signer(cfg.SecureElement.Slot)
	if err != nil {
		return nil, fmt.Errorf("loading device key: %w", err)
	}

	certPEM, err := cfg.SecureElement.CertificatePEM()
	if err != nil {
		return nil, fmt.Errorf("loading device certificate: %w", err)
	}

	cert, err := secureelement.ClientCertificate(signer, certPEM)
	if err != nil {
		return nil, fmt.Errorf("pairing device certificate: %w", err)
	}

	var caPEM []byte
	if cfg.SecureElement.CAFile != "" {
		caPEM, err = os.ReadFile(cfg.SecureElement.CAFile)
		if err != nil {
			return nil, fmt.Errorf("reading CA file: %w", err)
		}
	}

	tlsConfig, err := mqtt.NewTLSConfig(cert, caPEM, now)
	if err != nil {
		return nil, fmt.Errorf("building TLS config: %w", err)
	}
	return tlsConfig, nil
}
