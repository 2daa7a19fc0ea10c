// Command temp-logger samples 1-Wire temperature probes, logs every batch to
// local storage and uploads it to a collector with bounded retry.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sweeney/temp-logger/internal/command"
	"github.com/sweeney/temp-logger/internal/config"
	"github.com/sweeney/temp-logger/internal/gpio"
	"github.com/sweeney/temp-logger/internal/onewire"
	"github.com/sweeney/temp-logger/internal/transport"
	"github.com/sweeney/temp-logger/internal/web"
)

// loopTick is the cooperative loop period. Sampling and retry gates are
// evaluated on every tick.
const loopTick = 100 * time.Millisecond

func main() {
	configPath := flag.String("config", "", "Config file (YAML or .env); TEMPLOGGER_* env vars override")
	printSensors := flag.Bool("print-sensors", false, "Discover probes, print them and exit")
	httpAddr := flag.String("http", "", "HTTP status address (overrides config; \"off\" disables)")
	console := flag.String("console", "", "Operator console: serial device, \"stdin\" or \"off\" (overrides config)")

	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}
	if *httpAddr != "" {
		cfg.HTTPAddr = *httpAddr
	}
	if cfg.HTTPAddr == "off" {
		cfg.HTTPAddr = ""
	}
	if *console != "" {
		cfg.ConsoleDevice = *console
	}

	if err := run(cfg, *printSensors); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

func run(cfg *config.Config, printSensors bool) error {
	buses := openBuses(cfg)

	if printSensors {
		d, err := newDaemon(cfg, buses, nil, nil, nil, time.Now)
		if err != nil {
			return err
		}
		printIdentities(os.Stdout, d)
		return nil
	}

	var level gpio.LevelReader
	if cfg.LevelEnabled {
		r, err := gpio.NewRealLevelReader(cfg.LevelChip, cfg.LevelPin, cfg.LevelActiveLow)
		if err != nil {
			log.Printf("level sensor disabled: %v", err)
		} else {
			level = r
			defer r.Close()
		}
	}

	tr, err := buildTransport(cfg)
	if err != nil {
		return fmt.Errorf("init transport: %w", err)
	}
	if tr != nil {
		defer tr.Close()
	} else {
		log.Printf("no transport configured, batches are logged locally only")
	}

	d, err := newDaemon(cfg, buses, level, nil, tr, time.Now)
	if err != nil {
		return err
	}

	// Start HTTP status server
	if cfg.HTTPAddr != "" {
		srv := web.New(cfg.HTTPAddr, d.tracker, d.log, d.metrics.Handler())
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Printf("http status server listening on %s", cfg.HTTPAddr)
	}

	lines, closeConsole := openConsole(cfg)
	defer closeConsole()

	log.Printf("started: site=%s device=%s sensors=%d interval=%v transport=%s data=%s",
		cfg.SiteID, cfg.DeviceID, d.registry.Len(), cfg.Interval, transportName(tr), cfg.DataDir)

	ticker := time.NewTicker(loopTick)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return d.runLoop(context.Background(), time.Now, ticker.C, sigCh, lines)
}

func openBuses(cfg *config.Config) []onewire.Bus {
	var buses []onewire.Bus
	for _, b := range []struct {
		id  onewire.BusID
		cfg config.BusConfig
	}{
		{onewire.BusA, cfg.BusA},
		{onewire.BusB, cfg.BusB},
	} {
		bus, err := onewire.NewSysfsBus(b.id, b.cfg.Pin, cfg.OneWireRoot, b.cfg.Master)
		if err != nil {
			log.Printf("bus %s unavailable: %v", b.id, err)
			continue
		}
		buses = append(buses, bus)
	}
	return buses
}

func buildTransport(cfg *config.Config) (transport.Transport, error) {
	httpCfg := func(url string) transport.HTTPConfig {
		return transport.HTTPConfig{URL: url, APIKey: cfg.APIKey, Timeout: cfg.HTTPTimeout}
	}

	switch cfg.Transport {
	case config.TransportHTTPS:
		return transport.NewHTTPTransport("https", httpCfg(cfg.URL)), nil
	case config.TransportFallback:
		return transport.NewFallback(
			transport.NewHTTPTransport("https", httpCfg(cfg.URL)),
			transport.NewHTTPTransport("relay", httpCfg(cfg.RelayURL)),
		), nil
	case config.TransportSerial:
		return transport.NewSerialTransport(transport.SerialConfig{
			Device:     cfg.SerialDevice,
			BaudRate:   cfg.SerialBaud,
			AckTimeout: cfg.SerialAckTimeout,
		})
	case config.TransportMQTT:
		return transport.NewMQTTTransport(cfg.MQTTBroker, cfg.MQTTClientID, transport.MQTTTopic(cfg.SiteID, cfg.DeviceID))
	}
	return nil, nil
}

func transportName(t transport.Transport) string {
	if t == nil {
		return "none"
	}
	return t.Name()
}

// openConsole starts the console reader goroutine. The returned channel is
// nil when the console is disabled.
func openConsole(cfg *config.Config) (<-chan command.Line, func()) {
	lines := make(chan command.Line, 4)

	switch cfg.ConsoleDevice {
	case "off":
		return nil, func() {}
	case "", "stdin":
		go command.ReadLines(os.Stdin, os.Stdout, lines)
		return lines, func() {}
	}

	port, err := command.OpenSerialConsole(cfg.ConsoleDevice, cfg.ConsoleBaud)
	if err != nil {
		log.Printf("console disabled: %v", err)
		return nil, func() {}
	}
	go command.ReadLines(port, port, lines)
	return lines, func() { port.Close() }
}

func printIdentities(w io.Writer, d *daemon) {
	ids := d.registry.Identities()
	if len(ids) == 0 {
		fmt.Fprintln(w, "no sensors found")
		return
	}
	for _, id := range ids {
		fmt.Fprintf(w, "%-6s %-3s bus=%s pin=%d rom=%s\n", id.Name, id.LogicalName, id.Bus, id.Pin, id.Address)
	}
}
