// ABOUTME: Entry point for the aliasing lab
// ABOUTME: Parses CLI flags and runs the TUI, the audio engine and the control server
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Resonate-Protocol/aliasing-lab/internal/app"
	"github.com/Resonate-Protocol/aliasing-lab/internal/metrics"
	"github.com/Resonate-Protocol/aliasing-lab/internal/server"
	"github.com/Resonate-Protocol/aliasing-lab/internal/ui"
	"github.com/Resonate-Protocol/aliasing-lab/internal/version"
	"github.com/Resonate-Protocol/aliasing-lab/pkg/audio/output"
	"github.com/Resonate-Protocol/aliasing-lab/pkg/samplehold"
	"github.com/Resonate-Protocol/aliasing-lab/pkg/sampling"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	backend    = flag.String("backend", output.DefaultBackend, "Audio backend ("+strings.Join(output.Backends(), ", ")+")")
	sampleRate = flag.Int("sample-rate", 44100, "Device sample rate in Hz")
	channels   = flag.Int("channels", 2, "Output channels")
	bitDepth   = flag.Int("bit-depth", 16, "PCM bit depth (16, 24 or 32)")
	gain       = flag.Float64("gain", samplehold.DefaultGain, "Output gain")
	rate       = flag.Float64("fs", sampling.DefaultRate, "Initial sampling rate in Hz")
	frequency  = flag.Float64("freq", sampling.DefaultFrequency, "Initial sine frequency in Hz")
	count      = flag.Int("count", sampling.DefaultCount, "Initial number of samples")
	autoAudio  = flag.Bool("audio", false, "Start audio immediately")
	port       = flag.Int("port", 8927, "Control server port (0 disables the server)")
	name       = flag.String("name", "", "Lab friendly name (default: hostname-aliasing-lab)")
	noMDNS     = flag.Bool("no-mdns", false, "Disable mDNS advertisement")
	logFile    = flag.String("log-file", "aliasing-lab.log", "Log file path")
	noTUI      = flag.Bool("no-tui", false, "Disable TUI, use streaming logs instead")
	debug      = flag.Bool("debug", false, "Enable debug logging")
	showVer    = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVer {
		fmt.Println(version.String())
		return
	}

	useTUI := !*noTUI

	// Set up logging
	f, err := os.OpenFile(*logFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("error opening log file: %v", err)
	}
	defer func() { _ = f.Close() }()

	if useTUI {
		// TUI mode: log only to file
		log.SetOutput(f)
	} else {
		// Streaming logs mode: log to both stdout and file
		log.SetOutput(io.MultiWriter(os.Stdout, f))
	}

	labName := *name
	if labName == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown"
		}
		labName = fmt.Sprintf("%s-aliasing-lab", hostname)
	}

	log.Printf("Starting %s: %s", version.String(), labName)
	if *debug {
		log.Printf("Debug logging enabled")
	}

	config := app.DefaultConfig()
	config.Backend = *backend
	config.SampleRate = *sampleRate
	config.Channels = *channels
	config.BitDepth = *bitDepth
	config.Gain = *gain
	config.Rate = *rate
	config.Frequency = *frequency
	config.Count = *count

	lab, err := app.New(config)
	if err != nil {
		log.Fatalf("Invalid initial parameters: %v", err)
	}

	prometheus.MustRegister(metrics.NewEngineCollector(lab.EngineStats))

	if *autoAudio {
		if err := lab.StartAudio(); err != nil {
			// Visualization stays available without audio
			log.Printf("Audio unavailable: %v", err)
		}
	}

	var srv *server.Server
	serverDone := make(chan error, 1)
	if *port > 0 {
		srv = server.New(server.Config{
			Port:       *port,
			Name:       labName,
			EnableMDNS: !*noMDNS,
			Debug:      *debug,
		}, lab)

		go func() {
			serverDone <- srv.Start()
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	if useTUI {
		prog := ui.NewProgram(lab)
		go watchTUI(sigChan, serverDone, prog.Quit)

		if _, err := prog.Run(); err != nil {
			log.Printf("TUI error: %v", err)
		}
	} else {
		if *debug {
			go statusLogLoop(lab)
		}

		select {
		case sig := <-sigChan:
			log.Printf("Received %v signal, shutting down gracefully...", sig)
		case err := <-serverDone:
			if err != nil {
				log.Printf("Control server error: %v", err)
			}
			serverDone <- err
		}
	}

	if srv != nil {
		srv.Stop()
		select {
		case <-serverDone:
		case <-time.After(10 * time.Second):
			log.Printf("Timed out waiting for control server")
		}
	}
	if err := lab.StopAudio(); err != nil {
		log.Printf("Error stopping audio: %v", err)
	}

	log.Printf("Lab stopped")
}

// watchTUI quits the TUI on a signal. The control server is optional in TUI
// mode, so its exit is logged and handed back on serverDone for shutdown.
func watchTUI(sigChan <-chan os.Signal, serverDone chan error, quit func()) {
	done := serverDone
	for {
		select {
		case sig := <-sigChan:
			log.Printf("Received %v signal, quitting TUI", sig)
			quit()
			return
		case err := <-done:
			log.Printf("Control server exited, continuing without it: %v", err)
			serverDone <- err
			done = nil
		}
	}
}

// statusLogLoop logs engine counters in headless debug mode
func statusLogLoop(lab *app.Lab) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		stats, ok := lab.EngineStats()
		if !ok {
			continue
		}
		log.Printf("[DEBUG] Engine: virtualFs=%gHz step=%.4g frames=%d holds=%d updates=%d/%d dropped=%d",
			stats.Params.VirtualRate, stats.StepFrames, stats.Frames, stats.Holds,
			stats.UpdatesApplied, stats.UpdatesPosted, stats.UpdatesDropped)
	}
}
