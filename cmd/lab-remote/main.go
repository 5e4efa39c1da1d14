// ABOUTME: Remote control CLI for a running aliasing lab
// ABOUTME: Sends one parameter update over the control websocket and prints the result
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/Resonate-Protocol/aliasing-lab/internal/client"
	"github.com/Resonate-Protocol/aliasing-lab/internal/discovery"
	"github.com/Resonate-Protocol/aliasing-lab/internal/protocol"
	"github.com/Resonate-Protocol/aliasing-lab/internal/version"
	"github.com/Resonate-Protocol/aliasing-lab/pkg/samplehold"
)

var (
	serverAddr  = flag.String("server", "", "Lab address host:port (skip mDNS)")
	virtualRate = flag.Float64("virtual-fs", 0, "Virtual sampling rate in Hz")
	frequency   = flag.Float64("freq", 0, "Sine frequency in Hz")
	gain        = flag.Float64("gain", 0, "Output gain")
	samples     = flag.Int("samples", 0, "Request and print this many samples")
	timeout     = flag.Duration("timeout", 10*time.Second, "Discovery and response timeout")
	verbose     = flag.Bool("v", false, "Log connection details to stderr")
)

func main() {
	flag.Parse()

	log.SetOutput(os.Stderr)
	if !*verbose {
		log.SetOutput(io.Discard)
	}

	update := buildUpdate()

	addr, path := *serverAddr, client.DefaultPath
	if addr == "" {
		server, err := discover(*timeout)
		if err != nil {
			fatalf("%v", err)
		}
		addr, path = server.Addr(), server.Path
		fmt.Printf("Found %s at %s\n", server.Name, addr)
	}

	c := client.NewClient(client.Config{
		ServerAddr: addr,
		Path:       path,
		Name:       "lab-remote " + version.Version,
	})
	if err := c.Connect(); err != nil {
		fatalf("connect: %v", err)
	}
	defer c.Close()

	hello := c.Hello()
	fmt.Printf("Connected to %s\n", hello.Name)

	if !update.IsEmpty() {
		if err := c.SendParams(update); err != nil {
			fatalf("send params: %v", err)
		}
		select {
		case result := <-c.Results:
			printResult(result)
		case <-time.After(*timeout):
			fatalf("timed out waiting for params result")
		}
	}

	if *samples > 0 {
		count := *samples
		if err := c.RequestSamples(protocol.SamplesRequest{Count: &count}); err != nil {
			fatalf("request samples: %v", err)
		}
		select {
		case resp := <-c.Samples:
			printSamples(resp)
		case <-time.After(*timeout):
			fatalf("timed out waiting for samples")
		}
	}

	select {
	case status := <-c.Status:
		printStatus(status)
	case <-time.After(*timeout):
		fatalf("timed out waiting for status")
	}
}

// buildUpdate includes only the flags given on the command line
func buildUpdate() samplehold.Update {
	var u samplehold.Update
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "virtual-fs":
			u.VirtualRate = samplehold.Float(*virtualRate)
		case "freq":
			u.Frequency = samplehold.Float(*frequency)
		case "gain":
			u.Gain = samplehold.Float(*gain)
		}
	})
	return u
}

// discover waits for the first lab answering on mDNS
func discover(timeout time.Duration) (*discovery.ServerInfo, error) {
	disc := discovery.NewManager(discovery.Config{})
	defer disc.Stop()

	if err := disc.Browse(); err != nil {
		return nil, fmt.Errorf("mDNS browse: %w", err)
	}

	select {
	case server := <-disc.Servers():
		return server, nil
	case <-time.After(timeout):
		return nil, fmt.Errorf("no lab found after %v (use -server)", timeout)
	}
}

func printResult(result protocol.ParamsResult) {
	fmt.Printf("Applied: %s\n", strings.Join(result.Applied, ", "))
	for field, reason := range result.Rejected {
		fmt.Printf("Rejected %s: %s\n", field, reason)
	}
	if result.Error != "" {
		fmt.Printf("Error: %s\n", result.Error)
	}
}

func printSamples(resp protocol.SamplesResponse) {
	if resp.Error != "" {
		fmt.Printf("Samples error: %s\n", resp.Error)
		return
	}
	fmt.Printf("Samples fs=%gHz f=%gHz (apparent %gHz):\n", resp.Rate, resp.Frequency, resp.Alias)
	for i, v := range resp.Samples {
		fmt.Printf("%4d  %+.6f\n", i, v)
	}
}

func printStatus(status protocol.LabStatus) {
	fmt.Printf("Visualization: fs=%gHz f=%gHz N=%d gain=%g\n", status.Rate, status.Frequency, status.Count, status.Gain)
	if !status.AudioRunning {
		fmt.Printf("Audio: stopped (%s)\n", status.Backend)
		return
	}
	fmt.Printf("Audio: %s\n", status.Info)
	if e := status.Engine; e != nil {
		fmt.Printf("Engine: step=%.4g frames=%d holds=%d updates=%d/%d dropped=%d\n",
			e.StepFrames, e.Frames, e.Holds, e.UpdatesApplied, e.UpdatesPosted, e.UpdatesDropped)
	}
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "lab-remote: "+format+"\n", args...)
	os.Exit(1)
}
