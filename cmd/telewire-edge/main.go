package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sorenkai/telewire"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	var err error

	switch cmd {
	case "run":
		err = runCommand(os.Args[2:])
	case "validate":
		err = validateCommand(os.Args[2:])
	case "stats":
		err = statsCommand(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		printUsage()
		err = fmt.Errorf("unknown command %q", cmd)
	}

	if err != nil {
		log.Fatalf("telewire-edge %s: %v", cmd, err)
	}
}

func runCommand(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	cfgPath := fs.String("config", "./data/config.yaml", "Path to edge configuration file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	flow, err := telewire.Conf(*cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return flow.Run(ctx)
}

func validateCommand(args []string) error {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	cfgPath := fs.String("config", "./data/config.yaml", "Path to configuration file to validate")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if _, err := telewire.LoadConfig(*cfgPath); err != nil {
		return err
	}
	fmt.Printf("config %s looks good ✅\n", *cfgPath)
	return nil
}

func statsCommand(args []string) error {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	url := fs.String("url", "http://localhost:9100/metrics", "Prometheus metrics endpoint")
	interval := fs.Duration("interval", 2*time.Second, "Refresh interval")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	fmt.Printf("Streaming metrics from %s (Ctrl+C to stop)\n", *url)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := printMetricsSnapshot(*url); err != nil {
				fmt.Fprintf(os.Stderr, "stats error: %v\n", err)
			}
		}
	}
}

func printMetricsSnapshot(url string) error {
	resp, err := http.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	targets := map[string]float64{
		"telewire_packets_sent_total":     0,
		"telewire_packets_buffered_total": 0,
		"telewire_packets_dropped_total":  0,
		"telewire_buffer_length":          0,
		"telewire_breaker_state":          0,
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "#") {
			continue
		}
		for key := range targets {
			if strings.HasPrefix(line, key+" ") {
				var value float64
				if _, err := fmt.Sscanf(line, key+" %f", &value); err == nil {
					targets[key] = value
				}
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	fmt.Printf("[%s] sent=%.0f buffered=%.0f dropped=%.0f buffer_len=%.0f breaker=%s\n",
		time.Now().Format(time.RFC3339),
		targets["telewire_packets_sent_total"],
		targets["telewire_packets_buffered_total"],
		targets["telewire_packets_dropped_total"],
		targets["telewire_buffer_length"],
		breakerName(targets["telewire_breaker_state"]),
	)
	return nil
}

func breakerName(v float64) string {
	switch telewire.CircuitState(v) {
	case telewire.StateOpen:
		return "open"
	case telewire.StateHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

func printUsage() {
	fmt.Printf(`telewire CLI

Usage:
  telewire-edge <command> [flags]

Commands:
  run        Start the edge runtime using the provided config (default)
  validate   Load and validate a config file without starting the runtime
  stats      Poll the Prometheus metrics endpoint and print live counters

Examples:
  telewire-edge run -config ./data/config.yaml
  telewire-edge validate -config ./data/config.yaml
  telewire-edge stats -url http://localhost:9100/metrics -interval 1s
`)
}
