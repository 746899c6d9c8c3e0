// Command clustertop is a terminal status view of a running balancer. It
// polls GET /health and renders one row per node.
//
//	clustertop --interval 2s http://localhost:8000
package main

import (
	"flag"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// parseBaseURL validates the balancer URL and strips any trailing slash.
func parseBaseURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid URL %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q (must be http or https)", u.Scheme)
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("invalid URL %q: host is required", raw)
	}
	return strings.TrimRight(u.String(), "/"), nil
}

func main() {
	interval := flag.Duration("interval", 5*time.Second, "polling interval (e.g. 2s, 10s)")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: clustertop [--interval 5s] [balancer-url]\n\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *interval <= 0 {
		fmt.Fprintln(os.Stderr, "error: --interval must be positive")
		os.Exit(1)
	}

	raw := "http://localhost:8000"
	switch args := flag.Args(); len(args) {
	case 0:
	case 1:
		raw = args[0]
	default:
		fmt.Fprintf(os.Stderr, "error: unexpected argument %q\n", args[1])
		flag.Usage()
		os.Exit(1)
	}

	base, err := parseBaseURL(raw)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	p := tea.NewProgram(NewApp(base, *interval), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
