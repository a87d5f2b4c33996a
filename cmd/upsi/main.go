// Command upsi is the thin CLI entry point (spec.md §6 "CLI surface",
// external-collaborator boundary preserved): it loads the YAML config,
// applies the -party override, and dumps the metrics recorder on a normal
// exit. It does not set up keys, construct a Party, open a transport or run
// the per-day protocol loop. Grounded on
// notary.go's main() (flag parsing, graceful shutdown) and
// original_source/upsi/party_zero.cc::ExecuteProtocol (the day loop).
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/summitto/upsi/config"
	"github.com/summitto/upsi/metrics"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	partyFlag := flag.Int("party", -1, "party id (0 or 1), overrides config")
	flag.Parse()

	if *configPath == "" {
		fmt.Fprintln(os.Stderr, "upsi: -config is required")
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "upsi: %v\n", err)
		os.Exit(1)
	}
	if *partyFlag == 0 || *partyFlag == 1 {
		cfg.Party = *partyFlag
	}

	rec := metrics.New()
	defer rec.DumpText(os.Stdout)

	if err := run(cfg, rec); err != nil {
		fmt.Fprintf(os.Stderr, "upsi: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, rec *metrics.Recorder) error {
	log.Printf("upsi: party %d starting, func=%s days=%d", cfg.Party, cfg.Func, cfg.Days)
	// Key generation, dataset CSV parsing, and gRPC-equivalent wiring are
	// external collaborators per spec.md §1/§6; run only logs the start and
	// returns. Building a transport.Conn and a protocol.Party and running the
	// day loop are left to deployment-specific wiring.
	return nil
}
