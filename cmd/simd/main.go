// ==============================================================================
// SIMULATION RUNNER MAIN - cmd/simd/main.go
// ==============================================================================
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"rtgsim/internal/domain"
	"rtgsim/internal/repository/boltstore"
	"rtgsim/internal/simulation"
	"rtgsim/pkg/logger"
)

func main() {
	_ = godotenv.Load()

	var (
		scenarioPath = flag.String("scenario", "", "path to a JSON scenario file (required)")
		policyName   = flag.String("policy", "submit_all", "decision policy: submit_all or threshold")
		dbPath       = flag.String("db", "", "bolt database path for run persistence (optional)")
		runName      = flag.String("name", "cli-run", "run name")
	)
	flag.Parse()

	log := logger.New("simd")

	if *scenarioPath == "" {
		fmt.Fprintln(os.Stderr, "Usage: simd -scenario FILE [-policy NAME] [-db FILE] [-name NAME]")
		os.Exit(2)
	}

	data, err := os.ReadFile(*scenarioPath)
	if err != nil {
		log.Fatal("Failed to read scenario", map[string]interface{}{"error": err.Error()})
	}

	cfg := domain.DefaultSimulationConfig()
	if err := json.Unmarshal(data, &cfg); err != nil {
		log.Fatal("Failed to parse scenario", map[string]interface{}{"error": err.Error()})
	}

	var sink simulation.Sink
	if *dbPath != "" {
		store, err := boltstore.Open(*dbPath)
		if err != nil {
			log.Fatal("Failed to open bolt store", map[string]interface{}{"error": err.Error()})
		}
		defer store.Close()
		sink = store
	}

	svc := simulation.NewService(sink, nil, 0, 1, log)

	ctx := context.Background()
	run, err := svc.CreateRun(ctx, *runName, cfg, *policyName)
	if err != nil {
		log.Fatal("Failed to create run", map[string]interface{}{"error": err.Error()})
	}

	_, run, err = svc.Advance(ctx, run.Record.ID, cfg.Horizon)
	if err != nil {
		log.Error("Run ended early", map[string]interface{}{
			"error": err.Error(),
			"tick":  run.Record.Tick,
		})
	}

	rep, err := svc.Report(run.Record.ID)
	if err != nil {
		log.Fatal("Failed to build report", map[string]interface{}{"error": err.Error()})
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rep); err != nil {
		log.Fatal("Failed to encode report", map[string]interface{}{"error": err.Error()})
	}

	sum, err := svc.Checksum(run.Record.ID)
	if err == nil {
		fmt.Fprintf(os.Stderr, "event log checksum: %s\n", sum)
	}
}
