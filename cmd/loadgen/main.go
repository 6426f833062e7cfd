// Command loadgen drives synthetic lead traffic against a leadtier server.
package main

import (
	"context"
	"flag"
	"io"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/okian/leadtier/internal/loadgen"
	"github.com/okian/leadtier/pkg/logger"
)

const (
	defaultLeads   = 500
	defaultEvents  = 10000
	defaultTopN    = 50
	defaultWorkers = 2 // multiplier for runtime.NumCPU()
	defaultTimeout = 30 * time.Second
	defaultSettle  = 5 * time.Second
	runTimeout     = 10 * time.Minute
	logPermission  = 0600
)

func main() {
	var (
		baseURL = flag.String("url", "http://localhost:9080", "Base URL of the service")
		leads   = flag.Int("leads", defaultLeads, "Number of leads to create")
		events  = flag.Int("events", defaultEvents, "Number of interactions to submit")
		topN    = flag.Int("top", defaultTopN, "Number of top scores to fetch")
		workers = flag.Int("workers", runtime.NumCPU()*defaultWorkers, "Number of concurrent submitters")
		timeout = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		settle  = flag.Duration("settle", defaultSettle, "Wait before reading analytics")
		seed    = flag.Uint64("seed", uint64(time.Now().UnixNano()), "Traffic generator seed")
		sync    = flag.Bool("sync", false, "Apply interactions synchronously via /v1/interactions")
		logFile = flag.String("log", "", "Also write logs to this file")
		verbose = flag.Bool("verbose", false, "Log every failed submission")
	)
	flag.Parse()

	var out io.Writer = os.Stdout
	if *logFile != "" {
		f, err := os.OpenFile(*logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logPermission)
		if err != nil {
			os.Stderr.WriteString("failed to open log file: " + err.Error() + "\n")
			os.Exit(1)
		}
		defer f.Close()
		out = io.MultiWriter(os.Stdout, f)
	}
	if err := logger.Init(logger.WithOutput(out)); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, runTimeout)
	defer cancel()

	_, err := loadgen.Run(ctx, &loadgen.Config{
		BaseURL: *baseURL,
		Leads:   *leads,
		Events:  *events,
		Workers: *workers,
		Timeout: *timeout,
		Settle:  *settle,
		TopN:    *topN,
		Seed:    *seed,
		Sync:    *sync,
		Verbose: *verbose,
	})
	if err != nil {
		logger.Get().Error(ctx, "load run failed", logger.Error(err))
		cancel()
		os.Exit(1)
	}
}
