// Command recalc runs the batch score recompute once and exits. With no
// -users flag every known lead is recomputed.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	app "github.com/okian/leadtier/internal/app"
	"github.com/okian/leadtier/internal/config"
	"github.com/okian/leadtier/pkg/logger"
)

func main() {
	users := flag.String("users", "", "Comma-separated user IDs to recompute (default: all leads)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}
	if err := logger.Init(logger.WithFormat(cfg.Log.Format), logger.WithOutput(os.Stderr)); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	_ = logger.SetLevelString(cfg.Log.Level)

	opts, err := app.OptionsFromConfig(ctx, cfg, logger.Get())
	if err != nil {
		logger.Get().Error(ctx, "failed to configure service", logger.Error(err))
		os.Exit(1)
	}
	svc := app.New(opts...)
	if err := svc.Start(ctx); err != nil {
		logger.Get().Error(ctx, "failed to start service", logger.Error(err))
		os.Exit(1)
	}

	res, err := recalculate(ctx, svc.Engine(), parseUsers(*users))
	svc.Stop()
	if err != nil {
		logger.Get().Error(ctx, "recalculation failed", logger.Error(err))
		os.Exit(1)
	}
	if err := report(os.Stdout, res); err != nil {
		os.Exit(1)
	}
	if len(res.Errors) > 0 {
		os.Exit(2)
	}
}

type recalculator interface {
	BatchUpdateScores(ctx context.Context, userIDs []string) app.BatchResult
	RecalculateAllScores(ctx context.Context) (app.BatchResult, error)
}

func recalculate(ctx context.Context, r recalculator, users []string) (app.BatchResult, error) {
	if len(users) == 0 {
		return r.RecalculateAllScores(ctx)
	}
	return r.BatchUpdateScores(ctx, users), nil
}

func parseUsers(s string) []string {
	var out []string
	for _, u := range strings.Split(s, ",") {
		if u = strings.TrimSpace(u); u != "" {
			out = append(out, u)
		}
	}
	return out
}

func report(w io.Writer, res app.BatchResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}
