package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/noah-isme/mops-planner-api/internal/app"
	"github.com/noah-isme/mops-planner-api/internal/dto"
	"github.com/noah-isme/mops-planner-api/internal/models"
	"github.com/noah-isme/mops-planner-api/pkg/config"
	"github.com/noah-isme/mops-planner-api/pkg/logger"
)

var rootCmd = &cobra.Command{
	Use:           "planctl",
	Short:         "Maintenance planning operations",
	SilenceUsage: true,
}

// Execute runs the CLI.
func Execute() error { return rootCmd.Execute() }

type rangeFlags struct {
	tenant string
	from   string
	to     string
}

func (f *rangeFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.tenant, "tenant", "", "tenant identifier")
	cmd.Flags().StringVar(&f.from, "from", "", "first day (YYYY-MM-DD)")
	cmd.Flags().StringVar(&f.to, "to", "", "last day (YYYY-MM-DD)")
	_ = cmd.MarkFlagRequired("tenant")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
}

func (f *rangeFlags) scope() (models.Scope, dto.DateRange, error) {
	scope, err := models.NewScope(f.tenant, "planctl")
	if err != nil {
		return models.Scope{}, dto.DateRange{}, err
	}
	return scope, dto.DateRange{From: f.from, To: f.to}, nil
}

// withContainer loads configuration, wires the services and hands them to fn
// under a signal-aware context.
func withContainer(fn func(ctx context.Context, c *app.Container) error) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logr.Sync() //nolint:errcheck

	container, err := app.New(context.Background(), cfg, logr.With(zap.String("component", "planctl")))
	if err != nil {
		return err
	}
	defer container.Close()
	return fn(ctx, container)
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
