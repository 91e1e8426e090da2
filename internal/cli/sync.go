package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"slices"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/mit-27/panora-sync/internal/catalog"
	"github.com/mit-27/panora-sync/internal/config"
	"github.com/mit-27/panora-sync/internal/logger"
	"github.com/mit-27/panora-sync/internal/orchestrator"
	"github.com/mit-27/panora-sync/internal/service"
)

// SyncOptions holds flags for the sync command.
type SyncOptions struct {
	*RootOptions
	Tenant   string
	Vertical string
	Object   string
}

// NewSyncCommand creates the one-shot sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SyncOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one sync pass and print its report",
		Long: `Run one sync pass immediately, wait for every branch to finish and print
the pass report as JSON.

Example:
  panora-sync sync
  panora-sync sync --tenant 0b6f... --vertical crm --object contact`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := opts.passRequest()
			if err != nil {
				return err
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			svc, err := service.New(ctx, cfg, logger.Logger)
			if err != nil {
				return err
			}
			defer svc.Stop()

			return runSync(ctx, cmd.OutOrStdout(), svc, req)
		},
	}

	cmd.Flags().StringVar(&opts.Tenant, "tenant", "", "project id to sync (default: every project)")
	cmd.Flags().StringVar(&opts.Vertical, "vertical", "", "vertical to sync (crm|ticketing|ats)")
	cmd.Flags().StringVar(&opts.Object, "object", "", "object to sync within the vertical")

	return cmd
}

func (o *SyncOptions) passRequest() (orchestrator.PassRequest, error) {
	req := orchestrator.PassRequest{Vertical: o.Vertical, Object: o.Object}
	if o.Tenant != "" {
		id, err := uuid.Parse(o.Tenant)
		if err != nil {
			return req, fmt.Errorf("invalid --tenant %q: %w", o.Tenant, err)
		}
		req.ProjectID = &id
	}
	if o.Vertical != "" && !slices.Contains(catalog.Verticals(), o.Vertical) {
		return req, fmt.Errorf("invalid --vertical %q: must be one of %v", o.Vertical, catalog.Verticals())
	}
	if o.Object != "" && o.Vertical == "" {
		return req, fmt.Errorf("--object requires --vertical")
	}
	return req, nil
}

func runSync(ctx context.Context, out io.Writer, runner orchestrator.Runner, req orchestrator.PassRequest) error {
	report := runner.RunPass(ctx, req)

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	if report.Failed > 0 {
		return fmt.Errorf("sync pass finished with %d failed branch(es)", report.Failed)
	}
	return nil
}
