package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
	"github.com/tendant/qc-labelsync/internal/app"
	"github.com/tendant/qc-labelsync/pkg/labelsync"
)

// GatewayReport is printed by the gateway command
type GatewayReport struct {
	AnnotationGateway string `json:"annotation_gateway"`
	AnnotationURL     string `json:"annotation_url"`
	RouteGateway      string `json:"route_gateway"`
	PresignEndpoint   string `json:"presign_endpoint"`
	DiscoveryBypassed bool   `json:"discovery_bypassed"`
}

func newGatewayCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "gateway",
		Short: "Show how the annotation service and object store are reached",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, flags, func(ctx context.Context, a *app.App, _ *labelsync.Syncer) error {
				hint := a.Config.StudioHint()
				return printJSON(cmd, GatewayReport{
					AnnotationGateway: a.Resolver.ResolveGateway(ctx, hint),
					AnnotationURL:     a.Client.BaseURL(ctx),
					RouteGateway:      a.Resolver.ResolveRouteGateway(ctx, "localhost"),
					PresignEndpoint:   a.Config.PresignEndpoint(ctx, a.Resolver),
					DiscoveryBypassed: a.Config.Studio.URL != "",
				})
			})
		},
	}
}

func newReconcileCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Delete duplicate projects and tasks, keeping the oldest of each",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, flags, func(ctx context.Context, _ *app.App, syncer *labelsync.Syncer) error {
				result, err := syncer.Reconcile(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd, result)
			})
		},
	}
}

func newEnsureProjectCommand(flags *globalFlags) *cobra.Command {
	var title string
	var labels []string
	var productID int64

	cmd := &cobra.Command{
		Use:   "ensure-project",
		Short: "Create an annotation project unless one with the same title exists",
		Long: `Create an annotation project unless one with the same title exists.

Either pass --title with one --label per class, or --product to use a catalog
product's derived title and class labels.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if (title == "") == (productID == 0) {
				return errors.New("exactly one of --title or --product is required")
			}
			return withApp(cmd, flags, func(ctx context.Context, _ *app.App, syncer *labelsync.Syncer) error {
				var result labelsync.EnsureResult
				var err error
				if productID != 0 {
					result, err = syncer.EnsureProductProject(ctx, productID)
				} else {
					result, err = syncer.EnsureProject(ctx, labelsync.ProjectTitle(title), labels)
				}
				if err != nil {
					return err
				}
				return printJSON(cmd, result)
			})
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "product name the project title is derived from")
	cmd.Flags().StringSliceVar(&labels, "label", nil, "class label (repeatable)")
	cmd.Flags().Int64Var(&productID, "product", 0, "catalog product id")
	return cmd
}

func newImportCommand(flags *globalFlags) *cobra.Command {
	var projectID, productID int64

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a product's stored images into a project",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if projectID <= 0 || productID <= 0 {
				return errors.New("--project and --product are required")
			}
			return withApp(cmd, flags, func(ctx context.Context, _ *app.App, syncer *labelsync.Syncer) error {
				result, err := syncer.ImportProductImages(ctx, projectID, productID)
				if err != nil {
					return err
				}
				return printJSON(cmd, result)
			})
		},
	}

	cmd.Flags().Int64Var(&projectID, "project", 0, "annotation project id")
	cmd.Flags().Int64Var(&productID, "product", 0, "catalog product id")
	return cmd
}

func newStatsCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Summarize the image bucket",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, flags, func(ctx context.Context, a *app.App, _ *labelsync.Syncer) error {
				stats, err := a.Images.Stats(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd, stats)
			})
		},
	}
}

func newTestConnectionCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "test-connection",
		Short: "Check the annotation token by listing projects",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, flags, func(ctx context.Context, _ *app.App, syncer *labelsync.Syncer) error {
				count, err := syncer.TestConnection(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd, map[string]any{"success": true, "project_count": count})
			})
		},
	}
}
