// -- cmd/upload.go --
package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/dojoctl/internal/config"
	"github.com/xkilldash9x/dojoctl/internal/dojo"
	"github.com/xkilldash9x/dojoctl/internal/network"
	"github.com/xkilldash9x/dojoctl/internal/observability"
	"github.com/xkilldash9x/dojoctl/internal/orchestrator"
	"github.com/xkilldash9x/dojoctl/internal/reporting"
	"github.com/xkilldash9x/dojoctl/internal/ui"
)

// ErrRunFailed is returned when a run completed but at least one upload failed.
// The console has already reported the details.
var ErrRunFailed = errors.New("one or more uploads failed")

func newUploadCmd() *cobra.Command {
	uploadCmd := &cobra.Command{
		Use:   "upload",
		Short: "Upload every recognized scan report under a directory",
		Long: `Walks the scan directory, groups reports by their top-level component
directory and imports each one into DefectDojo. Products and engagements are
looked up by name and created when missing.`,
		Example: `  dojoctl upload --url https://dojo.example.com --token $TOKEN \
    --product CDS --engagement "CI Pipeline" --scan-dir ./security-reports
  dojoctl upload --separate-products --product CDS --engagement CI --scan-dir ./reports`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFromContext(cmd.Context())
			if err != nil {
				return err
			}
			return runUpload(cmd, cfg)
		},
	}

	f := uploadCmd.Flags()
	f.String("product", "", "product name, or the name prefix with --separate-products")
	f.String("engagement", "", "engagement name")
	f.String("scan-dir", "", "directory containing one sub-directory per component")
	f.Bool("component-tags", false, "tag each upload with its component name")
	f.Bool("separate-products", false, "create one product per component")
	f.Bool("no-reuse-engagement", false, "always create a new engagement instead of reusing today's")
	f.String("summary-file", "", "write a machine-readable run summary to this file")
	f.String("summary-format", "", "summary format (json, yaml)")
	return uploadCmd
}

func runUpload(cmd *cobra.Command, cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx := cmd.Context()
	logger := observability.GetLogger().Named("upload")
	console := ui.NewConsole(cmd.OutOrStdout())

	client, err := connect(cmd, cfg, logger)
	if err != nil {
		return err
	}

	orch, err := orchestrator.New(client, console, logger)
	if err != nil {
		return err
	}
	plan := orchestrator.Plan{
		ScanDir:          cfg.Upload.ScanDir,
		Product:          cfg.Upload.Product,
		Engagement:       cfg.Upload.Engagement,
		SeparateProducts: cfg.Upload.SeparateProducts,
		ComponentTags:    cfg.Upload.ComponentTags,
		ReuseEngagement:  !cfg.Upload.NoReuseEngagement,
	}
	summary, runErr := orch.Run(ctx, plan)

	if cfg.Upload.SummaryFile != "" {
		if err := writeSummary(cfg.Upload.SummaryFormat, cfg.Upload.SummaryFile, summary); err != nil {
			logger.Error("Failed to write run summary", zap.String("path", cfg.Upload.SummaryFile), zap.Error(err))
			return errors.Join(runErr, err)
		}
		logger.Info("Run summary written", zap.String("path", cfg.Upload.SummaryFile))
	}

	if runErr != nil {
		return runErr
	}
	if !summary.Passed() {
		return ErrRunFailed
	}
	return nil
}

// connect builds both HTTP clients, resolves the API token and returns a
// ready client. It prints the authentication progress lines.
func connect(cmd *cobra.Command, cfg *config.Config, logger *zap.Logger) (*dojo.Client, error) {
	console := ui.NewConsole(cmd.OutOrStdout())

	sessionCfg, err := network.NewSessionClientConfig(cfg.Network, logger.Named("session"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrPrecondition, err)
	}
	uploadCfg, err := network.NewUploadClientConfig(cfg.Network, logger.Named("import"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrPrecondition, err)
	}
	session := network.NewClient(sessionCfg)

	console.Info("Authenticating...")
	cred, err := dojo.ResolveCredential(cmd.Context(), session, cfg.Dojo.URL, dojo.Credentials{
		Token:    cfg.Dojo.Token,
		Username: cfg.Dojo.Username,
		Password: cfg.Dojo.Password,
	})
	if err != nil {
		return nil, err
	}
	switch cred.Source {
	case dojo.SourceLogin:
		console.Success("Authenticated via username/password, token: %s", cred.Masked())
	default:
		console.Success("Using provided API token: %s", cred.Masked())
	}

	return dojo.NewClient(cfg.Dojo.URL, cred, session,
		dojo.WithUploadClient(network.NewClient(uploadCfg)),
		dojo.WithLogger(logger.Named("dojo")),
	), nil
}

func writeSummary(format, path string, summary *orchestrator.Summary) (err error) {
	r, err := reporting.New(format, path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := r.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close summary file: %w", cerr)
		}
	}()
	return r.Write(summary)
}
