package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"eduquest-progress/internal/config"
	"eduquest-progress/internal/upload"
)

// NewUploadCmd sends a content file to the configured upload endpoint.
func NewUploadCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload a content file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if cfg.Upload.URL == "" {
				return fmt.Errorf("upload url not configured")
			}
			accepted := cfg.Upload.Accepted
			if len(accepted) == 0 {
				accepted = upload.DefaultAcceptedTypes
			}
			client := upload.NewClient(cfg.Upload.URL, cfg.Upload.MaxSizeMB, accepted, 5*time.Minute)
			file, err := client.UploadFile(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "uploaded %s as %s (%d bytes)\n", file.Name, file.StoredName, file.Size)
			return nil
		},
	}
}
