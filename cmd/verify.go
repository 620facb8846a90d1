package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/Darshan399-cloud/Kerala-Farm-Assistant/internal/service"
	"github.com/spf13/cobra"
)

// verifyCmd 核验扫描文本或二维码图片
var verifyCmd = &cobra.Command{
	Use:   "verify [scanned text]",
	Short: "Verify a scanned harvest card payload or QR image",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		imagePath, _ := cmd.Flags().GetString("image")
		if imagePath == "" && len(args) == 0 {
			return fmt.Errorf("either scanned text or --image is required")
		}

		_, _, ctr, err := setup(cmd)
		if err != nil {
			return err
		}
		defer ctr.Close()

		timeout, _ := cmd.Flags().GetDuration("timeout")
		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()

		svc := ctr.TraceabilityService()
		future := service.Go(ctx, func(ctx context.Context) (*service.VerificationResult, error) {
			if imagePath != "" {
				f, err := os.Open(imagePath)
				if err != nil {
					return nil, fmt.Errorf("failed to open image: %w", err)
				}
				defer f.Close()
				return svc.VerifyImage(ctx, f)
			}
			return svc.Verify(ctx, args[0])
		})

		result, verifyErr := future.Await(ctx)
		if result != nil {
			out, err := json.MarshalIndent(result, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
		}
		var notFound *service.NotFoundError
		if verifyErr != nil && errors.As(verifyErr, &notFound) {
			return fmt.Errorf("%s", notFound.Advice())
		}
		return verifyErr
	},
}

func init() {
	rootCmd.AddCommand(verifyCmd)
	verifyCmd.Flags().String("image", "", "Path to a PNG or JPEG image of the QR code")
	verifyCmd.Flags().Duration("timeout", 10*time.Second, "Verification timeout")
}
