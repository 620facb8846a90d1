package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// qrCmd 重新生成收获卡二维码
var qrCmd = &cobra.Command{
	Use:   "qr <card_id>",
	Short: "Regenerate the QR code image for a harvest card",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, _, ctr, err := setup(cmd)
		if err != nil {
			return err
		}
		defer ctr.Close()

		persist, _ := cmd.Flags().GetBool("persist")
		result, err := ctr.TraceabilityService().RegenerateQR(cmd.Context(), args[0], persist)
		if err != nil {
			return err
		}

		out, _ := cmd.Flags().GetString("out")
		if out == "" {
			out = result.CardID + ".png"
		}
		if err := os.WriteFile(out, result.PNG, 0o644); err != nil {
			return fmt.Errorf("failed to write qr image: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%s\n%s\n", result.PayloadText, out)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(qrCmd)
	qrCmd.Flags().String("out", "", "Output PNG path (default: <card_id>.png)")
	qrCmd.Flags().Bool("persist", false, "Store the image on the harvest card record")
}
