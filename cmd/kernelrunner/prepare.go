package main

import (
	"fmt"

	"github.com/codefionn/kernelrunner/internal/prepare"
	"github.com/spf13/cobra"
)

var prepareCmd = &cobra.Command{
	Use:   "prepare <chat-id>",
	Short: "Stage a chat's attached files into its session workspace",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := openDeps()
		if err != nil {
			return err
		}
		defer d.close()

		stage := prepare.NewStage(d.chats, d.files, d.blobs, cfg.DataDir)
		report := stage.Prepare(cmd.Context(), args[0])

		fmt.Printf("chat %s: %d files found, %d prepared, %d skipped, %d errors\n",
			report.ChatID, report.TotalFiles, len(report.Prepared), len(report.Skipped), len(report.Errors))
		for _, file := range report.Prepared {
			fmt.Printf("  prepared %s -> %s\n", file.Name, file.TargetPath)
		}
		for _, file := range report.Skipped {
			fmt.Printf("  skipped %s (%s)\n", file.Name, file.Reason)
		}
		for _, msg := range report.Errors {
			fmt.Printf("  error: %s\n", msg)
		}

		if !report.Success {
			return fmt.Errorf("preparation failed for chat %s", report.ChatID)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(prepareCmd)
}
