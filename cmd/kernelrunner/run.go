package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/codefionn/kernelrunner/internal/gateway"
	"github.com/codefionn/kernelrunner/internal/workspace"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var (
	flagChatID  string
	flagUserID  string
	flagKernel  string
	flagTimeout int
)

var (
	sectionStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	stderrStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	fileStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
)

var runCmd = &cobra.Command{
	Use:   "run [file]",
	Short: "Execute code from a file or stdin",
	Long: `Execute code on the gateway. Reads the code from the given file, or
from stdin when no file (or "-") is given.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		code, err := readCode(args)
		if err != nil {
			return err
		}

		d, err := openDeps()
		if err != nil {
			return err
		}
		defer d.close()

		timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
		if flagTimeout > 0 {
			timeout = time.Duration(flagTimeout) * time.Second
		}
		kernel := cfg.KernelName
		if flagKernel != "" {
			kernel = flagKernel
		}

		pred := workspace.TrackPredicate{
			FormatKeywords: cfg.FormatKeywords,
			SaveKeywords:   cfg.SaveKeywords,
		}
		session := gateway.NewSession(gateway.Options{
			GatewayURL:        cfg.GatewayURL,
			Code:              code,
			Token:             cfg.Token,
			Timeout:           timeout,
			KernelName:        kernel,
			Username:          cfg.Username,
			ChatID:            flagChatID,
			UserID:            flagUserID,
			DataDir:           cfg.DataDir,
			KernelInitCode:    cfg.KernelInitCode,
			Chats:             d.chats,
			Files:             d.files,
			Blobs:             d.blobs,
			TrackedExtensions: cfg.TrackedExtensions,
			TrackPredicate:    &pred,
		})

		result := session.Run(cmd.Context())
		printResult(result)
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&flagChatID, "chat", "", "chat ID for file staging and tracking")
	runCmd.Flags().StringVar(&flagUserID, "user", "", "user ID owning generated files")
	runCmd.Flags().StringVar(&flagKernel, "kernel", "", "kernel name (default from config)")
	runCmd.Flags().IntVar(&flagTimeout, "timeout", 0, "per-receive timeout in seconds")
	rootCmd.AddCommand(runCmd)
}

func readCode(args []string) (string, error) {
	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read code from stdin: %w", err)
		}
		return string(data), nil
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", args[0], err)
	}
	return string(data), nil
}

func printResult(result *gateway.Result) {
	if result.Stdout != "" {
		fmt.Println(sectionStyle.Render("stdout"))
		fmt.Println(result.Stdout)
	}
	if result.Result != "" {
		fmt.Println(sectionStyle.Render("result"))
		fmt.Println(result.Result)
	}
	if result.Stderr != "" {
		fmt.Println(sectionStyle.Render("stderr"))
		fmt.Println(stderrStyle.Render(result.Stderr))
	}
	if len(result.Files) > 0 {
		fmt.Println(sectionStyle.Render("files"))
		for _, file := range result.Files {
			fmt.Println(fileStyle.Render(fmt.Sprintf("  %s (%s) %s", file.Name, humanize.Bytes(uint64(file.Size)), file.URL)))
		}
	}
}
