package main

import (
	"fmt"

	"github.com/codefionn/kernelrunner/internal/chatstore"
	"github.com/codefionn/kernelrunner/internal/prompt"
	"github.com/spf13/cobra"
)

var flagBasePrompt string

var promptCmd = &cobra.Command{
	Use:   "prompt <chat-id>",
	Short: "Print the code-interpreter prompt augmented with the chat's attached files",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := openDeps()
		if err != nil {
			return err
		}
		defer d.close()

		chat, err := d.chats.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		files := chatstore.AttachedFiles(chat)
		fmt.Println(prompt.Augment(flagBasePrompt, files, args[0]))
		return nil
	},
}

func init() {
	promptCmd.Flags().StringVar(&flagBasePrompt, "base", "", "base prompt to augment")
	rootCmd.AddCommand(promptCmd)
}
