// Copyright © 2018 One Concern

package cmd

import (
	"io"

	"github.com/spf13/cobra"
)

var completionGenerators = map[string]func(io.Writer) error{
	"bash":       func(w io.Writer) error { return rootCmd.GenBashCompletionV2(w, true) },
	"zsh":        func(w io.Writer) error { return rootCmd.GenZshCompletion(w) },
	"fish":       func(w io.Writer) error { return rootCmd.GenFishCompletion(w, true) },
	"powershell": func(w io.Writer) error { return rootCmd.GenPowerShellCompletionWithDesc(w) },
}

var completionCmd = &cobra.Command{
	Use:   "completion {bash|zsh|fish|powershell}",
	Short: "Shell completions for cfs subcommands and flags",
	Long: `Prints a completion script for cfs on stdout.

Completions cover subcommands (cat, put, stat, blocks, rm, rebuild...) and
flags such as --root or --scheme.

  bash:       source <(cfs completion bash)
  zsh:        cfs completion zsh > "${fpath[1]}/_cfs"
  fish:       cfs completion fish > ~/.config/fish/completions/cfs.fish
  powershell: cfs completion powershell | Out-String | Invoke-Expression
`,
	ValidArgs: []string{"bash", "zsh", "fish", "powershell"},
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),

	Run: func(cmd *cobra.Command, args []string) {
		gen := completionGenerators[args[0]]
		if err := gen(cmd.OutOrStdout()); err != nil {
			wrapFatalln("cannot generate "+args[0]+" completions for cfs", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(completionCmd)
}
