package main

import (
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"bcread/internal/version"
)

var rootCmd = &cobra.Command{
	Use:   "bcread",
	Short: "Legacy bitcode module inspector",
	Long:  `bcread reads generation-3.0 bitcode containers and prints what they hold`,
}

func main() {
	rootCmd.Version = version.Version

	rootCmd.AddCommand(dumpCmd)
	rootCmd.AddCommand(tripleCmd)
	rootCmd.AddCommand(versionCmd)

	rootCmd.PersistentFlags().String("color", "auto", "colorize output (auto|on|off)")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
