package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"bcread/internal/bcread"
	"bcread/internal/ir"
)

var tripleCmd = &cobra.Command{
	Use:   "triple file.bc",
	Short: "Print the target triple of a bitcode file",
	Args:  cobra.ExactArgs(1),
	RunE:  runTriple,
}

func runTriple(cmd *cobra.Command, args []string) error {
	buf, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", args[0], err)
	}
	triple, err := bcread.Triple(ir.NewContext(), buf)
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", args[0], err)
	}
	fmt.Println(triple)
	return nil
}
