package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/comalice/scxml"
)

var (
	validateStrictNamespace bool
	validateShowWarnings    bool
)

var validateCmd = &cobra.Command{
	Use:   "validate <chart.scxml>",
	Short: "Parse and statically validate a chart without running it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		doc, err := scxml.Parse(f, scxml.ParseOptions{StrictNamespace: validateStrictNamespace})
		if err != nil {
			return fmt.Errorf("invalid chart: %w", err)
		}
		_, warnings, err := scxml.Validate(doc)
		if err != nil {
			return fmt.Errorf("invalid chart: %w", err)
		}
		fmt.Printf("%s: valid (%d states)\n", args[0], len(doc.States)-1)
		if validateShowWarnings {
			for _, w := range warnings {
				fmt.Printf("warning: %s\n", w)
			}
		}
		return nil
	},
}

func init() {
	validateCmd.Flags().BoolVar(&validateStrictNamespace, "strict-namespace", false, "reject charts whose root xmlns isn't exactly the SCXML namespace")
	validateCmd.Flags().BoolVar(&validateShowWarnings, "warnings", false, "print non-fatal validation warnings")
}
