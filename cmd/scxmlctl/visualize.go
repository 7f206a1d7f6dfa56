package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/comalice/scxml"
	"github.com/comalice/scxml/internal/production"
)

var visualizeFormat string

var visualizeCmd = &cobra.Command{
	Use:   "visualize <chart.scxml>",
	Short: "Export a chart's state tree as Graphviz DOT or JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		doc, err := scxml.Parse(f, scxml.ParseOptions{})
		if err != nil {
			return fmt.Errorf("invalid chart: %w", err)
		}

		v := &production.DefaultVisualizer{}
		switch visualizeFormat {
		case "dot":
			fmt.Print(v.ExportDOT(doc, nil))
		case "json":
			data, err := v.ExportJSON(doc)
			if err != nil {
				return err
			}
			fmt.Println(string(data))
		default:
			return fmt.Errorf("unknown format %q, want dot or json", visualizeFormat)
		}
		return nil
	},
}

func init() {
	visualizeCmd.Flags().StringVar(&visualizeFormat, "format", "dot", "output format: dot or json")
}
