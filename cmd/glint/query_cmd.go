package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/padiauj/glint"
)

func init() {
	rootCmd.AddCommand(queryCmd)
}

var queryCmd = &cobra.Command{
	Use:   "query <text>",
	Short: "Run a single query against the index and print matches",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		core, err := newCore()
		if err != nil {
			return err
		}
		indexPath, err := resolveIndexPath()
		if err != nil {
			return err
		}
		if err := core.LoadIndex(indexPath); err != nil {
			return err
		}

		text := buildQueryFilters(strings.Join(args, " "))
		rows, err := core.Query(context.Background(), text, flagLimit)
		if err != nil {
			return err
		}
		printResults(rows)
		return nil
	},
}

func printResults(rows []glint.ResultRow) {
	for _, r := range rows {
		fmt.Println(r.FullPath)
	}
}
