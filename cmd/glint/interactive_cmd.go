package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(interactiveCmd)
}

var interactiveCmd = &cobra.Command{
	Use:     "interactive",
	Aliases: []string{"i"},
	Short:   "Interactively query the index, one line of input per query",
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

		ctx := context.Background()
		scanner := bufio.NewScanner(os.Stdin)
		fmt.Print("> ")
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				fmt.Print("> ")
				continue
			}
			if line == "quit" || line == "exit" {
				return nil
			}

			rows, err := core.Query(ctx, buildQueryFilters(line), flagLimit)
			if err != nil {
				fmt.Fprintln(os.Stderr, "glint:", err)
			} else {
				printResults(rows)
				fmt.Printf("(%d results)\n", len(rows))
			}
			fmt.Print("> ")
		}
		return scanner.Err()
	},
}
