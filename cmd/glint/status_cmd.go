package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the current indexing/watch state",
	RunE: func(cmd *cobra.Command, args []string) error {
		core, err := newCore()
		if err != nil {
			return err
		}
		h := core.Handle()
		fmt.Printf("state:         %s\n", h.State())
		fmt.Printf("status:        %s\n", h.StatusMessage())
		fmt.Printf("indexing:      %t\n", h.IsIndexing())
		fmt.Printf("progress:      %d%%\n", h.IndexProgress())
		fmt.Printf("current:       %s\n", h.CurrentVolume())
		fmt.Printf("volumes:       %d\n", h.TotalVolumes())
		fmt.Printf("index records: %d\n", h.IndexCount())
		return nil
	},
}
