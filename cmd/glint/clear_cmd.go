package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(clearCmd)
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete the index snapshot, forcing a full rescan on next build",
	RunE: func(cmd *cobra.Command, args []string) error {
		indexPath, err := resolveIndexPath()
		if err != nil {
			return err
		}
		if err := os.Remove(indexPath); err != nil {
			if os.IsNotExist(err) {
				fmt.Println("no index snapshot to clear")
				return nil
			}
			return err
		}
		fmt.Println("cleared", indexPath)
		return nil
	},
}
