package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var flagForeground bool

func init() {
	watchCmd.Flags().BoolVar(&flagForeground, "foreground", false, "block until interrupted, then stop watching and save the index")
	rootCmd.AddCommand(watchCmd)
}

var watchCmd = &cobra.Command{
	Use:   "watch [volume...]",
	Short: "Start live USN/fsnotify watching for the given (or all) volumes",
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

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		volumes, err := selectVolumes(ctx, core, args)
		if err != nil {
			return err
		}
		if err := core.StartWatch(ctx, volumes); err != nil {
			return err
		}

		if !flagForeground {
			fmt.Println("watch stops when this command exits; use --foreground to keep watching")
			return nil
		}

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		fmt.Println("watching, press ctrl-c to stop")
		<-sigCh

		if err := core.StopWatch(); err != nil {
			return err
		}
		return core.SaveIndex(indexPath)
	},
}
