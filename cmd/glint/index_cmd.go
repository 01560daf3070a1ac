package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/padiauj/glint"
	"github.com/padiauj/glint/backend"
	"github.com/padiauj/glint/orchestrator"
)

func init() {
	rootCmd.AddCommand(indexCmd)
}

var indexCmd = &cobra.Command{
	Use:   "index [volume...]",
	Short: "Build (or rebuild) the index from a full volume scan",
	Long: `index runs a full scan of the given volumes (or every volume the
backend reports if none are named) and writes a snapshot to --index.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		core, err := newCore()
		if err != nil {
			return err
		}
		indexPath, err := resolveIndexPath()
		if err != nil {
			return err
		}

		ctx := context.Background()
		volumes, err := selectVolumes(ctx, core, args)
		if err != nil {
			return err
		}
		if len(volumes) == 0 {
			return fmt.Errorf("no volumes to index")
		}

		unsub := core.Handle().Subscribe(func(p orchestrator.Progress) {
			if p.Total > 0 {
				fmt.Printf("\r%s: %s %d/%d", p.Phase, p.Volume, p.Processed, p.Total)
			}
		})
		defer unsub()

		if err := core.BuildIndex(ctx, volumes, indexPath); err != nil {
			return err
		}
		fmt.Printf("\nindexed %d records across %d volume(s) -> %s\n",
			core.Handle().IndexCount(), len(volumes), indexPath)
		return nil
	},
}

func selectVolumes(ctx context.Context, core *glint.Core, names []string) ([]backend.VolumeInfo, error) {
	all, err := core.ListVolumes(ctx)
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return all, nil
	}
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}
	var out []backend.VolumeInfo
	for _, v := range all {
		if want[v.Letter] {
			out = append(out, v)
		}
	}
	return out, nil
}
