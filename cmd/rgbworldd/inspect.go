package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/edwinsyarief/rgbworld/internal/store"
)

var inspectTick uint64

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Print the live (entity, component) entries at a committed tick",
	RunE:  runInspect,
}

func init() {
	inspectCmd.Flags().Uint64Var(&inspectTick, "tick", 0, "tick to inspect (defaults to the store's current tick)")
}

func runInspect(cmd *cobra.Command, args []string) error {
	cfg := loadConfigOrDie()

	st, err := store.OpenStore(cfg.Store.DataDir)
	if err != nil {
		return err
	}
	defer st.Close()

	tick := inspectTick
	if tick == 0 {
		tick = st.CurrentTick()
	}

	entries, err := st.Snapshot(tick)
	if err != nil {
		return err
	}

	fmt.Printf("tick %d: %d live (entity, component) entries\n", tick, len(entries))
	for _, e := range entries {
		fmt.Printf("  entity=%d component=%d bytes=%d\n", e.Key.Entity, e.Key.Component, len(e.Value))
	}
	return nil
}
