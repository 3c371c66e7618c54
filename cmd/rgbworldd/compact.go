package main

import (
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/edwinsyarief/rgbworld/internal/store"
)

var (
	compactBeforeTick uint64
	compactKeepEveryN int
	compactDestDir    string
)

var compactCmd = &cobra.Command{
	Use:   "compact",
	Short: "Rewrite a store's data directory, dropping unreferenced historical pages",
	RunE:  runCompact,
}

func init() {
	compactCmd.Flags().Uint64Var(&compactBeforeTick, "before-tick", 0, "ticks at or after this value are kept in full (required)")
	compactCmd.Flags().IntVar(&compactKeepEveryN, "keep-every", 0, "sampling stride for ticks before --before-tick (defaults to store.compactKeepEveryN)")
	compactCmd.Flags().StringVar(&compactDestDir, "dest", "", "destination data directory for the compacted store (required)")
	_ = compactCmd.MarkFlagRequired("before-tick")
	_ = compactCmd.MarkFlagRequired("dest")
}

func runCompact(cmd *cobra.Command, args []string) error {
	cfg := loadConfigOrDie()

	keepEveryN := compactKeepEveryN
	if keepEveryN <= 0 {
		keepEveryN = cfg.Store.CompactKeepEveryN
	}

	src, err := store.OpenStore(cfg.Store.DataDir)
	if err != nil {
		return err
	}
	defer src.Close()

	beforeSize := dirSizeOrZero(cfg.Store.DataDir)

	dest, err := src.Compact(compactBeforeTick, keepEveryN, compactDestDir)
	if err != nil {
		return err
	}
	defer dest.Close()

	afterSize := dirSizeOrZero(compactDestDir)
	logger.Info().
		Str("from", humanize.Bytes(uint64(beforeSize))).
		Str("to", humanize.Bytes(uint64(afterSize))).
		Uint64("beforeTick", compactBeforeTick).
		Int("keepEveryN", keepEveryN).
		Msg("compact complete")
	return nil
}
