package timecardcli

import (
	"fmt"
	"time"

	"github.com/phillip-england/timecard/internal/backup"
	"github.com/spf13/cobra"
)

func newBackupCommand(opts *options) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Write an xz-compressed copy of the workbook",
		Args:  exactArgs(0, "[--out path]"),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := opts.load()
			if err != nil {
				return err
			}
			dst := out
			if dst == "" {
				dst = backup.DefaultName(cfg.Workbook.Path, time.Now())
			}
			if err := backup.WriteFile(dst, cfg.Workbook.Path); err != nil {
				return err
			}
			fmt.Fprintf(opts.out, "wrote %s\n", dst)
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "backup path (default <workbook>.<timestamp>.xz)")

	cmd.AddCommand(&cobra.Command{
		Use:   "restore <file.xz>",
		Short: "Replace the workbook with a backup",
		Args:  exactArgs(1, "<file.xz>"),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := opts.load()
			if err != nil {
				return err
			}
			if err := backup.RestoreFile(args[0], cfg.Workbook.Path); err != nil {
				return err
			}
			fmt.Fprintf(opts.out, "restored %s from %s\n", cfg.Workbook.Path, args[0])
			return nil
		},
	})
	return cmd
}
