package timecardcli

import (
	"fmt"
	"os"

	"github.com/phillip-england/timecard/internal/credentials"
	"github.com/phillip-england/timecard/internal/sheet"
	"github.com/spf13/cobra"
)

func newEmployeesCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "employees",
		Short: "Maintain the Employees sheet",
		Args:  exactArgs(0, "<import|seed|rehash>"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return fmt.Errorf("%w: timecard employees <import|seed|rehash>", ErrUsage)
		},
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "import <file.xlsx|file.xls>",
			Short: "Add the employees of a roster workbook",
			Args:  exactArgs(1, "<file.xlsx|file.xls>"),
			RunE: func(cmd *cobra.Command, args []string) error {
				creds, err := opts.credentials()
				if err != nil {
					return err
				}
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				rows, err := sheet.ReadRows(f, args[0])
				if err != nil {
					return fmt.Errorf("read %s: %w", args[0], err)
				}
				result, err := creds.Import(cmd.Context(), rows)
				if err != nil {
					return err
				}
				fmt.Fprintf(opts.out, "added %d, skipped %d\n", result.Added, result.Skipped)
				return nil
			},
		},
		&cobra.Command{
			Use:   "seed <file.yaml>",
			Short: "Add the employees listed in a YAML roster",
			Args:  exactArgs(1, "<file.yaml>"),
			RunE: func(cmd *cobra.Command, args []string) error {
				creds, err := opts.credentials()
				if err != nil {
					return err
				}
				result, err := creds.SeedFromFile(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(opts.out, "added %d, skipped %d\n", result.Added, result.Skipped)
				return nil
			},
		},
		&cobra.Command{
			Use:   "rehash",
			Short: "Hash plaintext passwords typed into the workbook",
			Args:  exactArgs(0, ""),
			RunE: func(cmd *cobra.Command, args []string) error {
				creds, err := opts.credentials()
				if err != nil {
					return err
				}
				n, err := creds.RehashAll(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(opts.out, "rehashed %d\n", n)
				return nil
			},
		},
	)
	return cmd
}

func (o *options) credentials() (*credentials.Store, error) {
	cfg, logger, err := o.load()
	if err != nil {
		return nil, err
	}
	return credentials.NewStore(sheet.NewWorkbook(cfg.Workbook.Path), logger), nil
}
