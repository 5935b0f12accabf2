package cli

import (
	"encoding/csv"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/noah-isme/academic-records/internal/service"
)

// ErrDanglingReferences is returned by verify-refs when any reference is
// unresolved, so scripts can rely on the exit status.
var ErrDanglingReferences = errors.New("dangling user references found")

// tabularOnly rejects --format csv on commands whose output is not a table
// of report rows.
func tabularOnly(opts *RootOptions) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if opts.Format == "csv" {
			return fmt.Errorf("%s: csv output is only available for report", cmd.Name())
		}
		return nil
	}
}

// NewMigrateCommand applies embedded schemas.
func NewMigrateCommand(opts *RootOptions, factory RuntimeFactory) *cobra.Command {
	var store string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			stores, err := service.ParseStores(store)
			if err != nil {
				return err
			}
			return withRuntime(cmd, factory, func(rt Runtime) error {
				for _, s := range stores {
					if err := rt.Migrate(cmd.Context(), s); err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "migrated %s\n", s)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&store, "store", "all", "store to migrate (identity|academic|support|all)")
	return cmd
}

// NewBootstrapCommand seeds the stores idempotently.
func NewBootstrapCommand(opts *RootOptions, factory RuntimeFactory) *cobra.Command {
	var store string
	cmd := &cobra.Command{
		Use:     "bootstrap",
		PreRunE: tabularOnly(opts),
		Short:   "Seed the stores with the canonical data set",
		Long: `Seed the stores with the canonical data set.

Identity and academic rows are matched by natural key, so running the command
again changes nothing and rows added by others are kept. Support logs are
appended on every run. Seeding academic or support alone needs an identity
store that was bootstrapped before.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			stores, err := service.ParseStores(store)
			if err != nil {
				return err
			}
			return withRuntime(cmd, factory, func(rt Runtime) error {
				summary, err := rt.Bootstrap(cmd.Context(), stores)
				if err != nil {
					return err
				}
				if opts.Format == "json" {
					return writeJSON(cmd.OutOrStdout(), summary)
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintf(w, "ENTITY\tCREATED\tEXISTING\n")
				for _, name := range summary.EntityNames() {
					c := summary.Entities[name]
					fmt.Fprintf(w, "%s\t%d\t%d\n", name, c.Created, c.Existing)
				}
				if err := w.Flush(); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "run %s finished in %s\n", summary.RunID, summary.Duration)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&store, "store", "all", "store to bootstrap (identity|academic|support|all)")
	return cmd
}

// NewReportCommand prints the enrollment report.
func NewReportCommand(opts *RootOptions, factory RuntimeFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "report",
		Short: "Print the enrollment report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, factory, func(rt Runtime) error {
				report, err := rt.Report(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				switch opts.Format {
				case "csv":
					w := csv.NewWriter(out)
					_ = w.Write([]string{"student_name", "career_name", "total_subjects"})
					for _, row := range report.Report {
						_ = w.Write([]string{row.StudentName, row.CareerName, strconv.Itoa(row.TotalSubjects)})
					}
					w.Flush()
					return w.Error()
				case "json":
					return writeJSON(out, report)
				}
				w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintf(w, "STUDENT\tCAREER\tSUBJECTS\n")
				for _, row := range report.Report {
					fmt.Fprintf(w, "%s\t%s\t%d\n", row.StudentName, row.CareerName, row.TotalSubjects)
				}
				if err := w.Flush(); err != nil {
					return err
				}
				fmt.Fprintf(out, "%d students\n", report.TotalStudents)
				return nil
			})
		},
	}
}

// NewVerifyRefsCommand reports academic rows whose user id does not resolve.
func NewVerifyRefsCommand(opts *RootOptions, factory RuntimeFactory) *cobra.Command {
	return &cobra.Command{
		Use:     "verify-refs",
		PreRunE: tabularOnly(opts),
		Short:   "Check academic user references against the identity store",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, factory, func(rt Runtime) error {
				dangling, err := rt.DanglingRefs(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if opts.Format == "json" {
					if err := writeJSON(out, dangling); err != nil {
						return err
					}
				} else if len(dangling) == 0 {
					fmt.Fprintln(out, "all user references resolve")
				} else {
					w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
					fmt.Fprintf(w, "STORE\tTABLE\tROW\tEMAIL\tUSER\tREASON\n")
					for _, d := range dangling {
						fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%d\t%s\n", d.Store, d.Table, d.RowID, d.Email, d.UserID, d.Reason)
					}
					if err := w.Flush(); err != nil {
						return err
					}
				}
				if len(dangling) > 0 {
					return fmt.Errorf("%w: %d", ErrDanglingReferences, len(dangling))
				}
				return nil
			})
		},
	}
}

// NewStatusCommand prints row counts per store.
func NewStatusCommand(opts *RootOptions, factory RuntimeFactory) *cobra.Command {
	return &cobra.Command{
		Use:     "status",
		PreRunE: tabularOnly(opts),
		Short:   "Print row counts of every store",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, factory, func(rt Runtime) error {
				counts, err := rt.Counts(cmd.Context())
				if err != nil {
					return err
				}
				if opts.Format == "json" {
					return writeJSON(cmd.OutOrStdout(), counts)
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintf(w, "STORE\tTABLE\tROWS\n")
				for _, store := range []string{"identity", "academic", "support"} {
					tables := make([]string, 0, len(counts[store]))
					for table := range counts[store] {
						tables = append(tables, table)
					}
					sort.Strings(tables)
					for _, table := range tables {
						fmt.Fprintf(w, "%s\t%s\t%d\n", store, table, counts[store][table])
					}
				}
				return w.Flush()
			})
		},
	}
}
