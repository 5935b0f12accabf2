package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Format string // "text" | "json" | "csv"
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json", "csv"}

// NewRootCommand creates the records-admin root command.
func NewRootCommand(factory RuntimeFactory) *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "records-admin",
		Short: "Administer the academic records stores",
		Long: `Administer the identity, academic and support stores.

Each store is a separate database. Commands that touch more than one store
write them in order and never inside a shared transaction.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (text|json|csv)")

	cmd.AddCommand(NewMigrateCommand(opts, factory))
	cmd.AddCommand(NewBootstrapCommand(opts, factory))
	cmd.AddCommand(NewReportCommand(opts, factory))
	cmd.AddCommand(NewVerifyRefsCommand(opts, factory))
	cmd.AddCommand(NewStatusCommand(opts, factory))

	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// withRuntime opens the runtime, runs fn and closes it.
func withRuntime(cmd *cobra.Command, factory RuntimeFactory, fn func(Runtime) error) error {
	rt, err := factory(cmd.Context())
	if err != nil {
		return err
	}
	defer rt.Close() //nolint:errcheck
	return fn(rt)
}
