package cmd

import (
	"fmt"

	"github.com/gophertribe/devtool/test"
	"github.com/spf13/cobra"
)

// QualityCmds returns the test, lint and integration-test commands.
func QualityCmds() []*cobra.Command {
	return []*cobra.Command{
		suite("test", "Run unit tests (simulated bus, no hardware needed)", test.Test),
		suite("lint", "Run linting", test.Lint),
		suite("integration-test", "Run tests against a connected bus adapter", test.Integ),
	}
}

func suite(use, short string, run func() error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := run(); err != nil {
				return fmt.Errorf("%s failed: %w", use, err)
			}
			return nil
		},
	}
}
