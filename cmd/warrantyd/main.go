// Command warrantyd schedules and dispatches warranty expiration reminders.
//
// Usage:
//
//	warrantyd serve     # scheduler + admin HTTP
//	warrantyd trigger   # ask the running server for one manual pass
//	warrantyd status    # print leader resolution
package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:          "warrantyd",
		Short:        "Warranty expiration notification scheduler",
		SilenceUsage: true,
	}

	root.AddCommand(serveCmd())
	root.AddCommand(triggerCmd())
	root.AddCommand(statusCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
