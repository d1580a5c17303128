package commands

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dimajoyti/ape/migrations"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate [up|down]",
	Short: "Apply or roll back the State Store's schema migrations",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		direction := args[0]
		if direction != "up" && direction != "down" {
			return fmt.Errorf("unknown migration direction %q, want \"up\" or \"down\"", direction)
		}

		entries, err := migrations.Files.ReadDir(".")
		if err != nil {
			return fmt.Errorf("reading embedded migrations: %w", err)
		}

		var names []string
		for _, entry := range entries {
			if strings.HasSuffix(entry.Name(), "."+direction+".sql") {
				names = append(names, entry.Name())
			}
		}
		sort.Strings(names)
		if direction == "down" {
			// Roll back newest-first.
			for i, j := 0, len(names)-1; i < j; i, j = i+1, j-1 {
				names[i], names[j] = names[j], names[i]
			}
		}

		for _, name := range names {
			contents, err := migrations.Files.ReadFile(name)
			if err != nil {
				return fmt.Errorf("reading migration %s: %w", name, err)
			}
			log.WithField("migration", name).Info("applying migration")
			if _, err := db.Exec(string(contents)); err != nil {
				return fmt.Errorf("applying migration %s: %w", name, err)
			}
		}

		fmt.Printf("Applied %d migration(s) (%s)\n", len(names), direction)
		return nil
	},
}
