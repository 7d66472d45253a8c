package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/GurakG/Enclave-PSSC/escrow"
	"github.com/GurakG/Enclave-PSSC/storage"
)

var (
	statusCmd = &cobra.Command{
		Use:   "status",
		Short: "Display system status",
		Long:  `Display status information about deposited secrets and registered oracles in the database`,
		Run: func(cmd *cobra.Command, args []string) {
			dbPath := "./data/badger"
			out := cmd.OutOrStdout()

			fmt.Fprintf(out, "📊 System Status Report\n")
			fmt.Fprintf(out, "======================\n\n")
			fmt.Fprintf(out, "💾 Using database path: %s\n\n", dbPath)

			db, err := storage.NewWithPath(dbPath)
			if err != nil {
				fmt.Fprintf(out, "❌ Failed to initialize database: %v\n", err)
				fmt.Fprintf(out, "   💡 Make sure the escrow service has been started at least once\n")
				os.Exit(1)
			}
			defer db.Close()

			store := escrow.NewSecretStore(db)
			registry := escrow.NewOracleRegistry(db)

			fmt.Fprintf(out, "💾 Database Status:\n")
			fmt.Fprintf(out, "   Secrets in escrow: %d\n", store.Count())
			fmt.Fprintf(out, "   Registered oracles: %d\n\n", registry.Count())

			oracles := registry.ListAll()
			if len(oracles) > 0 {
				fmt.Fprintf(out, "📋 Registered Oracles:\n")
				for i, entry := range oracles {
					if i >= 10 {
						fmt.Fprintf(out, "   ... and %d more oracles\n", len(oracles)-10)
						break
					}
					fmt.Fprintf(out, "   %d. %s (%s)\n", i+1, entry.Key, entry.Address)
				}
				fmt.Fprintf(out, "\n")
			}

			fmt.Fprintf(out, "💡 Troubleshooting:\n")
			if len(oracles) == 0 {
				fmt.Fprintf(out, "   ❌ No oracles registered\n")
				fmt.Fprintf(out, "   ✅ Start an oracle node so contract-conditioned disclosures can resolve\n")
			} else {
				fmt.Fprintf(out, "   ✅ %d oracles registered\n", len(oracles))
				fmt.Fprintf(out, "   ✅ Contract-conditioned disclosures will fan out to all of them\n")
			}
			fmt.Fprintf(out, "   📝 Check escrow logs for 'disclosure deferred to oracle federation' entries\n")
		},
	}
)

func init() {
	rootCmd.AddCommand(statusCmd)
}
