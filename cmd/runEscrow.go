package cmd

import (
	"log"

	"github.com/GurakG/Enclave-PSSC/escrow"

	"github.com/spf13/cobra"
)

var (
	runEscrowCmd = &cobra.Command{
		Use:   "escrow",
		Short: "Run escrow service",
		Long: `Initialize and run the escrow service.

Use --config=path-to-your-config-file. default is=./config/escrow.yaml `,
		Run: func(cmd *cobra.Command, args []string) {
			if err := escrow.RunWithConfig(config); err != nil {
				log.Fatalf("escrow service exited: %v", err)
			}
		},
	}
)

func init() {
	runEscrowCmd.Flags().StringVar(&config, "config", "./config/escrow.yaml", "path to escrow config file")
	rootCmd.AddCommand(runEscrowCmd)
}
