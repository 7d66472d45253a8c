package cmd

import (
	"log"

	"github.com/GurakG/Enclave-PSSC/messaging"
	"github.com/GurakG/Enclave-PSSC/oracle"

	"github.com/spf13/cobra"
)

var (
	oracleConfig = "./config/oracle.yaml"

	runOracleCmd = &cobra.Command{
		Use:   "oracle",
		Short: "Run oracle node",
		Long: `Initialize and run an oracle federation node.

The standalone binary binds the in-process substrate, which is the local
development mode. A deployment embeds the oracle package with its real
messaging substrate.

Use --config=path-to-your-config-file. default is=./config/oracle.yaml `,
		Run: func(cmd *cobra.Command, args []string) {
			if err := oracle.RunWithConfig(oracleConfig, messaging.NewInProc()); err != nil {
				log.Fatalf("oracle node exited: %v", err)
			}
		},
	}
)

func init() {
	runOracleCmd.Flags().StringVar(&oracleConfig, "config", "./config/oracle.yaml", "path to oracle config file")
	rootCmd.AddCommand(runOracleCmd)
}
