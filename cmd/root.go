package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var (
	config  = "./config/escrow.yaml"
	rootCmd = &cobra.Command{
		Use:   "enclave-pssc",
		Short: "Enclave PSSC CLI",
		Long: `CLI to run and interact with the confidential escrow service.
Each sub command runs a single service

Such as "enclave-pssc escrow" or "enclave-pssc oracle" and so on
`,
	}
)

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&config, "config", "c", "config/escrow.yaml", "Path to config file")
}
