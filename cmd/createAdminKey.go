package cmd

import (
	"log"

	"github.com/GurakG/Enclave-PSSC/escrow"

	"github.com/spf13/cobra"
)

var (
	adminKeyOption = escrow.CreateAdminKeyOption{}
	createAdminKey = &cobra.Command{
		Use:   "create-admin-key",
		Short: "Create a long live JWT key for the ops HTTP surface",
		Long:  `Create a JWT key that grants access to the admin endpoints of the escrow service. This key cannot touch the protocol itself, only the read-only admin views`,
		Run: func(cmd *cobra.Command, args []string) {
			if err := escrow.CreateAdminKey(config, adminKeyOption); err != nil {
				log.Fatalf("cannot create admin key: %v", err)
			}
		},
	}
)

func init() {
	createAdminKey.Flags().StringVarP(&(adminKeyOption.Subject), "subject", "s", "admin", "subject name to be use for jwt admin key")
	createAdminKey.Flags().Int64Var(&(adminKeyOption.ExpiredAt), "expired-at", 0, "unix timestamp the key expires at, default is 6 months out")
	rootCmd.AddCommand(createAdminKey)
}
