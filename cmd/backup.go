package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/GurakG/Enclave-PSSC/core/backup"
	"github.com/GurakG/Enclave-PSSC/storage"
)

var (
	backupDir string
	dbPath    string

	backupCmd = &cobra.Command{
		Use:   "backup",
		Short: "Backup escrow database",
		Long: `Take a one-time backup of the escrow BadgerDB directory.

Backups are stored in the format: /backup_dir/yy-mm-dd-hh-mm/
Use --db-path to specify the BadgerDB directory to backup.
Use --dir to specify where to store the backups.
The running service can also take periodic backups on its own, see backup_dir
in the service config.`,
		Run: func(cmd *cobra.Command, args []string) {
			db, err := storage.NewWithPath(dbPath)
			if err != nil {
				fmt.Printf("Failed to open database: %v\n", err)
				os.Exit(1)
			}
			defer db.Close()

			backupFile, err := backup.NewService(nil, db, backupDir).PerformBackup()
			if err != nil {
				fmt.Printf("Backup failed: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("Backup completed successfully to %s\n", backupFile)
		},
	}

	restoreFile string

	restoreCmd = &cobra.Command{
		Use:   "restore",
		Short: "Restore escrow database from backup",
		Long: `Restore the escrow BadgerDB directory from a backup file.

Use --db-path to specify the BadgerDB directory to restore to.
Use --file to specify the backup file to restore from.`,
		Run: func(cmd *cobra.Command, args []string) {
			f, err := os.Open(restoreFile)
			if err != nil {
				fmt.Printf("Failed to open backup file: %v\n", err)
				os.Exit(1)
			}
			defer f.Close()

			db, err := storage.NewWithPath(dbPath)
			if err != nil {
				fmt.Printf("Failed to open database: %v\n", err)
				os.Exit(1)
			}
			defer db.Close()

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
			defer cancel()

			if err := db.Load(ctx, f); err != nil {
				fmt.Printf("Restore operation failed: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("Restore completed successfully\n")
		},
	}
)

func init() {
	backupCmd.Flags().StringVar(&dbPath, "db-path", "./data/badger", "Path to the BadgerDB directory")
	backupCmd.Flags().StringVar(&backupDir, "dir", "./backup", "Directory to store backups")
	rootCmd.AddCommand(backupCmd)

	restoreCmd.Flags().StringVar(&dbPath, "db-path", "./data/badger", "Path to the BadgerDB directory")
	restoreCmd.Flags().StringVar(&restoreFile, "file", "", "Backup file to restore from (required)")
	_ = restoreCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(restoreCmd)
}
