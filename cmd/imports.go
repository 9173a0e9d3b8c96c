package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"smartsteps/storage"
)

var (
	importsDBPath string
	importsID     int64
)

var importsCmd = &cobra.Command{
	Use:   "imports",
	Short: "List, finalize, and delete stored imports.",
	Long: `Manage the imports stored in the local SQLite database.

An import starts as DRAFT. Finalizing marks it FINALIZED and makes it
eligible for payroll runs. Deleting an import removes all of its shift rows.`,
	Example: `
  # List all imports
  smartsteps imports list

  # Finalize a draft import
  smartsteps imports finalize --id 3

  # Delete an import and all of its rows
  smartsteps imports delete --id 3
`,
}

var importsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all imports.",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := storage.OpenSQLite(importsDBPath)
		if err != nil {
			return err
		}
		defer store.Close()

		imports, err := store.ListImports()
		if err != nil {
			return err
		}
		if len(imports) == 0 {
			fmt.Println("No imports found.")
			return nil
		}

		fmt.Printf("%-5s %-30s %-10s %-20s %6s %6s %6s %s\n",
			"ID", "FILE", "STATUS", "STRATEGY", "ROWS", "OK", "SKIP", "CREATED")
		for _, imp := range imports {
			fmt.Printf("%-5d %-30s %-10s %-20s %6d %6d %6d %s\n",
				imp.ID,
				imp.Filename,
				imp.Status,
				imp.Strategy,
				imp.RowCount,
				imp.ImportedCount,
				imp.SkippedCount,
				imp.CreatedAt.Format("2006-01-02 15:04"),
			)
		}
		return nil
	},
}

var importsFinalizeCmd = &cobra.Command{
	Use:   "finalize",
	Short: "Mark a draft import as FINALIZED.",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := storage.OpenSQLite(importsDBPath)
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.FinalizeImport(importsID); err != nil {
			return err
		}
		fmt.Printf("Import %d finalized\n", importsID)
		return nil
	},
}

var importsDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Delete an import and all of its shift rows.",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := storage.OpenSQLite(importsDBPath)
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.DeleteImport(importsID); err != nil {
			return err
		}
		fmt.Printf("Import %d deleted\n", importsID)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(importsCmd)
	importsCmd.AddCommand(importsListCmd)
	importsCmd.AddCommand(importsFinalizeCmd)
	importsCmd.AddCommand(importsDeleteCmd)

	importsCmd.PersistentFlags().StringVar(&importsDBPath, "db", "./smartsteps.db", "Path to local SQLite database")
	importsFinalizeCmd.Flags().Int64Var(&importsID, "id", 0, "Import id")
	importsDeleteCmd.Flags().Int64Var(&importsID, "id", 0, "Import id")
	_ = importsFinalizeCmd.MarkFlagRequired("id")
	_ = importsDeleteCmd.MarkFlagRequired("id")
}
