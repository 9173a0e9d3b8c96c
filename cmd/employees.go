package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"smartsteps/storage"
	"smartsteps/timelog"
)

var (
	employeesDBPath string
	employeeName    string
	employeeRef     string
	employeeEmail   string
	employeeRate    float64
)

var employeesCmd = &cobra.Command{
	Use:   "employees",
	Short: "Manage the employee directory.",
	Long: `Manage the employee directory used to link imported shift rows and to
price payroll runs. Imported rows are matched by external reference first,
then by case-insensitive name.`,
	Example: `
  # Add an employee
  smartsteps employees add --name "Dana Reyes" --ref EMP-104 --email dana@example.com --rate 21.50

  # List employees
  smartsteps employees list
`,
}

var employeesAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add an employee.",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := storage.OpenSQLite(employeesDBPath)
		if err != nil {
			return err
		}
		defer store.Close()

		employee := &timelog.Employee{
			Name:        employeeName,
			ExternalRef: employeeRef,
			Email:       employeeEmail,
			HourlyRate:  employeeRate,
		}
		if err := store.CreateEmployee(employee); err != nil {
			return err
		}
		fmt.Printf("Employee %d created: %s\n", employee.ID, employee.Name)
		return nil
	},
}

var employeesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all employees.",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := storage.OpenSQLite(employeesDBPath)
		if err != nil {
			return err
		}
		defer store.Close()

		employees, err := store.ListEmployees()
		if err != nil {
			return err
		}
		if len(employees) == 0 {
			fmt.Println("No employees found.")
			return nil
		}

		fmt.Printf("%-5s %-25s %-12s %-30s %8s\n", "ID", "NAME", "REF", "EMAIL", "RATE")
		for _, employee := range employees {
			fmt.Printf("%-5d %-25s %-12s %-30s %8.2f\n",
				employee.ID,
				employee.Name,
				employee.ExternalRef,
				employee.Email,
				employee.HourlyRate,
			)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(employeesCmd)
	employeesCmd.AddCommand(employeesAddCmd)
	employeesCmd.AddCommand(employeesListCmd)

	employeesCmd.PersistentFlags().StringVar(&employeesDBPath, "db", "./smartsteps.db", "Path to local SQLite database")
	employeesAddCmd.Flags().StringVar(&employeeName, "name", "", "Employee name")
	employeesAddCmd.Flags().StringVar(&employeeRef, "ref", "", "External reference from source exports")
	employeesAddCmd.Flags().StringVar(&employeeEmail, "email", "", "Email address")
	employeesAddCmd.Flags().Float64Var(&employeeRate, "rate", 0, "Hourly rate")
	_ = employeesAddCmd.MarkFlagRequired("name")
}
