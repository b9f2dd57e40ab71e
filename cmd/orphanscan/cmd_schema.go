package main

import (
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the declared schema, with relationships, as YAML",
	Long: `schema prints the schema the scanner works from: the schema file when one
is configured, otherwise what the live database reports. The output can be
saved and used as a schema file.`,
	Args: cobra.NoArgs,
	RunE: runSchema,
}

func init() {
	rootCmd.AddCommand(schemaCmd)
}

func runSchema(cmd *cobra.Command, _ []string) error {
	return withApp(cmd.Context(), func(a *app) error {
		s, err := a.declaredSchema(cmd.Context())
		if err != nil {
			return err
		}
		enc := yaml.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent(2)
		if err := enc.Encode(s); err != nil {
			return err
		}
		return enc.Close()
	})
}
