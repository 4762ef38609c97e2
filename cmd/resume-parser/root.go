package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const app = "resume-parser"

var rootCmd = &cobra.Command{
	Use:           app,
	Short:         "resume-parser is a cli for the resume parsing service",
	SilenceUsage:  true,
	SilenceErrors: false,
}

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringP("server", "s", "http://localhost:8000", "base URL of the parsing service")
	rootCmd.PersistentFlags().String("token", "", "bearer token for authenticated deployments")

	viper.SetEnvPrefix("RESUME_PARSER_CLI")
	viper.AutomaticEnv()
	viper.BindPFlag("server", rootCmd.PersistentFlags().Lookup("server"))
	viper.BindPFlag("token", rootCmd.PersistentFlags().Lookup("token"))
}
