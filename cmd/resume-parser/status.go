package main

import (
	"net/http"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var statusCmd = &cobra.Command{
	Use:   "status <jobId>",
	Short: "Show the state of an async parse job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getJSON("/parse-resume-async/status/" + args[0])
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show service statistics (budget, cache, providers, jobs)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getJSON("/stats")
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(statsCmd)
}

func getJSON(route string) error {
	req, err := http.NewRequest(http.MethodGet, viper.GetString("server")+route, nil)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	return doRequest(req)
}
