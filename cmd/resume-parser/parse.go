package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var parseCmd = &cobra.Command{
	Use:   "parse <file>",
	Short: "Parse a resume file through the service",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fresh, _ := cmd.Flags().GetBool("fresh")
		async, _ := cmd.Flags().GetBool("async")
		return runParse(args[0], fresh, async)
	},
}

func init() {
	rootCmd.AddCommand(parseCmd)

	parseCmd.Flags().Bool("fresh", false, "bypass the result cache")
	parseCmd.Flags().Bool("async", false, "submit as an async job and print the job id")
}

func runParse(path string, fresh, async bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "read input file")
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return errors.Wrap(err, "build multipart body")
	}
	if _, err := fw.Write(data); err != nil {
		return errors.Wrap(err, "build multipart body")
	}
	if err := mw.Close(); err != nil {
		return errors.Wrap(err, "build multipart body")
	}

	route := "/parse-resume"
	if async {
		route = "/parse-resume-async"
	}
	url := viper.GetString("server") + route
	if fresh {
		url += "?fresh=true"
	}

	req, err := http.NewRequest(http.MethodPost, url, &body)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return doRequest(req)
}

func doRequest(req *http.Request) error {
	if token := viper.GetString("token"); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	client := &http.Client{Timeout: 2 * time.Minute}
	resp, err := client.Do(req)
	if err != nil {
		return errors.Wrap(err, "call service")
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "read response")
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, payload, "", "  "); err != nil {
		pretty.Write(payload)
	}
	fmt.Println(pretty.String())

	if resp.StatusCode >= 400 {
		return errors.Newf("service returned %s", resp.Status)
	}
	return nil
}
