package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var (
	serverURL string
	rootCmd   = &cobra.Command{
		Use:   "klyp",
		Short: "Klyp CLI - video download manager",
		Long:  `A command-line interface for the klyp download server.`,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8571", "Server URL")

	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(startAllCmd)
	rootCmd.AddCommand(stopAllCmd)
	rootCmd.AddCommand(removeCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(settingsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var addCmd = &cobra.Command{
	Use:   "add [url]",
	Short: "Add a download to the queue",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		quality, _ := cmd.Flags().GetString("quality")
		subtitles, _ := cmd.Flags().GetBool("subtitles")
		start, _ := cmd.Flags().GetBool("start")

		payload := map[string]interface{}{
			"url":   args[0],
			"start": start,
		}
		if quality != "" {
			payload["selected_quality"] = quality
		}
		if cmd.Flags().Changed("subtitles") {
			payload["download_subtitles"] = subtitles
		}

		result := postJSON("/api/v1/downloads", payload, http.StatusCreated)
		fmt.Printf("Download added\n")
		fmt.Printf("ID: %s\n", result["id"])
		fmt.Printf("Status: %s\n", result["status"])
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List downloads in the queue",
	Run: func(cmd *cobra.Command, args []string) {
		status, _ := cmd.Flags().GetString("status")
		path := "/api/v1/downloads"
		if status != "" {
			path += "?status=" + status
		}

		var downloads []map[string]interface{}
		getInto(path, &downloads)

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tURL\tSTATUS\tPROGRESS")
		for _, d := range downloads {
			descriptor, _ := d["descriptor"].(map[string]interface{})
			url, _ := descriptor["url"].(string)
			progress, _ := d["progress"].(float64)
			fmt.Fprintf(w, "%s\t%s\t%s\t%.0f%%\n",
				truncate(stringField(d, "id"), 8),
				truncate(url, 50),
				stringField(d, "status"),
				progress)
		}
		w.Flush()
	},
}

var getCmd = &cobra.Command{
	Use:   "get [id]",
	Short: "Show one download",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		var task map[string]interface{}
		getInto("/api/v1/downloads/"+args[0], &task)
		pretty, _ := json.MarshalIndent(task, "", "  ")
		fmt.Println(string(pretty))
	},
}

var startCmd = &cobra.Command{
	Use:   "start [id]",
	Short: "Start a queued download",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		postJSON("/api/v1/downloads/"+args[0]+"/start", nil, http.StatusOK)
		fmt.Println("Download starting")
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop [id]",
	Short: "Stop an active download",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		postJSON("/api/v1/downloads/"+args[0]+"/stop", nil, http.StatusOK)
		fmt.Println("Stop signal sent")
	},
}

var startAllCmd = &cobra.Command{
	Use:   "start-all",
	Short: "Start every queued download",
	Run: func(cmd *cobra.Command, args []string) {
		result := postJSON("/api/v1/downloads/start-all", nil, http.StatusOK)
		fmt.Printf("Started %v download(s)\n", result["started"])
	},
}

var stopAllCmd = &cobra.Command{
	Use:   "stop-all",
	Short: "Stop every active download",
	Run: func(cmd *cobra.Command, args []string) {
		postJSON("/api/v1/downloads/stop-all", nil, http.StatusOK)
		fmt.Println("Stop signal sent to all active downloads")
	},
}

var removeCmd = &cobra.Command{
	Use:   "remove [id]",
	Short: "Remove a download from the queue",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		req, _ := http.NewRequest(http.MethodDelete, serverURL+"/api/v1/downloads/"+args[0], nil)
		doRequest(req, http.StatusOK)
		fmt.Println("Download removed")
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show queue statistics",
	Run: func(cmd *cobra.Command, args []string) {
		var stats map[string]interface{}
		getInto("/api/v1/downloads/stats", &stats)
		pretty, _ := json.MarshalIndent(stats, "", "  ")
		fmt.Println(string(pretty))
	},
}

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Submit a search query",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		limit, _ := cmd.Flags().GetString("limit")
		payload := map[string]interface{}{"query": args[0]}
		if limit != "" {
			payload["filters"] = map[string]string{"limit": limit}
		}
		postJSON("/api/v1/search", payload, http.StatusAccepted)
		fmt.Println("Search submitted; results arrive on the event stream")
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List download history",
	Run: func(cmd *cobra.Command, args []string) {
		q, _ := cmd.Flags().GetString("q")
		path := "/api/v1/history"
		if q != "" {
			path += "?q=" + q
		}

		var entries []map[string]interface{}
		getInto(path, &entries)

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "TITLE\tPLATFORM\tFILE\tCOMPLETED")
		for _, e := range entries {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
				truncate(stringField(e, "title"), 40),
				stringField(e, "platform"),
				truncate(stringField(e, "file_path"), 40),
				stringField(e, "completed_at"))
		}
		w.Flush()
	},
}

var settingsCmd = &cobra.Command{
	Use:   "settings [key] [value]",
	Short: "Show or change settings",
	Args:  cobra.MaximumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		if len(args) < 2 {
			var snapshot map[string]interface{}
			getInto("/api/v1/settings", &snapshot)
			pretty, _ := json.MarshalIndent(snapshot, "", "  ")
			fmt.Println(string(pretty))
			return
		}

		value := parseValue(args[1])
		body, _ := json.Marshal(map[string]interface{}{args[0]: value})
		req, _ := http.NewRequest(http.MethodPut, serverURL+"/api/v1/settings", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		doRequest(req, http.StatusOK)
		fmt.Printf("Set %s = %v\n", args[0], value)
	},
}

func init() {
	addCmd.Flags().String("quality", "", "Selected quality (e.g. best, 720p)")
	addCmd.Flags().Bool("subtitles", false, "Download subtitles")
	addCmd.Flags().Bool("start", false, "Start immediately")
	listCmd.Flags().String("status", "", "Filter by status")
	searchCmd.Flags().String("limit", "", "Maximum number of results")
	historyCmd.Flags().String("q", "", "Search history by title or URL")
}

// parseValue turns CLI strings into JSON-friendly values
func parseValue(raw string) interface{} {
	switch raw {
	case "true":
		return true
	case "false":
		return false
	}
	return raw
}

func postJSON(path string, payload interface{}, wantStatus int) map[string]interface{} {
	var body io.Reader
	if payload != nil {
		data, _ := json.Marshal(payload)
		body = bytes.NewReader(data)
	}
	req, _ := http.NewRequest(http.MethodPost, serverURL+path, body)
	req.Header.Set("Content-Type", "application/json")
	return doRequest(req, wantStatus)
}

func getInto(path string, out interface{}) {
	resp, err := http.Get(serverURL + path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "Error: %s\n", string(data))
		os.Exit(1)
	}
	if err := json.Unmarshal(data, out); err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid response: %v\n", err)
		os.Exit(1)
	}
}

func doRequest(req *http.Request, wantStatus int) map[string]interface{} {
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != wantStatus {
		fmt.Fprintf(os.Stderr, "Error: %s\n", string(data))
		os.Exit(1)
	}

	var result map[string]interface{}
	json.Unmarshal(data, &result)
	return result
}

func stringField(m map[string]interface{}, key string) string {
	s, _ := m[key].(string)
	return s
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
