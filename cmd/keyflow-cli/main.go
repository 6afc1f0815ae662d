package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"keyflow/internal/analysis"
	"keyflow/internal/config"
	"keyflow/internal/ipc"

	sqlitestore "keyflow/internal/storage/sqlite"
)

var (
	dbPath string
	days   int
)

var rootCmd = &cobra.Command{
	Use:   "keyflow-cli",
	Short: "Control the keyflow daemon and analyze captured typing data",
	Long: `Sends commands to the running keyflowd daemon over its unix socket
(ping, status, flush) and runs offline analysis over the keystroke log
(analyze, export).`,
}

// sendCommand speaks the one-shot JSON protocol: dial, send, print response.
func sendCommand(cmd ipc.Command) {
	conn, err := net.DialTimeout("unix", ipc.SocketPath, 2*time.Second)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error connecting to daemon socket (%s): %v\nIs keyflowd running?\n", ipc.SocketPath, err)
		os.Exit(1)
	}
	defer conn.Close()

	conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	conn.SetReadDeadline(time.Now().Add(10 * time.Second))

	if err := json.NewEncoder(conn).Encode(cmd); err != nil {
		fmt.Fprintf(os.Stderr, "Error sending command: %v\n", err)
		os.Exit(1)
	}

	var resp ipc.Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		fmt.Fprintf(os.Stderr, "Error receiving response: %v\n", err)
		os.Exit(1)
	}

	if !resp.Success {
		fmt.Fprintf(os.Stderr, "Error: %s\n", resp.Message)
		os.Exit(1)
	}
	if resp.Message != "" {
		fmt.Println(resp.Message)
	}
	if resp.Data != nil {
		pretty, err := json.MarshalIndent(resp.Data, "", "  ")
		if err == nil {
			fmt.Println(string(pretty))
		}
	}
}

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check whether the keyflow daemon is running",
	Run: func(cmd *cobra.Command, args []string) {
		sendCommand(ipc.Command{Name: ipc.CmdPing})
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon uptime, foreground context, and buffer counters",
	Run: func(cmd *cobra.Command, args []string) {
		sendCommand(ipc.Command{Name: ipc.CmdStatus})
	},
}

var flushCmd = &cobra.Command{
	Use:   "flush",
	Short: "Force the daemon to persist all buffered keystrokes now",
	Run: func(cmd *cobra.Command, args []string) {
		sendCommand(ipc.Command{Name: ipc.CmdFlush})
	},
}

// loadEvents opens the database read-side and returns the requested range.
// Analysis never needs the daemon: it reads the same sqlite file.
func loadEvents() (*analysis.Report, *config.Config) {
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if dbPath == "" {
		dbPath = cfg.DatabasePath
	}
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Database file not found at %s. Has keyflowd run, or pass --db.\n", dbPath)
		os.Exit(1)
	}

	log := zap.NewNop()
	store := sqlitestore.NewStore(dbPath, log)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := store.Init(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open database: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	end := time.Now()
	start := end.AddDate(0, 0, -days)
	evs, err := store.LoadRange(ctx, start, end)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load keystrokes: %v\n", err)
		os.Exit(1)
	}
	return analysis.Analyze(evs, cfg.Analysis), cfg
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Segment the log into sessions and print the metric report as JSON",
	Run: func(cmd *cobra.Command, args []string) {
		report, _ := loadEvents()
		if report.NoData {
			fmt.Println("No keystroke data found for the selected period.")
			return
		}
		out, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode report: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(string(out))
	},
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export per-keystroke rows, with derived columns, as CSV",
	Run: func(cmd *cobra.Command, args []string) {
		output, _ := cmd.Flags().GetString("output")

		report, _ := loadEvents()
		if report.NoData {
			fmt.Fprintln(os.Stderr, "No keystroke data found for the selected period.")
			os.Exit(1)
		}

		w := os.Stdout
		if output != "" {
			f, err := os.Create(output)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Failed to create output file: %v\n", err)
				os.Exit(1)
			}
			defer f.Close()
			w = f
		}
		if err := analysis.WriteCSV(w, report); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to write csv: %v\n", err)
			os.Exit(1)
		}
		if output != "" {
			fmt.Fprintf(os.Stderr, "Exported %d events to %s\n", report.TotalEvents, output)
		}
	},
}

func main() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Path to the keystroke database (default: from config)")
	rootCmd.PersistentFlags().IntVar(&days, "days", 7, "Number of past days to analyze")

	exportCmd.Flags().StringP("output", "o", "", "Output file (default: stdout)")

	rootCmd.AddCommand(pingCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(flushCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(exportCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error executing command: %v\n", err)
		os.Exit(1)
	}
}
