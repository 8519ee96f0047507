package commands

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/bmironenko/dnp3/internal/cli/output"
	"github.com/bmironenko/dnp3/internal/config"
)

var statusAddr string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show a running outstation's event buffer occupancy",
	Long: `Query a running outstation's control endpoint and render its
uptime, per-class buffered event counts, and overflow state.`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusAddr, "addr", "", "control endpoint address (default: config's control.address)")
}

func runStatus(cmd *cobra.Command, args []string) error {
	addr := statusAddr
	if addr == "" {
		cfg, err := config.Load(GetConfigFile())
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		addr = cfg.Control.Address
	}

	client := &http.Client{Timeout: 3 * time.Second}
	resp, err := client.Get(fmt.Sprintf("http://%s/status", addr))
	if err != nil {
		fmt.Println("outstation is not reachable:", err)
		return nil
	}
	defer resp.Body.Close()

	var report statusReport
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		return fmt.Errorf("failed to decode status response: %w", err)
	}

	output.SimpleTable(os.Stdout, [][2]string{
		{"Uptime", (time.Duration(report.UptimeSeconds * float64(time.Second))).String()},
		{"Class 1 events", strconv.Itoa(report.EventsClass1)},
		{"Class 2 events", strconv.Itoa(report.EventsClass2)},
		{"Class 3 events", strconv.Itoa(report.EventsClass3)},
		{"Buffer overflow", strconv.FormatBool(report.BufferOverflow)},
	})
	return nil
}
