package commands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/bmironenko/dnp3/internal/config"
)

var (
	simEventType  string
	simEventIndex uint32
	simEventValue string
	simEventAddr  string
)

var simulateEventCmd = &cobra.Command{
	Use:   "simulate-event",
	Short: "Inject a synthetic point update into a running outstation",
	Long: `Post a point update to a running outstation's control endpoint, as a
field-device poller would, triggering class-based event generation and any
pending unsolicited report.

Examples:
  dnp3-outstation simulate-event --type binary --index 0 --value true
  dnp3-outstation simulate-event --type analog --index 1 --value 42.5`,
	RunE: runSimulateEvent,
}

func init() {
	simulateEventCmd.Flags().StringVar(&simEventType, "type", "binary",
		"point type (binary|double_bit_binary|analog|counter|frozen_counter|binary_output_status|analog_output_status)")
	simulateEventCmd.Flags().Uint32Var(&simEventIndex, "index", 0, "point index")
	simulateEventCmd.Flags().StringVar(&simEventValue, "value", "true", "new value (bool for binary types, number otherwise)")
	simulateEventCmd.Flags().StringVar(&simEventAddr, "addr", "", "control endpoint address (default: config's control.address)")
}

func runSimulateEvent(cmd *cobra.Command, args []string) error {
	addr := simEventAddr
	if addr == "" {
		cfg, err := config.Load(GetConfigFile())
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		addr = cfg.Control.Address
	}

	value, err := parseSimEventValue(simEventType, simEventValue)
	if err != nil {
		return err
	}

	body, err := json.Marshal(map[string]any{
		"type":  simEventType,
		"index": simEventIndex,
		"value": value,
	})
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	resp, err := http.Post(fmt.Sprintf("http://%s/points", addr), "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to reach outstation control endpoint at %s: %w", addr, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("outstation rejected update: %s", resp.Status)
	}

	fmt.Printf("sent %s point %d = %s\n", simEventType, simEventIndex, simEventValue)
	return nil
}

func parseSimEventValue(pointType, raw string) (float64, error) {
	switch pointType {
	case "binary", "double_bit_binary", "binary_output_status":
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return 0, fmt.Errorf("invalid boolean value %q: %w", raw, err)
		}
		if b {
			return 1, nil
		}
		return 0, nil
	default:
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid numeric value %q: %w", raw, err)
		}
		return v, nil
	}
}
