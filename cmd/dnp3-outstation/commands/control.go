package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/bmironenko/dnp3/internal/dnp3/apdu"
	"github.com/bmironenko/dnp3/internal/dnp3/database"
	"github.com/bmironenko/dnp3/internal/dnp3/events"
	"github.com/bmironenko/dnp3/internal/dnp3/outstation"
	"github.com/bmironenko/dnp3/internal/logger"
)

// pointUpdate is the JSON body simulate-event posts to the control server.
type pointUpdate struct {
	Type  string  `json:"type"`
	Index uint32  `json:"index"`
	Value float64 `json:"value"`
}

// statusReport is what the /status handler returns and what the `status`
// command renders as a table.
type statusReport struct {
	UptimeSeconds  float64 `json:"uptime_seconds"`
	EventsClass1   int     `json:"events_class1"`
	EventsClass2   int     `json:"events_class2"`
	EventsClass3   int     `json:"events_class3"`
	BufferOverflow bool    `json:"buffer_overflow"`
}

// newControlServer builds the local-only HTTP endpoint that simulate-event
// and status talk to. It exists so a demo can drive unsolicited reporting
// and inspect outstation state without a second TCP connection competing
// for the single master slot the link layer allows (§4.9).
func newControlServer(addr string, db *database.Memory, ctx *outstation.Context) *http.Server {
	startedAt := time.Now()
	mux := http.NewServeMux()

	mux.HandleFunc("/points", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var update pointUpdate
		if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
			http.Error(w, fmt.Sprintf("invalid body: %v", err), http.StatusBadRequest)
			return
		}
		t, err := parsePointType(update.Type)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		value := events.Value{Flags: apdu.FlagOnline}
		if t == events.Binary || t == events.DoubleBitBinary || t == events.BinaryOutputStatus {
			value.Binary = update.Value != 0
		} else {
			value.Numeric = update.Value
		}
		db.UpdatePoint(t, update.Index, value)
		ctx.NotifyDataChanged()
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		total := db.Events().Total()
		report := statusReport{
			UptimeSeconds:  time.Since(startedAt).Seconds(),
			EventsClass1:   total.TotalForClass(events.Class1),
			EventsClass2:   total.TotalForClass(events.Class2),
			EventsClass3:   total.TotalForClass(events.Class3),
			BufferOverflow: db.Events().Overflow(),
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(report)
	})

	return &http.Server{Addr: addr, Handler: mux}
}

func parsePointType(s string) (events.EventType, error) {
	switch s {
	case "binary":
		return events.Binary, nil
	case "double_bit_binary":
		return events.DoubleBitBinary, nil
	case "analog":
		return events.Analog, nil
	case "counter":
		return events.Counter, nil
	case "frozen_counter":
		return events.FrozenCounter, nil
	case "binary_output_status":
		return events.BinaryOutputStatus, nil
	case "analog_output_status":
		return events.AnalogOutputStatus, nil
	default:
		return 0, fmt.Errorf("unknown point type %q", s)
	}
}

func shutdownControlServer(ctx context.Context, srv *http.Server) {
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("error shutting down control server", "error", err)
	}
}
