// Package health provides small HTTP-probing helper functions for
// astragate's runtime dependencies, mirroring the teacher's
// CheckProvider/CheckEndpoints pattern of one function per dependency
// kind, with HTTP-endpoint probes replaced by DVB adapter device-node
// and CAM/CI slot checks.
package health

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"github.com/tsforge/astragate/internal/camclient"
	"github.com/tsforge/astragate/internal/ci"
)

// CheckAdapterDevice verifies the frontend, demux, and dvr character
// device nodes for one DVB adapter are present, returning the first
// missing node as an error.
func CheckAdapterDevice(adapter, device int) error {
	for _, kind := range []string{"frontend", "demux", "dvr"} {
		path := fmt.Sprintf("/dev/dvb/adapter%d/%s%d", adapter, kind, device)
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("adapter %d: %s: %w", adapter, path, err)
		}
	}
	return nil
}

// CheckCISlot reports whether a CI slot has completed its TPDU
// handshake (SlotReady), returning an error naming its current state
// otherwise.
func CheckCISlot(s *ci.Slot) error {
	if s == nil {
		return fmt.Errorf("ci slot not configured")
	}
	if s.State != ci.SlotReady {
		return fmt.Errorf("ci slot not ready: state=%s", s.State)
	}
	return nil
}

// CheckCAM reports whether the newcamd client has completed its login
// and card-data exchange.
func CheckCAM(c *camclient.Client) error {
	if c == nil {
		return fmt.Errorf("cam client not configured")
	}
	if c.Card().CAID == 0 {
		return fmt.Errorf("cam client has no card data yet")
	}
	return nil
}

// Check is one named health probe and its last result.
type Check struct {
	Name string
	Err  error
}

// Handler runs every check in checks and serves the aggregate result
// as JSON, responding 200 if all pass and 503 otherwise — mirroring
// the teacher's habit of mounting small probe functions directly on
// an HTTP mux rather than behind a framework.
func Handler(checks func() []Check) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		results := checks()
		ok := true
		out := make(map[string]string, len(results))
		for _, c := range results {
			if c.Err != nil {
				ok = false
				out[c.Name] = c.Err.Error()
			} else {
				out[c.Name] = "ok"
			}
		}
		w.Header().Set("Content-Type", "application/json")
		if !ok {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(out)
	})
}
