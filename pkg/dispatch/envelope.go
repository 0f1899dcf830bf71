package dispatch

import (
	"encoding/json"
	"strings"

	"github.com/cuemby/taskrun/pkg/types"
)

// harnessEnvelope is the Harness Result Envelope a worker reports in a
// "completed" JobEvent's metadata["payload"].
type harnessEnvelope struct {
	Status  string `json:"status"`
	Summary string `json:"summary"`
	Error   string `json:"error"`
}

// parseEnvelope decodes raw (metadata["payload"]) into a harness
// envelope. A missing or invalid payload is synthesised as a failure
// rather than propagated as a parse error,.
func parseEnvelope(raw string) harnessEnvelope {
	missing := harnessEnvelope{Status: "failed", Summary: "Worker completed without payload", Error: "Missing payload"}
	if raw == "" {
		return missing
	}
	var env harnessEnvelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil || env.Status == "" {
		return missing
	}
	return env
}

// classifyFailure maps an envelope's error text onto a failure class
//.
func classifyFailure(errMsg string) types.FailureClass {
	lower := strings.ToLower(errMsg)
	switch {
	case strings.Contains(lower, "envelope validation"):
		return types.FailureValidation
	case strings.Contains(lower, "timeout"), strings.Contains(lower, "cancelled"):
		return types.FailureTimeout
	default:
		return types.FailureNone
	}
}
