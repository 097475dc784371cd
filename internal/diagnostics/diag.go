package diagnostics

import "fmt"

type Severity string

const (
	Info Severity = "info"
	Warn Severity = "warning"
	Err  Severity = "error"
)

const (
	CodeConnectFailed = "FLEET.CONNECT_FAILED"
	CodeConnected     = "FLEET.CONNECTED"
	CodePartial       = "FLEET.PARTIAL"
	CodeSendFailed    = "LINK.SEND_FAILED"
	CodeMismatch      = "PANEL.CONFIG_MISMATCH"
	CodeSourceDone    = "SCHEDULER.SOURCE_DONE"
)

type Diagnostic struct {
	ID             string         `json:"id,omitempty"`
	Severity       Severity       `json:"severity"`
	Code           string         `json:"code"`
	Summary        string         `json:"summary"`
	Detail         string         `json:"detail,omitempty"`
	LikelyCauses   []string       `json:"likely_causes,omitempty"`
	SuggestedFixes []string       `json:"suggested_fixes,omitempty"`
	Evidence       map[string]any `json:"evidence,omitempty"`
}

func ConnectFailed(panelID, target string, err error) Diagnostic {
	return Diagnostic{
		Severity: Err,
		Code:     CodeConnectFailed,
		Summary:  fmt.Sprintf("panel %s did not connect", panelID),
		Detail:   err.Error(),
		LikelyCauses: []string{
			"controller is powered off or on another network",
			"hostname does not resolve",
			"metadata request timed out",
		},
		SuggestedFixes: []string{"check the panel address in the layout file", `send {"cmd":"retry"} once the panel is reachable`},
		Evidence:       map[string]any{"panel": panelID, "target": target},
	}
}

func Partial(connected, total int, failed []string) Diagnostic {
	sev := Warn
	switch {
	case connected == total:
		sev = Info
	case connected == 0:
		sev = Err
	}
	return Diagnostic{
		Severity: sev,
		Code:     CodePartial,
		Summary:  fmt.Sprintf("%d/%d panels connected", connected, total),
		Evidence: map[string]any{"connected": connected, "total": total, "failed": failed},
	}
}

func Connected(panelID, target string) Diagnostic {
	return Diagnostic{
		Severity: Info,
		Code:     CodeConnected,
		Summary:  fmt.Sprintf("panel %s connected", panelID),
		Evidence: map[string]any{"panel": panelID, "target": target},
	}
}

func SendFailed(panelID string, err error) Diagnostic {
	return Diagnostic{
		Severity:     Warn,
		Code:         CodeSendFailed,
		Summary:      fmt.Sprintf("frame to %s dropped", panelID),
		Detail:       err.Error(),
		LikelyCauses: []string{"network congestion", "controller rebooting"},
		Evidence:     map[string]any{"panel": panelID},
	}
}

func Mismatch(panelID string, issues []string) Diagnostic {
	return Diagnostic{
		Severity:       Warn,
		Code:           CodeMismatch,
		Summary:        fmt.Sprintf("panel %s reports a different configuration", panelID),
		LikelyCauses:   issues,
		SuggestedFixes: []string{"match the controller's 2D matrix and DMX settings to the layout file"},
		Evidence:       map[string]any{"panel": panelID},
	}
}

func SourceDone(ticks uint64) Diagnostic {
	return Diagnostic{
		Severity: Info,
		Code:     CodeSourceDone,
		Summary:  "show finished, panels blacked out",
		Evidence: map[string]any{"ticks": ticks},
	}
}
