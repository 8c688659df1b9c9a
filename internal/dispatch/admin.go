package dispatch

import (
	"net/http"
	"strings"

	"tailscale.com/tsweb"

	"github.com/banshee-data/lmsctl/internal/httputil"
	"github.com/banshee-data/lmsctl/internal/lmserr"
	"github.com/banshee-data/lmsctl/internal/registry"
)

// Sessions returns a snapshot of every live session.
func (d *Dispatcher) Sessions() []registry.Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.reg.Snapshots()
}

type commandResponse struct {
	Command string `json:"command"`
	Result  any    `json:"result,omitempty"`
	Output  string `json:"output,omitempty"`
	Kind    string `json:"kind,omitempty"`
	Error   string `json:"error,omitempty"`
}

// AttachAdminRoutes mounts the session debug pages on mux.
func (d *Dispatcher) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	debug.Handle("sessions", "Live rangefinder sessions", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSONOK(w, d.Sessions())
	}))

	// API endpoint running one command line through the dispatcher; printed
	// output is returned in the response instead of the console
	debug.HandleSilentFunc("command-api", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			httputil.MethodNotAllowed(w)
			return
		}
		line := strings.TrimSpace(r.FormValue("command"))
		name, args, err := ParseLine(line)
		if err == nil && name == "" {
			httputil.BadRequest(w, "missing command")
			return
		}

		resp := commandResponse{Command: line}
		status := http.StatusOK
		if err == nil {
			resp.Result, resp.Output, err = d.DispatchCaptured(name, args...)
		}
		if err != nil {
			resp.Kind = lmserr.KindOf(err).String()
			resp.Error = err.Error()
			status = http.StatusUnprocessableEntity
		}
		httputil.WriteJSON(w, status, resp)
	})
}
