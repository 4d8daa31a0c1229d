package controller

import "net/http"

// PulseInjector stands in for the coin acceptor when no hardware is attached.
type PulseInjector interface {
	Inject(n int)
}

type PulseController struct {
	line PulseInjector
}

func NewPulseController(line PulseInjector) *PulseController {
	return &PulseController{line: line}
}

// Inject handles POST /api/v1/pulses
func (h *PulseController) Inject(w http.ResponseWriter, r *http.Request) {
	var req InjectPulsesRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	h.line.Inject(req.Count)
	writeJSON(w, http.StatusAccepted, PulsesResponse{Injected: req.Count})
}
