package httpstats

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ebusgo/ebusd/ebus"
	"github.com/ebusgo/ebusd/fsm"
)

// Server is the diagnostics HTTP surface: /state, /counters, /transmit
// and the Prometheus /metrics exposition.
type Server struct {
	Handler *fsm.Handler
	Online  func() bool

	mux *chi.Mux
}

// New builds a Server wired to h, with online reporting online status
// for /state and the Prometheus online gauge.
func New(h *fsm.Handler, online func() bool) *Server {
	s := &Server{Handler: h, Online: online}
	reg := prometheus.NewRegistry()
	reg.MustRegister(NewCountersCollector(h, online))

	r := chi.NewRouter()
	r.Get("/state", s.getState)
	r.Get("/counters", s.getCounters)
	r.Post("/transmit", s.postTransmit)
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	s.mux = r
	return s
}

// ServeHTTP makes Server an http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

type stateResponse struct {
	State  string `json:"state"`
	Online bool   `json:"online"`
}

func (s *Server) getState(w http.ResponseWriter, r *http.Request) {
	online := s.Online == nil || s.Online()
	writeJSON(w, http.StatusOK, stateResponse{
		State:  s.Handler.GetState().String(),
		Online: online,
	})
}

func (s *Server) getCounters(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Handler.Counters())
}

type transmitRequest struct {
	Hex string `json:"hex"`
}

type transmitResponse struct {
	Slave string `json:"slave,omitempty"`
	Error string `json:"error,omitempty"`
}

// postTransmit decodes a hex-encoded master payload (ZZ PB SB NN D1..Dn,
// unstuffed, no CRC) from the request body, blocks on the cycle, and
// returns the hex-encoded slave response, if any.
func (s *Server) postTransmit(w http.ResponseWriter, r *http.Request) {
	var req transmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	payload, err := ebus.HexToBytes(req.Hex)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	slave, err := s.Handler.Transmit(payload)
	if err != nil {
		writeJSON(w, http.StatusOK, transmitResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, transmitResponse{Slave: ebus.BytesToHex(slave)})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
