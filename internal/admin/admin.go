// Package admin exposes a read-only JSON API describing a running node: its
// build, transports, registrations and exchange journal.
package admin

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"strconv"

	"dev.l1qu1d.net/wraith-labs/restac/internal/dispatch"
	"dev.l1qu1d.net/wraith-labs/restac/internal/journal"
	"github.com/gorilla/mux"
)

const (
	SCOPE_INBOUND  = "inbound"
	SCOPE_OUTBOUND = "outbound"
)

// What the API reports on.
type Source interface {
	Inbound() *dispatch.Dispatcher
	Outbound() *dispatch.Dispatcher
	Journal() *journal.Journal
}

type registration struct {
	Filter       string `json:"filter"`
	Handler      string `json:"handler"`
	Capabilities string `json:"capabilities"`
}

type exchangePage struct {
	Page      int                `json:"page"`
	PageSize  int                `json:"pageSize"`
	Total     int64              `json:"total"`
	Summary   map[string]int64   `json:"summary"`
	Exchanges []journal.Exchange `json:"exchanges"`
}

func NewRouter(src Source) *mux.Router {
	r := mux.NewRouter().SkipClean(true).UseEncodedPath()

	r.Path("/about").Methods(http.MethodGet).HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		handleAbout(w)
	})
	r.Path("/transports").Methods(http.MethodGet).HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, src.Inbound().Managed())
	})
	r.Path("/registrations").Methods(http.MethodGet).HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		handleRegistrations(w, req, src)
	})
	r.Path("/exchanges").Methods(http.MethodGet).HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		handleExchanges(w, req, src)
	})
	r.Path("/exchanges/{id}").Methods(http.MethodGet).HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		handleExchange(w, req, src)
	})

	return r
}

func handleAbout(w http.ResponseWriter) {
	// Collect necessary information.
	buildinfo, _ := debug.ReadBuildInfo()

	writeJSON(w, http.StatusOK, map[string]any{
		"build": buildinfo,
	})
}

func handleRegistrations(w http.ResponseWriter, r *http.Request, src Source) {
	var d *dispatch.Dispatcher
	switch scope := r.URL.Query().Get("scope"); scope {
	case "", SCOPE_INBOUND:
		d = src.Inbound()
	case SCOPE_OUTBOUND:
		d = src.Outbound()
	default:
		writeError(w, http.StatusBadRequest, fmt.Errorf("unknown scope %q", scope))
		return
	}

	regs := d.Registrations()
	out := make([]registration, 0, len(regs))
	for _, reg := range regs {
		out = append(out, registration{
			Filter:       reg.Filter.String(),
			Handler:      reg.Handler.String(),
			Capabilities: reg.Handler.Capabilities().String(),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func handleExchanges(w http.ResponseWriter, r *http.Request, src Source) {
	j := src.Journal()
	if j == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("journal is disabled"))
		return
	}

	page := 0
	if p := r.URL.Query().Get("page"); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid page %q", p))
			return
		}
		page = n
	}

	total, err := j.Count()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	summary, err := j.Summary()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	exchanges, err := j.GetPage(page*journal.DATA_PAGE_SIZE, journal.DATA_PAGE_SIZE)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if exchanges == nil {
		exchanges = []journal.Exchange{}
	}

	writeJSON(w, http.StatusOK, exchangePage{
		Page:      page,
		PageSize:  journal.DATA_PAGE_SIZE,
		Total:     total,
		Summary:   summary,
		Exchanges: exchanges,
	})
}

func handleExchange(w http.ResponseWriter, r *http.Request, src Source) {
	j := src.Journal()
	if j == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("journal is disabled"))
		return
	}

	ex, err := j.Get(mux.Vars(r)["id"])
	if errors.Is(err, journal.ErrUnknownExchange) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, ex)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("error while generating API response: %v", err))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
