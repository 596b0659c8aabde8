// Package admin exposes a read-only HTTP surface for operators: current
// device table, per-device detail, and a liveness probe. It carries no
// control-plane commands of its own — every mutation still goes through
// the wire protocol's Server Event Loop.
//
// Grounded on Comcast-tr1d1um/src/tr1d1um/tr1d1um.go's AddRoutes/
// mux.NewRouter/alice.Chain wiring, with responses formatted through the
// teacher's httperror package.
package admin

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"

	"github.com/go-kit/log"
	"github.com/gorilla/mux"
	"github.com/justinas/alice"
	"github.com/xmidt-org/idcp/devicemanager"
	"github.com/xmidt-org/idcp/httperror"
	"github.com/xmidt-org/idcp/internal/xlog"
	"github.com/xmidt-org/idcp/wire"
)

// Server holds the dependencies the admin HTTP surface reads from. It
// implements no methods of its own beyond NewRouter; callers mount the
// returned *mux.Router directly.
type Server struct {
	Devices *devicemanager.Manager
	Logger  log.Logger
}

// NewRouter builds the admin HTTP surface: GET /status, GET /devices,
// GET /devices/{index}. Every route is wrapped in a logging decorator,
// mirroring the teacher's preHandler.Then chain shape (there an auth
// decorator, here a request logger since this surface has no credentials
// of its own to check).
func (s *Server) NewRouter() *mux.Router {
	chain := alice.New(s.loggingMiddleware)

	r := mux.NewRouter()
	r.Handle("/status", chain.ThenFunc(s.handleStatus)).Methods(http.MethodGet)
	r.Handle("/devices", chain.ThenFunc(s.handleDeviceList)).Methods(http.MethodGet)
	r.Handle("/devices/{index}", chain.ThenFunc(s.handleDevice)).Methods(http.MethodGet)
	return r
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		xlog.Debug(s.Logger).Log(xlog.MessageKey, "admin request", "method", r.Method, "path", r.URL.Path)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	httperror.Format(w, http.StatusOK, fmt.Sprintf("devices=%d", len(s.Devices.List())))
}

// deviceView is the JSON shape returned for one device; it reuses
// wire.DeviceListEntry rather than inventing a parallel struct, since the
// admin surface and the wire protocol describe the same underlying
// Device Manager record.
type deviceView = wire.DeviceListEntry

func (s *Server) handleDeviceList(w http.ResponseWriter, r *http.Request) {
	records := s.Devices.List()
	sort.Slice(records, func(i, j int) bool { return records[i].Index < records[j].Index })

	views := make([]deviceView, len(records))
	for i, rec := range records {
		views[i] = deviceView{DeviceName: rec.Name, DeviceIndex: rec.Index, DeviceMessages: rec.Attributes}
	}

	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleDevice(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	idx, err := strconv.ParseUint(vars["index"], 10, 32)
	if err != nil {
		httperror.Formatf(w, http.StatusBadRequest, "invalid device index %q", vars["index"])
		return
	}

	record, ok := s.Devices.Get(uint32(idx))
	if !ok {
		httperror.Formatf(w, http.StatusNotFound, "no device at index %d", idx)
		return
	}

	writeJSON(w, http.StatusOK, deviceView{
		DeviceName:     record.Name,
		DeviceIndex:    record.Index,
		DeviceMessages: record.Attributes,
	})
}

func writeJSON(w http.ResponseWriter, code int, value interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(value)
}
