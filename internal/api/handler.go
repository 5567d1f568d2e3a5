// Package api serves aggregated benchmark measurements over HTTP.
package api

import (
	"NWBBenchmarks/internal/results"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// Handler holds the dependencies for API handlers.
type Handler struct {
	querier results.Querier
}

// NewRouter registers the API routes.
func NewRouter(q results.Querier) *mux.Router {
	h := &Handler{querier: q}
	r := mux.NewRouter()
	r.HandleFunc("/api/v1/summaries", h.summariesHandler).Methods(http.MethodPost)
	r.HandleFunc("/api/v1/health", h.healthHandler).Methods(http.MethodGet)
	return r
}

func (h *Handler) healthHandler(w http.ResponseWriter, r *http.Request) {
	resp, _ := structpb.NewStruct(map[string]interface{}{"status": "ok"})
	writeProto(w, http.StatusOK, resp)
}

// summariesHandler decodes a JSON filter object and returns one summary per
// benchmark and strategy.
func (h *Handler) summariesHandler(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to read request body: %v", err), http.StatusBadRequest)
		return
	}
	var filter structpb.Struct
	if len(body) > 0 {
		if err := protojson.Unmarshal(body, &filter); err != nil {
			http.Error(w, fmt.Sprintf("failed to decode request: %v", err), http.StatusBadRequest)
			return
		}
	}
	req, err := summaryRequest(&filter)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	summaries, err := h.querier.Summaries(r.Context(), req)
	if err != nil {
		log.Errorf("api: summary query failed: %v", err)
		http.Error(w, fmt.Sprintf("failed to query summaries: %v", err), http.StatusInternalServerError)
		return
	}

	list := make([]interface{}, 0, len(summaries))
	for _, s := range summaries {
		list = append(list, map[string]interface{}{
			"benchmark":              s.Benchmark,
			"strategy":               s.Strategy,
			"runs":                   float64(s.Runs),
			"failed":                 float64(s.Failed),
			"mean_elapsed_seconds":   finite(s.MeanElapsedSeconds),
			"mean_bytes_total":       finite(s.MeanBytesTotal),
			"mean_bytes_downloaded":  finite(s.MeanBytesDownload),
			"mean_number_of_packets": finite(s.MeanPackets),
		})
	}
	resp, err := structpb.NewStruct(map[string]interface{}{"summaries": list})
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to build response: %v", err), http.StatusInternalServerError)
		return
	}
	writeProto(w, http.StatusOK, resp)
}

// finite maps the NaN of an average over zero runs to 0; JSON has no NaN.
func finite(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

func summaryRequest(filter *structpb.Struct) (results.SummaryRequest, error) {
	str := func(key string) string {
		return filter.GetFields()[key].GetStringValue()
	}
	req := results.SummaryRequest{
		Benchmark: str("benchmark"),
		Strategy:  str("strategy"),
		Hostname:  str("hostname"),
	}
	var err error
	if s := str("since"); s != "" {
		if req.Since, err = time.Parse(time.RFC3339, s); err != nil {
			return req, fmt.Errorf("invalid since: %w", err)
		}
	}
	if s := str("until"); s != "" {
		if req.Until, err = time.Parse(time.RFC3339, s); err != nil {
			return req, fmt.Errorf("invalid until: %w", err)
		}
	}
	return req, nil
}

func writeProto(w http.ResponseWriter, status int, msg proto.Message) {
	jsonBytes, err := protojson.Marshal(msg)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to marshal response: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(jsonBytes)
}
