package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"strings"

	apierrors "github.com/arturkryukov/dapfncache/internal/api/errors"
	"github.com/arturkryukov/dapfncache/internal/cache/codec"
	"github.com/arturkryukov/dapfncache/internal/cache/rescache"
	"github.com/arturkryukov/dapfncache/internal/catalog"
	"github.com/arturkryukov/dapfncache/internal/dapmodel"
)

// GetOrComputer is satisfied by both *rescache.ResponseCache and
// *rescache.Front, letting the handler stay agnostic to whether the
// front cache is enabled.
type GetOrComputer interface {
	GetOrCompute(ds *dapmodel.Dataset, constraint string, eval rescache.Evaluator) (*dapmodel.Dataset, error)
}

// DatasetSource loads the declared-variable shape of a dataset named
// by its catalog-relative path, without touching the cache. It is the
// concrete stand-in for whatever real data-format driver a production
// deployment would plug in here.
type DatasetSource interface {
	Load(datasetID string) (*dapmodel.Dataset, error)
}

// SidecarSource loads dataset descriptions from a JSON file living
// next to each data file, named "<dataset>.dapmeta.json". This keeps
// the daemon runnable end-to-end without depending on an actual
// scientific data format library.
type SidecarSource struct {
	Catalog *catalog.Directory
}

type sidecarVariable struct {
	Name    string   `json:"name"`
	Kind    string   `json:"kind"`
	Columns []string `json:"columns,omitempty"`
}

type sidecarDoc struct {
	Variables []sidecarVariable `json:"variables"`
}

// Load reads "<datasetID>.dapmeta.json" under the catalog root and
// builds an empty (all-zero-valued, unmarked) Dataset from it.
func (s *SidecarSource) Load(datasetID string) (*dapmodel.Dataset, error) {
	full, ok := s.Catalog.ResolvePath(datasetID + ".dapmeta.json")
	if !ok {
		return nil, errors.New("dataset path escapes catalog root")
	}

	data, err := os.ReadFile(full)
	if err != nil {
		return nil, err
	}

	var doc sidecarDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}

	ds := dapmodel.New(datasetID)
	var factory dapmodel.CacheAwareFactory
	for _, v := range doc.Variables {
		variable, err := factory.NewVariable(dapmodel.Kind(v.Kind), v.Name, v.Columns)
		if err != nil {
			return nil, err
		}
		ds.AddVariable(variable)
	}

	return ds, nil
}

// DAPHandler serves GET /dap/{dataset}.{response}.
type DAPHandler struct {
	cache   GetOrComputer
	eval    rescache.Evaluator
	source  DatasetSource
	catalog *catalog.Directory
	logger  *slog.Logger
}

// NewDAPHandler builds a DAPHandler.
func NewDAPHandler(cache GetOrComputer, eval rescache.Evaluator, source DatasetSource, cat *catalog.Directory, logger *slog.Logger) *DAPHandler {
	return &DAPHandler{cache: cache, eval: eval, source: source, catalog: cat, logger: logger.With(slog.String("component", "dap_handler"))}
}

// ServeHTTP handles GET /dap/{dataset}.{response}?ce=<constraint>.
func (h *DAPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/dap/")
	dotIdx := strings.LastIndex(path, ".")
	if dotIdx < 0 {
		apierrors.ValidationError(w, "path must be <dataset>.<response>")
		return
	}
	datasetID, response := path[:dotIdx], path[dotIdx+1:]

	if response != "dds" && response != "dods" {
		apierrors.ValidationError(w, "unsupported response type "+response)
		return
	}

	if !h.catalog.IsDataset(datasetID) {
		apierrors.NotFound(w, "no such dataset: "+datasetID)
		return
	}

	constraint := r.URL.Query().Get("ce")

	ds, err := h.source.Load(datasetID)
	if err != nil {
		h.logger.Error("failed to load dataset descriptor", slog.String("dataset", datasetID), slog.String("error", err.Error()))
		apierrors.InternalError(w, "failed to load dataset")
		return
	}

	result, err := h.cache.GetOrCompute(ds, constraint, h.eval)
	if err != nil {
		switch {
		case errors.Is(err, rescache.ErrTooManyCollisions):
			apierrors.TooManyCollisions(w, err.Error())
		default:
			apierrors.EvaluatorError(w, err.Error())
		}
		return
	}

	switch response {
	case "dds":
		writeDDS(w, result)
	case "dods":
		writeDODS(w, result)
	}
}

// writeDDS writes a plain-text variable declaration list, standing in
// for a full DDS printer.
func writeDDS(w http.ResponseWriter, ds *dapmodel.Dataset) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("Dataset {\n"))
	for _, v := range ds.SendList() {
		_, _ = w.Write([]byte("    " + string(v.Kind()) + " " + v.Name() + ";\n"))
	}
	_, _ = w.Write([]byte("} " + ds.Name() + ";\n"))
}

// writeDODS re-encodes ds in the same format the cache uses on disk,
// on every request, hit or miss. The first line carries the dataset
// name rather than the ResourceId, so the body is not byte-identical
// to the cache entry.
func writeDODS(w http.ResponseWriter, ds *dapmodel.Dataset) {
	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	_ = codec.Write(w, ds.Name(), ds)
}
