package handlers

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gorilla/mux"
	"gopkg.in/yaml.v3"
)

// OpenAPIHandler serves the API description document in YAML and JSON.
type OpenAPIHandler struct {
	docPath string
	baseDir string
}

// NewOpenAPIHandler resolves docPath to an absolute location so later
// reads cannot be redirected outside its directory.
func NewOpenAPIHandler(docPath string) *OpenAPIHandler {
	absPath, _ := filepath.Abs(docPath)
	baseDir, _ := filepath.Abs(filepath.Dir(docPath))

	return &OpenAPIHandler{
		docPath: absPath,
		baseDir: baseDir,
	}
}

func (h *OpenAPIHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/v1/openapi.yaml", h.ServeYAML).Methods("GET")
	r.HandleFunc("/api/v1/openapi.json", h.ServeJSON).Methods("GET")
}

// readDocument loads the document after confirming the resolved path
// still sits under the base directory.
func (h *OpenAPIHandler) readDocument() ([]byte, error) {
	absPath, err := filepath.Abs(filepath.Clean(h.docPath))
	if err != nil {
		return nil, err
	}

	relPath, err := filepath.Rel(h.baseDir, absPath)
	if err != nil {
		return nil, err
	}
	if filepath.IsAbs(relPath) || relPath == ".." || len(relPath) > 2 && relPath[:3] == "../" {
		return nil, os.ErrPermission
	}

	return os.ReadFile(absPath)
}

// ServeYAML returns the document as stored on disk.
func (h *OpenAPIHandler) ServeYAML(w http.ResponseWriter, r *http.Request) {
	data, err := h.readDocument()
	if err != nil {
		http.Error(w, "OpenAPI specification not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/x-yaml")
	if _, err := w.Write(data); err != nil {
		http.Error(w, "Failed to write response", http.StatusInternalServerError)
		return
	}
}

// ServeJSON converts the YAML document to JSON on the fly.
func (h *OpenAPIHandler) ServeJSON(w http.ResponseWriter, r *http.Request) {
	data, err := h.readDocument()
	if err != nil {
		http.Error(w, "OpenAPI specification not found", http.StatusNotFound)
		return
	}

	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		http.Error(w, "Failed to parse OpenAPI specification", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(doc); err != nil {
		http.Error(w, "Failed to encode JSON response", http.StatusInternalServerError)
		return
	}
}
