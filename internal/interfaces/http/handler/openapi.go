package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"sort"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/gin-gonic/gin"
)

var pathParam = regexp.MustCompile(`\{([^}]+)\}`)

// Operation is one documented method and path, in gin's path syntax.
type Operation struct {
	Method string
	Path   string
}

// OpenAPIHandler serves the validated API description as JSON
type OpenAPIHandler struct {
	doc  *openapi3.T
	body []byte
}

// NewOpenAPIHandler loads and validates an OpenAPI 3 document
func NewOpenAPIHandler(raw []byte) (*OpenAPIHandler, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(raw)
	if err != nil {
		return nil, fmt.Errorf("load openapi document: %w", err)
	}
	if err := doc.Validate(context.Background()); err != nil {
		return nil, fmt.Errorf("validate openapi document: %w", err)
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode openapi document: %w", err)
	}
	return &OpenAPIHandler{doc: doc, body: body}, nil
}

// Serve handles GET /openapi.json
func (h *OpenAPIHandler) Serve(c *gin.Context) {
	c.Data(http.StatusOK, "application/json; charset=utf-8", h.body)
}

// Title returns the document title
func (h *OpenAPIHandler) Title() string {
	if h.doc.Info == nil {
		return ""
	}
	return h.doc.Info.Title
}

// Operations lists every documented operation, sorted by path then method.
// Paths are prefixed with the first server URL path, so they compare
// directly against gin's route table.
func (h *OpenAPIHandler) Operations() []Operation {
	prefix := ""
	if len(h.doc.Servers) > 0 {
		if u, err := h.doc.Servers[0].BasePath(); err == nil && u != "/" {
			prefix = u
		}
	}

	var ops []Operation
	for path, item := range h.doc.Paths.Map() {
		ginPath := prefix + pathParam.ReplaceAllString(path, ":$1")
		for method := range item.Operations() {
			ops = append(ops, Operation{Method: method, Path: ginPath})
		}
	}
	sort.Slice(ops, func(i, j int) bool {
		if ops[i].Path != ops[j].Path {
			return ops[i].Path < ops[j].Path
		}
		return ops[i].Method < ops[j].Method
	})
	return ops
}
