package httphandler

import (
	"fmt"
	"net/http"

	"gopkg.in/yaml.v3"
)

type openAPIDoc struct {
	OpenAPI string                          `yaml:"openapi"`
	Info    openAPIInfo                     `yaml:"info"`
	Paths   map[string]map[string]apiOp     `yaml:"paths"`
	Comps   map[string]map[string]apiSchema `yaml:"components"`
}

type openAPIInfo struct {
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
	Version     string `yaml:"version"`
}

type apiOp struct {
	Summary     string                 `yaml:"summary"`
	OperationID string                 `yaml:"operationId"`
	RequestBody *apiBody               `yaml:"requestBody,omitempty"`
	Responses   map[string]apiResponse `yaml:"responses"`
}

type apiBody struct {
	Required bool                    `yaml:"required"`
	Content  map[string]apiMediaType `yaml:"content"`
}

type apiResponse struct {
	Description string                  `yaml:"description"`
	Content     map[string]apiMediaType `yaml:"content,omitempty"`
}

type apiMediaType struct {
	Schema apiSchema `yaml:"schema"`
}

type apiSchema struct {
	Ref         string               `yaml:"$ref,omitempty"`
	Type        string               `yaml:"type,omitempty"`
	Format      string               `yaml:"format,omitempty"`
	Description string               `yaml:"description,omitempty"`
	Default     any                  `yaml:"default,omitempty"`
	Required    []string             `yaml:"required,omitempty"`
	Properties  map[string]apiSchema `yaml:"properties,omitempty"`
}

func jsonOf(ref string) map[string]apiMediaType {
	return map[string]apiMediaType{
		"application/json": {Schema: apiSchema{Ref: "#/components/schemas/" + ref}},
	}
}

func buildOpenAPI(version string) openAPIDoc {
	errResp := func(desc string) apiResponse {
		return apiResponse{Description: desc, Content: jsonOf("Error")}
	}

	return openAPIDoc{
		OpenAPI: "3.0.3",
		Info: openAPIInfo{
			Title:       "mountgate",
			Description: "Serves functional traffic once the configuration mount is ready.",
			Version:     version,
		},
		Paths: map[string]map[string]apiOp{
			"/ready": {
				"get": {
					Summary:     "Startup probe; succeeds once the storage mount is visible",
					OperationID: "ready",
					Responses: map[string]apiResponse{
						"200": {Description: "Mount ready", Content: jsonOf("Status")},
						"503": errResp("Mount not yet visible"),
					},
				},
			},
			"/": {
				"get": {
					Summary:     "Service status",
					OperationID: "info",
					Responses: map[string]apiResponse{
						"200": {Description: "Service running", Content: jsonOf("Status")},
						"503": errResp("Service starting"),
					},
				},
			},
			"/api/calculator": {
				"post": {
					Summary:     "Add two numbers",
					OperationID: "calculate",
					RequestBody: &apiBody{Required: true, Content: jsonOf("CalculatorInput")},
					Responses: map[string]apiResponse{
						"200": {Description: "Calculation result", Content: jsonOf("CalculatorOutput")},
						"400": errResp("Invalid input"),
						"503": errResp("Service starting"),
					},
				},
			},
		},
		Comps: map[string]map[string]apiSchema{
			"schemas": {
				"Status": {
					Type:     "object",
					Required: []string{"status", "message"},
					Properties: map[string]apiSchema{
						"status":  {Type: "string"},
						"message": {Type: "string"},
					},
				},
				"Error": {
					Type:     "object",
					Required: []string{"error", "message"},
					Properties: map[string]apiSchema{
						"error":   {Type: "string"},
						"message": {Type: "string"},
						"details": {Type: "object"},
					},
				},
				"CalculatorInput": {
					Type:     "object",
					Required: []string{"num1", "num2"},
					Properties: map[string]apiSchema{
						"num1":      {Type: "number", Format: "double"},
						"num2":      {Type: "number", Format: "double"},
						"operation": {Type: "string", Default: "add", Description: "Only 'add' is implemented."},
					},
				},
				"CalculatorOutput": {
					Type:     "object",
					Required: []string{"result", "message"},
					Properties: map[string]apiSchema{
						"result":  {Type: "number", Format: "double"},
						"message": {Type: "string"},
					},
				},
			},
		},
	}
}

// OpenAPIHandler serves the API description as YAML.
type OpenAPIHandler struct{ body []byte }

// NewOpenAPIHandler renders the description once for the given version.
func NewOpenAPIHandler(version string) (*OpenAPIHandler, error) {
	body, err := yaml.Marshal(buildOpenAPI(version))
	if err != nil {
		return nil, fmt.Errorf("marshalling openapi document: %w", err)
	}
	return &OpenAPIHandler{body: body}, nil
}

func (h *OpenAPIHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(h.body)
}
