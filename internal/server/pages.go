package server

import (
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strings"

	"github.com/stracadev/straca/pkg/manifest"
	"github.com/stracadev/straca/pkg/registry"
)

const pagesLogPrefix = "server:pages"

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error(fmt.Sprintf("%s - json encode: %v", pagesLogPrefix, err))
	}
}

func (h *httpHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.opts.HealthTimeout)
	defer cancel()
	out := h.opts.Registry.Health(ctx)
	status := http.StatusOK
	if out.Status != registry.StatusHealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, out)
}

func (h *httpHandler) handleReady(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (h *httpHandler) handleDescribe(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.opts.Registry.Describe())
}

func (h *httpHandler) handleManifest(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.opts.Manifest)
}

// homePageTemplate is the HTML for the home page (white bg, black/blue text).
const homePageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>{{.Manifest.Name}}</title>
  <style>
    * { box-sizing: border-box; }
    body { background: #fff; color: #000; font-family: system-ui, sans-serif; margin: 0; padding: 2rem; line-height: 1.5; }
    a { color: #0066cc; }
    h1, h2, h3 { color: #0066cc; }
    .status-healthy { color: #0066cc; font-weight: bold; }
    .status-unhealthy { color: #cc0000; font-weight: bold; }
    table { border-collapse: collapse; width: 100%; max-width: 900px; margin-top: 0.5rem; }
    th, td { text-align: left; padding: 0.5rem 0.75rem; border: 1px solid #ccc; vertical-align: top; }
    th { background: #f0f4f8; color: #0066cc; }
    .stat { font-weight: bold; color: #0066cc; }
    .meta { color: #333; font-size: 0.9rem; margin-top: 1rem; }
    section { margin-bottom: 2rem; }
    .error { color: #cc0000; }
  </style>
</head>
<body>
  <h1>{{.Manifest.Name}}</h1>
  <p class="meta">{{.Manifest.ShortName}} {{.Manifest.Version}}{{if .Manifest.Author}} by {{.Manifest.Author}}{{end}} &middot; <a href="/docs">API docs</a> &middot; <a href="/describe">describe</a></p>

  <section>
    <h2>Health</h2>
    <p>Status: <span class="status-{{.Health.Status}}">{{.Health.Status}}</span></p>
    {{range $name, $ok := .Health.Checks}}
    <p>{{$name}}: {{if $ok}}<span class="stat">OK</span>{{else}}<span class="error">Failed</span>{{end}}</p>
    {{end}}
    <p>Services: <span class="stat">{{.Health.Services}}</span></p>
    <p>Timestamp: {{.Health.Timestamp}}</p>
  </section>

  <section>
    <h2>Services</h2>
    {{if not .Describe.Services}}
    <p>No services registered.</p>
    {{else}}
    <table>
      <thead>
        <tr><th>Service</th><th>Version</th><th>Operations</th></tr>
      </thead>
      <tbody>
        {{range .Describe.Services}}
        <tr>
          <td><strong>{{.Service}}</strong>{{if .Description}}<br><span class="meta">{{.Description}}</span>{{end}}</td>
          <td>{{.Version}}</td>
          <td>{{$svc := .Service}}{{range .Operations}}<a href="/docs#/{{$svc}}/{{$svc}}.{{.Operation}}">{{.Operation}}</a>{{if .Description}} &ndash; {{.Description}}{{end}}<br>{{end}}</td>
        </tr>
        {{end}}
      </tbody>
    </table>
    {{end}}
  </section>
</body>
</html>
`

// homeData is the data passed to the home page template.
type homeData struct {
	Manifest *manifest.Manifest
	Health   *registry.HealthOutput
	Describe *registry.DescribeOutput
}

func (h *httpHandler) handleHome() http.HandlerFunc {
	tmpl := template.Must(template.New("home").Parse(homePageTemplate))
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), h.opts.HealthTimeout)
		defer cancel()

		data := homeData{
			Manifest: h.opts.Manifest,
			Health:   h.opts.Registry.Health(ctx),
			Describe: h.opts.Registry.Describe(),
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := tmpl.Execute(w, data); err != nil {
			slog.Error(fmt.Sprintf("%s - home template execute: %v", pagesLogPrefix, err))
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
	}
}

// openAPI3 types for generating the document from describe output.
type openAPI3Spec struct {
	OpenAPI string                      `json:"openapi"`
	Info    openAPI3Info                `json:"info"`
	Tags    []openAPI3Tag               `json:"tags,omitempty"`
	Paths   map[string]openAPI3PathItem `json:"paths"`
}

type openAPI3Info struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Version     string `json:"version"`
}

type openAPI3Tag struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type openAPI3PathItem struct {
	Post *openAPI3Operation `json:"post,omitempty"`
}

type openAPI3Operation struct {
	Tags        []string                    `json:"tags,omitempty"`
	Summary     string                      `json:"summary"`
	Description string                      `json:"description,omitempty"`
	OperationID string                      `json:"operationId"`
	RequestBody *openAPI3RequestBody        `json:"requestBody,omitempty"`
	Responses   map[string]openAPI3Response `json:"responses"`
}

type openAPI3RequestBody struct {
	Content map[string]openAPI3MediaType `json:"content"`
}

type openAPI3Response struct {
	Description string                       `json:"description"`
	Content     map[string]openAPI3MediaType `json:"content,omitempty"`
}

type openAPI3MediaType struct {
	Schema  map[string]interface{} `json:"schema,omitempty"`
	Example interface{}            `json:"example,omitempty"`
}

var envelopeSchema = map[string]interface{}{"type": "object"}

// buildOpenAPISpec builds an OpenAPI 3.0 document with one path per operation.
// Payload and response metadata become envelope examples.
func buildOpenAPISpec(d *registry.DescribeOutput, m *manifest.Manifest) *openAPI3Spec {
	paths := make(map[string]openAPI3PathItem)
	tags := make([]openAPI3Tag, 0, len(d.Services))
	for _, svc := range d.Services {
		tags = append(tags, openAPI3Tag{Name: svc.Service, Description: svc.Description})
		for _, op := range svc.Operations {
			var notes []string
			if op.Description != "" {
				notes = append(notes, op.Description)
			}
			if op.PayloadRationale != "" {
				notes = append(notes, "Payload: "+op.PayloadRationale)
			}
			if op.ResponseRationale != "" {
				notes = append(notes, "Response: "+op.ResponseRationale)
			}

			summary := op.Description
			if summary == "" {
				summary = svc.Service + "." + op.Operation
			}
			paths["/straca/"+svc.Service+"/"+op.Operation] = openAPI3PathItem{
				Post: &openAPI3Operation{
					Tags:        []string{svc.Service},
					Summary:     summary,
					Description: strings.Join(notes, "\n\n"),
					OperationID: svc.Service + "." + op.Operation,
					RequestBody: &openAPI3RequestBody{
						Content: map[string]openAPI3MediaType{
							"application/json": {
								Schema: envelopeSchema,
								Example: map[string]interface{}{
									"service":     svc.Service,
									"operation":   op.Operation,
									"operationId": "1",
									"data":        op.Payload,
								},
							},
						},
					},
					Responses: map[string]openAPI3Response{
						"200": {
							Description: "Response envelope",
							Content: map[string]openAPI3MediaType{
								"application/json": {
									Schema: envelopeSchema,
									Example: map[string]interface{}{
										"operation":   op.Operation,
										"operationId": "1",
										"ok":          true,
										"chainOk":     true,
										"data":        op.Response,
									},
								},
							},
						},
					},
				},
			}
		}
	}

	title := m.Name
	if title == "" {
		title = "straca"
	}
	version := m.Version
	if version == "" {
		version = "0.0.0"
	}
	return &openAPI3Spec{
		OpenAPI: "3.0.0",
		Info: openAPI3Info{
			Title:       title,
			Description: "Operations reachable through the straca envelope endpoint",
			Version:     version,
		},
		Tags:  tags,
		Paths: paths,
	}
}

func (h *httpHandler) handleOpenAPI(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Cache-Control", "public, max-age=60")
	writeJSON(w, http.StatusOK, buildOpenAPISpec(h.opts.Registry.Describe(), h.opts.Manifest))
}

// swaggerUIPage embeds Swagger UI from CDN and loads /openapi.json.
const swaggerUIPage = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>API – {{.Title}}</title>
  <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css">
</head>
<body>
  <div id="swagger-ui"></div>
  <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
  <script>
    window.onload = function() {
      SwaggerUIBundle({
        url: "{{.SpecURL}}",
        dom_id: "#swagger-ui",
        deepLinking: true,
        presets: [
          SwaggerUIBundle.presets.apis,
          SwaggerUIBundle.SwaggerUIStandalonePreset
        ]
      });
    };
  </script>
</body>
</html>
`

func (h *httpHandler) handleDocs() http.HandlerFunc {
	tmpl := template.Must(template.New("swagger").Parse(swaggerUIPage))
	return func(w http.ResponseWriter, r *http.Request) {
		scheme := "https"
		if r.TLS == nil {
			scheme = "http"
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := tmpl.Execute(w, map[string]string{
			"Title":   h.opts.Manifest.Name,
			"SpecURL": scheme + "://" + r.Host + "/openapi.json",
		}); err != nil {
			slog.Error(fmt.Sprintf("%s - docs template execute: %v", pagesLogPrefix, err))
		}
	}
}
