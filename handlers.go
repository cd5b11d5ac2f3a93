package main

import (
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"strconv"
	"time"

	"github.com/kwv/meshalign/mesh"
)

// newHTTPServer creates an HTTP server with all viewer endpoints
func newHTTPServer(state *mesh.RunState, view mesh.ViewConfig) http.Handler {
	mux := http.NewServeMux()

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		runs, updated, lastErr := state.Status()
		_, _, ok := state.Result()
		status := struct {
			Status    string    `json:"status"`
			Timestamp time.Time `json:"timestamp"`
			HasResult bool      `json:"hasResult"`
			Runs      int       `json:"runs"`
			UpdatedAt time.Time `json:"updatedAt,omitempty"`
			LastError string    `json:"lastError,omitempty"`
		}{
			Status:    "ok",
			Timestamp: time.Now(),
			HasResult: ok,
			Runs:      runs,
			UpdatedAt: updated,
		}
		if lastErr != nil {
			status.LastError = lastErr.Error()
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(status); err != nil {
			mesh.Logger().Errorf("encoding health status: %v", err)
		}
	})

	// Rendered views, one endpoint per format
	for _, format := range []mesh.ImageFormat{mesh.FormatSVG, mesh.FormatPNG, mesh.FormatWebP} {
		format := format
		mux.HandleFunc("/view."+string(format), func(w http.ResponseWriter, r *http.Request) {
			res, _, ok := state.Result()
			if !ok {
				http.Error(w, "No result available", http.StatusServiceUnavailable)
				return
			}
			renderer := mesh.NewResultRenderer(res, viewFromQuery(r, view))
			w.Header().Set("Content-Type", format.ContentType())
			w.Header().Set("Cache-Control", "no-cache")
			if err := renderer.Render(w, format); err != nil {
				mesh.Logger().Errorf("rendering %s: %v", format, err)
			}
		})
	}

	mux.HandleFunc("/result.json", func(w http.ResponseWriter, r *http.Request) {
		_, summary, ok := state.Result()
		if !ok {
			http.Error(w, "No result available", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-cache")
		if err := mesh.WriteSummary(w, summary); err != nil {
			mesh.Logger().Errorf("encoding result: %v", err)
		}
	})

	mux.HandleFunc("/transform.txt", func(w http.ResponseWriter, r *http.Request) {
		_, summary, ok := state.Result()
		if !ok {
			http.Error(w, "No result available", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache")
		if err := mesh.WriteMatrix(w, summary.Transform); err != nil {
			mesh.Logger().Errorf("writing transform: %v", err)
		}
	})

	// Default route serves an HTML page embedding the SVG view
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		title := "meshalign"
		if _, summary, ok := state.Result(); ok {
			if summary.Current.Name == "" {
				title = "meshalign: " + summary.Reference.Name
			} else {
				title = fmt.Sprintf("meshalign: %s onto %s (mean residual %.4g)",
					summary.Current.Name, summary.Reference.Name, summary.MeanError)
			}
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache")
		_, _ = fmt.Fprintf(w, `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>%s</title>
<style>
*{margin:0;padding:0;box-sizing:border-box}
html,body{width:100%%;height:100%%;overflow:hidden;background:#fff}
img{display:block;width:100vw;height:100vh;object-fit:contain}
</style>
</head>
<body>
<img src="/view.svg" alt="Aligned meshes">
</body>
</html>`, html.EscapeString(title))
	})

	// Wrap mux with logging middleware
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mesh.Logger().Debugf("[HTTP] %s %s from %s", r.Method, r.URL.Path, r.RemoteAddr)
		mux.ServeHTTP(w, r)
	})
}

// viewFromQuery lets ?az=&el= override the camera angles.
func viewFromQuery(r *http.Request, view mesh.ViewConfig) mesh.ViewConfig {
	q := r.URL.Query()
	if v, err := parseFloatParam(q.Get("az")); err == nil {
		view.Azimuth = v
	}
	if v, err := parseFloatParam(q.Get("el")); err == nil {
		view.Elevation = v
	}
	return view
}

func parseFloatParam(s string) (float64, error) {
	if s == "" {
		return 0, fmt.Errorf("empty parameter")
	}
	return strconv.ParseFloat(s, 64)
}
