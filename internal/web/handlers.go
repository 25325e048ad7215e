package web

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/hpungsan/recall/internal/errors"
	"github.com/hpungsan/recall/internal/ops"
)

// Handlers contains HTTP route handlers for the web UI.
type Handlers struct {
	env      *ops.Env
	cwd      string
	renderer *Renderer
}

// HandleSessions handles GET /sessions: every captured session, newest first.
func (h *Handlers) HandleSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := ops.Sessions(r.Context(), h.env)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
		return
	}

	h.renderer.renderPage(w, r, "sessions", SessionsPageData{
		PageData: PageData{
			Title:   "Sessions",
			Version: h.renderer.version,
			Nav:     "sessions",
		},
		Sessions: sessions,
	})
}

// HandleSession handles GET /sessions/{id}.
func (h *Handlers) HandleSession(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("session id is required"))
		return
	}

	status, err := ops.Status(r.Context(), h.env, ops.StatusInput{SessionID: id, CWD: h.dir(r)})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, status)
		return
	}

	h.renderer.renderPage(w, r, "session", SessionPageData{
		PageData: PageData{
			Title:   "Session " + id,
			Version: h.renderer.version,
			Nav:     "sessions",
		},
		Status: status,
	})
}

// HandleSearch handles GET /search?q=: memories of the served project.
func (h *Handlers) HandleSearch(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))

	data := SearchPageData{
		PageData: PageData{
			Title:   "Search",
			Version: h.renderer.version,
			Nav:     "search",
		},
		Query:    query,
		HasQuery: query != "",
	}

	if !data.HasQuery {
		h.renderer.renderPage(w, r, "search", data)
		return
	}

	result, err := ops.Search(r.Context(), h.env, ops.SearchInput{
		Query: query,
		CWD:   h.dir(r),
		Limit: parseIntParam(r, "limit", ops.DefaultSearchLimit),
	})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, result)
		return
	}

	data.Result = result
	data.Hits = make([]SearchHit, len(result.Items))
	for i, hit := range result.Items {
		data.Hits[i] = SearchHit{Hit: hit, HTML: h.renderer.renderMarkdown(hit.Text)}
	}
	h.renderer.renderPage(w, r, "search", data)
}

// dir returns the project directory for a request: ?cwd= or the served one.
func (h *Handlers) dir(r *http.Request) string {
	if cwd := strings.TrimSpace(r.URL.Query().Get("cwd")); cwd != "" {
		return cwd
	}
	return h.cwd
}

// Helper functions

// parseIntParam parses an integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	s := r.URL.Query().Get(name)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}

// wantsJSON reports whether the client asked for JSON instead of HTML.
func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}
