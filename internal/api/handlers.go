package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/lazytree/internal/treeservice"
)

// Handler holds API route handlers.
type Handler struct {
	svc *treeservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *treeservice.Service) *Handler {
	return &Handler{svc: svc}
}

// parseID parses a positive node id. An empty string is 0 when allowEmpty.
func parseID(raw string, allowEmpty bool) (int64, bool) {
	if raw == "" || raw == "null" {
		return 0, allowEmpty
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// GetFilter handles GET /tree/getfilter.
//
//	@Summary		List the children of a node, or the nodes matching a filter
//	@Tags			tree
//	@Produce		json
//	@Param			parentId	query		int		false	"Parent node id; empty for the roots"
//	@Param			filter		query		string	false	"Label filter; matches carry their children"
//	@Success		200			{object}	NodesResponse
//	@Failure		400			{object}	errResponse
//	@Failure		404			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/tree/getfilter [get]
func (h *Handler) GetFilter(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	parentID, ok := parseID(q.Get("parentId"), true)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid parentId"))
		return
	}
	nodes, err := h.svc.Nodes(r.Context(), parentID, q.Get("filter"))
	if err != nil {
		writeError(w, "list nodes", err)
		return
	}
	writeJSON(w, http.StatusOK, NodesResponse{Nodes: nodes})
}

// GetNode handles GET /tree/nodes/{id}.
//
//	@Summary		Get a single node
//	@Tags			tree
//	@Produce		json
//	@Param			id	path		int	true	"Node id"
//	@Success		200	{object}	NodeRecord
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/tree/nodes/{id} [get]
func (h *Handler) GetNode(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(chi.URLParam(r, "id"), false)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid id"))
		return
	}
	node, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeError(w, "get node", err)
		return
	}
	writeJSON(w, http.StatusOK, node)
}

// CreateNode handles POST /tree/create.
//
//	@Summary		Create a node
//	@Tags			tree
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateNodeRequest	true	"Node to create"
//	@Success		201		{object}	NodeRecord
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/tree/create [post]
func (h *Handler) CreateNode(w http.ResponseWriter, r *http.Request) {
	var req CreateNodeRequest
	if err := readJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	node, err := h.svc.Create(r.Context(), parentValue(req.Parent), req.Node)
	if err != nil {
		writeError(w, "create node", err)
		return
	}
	writeJSON(w, http.StatusCreated, node)
}

// UpdateNode handles PATCH /tree/update/{id}.
//
//	@Summary		Relabel and/or move a node
//	@Tags			tree
//	@Accept			json
//	@Produce		json
//	@Param			id		path		int					true	"Node id"
//	@Param			body	body		UpdateNodeRequest	true	"New label and parent"
//	@Success		200		{object}	NodeRecord
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/tree/update/{id} [patch]
func (h *Handler) UpdateNode(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(chi.URLParam(r, "id"), false)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid id"))
		return
	}
	var req UpdateNodeRequest
	if err := readJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	node, err := h.svc.Update(r.Context(), id, req.Node, parentValue(req.Parent))
	if err != nil {
		writeError(w, "update node", err)
		return
	}
	writeJSON(w, http.StatusOK, node)
}

// DeleteNode handles DELETE /tree/delete/{id}.
//
//	@Summary		Delete a node and its subtree
//	@Tags			tree
//	@Produce		json
//	@Param			id	path		int	true	"Node id"
//	@Success		200	{object}	DeleteResponse
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/tree/delete/{id} [delete]
func (h *Handler) DeleteNode(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(chi.URLParam(r, "id"), false)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid id"))
		return
	}
	node, err := h.svc.Delete(r.Context(), id)
	if err != nil {
		writeError(w, "delete node", err)
		return
	}
	writeJSON(w, http.StatusOK, DeleteResponse{Node: node})
}

// Dropdown handles GET /tree/dropdown.
//
//	@Summary		List the nodes a node may be moved under
//	@Tags			tree
//	@Produce		json
//	@Param			id	query		int	true	"Node id"
//	@Success		200	{object}	ValidParentsResponse
//	@Failure		400	{object}	errResponse
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/tree/dropdown [get]
func (h *Handler) Dropdown(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r.URL.Query().Get("id"), false)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'id' is required"))
		return
	}
	parents, err := h.svc.ValidParents(r.Context(), id)
	if err != nil {
		writeError(w, "valid parents", err)
		return
	}
	writeJSON(w, http.StatusOK, ValidParentsResponse{ValidParents: parents})
}
