package api

import (
	"net/http"

	"github.com/starford/collate/internal/selection"
	"github.com/starford/collate/internal/workspace"
)

// Handler holds API route handlers.
type Handler struct {
	svc *workspace.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *workspace.Service) *Handler {
	return &Handler{svc: svc}
}

// mustAddress parses an address already accepted by addressRule.
func mustAddress(s string) selection.Address {
	addr, _ := selection.ParseAddress(s)
	return addr
}

// Tree handles GET /api/tree.
//
//	@Summary		Get the selection tree
//	@Tags			tree
//	@Produce		json
//	@Success		200	{object}	TreeView
//	@Security		BearerAuth
//	@Router			/tree [get]
func (h *Handler) Tree(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Snapshot())
}

// Info handles GET /api/tree/info.
//
//	@Summary		Summarize the loaded source
//	@Tags			tree
//	@Produce		json
//	@Success		200	{object}	workspace.Info
//	@Security		BearerAuth
//	@Router			/tree/info [get]
func (h *Handler) Info(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Info())
}

// Scan handles POST /api/tree/scan.
//
//	@Summary		Load a directory into the tree
//	@Tags			tree
//	@Accept			json
//	@Produce		json
//	@Param			body	body		PathRequest	true	"Directory to scan"
//	@Success		200		{object}	LoadReport
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/tree/scan [post]
func (h *Handler) Scan(w http.ResponseWriter, r *http.Request) {
	var req PathRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	report, err := h.svc.Scan(r.Context(), req.Path)
	if err != nil {
		writeError(w, "scan", err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// Import handles POST /api/tree/import.
//
//	@Summary		Load a JSON file list into the tree
//	@Tags			tree
//	@Accept			json
//	@Produce		json
//	@Param			body	body		PathRequest	true	"JSON list to import"
//	@Success		200		{object}	LoadReport
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/tree/import [post]
func (h *Handler) Import(w http.ResponseWriter, r *http.Request) {
	var req PathRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	report, err := h.svc.Import(r.Context(), req.Path)
	if err != nil {
		writeError(w, "import", err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// Toggle handles POST /api/tree/toggle.
//
//	@Summary		Flip a node's check state
//	@Tags			tree
//	@Accept			json
//	@Produce		json
//	@Param			body	body		AddressRequest	true	"Node address"
//	@Success		200		{object}	StateResponse
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/tree/toggle [post]
func (h *Handler) Toggle(w http.ResponseWriter, r *http.Request) {
	var req AddressRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	addr := mustAddress(req.Address)
	st, err := h.svc.Toggle(addr)
	if err != nil {
		writeError(w, "toggle", err)
		return
	}
	writeJSON(w, http.StatusOK, StateResponse{Address: addr.String(), State: st})
}

// Check handles POST /api/tree/check.
//
//	@Summary		Set a node checked or unchecked
//	@Tags			tree
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CheckRequest	true	"Node address and target"
//	@Success		200		{object}	StateResponse
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/tree/check [post]
func (h *Handler) Check(w http.ResponseWriter, r *http.Request) {
	var req CheckRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	addr := mustAddress(req.Address)
	st, err := h.svc.SetChecked(addr, *req.Checked)
	if err != nil {
		writeError(w, "check", err)
		return
	}
	writeJSON(w, http.StatusOK, StateResponse{Address: addr.String(), State: st})
}

// SelectExtension handles POST /api/tree/select-extension.
//
//	@Summary		Check files by extension
//	@Tags			tree
//	@Accept			json
//	@Produce		json
//	@Param			body	body		ExtensionRequest	true	"Folder, extension, and depth"
//	@Success		200		{object}	CheckedResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/tree/select-extension [post]
func (h *Handler) SelectExtension(w http.ResponseWriter, r *http.Request) {
	var req ExtensionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if _, err := h.svc.SelectByExtension(mustAddress(req.Address), req.Extension, req.Recursive); err != nil {
		writeError(w, "select extension", err)
		return
	}
	files := h.svc.Checked()
	writeJSON(w, http.StatusOK, CheckedResponse{Files: nonNil(files), Count: len(files)})
}

// SelectAll handles POST /api/tree/select-all.
//
//	@Summary		Check every node
//	@Tags			tree
//	@Success		204	"All nodes checked"
//	@Security		BearerAuth
//	@Router			/tree/select-all [post]
func (h *Handler) SelectAll(w http.ResponseWriter, _ *http.Request) {
	h.svc.SetAll(true)
	w.WriteHeader(http.StatusNoContent)
}

// DeselectAll handles POST /api/tree/deselect-all.
//
//	@Summary		Uncheck every node
//	@Tags			tree
//	@Success		204	"All nodes unchecked"
//	@Security		BearerAuth
//	@Router			/tree/deselect-all [post]
func (h *Handler) DeselectAll(w http.ResponseWriter, _ *http.Request) {
	h.svc.SetAll(false)
	w.WriteHeader(http.StatusNoContent)
}

// Checked handles GET /api/tree/checked.
//
//	@Summary		List checked files in tree order
//	@Tags			tree
//	@Produce		json
//	@Success		200	{object}	CheckedResponse
//	@Security		BearerAuth
//	@Router			/tree/checked [get]
func (h *Handler) Checked(w http.ResponseWriter, _ *http.Request) {
	files := h.svc.Checked()
	writeJSON(w, http.StatusOK, CheckedResponse{Files: nonNil(files), Count: len(files)})
}

// Extensions handles GET /api/tree/extensions.
//
//	@Summary		List extensions of a folder's direct files
//	@Tags			tree
//	@Produce		json
//	@Param			address	query		string	false	"Folder address, root when empty"
//	@Success		200		{object}	ExtensionsResponse
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/tree/extensions [get]
func (h *Handler) Extensions(w http.ResponseWriter, r *http.Request) {
	addr, err := selection.ParseAddress(r.URL.Query().Get("address"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	exts, err := h.svc.Extensions(addr)
	if err != nil {
		writeError(w, "extensions", err)
		return
	}
	writeJSON(w, http.StatusOK, ExtensionsResponse{Address: addr.String(), Extensions: exts})
}

// StartMerge handles POST /api/merge.
//
//	@Summary		Merge the checked files in the background
//	@Tags			merge
//	@Accept			json
//	@Produce		json
//	@Param			body	body		MergeRequest	false	"Output directory override"
//	@Success		202		{object}	MergeStartedResponse
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/merge [post]
func (h *Handler) StartMerge(w http.ResponseWriter, r *http.Request) {
	var req MergeRequest
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}
	id, err := h.svc.StartMerge(req.OutputDir)
	if err != nil {
		writeError(w, "start merge", err)
		return
	}
	writeJSON(w, http.StatusAccepted, MergeStartedResponse{RunID: id})
}

// CancelMerge handles DELETE /api/merge.
//
//	@Summary		Cancel the active merge
//	@Tags			merge
//	@Produce		json
//	@Success		200	{object}	CancelResponse
//	@Security		BearerAuth
//	@Router			/merge [delete]
func (h *Handler) CancelMerge(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, CancelResponse{Cancelled: h.svc.CancelMerge()})
}

// MergeStatus handles GET /api/merge.
//
//	@Summary		Report merge state and the last result
//	@Tags			merge
//	@Produce		json
//	@Success		200	{object}	MergeStatus
//	@Security		BearerAuth
//	@Router			/merge [get]
func (h *Handler) MergeStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.MergeStatus())
}

// Outputs handles GET /api/outputs.
//
//	@Summary		List merged files in the output directory
//	@Tags			merge
//	@Produce		json
//	@Success		200	{object}	OutputsResponse
//	@Security		BearerAuth
//	@Router			/outputs [get]
func (h *Handler) Outputs(w http.ResponseWriter, _ *http.Request) {
	entries, err := h.svc.Outputs()
	if err != nil {
		writeError(w, "list outputs", err)
		return
	}
	writeJSON(w, http.StatusOK, OutputsResponse{Outputs: entries})
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
