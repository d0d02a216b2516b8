package server

import (
	"net/http"

	"edmanweb/internal/api"
	"edmanweb/internal/models"
)

func (s *Server) handleGetDocuments(w http.ResponseWriter, r *http.Request) {
	mode, err := models.ParseSelectMode(r.URL.Query().Get("mode"))
	if err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, badRequestCode(err, ErrCodeInvalidMode))
		return
	}
	parentDepth, err := queryInt(r, "parent_depth")
	if err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, err)
		return
	}
	childDepth, err := queryInt(r, "child_depth")
	if err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, err)
		return
	}
	exclusion := splitCSV(r.URL.Query().Get("exclude"))

	out, err := s.documents.GetDocuments(r.Context(), mode, r.PathValue("collection"), r.PathValue("id"), parentDepth, childDepth, exclusion)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleImportDocuments(w http.ResponseWriter, r *http.Request) {
	s.withLimiter(w, r, s.importLimiter, "import", func() {
		var tree map[string]any
		if !s.decodeJSONReq(w, r, &tree) {
			return
		}

		refs, err := s.documents.ImportTree(r.Context(), tree)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}

		resp := api.ImportResponse{Created: len(refs), Refs: make([]api.RefResult, 0, len(refs))}
		for _, ref := range refs {
			resp.Refs = append(resp.Refs, api.RefResult{Collection: ref.Collection, ID: ref.ID})
		}
		s.writeJSON(w, http.StatusCreated, resp)
	})
}
