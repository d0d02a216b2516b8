package server

import (
	"fmt"
	"net/http"

	"edmanweb/internal/api"
)

func (s *Server) handleBlobGC(w http.ResponseWriter, r *http.Request) {
	apply, err := queryBool(r, "apply")
	if err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, err)
		return
	}
	batchSize, err := queryInt(r, "batch_size")
	if err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, err)
		return
	}
	if apply && r.Header.Get("X-Confirm") != "true" {
		s.writeErrorReq(w, r, http.StatusBadRequest, badRequestCode(fmt.Errorf("apply requires X-Confirm: true header"), ErrCodeMissingRequired))
		return
	}

	result, err := s.attachments.GCBlobs(r.Context(), batchSize, apply)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, api.BlobGCResponse{
		CandidateCount: result.CandidateCount,
		CandidateBytes: result.CandidateBytes,
		DeletedCount:   result.DeletedCount,
		FailedCount:    result.FailedCount,
		DryRun:         result.DryRun,
		BlobIDs:        result.BlobIDs,
	})
}
