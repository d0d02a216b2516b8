package server

import (
	"net/http"

	"edmanweb/internal/api"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	info, err := s.store.StoreInfo(r.Context())
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}

	resp := api.InfoResponse{
		SchemaVersion:   info.SchemaVersion,
		BlobBackend:     s.opts.BlobBackend,
		DocumentCounts:  info.DocumentCounts,
		TotalDocuments:  info.TotalDocuments,
		TotalBlobs:      info.TotalBlobs,
		TotalBlobBytes:  info.TotalBlobBytes,
		CompressedBlobs: info.CompressedBlobs,
		Previews: api.PreviewInfo{
			AllowedExtensions: s.opts.PreviewExtensions,
			Width:             s.opts.PreviewSize.Width,
			Height:            s.opts.PreviewSize.Height,
		},
		Limits: map[string]int64{
			"max_upload_bytes":    s.opts.MaxUploadBytes,
			"preview_concurrency": int64(s.opts.PreviewConcurrency),
		},
	}
	if resp.Previews.AllowedExtensions == nil {
		resp.Previews.AllowedExtensions = []string{}
	}

	s.writeJSON(w, http.StatusOK, resp)
}
