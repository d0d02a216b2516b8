package server

import (
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"edmanweb/internal/api"
	"edmanweb/internal/models"
	"edmanweb/internal/preview"
)

const fallbackContentMediaType = "application/octet-stream"

func (s *Server) handleUploadAttachment(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.opts.MultipartMaxMemory); err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, classifyMultipartError(err))
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile("content")
	if err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, badRequestCode(fmt.Errorf("content is required"), ErrCodeMissingRequired))
		return
	}
	defer file.Close()

	compress := s.opts.Compress
	if raw := strings.TrimSpace(r.FormValue("compress")); raw != "" {
		compress, err = strconv.ParseBool(raw)
		if err != nil {
			s.writeErrorReq(w, r, http.StatusBadRequest, badRequestCode(fmt.Errorf("invalid compress"), ErrCodeInvalidArgument))
			return
		}
	}
	filename := strings.TrimSpace(r.FormValue("filename"))
	if filename == "" {
		filename = header.Filename
	}

	content, err := io.ReadAll(file)
	if err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, classifyMultipartError(err))
		return
	}

	collection, id := r.PathValue("collection"), r.PathValue("id")
	blob, err := s.attachments.Attach(r.Context(), collection, id, content, filename, compress)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, api.UploadResponse{
		BlobID:      blob.ID,
		Collection:  collection,
		DocumentID:  id,
		Filename:    blob.Filename,
		Compression: blob.Compression.String(),
		SizeBytes:   blob.SizeBytes,
	})
}

func (s *Server) handleDeleteAttachments(w http.ResponseWriter, r *http.Request) {
	var req api.DeleteAttachmentsRequest
	if !s.decodeJSONReq(w, r, &req) {
		return
	}

	result, err := s.attachments.Detach(r.Context(), r.PathValue("collection"), r.PathValue("id"), req.IDs)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.DeleteAttachmentsResponse{Removed: result.Removed, Remaining: result.Remaining})
}

func (s *Server) handleListAttachments(w http.ResponseWriter, r *http.Request) {
	blobs, err := s.attachments.ListFiles(r.Context(), r.PathValue("collection"), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, fileResponses(blobs))
}

func (s *Server) handleDownloadBlob(w http.ResponseWriter, r *http.Request) {
	content, err := s.attachments.Retrieve(r.Context(), r.PathValue("blob_id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	mediaType := content.MediaType
	if mediaType == "" {
		mediaType = fallbackContentMediaType
	}
	w.Header().Set("Content-Type", mediaType)
	w.Header().Set("Content-Length", strconv.Itoa(len(content.Data)))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	if content.Filename != "" {
		w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": content.Filename}))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(content.Data); err != nil {
		s.log().Debug("write blob response", "blob_id", content.Blob.ID, "error", err)
	}
}

func (s *Server) handlePreviews(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	mode := strings.ToLower(strings.TrimSpace(query.Get("mode")))
	switch mode {
	case "":
		mode = PreviewModeThumbnail
	case PreviewModeThumbnail, PreviewModeImage:
	default:
		s.writeErrorReq(w, r, http.StatusBadRequest, badRequestCode(fmt.Errorf("invalid mode: %s", mode), ErrCodeInvalidMode))
		return
	}

	allowed := splitCSV(query.Get("ext"))
	if len(allowed) == 0 {
		allowed = s.opts.PreviewExtensions
	}
	width, err := queryIntDefault(r, "width", s.opts.PreviewSize.Width)
	if err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, err)
		return
	}
	height, err := queryIntDefault(r, "height", s.opts.PreviewSize.Height)
	if err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, err)
		return
	}
	if width == 0 || height == 0 {
		s.writeErrorReq(w, r, http.StatusBadRequest, badRequestCode(fmt.Errorf("width and height must be > 0"), ErrCodeInvalidQuery))
		return
	}
	size := preview.Size{Width: width, Height: height}

	s.withLimiter(w, r, s.previewLimiter, "preview", func() {
		images, err := s.previews.DocumentPreviews(r.Context(), r.PathValue("collection"), r.PathValue("id"), mode, allowed, size)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}

		resp := api.PreviewResponse{Mode: mode, Items: make(map[string]api.PreviewItem, len(images))}
		if mode == PreviewModeThumbnail {
			resp.Width, resp.Height = size.Width, size.Height
		}
		for id, img := range images {
			resp.Items[id] = api.PreviewItem{Data: img.Data, Ext: img.Ext}
		}
		s.writeJSON(w, http.StatusOK, resp)
	})
}

func fileResponses(blobs []models.Blob) []api.FileResponse {
	out := make([]api.FileResponse, 0, len(blobs))
	for _, blob := range blobs {
		out = append(out, api.FileResponse{
			BlobID:      blob.ID,
			Filename:    blob.Filename,
			MediaType:   guessMediaType(blob.Filename),
			Compression: blob.Compression.String(),
			SizeBytes:   blob.SizeBytes,
			CreatedAt:   blob.CreatedAt,
		})
	}
	return out
}

func classifyMultipartError(err error) error {
	if err == nil {
		return nil
	}
	if strings.Contains(strings.ToLower(err.Error()), "request body too large") {
		return badRequestCode(fmt.Errorf("request body too large"), ErrCodeRequestTooLarge)
	}
	return badRequestCode(err, ErrCodeInvalidArgument)
}
