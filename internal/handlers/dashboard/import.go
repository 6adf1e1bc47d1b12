package dashboard

import (
	"io"
	"net/http"

	"mesdash/internal/importer"
	"mesdash/internal/response"
)

// Import handles POST /api/v1/import: a multipart batch of .json and .log
// files. Per-file degradation never fails the request; the only error
// surfaced to the caller is an unreadable upload.
func (h *Handler) Import(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil { // 32MB max
		response.Err(w, "invalid multipart body", 400)
		return
	}
	if r.MultipartForm == nil || len(r.MultipartForm.File["files"]) == 0 {
		response.Err(w, "no files uploaded", 400)
		return
	}

	var files []importer.File
	for _, fh := range r.MultipartForm.File["files"] {
		f, err := fh.Open()
		if err != nil {
			response.Err(w, "cannot read uploaded file "+fh.Filename, 400)
			return
		}
		content, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			response.Err(w, "cannot read uploaded file "+fh.Filename, 400)
			return
		}
		files = append(files, importer.File{Name: fh.Filename, Content: content})
	}

	response.JSON(w, h.Pipeline.ImportBatch(files))
}
