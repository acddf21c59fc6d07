package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/paperdrop/paperdrop/pkg/namespace"
	"github.com/paperdrop/paperdrop/pkg/store"
)

// FoldersHandler serves the per-user folder view.
//
// The view is built the same way the SFTP listing is: the virtual root is
// synthesized, aliases resolve into the user's home prefix, and directory
// entries come from marker objects and key inference over a flat LIST.
type FoldersHandler struct {
	store    store.Store
	basePath string
	maxDepth int
}

// NewFoldersHandler creates a folders handler. basePath is the bucket-wide
// user root and maxDepth bounds virtual path depth, matching the SFTP
// adapter's configuration.
func NewFoldersHandler(st store.Store, basePath string, maxDepth int) *FoldersHandler {
	return &FoldersHandler{store: st, basePath: basePath, maxDepth: maxDepth}
}

// FolderEntry is one visible name inside a folder.
type FolderEntry struct {
	Name    string    `json:"name"`
	Type    string    `json:"type"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

// FoldersResponse is the payload of the folder view endpoint.
type FoldersResponse struct {
	User    string        `json:"user"`
	Path    string        `json:"path"`
	Entries []FolderEntry `json:"entries"`
}

// List handles GET /api/v1/users/{user}/folders?path=/...
//
// path defaults to "/". The reply mirrors what an SFTP READDIR for the same
// user and path would show.
func (h *FoldersHandler) List(w http.ResponseWriter, r *http.Request) {
	user := chi.URLParam(r, "user")
	if user == "" {
		BadRequest(w, "missing user")
		return
	}

	reqPath := r.URL.Query().Get("path")
	if reqPath == "" {
		reqPath = "/"
	}

	mapper := namespace.NewMapper(h.basePath, user, h.maxDepth)
	virtual, err := mapper.ToVirtual(reqPath)
	if err != nil {
		BadRequest(w, "invalid path: "+err.Error())
		return
	}

	var entries []namespace.Entry
	if virtual == "/" {
		entries = namespace.SyntheticRoot(user, time.Now().UTC())
	} else {
		key, err := mapper.ToKey(virtual)
		if err != nil {
			BadRequest(w, "invalid path: "+err.Error())
			return
		}

		objects, err := h.store.List(r.Context(), key)
		if err != nil {
			InternalServerError(w, "listing failed: "+err.Error())
			return
		}

		// The protected folders always exist; everything else needs listing
		// evidence before it is treated as a directory.
		if !namespace.IsProtectedDir(virtual) {
			entry, found := namespace.Classify(key, objects)
			if !found {
				NotFound(w, "no such folder")
				return
			}
			if !entry.IsDir {
				BadRequest(w, "not a folder")
				return
			}
		}
		entries = namespace.BuildEntries(key, objects)
	}

	out := FoldersResponse{User: user, Path: virtual, Entries: make([]FolderEntry, 0, len(entries))}
	for _, e := range entries {
		kind := "file"
		if e.IsDir {
			kind = "dir"
		}
		out.Entries = append(out.Entries, FolderEntry{
			Name:    e.Name,
			Type:    kind,
			Size:    e.Size,
			ModTime: e.ModTime,
		})
	}

	writeJSON(w, http.StatusOK, okResponse(out))
}
