package api

import "net/http"

// GetCatalog возвращает каталог шаблонов узлов.
// GET /api/v1/catalog
func (h *Handler) GetCatalog(w http.ResponseWriter, r *http.Request) {
	templates := h.catalog.List()
	List(w, templates, len(templates))
}
