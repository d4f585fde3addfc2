package handler

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/RainBowCreation/LangCategory/internal/catalog"
)

type CatalogHandler struct {
	provider catalog.Provider
	logger   *zap.Logger
}

func NewCatalogHandler(p catalog.Provider, logger *zap.Logger) *CatalogHandler {
	return &CatalogHandler{provider: p, logger: logger.Named("catalog-handler")}
}

type catalogResponse struct {
	Categories []string `json:"categories"`
}

// List возвращает справочник известных категорий.
// GET /v1/categories
func (h *CatalogHandler) List(w http.ResponseWriter, r *http.Request) {
	cats, err := h.provider.Categories(r.Context())
	if err != nil {
		h.logger.Error("catalog read failed", zap.Error(err))
		http.Error(w, "Failed to fetch categories", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, catalogResponse{Categories: cats})
}
