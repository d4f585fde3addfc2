package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/RainBowCreation/LangCategory/internal/domain"
	"github.com/RainBowCreation/LangCategory/internal/engine"
	"github.com/RainBowCreation/LangCategory/internal/infra/auth"
)

// PolicyHandler обслуживает горячий путь решений и мутационную поверхность.
type PolicyHandler struct {
	store  *engine.PolicyStore
	logger *zap.Logger
}

func NewPolicyHandler(store *engine.PolicyStore, logger *zap.Logger) *PolicyHandler {
	return &PolicyHandler{store: store, logger: logger.Named("policy-handler")}
}

type policyResponse struct {
	Identity   string   `json:"identity"`
	Mode       string   `json:"mode"`
	Categories []string `json:"categories"`
}

type decideResponse struct {
	Identity string `json:"identity"`
	Category string `json:"category"`
	Allowed  bool   `json:"allowed"`
}

type categoryRequest struct {
	Category string `json:"category"`
}

// Decide — публичный горячий путь: GET /v1/decide?identity=..&category=..
// Всегда 200 с вердиктом; пустая категория трактуется как uncategorized.
// GET /v1/decide
func (h *PolicyHandler) Decide(w http.ResponseWriter, r *http.Request) {
	identity := r.URL.Query().Get("identity")
	if identity == "" {
		http.Error(w, "identity is required", http.StatusBadRequest)
		return
	}
	category := r.URL.Query().Get("category")

	allowed := h.store.Allow(identity, category)

	writeJSON(w, http.StatusOK, decideResponse{
		Identity: identity,
		Category: category,
		Allowed:  allowed,
	})
}

// Show возвращает действующую политику идентичности (кэш -> хранилище -> дефолт).
// GET /v1/policies/{identity}
func (h *PolicyHandler) Show(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.target(w, r)
	if !ok {
		return
	}

	p := h.store.Resolve(r.Context(), identity)
	h.respondPolicy(w, identity, p)
}

// EnableAll разрешает все категории.
// POST /v1/policies/{identity}/enable-all
func (h *PolicyHandler) EnableAll(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.target(w, r)
	if !ok {
		return
	}
	h.respondPolicy(w, identity, h.store.EnableAll(r.Context(), identity))
}

// DisableAll запрещает все категории.
// POST /v1/policies/{identity}/disable-all
func (h *PolicyHandler) DisableAll(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.target(w, r)
	if !ok {
		return
	}
	h.respondPolicy(w, identity, h.store.DisableAll(r.Context(), identity))
}

// Enable разрешает одну категорию.
// POST /v1/policies/{identity}/enable
func (h *PolicyHandler) Enable(w http.ResponseWriter, r *http.Request) {
	h.mutateWithCategory(w, r, h.store.Enable)
}

// Disable запрещает одну категорию.
// POST /v1/policies/{identity}/disable
func (h *PolicyHandler) Disable(w http.ResponseWriter, r *http.Request) {
	h.mutateWithCategory(w, r, h.store.Disable)
}

// EnableOnly оставляет разрешенной ровно одну категорию.
// POST /v1/policies/{identity}/enable-only
func (h *PolicyHandler) EnableOnly(w http.ResponseWriter, r *http.Request) {
	h.mutateWithCategory(w, r, h.store.EnableOnly)
}

// DisableOnly запрещает ровно одну категорию, остальные открыты.
// POST /v1/policies/{identity}/disable-only
func (h *PolicyHandler) DisableOnly(w http.ResponseWriter, r *http.Request) {
	h.mutateWithCategory(w, r, h.store.DisableOnly)
}

// Toggle переключает видимость категории.
// POST /v1/policies/{identity}/toggle
func (h *PolicyHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	h.mutateWithCategory(w, r, h.store.Toggle)
}

// target достает идентичность из пути и проверяет права держателя токена:
// свою политику может менять каждый, чужую — только scope langcat.admin.
func (h *PolicyHandler) target(w http.ResponseWriter, r *http.Request) (string, bool) {
	identity := chi.URLParam(r, "identity")
	if identity == "" {
		http.Error(w, "identity is required", http.StatusBadRequest)
		return "", false
	}

	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		// Сюда можно попасть только мимо защищенного периметра
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return "", false
	}
	if !claims.CanActOn(identity) {
		h.logger.Warn("identity access denied",
			zap.String("subject", claims.Identity),
			zap.String("target", identity),
			zap.String("trace_id", engine.TraceIDFromContext(r.Context())),
		)
		http.Error(w, "Forbidden", http.StatusForbidden)
		return "", false
	}

	return identity, true
}

// mutateWithCategory — общий каркас пяти категорийных мутаций: право доступа,
// разбор тела, вызов перехода, эхо результата.
func (h *PolicyHandler) mutateWithCategory(
	w http.ResponseWriter,
	r *http.Request,
	op func(ctx context.Context, identity, category string) *domain.Policy,
) {
	identity, ok := h.target(w, r)
	if !ok {
		return
	}

	var req categoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Category == "" {
		http.Error(w, "category is required", http.StatusBadRequest)
		return
	}

	h.respondPolicy(w, identity, op(r.Context(), identity, req.Category))
}

func (h *PolicyHandler) respondPolicy(w http.ResponseWriter, identity string, p *domain.Policy) {
	writeJSON(w, http.StatusOK, policyResponse{
		Identity:   identity,
		Mode:       string(p.Mode),
		Categories: p.Categories(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
