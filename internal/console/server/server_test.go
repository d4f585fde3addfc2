package server

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/RainBowCreation/LangCategory/internal/catalog"
	"github.com/RainBowCreation/LangCategory/internal/console/handler"
	"github.com/RainBowCreation/LangCategory/internal/console/service"
	"github.com/RainBowCreation/LangCategory/internal/engine"
	"github.com/RainBowCreation/LangCategory/internal/infra"
	"github.com/RainBowCreation/LangCategory/internal/storage"
)

type policyBody struct {
	Identity   string   `json:"identity"`
	Mode       string   `json:"mode"`
	Categories []string `json:"categories"`
}

type decideBody struct {
	Identity string `json:"identity"`
	Category string `json:"category"`
	Allowed  bool   `json:"allowed"`
}

type tokenBody struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

func testKeysPEM(t *testing.T) (pub, priv []byte) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate rsa key: %v", err)
	}

	priv = pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})
	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("marshal public key: %v", err)
	}
	pub = pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})
	return pub, priv
}

func hashPassword(t *testing.T, plain string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	return string(h)
}

// newTestServer поднимает полный HTTP-слой поверх памяти:
// два оператора — alice (без прав) и root (langcat.admin).
func newTestServer(t *testing.T) (*ConsoleServer, *engine.PolicyStore) {
	t.Helper()

	pub, priv := testKeysPEM(t)
	cfg := &infra.Config{
		Auth: infra.AuthConfig{
			TokenTTL:  time.Hour,
			PublicKey: pub, PrivateKey: priv,
			Credentials: []infra.CredEntry{
				{Username: "alice", PasswordHash: hashPassword(t, "alice-pw"), Identity: "alice"},
				{Username: "root", PasswordHash: hashPassword(t, "root-pw"), Identity: "ops",
					Scopes: []string{"langcat.admin"}},
			},
		},
		Policy: infra.PolicyConfig{
			Namespace: "lcatpolicy", KeyPrefix: "lcat:",
			DefaultMode: "ALL", CacheSize: 64, LoadTimeout: time.Second,
		},
	}

	logger := zap.NewNop()
	metrics := engine.NewMetrics(nil)

	gw := storage.NewMemoryGateway()
	persister := engine.NewPersister(gw, 64, metrics, logger)
	persister.Start()
	t.Cleanup(persister.Stop)

	store, err := engine.NewPolicyStore(cfg.Policy, gw, persister, metrics, logger)
	if err != nil {
		t.Fatalf("NewPolicyStore: %v", err)
	}

	authSvc, err := service.NewAuthService(cfg.Auth)
	if err != nil {
		t.Fatalf("NewAuthService: %v", err)
	}

	srv := NewConsoleServer(
		cfg,
		logger,
		metrics,
		authSvc,
		handler.NewAuthHandler(authSvc),
		handler.NewPolicyHandler(store, logger),
		handler.NewCatalogHandler(catalog.NewStatic([]string{"news", "chat", "trade"}), logger),
		nil,
	)
	return srv, store
}

func doRequest(t *testing.T, srv http.Handler, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func login(t *testing.T, srv http.Handler, username, password string) string {
	t.Helper()
	rec := doRequest(t, srv, http.MethodPost, "/auth/token", "",
		map[string]string{"username": username, "password": password})
	if rec.Code != http.StatusOK {
		t.Fatalf("login %s: status %d", username, rec.Code)
	}
	var tok tokenBody
	if err := json.Unmarshal(rec.Body.Bytes(), &tok); err != nil {
		t.Fatalf("decode token: %v", err)
	}
	return tok.AccessToken
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)
	if rec := doRequest(t, srv, http.MethodGet, "/health", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("health = %d", rec.Code)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doRequest(t, srv, http.MethodPost, "/auth/token", "",
		map[string]string{"username": "alice", "password": "wrong"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad login = %d, want 401", rec.Code)
	}
}

func TestDecideIsPublicAndTotal(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/v1/decide?identity=ghost&category=news", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("decide = %d, want 200", rec.Code)
	}
	var d decideBody
	if err := json.Unmarshal(rec.Body.Bytes(), &d); err != nil {
		t.Fatal(err)
	}
	if !d.Allowed {
		t.Fatal("unseen identity under default ALL must be allowed")
	}

	// Без identity запрос не имеет смысла
	if rec := doRequest(t, srv, http.MethodGet, "/v1/decide?category=news", "", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("decide without identity = %d, want 400", rec.Code)
	}
}

func TestPoliciesRequireToken(t *testing.T) {
	srv, _ := newTestServer(t)
	if rec := doRequest(t, srv, http.MethodGet, "/v1/policies/alice", "", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("show without token = %d, want 401", rec.Code)
	}
}

func TestMutationFlow(t *testing.T) {
	srv, _ := newTestServer(t)
	token := login(t, srv, "alice", "alice-pw")

	// Свежая идентичность показывает дефолт
	rec := doRequest(t, srv, http.MethodGet, "/v1/policies/alice", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("show = %d: %s", rec.Code, rec.Body.String())
	}
	var p policyBody
	json.Unmarshal(rec.Body.Bytes(), &p)
	if p.Mode != "ALL" {
		t.Fatalf("fresh policy mode = %s, want ALL", p.Mode)
	}

	// EnableOnly сужает до одной категории
	rec = doRequest(t, srv, http.MethodPost, "/v1/policies/alice/enable-only", token,
		map[string]string{"category": "News"})
	if rec.Code != http.StatusOK {
		t.Fatalf("enable-only = %d: %s", rec.Code, rec.Body.String())
	}
	json.Unmarshal(rec.Body.Bytes(), &p)
	if p.Mode != "ONLY" || len(p.Categories) != 1 || p.Categories[0] != "news" {
		t.Fatalf("after enable-only: %+v", p)
	}

	// Горячий путь видит мутацию сразу
	rec = doRequest(t, srv, http.MethodGet, "/v1/decide?identity=alice&category=sports", "", nil)
	var d decideBody
	json.Unmarshal(rec.Body.Bytes(), &d)
	if d.Allowed {
		t.Fatal("sports must be denied after enable-only news")
	}

	// Toggle последней категории нормализует в NONE
	rec = doRequest(t, srv, http.MethodPost, "/v1/policies/alice/toggle", token,
		map[string]string{"category": "news"})
	json.Unmarshal(rec.Body.Bytes(), &p)
	if p.Mode != "NONE" || len(p.Categories) != 0 {
		t.Fatalf("after toggle of the only category: %+v", p)
	}

	// Категорийная мутация без категории — ошибка клиента
	rec = doRequest(t, srv, http.MethodPost, "/v1/policies/alice/enable", token,
		map[string]string{})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("enable without category = %d, want 400", rec.Code)
	}
}

func TestAdminScopeGuardsForeignIdentities(t *testing.T) {
	srv, _ := newTestServer(t)

	// alice не может менять чужую политику
	aliceToken := login(t, srv, "alice", "alice-pw")
	rec := doRequest(t, srv, http.MethodPost, "/v1/policies/bob/disable-all", aliceToken, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("foreign mutation without admin = %d, want 403", rec.Code)
	}

	// root с langcat.admin — может
	rootToken := login(t, srv, "root", "root-pw")
	rec = doRequest(t, srv, http.MethodPost, "/v1/policies/bob/disable-all", rootToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("admin mutation = %d: %s", rec.Code, rec.Body.String())
	}
	var p policyBody
	json.Unmarshal(rec.Body.Bytes(), &p)
	if p.Mode != "NONE" {
		t.Fatalf("after admin disable-all: %+v", p)
	}

	// И решение для bob теперь запрет
	rec = doRequest(t, srv, http.MethodGet, "/v1/decide?identity=bob&category=news", "", nil)
	var d decideBody
	json.Unmarshal(rec.Body.Bytes(), &d)
	if d.Allowed {
		t.Fatal("bob must be denied after admin disable-all")
	}
}

func TestCatalogListing(t *testing.T) {
	srv, _ := newTestServer(t)
	token := login(t, srv, "alice", "alice-pw")

	rec := doRequest(t, srv, http.MethodGet, "/v1/categories", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("categories = %d", rec.Code)
	}
	var body struct {
		Categories []string `json:"categories"`
	}
	json.Unmarshal(rec.Body.Bytes(), &body)
	if len(body.Categories) != 3 || body.Categories[0] != "chat" {
		t.Fatalf("categories = %v", body.Categories)
	}

	// Справочник за периметром
	if rec := doRequest(t, srv, http.MethodGet, "/v1/categories", "", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("categories without token = %d, want 401", rec.Code)
	}
}
