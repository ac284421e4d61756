package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/raaihank/flowpaste/internal/config"
	"github.com/raaihank/flowpaste/internal/logger"
	"github.com/raaihank/flowpaste/internal/privacy"
	"github.com/raaihank/flowpaste/internal/rules"
	"github.com/raaihank/flowpaste/internal/shield"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, mutate func(*config.Config)) *Server {
	t.Helper()
	cfg := config.GetDefaults()
	if mutate != nil {
		mutate(cfg)
	}
	s, err := New(cfg, logger.NewNop(), "test")
	require.NoError(t, err)
	return s
}

func do(t *testing.T, s *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.RemoteAddr = "127.0.0.1:50000"
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body errorBody
	decodeBody(t, rec, &body)
	return body.Error.Code
}

func TestHealthAndInfo(t *testing.T) {
	s := newTestServer(t, nil)

	rec := do(t, s, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")

	rec = do(t, s, http.MethodGet, "/info", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var info map[string]interface{}
	decodeBody(t, rec, &info)
	assert.Equal(t, "flowpaste", info["name"])
	assert.Equal(t, "test", info["version"])
	assert.Equal(t, true, info["privacy_enabled"])
	assert.Len(t, info["detectors"], len(privacy.AllTypes))
	assert.Equal(t, float64(len(rules.BuiltinRules())), info["rules_count"])
}

func TestScan(t *testing.T) {
	s := newTestServer(t, nil)

	rec := do(t, s, http.MethodPost, "/v1/pii/scan", textRequest{Text: "手机 13800138000，邮箱 test@example.com"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))

	var result privacy.ScanResult
	decodeBody(t, rec, &result)
	assert.True(t, result.HasPII)
	require.Len(t, result.Items, 2)
	assert.Equal(t, privacy.Phone, result.Items[0].Type)
	assert.Equal(t, privacy.Email, result.Items[1].Type)
}

func TestMaskRestore(t *testing.T) {
	s := newTestServer(t, nil)
	original := "server 192.168.1.1 key sk-abcdefghijklmnopqrstuvwxyz123456"

	rec := do(t, s, http.MethodPost, "/v1/pii/mask", textRequest{Text: original})
	require.Equal(t, http.StatusOK, rec.Code)

	var masked privacy.MaskResult
	decodeBody(t, rec, &masked)
	assert.Equal(t, "server {{FP_IP_1}} key {{FP_APIKEY_1}}", masked.Masked)
	assert.Equal(t, 2, masked.Mapping.Len())

	// The mapping goes back exactly as mask returned it
	var raw struct {
		Mapping json.RawMessage `json:"mapping"`
	}
	decodeBody(t, rec, &raw)
	body := `{"text":` + strconv.Quote(masked.Masked) + `,"mapping":` + string(raw.Mapping) + `}`

	rec = do(t, s, http.MethodPost, "/v1/pii/restore", body)
	require.Equal(t, http.StatusOK, rec.Code)

	var restored textResponse
	decodeBody(t, rec, &restored)
	assert.Equal(t, original, restored.Text)
}

func TestMask_PrivacyDisabled(t *testing.T) {
	s := newTestServer(t, func(c *config.Config) { c.Privacy.Enabled = false })

	rec := do(t, s, http.MethodPost, "/v1/pii/mask", textRequest{Text: "13800138000"})
	require.Equal(t, http.StatusOK, rec.Code)

	var masked privacy.MaskResult
	decodeBody(t, rec, &masked)
	assert.Equal(t, "13800138000", masked.Masked)
	assert.False(t, masked.ScanResult.HasPII)
}

func TestBadRequest(t *testing.T) {
	s := newTestServer(t, nil)

	rec := do(t, s, http.MethodPost, "/v1/pii/scan", "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "bad_request", errorCode(t, rec))
}

func TestRules(t *testing.T) {
	s := newTestServer(t, func(c *config.Config) { c.Rules.MaxOutputBytes = 8 })

	t.Run("List", func(t *testing.T) {
		rec := do(t, s, http.MethodGet, "/v1/rules", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var list []rules.Rule
		decodeBody(t, rec, &list)
		require.Len(t, list, len(rules.BuiltinRules()))
		assert.Equal(t, "remove_empty_lines", list[0].ID)
		assert.True(t, list[0].IsBuiltin)
	})

	t.Run("Apply", func(t *testing.T) {
		rec := do(t, s, http.MethodPost, "/v1/rules/collapse_spaces/apply", textRequest{Text: "a   b"})
		require.Equal(t, http.StatusOK, rec.Code)
		var out textResponse
		decodeBody(t, rec, &out)
		assert.Equal(t, "a b", out.Text)
	})

	t.Run("NotFound", func(t *testing.T) {
		rec := do(t, s, http.MethodPost, "/v1/rules/nope/apply", textRequest{Text: "x"})
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "not_found", errorCode(t, rec))
	})

	t.Run("CustomBackref", func(t *testing.T) {
		rec := do(t, s, http.MethodPost, "/v1/rules/apply", customRuleRequest{
			Text: "ab",
			Rule: rules.Rule{ID: "swap", Pattern: `(a)(b)`, Replacement: "$2$1"},
		})
		require.Equal(t, http.StatusOK, rec.Code)
		var out textResponse
		decodeBody(t, rec, &out)
		assert.Equal(t, "ba", out.Text)
	})

	t.Run("InvalidPattern", func(t *testing.T) {
		rec := do(t, s, http.MethodPost, "/v1/rules/apply", customRuleRequest{
			Text: "x",
			Rule: rules.Rule{ID: "bad", Pattern: `(unclosed`},
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "invalid_pattern", errorCode(t, rec))
	})

	t.Run("OutputTooLarge", func(t *testing.T) {
		rec := do(t, s, http.MethodPost, "/v1/rules/apply", customRuleRequest{
			Text: "aaaa",
			Rule: rules.Rule{ID: "grow", Pattern: `a`, Replacement: "$0$0$0"},
		})
		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
		assert.Equal(t, "output_too_large", errorCode(t, rec))
	})
}

func TestRuleStatus(t *testing.T) {
	assert.Equal(t, http.StatusUnprocessableEntity, ruleStatus(&rules.RuleError{RuleID: "x", Err: rules.ErrTimeout}))
	assert.Equal(t, http.StatusBadRequest, ruleStatus(&rules.RuleError{Err: rules.ErrInvalidPattern}))
	assert.Equal(t, http.StatusInternalServerError, ruleStatus(errors.New("boom")))
}

func TestShieldSessions(t *testing.T) {
	s := newTestServer(t, nil)

	rec := do(t, s, http.MethodPost, "/v1/shield/sessions", shieldRequest{Text: "联系 13800138000", Provider: "OpenAI"})
	require.Equal(t, http.StatusCreated, rec.Code)

	var env shield.Envelope
	decodeBody(t, rec, &env)
	assert.Equal(t, "联系 {{FP_PHONE_1}}", env.Masked)
	assert.Equal(t, 1, env.Items)
	assert.True(t, env.Shielded)

	path := "/v1/shield/sessions/" + env.SessionID + "/restore"
	rec = do(t, s, http.MethodPost, path, textRequest{Text: "已记录 {{FP_PHONE_1}}"})
	require.Equal(t, http.StatusOK, rec.Code)

	var out textResponse
	decodeBody(t, rec, &out)
	assert.Equal(t, "已记录 13800138000", out.Text)

	// The session is gone after restore
	rec = do(t, s, http.MethodPost, path, textRequest{Text: "{{FP_PHONE_1}}"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "session_not_found", errorCode(t, rec))
}

func TestShieldSessions_UnshieldedProvider(t *testing.T) {
	s := newTestServer(t, nil)

	// The default provider is the local Ollama, which is not shielded
	for _, req := range []shieldRequest{{Text: "联系 13800138000"}, {Text: "联系 13800138000", Provider: "Ollama"}} {
		rec := do(t, s, http.MethodPost, "/v1/shield/sessions", req)
		require.Equal(t, http.StatusCreated, rec.Code)

		var env shield.Envelope
		decodeBody(t, rec, &env)
		assert.False(t, env.Shielded)
		assert.Equal(t, "联系 13800138000", env.Masked)
		assert.Equal(t, 0, env.Items)

		rec = do(t, s, http.MethodPost, "/v1/shield/sessions/"+env.SessionID+"/restore", textRequest{Text: "done"})
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := do(t, s, http.MethodGet, "/metrics", nil)
	assert.Contains(t, rec.Body.String(), `flowpaste_shield_sessions_total{event="begun"} 2`)
	assert.Contains(t, rec.Body.String(), `flowpaste_shield_sessions_total{event="restored"} 2`)
}

func TestRateLimit(t *testing.T) {
	s := newTestServer(t, func(c *config.Config) {
		c.RateLimit = config.RateLimitConfig{Enabled: true, RequestsPerSecond: 0.001, Burst: 1}
	})

	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/v1/rules", nil).Code)
	rec := do(t, s, http.MethodGet, "/v1/rules", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "rate_limited", errorCode(t, rec))

	// Health is outside the limited API
	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/health", nil).Code)
}

func TestAuditAndMetrics(t *testing.T) {
	s := newTestServer(t, nil)

	rec := do(t, s, http.MethodGet, "/v1/audit", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())

	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodGet, "/v1/audit?limit=-1", nil).Code)

	rec = do(t, s, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `flowpaste_http_requests_total{route="/v1/audit",status="200"} 1`)
}

func TestReload(t *testing.T) {
	s := newTestServer(t, nil)

	cfg := config.GetDefaults()
	cfg.Rules.Custom = []config.RuleConfig{{ID: "shout", Pattern: `!`, Replacement: "!!!"}}
	cfg.Privacy.Detectors = []string{"Email"}
	require.NoError(t, s.Reload(cfg))

	rec := do(t, s, http.MethodPost, "/v1/rules/shout/apply", textRequest{Text: "hi!"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, s, http.MethodPost, "/v1/pii/scan", textRequest{Text: "13800138000 a@b.co"})
	var result privacy.ScanResult
	decodeBody(t, rec, &result)
	require.Len(t, result.Items, 1)
	assert.Equal(t, privacy.Email, result.Items[0].Type)

	// The shield default provider and /info follow the new config
	cfg.App.AIProvider = "OpenAI"
	require.NoError(t, s.Reload(cfg))

	rec = do(t, s, http.MethodGet, "/info", nil)
	var info map[string]interface{}
	decodeBody(t, rec, &info)
	assert.Equal(t, "OpenAI", info["ai_provider"])
	assert.Equal(t, true, info["shielded"])

	rec = do(t, s, http.MethodPost, "/v1/shield/sessions", shieldRequest{Text: "mail a@b.co"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var env shield.Envelope
	decodeBody(t, rec, &env)
	assert.True(t, env.Shielded)
	assert.Equal(t, "mail {{FP_EMAIL_1}}", env.Masked)

	bad := config.GetDefaults()
	bad.Privacy.Detectors = []string{"Fingerprint"}
	assert.Error(t, s.Reload(bad))
}

func TestRateLimiter_Cleanup(t *testing.T) {
	l := NewRateLimiter(config.RateLimitConfig{Enabled: true, RequestsPerSecond: 10, Burst: 10})
	assert.True(t, l.Allow("10.0.0.1"))
	assert.True(t, l.Allow("10.0.0.2"))
	assert.Equal(t, 2, l.Len())

	past := l.now().Add(2 * idleBucket)
	l.now = func() time.Time { return past }
	l.Cleanup()
	assert.Equal(t, 0, l.Len())
}
