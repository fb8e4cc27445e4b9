package preflight

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"recast/internal/config"
	"recast/internal/services"
	"recast/internal/services/gemini"
	"recast/internal/services/speech"
	"recast/internal/services/telegram"
	"recast/internal/services/youtube"
	"recast/internal/services/zthumb"
	"recast/internal/testsupport"
)

func validConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.Pipeline.RetryBackoffSeconds = 1
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return cfg
}

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckConfig(t *testing.T) {
	cfg := validConfig(t)
	result := CheckConfig(cfg)
	if !result.Passed {
		t.Fatalf("expected valid config to pass, got: %s", result.Detail)
	}

	cfg.Gemini.APIKey = ""
	result = CheckConfig(cfg)
	if result.Passed {
		t.Fatal("expected failure for missing gemini key")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckStore_OpensFromConfig(t *testing.T) {
	cfg := validConfig(t)
	result := CheckStore(context.Background(), cfg, nil)
	if !result.Passed {
		t.Fatalf("expected store check to pass, got: %s", result.Detail)
	}
	if !strings.Contains(result.Detail, "0 jobs") {
		t.Fatalf("expected job count in detail, got: %s", result.Detail)
	}
}

func TestCheckStore_SharedStore(t *testing.T) {
	cfg := validConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	result := CheckStore(context.Background(), cfg, store)
	if !result.Passed {
		t.Fatalf("expected shared store check to pass, got: %s", result.Detail)
	}
}

func TestCheckStore_OpenFailure(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	blocked := filepath.Join(testsupport.BaseDir(cfg), "blocked")
	if err := os.WriteFile(blocked, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg.Paths.StateDir = blocked
	result := CheckStore(context.Background(), cfg, nil)
	if result.Passed {
		t.Fatal("expected failure when the state directory cannot be created")
	}
	if !strings.Contains(result.Detail, "open") {
		t.Fatalf("expected open failure detail, got: %s", result.Detail)
	}
}

func TestCheckBinaries(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	checks := CheckBinaries(context.Background(), cfg)
	if len(checks) != 3 {
		t.Fatalf("expected 3 binary checks, got %d", len(checks))
	}
	wantNames := []string{"yt-dlp", "ffmpeg", "ffprobe"}
	for i, check := range checks {
		if check.Name != wantNames[i] {
			t.Fatalf("expected check %d to be %s, got %s", i, wantNames[i], check.Name)
		}
		if !check.Passed {
			t.Errorf("expected %s to be available: %s", check.Name, check.Detail)
		}
	}
}

func TestCheckBinaries_Missing(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	t.Setenv("PATH", t.TempDir())
	checks := CheckBinaries(context.Background(), cfg)
	for _, check := range checks {
		if check.Passed {
			t.Errorf("expected %s to be unavailable with empty PATH", check.Name)
		}
		if check.Detail == "" {
			t.Errorf("expected detail for missing %s", check.Name)
		}
	}
}

func TestCheckGemini_OK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"name": "models/gemini-2.5-flash"})
	}))
	defer srv.Close()

	cfg := validConfig(t)
	client := gemini.New(gemini.Config{APIKey: "key", BaseURL: srv.URL, Model: "gemini-2.5-flash"})
	result := CheckGemini(context.Background(), cfg, client)
	if !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
	if !strings.Contains(result.Detail, "gemini-2.5-flash") {
		t.Fatalf("expected model in detail, got: %s", result.Detail)
	}
}

func TestCheckGemini_MissingKey(t *testing.T) {
	cfg := validConfig(t)
	cfg.Gemini.APIKey = ""
	result := CheckGemini(context.Background(), cfg, nil)
	if result.Passed {
		t.Fatal("expected failure for missing key")
	}
	if result.Detail != "api key missing" {
		t.Fatalf("unexpected detail: %s", result.Detail)
	}
}

func TestCheckGemini_BadKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	cfg := validConfig(t)
	client := gemini.New(gemini.Config{APIKey: "bad", BaseURL: srv.URL})
	result := CheckGemini(context.Background(), cfg, client)
	if result.Passed {
		t.Fatal("expected failure for rejected key")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckSpeech_VoiceAvailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]map[string]string{
			{"Name": "Microsoft Ameha", "ShortName": "am-ET-AmehaNeural", "Locale": "am-ET", "Gender": "Male"},
			{"Name": "Microsoft Mekdes", "ShortName": "am-ET-MekdesNeural", "Locale": "am-ET", "Gender": "Female"},
		})
	}))
	defer srv.Close()

	cfg := validConfig(t)
	client := speech.New(speech.Config{APIKey: "key", BaseURL: srv.URL, Voice: "am-ET-AmehaNeural"})
	result := CheckSpeech(context.Background(), cfg, client)
	if !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
	if !strings.Contains(result.Detail, "am-ET-AmehaNeural") {
		t.Fatalf("expected voice in detail, got: %s", result.Detail)
	}
}

func TestCheckSpeech_VoiceMissing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode([]map[string]string{
			{"Name": "Microsoft Ameha", "ShortName": "am-ET-AmehaNeural", "Locale": "am-ET"},
		})
	}))
	defer srv.Close()

	cfg := validConfig(t)
	client := speech.New(speech.Config{APIKey: "key", BaseURL: srv.URL, Voice: "am-ET-MekdesNeural"})
	result := CheckSpeech(context.Background(), cfg, client)
	if result.Passed {
		t.Fatal("expected failure for unavailable voice")
	}
	if !strings.Contains(result.Detail, "not available") {
		t.Fatalf("expected voice availability detail, got: %s", result.Detail)
	}
}

func TestCheckZThumb_Ready(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"status": "ok", "backend": "cuda", "models_available": true,
		})
	}))
	defer srv.Close()

	cfg := validConfig(t)
	client := zthumb.New(zthumb.Config{BaseURL: srv.URL})
	result := CheckZThumb(context.Background(), cfg, client)
	if !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
	if !strings.Contains(result.Detail, "cuda") {
		t.Fatalf("expected backend in detail, got: %s", result.Detail)
	}
}

func TestCheckZThumb_NotReady(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"status": "loading", "models_available": false,
		})
	}))
	defer srv.Close()

	cfg := validConfig(t)
	client := zthumb.New(zthumb.Config{BaseURL: srv.URL})
	result := CheckZThumb(context.Background(), cfg, client)
	if result.Passed {
		t.Fatal("expected failure for loading backend")
	}
	if !strings.Contains(result.Detail, "not ready") {
		t.Fatalf("expected readiness detail, got: %s", result.Detail)
	}
}

func TestCheckYouTube_UploadToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"items": []any{}})
	}))
	defer srv.Close()

	cfg := validConfig(t)

	withToken, err := youtube.New(youtube.Config{APIKey: "key", UploadToken: "tok", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	result := CheckYouTube(context.Background(), cfg, withToken)
	if !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
	if !strings.Contains(result.Detail, "uploads enabled") {
		t.Fatalf("expected uploads enabled detail, got: %s", result.Detail)
	}

	withoutToken, err := youtube.New(youtube.Config{APIKey: "key", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	result = CheckYouTube(context.Background(), cfg, withoutToken)
	if !result.Passed {
		t.Fatalf("expected pass without token, got: %s", result.Detail)
	}
	if !strings.Contains(result.Detail, "uploads disabled") {
		t.Fatalf("expected uploads disabled detail, got: %s", result.Detail)
	}
}

func TestCheckTelegram(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "good-token") {
			json.NewEncoder(w).Encode(map[string]any{"ok": true})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"ok": false, "description": "Unauthorized"})
	}))
	defer srv.Close()

	cfg := validConfig(t)
	cfg.Telegram.BotToken = "test"

	good := telegram.New(telegram.Config{BotToken: "good-token", BaseURL: srv.URL})
	result := CheckTelegram(context.Background(), cfg, good)
	if !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}

	bad := telegram.New(telegram.Config{BotToken: "bad-token", BaseURL: srv.URL})
	result = CheckTelegram(context.Background(), cfg, bad)
	if result.Passed {
		t.Fatal("expected failure for rejected token")
	}
	if !strings.Contains(result.Detail, "Unauthorized") {
		t.Fatalf("expected rejection detail, got: %s", result.Detail)
	}
}

func TestRun_NilConfig(t *testing.T) {
	results := Run(context.Background(), nil, Deps{})
	if results != nil {
		t.Fatal("expected nil results for nil config")
	}
}

func TestRun_OrderAndGating(t *testing.T) {
	zthumbSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"status": "ok", "backend": "cpu", "models_available": true,
		})
	}))
	defer zthumbSrv.Close()

	cfg := validConfig(t)
	// Empty keys short-circuit the remote checks so Run stays offline.
	cfg.Gemini.APIKey = ""
	cfg.Speech.APIKey = ""
	cfg.YouTube.APIKey = ""

	results := Run(context.Background(), cfg, Deps{})
	names := make([]string, 0, len(results))
	for _, check := range results {
		names = append(names, check.Name)
	}
	want := []string{
		"configuration", "state directory", "work directory", "output directory",
		"job store", "yt-dlp", "ffmpeg", "ffprobe", "gemini", "speech synthesis",
		"youtube",
	}
	if len(names) != len(want) {
		t.Fatalf("expected %d checks, got %d: %v", len(want), len(names), names)
	}
	for i, name := range want {
		if names[i] != name {
			t.Fatalf("expected check %d to be %s, got %s", i, name, names[i])
		}
	}

	cfg.ZThumb.Enabled = true
	cfg.ZThumb.URL = zthumbSrv.URL
	cfg.Telegram.ChannelID = "@recaps"

	results = Run(context.Background(), cfg, Deps{})
	found := map[string]bool{}
	for _, check := range results {
		found[check.Name] = true
	}
	if !found["thumbnail server"] {
		t.Fatal("expected thumbnail server check when zthumb enabled")
	}
	if !found["telegram"] {
		t.Fatal("expected telegram check when channel configured")
	}
}

func TestErr(t *testing.T) {
	if err := Err([]Check{{Name: "a", Passed: true}}); err != nil {
		t.Fatalf("expected nil error when all checks pass, got %v", err)
	}

	err := Err([]Check{
		{Name: "a", Passed: true},
		{Name: "gemini", Detail: "api key missing"},
	})
	if err == nil {
		t.Fatal("expected error for failed check")
	}
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if !strings.Contains(err.Error(), "gemini: api key missing") {
		t.Fatalf("expected failure summary in error, got %v", err)
	}
}

func TestAsFunc(t *testing.T) {
	cfg := validConfig(t)
	cfg.Gemini.APIKey = ""
	cfg.Speech.APIKey = ""
	cfg.YouTube.APIKey = ""

	fn := AsFunc(cfg, Deps{})
	err := fn(context.Background())
	if err == nil {
		t.Fatal("expected error from failing checks")
	}
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
