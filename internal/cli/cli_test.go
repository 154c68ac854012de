package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mattn/go-runewidth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pendergraft/urlverifier/pkg/client"
)

func boolPtr(b bool) *bool { return &b }

// useServer points the CLI at url for the duration of the test.
func useServer(t *testing.T, url string) {
	t.Helper()
	origServer, origKey := server, apiKey
	t.Cleanup(func() { server, apiKey = origServer, origKey })
	server, apiKey = url, ""
	t.Setenv("URLVERIFIER_API_KEY", "")
	withHome(t)
}

func TestGetServer(t *testing.T) {
	origServer := server
	defer func() { server = origServer }()

	t.Run("flag takes precedence", func(t *testing.T) {
		server = "http://flag-server:8080"
		t.Setenv("URLVERIFIER_SERVER", "http://env-server:8080")
		assert.Equal(t, "http://flag-server:8080", getServer())
	})

	t.Run("env var when no flag", func(t *testing.T) {
		server = ""
		t.Setenv("URLVERIFIER_SERVER", "http://env-server:8080")
		assert.Equal(t, "http://env-server:8080", getServer())
	})

	t.Run("default when nothing set", func(t *testing.T) {
		server = ""
		t.Setenv("URLVERIFIER_SERVER", "")
		assert.Equal(t, "http://localhost:8080", getServer())
	})
}

func TestGetAPIKey(t *testing.T) {
	origKey, origServer := apiKey, server
	defer func() { apiKey, server = origKey, origServer }()
	server = "http://keyed:8080"
	withHome(t)

	t.Run("flag takes precedence", func(t *testing.T) {
		apiKey = "flag-key"
		t.Setenv("URLVERIFIER_API_KEY", "env-key")
		assert.Equal(t, "flag-key", getAPIKey())
	})

	t.Run("env var when no flag", func(t *testing.T) {
		apiKey = ""
		t.Setenv("URLVERIFIER_API_KEY", "env-key")
		assert.Equal(t, "env-key", getAPIKey())
	})

	t.Run("stored credential for the server", func(t *testing.T) {
		apiKey = ""
		t.Setenv("URLVERIFIER_API_KEY", "")
		assert.Equal(t, "", getAPIKey())

		require.NoError(t, saveCredential("http://keyed:8080", ServerCredential{APIKey: "stored-key"}))
		assert.Equal(t, "stored-key", getAPIKey())
	})
}

func TestLoadProjectConfig(t *testing.T) {
	dir := t.TempDir()

	t.Run("valid config", func(t *testing.T) {
		path := filepath.Join(dir, "urlverifier.toml")
		require.NoError(t, os.WriteFile(path, []byte(`
server = "http://test:8080"
min_version = "1.2.0"
query = "Is there a pricing page?"
filter = "no-content"
`), 0644))

		config, err := loadProjectConfigFromPath(path)
		require.NoError(t, err)
		assert.Equal(t, "http://test:8080", config.Server)
		assert.Equal(t, "1.2.0", config.MinVersion)
		assert.Equal(t, "Is there a pricing page?", config.Query)
		assert.Equal(t, "no-content", config.Filter)
	})

	t.Run("unknown filter", func(t *testing.T) {
		path := filepath.Join(dir, "bad-filter.toml")
		require.NoError(t, os.WriteFile(path, []byte(`filter = "broken"`), 0644))

		_, err := loadProjectConfigFromPath(path)
		assert.Error(t, err)
	})

	t.Run("invalid toml", func(t *testing.T) {
		path := filepath.Join(dir, "bad.toml")
		require.NoError(t, os.WriteFile(path, []byte(`server = `), 0644))

		_, err := loadProjectConfigFromPath(path)
		assert.Error(t, err)
	})

	t.Run("explicit --config path", func(t *testing.T) {
		origCfg := cfgFile
		defer func() { cfgFile = origCfg }()
		cfgFile = filepath.Join(dir, "urlverifier.toml")

		config, path, err := loadProjectConfig()
		require.NoError(t, err)
		assert.Equal(t, cfgFile, path)
		assert.Equal(t, "http://test:8080", config.Server)
	})
}

func TestConfigInit(t *testing.T) {
	origDir, err := os.Getwd()
	require.NoError(t, err)
	defer os.Chdir(origDir)
	require.NoError(t, os.Chdir(t.TempDir()))

	require.NoError(t, runConfigInit("http://init:8080", "1.0.0", "What is the price?", false))

	config, err := loadProjectConfigFromPath("urlverifier.toml")
	require.NoError(t, err)
	assert.Equal(t, "http://init:8080", config.Server)
	assert.Equal(t, "1.0.0", config.MinVersion)
	assert.Equal(t, "What is the price?", config.Query)

	err = runConfigInit("http://other:8080", "", "", false)
	assert.ErrorContains(t, err, "already exists")

	require.NoError(t, runConfigInit("http://other:8080", "", "", true))
	config, err = loadProjectConfigFromPath("urlverifier.toml")
	require.NoError(t, err)
	assert.Equal(t, "http://other:8080", config.Server)
}

func TestCheckServerVersion(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"ok","version":"1.2.0"}`))
	}))
	defer ts.Close()
	c := client.New(ts.URL, "")

	assert.NoError(t, checkServerVersion(context.Background(), c, "1.0.0"))
	assert.NoError(t, checkServerVersion(context.Background(), c, "v1.2.0"))
	assert.ErrorContains(t, checkServerVersion(context.Background(), c, "2.0.0"), "older than")
	assert.ErrorContains(t, checkServerVersion(context.Background(), c, "not-semver"), "min_version")
}

func TestTableRender(t *testing.T) {
	tbl := newTable("NAME", "VALUE")
	tbl.add("日本語", "x")
	tbl.add("ab", "multi\nline   value")

	var buf bytes.Buffer
	require.NoError(t, tbl.render(&buf))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "NAME    VALUE", lines[0])
	assert.Equal(t, "日本語  x", lines[1])
	assert.Equal(t, "ab      multi line value", lines[2])
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "unbounded", truncate("unbounded", 0))

	long := truncate("https://example.com/a/very/long/path/that/keeps/going", 20)
	assert.LessOrEqual(t, runewidth.StringWidth(long), 20)
	assert.True(t, strings.HasSuffix(long, ellipsis))

	wide := truncate("検証済みのページの回答です", 9)
	assert.LessOrEqual(t, runewidth.StringWidth(wide), 9)
	assert.True(t, strings.HasSuffix(wide, ellipsis))
}

func TestRenderView(t *testing.T) {
	view := &client.View{
		Data: []client.Record{
			{URL: "https://a.example", Timestamp: "2024-01-02T10:00:00Z", StatusCode: 200, IsAccessible: boolPtr(true)},
			{
				URL:           "https://b.example",
				Timestamp:     "2024-01-01T10:00:00Z",
				StatusCode:    200,
				IsAccessible:  boolPtr(true),
				Query:         "price?",
				ContentFound:  boolPtr(false),
				ConciseAnswer: "Not found",
				Analysis:      "The page\nhas no prices.",
			},
		},
		Stats:     client.Stats{Total: 2, Accessible: 1, NoContent: 1},
		View:      "all",
		Filter:    "all",
		Source:    "chain",
		Highlight: &client.Highlight{Index: 1, Key: "https://b.example-2024-01-01T10:00:00Z-1"},
	}

	var buf bytes.Buffer
	require.NoError(t, renderView(&buf, view, "https://b.example"))
	out := buf.String()

	assert.Contains(t, out, "STATUS")
	assert.Contains(t, out, "no-content")
	assert.Contains(t, out, "2 total: 1 accessible, 0 inaccessible, 1 no content")
	assert.Contains(t, out, "Analysis:\n  The page has no prices.")
	assert.NotContains(t, out, "Answer:", "sentinel answers are not shown")

	var marked []string
	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(line, ">") {
			marked = append(marked, line)
		}
	}
	require.Len(t, marked, 1)
	assert.Contains(t, marked[0], "https://b.example")
}

func TestRenderViewEmpty(t *testing.T) {
	tests := []struct {
		name string
		view client.View
		want string
	}{
		{"nothing yet", client.View{Filter: "all"}, "No verifications yet"},
		{"filtered", client.View{Filter: "inaccessible"}, "No inaccessible verifications"},
		{"searched", client.View{Filter: "all", Search: "pricing"}, `No verifications match "pricing"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, renderView(&buf, &tt.view, ""))
			assert.Contains(t, buf.String(), tt.want)
		})
	}
}

func TestRenderViewMissingHighlight(t *testing.T) {
	view := &client.View{
		Data:   []client.Record{{URL: "https://a.example", IsAccessible: boolPtr(false), ErrorMessage: "timeout"}},
		Stats:  client.Stats{Total: 1, Inaccessible: 1},
		Source: "snapshot",
	}

	var buf bytes.Buffer
	require.NoError(t, renderView(&buf, view, "https://missing.example"))
	out := buf.String()
	assert.Contains(t, out, "Offline snapshot")
	assert.Contains(t, out, "timeout")
	assert.Contains(t, out, "No record for https://missing.example in this view")
}

func TestRenderSubmissions(t *testing.T) {
	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	list := &client.SubmissionList{
		Data: []client.Submission{
			{ID: "3f2a6c1e-8d4b-4c2a-9e1f-0b5d7a9c2e41", URL: "https://a.example", State: "confirmed", TxHash: "0x" + strings.Repeat("ab", 32), Attempts: 3, CreatedAt: created},
			{ID: "9b1d2e3f-0000-4c2a-9e1f-0b5d7a9c2e41", URL: "https://b.example", State: "timed_out", Attempts: 24, CreatedAt: created},
		},
		Pagination: client.Pagination{Limit: 2, HasMore: true, NextCursor: "abc"},
	}

	var buf bytes.Buffer
	require.NoError(t, renderSubmissions(&buf, list))
	out := buf.String()

	assert.Contains(t, out, "3f2a6c1e")
	assert.NotContains(t, out, "3f2a6c1e-8d4b")
	assert.Contains(t, out, "0xabababab…abab")
	assert.Contains(t, out, "timed_out")
	assert.Contains(t, out, "--cursor abc")
}

func TestSubmitError(t *testing.T) {
	tests := []struct {
		code string
		want string
	}{
		{"CONFIRMATION_TIMEOUT", "may still be recorded"},
		{"NOT_INITIALIZED", "urlverifier init"},
		{"SETUP_REQUIRED", "no contract configured"},
		{"UNAUTHORIZED", "auth login"},
		{"RATE_LIMIT_EXCEEDED", "try again"},
		{"SUBMISSION_FAILED", "verification failed"},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := submitError(&client.APIError{Code: tt.code, Message: "boom"})
			assert.Contains(t, err.Error(), tt.want)

			var apiErr *client.APIError
			assert.True(t, errors.As(err, &apiErr))
		})
	}
}

func TestRunVerify(t *testing.T) {
	var got client.SubmitRequest
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1/verifications" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if got.URL == "https://slow.example" {
			w.WriteHeader(http.StatusGatewayTimeout)
			w.Write([]byte(`{"error":{"code":"CONFIRMATION_TIMEOUT","message":"not accepted"}}`))
			return
		}
		w.Write([]byte(`{"submissionId":"s1","txHash":"0xabc","status":"ACCEPTED","attempts":2}`))
	}))
	defer ts.Close()
	useServer(t, ts.URL)

	t.Run("submits trimmed url with query", func(t *testing.T) {
		err := runVerify(context.Background(), "  https://example.com  ", "price?", true, true)
		require.NoError(t, err)
		assert.Equal(t, "https://example.com", got.URL)
		assert.Equal(t, "price?", got.Query)
		assert.True(t, got.ForceRefresh)
	})

	t.Run("empty url is rejected locally", func(t *testing.T) {
		err := runVerify(context.Background(), "   ", "", false, true)
		assert.ErrorContains(t, err, "url cannot be empty")
	})

	t.Run("timeout is reported as unknown outcome", func(t *testing.T) {
		err := runVerify(context.Background(), "https://slow.example", "", false, true)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "may still be recorded")
		assert.True(t, client.IsCode(err, "CONFIRMATION_TIMEOUT"))
	})
}

func TestRunListOfflineWithoutSnapshot(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "true", r.URL.Query().Get("offline"))
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":{"code":"NOT_FOUND","message":"no stored verifications"}}`))
	}))
	defer ts.Close()
	useServer(t, ts.URL)

	err := runList(context.Background(), listOptions{ViewOptions: client.ViewOptions{View: "summary", Offline: true}})
	assert.ErrorContains(t, err, "no stored snapshot")
}

func TestCommandTree(t *testing.T) {
	history := createHistoryCmd()
	filter := history.Flags().Lookup("filter")
	require.NotNil(t, filter)
	assert.Equal(t, "all", filter.DefValue)
	assert.NotNil(t, history.Flags().Lookup("search"))
	assert.NotNil(t, history.Flags().Lookup("url"))

	verify := createVerifyCmd()
	assert.NotNil(t, verify.Flags().Lookup("query"))
	assert.NotNil(t, verify.Flags().Lookup("force"))
	assert.Error(t, verify.Args(verify, nil))

	subs := createSubmissionsCmd()
	assert.NoError(t, subs.Args(subs, []string{"id"}))
	assert.Error(t, subs.Args(subs, []string{"a", "b"}))
}
