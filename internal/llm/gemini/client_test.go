package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"loan-intake/internal/documents"
	"loan-intake/internal/llm"
)

type fakeAPI struct {
	t *testing.T

	mu          sync.Mutex
	uploads     int
	deletes     int
	uploadBytes []byte
	lastGen     map[string]any
	genStatus   int
	genBody     string
}

func (f *fakeAPI) handler(serverURL *string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/upload/v1beta/files", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Goog-Upload-Command") != "start" {
			f.t.Errorf("start command = %q", r.Header.Get("X-Goog-Upload-Command"))
		}
		if r.Header.Get("x-goog-api-key") != "test-key" {
			f.t.Errorf("missing api key header")
		}
		w.Header().Set("X-Goog-Upload-URL", *serverURL+"/upload-session/1")
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/upload-session/1", func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		f.uploads++
		f.uploadBytes = data
		f.mu.Unlock()
		_, _ = w.Write([]byte(`{"file":{"name":"files/abc","uri":"https://files.example/abc","mimeType":"image/png","state":"ACTIVE"}}`))
	})
	mux.HandleFunc("/v1beta/models/gemini-test:generateContent", func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			f.t.Errorf("decode generate request: %v", err)
		}
		f.mu.Lock()
		f.lastGen = payload
		status, body := f.genStatus, f.genBody
		f.mu.Unlock()
		if status == 0 {
			status = http.StatusOK
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	})
	mux.HandleFunc("/v1beta/files/abc", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			f.t.Errorf("method = %s, want DELETE", r.Method)
		}
		f.mu.Lock()
		f.deletes++
		f.mu.Unlock()
		_, _ = w.Write([]byte(`{}`))
	})
	return mux
}

func (f *fakeAPI) snapshot() (uploads, deletes int, uploaded []byte, lastGen map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.uploads, f.deletes, f.uploadBytes, f.lastGen
}

func newTestClient(t *testing.T, api *fakeAPI) *Client {
	t.Helper()
	var serverURL string
	server := httptest.NewServer(api.handler(&serverURL))
	t.Cleanup(server.Close)
	serverURL = server.URL

	client, err := NewClient(Config{APIKey: "test-key", BaseURL: server.URL, Model: "gemini-test"})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client
}

func testImage() documents.Image {
	return documents.Image{Name: "id.png", MIME: documents.MimePNG, Data: []byte("png-bytes")}
}

func TestClassifyUploadsThenGenerates(t *testing.T) {
	api := &fakeAPI{t: t, genBody: `{"candidates":[{"content":{"parts":[{"text":" National_ID_Front \n"}]}}]}`}
	client := newTestClient(t, api)

	got, err := client.Classify(context.Background(), testImage(), "which document?")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if got != "National_ID_Front" {
		t.Fatalf("Classify = %q", got)
	}
	uploads, deletes, uploaded, lastGen := api.snapshot()
	if uploads != 1 || string(uploaded) != "png-bytes" {
		t.Fatalf("uploads = %d bytes = %q", uploads, uploaded)
	}
	if deletes != 1 {
		t.Fatalf("deletes = %d, want 1", deletes)
	}

	contents := lastGen["contents"].([]any)
	parts := contents[0].(map[string]any)["parts"].([]any)
	fileData := parts[0].(map[string]any)["file_data"].(map[string]any)
	if fileData["file_uri"] != "https://files.example/abc" {
		t.Fatalf("file_uri = %v", fileData["file_uri"])
	}
	if parts[1].(map[string]any)["text"] != "which document?" {
		t.Fatalf("prompt part = %v", parts[1])
	}
	if gc, ok := lastGen["generationConfig"].(map[string]any); ok {
		if _, hasSchema := gc["responseSchema"]; hasSchema {
			t.Fatalf("classify must not request structured output")
		}
	}
}

func TestEachCallUploadsTheImageAgain(t *testing.T) {
	api := &fakeAPI{t: t, genBody: `{"candidates":[{"content":{"parts":[{"text":"{\"Currency\":\"EGP\"}"}]}}]}`}
	client := newTestClient(t, api)
	img := testImage()

	if _, err := client.Classify(context.Background(), img, "which document?"); err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if uploads, deletes, _, _ := api.snapshot(); uploads != 1 || deletes != 1 {
		t.Fatalf("after classify uploads = %d deletes = %d, want 1/1", uploads, deletes)
	}

	schema := llm.ResponseSchema{"type": "object", "properties": map[string]any{"Currency": map[string]any{"type": "string"}}}
	if _, err := client.Extract(context.Background(), img, schema, "extract"); err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if _, err := client.Extract(context.Background(), img, schema, "extract"); err != nil {
		t.Fatalf("Extract: %v", err)
	}
	uploads, deletes, uploaded, _ := api.snapshot()
	if uploads != 3 || deletes != 3 {
		t.Fatalf("uploads = %d deletes = %d, want 3/3", uploads, deletes)
	}
	if string(uploaded) != "png-bytes" {
		t.Fatalf("uploaded = %q", uploaded)
	}
}

func TestExtractSendsResponseSchema(t *testing.T) {
	api := &fakeAPI{t: t, genBody: `{"candidates":[{"content":{"parts":[{"text":"{\"Currency\":\"EGP\"}"}]}}]}`}
	client := newTestClient(t, api)

	schema := llm.ResponseSchema{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           map[string]any{"Currency": map[string]any{"type": "string"}},
		"required":             []string{"Currency"},
	}
	raw, err := client.Extract(context.Background(), testImage(), schema, "extract")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if string(raw) != `{"Currency":"EGP"}` {
		t.Fatalf("raw = %s", raw)
	}

	_, _, _, lastGen := api.snapshot()
	gc := lastGen["generationConfig"].(map[string]any)
	if gc["responseMimeType"] != "application/json" {
		t.Fatalf("responseMimeType = %v", gc["responseMimeType"])
	}
	rs := gc["responseSchema"].(map[string]any)
	if rs["type"] != "OBJECT" {
		t.Fatalf("schema type = %v", rs["type"])
	}
	if _, ok := rs["additionalProperties"]; ok {
		t.Fatalf("additionalProperties should be stripped")
	}
	prop := rs["properties"].(map[string]any)["Currency"].(map[string]any)
	if prop["type"] != "STRING" {
		t.Fatalf("property type = %v", prop["type"])
	}
}

func TestGenerateErrors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		temporary bool
		empty     bool
	}{
		{name: "server error", status: http.StatusServiceUnavailable, body: `{"error":{"code":503,"message":"overloaded"}}`, temporary: true},
		{name: "bad request", status: http.StatusBadRequest, body: `{"error":{"code":400,"message":"bad schema"}}`},
		{name: "empty candidates", body: `{"candidates":[]}`, empty: true},
		{name: "blank text", body: `{"candidates":[{"content":{"parts":[{"text":"   "}]}}]}`, empty: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			api := &fakeAPI{t: t, genStatus: tt.status, genBody: tt.body}
			client := newTestClient(t, api)

			_, err := client.Classify(context.Background(), testImage(), "prompt")
			var gwErr *llm.GatewayError
			if !errors.As(err, &gwErr) {
				t.Fatalf("expected GatewayError, got %v", err)
			}
			if gwErr.Temporary() != tt.temporary {
				t.Fatalf("Temporary() = %v, want %v (%v)", gwErr.Temporary(), tt.temporary, err)
			}
			if tt.empty && !errors.Is(err, llm.ErrEmptyResponse) {
				t.Fatalf("expected ErrEmptyResponse, got %v", err)
			}
		})
	}
}

func TestUploadFailureIsGatewayError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	}))
	defer server.Close()

	client, err := NewClient(Config{APIKey: "k", BaseURL: server.URL, Model: "gemini-test"})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	_, err = client.Classify(context.Background(), testImage(), "prompt")
	var gwErr *llm.GatewayError
	if !errors.As(err, &gwErr) || gwErr.Op != llm.OpUpload {
		t.Fatalf("expected upload GatewayError, got %v", err)
	}
	if !strings.Contains(err.Error(), "500") {
		t.Fatalf("error should carry status: %v", err)
	}
}

func TestNewClientRequiresCredentials(t *testing.T) {
	if _, err := NewClient(Config{}); err == nil {
		t.Fatal("expected error without credentials")
	}
}
