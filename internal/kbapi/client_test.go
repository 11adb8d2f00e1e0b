package kbapi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"kbsync/internal/model"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "test-key", 5*time.Second)
}

func TestUpload_MultipartAndProgress(t *testing.T) {
	var gotAuth, gotName, gotContent string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/documents" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}
		f, header, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("form file: %v", err)
		}
		defer f.Close()
		gotName = header.Filename
		data, _ := io.ReadAll(f)
		gotContent = string(data)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"doc-42"}`))
	})

	var lastSent, lastTotal int64
	id, err := c.Upload(context.Background(), "report.pdf", 7, strings.NewReader("content"), func(sent, total int64) {
		lastSent, lastTotal = sent, total
	})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if id != "doc-42" {
		t.Fatalf("expected doc-42, got %q", id)
	}
	if gotAuth != "Bearer test-key" {
		t.Fatalf("expected bearer auth, got %q", gotAuth)
	}
	if gotName != "report.pdf" || gotContent != "content" {
		t.Fatalf("multipart payload mangled: %q/%q", gotName, gotContent)
	}
	if lastSent == 0 || lastSent != lastTotal {
		t.Fatalf("progress must end at total, got %d/%d", lastSent, lastTotal)
	}
}

func TestUpload_AcceptsDocumentIDField(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"document_id":"doc-alt"}`))
	})
	id, err := c.Upload(context.Background(), "a.pdf", 1, strings.NewReader("x"), nil)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if id != "doc-alt" {
		t.Fatalf("expected doc-alt, got %q", id)
	}
}

func TestUpload_ServiceUnavailable(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
	})
	_, err := c.Upload(context.Background(), "a.pdf", 1, strings.NewReader("x"), nil)
	var se *model.ServiceError
	if !errors.As(err, &se) {
		t.Fatalf("expected ServiceError, got %v", err)
	}
	if se.Kind != model.KindUnavailable || se.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected unavailable/503, got %s/%d", se.Kind, se.StatusCode)
	}
}

func TestUpload_BadRequestKeepsServerMessage(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"file type not supported"}`))
	})
	_, err := c.Upload(context.Background(), "a.pdf", 1, strings.NewReader("x"), nil)
	var se *model.ServiceError
	if !errors.As(err, &se) {
		t.Fatalf("expected ServiceError, got %v", err)
	}
	if se.Kind != model.KindPermanent || se.Message != "file type not supported" {
		t.Fatalf("expected permanent/server message, got %s/%q", se.Kind, se.Message)
	}
}

func TestUpload_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	c := NewClient(srv.URL, "", time.Second)

	_, err := c.Upload(context.Background(), "a.pdf", 1, strings.NewReader("x"), nil)
	var se *model.ServiceError
	if !errors.As(err, &se) {
		t.Fatalf("expected ServiceError, got %v", err)
	}
	if se.Kind != model.KindUnavailable {
		t.Fatalf("connection refused must classify as unavailable, got %s", se.Kind)
	}
}

func TestUpload_ContextCancelled(t *testing.T) {
	release := make(chan struct{})
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-release
	})
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err := c.Upload(ctx, "a.pdf", 1, strings.NewReader("x"), nil)
	if model.Classify(err) != model.KindCancelled {
		t.Fatalf("expected cancelled, got %v", err)
	}
}

func TestList_NormalizesFieldVariants(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/documents" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`[
			{"id":"a","fileName":"a.pdf","fileSize":10,"status":"INDEXED"},
			{"id":"b","name":"b.pdf","size":20,"status":"failed","error":"bad encoding"},
			{"id":"c","fileName":"c.pdf","status":"chunking"},
			{"fileName":"no-id.pdf","status":"indexed"}
		]`))
	})

	docs, err := c.List(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(docs) != 3 {
		t.Fatalf("entries without an id must be dropped, got %d docs", len(docs))
	}
	if docs[0].Status != model.ServerIndexed {
		t.Fatalf("INDEXED must normalize, got %s", docs[0].Status)
	}
	if docs[1].FileName != "b.pdf" || docs[1].FileSize != 20 {
		t.Fatalf("alt field names must map, got %q/%d", docs[1].FileName, docs[1].FileSize)
	}
	if docs[1].Status != model.ServerError || docs[1].ErrorMessage != "bad encoding" {
		t.Fatalf("failed+error must map, got %s/%q", docs[1].Status, docs[1].ErrorMessage)
	}
	if docs[2].Status != model.ServerProcessing {
		t.Fatalf("unknown status must fold to processing, got %s", docs[2].Status)
	}
}

func TestList_AcceptsWrappedArray(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"documents":[{"id":"a","fileName":"a.pdf","status":"indexed"}]}`))
	})
	docs, err := c.List(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(docs) != 1 || docs[0].ID != "a" {
		t.Fatalf("wrapped payload must parse, got %v", docs)
	}
}

func TestRetryIndexing_PostsToRetryPath(t *testing.T) {
	var gotPath, gotMethod string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotMethod = r.URL.Path, r.Method
	})
	if err := c.RetryIndexing(context.Background(), "doc-1"); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if gotMethod != http.MethodPost || gotPath != "/v1/documents/doc-1/retry" {
		t.Fatalf("unexpected request %s %s", gotMethod, gotPath)
	}
}

func TestDelete_NotFoundIsPermanent(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Errorf("expected DELETE, got %s", r.Method)
		}
		http.Error(w, "not found", http.StatusNotFound)
	})
	err := c.Delete(context.Background(), "missing")
	var se *model.ServiceError
	if !errors.As(err, &se) || se.Kind != model.KindPermanent {
		t.Fatalf("expected permanent, got %v", err)
	}
}

func TestDownload_StreamsBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/documents/doc-1/content" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte("stored bytes"))
	})
	rc, err := c.Download(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if string(data) != "stored bytes" {
		t.Fatalf("unexpected content %q", data)
	}
}

func TestAsk_ScopesAndParsesSources(t *testing.T) {
	var gotBody string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/ask" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		data, _ := io.ReadAll(r.Body)
		gotBody = string(data)
		_, _ = w.Write([]byte(`{"answer":"42","sources":[{"id":"doc-1","fileName":"a.pdf","snippet":"..."}]}`))
	})

	res, err := c.Ask(context.Background(), "what is it", []string{"doc-1", "doc-2"})
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if !strings.Contains(gotBody, `"documentIds":["doc-1","doc-2"]`) {
		t.Fatalf("scope ids must be sent, got %s", gotBody)
	}
	if res.Answer != "42" || len(res.Sources) != 1 || res.Sources[0].DocumentID != "doc-1" {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(res.ScopeIDs) != 2 {
		t.Fatalf("scope must echo back, got %v", res.ScopeIDs)
	}
}

func TestAsk_OmitsEmptyScope(t *testing.T) {
	var gotBody string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		gotBody = string(data)
		_, _ = w.Write([]byte(`{"answer":"anything"}`))
	})
	if _, err := c.Ask(context.Background(), "q", nil); err != nil {
		t.Fatalf("ask: %v", err)
	}
	if strings.Contains(gotBody, "documentIds") {
		t.Fatalf("empty scope must be omitted from the request, got %s", gotBody)
	}
}
