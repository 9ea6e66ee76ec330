package transport

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestHTTPConn_Do_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got, want := r.URL.Query().Get("q"), "v"; got != want {
			t.Errorf("query param q = %q; want %q", got, want)
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != "payload" {
			t.Errorf("body = %q; want %q", body, "payload")
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	conn := NewHTTPConn(strings.TrimPrefix(srv.URL, "http://"), time.Second)
	defer conn.Close()

	resp, err := conn.Do(context.Background(), Request{
		Method: http.MethodPost,
		Path:   "/partitions/7",
		Query:  []QueryParam{{Key: "q", Value: "v"}},
		Body:   []byte("payload"),
	})
	if err != nil {
		t.Fatalf("Do returned error: %v", err)
	}
	if resp.Error {
		t.Fatal("expected Error=false on a well-formed HTTP response")
	}
	if resp.Status != http.StatusCreated {
		t.Errorf("Status = %d; want %d", resp.Status, http.StatusCreated)
	}
	if string(resp.Body) != "ok" {
		t.Errorf("Body = %q; want %q", resp.Body, "ok")
	}
}

func TestHTTPConn_Do_DialFailureSetsErrorFlag(t *testing.T) {
	conn := NewHTTPConn("127.0.0.1:1", 50*time.Millisecond)
	defer conn.Close()

	resp, err := conn.Do(context.Background(), Request{Method: http.MethodGet, Path: "/x"})
	if err != nil {
		t.Fatalf("Do should report transport failures via Response.Error, not err; got err=%v", err)
	}
	if !resp.Error {
		t.Error("expected Error=true for an unreachable peer")
	}
}
