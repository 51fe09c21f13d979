package directory

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/uzswlu/campus-iam/internal/infra/config"
)

func TestFetchPage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/data/employee-list" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}

		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Fatalf("unexpected authorization header: %s", got)
		}

		if got := r.URL.Query().Get("page"); got != "2" {
			t.Fatalf("unexpected page: %s", got)
		}

		if got := r.URL.Query().Get("limit"); got != "50" {
			t.Fatalf("unexpected limit: %s", got)
		}

		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"data": map[string]any{
				"items": []map[string]any{
					{"id": 101, "employee_id_number": "E-101"},
					{"id": 102, "employee_id_number": "E-102"},
				},
				"pagination": map[string]any{
					"page":       2,
					"pageCount":  4,
					"totalCount": 180,
					"perPage":    50,
				},
			},
		})
	}))
	defer server.Close()

	client := NewClient(config.DirectorySettings{
		BaseURL: server.URL,
		Token:   "test-token",
	}, zaptest.NewLogger(t))

	page, err := client.FetchPage(context.Background(), KindEmployee, 2, 50)
	if err != nil {
		t.Fatalf("FetchPage returned error: %v", err)
	}

	if len(page.Records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(page.Records))
	}

	if page.Page != 2 || page.PageCount != 4 || page.TotalItems != 180 {
		t.Fatalf("unexpected pagination: %+v", page)
	}

	if !page.HasNext() {
		t.Fatal("expected more pages after page 2 of 4")
	}
}

func TestFetchPageServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient(config.DirectorySettings{BaseURL: server.URL}, zaptest.NewLogger(t))

	if _, err := client.FetchPage(context.Background(), KindStudent, 1, 20); err == nil {
		t.Fatal("expected error for 502 response")
	}
}

func TestFetchPageUnknownKind(t *testing.T) {
	client := NewClient(config.DirectorySettings{BaseURL: "http://localhost"}, zaptest.NewLogger(t))

	if _, err := client.FetchPage(context.Background(), "alumni", 1, 20); err == nil {
		t.Fatal("expected error for unknown kind")
	}
}
