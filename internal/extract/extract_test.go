package extract

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dukerupert/cartwise/internal/model"
	"github.com/shopspring/decimal"
)

func TestExtractSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("authorization = %q", got)
		}
		if got := r.Header.Get("Content-Type"); got != "image/jpeg" {
			t.Errorf("content type = %q, want image/jpeg", got)
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != "jpegbytes" {
			t.Errorf("body = %q", body)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"store_name":" Aldi ","items":[{"name":"Milk","quantity":2,"price":1.29},{"name":"  ","price":1},{"name":"Gum","price":"0.99"}]}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(Config{URL: srv.URL, APIKey: "secret"})
	r, err := c.Extract(context.Background(), []byte("jpegbytes"), "image/jpeg")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if r.StoreName != "Aldi" {
		t.Errorf("store = %q, want %q", r.StoreName, "Aldi")
	}
	if len(r.Items) != 2 {
		t.Fatalf("items = %d, want 2", len(r.Items))
	}
	if !r.Items[0].Price.Equal(decimal.RequireFromString("1.29")) || r.Items[0].Quantity != 2 {
		t.Errorf("milk = %+v", r.Items[0])
	}
	if r.Items[1].Quantity != 1 {
		t.Errorf("gum quantity = %d, want default 1", r.Items[1].Quantity)
	}
}

func TestExtractZeroItemsIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"store_name":"Aldi","items":[]}`))
	}))
	defer srv.Close()

	r, err := NewHTTPClient(Config{URL: srv.URL}).Extract(context.Background(), []byte("img"), "")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(r.Items) != 0 {
		t.Errorf("items = %d, want 0", len(r.Items))
	}
}

func TestExtractFailures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "unreadable image", http.StatusUnprocessableEntity)
		}},
		{"bad json", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`not json`))
		}},
		{"negative price", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"items":[{"name":"Milk","price":-1}]}`))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			_, err := NewHTTPClient(Config{URL: srv.URL}).Extract(context.Background(), []byte("img"), "image/png")
			if !errors.Is(err, ErrExtraction) {
				t.Errorf("err = %v, want ErrExtraction", err)
			}
		})
	}
}

func TestExtractNotConfigured(t *testing.T) {
	_, err := NewHTTPClient(Config{}).Extract(context.Background(), []byte("img"), "image/png")
	if !errors.Is(err, ErrExtraction) {
		t.Errorf("err = %v, want ErrExtraction", err)
	}
}

func TestExtractEmptyImage(t *testing.T) {
	_, err := NewHTTPClient(Config{URL: "http://unused"}).Extract(context.Background(), nil, "image/png")
	if !errors.Is(err, ErrExtraction) {
		t.Errorf("err = %v, want ErrExtraction", err)
	}
}

func TestCleanKeepsOrder(t *testing.T) {
	r, err := Clean(model.Receipt{Items: []model.ReceiptItem{{Name: "B", Quantity: 1}, {Name: "A", Quantity: 3}}})
	if err != nil {
		t.Fatalf("clean: %v", err)
	}
	if r.Items[0].Name != "B" || r.Items[1].Name != "A" {
		t.Errorf("items = %+v, want original order", r.Items)
	}
}
