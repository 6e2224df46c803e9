package generichttp

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nasa-jpl/structlight/server"
)

func TestGetFloat(t *testing.T) {
	rec := httptest.NewRecorder()
	GetFloat(func() (float64, error) { return 0.5, nil })(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	f := server.FloatT{}
	if err := json.NewDecoder(rec.Body).Decode(&f); err != nil {
		t.Fatal(err)
	}
	if f.F64 != 0.5 {
		t.Errorf("expected 0.5 got %v", f.F64)
	}
}

func TestGetterError(t *testing.T) {
	rec := httptest.NewRecorder()
	GetInt(func() (int, error) { return 0, errors.New("busy") })(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected %d got %d", http.StatusInternalServerError, rec.Code)
	}
}

func TestSetString(t *testing.T) {
	var got string
	h := SetString(func(s string) error { got = s; return nil })
	body, _ := json.Marshal(server.StrT{Str: "graycode"})
	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body)))
	if rec.Code != http.StatusOK || got != "graycode" {
		t.Errorf("expected 200 and graycode got %d and %q", rec.Code, got)
	}

	rec = httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodPost, "/", bytes.NewReader([]byte("{"))))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected %d got %d", http.StatusBadRequest, rec.Code)
	}
}

func TestSetBool(t *testing.T) {
	got := false
	h := SetBool(func(b bool) error { got = b; return nil })
	body, _ := json.Marshal(server.BoolT{Bool: true})
	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body)))
	if !got {
		t.Error("expected setter to receive true")
	}
}
