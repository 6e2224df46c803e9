package server

import (
	"encoding/json"
	"go/types"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi"
	"github.com/google/go-cmp/cmp"
)

func TestBindAndEndpoints(t *testing.T) {
	rt := RouteTable{
		{Method: http.MethodGet, Path: "/b"}:  func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusTeapot) },
		{Method: http.MethodPost, Path: "/b"}: func(w http.ResponseWriter, r *http.Request) {},
		{Method: http.MethodGet, Path: "/a"}:  func(w http.ResponseWriter, r *http.Request) {},
	}
	if diff := cmp.Diff([]string{"/a", "/b"}, rt.Endpoints()); diff != "" {
		t.Errorf("endpoints mismatch (-want +got):\n%s", diff)
	}
	r := chi.NewRouter()
	rt.Bind(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/b", nil))
	if rec.Code != http.StatusTeapot {
		t.Errorf("expected %d got %d", http.StatusTeapot, rec.Code)
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/endpoints", nil))
	var got []string
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Errorf("expected 2 endpoints got %v", got)
	}
}

func TestHumanPayload(t *testing.T) {
	rec := httptest.NewRecorder()
	HumanPayload{T: types.Float64, Float: 2.5}.EncodeAndRespond(rec, nil)
	f := FloatT{}
	if err := json.NewDecoder(rec.Body).Decode(&f); err != nil {
		t.Fatal(err)
	}
	if f.F64 != 2.5 {
		t.Errorf("expected 2.5 got %v", f.F64)
	}
}

func TestSubMuxSanitize(t *testing.T) {
	for _, in := range []string{"omc/nkt", "/omc/nkt/", "omc/nkt/"} {
		if out := SubMuxSanitize(in); out != "/omc/nkt" {
			t.Errorf("%q: expected /omc/nkt got %q", in, out)
		}
	}
}
