package httperr

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestIsBadRequest(t *testing.T) {
	if IsBadRequest(nil) {
		t.Fatalf("expected false for nil")
	}
	if IsBadRequest(NewBadRequest("bad")) != true {
		t.Fatalf("expected true for BadRequestError")
	}
	if IsBadRequest(assertErr("other")) {
		t.Fatalf("expected false for non-BadRequestError")
	}
}

func TestDecodeJSONBody(t *testing.T) {
	type body struct {
		ProjectRef string `json:"project_ref"`
	}
	cases := []struct {
		name    string
		in      string
		max     int64
		wantErr string
	}{
		{name: "ok", in: `{"project_ref":"p1"}`},
		{name: "empty", in: ``, wantErr: "request body is required"},
		{name: "malformed", in: `{"project_ref":`, wantErr: "bad json"},
		{name: "unknown_field", in: `{"project":"p1"}`, wantErr: "bad json"},
		{name: "trailing", in: `{"project_ref":"p1"} {}`, wantErr: "unexpected data after json body"},
		{name: "too_large", in: `{"project_ref":"` + strings.Repeat("x", 64) + `"}`, max: 16, wantErr: "request body too large"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/x", strings.NewReader(tc.in))
			rec := httptest.NewRecorder()
			var got body
			err := DecodeJSONBody(rec, req, tc.max, &got)
			if tc.wantErr == "" {
				if err != nil || got.ProjectRef != "p1" {
					t.Fatalf("got=%+v err=%v", got, err)
				}
				return
			}
			if !IsBadRequest(err) || err.Error() != tc.wantErr {
				t.Fatalf("err=%v", err)
			}
		})
	}
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
