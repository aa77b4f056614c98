package httpx

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apperrors "github.com/target/talentgate/internal/errors"
)

func TestWriteAppError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		body   string
	}{
		{
			name:   "validation with field",
			err:    apperrors.ValidationField("email", "Email is required."),
			status: http.StatusBadRequest,
			body:   `{"error":"validation","message":"Email is required.","field":"email"}`,
		},
		{
			name:   "forbidden",
			err:    apperrors.Forbidden("Not for you."),
			status: http.StatusForbidden,
			body:   `{"error":"forbidden","message":"Not for you."}`,
		},
		{
			name:   "upstream hides detail",
			err:    apperrors.Wrap(errors.New("dial tcp 10.0.0.1:443"), apperrors.ErrCodeUpstream, ""),
			status: http.StatusBadGateway,
			body:   `{"error":"upstream","message":"The service is temporarily unavailable. Please try again."}`,
		},
		{
			name:   "plain error is internal",
			err:    errors.New("boom"),
			status: http.StatusInternalServerError,
			body:   `{"error":"internal","message":"Something went wrong. Please try again."}`,
		},
		{
			name:   "wrapped app error keeps its code",
			err:    errors.Join(context.Canceled, apperrors.NotFound("No such profile.")),
			status: http.StatusNotFound,
			body:   `{"error":"not_found","message":"No such profile."}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			WriteAppError(rec, tt.err)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			assert.JSONEq(t, tt.body, rec.Body.String())
		})
	}
}

func TestDecodeBody(t *testing.T) {
	type input struct {
		Email string `json:"email"`
		Role  string `json:"role"`
	}

	t.Run("json", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":"a@b.c","role":"talent"}`))
		req.Header.Set("Content-Type", "application/json")
		var in input
		require.True(t, DecodeBody(httptest.NewRecorder(), req, &in))
		assert.Equal(t, input{Email: "a@b.c", Role: "talent"}, in)
	})

	t.Run("form", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("email=a%40b.c&role=mentor&csrf_token=x"))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		var in input
		require.True(t, DecodeBody(httptest.NewRecorder(), req, &in))
		assert.Equal(t, input{Email: "a@b.c", Role: "mentor"}, in)
	})

	t.Run("unknown json field", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":"a@b.c","admin":true}`))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		var in input
		assert.False(t, DecodeBody(rec, req, &in))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("oversized body", func(t *testing.T) {
		big := `{"email":"` + strings.Repeat("a", maxBodyBytes+1) + `"}`
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(big))
		rec := httptest.NewRecorder()
		var in input
		assert.False(t, DecodeJSON(rec, req, &in))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
