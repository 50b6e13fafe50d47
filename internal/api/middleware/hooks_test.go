package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResponseHooks_RunOnceWithFinalStatus(t *testing.T) {
	var got []int
	h := ResponseHooks(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, OnResponse(r.Context(), func(status int) { got = append(got, status) }))
		assert.True(t, OnResponse(r.Context(), func(status int) { got = append(got, status*10) }))
		w.WriteHeader(http.StatusConflict)
		w.WriteHeader(http.StatusOK)
	}))

	serve(h, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, []int{409, 4090}, got)
}

func TestResponseHooks_ImplicitOK(t *testing.T) {
	var got int
	h := ResponseHooks(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		OnResponse(r.Context(), func(status int) { got = status })
		w.Write([]byte("hi"))
	}))

	serve(h, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, got)
}

func TestOnResponse_WithoutRegistry(t *testing.T) {
	assert.False(t, OnResponse(context.Background(), func(int) {}))
}
