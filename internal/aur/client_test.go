package aur

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(handler))
	t.Cleanup(srv.Close)
	return NewClientWithURL(srv.URL)
}

func TestSearch(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "5", r.URL.Query().Get("v"))
		assert.Equal(t, "search", r.URL.Query().Get("type"))
		assert.Equal(t, "name-desc", r.URL.Query().Get("by"))
		assert.Equal(t, "paru", r.URL.Query().Get("arg"))
		assert.Contains(t, r.Header.Get("User-Agent"), "asmctl")

		json.NewEncoder(w).Encode(map[string]any{
			"type": "search",
			"results": []map[string]any{
				{"Name": "paru", "Version": "2.0.4-1", "Description": "AUR helper", "NumVotes": 1500, "Popularity": 24.5},
				{"Name": "paru-bin", "Version": "2.0.4-1", "Description": "AUR helper (binary)", "NumVotes": 900},
			},
		})
	})

	pkgs, err := client.Search(context.Background(), "paru", "")
	require.NoError(t, err)
	require.Len(t, pkgs, 2)
	assert.Equal(t, "paru", pkgs[0].Name)
	assert.Equal(t, 1500, pkgs[0].Votes)
	assert.InDelta(t, 24.5, pkgs[0].Popularity, 0.001)
}

func TestInfo(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "info", r.URL.Query().Get("type"))
		assert.Equal(t, []string{"paru", "yay"}, r.URL.Query()["arg[]"])

		json.NewEncoder(w).Encode(map[string]any{
			"type": "multiinfo",
			"results": []map[string]any{
				{"Name": "paru", "Version": "2.0.4-1", "Maintainer": "morganamilo", "OutOfDate": 1720000000},
			},
		})
	})

	pkgs, err := client.Info(context.Background(), "paru", "yay")
	require.NoError(t, err)
	require.Len(t, pkgs, 1)
	assert.Equal(t, "morganamilo", pkgs[0].Maintainer)
	require.NotNil(t, pkgs[0].OutOfDate)
	assert.Equal(t, int64(1720000000), *pkgs[0].OutOfDate)
}

func TestInfo_NoNamesSkipsRequest(t *testing.T) {
	called := false
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	pkgs, err := client.Info(context.Background())
	require.NoError(t, err)
	assert.Nil(t, pkgs)
	assert.False(t, called)
}

func TestRPCErrorResponse(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"type":  "error",
			"error": "Too many package results.",
		})
	})

	_, err := client.Search(context.Background(), "a", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Too many package results")
}

func TestHTTPErrorStatus(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := client.Search(context.Background(), "paru", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestPageURL(t *testing.T) {
	p := Package{Name: "paru"}
	assert.Equal(t, "https://aur.archlinux.org/packages/paru", p.PageURL())
}
