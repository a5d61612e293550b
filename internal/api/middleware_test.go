package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/meshforge/internal/log"
)

func TestNormalizePath(t *testing.T) {
	tests := map[string]struct {
		path    string
		expPath string
	}{
		"Static paths should be kept.":         {path: "/api/generate", expPath: "/api/generate"},
		"The jobs collection should be kept.":  {path: "/api/jobs", expPath: "/api/jobs"},
		"Job IDs should be replaced.":          {path: "/api/jobs/01J0000000000000000000000", expPath: "/api/jobs/{id}"},
		"Job subresources should keep suffix.": {path: "/api/jobs/01J0000000000000000000000/events", expPath: "/api/jobs/{id}/events"},
		"Job traces should keep suffix.":       {path: "/api/jobs/01J0000000000000000000000/trace", expPath: "/api/jobs/{id}/trace"},
		"Health checks should be kept.":        {path: "/readyz", expPath: "/readyz"},
		"Unknown paths should be grouped.":     {path: "/wp-admin/setup.php", expPath: "other"},
		"Unknown job paths should be grouped.": {path: "/api/jobs/01J0000000000000000000000/x/y", expPath: "other"},
		"Empty job IDs should be grouped.":     {path: "/api/jobs/", expPath: "other"},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, test.expPath, normalizePath(test.path))
		})
	}
}

func TestImageContentType(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\n")
	jpeg := []byte("\xff\xd8\xff\xe0")

	tests := map[string]struct {
		declared string
		head     []byte
		exp      string
	}{
		"Declared types should be used.":         {declared: "image/PNG", head: jpeg, exp: "image/png"},
		"Declared parameters should be dropped.": {declared: "image/jpeg; q=1", head: jpeg, exp: "image/jpeg"},
		"Missing types should be sniffed.":       {declared: "", head: png, exp: "image/png"},
		"Generic types should be sniffed.":       {declared: "application/octet-stream", head: jpeg, exp: "image/jpeg"},
		"Empty content can't be sniffed.":        {declared: "", head: nil, exp: "application/octet-stream"},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, test.exp, imageContentType(test.declared, test.head))
		})
	}
}

func TestRecovery(t *testing.T) {
	require := require.New(t)
	assert := assert.New(t)

	h := recovery(log.Noop)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/generate", nil))

	assert.Equal(http.StatusInternalServerError, w.Code)
	var resp ErrorResponse
	require.NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(errMsgInternal, resp.Error)
}
