package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/scholarship-intake-api/internal/service"
	appErrors "github.com/noah-isme/scholarship-intake-api/pkg/errors"
)

type fakeFileSrv struct {
	dir         string
	signedToken string
	openedWith  string
}

func (f *fakeFileSrv) Open(_ context.Context, filename string) (*service.DocumentDownload, error) {
	f.openedWith = "session"
	return f.open(filename)
}

func (f *fakeFileSrv) OpenSigned(_ context.Context, filename, token string) (*service.DocumentDownload, error) {
	f.openedWith = "token"
	if token != f.signedToken {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid or expired download link")
	}
	return f.open(filename)
}

func (f *fakeFileSrv) open(filename string) (*service.DocumentDownload, error) {
	if filename == ".." {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid file name")
	}
	file, err := os.Open(filepath.Join(f.dir, filename))
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "file not found")
	}
	info, _ := file.Stat()
	return &service.DocumentDownload{
		File:         file,
		StoredName:   filename,
		OriginalName: "Bilhete de Identidade.pdf",
		ContentType:  "application/pdf",
		SizeBytes:    info.Size(),
	}, nil
}

func TestFileHandlerStreamsDocument(t *testing.T) {
	gin.SetMode(gin.TestMode)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "1714550400000-abc.pdf"), []byte("%PDF-1.4"), 0o600))
	srv := &fakeFileSrv{dir: dir, signedToken: "tok"}
	handler := NewFileHandler(srv)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/files/1714550400000-abc.pdf", nil)
	c.Params = gin.Params{{Key: "filename", Value: "1714550400000-abc.pdf"}}
	handler.Serve(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "%PDF-1.4", rec.Body.String())
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "inline")
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "Bilhete de Identidade.pdf")
	assert.Equal(t, "session", srv.openedWith)
}

func TestFileHandlerSignedTokenAndErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "doc.pdf"), []byte("%PDF-1.4"), 0o600))
	srv := &fakeFileSrv{dir: dir, signedToken: "tok"}
	handler := NewFileHandler(srv)

	cases := []struct {
		name     string
		target   string
		filename string
		status   int
	}{
		{name: "valid token", target: "/files/doc.pdf?token=tok", filename: "doc.pdf", status: http.StatusOK},
		{name: "bad token", target: "/files/doc.pdf?token=forged", filename: "doc.pdf", status: http.StatusUnauthorized},
		{name: "traversal", target: "/files/..", filename: "..", status: http.StatusBadRequest},
		{name: "missing", target: "/files/none.pdf", filename: "none.pdf", status: http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(rec)
			c.Request = httptest.NewRequest(http.MethodGet, tc.target, nil)
			c.Params = gin.Params{{Key: "filename", Value: tc.filename}}
			handler.Serve(c)
			assert.Equal(t, tc.status, rec.Code)
		})
	}
}
