package service

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/vipclub/access-server/internal/errors"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")

type part struct {
	name string
	data []byte
}

func multipartFiles(t *testing.T, parts ...part) []*multipart.FileHeader {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for _, p := range parts {
		fw, err := w.CreateFormFile("files", p.name)
		require.NoError(t, err)
		_, err = fw.Write(p.data)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	require.NoError(t, req.ParseMultipartForm(32<<20))
	return req.MultipartForm.File["files"]
}

func TestUploadService_Save(t *testing.T) {
	dir := t.TempDir()
	svc, err := NewUploadService(dir, "https://club.example")
	require.NoError(t, err)

	files, err := svc.Save(multipartFiles(t, part{"cover.PNG", pngHeader}))
	require.NoError(t, err)
	require.Len(t, files, 1)

	f := files[0]
	assert.Equal(t, "image/png", f.ContentType)
	assert.True(t, strings.HasSuffix(f.Name, ".png"))
	assert.Equal(t, "https://club.example/uploads/"+f.Name, f.URL)

	stored, err := os.ReadFile(filepath.Join(dir, f.Name))
	require.NoError(t, err)
	assert.Equal(t, pngHeader, stored)
}

func TestUploadService_RejectsNonImage(t *testing.T) {
	dir := t.TempDir()
	svc, err := NewUploadService(dir, "")
	require.NoError(t, err)

	_, err = svc.Save(multipartFiles(t,
		part{"ok.png", pngHeader},
		part{"notes.png", []byte("just some text pretending")},
	))
	assert.Equal(t, apperrors.ErrCodeUnsupportedMedia, apperrors.GetCode(err))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestUploadService_RejectsLargeFile(t *testing.T) {
	svc, err := NewUploadService(t.TempDir(), "")
	require.NoError(t, err)

	big := append(append([]byte{}, pngHeader...), make([]byte, 5<<20)...)
	_, err = svc.Save(multipartFiles(t, part{"huge.png", big}))
	assert.Equal(t, apperrors.ErrCodeFileTooLarge, apperrors.GetCode(err))
}

func TestUploadService_RequiresFiles(t *testing.T) {
	svc, err := NewUploadService(t.TempDir(), "")
	require.NoError(t, err)

	_, err = svc.Save(nil)
	assert.Equal(t, apperrors.ErrCodeMissingRequired, apperrors.GetCode(err))
}
