package uploads

import (
	"bytes"
	"mime/multipart"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/gacha/xerrors"
)

func fileHeader(t *testing.T, filename string, content []byte) *multipart.FileHeader {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	part, err := w.CreateFormFile("image", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest("POST", "/", body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	require.NoError(t, req.ParseMultipartForm(1<<20))
	return req.MultipartForm.File["image"][0]
}

func TestSecureFilename(t *testing.T) {
	tests := map[string]string{
		"cat.png":             "cat.png",
		"../../etc/passwd":    "passwd",
		`C:\tmp\my photo.jpg`: "my_photo.jpg",
		"we!rd$name.gif":      "werdname.gif",
		"..":                  "",
		".hidden.png":         "hidden.png",
	}
	for in, want := range tests {
		assert.Equal(t, want, SecureFilename(in), in)
	}
}

func TestSave(t *testing.T) {
	d, err := New(&Config{Dir: t.TempDir(), MaxBytes: 8})
	require.NoError(t, err)

	name, err := d.Save(fileHeader(t, "../rose.PNG", []byte("png")))
	require.NoError(t, err)
	assert.Equal(t, "rose.PNG", name)
	data, err := os.ReadFile(filepath.Join(d.Root(), name))
	require.NoError(t, err)
	assert.Equal(t, "png", string(data))

	_, err = d.Save(fileHeader(t, "doc.pdf", []byte("x")))
	assert.ErrorIs(t, err, ErrTypeNotAllowed)

	_, err = d.Save(fileHeader(t, "big.png", []byte("0123456789")))
	require.Error(t, err)
	assert.Equal(t, xerrors.KindValidation, xerrors.KindOf(err))
	assert.NoFileExists(t, filepath.Join(d.Root(), "big.png"))

	_, err = d.Save(nil)
	assert.ErrorIs(t, err, ErrNoFile)
}

func TestPathAndRemove(t *testing.T) {
	d, err := New(&Config{Dir: t.TempDir()})
	require.NoError(t, err)

	_, err = d.Path("../secret.png")
	assert.ErrorIs(t, err, ErrInvalidFilename)

	p, err := d.Path("a.png")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))

	require.NoError(t, d.Remove("/some/old/dir/a.png"))
	assert.NoFileExists(t, p)
	assert.NoError(t, d.Remove("a.png"))
}
