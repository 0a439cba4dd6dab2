package importer

import (
	"archive/zip"
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func docx(t *testing.T, body string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("[Content_Types].xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(`<?xml version="1.0"?><Types/>`))
	require.NoError(t, err)
	if body != "" {
		w, err = zw.Create("word/document.xml")
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

const wordXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:p><w:r><w:t>Grand </w:t></w:r><w:r><w:rPr><w:b/></w:rPr><w:t>opening</w:t></w:r></w:p>
    <w:p><w:r><w:t>Price</w:t><w:tab/><w:t>99</w:t><w:br/><w:t>today only</w:t></w:r></w:p>
  </w:body>
</w:document>`

func TestImportPlainText(t *testing.T) {
	im := New()
	for _, name := range []string{"notes.txt", "NOTES.TXT", "data.csv"} {
		got, err := im.Import(name, strings.NewReader("  line one\r\nline two\n"))
		require.NoError(t, err, name)
		assert.Equal(t, "line one\nline two", got, name)
	}
}

func TestImportMarkdown(t *testing.T) {
	src := "# Grand opening\n\n" +
		"Come **early** for _free_ coffee.\nSee [the menu](https://example.com/menu).\n\n" +
		"- one\n- two\n\n" +
		"<div>ignored</div>\n\n" +
		"```\ncode stays\n```\n"
	got, err := New().Import("post.md", strings.NewReader(src))
	require.NoError(t, err)
	assert.Equal(t, "Grand opening\n\n"+
		"Come early for free coffee.\nSee the menu.\n\n"+
		"one\n\ntwo\n\n"+
		"code stays", got)
	assert.NotContains(t, got, "**")
}

func TestImportBOM(t *testing.T) {
	im := New()

	got, err := im.Import("a.txt", bytes.NewReader(append([]byte{0xEF, 0xBB, 0xBF}, "สวัสดี"...)))
	require.NoError(t, err)
	assert.Equal(t, "สวัสดี", got)

	// "hi" in UTF-16LE with BOM
	got, err = im.Import("a.txt", bytes.NewReader([]byte{0xFF, 0xFE, 'h', 0, 'i', 0}))
	require.NoError(t, err)
	assert.Equal(t, "hi", got)

	// "hi" in UTF-16BE with BOM
	got, err = im.Import("a.txt", bytes.NewReader([]byte{0xFE, 0xFF, 0, 'h', 0, 'i'}))
	require.NoError(t, err)
	assert.Equal(t, "hi", got)
}

func TestImportInvalidUTF8(t *testing.T) {
	_, err := New().Import("a.txt", bytes.NewReader([]byte{'o', 'k', 0xC3, 0x28}))
	assert.ErrorIs(t, err, ErrInvalidText)
}

func TestImportDocx(t *testing.T) {
	got, err := New().Import("post.docx", bytes.NewReader(docx(t, wordXML)))
	require.NoError(t, err)
	assert.Equal(t, "Grand opening\nPrice\t99\ntoday only", got)
}

func TestImportDocxBroken(t *testing.T) {
	im := New()
	_, err := im.Import("post.docx", strings.NewReader("not a zip"))
	assert.ErrorContains(t, err, "not a .docx archive")

	_, err = im.Import("post.docx", bytes.NewReader(docx(t, "")))
	assert.ErrorContains(t, err, "word/document.xml")

	_, err = im.Import("post.docx", bytes.NewReader(docx(t, "<w:document><w:p>")))
	assert.Error(t, err)
}

func TestImportUnsupported(t *testing.T) {
	im := New()
	for _, name := range []string{"scan.pdf", "legacy.doc", "photo.png", "noext", "archive.zip"} {
		_, err := im.Import(name, strings.NewReader("x"))
		var unsupported *UnsupportedError
		require.ErrorAs(t, err, &unsupported, name)
		assert.Equal(t, []string{".csv", ".docx", ".md", ".txt"}, unsupported.Supported)
		assert.Contains(t, err.Error(), "supported: .csv, .docx, .md, .txt")
	}
}

func TestImportTooLarge(t *testing.T) {
	im := New()
	im.SetMaxBytes(4)
	_, err := im.Import("a.txt", strings.NewReader("12345"))
	assert.ErrorIs(t, err, ErrTooLarge)

	got, err := im.Import("a.txt", strings.NewReader("1234"))
	require.NoError(t, err)
	assert.Equal(t, "1234", got)
}

func TestRegisterCustomExtractor(t *testing.T) {
	im := New()
	im.Register("PDF", ExtractorFunc(func(data []byte) (string, error) {
		if len(data) == 0 {
			return "", errors.New("empty")
		}
		return "pdf text", nil
	}))
	got, err := im.Import("scan.pdf", strings.NewReader("%PDF"))
	require.NoError(t, err)
	assert.Equal(t, "pdf text", got)
	assert.Contains(t, im.Supported(), ".pdf")
}

func TestImportFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "post.md")
	require.NoError(t, os.WriteFile(path, []byte("# Title\n"), 0o644))

	got, err := New().ImportFile(path)
	require.NoError(t, err)
	assert.Equal(t, "# Title", got)

	_, err = New().ImportFile(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}
