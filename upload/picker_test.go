package upload

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// minimalPDF builds a structurally valid PDF with the given page count.
func minimalPDF(pages int) []byte {
	var buf bytes.Buffer
	var offsets []int
	obj := func(body string) {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", len(offsets), body)
	}

	buf.WriteString("%PDF-1.4\n")
	obj("<< /Type /Catalog /Pages 2 0 R >>")
	kids := ""
	for i := 0; i < pages; i++ {
		kids += fmt.Sprintf("%d 0 R ", i+3)
	}
	obj(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", kids, pages))
	for i := 0; i < pages; i++ {
		obj("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] >>")
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(offsets)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref)
	return buf.Bytes()
}

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o600))
}

func TestPickerGlobs(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "2026", "jan.pdf"), minimalPDF(3))
	writeFile(t, filepath.Join(dir, "2026", "q1", "feb.pdf"), minimalPDF(1))
	writeFile(t, filepath.Join(dir, "2026", "notes.txt"), []byte("hello"))
	writeFile(t, filepath.Join(dir, "broken.pdf"), []byte("%PDF-1.4 not really a pdf"))

	p := NewPicker(nil)
	files, err := p.Pick(filepath.Join(dir, "**", "*.pdf"))
	require.NoError(t, err)
	require.Equal(t, []string{"jan.pdf", "feb.pdf", "broken.pdf"}, names(files))

	byName := map[string]File{}
	for _, f := range files {
		byName[f.Name()] = f
	}
	assert.Equal(t, 3, byName["jan.pdf"].Pages())
	assert.Equal(t, 1, byName["feb.pdf"].Pages())
	assert.Equal(t, 0, byName["broken.pdf"].Pages())
	assert.Positive(t, byName["jan.pdf"].Size())
}

func TestPickerDedupesAndKeepsPatternOrder(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.pdf")
	b := filepath.Join(dir, "b.pdf")
	writeFile(t, a, []byte("x"))
	writeFile(t, b, []byte("y"))

	files, err := NewPicker(nil).Pick(b, filepath.Join(dir, "*.pdf"))
	require.NoError(t, err)
	assert.Equal(t, []string{"b.pdf", "a.pdf"}, names(files))
}

func TestPickerNoMatch(t *testing.T) {
	_, err := NewPicker(nil).Pick(filepath.Join(t.TempDir(), "*.pdf"))
	assert.Error(t, err)
}

func TestPickedFileOpens(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.pdf")
	writeFile(t, path, []byte("content"))

	files, err := NewPicker(nil).Pick(path)
	require.NoError(t, err)
	rc, err := files[0].Open()
	require.NoError(t, err)
	defer rc.Close()
	buf := make([]byte, 7)
	_, err = rc.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "content", string(buf))
	assert.Equal(t, path, files[0].Path())
}
