package upload

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func memFiles(names ...string) []File {
	out := make([]File, len(names))
	for i, n := range names {
		out[i] = FileFromBytes(n, []byte("%PDF "+n))
	}
	return out
}

func names(files []File) []string {
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.Name()
	}
	return out
}

func TestSelectReplacesNeverMerges(t *testing.T) {
	a := NewStagingArea()
	a.Select(memFiles("a.pdf", "b.pdf", "c.pdf"))
	require.Equal(t, 3, a.Len())

	a.Select(memFiles("d.pdf", "e.pdf"))
	assert.Equal(t, []string{"d.pdf", "e.pdf"}, names(a.Files()))

	a.Drop(memFiles("f.pdf"))
	assert.Equal(t, []string{"f.pdf"}, names(a.Files()))
	assert.Equal(t, Dropped, a.State())

	a.Select(memFiles("g.pdf", "h.pdf"))
	assert.Equal(t, 2, a.Len())
	assert.Equal(t, Idle, a.State())
}

func TestAcceptFilter(t *testing.T) {
	a := NewStagingArea()
	rejected := a.Select(memFiles("Jan.PDF", "notes.txt", "feb.pdf", "scan"))
	assert.Equal(t, []string{"notes.txt", "scan"}, rejected)
	assert.Equal(t, []string{"Jan.PDF", "feb.pdf"}, names(a.Files()))

	// A fully rejected selection still replaces the batch.
	rejected = a.Select(memFiles("x.doc"))
	assert.Equal(t, []string{"x.doc"}, rejected)
	assert.Zero(t, a.Len())

	unfiltered := NewStagingArea(WithAccept())
	assert.Empty(t, unfiltered.Select(memFiles("x.doc")))

	custom := NewStagingArea(WithAccept("PDF", ".png"))
	assert.Equal(t, []string{".pdf", ".png"}, custom.Accept())
	assert.True(t, custom.Accepts("x.png"))
}

func TestDragStates(t *testing.T) {
	a := NewStagingArea()
	assert.Equal(t, Idle, a.State())

	a.DragEnter()
	assert.Equal(t, DragOver, a.State())
	a.DragEnter()
	a.DragLeave()
	assert.Equal(t, Idle, a.State())

	a.Drop(memFiles("a.pdf"))
	a.DragEnter()
	a.DragLeave()
	assert.Equal(t, Dropped, a.State())
	assert.Equal(t, 1, a.Len(), "hover does not touch the batch")

	a.DragEnter()
	a.Drop(memFiles("b.pdf", "c.pdf"))
	assert.Equal(t, Dropped, a.State())
	assert.Equal(t, 2, a.Len())

	a.Clear()
	assert.Equal(t, Idle, a.State())
	assert.Zero(t, a.Len())
	assert.Equal(t, "idle", a.State().String())
}

func TestGenerationAndClearIf(t *testing.T) {
	a := NewStagingArea()
	g0 := a.Generation()
	a.Select(memFiles("a.pdf"))
	g1 := a.Generation()
	assert.Greater(t, g1, g0)

	a.Select(memFiles("b.pdf"))
	assert.False(t, a.clearIf(g1), "batch was replaced")
	assert.Equal(t, 1, a.Len())

	assert.True(t, a.clearIf(a.Generation()))
	assert.Zero(t, a.Len())
}

func TestFilesReturnsCopy(t *testing.T) {
	a := NewStagingArea()
	a.Select(memFiles("a.pdf"))
	files := a.Files()
	files[0] = FileFromBytes("zzz.pdf", nil)
	assert.Equal(t, "a.pdf", a.Files()[0].Name())
}
