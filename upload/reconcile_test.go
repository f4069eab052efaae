package upload

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/cardledger/client"
)

func processed(names ...string) []client.ProcessedFile {
	out := make([]client.ProcessedFile, len(names))
	for i, n := range names {
		out[i] = client.ProcessedFile{Filename: n, Issuer: "HDFC", Data: client.Fields{"issuer": "HDFC"}}
	}
	return out
}

func TestReconcilePartitionsEveryFile(t *testing.T) {
	submitted := []string{"a.pdf", "b.pdf", "c.pdf", "d.pdf"}
	res, err := Reconcile(submitted, client.UploadResponse{
		Processed: processed("c.pdf", "a.pdf"),
		Skipped:   []string{"d.pdf", "b.pdf"},
	})
	require.NoError(t, err)
	assert.Equal(t, len(submitted), res.Len())
	assert.Len(t, res.Processed, 2)
	assert.Equal(t, "c.pdf", res.Processed[0].Filename)
	assert.Equal(t, "HDFC", res.Processed[0].Fields["issuer"])
	assert.Equal(t, Skipped{Filename: "d.pdf", Reason: ReasonDuplicate}, res.Skipped[0])
}

func TestReconcileDuplicateNamesAsMultiset(t *testing.T) {
	res, err := Reconcile([]string{"s.pdf", "s.pdf"}, client.UploadResponse{
		Processed: processed("s.pdf"),
		Skipped:   []string{"s.pdf"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Len())
}

func TestReconcileNormalizesNames(t *testing.T) {
	_, err := Reconcile([]string{"Re\u0301sume\u0301.pdf"}, client.UploadResponse{
		Skipped: []string{"R\u00e9sum\u00e9.pdf"},
	})
	assert.NoError(t, err)
}

func TestReconcileRejectsInconsistentResponses(t *testing.T) {
	cases := map[string]client.UploadResponse{
		"Unknown":  {Processed: processed("a.pdf", "zzz.pdf"), Skipped: []string{}},
		"Missing":  {Processed: processed("a.pdf")},
		"Both":     {Processed: processed("a.pdf"), Skipped: []string{"a.pdf", "b.pdf"}},
		"Repeated": {Processed: processed("a.pdf", "a.pdf"), Skipped: []string{"b.pdf"}},
	}
	for name, resp := range cases {
		t.Run(name, func(t *testing.T) {
			res, err := Reconcile([]string{"a.pdf", "b.pdf"}, resp)
			assert.ErrorIs(t, err, ErrInconsistentResult)
			assert.Zero(t, res.Len())
		})
	}
}

func TestSummary(t *testing.T) {
	assert.Equal(t, "Upload complete.", Result{}.Summary())
	assert.Equal(t, "Upload complete. 2 file(s) processed. 1 file(s) were duplicates and skipped.", Result{
		Processed: make([]Processed, 2),
		Skipped:   make([]Skipped, 1),
	}.Summary())
	assert.Equal(t, "Upload complete. 3 file(s) were duplicates and skipped.", Result{
		Skipped: make([]Skipped, 3),
	}.Summary())
}
