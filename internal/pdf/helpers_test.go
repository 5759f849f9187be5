package pdf

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// buildPDF assembles a classic-xref PDF from object bodies; object i+1 is
// objs[i]. The catalog must be object 1.
func buildPDF(objs []string) []byte {
	var b bytes.Buffer
	b.WriteString("%PDF-1.4\n%\xe2\xe3\xcf\xd3\n")
	offsets := make([]int, len(objs))
	for i, body := range objs {
		offsets[i] = b.Len()
		fmt.Fprintf(&b, "%d 0 obj\n%s\nendobj\n", i+1, body)
	}
	xref := b.Len()
	fmt.Fprintf(&b, "xref\n0 %d\n", len(objs)+1)
	b.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&b, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&b, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objs)+1, xref)
	return b.Bytes()
}

// formObjects is a one-page form with a text field, a checkbox, a combo
// box with choices, and a two-widget radio group.
var formObjects = []string{
	// 1 catalog
	"<< /Type /Catalog /Pages 2 0 R /AcroForm << /Fields [4 0 R 5 0 R 6 0 R 7 0 R] >> >>",
	// 2 page tree
	"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
	// 3 page
	"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Annots [4 0 R 5 0 R 6 0 R 8 0 R 9 0 R] >>",
	// 4 text field
	"<< /Type /Annot /Subtype /Widget /FT /Tx /T (name) /Rect [100 700 300 720] /P 3 0 R >>",
	// 5 checkbox
	"<< /Type /Annot /Subtype /Widget /FT /Btn /T (agree) /Rect [100 650 115 665] /P 3 0 R >>",
	// 6 combo box
	"<< /Type /Annot /Subtype /Widget /FT /Ch /Ff 131072 /T (color) /Opt [(Red) [(b) (Blue)]] /Rect [100 600 250 620] /P 3 0 R >>",
	// 7 radio group
	"<< /FT /Btn /Ff 32768 /T (plan) /Kids [8 0 R 9 0 R] >>",
	// 8, 9 radio widgets
	"<< /Type /Annot /Subtype /Widget /Parent 7 0 R /Rect [100 550 112 562] /P 3 0 R >>",
	"<< /Type /Annot /Subtype /Widget /Parent 7 0 R /Rect [150 550 162 562] /P 3 0 R >>",
}

func writeForm(t *testing.T, objs []string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "form.pdf")
	require.NoError(t, os.WriteFile(path, buildPDF(objs), 0o600))
	return path
}
