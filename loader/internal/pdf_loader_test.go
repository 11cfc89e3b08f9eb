package internal

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildPDF lays out objects 1..n with a matching xref table. Object 1 must
// be the catalog.
func buildPDF(objects []string) []byte {
	var b bytes.Buffer
	b.WriteString("%PDF-1.7\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = b.Len()
		fmt.Fprintf(&b, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := b.Len()
	fmt.Fprintf(&b, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&b, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&b, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return b.Bytes()
}

func stream(data string) string {
	return fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(data), data)
}

// identityHPDF shows lines with a Type0 Identity-H font. Every character is
// a two-byte glyph id that only the ToUnicode CMap maps back to text.
func identityHPDF(lines ...string) []byte {
	gids := map[rune]int{}
	var order []rune
	var content strings.Builder
	content.WriteString("BT\n/F1 12 Tf\n72 720 Td\n")
	for i, line := range lines {
		if i > 0 {
			content.WriteString("0 -16 Td\n")
		}
		content.WriteString("<")
		for _, r := range line {
			gid, ok := gids[r]
			if !ok {
				order = append(order, r)
				gid = len(order)
				gids[r] = gid
			}
			fmt.Fprintf(&content, "%04X", gid)
		}
		content.WriteString("> Tj\n")
	}
	content.WriteString("ET")

	var cmap strings.Builder
	cmap.WriteString("/CIDInit /ProcSet findresource begin\n12 dict begin\nbegincmap\n" +
		"/CIDSystemInfo << /Registry (Adobe) /Ordering (UCS) /Supplement 0 >> def\n" +
		"/CMapName /Adobe-Identity-UCS def\n/CMapType 2 def\n" +
		"1 begincodespacerange\n<0000> <FFFF>\nendcodespacerange\n")
	fmt.Fprintf(&cmap, "%d beginbfchar\n", len(order))
	for i, r := range order {
		fmt.Fprintf(&cmap, "<%04X> <%04X>\n", i+1, r)
	}
	cmap.WriteString("endbfchar\nendcmap\nCMapName currentdict /CMap defineresource pop\nend\nend")

	return buildPDF([]string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 5 0 R >> >> /Contents 4 0 R >>",
		stream(content.String()),
		"<< /Type /Font /Subtype /Type0 /BaseFont /NotoSans-Regular /Encoding /Identity-H /DescendantFonts [6 0 R] /ToUnicode 7 0 R >>",
		"<< /Type /Font /Subtype /CIDFontType2 /BaseFont /NotoSans-Regular " +
			"/CIDSystemInfo << /Registry (Adobe) /Ordering (Identity) /Supplement 0 >> " +
			"/FontDescriptor 8 0 R /CIDToGIDMap /Identity /DW 500 >>",
		stream(cmap.String()),
		"<< /Type /FontDescriptor /FontName /NotoSans-Regular /Flags 32 /FontBBox [0 -200 1000 900] " +
			"/ItalicAngle 0 /Ascent 900 /Descent -200 /CapHeight 700 /StemV 80 >>",
	})
}

// helveticaPDF has one page per entry; an empty entry is a page without text.
func helveticaPDF(pages ...string) []byte {
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"", // page tree, filled in below
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>",
	}
	var kids []string
	for _, text := range pages {
		content := "BT\nET"
		if text != "" {
			content = fmt.Sprintf("BT\n/F1 12 Tf\n72 720 Td\n(%s) Tj\nET", text)
		}
		objects = append(objects, stream(content))
		contentRef := len(objects)
		objects = append(objects, fmt.Sprintf(
			"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>",
			contentRef))
		kids = append(kids, fmt.Sprintf("%d 0 R", len(objects)))
	}
	objects[1] = fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(kids))
	return buildPDF(objects)
}

func TestPDFExtractIdentityHFont(t *testing.T) {
	path := writeFile(t, t.TempDir(), "report.pdf", string(identityHPDF("Quarterly report", "Revenue grew by 12%")))

	got, err := PDFExtractor{}.Extract(context.Background(), path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(got, "[Page 1]\n"), got)
	assert.Contains(t, got, "Quarterly report")
	assert.Contains(t, got, "Revenue grew by 12%")
	assert.NotContains(t, got, "\x00")
}

func TestPDFExtractSkipsEmptyPages(t *testing.T) {
	path := writeFile(t, t.TempDir(), "pages.pdf", string(helveticaPDF("First page", "", "Third page")))

	got, err := PDFExtractor{}.Extract(context.Background(), path)
	require.NoError(t, err)
	assert.NotContains(t, got, "[Page 2]")
	var last int
	for _, want := range []string{"[Page 1]", "First page", "[Page 3]", "Third page"} {
		i := strings.Index(got, want)
		require.GreaterOrEqual(t, i, last, "%q in %q", want, got)
		last = i
	}
}

func TestPDFExtractCancelled(t *testing.T) {
	path := writeFile(t, t.TempDir(), "pages.pdf", string(helveticaPDF("First page")))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := PDFExtractor{}.Extract(ctx, path)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExtractorReadsPDF(t *testing.T) {
	path := writeFile(t, t.TempDir(), "report.pdf", string(identityHPDF("Mnemora keeps notes")))
	assert.Contains(t, NewExtractor(nil).Extract(context.Background(), path), "Mnemora keeps notes")
}
