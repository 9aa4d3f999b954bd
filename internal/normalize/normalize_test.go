package normalize

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const jobDetailHTML = `<html><head>
<style>.hidden { display: none; }</style>
<script>console.log("tracking");</script>
</head><body>
<h1>Software Engineer</h1>
<p>Build reliable backend services.</p>
<p>Work   with a	distributed team.</p>
<h2>Requirements</h2>
<ul>
  <li>3+ years of <strong>Python</strong></li>
  <li>Experience with PostgreSQL</li>
</ul>
<h2>Benefits</h2>
<ul><li>Free snacks</li></ul>
</body></html>`

func TestHTMLToText_StripsMarkup(t *testing.T) {
	text := HTMLToText(jobDetailHTML)

	assert.Contains(t, text, "Software Engineer")
	assert.Contains(t, text, "Build reliable backend services.")
	assert.NotContains(t, text, "<")
	assert.NotContains(t, text, "console.log")
	assert.NotContains(t, text, ".hidden")
}

func TestHTMLToText_PreservesParagraphBoundaries(t *testing.T) {
	text := HTMLToText("<p>First paragraph.</p><p>Second paragraph.</p>")

	require.Equal(t, "First paragraph.\nSecond paragraph.", text)
}

func TestHTMLToText_CollapsesWhitespace(t *testing.T) {
	text := HTMLToText("<p>Work   with a\tdistributed\n team.</p>")

	assert.Equal(t, "Work with a distributed team.", text)
}

func TestHTMLToText_EmptyInput(t *testing.T) {
	assert.Equal(t, "", HTMLToText(""))
	assert.Equal(t, "", HTMLToText("<div></div>"))
}

func TestExtractRequirements_BulletsUnderHeading(t *testing.T) {
	requirements := ExtractRequirements(jobDetailHTML)

	require.Len(t, requirements, 2)
	assert.Equal(t, "bullet", requirements[0].Type)
	assert.Contains(t, requirements[0].Value, "Python")
	assert.Contains(t, requirements[1].Value, "PostgreSQL")
}

func TestExtractRequirements_StopsAtNextHeading(t *testing.T) {
	requirements := ExtractRequirements(jobDetailHTML)

	for _, r := range requirements {
		assert.NotContains(t, r.Value, "snacks")
	}
}

func TestExtractRequirements_SectionNames(t *testing.T) {
	tests := []struct {
		name    string
		heading string
	}{
		{"requirements", "Requirements"},
		{"qualifications", "Minimum Qualifications"},
		{"responsibilities", "Responsibilities"},
		{"lowercase", "requirements"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			html := "<h3>" + tt.heading + "</h3><ul><li>Go experience</li></ul>"
			requirements := ExtractRequirements(html)
			require.Len(t, requirements, 1)
			assert.Equal(t, "Go experience", requirements[0].Value)
		})
	}
}

func TestExtractRequirements_ProseSection(t *testing.T) {
	html := "<h2>Requirements</h2><p>You must know Go and enjoy shipping.</p>"
	requirements := ExtractRequirements(html)

	require.Len(t, requirements, 1)
	assert.Equal(t, "text", requirements[0].Type)
	assert.Equal(t, "You must know Go and enjoy shipping.", requirements[0].Value)
}

func TestExtractRequirements_NoMatchingHeading(t *testing.T) {
	html := "<h2>About Us</h2><ul><li>We are a startup</li></ul>"
	requirements := ExtractRequirements(html)

	assert.Empty(t, requirements)
	assert.NotNil(t, requirements)
}

func TestExtractRequirements_MalformedInput(t *testing.T) {
	assert.Empty(t, ExtractRequirements("<h2>Requirements<ul><li>"))
	assert.Empty(t, ExtractRequirements(""))
}

func TestComputeHash_Stable(t *testing.T) {
	one := ComputeHash("Software Engineer", "TestOrg", "Build APIs.")
	two := ComputeHash("Software Engineer", "TestOrg", "Build APIs.")
	three := ComputeHash("Software Engineer", "TestOrg", "Build APIs. Extra")

	assert.Equal(t, one, two)
	assert.NotEqual(t, one, three)
	assert.Len(t, one, 64)
}

func TestComputeHash_NormalizesCaseAndSpace(t *testing.T) {
	one := ComputeHash("  Software Engineer ", "TestOrg", "Build APIs.")
	two := ComputeHash("software engineer", "testorg", "build apis.")

	assert.Equal(t, one, two)
}

func TestComputeHash_EmptyFieldsDoNotShift(t *testing.T) {
	// An empty title must not collide with the title leaking into the
	// company field; the separator makes field boundaries unambiguous.
	one := ComputeHash("", "acme", "text")
	two := ComputeHash("acme", "", "text")

	assert.NotEqual(t, one, two)
}

func TestComputeHash_SeparatorNotPrintable(t *testing.T) {
	// The field separator is a control byte that cannot appear in
	// legitimate titles, company names or JD text.
	assert.False(t, strings.ContainsAny("Software Engineer at TestOrg", hashSeparator))
}
