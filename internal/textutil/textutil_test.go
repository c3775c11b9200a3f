package textutil

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTMLToText_StripsBoilerplate(t *testing.T) {
	html := `<html><head><style>body{color:red}</style></head>
<body><nav>menu</nav><script>alert(1)</script>
<h1>Digital Transformation</h1>
<p>Key trends &amp; figures for 2026.</p>
<footer>copyright</footer></body></html>`

	text := HTMLToText(html)

	assert.Contains(t, text, "Digital Transformation")
	assert.Contains(t, text, "Key trends & figures for 2026.")
	assert.NotContains(t, text, "alert(1)")
	assert.NotContains(t, text, "menu")
	assert.NotContains(t, text, "color:red")
}

func TestHTMLToText_CapsLineCount(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 500; i++ {
		b.WriteString("<p>line</p>")
	}
	text := HTMLToText(b.String())
	assert.LessOrEqual(t, len(strings.Split(text, "\n")), maxTextLines)
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens("   "))
	assert.Equal(t, 1, EstimateTokens("hi"))
	assert.Equal(t, 10, EstimateTokens(strings.Repeat("abcd", 10)))
}

func TestTruncateToTokens_RespectsBudget(t *testing.T) {
	text := strings.Repeat("word ", 100)
	out := TruncateToTokens(text, 10)
	assert.LessOrEqual(t, EstimateTokens(out), 10)
	assert.False(t, strings.HasSuffix(out, " "))
}

func TestNormalizeQuery(t *testing.T) {
	assert.Equal(t, "digital transformation trends", NormalizeQuery("  Digital   Transformation\tTRENDS "))
}
