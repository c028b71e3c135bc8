package embedgate

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	xhtml "golang.org/x/net/html"
)

const pageTemplate = `<html><head></head><body>%s
<div id="shopify-section-hero" class="shopify-section">%s<h2>Summer sale</h2><p>Up to 50%% off</p></div>
<div id="shopify-section-footer" class="shopify-section"><p>Footer</p></div>
</body></html>`

func buildPage(withSentinel bool) string {
	sentinel := ""
	if withSentinel {
		sentinel = SentinelMarkup()
	}
	return fmt.Sprintf(pageTemplate, sentinel, GateMarkup("hero"))
}

func parse(t *testing.T, src string) *xhtml.Node {
	t.Helper()
	doc, err := xhtml.Parse(strings.NewReader(src))
	require.NoError(t, err)
	return doc
}

func render(t *testing.T, doc *xhtml.Node) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, xhtml.Render(&buf, doc))
	return buf.String()
}

func TestDecide(t *testing.T) {
	tests := []struct {
		pc      PageContext
		present bool
		want    Decision
	}{
		{PageContext{EmbedActive: true}, true, DecisionKeep},
		{PageContext{EmbedActive: true, DesignMode: true}, true, DecisionKeep},
		{PageContext{DesignMode: true}, true, DecisionWarn},
		{PageContext{}, true, DecisionHide},
		{PageContext{}, false, DecisionAbsent},
		{PageContext{DesignMode: true}, false, DecisionAbsent},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Decide(tt.pc, tt.present), "%+v present=%v", tt.pc, tt.present)
	}
}

func TestReconcileSentinelPresentKeepsSection(t *testing.T) {
	doc := parse(t, buildPage(true))
	before := render(t, doc)

	pc := NewPageContext(doc, false)
	assert.True(t, pc.EmbedActive)

	results := Reconcile(doc, pc)
	require.Len(t, results, 1)
	assert.Equal(t, DecisionKeep, results[0].Decision)
	assert.Equal(t, "hero", results[0].SectionID)
	assert.Equal(t, before, render(t, doc))
}

func TestReconcileLiveStorefrontHidesSection(t *testing.T) {
	doc := parse(t, buildPage(false))
	footerBefore := render(t, findByID(doc, "shopify-section-footer"))

	results := Reconcile(doc, NewPageContext(doc, false))
	require.Len(t, results, 1)
	assert.Equal(t, DecisionHide, results[0].Decision)

	section := findByID(doc, "shopify-section-hero")
	assert.True(t, hasAttr(section, "hidden"))
	assert.Contains(t, attr(section, "style"), "display:none")
	assert.Equal(t, "hidden", attr(section, StateAttr))
	// 其他元素不受影响
	assert.Equal(t, footerBefore, render(t, findByID(doc, "shopify-section-footer")))
	assert.Contains(t, render(t, section), "Summer sale")
}

func TestReconcileDesignModeReplacesContent(t *testing.T) {
	doc := parse(t, buildPage(false))

	results := Reconcile(doc, NewPageContext(doc, true))
	require.Len(t, results, 1)
	assert.Equal(t, DecisionWarn, results[0].Decision)

	out := render(t, findByID(doc, "shopify-section-hero"))
	assert.Contains(t, out, WarningText)
	assert.NotContains(t, out, "Summer sale")
	assert.NotContains(t, out, GateAttr)
	assert.False(t, hasAttr(findByID(doc, "shopify-section-hero"), "hidden"))
}

func TestReconcileSectionAbsentIsNoOp(t *testing.T) {
	src := `<html><head></head><body><div ` + GateAttr + ` ` + SectionIDAttr + `="missing"></div><p>x</p></body></html>`
	for _, designMode := range []bool{false, true} {
		doc := parse(t, src)
		before := render(t, doc)

		results := Reconcile(doc, NewPageContext(doc, designMode))
		require.Len(t, results, 1)
		assert.Equal(t, DecisionAbsent, results[0].Decision)
		assert.Equal(t, before, render(t, doc))
	}
}

func TestReconcileMissingSectionIDIsSkipped(t *testing.T) {
	src := fmt.Sprintf(pageTemplate, "", `<div `+GateAttr+` `+SectionIDAttr+`="  "></div><div `+GateAttr+`></div>`)
	doc := parse(t, src)
	before := render(t, doc)

	results := Reconcile(doc, NewPageContext(doc, false))
	require.Len(t, results, 2)
	for _, r := range results {
		assert.Equal(t, DecisionSkip, r.Decision)
		assert.Equal(t, "skip", r.Action)
	}
	assert.Equal(t, before, render(t, doc))
}

func TestReconcileIsIdempotent(t *testing.T) {
	for _, designMode := range []bool{false, true} {
		doc := parse(t, buildPage(false))
		pc := NewPageContext(doc, designMode)

		Reconcile(doc, pc)
		first := render(t, doc)
		Reconcile(doc, pc)
		assert.Equal(t, first, render(t, doc), "designMode=%v", designMode)
	}
}

func TestReconcileNeverRestoresResolvedSection(t *testing.T) {
	doc := parse(t, buildPage(false))
	Reconcile(doc, NewPageContext(doc, false))
	hidden := render(t, doc)

	// 即使之后以启用状态再次运行，也不会恢复已隐藏的 section
	Reconcile(doc, PageContext{EmbedActive: true})
	assert.Equal(t, hidden, render(t, doc))
}

func TestReconcileDocument(t *testing.T) {
	out, results := ReconcileDocument([]byte(buildPage(false)), false)
	require.Len(t, results, 1)
	assert.True(t, results[0].Changed)
	assert.Contains(t, string(out), StateAttr+`="hidden"`)

	// 再次处理已隐藏的文档不会改写它
	again, results := ReconcileDocument(out, false)
	require.Len(t, results, 1)
	assert.False(t, results[0].Changed)
	assert.Equal(t, string(out), string(again))
}

func TestReconcileDocumentReturnsUntouchedInput(t *testing.T) {
	docs := map[string]struct {
		src        string
		designMode bool
	}{
		"fragment without gates": {"<p>plain page</p>", false},
		"sentinel present":       {buildPage(true), true},
		"section absent":         {`<div ` + GateAttr + ` ` + SectionIDAttr + `="missing"></div>`, false},
		"gate without id":        {`<section><div ` + GateAttr + `></div></section>`, true},
	}
	for name, tt := range docs {
		out, results := ReconcileDocument([]byte(tt.src), tt.designMode)
		assert.Equal(t, tt.src, string(out), name)
		for _, r := range results {
			assert.False(t, r.Changed, name)
		}
	}
}

func TestSectionSelector(t *testing.T) {
	tests := map[string]string{
		"template--1234__hero": "#shopify-section-template--1234__hero",
		"1abc":                 `#shopify-section-\31 abc`,
		"-":                    `#shopify-section-\-`,
		"-2x":                  `#shopify-section--\32 x`,
		`a"]b`:                 `#shopify-section-a\"\]b`,
		"a b":                  `#shopify-section-a\ b`,
		"\x00":                 "#shopify-section-\uFFFD",
		"\x01x":                `#shopify-section-\1 x`,
		"é":                    "#shopify-section-é",
	}
	for in, want := range tests {
		assert.Equal(t, want, SectionSelector(in), "input %q", in)
	}
}

func TestGateMarkupEscapesSectionID(t *testing.T) {
	id := `x"><script>alert(1)</script>`
	doc := parse(t, "<html><body>"+GateMarkup(id)+"</body></html>")

	gates := findAll(doc, func(n *xhtml.Node) bool { return hasAttr(n, GateAttr) })
	require.Len(t, gates, 1)
	assert.Equal(t, id, attr(gates[0], SectionIDAttr))
	assert.Empty(t, findAll(doc, func(n *xhtml.Node) bool { return n.Data == "script" }))
}

func TestSentinelMarkup(t *testing.T) {
	doc := parse(t, "<html><body>"+SentinelMarkup()+"</body></html>")
	assert.True(t, NewPageContext(doc, false).EmbedActive)
	assert.False(t, NewPageContext(parse(t, "<p>no embed</p>"), false).EmbedActive)
}
