// Package embedgate 根据店铺是否启用了 app embed，决定已安装的 section 是否渲染。
//
// 启用 app embed 后，主题会在页面中输出一个哨兵元素（SentinelMarkup）。
// 每个受控 section 内放置一个 gate 根元素（GateMarkup），携带自己的 section id。
// Reconcile 在每次页面加载时运行一次：先计算页面级的 PageContext，再逐个处理 gate 根元素。
package embedgate

import (
	"bytes"
	"fmt"
	"html"
	"strings"

	"section-studio-go/pkg/log"
	"section-studio-go/pkg/metrics"

	xhtml "golang.org/x/net/html"
)

const (
	// SentinelID 是 app embed 输出的哨兵元素 id，只看是否存在，不读取内容。
	SentinelID = "section-studio-app-embed"
	// GateAttr 标记一个 gate 根元素。
	GateAttr = "data-section-studio-gate"
	// SectionIDAttr 保存 gate 所属的 section id。
	SectionIDAttr = "data-section-id"
	// StateAttr 记录 section 已被处理成的状态，保证重复运行结果不变。
	StateAttr = "data-section-studio-state"
	// WarningAttr 标记设计模式下插入的提示元素。
	WarningAttr = "data-section-studio-warning"

	sectionIDPrefix = "shopify-section-"

	// WarningText 是主题编辑器中替换 section 内容时显示的提示。
	WarningText = "This section requires the Section Studio app embed. Enable it in the theme editor under App embeds and save."
)

// PageContext 是每次页面加载计算一次的只读上下文，所有 section 共享同一份。
type PageContext struct {
	EmbedActive bool
	DesignMode  bool
}

// Decision 是对单个 section 的处理结果。
type Decision int

const (
	// DecisionSkip 表示 gate 根元素缺少 section id，不做任何处理。
	DecisionSkip Decision = iota
	// DecisionAbsent 表示页面中没有对应的 section 元素。
	DecisionAbsent
	DecisionKeep
	DecisionWarn
	DecisionHide
)

func (d Decision) String() string {
	switch d {
	case DecisionSkip:
		return "skip"
	case DecisionAbsent:
		return "absent"
	case DecisionKeep:
		return "keep"
	case DecisionWarn:
		return "warn"
	case DecisionHide:
		return "hide"
	default:
		return fmt.Sprintf("decision(%d)", int(d))
	}
}

// Result 记录一个 gate 根元素的处理结果。
type Result struct {
	SectionID string   `json:"sectionId"`
	Decision  Decision `json:"-"`
	Action    string   `json:"action"`
	// Changed 表示这次运行确实修改了文档；已处理过的 section 不会再次修改。
	Changed bool `json:"changed"`
}

// Decide 是 gate 的状态转移函数。
func Decide(pc PageContext, sectionPresent bool) Decision {
	switch {
	case !sectionPresent:
		return DecisionAbsent
	case pc.EmbedActive:
		return DecisionKeep
	case pc.DesignMode:
		return DecisionWarn
	default:
		return DecisionHide
	}
}

// NewPageContext 检查哨兵元素是否存在。
func NewPageContext(doc *xhtml.Node, designMode bool) PageContext {
	return PageContext{
		EmbedActive: findByID(doc, SentinelID) != nil,
		DesignMode:  designMode,
	}
}

// Reconcile 对文档中的每个 gate 根元素应用 pc，并返回每个根元素的处理结果。
// 它只会给 section 加上提示或隐藏，从不恢复已处理的 section，也不会把错误抛给调用方。
func Reconcile(doc *xhtml.Node, pc PageContext) (results []Result) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("[EmbedGate] reconcile 异常终止: %v", r)
		}
	}()

	for _, root := range findAll(doc, func(n *xhtml.Node) bool { return hasAttr(n, GateAttr) }) {
		sectionID := strings.TrimSpace(attr(root, SectionIDAttr))
		if sectionID == "" {
			log.Warnw("[EmbedGate] gate 缺少 section id，跳过", "attr", SectionIDAttr)
			results = append(results, record("", DecisionSkip, false))
			continue
		}

		section := findByID(doc, sectionIDPrefix+sectionID)
		decision := Decide(pc, section != nil)
		changed := false
		switch decision {
		case DecisionWarn:
			changed = warn(section)
		case DecisionHide:
			changed = hide(section)
		}
		results = append(results, record(sectionID, decision, changed))
	}
	return results
}

// ReconcileDocument 解析 HTML 文档、计算页面上下文并执行 Reconcile。
// 只有文档确实被修改时才重新渲染，否则（包括解析或渲染失败）原样返回 src。
func ReconcileDocument(src []byte, designMode bool) ([]byte, []Result) {
	doc, err := xhtml.Parse(bytes.NewReader(src))
	if err != nil {
		log.Warnf("[EmbedGate] 无法解析文档: %v", err)
		return src, nil
	}
	results := Reconcile(doc, NewPageContext(doc, designMode))
	if !anyChanged(results) {
		return src, results
	}

	var buf bytes.Buffer
	if err := xhtml.Render(&buf, doc); err != nil {
		log.Warnf("[EmbedGate] 无法渲染文档: %v", err)
		return src, results
	}
	return buf.Bytes(), results
}

// SectionSelector 返回 section 元素的 CSS 选择器，id 按 CSS.escape 规则转义。
func SectionSelector(sectionID string) string {
	return "#" + sectionIDPrefix + CSSEscape(sectionID)
}

// SentinelMarkup 是 app embed 需要输出的哨兵元素。
func SentinelMarkup() string {
	return `<div id="` + SentinelID + `" hidden aria-hidden="true"></div>`
}

// GateMarkup 是放在 section 模板中的 gate 根元素，sectionID 作为属性值转义输出。
func GateMarkup(sectionID string) string {
	return `<div ` + GateAttr + ` ` + SectionIDAttr + `="` + html.EscapeString(sectionID) + `" hidden></div>`
}

// CSSEscape 实现 CSSOM 的 CSS.escape。
func CSSEscape(s string) string {
	runes := []rune(s)
	var b strings.Builder
	for i, r := range runes {
		switch {
		case r == 0:
			b.WriteRune('\uFFFD')
		case (r >= 0x1 && r <= 0x1f) || r == 0x7f,
			i == 0 && r >= '0' && r <= '9',
			i == 1 && r >= '0' && r <= '9' && runes[0] == '-':
			fmt.Fprintf(&b, "\\%x ", r)
		case i == 0 && r == '-' && len(runes) == 1:
			b.WriteString(`\-`)
		case r >= 0x80 || r == '-' || r == '_' ||
			(r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
			b.WriteRune(r)
		default:
			b.WriteRune('\\')
			b.WriteRune(r)
		}
	}
	return b.String()
}

func record(sectionID string, d Decision, changed bool) Result {
	metrics.GateDecisions.WithLabelValues(d.String()).Inc()
	return Result{SectionID: sectionID, Decision: d, Action: d.String(), Changed: changed}
}

func anyChanged(results []Result) bool {
	for _, r := range results {
		if r.Changed {
			return true
		}
	}
	return false
}

// warn 用提示替换 section 的全部内容，返回是否修改了 section。已处理过的 section 保持不变。
func warn(section *xhtml.Node) bool {
	if hasAttr(section, StateAttr) {
		return false
	}
	for c := section.FirstChild; c != nil; {
		next := c.NextSibling
		section.RemoveChild(c)
		c = next
	}
	notice := &xhtml.Node{
		Type: xhtml.ElementNode,
		Data: "div",
		Attr: []xhtml.Attribute{
			{Key: WarningAttr},
			{Key: "role", Val: "alert"},
			{Key: "style", Val: "padding:16px;border:1px dashed #c05717;color:#8a3b00;background:#fff8f1;font-family:sans-serif;"},
		},
	}
	notice.AppendChild(&xhtml.Node{Type: xhtml.TextNode, Data: WarningText})
	section.AppendChild(notice)
	setAttr(section, StateAttr, "warned")
	return true
}

// hide 隐藏 section，返回是否修改了 section。已处理过的 section 保持不变。
func hide(section *xhtml.Node) bool {
	if hasAttr(section, StateAttr) {
		return false
	}
	setAttr(section, "hidden", "")
	style := strings.TrimSpace(attr(section, "style"))
	if style != "" && !strings.HasSuffix(style, ";") {
		style += ";"
	}
	setAttr(section, "style", style+"display:none !important;")
	setAttr(section, StateAttr, "hidden")
	return true
}

func findByID(doc *xhtml.Node, id string) *xhtml.Node {
	found := findAll(doc, func(n *xhtml.Node) bool { return attr(n, "id") == id })
	if len(found) == 0 {
		return nil
	}
	return found[0]
}

func findAll(n *xhtml.Node, match func(*xhtml.Node) bool) []*xhtml.Node {
	var out []*xhtml.Node
	var walk func(*xhtml.Node)
	walk = func(n *xhtml.Node) {
		if n.Type == xhtml.ElementNode && match(n) {
			out = append(out, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	if n != nil {
		walk(n)
	}
	return out
}

func attr(n *xhtml.Node, key string) string {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasAttr(n *xhtml.Node, key string) bool {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return true
		}
	}
	return false
}

func setAttr(n *xhtml.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, xhtml.Attribute{Key: key, Val: val})
}
