package automator

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ControlQuery 可点击控件的统一选择器
// 扫描顺序即文档顺序，Page.ClickControl 按同一查询的下标定位元素
const ControlQuery = `button, input[type="submit"], input[type="button"], a[role="button"], a.btn`

// 模态容器选择器
const modalSel = ".modal-dialog, .modal-footer, .moodle-dialogue-base"

const submitAllLabel = "submit all and finish"

// Control 一个可点击控件的快照
type Control struct {
	Index      int    // ControlQuery 结果中的下标
	Label      string // 小写修剪后的文案（input 取 value）
	ID         string
	DataAction string
	Primary    bool // btn-primary
	Secondary  bool // btn-secondary
	InModal    bool
	Disabled   bool
	Hidden     bool
	classAttr  string
}

// hasClass 控件是否带指定class
func (c *Control) hasClass(name string) bool {
	for _, cls := range strings.Fields(c.classAttr) {
		if cls == name {
			return true
		}
	}
	return false
}

// usable 可交互：未禁用且未隐藏
func (c *Control) usable() bool {
	return !c.Disabled && !c.Hidden
}

// ScanControls 扫描页面上的全部可点击控件
func ScanControls(doc *goquery.Document) []Control {
	var controls []Control
	doc.Find(ControlQuery).Each(func(i int, sel *goquery.Selection) {
		label := strings.TrimSpace(sel.Text())
		if label == "" {
			label = strings.TrimSpace(sel.AttrOr("value", ""))
		}

		classAttr := sel.AttrOr("class", "")
		_, disabled := sel.Attr("disabled")
		_, hiddenAttr := sel.Attr("hidden")
		style := strings.ReplaceAll(sel.AttrOr("style", ""), " ", "")

		c := Control{
			Index:      i,
			Label:      strings.ToLower(label),
			ID:         sel.AttrOr("id", ""),
			DataAction: sel.AttrOr("data-action", ""),
			InModal:    sel.Closest(modalSel).Length() > 0,
			Disabled:   disabled,
			Hidden:     hiddenAttr || strings.Contains(style, "display:none"),
			classAttr:  classAttr,
		}
		c.Primary = c.hasClass("btn-primary")
		c.Secondary = c.hasClass("btn-secondary")
		controls = append(controls, c)
	})
	return controls
}

// findEntryControls 测验入口控件
// 优先 "Attempt quiz"（排除 "Re-attempt quiz"），其次 "Continue"；
// 仅剩 "Re-attempt" 时该测验视为不可作答
func findEntryControls(controls []Control) (attempt, cont, reattempt *Control) {
	for i := range controls {
		c := &controls[i]
		if !c.usable() {
			continue
		}
		isReattempt := strings.Contains(c.Label, "re-attempt quiz")
		switch {
		case isReattempt:
			if reattempt == nil {
				reattempt = c
			}
		case strings.Contains(c.Label, "attempt quiz"):
			if attempt == nil {
				attempt = c
			}
		case strings.Contains(c.Label, "continue"):
			if cont == nil {
				cont = c
			}
		}
	}
	return attempt, cont, reattempt
}

// findFinishControl "Finish attempt" 控件
func findFinishControl(controls []Control) *Control {
	for i := range controls {
		c := &controls[i]
		if !c.usable() {
			continue
		}
		if c.ID == "mod_quiz-next-nav" || c.hasClass("mod_quiz-next-nav") ||
			strings.Contains(c.Label, "finish attempt") {
			return c
		}
	}
	return nil
}

// findSubmitControl "Submit all and finish" 控件，按严格优先级回退：
//  1. 模态内的 primary 确认（data-action=save 或文案命中）
//  2. single_button 前缀ID的 primary 且文案命中
//  3. 任意 primary 且文案命中
//  4. 文案命中且非 secondary（避开 "Return to attempt" 之类）
//  5. 任意 single_button 前缀ID的 primary
func findSubmitControl(controls []Control) *Control {
	var usable []*Control
	for i := range controls {
		if controls[i].usable() {
			usable = append(usable, &controls[i])
		}
	}

	for _, c := range usable {
		if c.InModal && c.Primary &&
			(c.DataAction == "save" || strings.Contains(c.Label, submitAllLabel)) {
			return c
		}
	}
	for _, c := range usable {
		if strings.HasPrefix(c.ID, "single_button") && c.Primary &&
			strings.Contains(c.Label, submitAllLabel) {
			return c
		}
	}
	for _, c := range usable {
		if c.Primary && strings.Contains(c.Label, submitAllLabel) {
			return c
		}
	}
	for _, c := range usable {
		if strings.Contains(c.Label, submitAllLabel) && !c.Secondary {
			return c
		}
	}
	for _, c := range usable {
		if strings.HasPrefix(c.ID, "single_button") && c.Primary {
			return c
		}
	}
	return nil
}

// findModalConfirm 模态里的二次确认控件
func findModalConfirm(controls []Control) *Control {
	for i := range controls {
		c := &controls[i]
		if !c.usable() || !c.InModal || !c.Primary {
			continue
		}
		if c.DataAction == "save" || strings.Contains(c.Label, submitAllLabel) {
			return c
		}
	}
	return nil
}

// findLabeled 第一个文案包含关键词的可用控件
func findLabeled(controls []Control, keyword string) *Control {
	for i := range controls {
		c := &controls[i]
		if c.usable() && strings.Contains(c.Label, keyword) {
			return c
		}
	}
	return nil
}

// RadioGroup 一个题目的单选组（按 name 分组）
type RadioGroup struct {
	Name   string
	Values []string
}

// 清除选择的哨兵值，不参与随机作答
const clearChoiceValue = "-1"

// ScanRadioGroups 扫描可作答的单选组
// 排除哨兵值、禁用和隐藏的选项；保持首次出现的组顺序
func ScanRadioGroups(doc *goquery.Document) []RadioGroup {
	var order []string
	groups := make(map[string][]string)

	doc.Find(`input[type="radio"]`).Each(func(_ int, sel *goquery.Selection) {
		value := sel.AttrOr("value", "")
		if value == clearChoiceValue {
			return
		}
		if _, disabled := sel.Attr("disabled"); disabled {
			return
		}
		style := strings.ReplaceAll(sel.AttrOr("style", ""), " ", "")
		if strings.Contains(style, "display:none") {
			return
		}

		name := sel.AttrOr("name", "__noname__")
		if _, ok := groups[name]; !ok {
			order = append(order, name)
		}
		groups[name] = append(groups[name], value)
	})

	result := make([]RadioGroup, 0, len(order))
	for _, name := range order {
		result = append(result, RadioGroup{Name: name, Values: groups[name]})
	}
	return result
}
