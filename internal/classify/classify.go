// Package classify 负责课程页DOM的判定工作：
// 活动是否已完成、哪些链接进入内容/测验队列。
// 所有启发式集中在这里，便于用固定HTML快照做单元测试。
package classify

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// 完成状态相关选择器
const (
	successMarkerSel    = ".badge-success, .alert-success, .completion-complete, .btn-success"
	checkGlyphSel       = "i.fa-check, .fa-check, .icon-check"
	completionToggleSel = `button[data-action="toggle-manual-completion"], .completion-toggle`
	completionRegionSel = `[data-region="completion-info"], .activity-information`
	requirementRowSel   = `[data-region="completion-info"] li, .completion-requirements li, .automatic-completion-conditions li`
	hiddenLabelSel      = ".visually-hidden, .sr-only, .accesshide"
)

// Done 判定一个活动条目是否已完成（非测验的通用规则）
// 任一线索命中即视为完成：
//  1. 成功状态标记存在
//  2. 手动完成开关的可见文案等于 done（忽略大小写）
//  3. 对勾图标存在
//  4. 完成区域全文包含 done
func Done(item *goquery.Selection) bool {
	if item == nil || item.Length() == 0 {
		return false
	}

	if item.Find(successMarkerSel).Length() > 0 {
		return true
	}

	toggle := item.Find(completionToggleSel)
	if toggle.Length() > 0 {
		label := strings.ToLower(strings.TrimSpace(toggle.First().Text()))
		if label == "done" {
			return true
		}
	}

	if item.Find(checkGlyphSel).Length() > 0 {
		return true
	}

	region := item.Find(completionRegionSel)
	if region.Length() > 0 &&
		strings.Contains(strings.ToLower(region.Text()), "done") {
		return true
	}

	return false
}

// requirement 一条完成要求行（如 "View"、"Receive a grade"）
type requirement struct {
	name string
	done bool
}

// parseRequirements 解析活动条目下的完成要求行
func parseRequirements(item *goquery.Selection) []requirement {
	var rows []requirement
	item.Find(requirementRowSel).Each(func(_ int, row *goquery.Selection) {
		rows = append(rows, requirement{
			name: strings.ToLower(strings.TrimSpace(row.Text())),
			done: requirementDone(row),
		})
	})
	return rows
}

// requirementDone 单行是否达成：成功样式、对勾图标或隐藏的无障碍标签含 done
func requirementDone(row *goquery.Selection) bool {
	if row.Is(successMarkerSel) || row.Find(successMarkerSel).Length() > 0 {
		return true
	}
	if row.Find(checkGlyphSel).Length() > 0 {
		return true
	}
	hidden := row.Find(hiddenLabelSel)
	if hidden.Length() > 0 &&
		strings.Contains(strings.ToLower(hidden.Text()), "done") {
		return true
	}
	return false
}

// QuizDone 测验专用的复合完成判定
// 完成 iff "grade"行达成 且（不存在"view"行 或 "view"行达成）。
// 某些课程只考核评分；浏览跟踪缺失时按"无此要求"处理而不是按未完成
func QuizDone(item *goquery.Selection) bool {
	if item == nil || item.Length() == 0 {
		return false
	}

	var gradeRow, viewRow *requirement
	rows := parseRequirements(item)
	for i := range rows {
		switch {
		case strings.Contains(rows[i].name, "grade"):
			if gradeRow == nil {
				gradeRow = &rows[i]
			}
		case strings.Contains(rows[i].name, "view"):
			if viewRow == nil {
				viewRow = &rows[i]
			}
		}
	}

	if gradeRow == nil || !gradeRow.done {
		return false
	}
	return viewRow == nil || viewRow.done
}
