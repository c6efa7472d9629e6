package classify

import (
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Item 一次扫描产出的候选活动（扫描后即消费，不持久化）
type Item struct {
	URL  string
	Text string
}

// 活动链接必须包裹在可识别的条目容器内，容器外的锚点是噪音（面包屑等）
const activityContainerSel = `li.activity, li[id^="module-"]`

// 模块路径片段
const (
	modPathMark    = "/mod/"
	quizPathMark   = "/mod/quiz/"
	assignPathMark = "/mod/assign/"
	lessonPathMark = "/mod/lesson/"
)

// 文案里出现这些词的链接按测评类处理，内容遍历不碰
var assessmentWords = []string{"quiz", "assignment", "assessment", "test", "lesson"}

// CollectContent 内容遍历扫描
// 收集指向模块路径的锚点，剔除测评类、未包裹在活动容器内的、
// 以及已完成的条目；保持文档顺序，按最终URL去重
func CollectContent(doc *goquery.Document) []Item {
	var items []Item
	seen := make(map[string]bool)
	var total int

	doc.Find("a[href]").Each(func(_ int, link *goquery.Selection) {
		href, _ := link.Attr("href")
		if !strings.Contains(href, modPathMark) {
			return
		}
		total++

		container := link.Closest(activityContainerSel)
		if container.Length() == 0 {
			return
		}

		lowerHref := strings.ToLower(href)
		if strings.Contains(lowerHref, quizPathMark) ||
			strings.Contains(lowerHref, assignPathMark) ||
			strings.Contains(lowerHref, lessonPathMark) {
			return
		}

		text := strings.TrimSpace(link.Text())
		lowerText := strings.ToLower(text)
		for _, word := range assessmentWords {
			if strings.Contains(lowerText, word) {
				return
			}
		}

		if Done(container) {
			return
		}

		if seen[href] {
			return
		}
		seen[href] = true
		items = append(items, Item{URL: href, Text: text})
	})

	slog.Debug("内容扫描完成", "candidates", total, "collected", len(items))
	return items
}

// CollectQuizzes 测验遍历扫描
// 文案/标题/aria-label 提到 quiz 或 URL 命中测验模块路径的锚点，
// 排除同时标记为 assessment 的；容器与完成过滤同上，完成判定用测验专用规则
func CollectQuizzes(doc *goquery.Document) []Item {
	var items []Item
	seen := make(map[string]bool)

	doc.Find("a[href]").Each(func(_ int, link *goquery.Selection) {
		href, _ := link.Attr("href")
		if href == "" {
			return
		}

		title, _ := link.Attr("title")
		aria, _ := link.Attr("aria-label")
		text := strings.TrimSpace(link.Text())
		marker := strings.ToLower(text + " " + title + " " + aria)

		isQuiz := strings.Contains(marker, "quiz") ||
			strings.Contains(strings.ToLower(href), quizPathMark)
		if !isQuiz || strings.Contains(marker, "assessment") {
			return
		}

		container := link.Closest(activityContainerSel)
		if container.Length() == 0 {
			return
		}

		if QuizDone(container) {
			return
		}

		if seen[href] {
			return
		}
		seen[href] = true
		items = append(items, Item{URL: href, Text: text})
	})

	slog.Debug("测验扫描完成", "collected", len(items))
	return items
}

// URLs 提取条目的URL列表（displayText 在去重过滤后即丢弃）
func URLs(items []Item) []string {
	urls := make([]string, len(items))
	for i, it := range items {
		urls[i] = it.URL
	}
	return urls
}
