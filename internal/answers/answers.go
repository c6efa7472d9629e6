// Package answers 负责作业与问卷的答案解析和填写
// 解析走 goquery 静态分析，填写走注入页面的 JavaScript，
// 两边使用同一套选择器约定
package answers

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// 作业页选择器约定
const (
	questionSel    = ".que.multichoice"           // 单选题容器
	questionText   = ".qtext"                     // 题干
	answerLabelSel = `[data-region="answer-label"]` // 选项标签
	labelIDSuffix  = "_label"                     // 标签id去掉后缀即对应单选框id
)

// 占位回答文本，随机填入作业的文字输入
var randomTexts = []string{
	"This is a random response for the assignment.",
	"I have completed this task as requested.",
	"The answer to this question is not known to me.",
	"This is an automated response for the assignment.",
	"I am submitting this assignment with random answers.",
	"The content of this response is generated automatically.",
	"This is a placeholder answer for the assignment.",
	"I have attempted to answer this question randomly.",
}

// RandomText 随机取一条占位文本
func RandomText() string {
	return randomTexts[rand.Intn(len(randomTexts))]
}

// Choice 单选题的一个选项
type Choice struct {
	Text    string `json:"text"`
	RadioID string `json:"radio_id"`
}

// Question 作业页上的一道单选题
type Question struct {
	Text    string   `json:"text"`
	Choices []Choice `json:"choices"`
}

// ParseQuestions 从作业页快照提取全部单选题
func ParseQuestions(doc *goquery.Document) []Question {
	var questions []Question

	doc.Find(questionSel).Each(func(_ int, container *goquery.Selection) {
		text := strings.TrimSpace(container.Find(questionText).First().Text())
		if text == "" {
			return
		}

		q := Question{Text: text}
		container.Find(answerLabelSel).Each(func(_ int, label *goquery.Selection) {
			id, ok := label.Attr("id")
			if !ok || !strings.HasSuffix(id, labelIDSuffix) {
				return
			}
			q.Choices = append(q.Choices, Choice{
				Text:    strings.TrimSpace(label.Text()),
				RadioID: strings.TrimSuffix(id, labelIDSuffix),
			})
		})
		questions = append(questions, q)
	})

	return questions
}

// CountQuestions 作业页上的单选题数量，用于页面检测
func CountQuestions(doc *goquery.Document) int {
	return doc.Find(questionSel).Length()
}

// Missed 未能匹配到选项的题目
type Missed struct {
	Question string `json:"question"`
	Expected string `json:"expectedAnswer"`
}

// FillResult 按答案表填写的结果
type FillResult struct {
	Success            bool     `json:"success"`
	Error              string   `json:"error,omitempty"`
	QuestionsProcessed int      `json:"questionsProcessed"`
	TotalQuestions     int      `json:"totalQuestions"`
	QuestionsNotFound  []Missed `json:"questionsNotFound,omitempty"`
}

// ParseFillResult 解析注入脚本返回的JSON结果
func ParseFillResult(raw string) (FillResult, error) {
	var r FillResult
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return FillResult{}, fmt.Errorf("解析填写结果失败: %w", err)
	}
	return r, nil
}

// FillAssignmentJS 生成按答案表勾选单选框的脚本
// 答案表以题干全文为键、选项文本片段为值；选项文本包含答案片段即命中。
// 脚本返回 JSON 字符串，结构与 FillResult 对应
func FillAssignmentJS(answersMap map[string]string) (string, error) {
	data, err := json.Marshal(answersMap)
	if err != nil {
		return "", fmt.Errorf("序列化答案表失败: %w", err)
	}

	js := fmt.Sprintf(`
	(function() {
		var answers = %s;
		var containers = document.querySelectorAll('.que.multichoice');

		if (containers.length === 0) {
			return JSON.stringify({
				success: false,
				error: 'no question containers found',
				questionsProcessed: 0,
				totalQuestions: 0
			});
		}

		var processed = 0;
		var notFound = [];

		containers.forEach(function(container) {
			var textEl = container.querySelector('.qtext');
			if (!textEl) return;

			var question = textEl.textContent.trim();
			var target = answers[question];
			if (!target) return;

			var found = false;
			var labels = container.querySelectorAll('[data-region="answer-label"]');
			labels.forEach(function(label) {
				if (found) return;
				if (label.textContent.trim().indexOf(target) === -1) return;

				// 标签id去掉 _label 后缀即对应单选框id
				var radio = document.getElementById(label.id.replace('_label', ''));
				if (radio && radio.type === 'radio') {
					radio.checked = true;
					radio.dispatchEvent(new Event('change', { bubbles: true }));
					found = true;
					processed++;
				}
			});

			if (!found) {
				notFound.push({ question: question, expectedAnswer: target });
			}
		});

		return JSON.stringify({
			success: true,
			questionsProcessed: processed,
			totalQuestions: containers.length,
			questionsNotFound: notFound
		});
	})()`, string(data))

	return js, nil
}

// FillTextAreasJS 生成把占位文本填入全部文本输入的脚本
func FillTextAreasJS() string {
	data, _ := json.Marshal(randomTexts)
	return fmt.Sprintf(`
	(function() {
		var texts = %s;
		var inputs = document.querySelectorAll('textarea, input[type="text"]');
		inputs.forEach(function(input) {
			input.value = texts[Math.floor(Math.random() * texts.length)];
			input.dispatchEvent(new Event('input', { bubbles: true }));
		});
		return inputs.length;
	})()`, string(data))
}

// 问卷的正面回答与固定评语
var positiveResponses = []string{"strongly agree", "yes"}

const surveyComment = "Satisfactory"

// SurveyResult 问卷填写结果
type SurveyResult struct {
	Count     int  `json:"count"`
	Submitted bool `json:"submitted"`
}

// ParseSurveyResult 解析问卷脚本返回的JSON结果
func ParseSurveyResult(raw string) (SurveyResult, error) {
	var r SurveyResult
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return SurveyResult{}, fmt.Errorf("解析问卷结果失败: %w", err)
	}
	return r, nil
}

// FillSurveyJS 生成填写问卷的脚本
// 单选与下拉都选正面回答，评语框填固定文本，最后点提交按钮。
// 脚本返回 JSON 字符串，结构与 SurveyResult 对应
func FillSurveyJS() string {
	data, _ := json.Marshal(positiveResponses)
	return fmt.Sprintf(`
	(function() {
		var positive = %s;
		var count = 0;

		document.querySelectorAll('input[type="radio"]').forEach(function(radio) {
			var value = (radio.value || '').trim().toLowerCase();

			var labelText = '';
			var label = document.querySelector('label[for="' + radio.id + '"]') || radio.closest('label');
			if (label) {
				labelText = label.textContent.trim().toLowerCase();
			}

			if ((positive.indexOf(value) !== -1 || positive.indexOf(labelText) !== -1) && !radio.checked) {
				radio.checked = true;
				count++;
				radio.dispatchEvent(new Event('change', { bubbles: true }));
				radio.dispatchEvent(new Event('click', { bubbles: true }));
			}
		});

		document.querySelectorAll('select').forEach(function(select) {
			var match = Array.prototype.find.call(select.options, function(option) {
				return positive.indexOf(option.text.trim().toLowerCase()) !== -1 ||
					positive.indexOf(option.value.trim().toLowerCase()) !== -1;
			});
			if (match && select.value !== match.value) {
				select.value = match.value;
				count++;
				select.dispatchEvent(new Event('change', { bubbles: true }));
			}
		});

		var comment = document.getElementById('FeedbackRating_Comments');
		if (comment) {
			comment.value = %q;
			comment.dispatchEvent(new Event('input', { bubbles: true }));
			comment.dispatchEvent(new Event('change', { bubbles: true }));
		}

		var submitted = false;
		var submit = document.getElementById('btnSubmit');
		if (submit) {
			submit.click();
			submitted = true;
		}

		return JSON.stringify({ count: count, submitted: submitted });
	})()`, string(data), surveyComment)
}
