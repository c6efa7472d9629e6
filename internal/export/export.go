// Package export 把采集到的题目答案落盘成JSON文件
// 路径规则固定：Database/<课程>/<作业>.json，名字先消毒成安全路径段
package export

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const databaseDir = "Database"

// sanitizeSegment 把任意名字转成安全的路径段
// 去掉路径分隔符和Windows保留字符，空结果回退为占位名
func sanitizeSegment(name string) string {
	replacer := strings.NewReplacer(
		"/", "_",
		"\\", "_",
		":", "_",
		"*", "_",
		"?", "_",
		"\"", "_",
		"<", "_",
		">", "_",
		"|", "_",
	)
	s := strings.TrimSpace(replacer.Replace(name))
	s = strings.Trim(s, ". ")
	if s == "" {
		return "unnamed"
	}
	return s
}

// Path 导出文件的落盘路径
func Path(baseDir, courseName, assignmentName string) string {
	return filepath.Join(baseDir, databaseDir,
		sanitizeSegment(courseName),
		sanitizeSegment(assignmentName)+".json")
}

// Write 把payload写成JSON文件，目录不存在时逐级创建
func Write(baseDir, courseName, assignmentName string, payload any) error {
	path := Path(baseDir, courseName, assignmentName)

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("创建导出目录失败: %w", err)
	}

	data, err := json.MarshalIndent(payload, "", "    ")
	if err != nil {
		return fmt.Errorf("序列化导出内容失败: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("写入导出文件失败: %w", err)
	}
	return nil
}
