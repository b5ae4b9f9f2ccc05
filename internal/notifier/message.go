package notifier

import (
	"fmt"
	"strings"
	"time"
)

// Field 是段落中的一行键值。值为空的字段不渲染。
type Field struct {
	Key   string
	Value string
}

type Section struct {
	Title  string
	Fields []Field
}

// Message 描述一条 Telegram 推送：标题行、等宽代码块中的若干段落、页脚。
type Message struct {
	Icon     string
	Title    string
	Sections []Section
	Footer   string
	Time     time.Time
}

// Markdown renders the message for Telegram's legacy Markdown mode. Section
// bodies go in one code block so the key column stays aligned.
func (m Message) Markdown() string {
	var b strings.Builder
	if header := strings.TrimSpace(m.Icon + " " + m.Title); header != "" {
		b.WriteString(header)
		b.WriteString("\n\n")
	}
	var body []string
	for _, sec := range m.Sections {
		if lines := sec.lines(); len(lines) > 0 {
			body = append(body, strings.Join(lines, "\n"))
		}
	}
	if len(body) > 0 {
		b.WriteString("```\n")
		b.WriteString(strings.Join(body, "\n\n"))
		b.WriteString("\n```\n\n")
	}
	if footer := strings.TrimSpace(m.Footer); footer != "" {
		b.WriteString(escapeFence(footer))
		b.WriteString("\n")
	}
	if !m.Time.IsZero() {
		b.WriteString("时间：" + m.Time.Format("2006-01-02 15:04:05 MST"))
	}
	return strings.TrimSpace(b.String())
}

func (s Section) lines() []string {
	width := 0
	kept := make([]Field, 0, len(s.Fields))
	for _, f := range s.Fields {
		if strings.TrimSpace(f.Value) == "" {
			continue
		}
		kept = append(kept, f)
		width = max(width, len(f.Key)+1)
	}
	if len(kept) == 0 {
		return nil
	}
	out := make([]string, 0, len(kept)+1)
	if title := strings.TrimSpace(s.Title); title != "" {
		out = append(out, "["+escapeFence(title)+"]")
	}
	for _, f := range kept {
		out = append(out, fmt.Sprintf("%-*s %s", width, f.Key+":", escapeFence(strings.TrimSpace(f.Value))))
	}
	return out
}

// escapeFence keeps user text from closing the code block early.
func escapeFence(s string) string {
	return strings.ReplaceAll(s, "```", "'''")
}
