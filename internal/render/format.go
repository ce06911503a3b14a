package render

import (
	"fmt"
	"html"
	"regexp"
	"strconv"
	"strings"
)

var (
	codeBlockRe  = regexp.MustCompile("(?s)```(?:[A-Za-z0-9_+-]*\\n)?(.*?)```")
	inlineCodeRe = regexp.MustCompile("`([^`\\n]+)`")
	boldRe       = regexp.MustCompile(`\*\*([^*\n]+)\*\*`)
	italicRe     = regexp.MustCompile(`\*([^*\n]+)\*`)
	// 匹配发生在转义之后：允许 &amp;，遇到 &#34; &#39; &lt; &gt; 等实体即停止
	urlRe         = regexp.MustCompile(`https?://(?:[^\s<&\x00]|&amp;)+`)
	placeholderRe = regexp.MustCompile("\x00(\\d+)\x00")
)

// Escape 转义所有可能构成标记的字符。
func Escape(text string) string {
	return html.EscapeString(text)
}

// FormatBot 对机器人消息先转义、再做受限的行内格式化。
// 代码片段先被替换为占位符，避免其内容再被加粗、链接化或换行处理。
func FormatBot(text string) string {
	// NUL 用作占位符分隔，先从输入中剔除
	escaped := Escape(strings.ReplaceAll(text, "\x00", ""))

	var protected []string
	protect := func(fragment string) string {
		protected = append(protected, fragment)
		return fmt.Sprintf("\x00%d\x00", len(protected)-1)
	}

	out := codeBlockRe.ReplaceAllStringFunc(escaped, func(m string) string {
		body := codeBlockRe.FindStringSubmatch(m)[1]
		return protect("<pre><code>" + strings.TrimSuffix(body, "\n") + "</code></pre>")
	})
	out = inlineCodeRe.ReplaceAllStringFunc(out, func(m string) string {
		return protect("<code>" + inlineCodeRe.FindStringSubmatch(m)[1] + "</code>")
	})
	out = urlRe.ReplaceAllStringFunc(out, func(u string) string {
		trimmed := strings.TrimRight(u, ".,:!?)]*")
		tail := u[len(trimmed):]
		return protect(`<a href="`+trimmed+`" target="_blank" rel="noopener noreferrer">`+trimmed+`</a>`) + tail
	})
	out = boldRe.ReplaceAllString(out, "<strong>$1</strong>")
	out = italicRe.ReplaceAllString(out, "<em>$1</em>")
	out = strings.ReplaceAll(out, "\n", "<br>")

	return placeholderRe.ReplaceAllStringFunc(out, func(m string) string {
		i, err := strconv.Atoi(placeholderRe.FindStringSubmatch(m)[1])
		if err != nil || i >= len(protected) {
			return ""
		}
		return protected[i]
	})
}
