package utils

import "strings"

// markdownV2Replacer escapes every character reserved by Telegram MarkdownV2.
var markdownV2Replacer = strings.NewReplacer(
	"_", "\\_",
	"*", "\\*",
	"[", "\\[",
	"]", "\\]",
	"(", "\\(",
	")", "\\)",
	"~", "\\~",
	"`", "\\`",
	">", "\\>",
	"#", "\\#",
	"+", "\\+",
	"-", "\\-",
	"=", "\\=",
	"|", "\\|",
	"{", "\\{",
	"}", "\\}",
	".", "\\.",
	"!", "\\!",
)

// EscapeMarkdownV2 escapes a string for safe use in a MarkdownV2 caption or message.
func EscapeMarkdownV2(s string) string {
	return markdownV2Replacer.Replace(s)
}
