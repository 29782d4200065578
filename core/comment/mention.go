package comment

import (
	"html"
	"regexp"
	"strings"
)

// mention tokens look like `@[Display Name](user:42)`
var (
	mentionRegex    = regexp.MustCompile(`@\[([^\[\]\n]+)\]\(user:([^()\s]+)\)`)
	tokenNameEscape = strings.NewReplacer("[", "", "]", "", "\n", " ")
)

type Mention struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
}

// MentionToken returns the raw token mentioning u.
func MentionToken(u User) string {
	return "@[" + strings.TrimSpace(tokenNameEscape.Replace(u.Name)) + "](user:" + u.ID + ")"
}

// Mentions returns the users mentioned in content, in order of first appearance.
func Mentions(content string) []Mention {
	matches := mentionRegex.FindAllStringSubmatch(content, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(matches))
	mentions := make([]Mention, 0, len(matches))
	for _, m := range matches {
		if seen[m[2]] {
			continue
		}
		seen[m[2]] = true
		mentions = append(mentions, Mention{UserID: m[2], Name: m[1]})
	}
	return mentions
}

// RenderContent returns content as HTML: text is escaped & mention tokens become highlighted spans.
func RenderContent(content string) string {
	var b strings.Builder
	last := 0
	for _, loc := range mentionRegex.FindAllStringSubmatchIndex(content, -1) {
		b.WriteString(escapeText(content[last:loc[0]]))
		name := content[loc[2]:loc[3]]
		id := content[loc[4]:loc[5]]
		b.WriteString(`<span class="mention" data-user-id="`)
		b.WriteString(html.EscapeString(id))
		b.WriteString(`">@`)
		b.WriteString(html.EscapeString(name))
		b.WriteString(`</span>`)
		last = loc[1]
	}
	b.WriteString(escapeText(content[last:]))
	return b.String()
}

// PlainText replaces mention tokens with `@Name`.
func PlainText(content string) string {
	return mentionRegex.ReplaceAllString(content, "@$1")
}

func escapeText(s string) string {
	return strings.ReplaceAll(html.EscapeString(s), "\n", "<br>")
}
