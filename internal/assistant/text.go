package assistant

import (
	"regexp"
	"strings"
)

var (
	leadingBrackets  = regexp.MustCompile(`^[\[(<]+`)
	trailingBrackets = regexp.MustCompile(`[\])>:;,]+$`)
)

// Flatten splits a decorated chat line of the form "<prefix> name » text"
// into its sender and body. Lines without the separator have no sender.
func Flatten(line string) (sender, text string) {
	line = strings.TrimSpace(line)
	left, right, found := strings.Cut(line, senderSeparator)
	if !found {
		return "", line
	}

	text = strings.TrimSpace(right)
	if text == "" {
		text = line
	}

	fields := strings.Fields(left)
	if len(fields) > 0 {
		candidate := fields[len(fields)-1]
		candidate = leadingBrackets.ReplaceAllString(candidate, "")
		candidate = trailingBrackets.ReplaceAllString(candidate, "")
		sender = candidate
	}
	return sender, text
}

// ExtractPrompt returns what follows the agent's name in text, once chat
// decorations and the sender prefix are stripped. It reports false when
// the name is absent, nothing follows it, or the line is a join or leave
// notice.
func ExtractPrompt(name, sender, text string) (string, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", false
	}

	content := userPrefix.ReplaceAllString(text, "")
	content = rankPrefix.ReplaceAllString(content, "")
	if n := len(sender); n > 0 && len(content) > n && strings.EqualFold(content[:n], sender) {
		if c := content[n]; c == ':' || c == ' ' {
			content = content[n+1:]
		}
	}
	content = strings.TrimSpace(content)

	if sender == "" && (strings.HasPrefix(content, "(+)") || strings.HasPrefix(content, "(-)")) {
		return "", false
	}

	loc := regexp.MustCompile("(?i)" + regexp.QuoteMeta(name)).FindStringIndex(content)
	if loc == nil {
		return "", false
	}

	rest := strings.TrimSpace(content[loc[1]:])
	rest = strings.TrimSpace(afterName.ReplaceAllString(rest, ""))
	if rest == "" {
		return "", false
	}
	return rest, true
}

// SplitReply breaks a generated reply into at most maxLines non-empty chat
// lines of at most maxLen characters each.
func SplitReply(text string, maxLines, maxLen int) []string {
	var out []string
	for _, l := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		l = strings.TrimSpace(l)
		if l == "" {
			continue
		}
		if r := []rune(l); len(r) > maxLen {
			l = string(r[:maxLen])
		}
		out = append(out, l)
		if len(out) == maxLines {
			break
		}
	}
	return out
}
