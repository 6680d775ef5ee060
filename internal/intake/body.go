package intake

import "strings"

// DefaultTextBodyMinRatio is the minimum plain-to-HTML length ratio at
// which the plain-text body is trusted over the HTML body. Some providers
// ship a stub text part alongside the real HTML content.
const DefaultTextBodyMinRatio = 0.3

// SelectBody picks which body variant feeds task extraction. Plain text is
// preferred whenever it carries at least minRatio of the HTML body's
// length; an absent counterpart makes the present one win outright.
func SelectBody(textBody, htmlBody *string, minRatio float64) string {
	text := ""
	if textBody != nil {
		text = *textBody
	}
	html := ""
	if htmlBody != nil {
		html = *htmlBody
	}

	if strings.TrimSpace(text) == "" {
		return html
	}
	if strings.TrimSpace(html) == "" {
		return text
	}
	if float64(len(text)) >= minRatio*float64(len(html)) {
		return text
	}
	return html
}
