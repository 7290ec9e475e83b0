// Package sanitize cleans HTML before it is placed into a live helpdesk page.
// The pipeline is fixed: dangerous-pattern pre-strip, allowlist policy pass,
// optional markdown subset conversion, newline handling, final sweep. It never
// returns an error; malformed input degrades to maximally-stripped output.
package sanitize

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
)

// Options controls optional pipeline stages.
type Options struct {
	// Markdown converts the [text](url), **bold** and `code` subset to HTML
	// after the policy pass. Converted URLs are re-validated.
	Markdown bool
}

var dangerousPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?is)<script\b[^>]*>.*?</script\s*>`),
	regexp.MustCompile(`(?i)<script\b[^>]*/?>`),
	regexp.MustCompile(`(?i)\son\w+\s*=\s*"[^"]*"`),
	regexp.MustCompile(`(?i)\son\w+\s*=\s*'[^']*'`),
	regexp.MustCompile(`(?i)\son\w+\s*=\s*[^\s>]+`),
	// A javascript: URL invalidates its whole attribute. Trimming only the
	// scheme would leave a value that parses as a relative URL.
	regexp.MustCompile(`(?i)\s[a-z][a-z-]*\s*=\s*"\s*javascript\s*:[^"]*"`),
	regexp.MustCompile(`(?i)\s[a-z][a-z-]*\s*=\s*'\s*javascript\s*:[^']*'`),
	regexp.MustCompile(`(?i)\s[a-z][a-z-]*\s*=\s*javascript\s*:[^\s>]*`),
	regexp.MustCompile(`(?i)javascript\s*:`),
	regexp.MustCompile(`(?i)data\s*:\s*text/html`),
	regexp.MustCompile(`(?is)<(iframe|embed|object)\b[^>]*>.*?</(iframe|embed|object)\s*>`),
	regexp.MustCompile(`(?i)<(iframe|embed|object)\b[^>]*/?>`),
}

var (
	mdLinkRe = regexp.MustCompile(`\[([^\]]+)\]\(([^)\s]+)\)`)
	mdBoldRe = regexp.MustCompile(`\*\*([^*]+)\*\*`)
	mdCodeRe = regexp.MustCompile("`([^`]+)`")
	preRe    = regexp.MustCompile(`(?is)<pre\b[^>]*>.*?</pre\s*>`)
)

// policy is the shared allowlist. Disallowed elements are replaced by their
// text content, not removed with it; href schemes are restricted to http(s),
// mailto and relative URLs; absolute links get target="_blank" and
// rel="noopener noreferrer".
var policy = buildPolicy()

func buildPolicy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowElements(
		"p", "br", "b", "strong", "i", "em", "u", "s",
		"a", "ul", "ol", "li", "blockquote", "code", "pre",
		"h1", "h2", "h3", "h4", "span", "div",
	)
	p.AllowAttrs("href", "title").OnElements("a")
	p.AllowAttrs("class").OnElements("code", "pre")
	p.AllowURLSchemes("http", "https", "mailto")
	p.AllowRelativeURLs(true)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	p.RequireNoReferrerOnFullyQualifiedLinks(true)
	return p
}

// Sanitize runs input through the full pipeline and returns safe HTML.
func Sanitize(input string, opts Options) string {
	out := stripDangerous(input)
	out = policy.Sanitize(out)
	if opts.Markdown {
		// Converted anchors go back through the policy so attribute order is
		// the policy's own and a second run leaves the output unchanged.
		out = policy.Sanitize(convertMarkdown(out))
	}
	out = newlinesToBreaks(out)
	// Final sweep: nothing introduced above may smuggle a script back in.
	out = stripDangerous(out)
	return strings.TrimSpace(out)
}

// Escape returns s with HTML metacharacters escaped for plain-text use.
func Escape(s string) string { return html.EscapeString(s) }

// IsSafe reports whether input would survive sanitization unchanged. It is
// read-only and shared with tests.
func IsSafe(input string) bool {
	for _, re := range dangerousPatterns {
		if re.MatchString(input) {
			return false
		}
	}
	return policy.Sanitize(input) == input
}

func stripDangerous(s string) string {
	for _, re := range dangerousPatterns {
		s = re.ReplaceAllString(s, "")
	}
	return s
}

// AllowedLinkURL validates a URL for use in a generated link: http(s),
// mailto or relative. Returns the cleaned URL and whether it is acceptable.
func AllowedLinkURL(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	switch u.Scheme {
	case "http", "https", "mailto":
		return raw, true
	case "":
		// Relative URL; reject protocol-relative jumps to odd schemes.
		if strings.HasPrefix(raw, "//") {
			return "https:" + raw, true
		}
		return raw, true
	default:
		return "", false
	}
}

func convertMarkdown(s string) string {
	s = mdLinkRe.ReplaceAllStringFunc(s, func(m string) string {
		sub := mdLinkRe.FindStringSubmatch(m)
		text, target := sub[1], sub[2]
		clean, ok := AllowedLinkURL(target)
		if !ok {
			return text
		}
		// The policy pass adds target and rel on fully qualified links.
		return `<a href="` + html.EscapeString(clean) + `">` + text + `</a>`
	})
	s = mdBoldRe.ReplaceAllString(s, "<strong>$1</strong>")
	s = mdCodeRe.ReplaceAllString(s, "<code>$1</code>")
	return s
}

// newlinesToBreaks converts bare \n to <br> everywhere except inside <pre>
// blocks, which keep literal newlines.
func newlinesToBreaks(s string) string {
	if !strings.Contains(s, "\n") {
		return s
	}
	var out strings.Builder
	last := 0
	for _, loc := range preRe.FindAllStringIndex(s, -1) {
		out.WriteString(strings.ReplaceAll(s[last:loc[0]], "\n", "<br>"))
		out.WriteString(s[loc[0]:loc[1]])
		last = loc[1]
	}
	out.WriteString(strings.ReplaceAll(s[last:], "\n", "<br>"))
	return out.String()
}
