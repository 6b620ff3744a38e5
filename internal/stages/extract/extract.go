// Package extract implements the URL-detect pipeline's page-to-claim step
// (SPEC_FULL.md §4, Supplemented features): clean a fetched page's HTML down to its main
// content, then ask the LM to pull out the structured news elements
// (title, body, publish date) before the text ever reaches the Risk Stage.
package extract

import (
	"context"
	"regexp"
	"strings"

	"factcheck-orchestrator/internal/llmgw"
)

const systemPrompt = `You are a news content extraction assistant. From the given HTML snippet, extract the core news elements and return strict JSON only: {"title": string, "content": string, "publish_date": string}. "content" should keep paragraphs intact and drop ads/related-reads/navigation text. "publish_date" should be YYYY-MM-DD or empty if it cannot be determined. If the HTML contains more than one article, extract only the primary one. No prose, no markdown fences.`

const maxHTMLChars = 15000

var stripCommentRe = regexp.MustCompile(`(?s)<!--.*?-->`)
var whitespaceRe = regexp.MustCompile(`\s+`)

// blockTags lists the tags preprocess strips entirely (open tag through
// matching close tag), mirroring _preprocess_html's backreference-driven
// removal -- Go's regexp has no backreferences, so each tag gets its own
// compiled pattern instead of one parametrized one.
var blockTagRes = compileBlockTagRes("script", "style", "head", "nav", "footer", "iframe")

func compileBlockTagRes(tags ...string) []*regexp.Regexp {
	res := make([]*regexp.Regexp, len(tags))
	for i, tag := range tags {
		res[i] = regexp.MustCompile(`(?is)<` + tag + `[^>]*>.*?</` + tag + `>`)
	}
	return res
}

// preprocessHTML strips script/style/head/nav/footer/iframe blocks and
// comments, collapses whitespace, and truncates to maxHTMLChars -- the
// same token-saving clean-up the crawler runs before ever calling the LM.
func preprocessHTML(html string) string {
	for _, re := range blockTagRes {
		html = re.ReplaceAllString(html, "")
	}
	html = stripCommentRe.ReplaceAllString(html, "")
	html = strings.TrimSpace(whitespaceRe.ReplaceAllString(html, " "))
	if len(html) > maxHTMLChars {
		html = html[:maxHTMLChars]
	}
	return html
}

// Result is one URL's extraction outcome. Success is false whenever the LM
// extraction step fails or is unavailable -- callers must not feed a
// failed Result's empty Content into the rest of the pipeline.
type Result struct {
	Title       string
	Content     string
	PublishDate string
	Success     bool
	ErrorMsg    string
}

// Run cleans rawHTML and asks the LM to extract the page's news elements.
// It never falls back to the raw page text: an extraction failure is
// reported as Result{Success: false}, matching crawl_news_url's contract
// that an empty/failed extraction must not silently become claim text.
func Run(ctx context.Context, gw *llmgw.Gateway, sourceURL, rawHTML string) Result {
	cleaned := preprocessHTML(rawHTML)
	if gw == nil {
		return Result{Success: false, ErrorMsg: "no LM gateway configured"}
	}
	user := "URL: " + sourceURL + "\n\nHTML Snippet:\n" + cleaned
	out := gw.CallJSON(ctx, systemPrompt, user, llmgw.CallJSONOptions{TraceLabel: "extract", StageName: "extract"})
	if out == nil {
		return Result{Success: false, ErrorMsg: "LM extraction failed"}
	}
	title, _ := out["title"].(string)
	content, _ := out["content"].(string)
	publishDate, _ := out["publish_date"].(string)
	content = strings.TrimSpace(content)
	if content == "" {
		return Result{Success: false, ErrorMsg: "LM extraction returned empty content"}
	}
	return Result{
		Title:       strings.TrimSpace(title),
		Content:     content,
		PublishDate: strings.TrimSpace(publishDate),
		Success:     true,
	}
}
