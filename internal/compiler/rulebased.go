package compiler

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/smallbiznis/replyflow/internal/automation/domain"
)

// RuleBased compiles prompts with fixed keyword and phrase rules. It
// performs no I/O.
type RuleBased struct{}

func NewRuleBased() *RuleBased {
	return &RuleBased{}
}

func (c *RuleBased) Name() string { return "rules" }

func (c *RuleBased) Compile(_ context.Context, prompt string, isPro bool) domain.AutomationSpec {
	return compileRules(prompt, isPro)
}

func compileRules(prompt string, isPro bool) domain.AutomationSpec {
	raw := strings.TrimSpace(prompt)
	lower := strings.ToLower(raw)

	response, payload := extractResponse(raw)
	keywords := extractKeywords(raw, payload)
	triggers := detectTriggers(lower)

	kind := domain.ListenerMessage
	if isPro && containsAny(lower, smartAICues) {
		kind = domain.ListenerSmartAI
	}

	listener := domain.ListenerSpec{Kind: kind, Prompt: response}
	if kind == domain.ListenerSmartAI {
		listener.Prompt = raw
	}

	spec := domain.AutomationSpec{
		Triggers:     triggers,
		Keywords:     keywords,
		Listener:     listener,
		ResponseText: response,
	}
	if spec.HasTrigger(domain.TriggerComment) {
		spec.Listener.CommentReply = DefaultCommentReply
	}
	spec.Name = synthesizeName(spec)
	return spec
}

func detectTriggers(lower string) []domain.TriggerType {
	triggers := make([]domain.TriggerType, 0, 2)
	if containsAny(lower, commentCues) {
		triggers = append(triggers, domain.TriggerComment)
	}
	if containsAny(lower, dmCues) {
		triggers = append(triggers, domain.TriggerDM)
	}
	if len(triggers) == 0 {
		triggers = append(triggers, domain.TriggerDM)
	}
	return triggers
}

type span struct {
	start, end int
}

func (s span) contains(other span) bool {
	return s.end > s.start && other.start >= s.start && other.end <= s.end
}

var (
	doubleQuoted = regexp.MustCompile(`"([^"]+)"`)
	curlyQuoted  = regexp.MustCompile(`“([^”]+)”`)
	singleQuoted = regexp.MustCompile(`(?:^|[\s(\[{:,])'([^']+)'(?:$|[\s.,!?;:)\]}])`)
	capsToken    = regexp.MustCompile(`\b[A-Z][A-Z0-9_]+\b`)
)

// Trigger words written in capitals are not keywords.
var capsStopWords = map[string]struct{}{
	"DM":  {},
	"DMS": {},
	"AI":  {},
}

type keywordHit struct {
	pos  int
	word string
}

// extractKeywords collects quoted phrases and bare all-caps tokens in prompt
// order. The quoted reply payload is excluded.
func extractKeywords(raw string, payload span) []string {
	var hits []keywordHit
	var quoted []span

	for _, re := range []*regexp.Regexp{doubleQuoted, curlyQuoted, singleQuoted} {
		for _, m := range re.FindAllStringSubmatchIndex(raw, -1) {
			inner := span{start: m[2], end: m[3]}
			quoted = append(quoted, span{start: m[0], end: m[1]})
			if payload.contains(inner) {
				continue
			}
			hits = append(hits, keywordHit{pos: inner.start, word: raw[inner.start:inner.end]})
		}
	}

	for _, m := range capsToken.FindAllStringIndex(raw, -1) {
		token := span{start: m[0], end: m[1]}
		if insideAny(token, quoted) {
			continue
		}
		word := raw[token.start:token.end]
		if _, stop := capsStopWords[word]; stop {
			continue
		}
		hits = append(hits, keywordHit{pos: token.start, word: word})
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].pos < hits[j].pos })

	return NormalizeKeywords(wordsOf(hits))
}

func wordsOf(hits []keywordHit) []string {
	words := make([]string, 0, len(hits))
	for _, hit := range hits {
		words = append(words, hit.word)
	}
	return words
}

// NormalizeKeywords uppercases, trims and dedupes keywords, defaulting to INFO.
func NormalizeKeywords(words []string) []string {
	seen := make(map[string]struct{}, len(words))
	out := make([]string, 0, len(words))
	for _, word := range words {
		normalized := NormalizeKeyword(word)
		if normalized == "" {
			continue
		}
		if _, dup := seen[normalized]; dup {
			continue
		}
		seen[normalized] = struct{}{}
		out = append(out, normalized)
	}
	if len(out) == 0 {
		return []string{DefaultKeyword}
	}
	return out
}

func NormalizeKeyword(word string) string {
	return strings.ToUpper(strings.Join(strings.Fields(word), " "))
}

func insideAny(s span, spans []span) bool {
	for _, candidate := range spans {
		if candidate.contains(s) {
			return true
		}
	}
	return false
}

const fillerWords = `(?:\s+(?:with|back|to\s+them|them|him|her|a|an|the|this|saying|that\s+says|reply|message|dm)\b)*`

// Checked in order; the first verb found wins.
var responsePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?is)\bsend\b` + fillerWords + `[\s:,-]*(.+)`),
	regexp.MustCompile(`(?is)\breply\b` + fillerWords + `[\s:,-]*(.+)`),
	regexp.MustCompile(`(?is)\bdms?\b` + fillerWords + `[\s:,-]*(.+)`),
	regexp.MustCompile(`(?is)\brespond\b` + fillerWords + `[\s:,-]*(.+)`),
	regexp.MustCompile(`(?is)\bmessage\b` + fillerWords + `[\s:,-]*(.+)`),
}

var clauseBreak = regexp.MustCompile(`(?i)\s+(?:when|whenever|if)\s+`)

var closingQuote = map[rune]rune{
	'"':  '"',
	'“':  '”',
	'\'': '\'',
}

// extractResponse returns the literal reply text and, when the reply was
// quoted, the byte span of the quoted payload inside raw.
func extractResponse(raw string) (string, span) {
	for _, re := range responsePatterns {
		m := re.FindStringSubmatchIndex(raw)
		if m == nil {
			continue
		}
		start, end := m[2], m[3]
		remainder := raw[start:end]

		if text, inner, ok := leadingQuoted(remainder); ok {
			return text, span{start: start + inner.start, end: start + inner.end}
		}

		// Leading space so a remainder that opens with "when" is cut to nothing.
		if loc := clauseBreak.FindStringIndex(" " + remainder); loc != nil {
			remainder = remainder[:max(loc[0]-1, 0)]
		}
		text := strings.TrimSpace(strings.TrimRight(strings.TrimSpace(remainder), ".,;!"))
		if text != "" {
			return text, span{}
		}
	}
	return FallbackResponse, span{}
}

func leadingQuoted(s string) (string, span, bool) {
	trimmed := strings.TrimLeft(s, " \t\n")
	offset := len(s) - len(trimmed)
	if trimmed == "" {
		return "", span{}, false
	}
	open := []rune(trimmed)[0]
	closer, ok := closingQuote[open]
	if !ok {
		return "", span{}, false
	}
	openLen := len(string(open))
	body := trimmed[openLen:]
	idx := strings.IndexRune(body, closer)
	if idx <= 0 {
		return "", span{}, false
	}
	text := strings.TrimSpace(body[:idx])
	if text == "" {
		return "", span{}, false
	}
	inner := span{start: offset + openLen, end: offset + openLen + idx}
	return text, inner, true
}

func synthesizeName(spec domain.AutomationSpec) string {
	keyword := DefaultKeyword
	if len(spec.Keywords) > 0 {
		keyword = spec.Keywords[0]
	}
	if spec.HasTrigger(domain.TriggerComment) {
		return keyword + " Comment"
	}
	return keyword + " DM"
}

func containsAny(lower string, cues []string) bool {
	for _, cue := range cues {
		if strings.Contains(lower, cue) {
			return true
		}
	}
	return false
}
