package queryguard

import (
	"strconv"
	"strings"
	"unicode"
)

// lexFacts is what the tokenizer extracts for the verdict policy.
type lexFacts struct {
	leading        string
	words          []string
	statementCount int
	hasLimit       bool
	limit          int

	// endsInLineComment is set when the text runs out inside a -- comment,
	// so anything appended to it must start on a fresh line.
	endsInLineComment bool
}

// lex scans a statement tracking quote state, so keywords inside string
// literals ('please delete this note') and identifiers ("delete") are never
// reported, and strips -- and /* */ comments. Statements are counted by
// unquoted terminators; a bare trailing terminator does not start one.
func lex(s string) lexFacts {
	var facts lexFacts
	var word []rune
	segTokens := 0

	flush := func() {
		if len(word) == 0 {
			return
		}
		w := strings.ToLower(string(word))
		word = word[:0]
		if len(facts.words) == 0 {
			facts.leading = w
		}
		facts.words = append(facts.words, w)
		segTokens++
	}

	runes := []rune(s)
	for i := 0; i < len(runes); i++ {
		c := runes[i]
		switch {
		case c == '\'':
			flush()
			i++
			for i < len(runes) {
				if runes[i] == '\'' {
					// '' is an escaped quote inside the literal.
					if i+1 < len(runes) && runes[i+1] == '\'' {
						i += 2
						continue
					}
					break
				}
				i++
			}
		case c == '"':
			flush()
			i++
			for i < len(runes) && runes[i] != '"' {
				i++
			}
		case c == '-' && i+1 < len(runes) && runes[i+1] == '-':
			flush()
			for i < len(runes) && runes[i] != '\n' {
				i++
			}
			facts.endsInLineComment = i == len(runes)
		case c == '/' && i+1 < len(runes) && runes[i+1] == '*':
			flush()
			i += 2
			for i+1 < len(runes) && !(runes[i] == '*' && runes[i+1] == '/') {
				i++
			}
			i++
		case c == '-' && len(word) == 0 && i+1 < len(runes) && unicode.IsDigit(runes[i+1]):
			// sign of a numeric token, LIMIT -1 must not lex as limit 1
			word = append(word, c)
		case c == ';':
			flush()
			if segTokens > 0 {
				facts.statementCount++
			}
			segTokens = 0
		case unicode.IsLetter(c) || unicode.IsDigit(c) || c == '_':
			word = append(word, c)
		default:
			flush()
		}
	}
	flush()
	if segTokens > 0 {
		facts.statementCount++
	}

	for i, w := range facts.words {
		if w != "limit" {
			continue
		}
		facts.hasLimit = true
		if i+1 < len(facts.words) {
			if n, err := strconv.Atoi(facts.words[i+1]); err == nil {
				facts.limit = n
			}
		}
	}
	return facts
}
