package chunking

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/kirillkom/diary-persona-chat/internal/core/domain"
)

const (
	DefaultEndMarker = "ANNE'S DIARY ENDS HERE."

	forewordTitle  = "Foreword"
	afterwordTitle = "Afterword"
	fullTextTitle  = "Full Text"
)

var entryDate = regexp.MustCompile(`(?i)\b(MONDAY|TUESDAY|WEDNESDAY|THURSDAY|FRIDAY|SATURDAY|SUNDAY)\s*,\s*(JANUARY|FEBRUARY|MARCH|APRIL|MAY|JUNE|JULY|AUGUST|SEPTEMBER|OCTOBER|NOVEMBER|DECEMBER)\s+\d{1,2}\s*,\s*\d{4}\b`)

// DiarySplitter cuts a diary into one chunk per dated entry, plus the text
// before the first date and after the end marker.
type DiarySplitter struct {
	EndMarker string
}

func NewDiarySplitter(endMarker string) *DiarySplitter {
	if strings.TrimSpace(endMarker) == "" {
		endMarker = DefaultEndMarker
	}
	return &DiarySplitter{EndMarker: endMarker}
}

func (s *DiarySplitter) Split(text string) []domain.Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	diary := text
	afterword := ""
	if idx := strings.Index(text, s.EndMarker); idx >= 0 {
		diary = text[:idx]
		afterword = strings.TrimSpace(text[idx:])
	}

	titles := newTitleSet()
	out := make([]domain.Chunk, 0, 64)
	matches := entryDate.FindAllStringIndex(diary, -1)
	if len(matches) == 0 {
		if body := strings.TrimSpace(diary); body != "" {
			out = append(out, domain.Chunk{Title: titles.unique(fullTextTitle), Text: body})
		}
	} else {
		if foreword := strings.TrimSpace(diary[:matches[0][0]]); foreword != "" {
			out = append(out, domain.Chunk{Title: titles.unique(forewordTitle), Text: foreword})
		}
		for i, m := range matches {
			end := len(diary)
			if i+1 < len(matches) {
				end = matches[i+1][0]
			}
			title := normalizeDateTitle(diary[m[0]:m[1]])
			out = append(out, domain.Chunk{
				Title: titles.unique(title),
				Text:  strings.TrimSpace(diary[m[0]:end]),
			})
		}
	}

	if afterword != "" {
		out = append(out, domain.Chunk{Title: titles.unique(afterwordTitle), Text: afterword})
	}
	return out
}

// normalizeDateTitle collapses whitespace inside a matched date heading.
func normalizeDateTitle(raw string) string {
	return strings.Join(strings.Fields(raw), " ")
}

type titleSet map[string]int

func newTitleSet() titleSet { return titleSet{} }

// unique suffixes repeated titles with " (2)", " (3)", ...
func (t titleSet) unique(title string) string {
	t[title]++
	n := t[title]
	if n == 1 {
		return title
	}
	candidate := fmt.Sprintf("%s (%d)", title, n)
	for t[candidate] > 0 {
		n++
		candidate = fmt.Sprintf("%s (%d)", title, n)
	}
	t[candidate]++
	return candidate
}
