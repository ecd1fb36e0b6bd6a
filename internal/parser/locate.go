package parser

import (
	"regexp"
	"strings"

	"github.com/standardbeagle/phptags/internal/types"
)

// Location is the position of a tag's name inside a buffer
type Location struct {
	Offset int // byte offset of the declared name
	Length int
	Line   int // 1-based
}

// Locate finds tag's declaration in text by re-matching its declaration
// signature. Tags carry no offsets because the buffer may have changed
// since indexing; ok is false when the declaration can no longer be found,
// and always for dynamic and native tags.
func Locate(tag types.Tag, text string) (Location, bool) {
	if tag.IsDynamic || tag.IsNative || tag.Identifier == "" {
		return Location{}, false
	}

	searchFrom := 0
	if tag.Kind.IsMember() && tag.ClassIdentifier != "" {
		classLoc, ok := locateClass(tag.ClassIdentifier, text)
		if !ok {
			return Location{}, false
		}
		searchFrom = classLoc.Offset
	}

	name := regexp.QuoteMeta(tag.Identifier)
	var re *regexp.Regexp
	switch tag.Kind {
	case types.TagKindClass:
		return locateClass(tag.Identifier, text)
	case types.TagKindMethod, types.TagKindFunction:
		re = regexp.MustCompile(`(?i)\bfunction\s+&?\s*(` + name + `)\s*(\([^{;]*\))`)
	case types.TagKindMember:
		re = regexp.MustCompile(`(?i)\b(?:var|public|protected|private|static|readonly)\b[^;{}()]*?(\$` + name + `)\b`)
	case types.TagKindClassConstant:
		re = regexp.MustCompile(`(?i)\b(?:const|case)\s+(?:\w+\s+)?(` + name + `)\b`)
	case types.TagKindDefine:
		re = regexp.MustCompile(`(?i)(?:define\s*\(\s*['"](` + name + `)['"]|\bconst\s+(` + name + `)\b)`)
	case types.TagKindNamespace:
		re = regexp.MustCompile(`(?i)\bnamespace\s+(` + name + `)\s*[;{]`)
	default:
		return Location{}, false
	}

	matches := re.FindAllStringSubmatchIndex(text[searchFrom:], -1)
	if len(matches) == 0 {
		return Location{}, false
	}

	best := matches[0]
	if tag.Signature != "" && (tag.Kind == types.TagKindMethod || tag.Kind == types.TagKindFunction) {
		for _, m := range matches {
			if len(m) >= 6 && m[4] >= 0 && signatureText(text[searchFrom+m[4]:searchFrom+m[5]]) == tag.Signature {
				best = m
				break
			}
		}
	}

	start, end := firstGroup(best)
	if start < 0 {
		return Location{}, false
	}
	offset := searchFrom + start
	return Location{
		Offset: offset,
		Length: end - start,
		Line:   strings.Count(text[:offset], "\n") + 1,
	}, true
}

func locateClass(identifier, text string) (Location, bool) {
	re := regexp.MustCompile(`(?i)\b(?:class|interface|trait|enum)\s+(` + regexp.QuoteMeta(identifier) + `)\b`)
	m := re.FindStringSubmatchIndex(text)
	if m == nil {
		return Location{}, false
	}
	return Location{
		Offset: m[2],
		Length: m[3] - m[2],
		Line:   strings.Count(text[:m[2]], "\n") + 1,
	}, true
}

// firstGroup returns the bounds of the first participating capture group
func firstGroup(m []int) (int, int) {
	for i := 2; i+1 < len(m); i += 2 {
		if m[i] >= 0 {
			return m[i], m[i+1]
		}
	}
	return -1, -1
}
