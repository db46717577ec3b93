package index

import (
	"regexp"
	"sort"
	"strings"
)

// maxSymbolLength discards matches that cannot be real identifiers.
const maxSymbolLength = 100

// quoteStripper removes SQL identifier quoting.
var quoteStripper = strings.NewReplacer("[", "", "]", "", `"`, "")

var (
	pythonPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?m)^\s*(?:async\s+)?def\s+(\w+)`),
		regexp.MustCompile(`(?m)^\s*class\s+(\w+)`),
	}

	jsPatterns = []*regexp.Regexp{
		regexp.MustCompile(`function\s*\*?\s+(\w+)`),
		regexp.MustCompile(`class\s+(\w+)`),
		regexp.MustCompile(`(?:const|let|var)\s+(\w+)\s*=`),
	}

	tsPatterns = append([]*regexp.Regexp{
		regexp.MustCompile(`interface\s+(\w+)`),
		regexp.MustCompile(`type\s+(\w+)\s*=`),
		regexp.MustCompile(`enum\s+(\w+)`),
	}, jsPatterns...)
)

// symbolPatterns maps a file extension to the patterns whose first group is a declared name.
var symbolPatterns = map[string][]*regexp.Regexp{
	"go": {
		regexp.MustCompile(`func\s+(?:\([^)]*\)\s*)?(\w+)`),
		regexp.MustCompile(`type\s+(\w+)\s+(?:struct|interface)`),
		regexp.MustCompile(`const\s+(\w+)`),
		regexp.MustCompile(`var\s+(\w+)`),
	},
	"py": pythonPatterns,
	"cs": {
		regexp.MustCompile(`(?:class|interface|struct|record|enum)\s+(\w+)`),
		regexp.MustCompile(`namespace\s+([\w.]+)`),
		regexp.MustCompile(`(?m)^\s*(?:(?:public|private|protected|internal|static|virtual|override|abstract|async|sealed)\s+)+[\w<>\[\],.?]+\s+(\w+)\s*\(`),
	},
	"java": {
		regexp.MustCompile(`(?:class|interface|enum|record)\s+(\w+)`),
		regexp.MustCompile(`(?m)^\s*(?:(?:public|protected|private|static|final|abstract|synchronized)\s+)+[\w<>\[\],.?]+\s+(\w+)\s*\(`),
	},
	"js":  jsPatterns,
	"jsx": jsPatterns,
	"mjs": jsPatterns,
	"ts":  tsPatterns,
	"tsx": tsPatterns,
	"ps1": {
		regexp.MustCompile(`(?im)^\s*function\s+([\w-]+)`),
		regexp.MustCompile(`(?im)^\s*filter\s+([\w-]+)`),
		regexp.MustCompile(`(?im)^\s*class\s+(\w+)`),
	},
	"psm1": {
		regexp.MustCompile(`(?im)^\s*function\s+([\w-]+)`),
		regexp.MustCompile(`(?im)^\s*class\s+(\w+)`),
	},
	"sql": {
		regexp.MustCompile(`(?i)create\s+(?:or\s+(?:replace|alter)\s+)?(?:table|view|procedure|proc|function|trigger|index)\s+(?:if\s+not\s+exists\s+)?([\w.\[\]"]+)`),
	},
}

// ExtractSymbols returns the sorted, unique declared names found in content
// for the language implied by ext. Unknown extensions yield nil.
func ExtractSymbols(ext, content string) []string {
	patterns, ok := symbolPatterns[strings.ToLower(strings.TrimPrefix(ext, "."))]
	if !ok {
		return nil
	}

	unique := make(map[string]struct{})
	for _, re := range patterns {
		for _, match := range re.FindAllStringSubmatch(content, -1) {
			if len(match) < 2 {
				continue
			}
			symbol := quoteStripper.Replace(strings.TrimSpace(match[1]))
			if symbol != "" && len(symbol) < maxSymbolLength {
				unique[symbol] = struct{}{}
			}
		}
	}

	if len(unique) == 0 {
		return nil
	}

	symbols := make([]string, 0, len(unique))
	for s := range unique {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)
	return symbols
}
