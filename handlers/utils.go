package handlers

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/cufee/reixi/database"
	"github.com/lithammer/fuzzysearch/fuzzy"
)

const fence = "```"

var (
	idTrim    = regexp.MustCompile(`[<@&#!>]`)
	snowflake = regexp.MustCompile(`^\d+$`)
)

// chunkReply - Split a reply into messages no longer than limit, re-fencing code blocks
func chunkReply(reply string, limit int) []string {
	if len(reply) <= limit {
		return []string{reply}
	}

	fenced := strings.HasPrefix(reply, fence) && strings.HasSuffix(reply, fence)
	body := reply
	room := limit
	if fenced {
		body = strings.TrimSuffix(strings.TrimPrefix(reply, fence), fence)
		body = strings.Trim(body, "\n")
		// 6 for the fences, 2 for the newlines
		room = limit - 6 - 2
	}

	var chunks []string
	var current []string
	size := 0
	flush := func() {
		if len(current) == 0 {
			return
		}
		text := strings.Join(current, "\n")
		if fenced {
			text = fence + "\n" + text + "\n" + fence
		}
		chunks = append(chunks, text)
		current = nil
		size = 0
	}

	for _, line := range strings.Split(body, "\n") {
		// A single line longer than the limit is hard split
		for len(line) > room {
			cut := room
			for cut > 0 && !utf8.RuneStart(line[cut]) {
				cut--
			}
			flush()
			current = []string{line[:cut]}
			flush()
			line = line[cut:]
		}
		if size+len(line)+1 > room {
			flush()
		}
		current = append(current, line)
		size += len(line) + 1
	}
	flush()
	return chunks
}

// parseID - Accept a raw id or a mention of a user, role or channel
func parseID(arg string) (string, bool) {
	id := idTrim.ReplaceAllString(arg, "")
	return id, snowflake.MatchString(id)
}

// closest - Closest name to typed, if it is close enough to be a typo
func closest(typed string, names []string) (string, bool) {
	best := ""
	bestDist := -1
	for _, n := range names {
		d := fuzzy.LevenshteinDistance(typed, n)
		if bestDist == -1 || d < bestDist {
			best, bestDist = n, d
		}
	}
	if bestDist == -1 {
		return "", false
	}
	longest := len(typed)
	if len(best) > longest {
		longest = len(best)
	}
	return best, bestDist*2 <= longest
}

func sliceContains(slice []string, val string) bool {
	for _, item := range slice {
		if strings.EqualFold(item, val) {
			return true
		}
	}
	return false
}

func padRight(s string, n int) string {
	if len(s) >= n {
		return s
	}
	return s + strings.Repeat(" ", n-len(s))
}

func sortedNames(m map[string]database.Privilege) []string {
	names := make([]string, 0, len(m))
	for n := range m {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
