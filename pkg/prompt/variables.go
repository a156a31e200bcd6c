// ABOUTME: Template variable extraction for prompt content
// ABOUTME: Variables are written as {{name}} with word characters only

package prompt

import "regexp"

var variablePattern = regexp.MustCompile(`\{\{(\w+)\}\}`)

// Variables returns the distinct template variables in content, in the
// order they first appear
func Variables(content string) []string {
	matches := variablePattern.FindAllStringSubmatch(content, -1)
	if len(matches) == 0 {
		return []string{}
	}

	seen := make(map[string]bool, len(matches))
	vars := make([]string, 0, len(matches))
	for _, m := range matches {
		if !seen[m[1]] {
			seen[m[1]] = true
			vars = append(vars, m[1])
		}
	}
	return vars
}
