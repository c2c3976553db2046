// Package jsruntime checks MiniDapp JavaScript before it is shipped to a node.
package jsruntime

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/dop251/goja"
)

// Check parses src without running it. name is used in error positions.
func Check(name, src string) error {
	if _, err := goja.Compile(name, src, false); err != nil {
		return ErrSyntax.Msg(firstLine(err.Error()))
	}
	return nil
}

// inlineScript matches <script> elements. Elements with a src attribute or a non
// JavaScript type are filtered out afterwards.
var inlineScript = regexp.MustCompile(`(?is)<script([^>]*)>(.*?)</script>`)

var scriptType = regexp.MustCompile(`(?i)\btype\s*=\s*["']?([^"'\s>]+)`)

// CheckHTML checks every inline script of an HTML page and returns one error per
// script that fails to parse.
func CheckHTML(name, html string) []error {
	var errs []error
	for i, m := range inlineScript.FindAllStringSubmatch(html, -1) {
		attrs, body := m[1], m[2]
		if strings.Contains(strings.ToLower(attrs), "src=") || strings.TrimSpace(body) == "" {
			continue
		}
		if t := scriptType.FindStringSubmatch(attrs); t != nil && !isJSType(t[1]) {
			continue
		}
		if err := Check(scriptName(name, i), body); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

func isJSType(t string) bool {
	switch strings.ToLower(t) {
	case "text/javascript", "application/javascript", "module":
		return true
	}
	return false
}

func scriptName(page string, i int) string {
	return page + "#script" + strconv.Itoa(i+1)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
