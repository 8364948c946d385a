package openapi

import (
	"strings"
)

// Docstring is a parsed handler docstring.
//
//	List invoices.
//
//	Returns invoices of the current account, newest first.
//
//	Raises:
//	    NotFoundError: account does not exist
type Docstring struct {
	Short  string
	Long   string
	Raises map[string]string
}

// docSections are the section headers recognized in a docstring. Only
// "raises" is kept; the others end the description.
var docSections = map[string]string{
	"raises:":     "raises",
	"raise:":      "raises",
	"errors:":     "raises",
	"args:":       "args",
	"arguments:":  "args",
	"parameters:": "args",
	"params:":     "args",
	"returns:":    "returns",
	"return:":     "returns",
}

// ParseDocstring splits a docstring into short and long description and
// the descriptions of raised errors. It returns nil for blank input.
func ParseDocstring(doc string) *Docstring {
	lines := strings.Split(strings.ReplaceAll(doc, "\r\n", "\n"), "\n")
	for len(lines) > 0 && strings.TrimSpace(lines[0]) == "" {
		lines = lines[1:]
	}
	if len(lines) == 0 {
		return nil
	}

	ds := &Docstring{Raises: make(map[string]string)}

	var (
		body    []string
		section string
		lastErr string
	)
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if s, ok := docSections[strings.ToLower(trimmed)]; ok {
			section = s
			lastErr = ""
			continue
		}

		switch section {
		case "":
			body = append(body, trimmed)
		case "raises":
			if trimmed == "" {
				continue
			}
			name, desc, found := strings.Cut(trimmed, ":")
			if found && !strings.ContainsAny(name, " \t") {
				lastErr = strings.TrimSpace(name)
				ds.Raises[lastErr] = strings.TrimSpace(desc)
			} else if lastErr != "" {
				ds.Raises[lastErr] = strings.TrimSpace(ds.Raises[lastErr] + " " + trimmed)
			}
		}
	}

	// First paragraph is the summary, the remainder is the description.
	var short, long []string
	inShort := true
	for _, l := range body {
		if inShort {
			if l == "" {
				if len(short) > 0 {
					inShort = false
				}
				continue
			}
			short = append(short, l)
			continue
		}
		long = append(long, l)
	}

	ds.Short = strings.Join(short, " ")
	ds.Long = strings.TrimSpace(strings.Join(long, "\n"))
	return ds
}
