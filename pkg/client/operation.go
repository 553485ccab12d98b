package client

import (
	"strings"
	"unicode"
)

// OperationType is the kind of a GraphQL operation.
type OperationType string

const (
	OperationQuery        OperationType = "query"
	OperationMutation     OperationType = "mutation"
	OperationSubscription OperationType = "subscription"
)

// Operation describes the first executable operation of a document.
type Operation struct {
	Type OperationType
	Name string
}

// Label returns the operation name, or "anonymous".
func (o Operation) Label() string {
	if o.Name == "" {
		return "anonymous"
	}
	return o.Name
}

// ParseOperation scans a GraphQL document for its first operation definition.
// Fragment definitions are skipped and the "{ ... }" shorthand is a query.
// Documents it cannot make sense of are reported as anonymous queries.
func ParseOperation(document string) Operation {
	var (
		depth      int
		inFragment bool
		pending    OperationType
		word       strings.Builder
	)

	flush := func() (Operation, bool) {
		w := word.String()
		word.Reset()
		if w == "" || depth != 0 || inFragment {
			return Operation{}, false
		}
		if pending != "" {
			return Operation{Type: pending, Name: w}, true
		}
		switch OperationType(w) {
		case OperationQuery, OperationMutation, OperationSubscription:
			pending = OperationType(w)
		case "fragment":
			inFragment = true
		}
		return Operation{}, false
	}

	runes := []rune(document)
	for i := 0; i < len(runes); i++ {
		r := runes[i]

		switch {
		case r == '#':
			if op, ok := flush(); ok {
				return op
			}
			for i < len(runes) && runes[i] != '\n' {
				i++
			}

		case r == '"':
			if op, ok := flush(); ok {
				return op
			}
			i = skipString(runes, i)

		case r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r):
			word.WriteRune(r)

		default:
			if op, ok := flush(); ok {
				return op
			}
			switch r {
			case '{':
				if depth == 0 && !inFragment && pending == "" {
					return Operation{Type: OperationQuery}
				}
				if depth == 0 && pending != "" {
					return Operation{Type: pending}
				}
				depth++
			case '(':
				if depth == 0 && pending != "" {
					return Operation{Type: pending}
				}
			case '}':
				depth--
				if depth == 0 {
					inFragment = false
				}
			}
		}
	}

	if op, ok := flush(); ok {
		return op
	}
	if pending != "" {
		return Operation{Type: pending}
	}
	return Operation{Type: OperationQuery}
}

// skipString returns the index of the closing quote of the string starting at i.
func skipString(runes []rune, i int) int {
	if i+2 < len(runes) && runes[i+1] == '"' && runes[i+2] == '"' {
		for j := i + 3; j+2 < len(runes); j++ {
			if runes[j] == '"' && runes[j+1] == '"' && runes[j+2] == '"' && runes[j-1] != '\\' {
				return j + 2
			}
		}
		return len(runes)
	}
	for j := i + 1; j < len(runes); j++ {
		switch runes[j] {
		case '\\':
			j++
		case '"':
			return j
		}
	}
	return len(runes)
}
