package equipment

import (
	"regexp"
	"strings"
)

// tagPattern matches [=]DDD[.DD][-]AA[DDD] not embedded in a longer digit or
// letter run.
var tagPattern = regexp.MustCompile(`(?:^|[^\d])=?(\d{3})(?:\.(\d{2}))?-?([A-Z]{2})(\d{3})?(?:[^A-Z]|$)`)

// Tag is a parsed structured equipment tag
type Tag struct {
	System     string
	SubSystem  string
	Instance   string
	Definition Definition
	Known      bool
}

// ParseTagCode extracts the component code from a structured tag such as
// "=360.01-PU001". A well-formed code missing from the table is still
// returned with a generic name and CategoryOther.
func (t *Table) ParseTagCode(text string) (Tag, bool) {
	m := tagPattern.FindStringSubmatch(strings.ToUpper(text))
	if m == nil {
		return Tag{}, false
	}

	tag := Tag{System: m[1], SubSystem: m[2], Instance: m[4]}
	code := m[3]
	if def, ok := t.codes[code]; ok {
		tag.Definition = def
		tag.Known = true
	} else {
		tag.Definition = Definition{Code: code, Name: "Component " + code, Category: CategoryOther}
	}
	return tag, true
}

// String renders the tag in canonical form
func (tag Tag) String() string {
	var b strings.Builder
	b.WriteString("=")
	b.WriteString(tag.System)
	if tag.SubSystem != "" {
		b.WriteString(".")
		b.WriteString(tag.SubSystem)
	}
	b.WriteString("-")
	b.WriteString(tag.Definition.Code)
	b.WriteString(tag.Instance)
	return b.String()
}
