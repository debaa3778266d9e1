package forms

import (
	"regexp"
	"strings"
)

// MergeTags resolves host merge tags such as {Email:3} in notification settings.
type MergeTags interface {
	Replace(text string, entry Entry) string
}

// EntryTags resolves {entry_id}, {form_id}, {<field id>} and
// {<label>:<field id>} from the entry. Unknown tags are left in place.
type EntryTags struct{}

var mergeTag = regexp.MustCompile(`\{([^{}]+)\}`)

// Replace implements MergeTags.
func (EntryTags) Replace(text string, entry Entry) string {
	if !strings.Contains(text, "{") {
		return text
	}

	return mergeTag.ReplaceAllStringFunc(text, func(tag string) string {
		name := tag[1 : len(tag)-1]
		if i := strings.LastIndex(name, ":"); i >= 0 {
			name = name[i+1:]
		}

		switch name {
		case "entry_id":
			return entry.ID
		case "form_id":
			return entry.FormID
		}

		if v, ok := entry.Fields[name]; ok {
			return v
		}
		return tag
	})
}
