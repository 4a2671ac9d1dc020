package relief

import (
	"strings"

	"github.com/sahilm/fuzzy"
	"github.com/sandevgo/reliefdesk/internal/core"
)

var honorifics = []string{"mr", "mrs", "ms", "mdm", "dr", "miss", "mx", "madam"}

// minFuzzyLen keeps short fragments like initials from matching anyone.
const minFuzzyLen = 3

type nameIndex struct {
	identities []core.Identity
	names      []string
}

func newNameIndex(identities []core.Identity) *nameIndex {
	idx := &nameIndex{}
	for _, id := range identities {
		if strings.TrimSpace(id.DisplayName) == "" {
			continue
		}
		idx.identities = append(idx.identities, id)
		idx.names = append(idx.names, id.DisplayName)
	}
	return idx
}

// resolve returns the identity id for name or zero when it is unknown or
// ambiguous.
func (x *nameIndex) resolve(name string) int64 {
	if id := x.exact(name); id != 0 {
		return id
	}
	stripped := stripHonorific(name)
	if id := x.exact(stripped); id != 0 {
		return id
	}
	if id := x.exactStripped(stripped); id != 0 {
		return id
	}
	return x.fuzzy(stripped)
}

func (x *nameIndex) exact(name string) int64 {
	return x.unique(func(candidate string) bool {
		return strings.EqualFold(candidate, strings.TrimSpace(name))
	})
}

func (x *nameIndex) exactStripped(name string) int64 {
	return x.unique(func(candidate string) bool {
		return strings.EqualFold(stripHonorific(candidate), name)
	})
}

func (x *nameIndex) unique(match func(string) bool) int64 {
	var found int64
	for i, candidate := range x.names {
		if !match(candidate) {
			continue
		}
		if found != 0 {
			return 0
		}
		found = x.identities[i].ID
	}
	return found
}

func (x *nameIndex) fuzzy(name string) int64 {
	if len([]rune(name)) < minFuzzyLen {
		return 0
	}
	// More than one candidate means the fragment is shared, e.g. a surname.
	matches := fuzzy.Find(name, x.names)
	if len(matches) != 1 {
		return 0
	}
	return x.identities[matches[0].Index].ID
}

func stripHonorific(name string) string {
	fields := strings.Fields(name)
	if len(fields) < 2 {
		return strings.TrimSpace(name)
	}
	first := strings.ToLower(strings.TrimSuffix(fields[0], "."))
	for _, h := range honorifics {
		if first == h {
			return strings.Join(fields[1:], " ")
		}
	}
	return strings.Join(fields, " ")
}
