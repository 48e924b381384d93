package domain

import (
	"fmt"
	"sort"
	"strings"
)

// CultureLists maps a predefined list name to its culture labels.
type CultureLists map[string][]string

func (l CultureLists) Resolve(name string) ([]string, error) {
	labels, ok := l[strings.TrimSpace(name)]
	if !ok || len(labels) == 0 {
		return nil, WrapError(ErrInvalidInput, "resolve culture list", fmt.Errorf("unknown predefined list %q", name))
	}
	out := make([]string, len(labels))
	copy(out, labels)
	return out, nil
}

func (l CultureLists) Names() []string {
	names := make([]string, 0, len(l))
	for name := range l {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
