package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/culture-relevance/internal/core/domain"
)

// DefaultCultureLists is served when CULTURE_LISTS_PATH is unset.
var DefaultCultureLists = domain.CultureLists{
	"top10_countries": {
		"China", "India", "United States", "Indonesia", "Pakistan",
		"Nigeria", "Brazil", "Bangladesh", "Russia", "Mexico",
	},
}

type cultureListsFile struct {
	Lists map[string][]string `yaml:"lists"`
}

// LoadCultureLists reads predefined culture lists from a YAML file of the form
//
//	lists:
//	  asia: [Japan, China, India]
//
// An empty path yields DefaultCultureLists.
func LoadCultureLists(path string) (domain.CultureLists, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultCultureLists, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read culture lists: %w", err)
	}
	return parseCultureLists(raw)
}

func parseCultureLists(raw []byte) (domain.CultureLists, error) {
	var file cultureListsFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("decode culture lists: %w", err)
	}

	lists := make(domain.CultureLists, len(file.Lists))
	for name, labels := range file.Lists {
		name = strings.TrimSpace(name)
		cleaned := make([]string, 0, len(labels))
		for _, label := range labels {
			if label = strings.TrimSpace(label); label != "" {
				cleaned = append(cleaned, label)
			}
		}
		if name == "" || len(cleaned) == 0 {
			return nil, fmt.Errorf("culture list %q is empty", name)
		}
		lists[name] = cleaned
	}
	if len(lists) == 0 {
		return nil, fmt.Errorf("no culture lists defined")
	}
	return lists, nil
}
