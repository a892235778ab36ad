package state

import (
	"encoding/json"
	"sort"
)

// URLSet is a set of visited URLs. It marshals as a sorted JSON array so
// checkpoints are stable and diffable.
type URLSet map[string]struct{}

// Add inserts urls into the set.
func (s URLSet) Add(urls ...string) {
	for _, u := range urls {
		if u != "" {
			s[u] = struct{}{}
		}
	}
}

// Contains reports whether url is in the set.
func (s URLSet) Contains(url string) bool {
	_, ok := s[url]
	return ok
}

// Slice returns the set contents sorted.
func (s URLSet) Slice() []string {
	out := make([]string, 0, len(s))
	for u := range s {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}

func (s URLSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Slice())
}

func (s *URLSet) UnmarshalJSON(data []byte) error {
	var urls []string
	if err := json.Unmarshal(data, &urls); err != nil {
		return err
	}
	set := make(URLSet, len(urls))
	set.Add(urls...)
	*s = set
	return nil
}
