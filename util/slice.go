package util

import "sort"

func Contains[T comparable](src []T, v T) bool {
	for _, s := range src {
		if s == v {
			return true
		}
	}
	return false
}

func SortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
