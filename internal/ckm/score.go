package ckm

import (
	"sort"
	"strings"
)

// Status bonuses. Statuses not listed score 0.
var statusScores = map[string]int{
	"PUBLISHED":       4,
	"TEAMREVIEW":      2,
	"DRAFT":           -1,
	"REVIEWSUSPENDED": -1,
	"INITIAL":         -2,
}

// Projects holding shared building blocks get a small bonus.
var preferredProjects = map[string]bool{
	"common resources":      true,
	"structural archetypes": true,
}

// tokens splits a keyword on single spaces after trimming. An empty
// keyword yields one empty token.
func tokens(keyword string) []string {
	return strings.Split(strings.TrimSpace(keyword), " ")
}

// matches reports whether the record field contains needle, ignoring case.
// Omitted and null fields never match. A present empty field matches an
// empty needle.
func (r record) matches(key, needle string) bool {
	if v, ok := r[key]; !ok || v == nil {
		return false
	}
	return strings.Contains(strings.ToLower(r.str(key)), strings.ToLower(needle))
}

func commonScore(projectName, status string) int {
	score := statusScores[strings.ToUpper(status)]
	if preferredProjects[strings.ToLower(projectName)] {
		score++
	}
	return score
}

// archetypeScore ranks a raw archetype search record against the keyword.
func archetypeScore(keyword string, r record) int {
	score := 0
	for _, tok := range tokens(keyword) {
		if r.matches("resourceMainId", tok) {
			score += 4
		} else if r.matches("resourceMainDisplayName", tok) {
			score += 3
		}
		if r.matches("projectName", tok) {
			score += 2
		}
	}
	return score + commonScore(r.str("projectName"), r.str("status"))
}

// templateScore ranks a raw template search record against the keyword.
func templateScore(keyword string, r record) int {
	score := 0
	for _, tok := range tokens(keyword) {
		if r.matches("resourceMainDisplayName", tok) {
			score += 3
		}
		if r.matches("projectName", tok) {
			score += 2
		}
	}
	return score + commonScore(r.str("projectName"), r.str("status"))
}

func sortByScore[T any](items []T, score func(T) int) {
	sort.SliceStable(items, func(i, j int) bool {
		return score(items[i]) > score(items[j])
	})
}
