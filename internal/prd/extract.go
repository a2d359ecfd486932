// Package prd extracts requirement declarations from epic PRD text.
//
// Requirements are not stored entities: their existence is derived from
// markdown headings of the form "## R<digits>: Title". The extractor is the
// leaf the coverage calculator and the reference graph validator both build
// on.
package prd

import (
	"regexp"
	"strconv"
	"strings"
)

// Requirement is a single extracted requirement declaration.
type Requirement struct {
	ID    string `json:"id"`    // epic-scoped, e.g. "E1.R1"
	Num   int    `json:"num"`   // the <digits> part of R<digits>
	Title string `json:"title"` // heading text after the colon
}

// headingRe matches a markdown heading declaring a requirement:
// one to six '#' marks, then R<digits>, a colon, and the title.
var headingRe = regexp.MustCompile(`^#{1,6}\s+R(\d+)\s*:\s*(.*?)\s*$`)

// Extract returns the ordered set of requirements declared in text for the
// given epic. Non-heading lines and headings that do not match the pattern
// are ignored; empty or absent text yields an empty set. Duplicate headings
// with the same number appear once, in first-occurrence order, with the
// later title winning.
func Extract(epicID, text string) []Requirement {
	if text == "" {
		return nil
	}

	var (
		ordered []int
		byNum   = make(map[int]*Requirement)
	)

	for _, line := range strings.Split(text, "\n") {
		m := headingRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		num, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		if existing, ok := byNum[num]; ok {
			existing.Title = m[2]
			continue
		}
		byNum[num] = &Requirement{
			ID:    epicID + ".R" + m[1],
			Num:   num,
			Title: m[2],
		}
		ordered = append(ordered, num)
	}

	if len(ordered) == 0 {
		return nil
	}
	reqs := make([]Requirement, 0, len(ordered))
	for _, num := range ordered {
		reqs = append(reqs, *byNum[num])
	}
	return reqs
}

// IDs returns just the requirement IDs, preserving order.
func IDs(reqs []Requirement) []string {
	if len(reqs) == 0 {
		return nil
	}
	ids := make([]string, len(reqs))
	for i, r := range reqs {
		ids[i] = r.ID
	}
	return ids
}

// IDSet returns the requirement IDs as a membership set.
func IDSet(reqs []Requirement) map[string]bool {
	set := make(map[string]bool, len(reqs))
	for _, r := range reqs {
		set[r.ID] = true
	}
	return set
}
