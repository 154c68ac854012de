package domain

import (
	"slices"
	"strings"
)

// Summary quotas per category, and the overall cap.
const (
	summaryAccessible   = 3
	summaryInaccessible = 1
	summaryNoContent    = 1
	summaryMax          = 5
)

// Categorize returns the bucket of r. A record without is_accessible is
// the unknown case and lands in CategoryInaccessible. content_found only
// counts when a query was asked.
func Categorize(r Record) Category {
	switch {
	case r.IsAccessible == nil:
		return CategoryInaccessible
	case !*r.IsAccessible:
		return CategoryInaccessible
	case r.HasQuery() && !r.Found():
		return CategoryNoContent
	default:
		return CategoryAccessible
	}
}

// Sort returns a copy of records ordered most recent first. Ties keep their
// input order.
func Sort(records []Record) []Record {
	out := slices.Clone(records)
	slices.SortStableFunc(out, func(a, b Record) int {
		return b.Time().Compare(a.Time())
	})
	if out == nil {
		out = []Record{}
	}
	return out
}

// Count tallies records per category.
func Count(records []Record) Stats {
	s := Stats{Total: len(records)}
	for _, r := range records {
		switch Categorize(r) {
		case CategoryAccessible:
			s.Accessible++
		case CategoryInaccessible:
			s.Inaccessible++
		case CategoryNoContent:
			s.NoContent++
		}
	}
	return s
}

// Summary picks up to 3 accessible, 1 inaccessible and 1 no-content record,
// taking the first of each bucket in input order, then returns them most
// recent first. Missing quota is not backfilled.
func Summary(records []Record) []Record {
	quota := map[Category]int{
		CategoryAccessible:   summaryAccessible,
		CategoryInaccessible: summaryInaccessible,
		CategoryNoContent:    summaryNoContent,
	}
	buckets := make(map[Category][]Record, len(quota))
	for _, r := range records {
		c := Categorize(r)
		if len(buckets[c]) < quota[c] {
			buckets[c] = append(buckets[c], r)
		}
	}

	picked := make([]Record, 0, summaryMax)
	for _, c := range Categories {
		picked = append(picked, buckets[c]...)
	}
	picked = Sort(picked)
	if len(picked) > summaryMax {
		picked = picked[:summaryMax]
	}
	return picked
}

// FilterRecords keeps the records in the filter's category. FilterAll and
// the empty filter keep everything.
func FilterRecords(records []Record, f Filter) []Record {
	if f == "" || f == FilterAll {
		return slices.Clone(records)
	}
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if Filter(Categorize(r)) == f {
			out = append(out, r)
		}
	}
	return out
}

// Search keeps records whose url, query, answer or analysis contains q,
// case-insensitively. A blank q keeps everything.
func Search(records []Record, q string) []Record {
	if q == "" {
		return slices.Clone(records)
	}
	needle := strings.ToLower(q)
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if matches(r, needle) {
			out = append(out, r)
		}
	}
	return out
}

func matches(r Record, needle string) bool {
	for _, field := range []string{r.URL, r.Query, r.Answer(), r.Analysis} {
		if field != "" && strings.Contains(strings.ToLower(field), needle) {
			return true
		}
	}
	return false
}

// View derives the records to render. records should already be sorted
// with Sort. The summary view ignores Filter and Search.
func View(records []Record, opts ViewOptions) []Record {
	if opts.Mode == ViewSummary || opts.Mode == "" {
		return Summary(records)
	}
	return Search(FilterRecords(records, opts.Filter), opts.Search)
}

// Locate returns the index of the first record with url, or -1.
func Locate(records []Record, url string) int {
	if url == "" {
		return -1
	}
	return slices.IndexFunc(records, func(r Record) bool {
		return r.URL == url
	})
}
