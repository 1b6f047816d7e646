package models

// ListQuery filters and pages the schedule listings.
// A zero Limit means no limit.
type ListQuery struct {
	ProjectName string
	Skip        int
	Limit       int
	Descending  bool
}

// Matches reports whether a record for projectName passes the filter.
func (q ListQuery) Matches(projectName string) bool {
	return q.ProjectName == "" || q.ProjectName == projectName
}

// Window returns the [start, end) slice bounds for n filtered records.
func (q ListQuery) Window(n int) (int, int) {
	start := q.Skip
	if start < 0 {
		start = 0
	}
	if start > n {
		start = n
	}
	end := n
	if q.Limit > 0 && start+q.Limit < end {
		end = start + q.Limit
	}
	return start, end
}

// Page applies the filter, order and window of q to records already
// sorted in ascending creation order.
func Page[T any](records []T, q ListQuery, projectName func(T) string) []T {
	filtered := make([]T, 0, len(records))
	for _, r := range records {
		if q.Matches(projectName(r)) {
			filtered = append(filtered, r)
		}
	}
	if q.Descending {
		for i, j := 0, len(filtered)-1; i < j; i, j = i+1, j-1 {
			filtered[i], filtered[j] = filtered[j], filtered[i]
		}
	}
	start, end := q.Window(len(filtered))
	return filtered[start:end]
}
