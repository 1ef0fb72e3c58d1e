package job

import (
	"errors"
	"sort"
	"strings"
)

var ErrInvalidQuery = errors.New("invalid job query")

// Columns the search box looks at when no column is chosen.
var searchColumns = []string{"timestamp", "product", "order_id", "dataset_id", "qc"}

// Query is the search and sort state of the jobs table. Sort names a
// column, prefixed with "-" for descending order.
type Query struct {
	Search string
	Column string
	Sort   string
}

// FilterJobs keeps the jobs matching q.Search (case insensitive) and
// orders them by q.Sort. Without a sort the stored order is kept.
func FilterJobs(jobs []Job, q Query) ([]Job, error) {
	columns := searchColumns
	if q.Column != "" {
		if _, ok := (&Job{}).Column(q.Column); !ok {
			return nil, ErrInvalidQuery
		}
		columns = []string{q.Column}
	}

	needle := strings.ToLower(strings.TrimSpace(q.Search))
	ret := make([]Job, 0, len(jobs))
	for _, job := range jobs {
		if needle == "" || matches(&job, columns, needle) {
			ret = append(ret, job)
		}
	}

	if q.Sort == "" {
		return ret, nil
	}
	desc := strings.HasPrefix(q.Sort, "-")
	by := strings.TrimPrefix(q.Sort, "-")
	if _, ok := (&Job{}).Column(by); !ok {
		return nil, ErrInvalidQuery
	}
	sort.SliceStable(ret, func(i, j int) bool {
		a, _ := ret[i].Column(by)
		b, _ := ret[j].Column(by)
		if desc {
			return a > b
		}
		return a < b
	})
	return ret, nil
}

func matches(job *Job, columns []string, needle string) bool {
	for _, c := range columns {
		v, _ := job.Column(c)
		if strings.Contains(strings.ToLower(v), needle) {
			return true
		}
	}
	return false
}
