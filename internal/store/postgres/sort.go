package postgres

import (
	"sort"

	"github.com/resalt-bridge/resalt/internal/model"
)

func sortMinionsSlice(minions []model.Minion, key model.Sort) {
	less := func(i, j int) bool { return minions[i].ID < minions[j].ID }
	switch key {
	case model.SortMinionIDDesc:
		less = func(i, j int) bool { return minions[i].ID > minions[j].ID }
	case model.SortMinionLastSeenAsc:
		less = func(i, j int) bool { return minions[i].LastSeen.Before(minions[j].LastSeen) }
	case model.SortMinionLastSeenDesc:
		less = func(i, j int) bool { return minions[i].LastSeen.After(minions[j].LastSeen) }
	case model.SortMinionOSTypeAsc:
		less = func(i, j int) bool { return strOrEmpty(minions[i].OSType) < strOrEmpty(minions[j].OSType) }
	case model.SortMinionOSTypeDesc:
		less = func(i, j int) bool { return strOrEmpty(minions[i].OSType) > strOrEmpty(minions[j].OSType) }
	case model.SortMinionConformitySuccessAsc:
		less = func(i, j int) bool { return i32OrZero(minions[i].ConformitySuccess) < i32OrZero(minions[j].ConformitySuccess) }
	case model.SortMinionConformitySuccessDesc:
		less = func(i, j int) bool { return i32OrZero(minions[i].ConformitySuccess) > i32OrZero(minions[j].ConformitySuccess) }
	case model.SortMinionConformityIncorrectAsc:
		less = func(i, j int) bool { return i32OrZero(minions[i].ConformityIncorrect) < i32OrZero(minions[j].ConformityIncorrect) }
	case model.SortMinionConformityIncorrectDesc:
		less = func(i, j int) bool { return i32OrZero(minions[i].ConformityIncorrect) > i32OrZero(minions[j].ConformityIncorrect) }
	case model.SortMinionConformityErrorAsc:
		less = func(i, j int) bool { return i32OrZero(minions[i].ConformityError) < i32OrZero(minions[j].ConformityError) }
	case model.SortMinionConformityErrorDesc:
		less = func(i, j int) bool { return i32OrZero(minions[i].ConformityError) > i32OrZero(minions[j].ConformityError) }
	}
	sort.SliceStable(minions, less)
}

// i32OrZero treats a missing count as zero for sorting.
func i32OrZero(p *int32) int32 {
	if p == nil {
		return 0
	}
	return *p
}

func strOrEmpty(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func paginateMinions(minions []model.Minion, page model.Paginate) []model.Minion {
	if page.Limit <= 0 {
		if page.Offset <= 0 {
			return minions
		}
		if int(page.Offset) >= len(minions) {
			return []model.Minion{}
		}
		return minions[page.Offset:]
	}
	start := int(page.Offset)
	if start >= len(minions) {
		return []model.Minion{}
	}
	end := start + int(page.Limit)
	if end > len(minions) {
		end = len(minions)
	}
	return minions[start:end]
}

func paginateJobsSlice(jobs []model.Job, page model.Paginate) []model.Job {
	start := int(page.Offset)
	if start >= len(jobs) {
		return []model.Job{}
	}
	if page.Limit <= 0 {
		return jobs[start:]
	}
	end := start + int(page.Limit)
	if end > len(jobs) {
		end = len(jobs)
	}
	return jobs[start:end]
}
