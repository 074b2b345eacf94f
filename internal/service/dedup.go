package service

import (
	"sort"

	"github.com/planhub/checklist-api/internal/model"
)

// FindDuplicates собирает группы шаблонных задач с одинаковой парой
// (sourceId, stage). Каждая такая группа - след гонки засева, пережившей
// времена до уникального индекса. Порядок групп детерминирован.
func FindDuplicates(tasks []model.ProjectTask) []model.DuplicateGroup {
	type dupKey struct {
		sourceID string
		stage    string
	}

	groups := make(map[dupKey][]model.ProjectTask)
	for _, t := range tasks {
		if t.Origin != model.OriginTemplate || t.SourceID == nil {
			continue
		}
		k := dupKey{sourceID: *t.SourceID, stage: t.Stage}
		groups[k] = append(groups[k], t)
	}

	dups := make([]model.DuplicateGroup, 0)
	for k, members := range groups {
		if len(members) < 2 {
			continue
		}
		dups = append(dups, model.DuplicateGroup{
			SourceID: k.sourceID,
			Stage:    k.stage,
			Tasks:    members,
		})
	}

	sort.Slice(dups, func(i, j int) bool {
		if dups[i].SourceID != dups[j].SourceID {
			return dups[i].SourceID < dups[j].SourceID
		}
		return dups[i].Stage < dups[j].Stage
	})
	return dups
}
