package engine

import (
	"github.com/IshaanNene/museumfetch/internal/types"
)

// cityGroups returns the records that share one city page fetch. Records
// without a city link are left out. Without dedupe every record is its own
// group, so a city shared by several museums is fetched once per museum.
func cityGroups(records []*types.MuseumRecord, dedupe bool) [][]*types.MuseumRecord {
	var groups [][]*types.MuseumRecord
	index := make(map[string]int)

	for _, rec := range records {
		title := rec.CityPageTitle
		if !types.IsAvailable(title) {
			continue
		}
		if dedupe {
			if i, seen := index[title]; seen {
				groups[i] = append(groups[i], rec)
				continue
			}
			index[title] = len(groups)
		}
		groups = append(groups, []*types.MuseumRecord{rec})
	}
	return groups
}
