package targets

import (
	"raise-and-raze/editor/internal/entity"
	"raise-and-raze/editor/internal/mirror"
	"raise-and-raze/editor/internal/selection"
)

// Resolve maps an ordered selection to the subset that currently exists in
// the world, collapsing duplicate entries. Order is preserved and the first
// occurrence of a duplicated uid wins. The second return lists the entries
// that failed the existence lookup, in selection order.
func Resolve(selected selection.Selection, view mirror.View) (resolved []entity.UID, missing []entity.UID) {
	if len(selected) == 0 {
		return nil, nil
	}
	seen := make(map[entity.UID]struct{}, len(selected))
	for _, uid := range selected {
		if _, dup := seen[uid]; dup {
			continue
		}
		seen[uid] = struct{}{}
		if _, ok := view.Lookup(uid); ok {
			resolved = append(resolved, uid)
		} else {
			missing = append(missing, uid)
		}
	}
	return resolved, missing
}
