package parser

import (
	"iter"

	"github.com/standardbeagle/phptags/internal/types"
)

type tagKey struct {
	className  string
	identifier string
	kind       types.TagKind
}

// ExtractTags folds declaration events into tags. A declaration repeated
// within one file (conditional definitions) is kept once.
func ExtractTags(events iter.Seq[Event]) []types.Tag {
	var tags []types.Tag
	seen := make(map[tagKey]bool)
	for ev := range events {
		if !ev.Kind.IsDeclaration() {
			continue
		}
		k := tagKey{className: ev.Tag.ClassName, identifier: ev.Tag.FullyQualified(), kind: ev.Tag.Kind}
		if seen[k] {
			continue
		}
		seen[k] = true
		tags = append(tags, ev.Tag)
	}
	return tags
}

// ExtractRelations folds class and trait-use events into inheritance edges
func ExtractRelations(events iter.Seq[Event]) []types.ClassRelation {
	var relations []types.ClassRelation
	for ev := range events {
		switch ev.Kind {
		case EventClass, EventTraitUse:
			relations = append(relations, ev.Relations...)
		}
	}
	return relations
}

// ExtractImports returns the imports in effect at the end of the file
func ExtractImports(events iter.Seq[Event]) types.Imports {
	im := types.NewImports("")
	for ev := range events {
		switch ev.Kind {
		case EventNamespace:
			im = types.NewImports(ev.Tag.Identifier)
		case EventUse:
			im.Add(ev.Name, ev.Alias)
		}
	}
	return im
}

// ScopeEvents filters events down to those belonging to scope
func ScopeEvents(events iter.Seq[Event], scope types.Scope) iter.Seq[Event] {
	return func(yield func(Event) bool) {
		for ev := range events {
			if ev.Scope.Key() != scope.Key() {
				continue
			}
			if !yield(ev) {
				return
			}
		}
	}
}
