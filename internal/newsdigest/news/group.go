package news

// Group is the set of items sharing one primary tag.
type Group struct {
	Tag   string       `json:"tag"`
	Items []DigestItem `json:"items"`
}

// GroupedDigest partitions digest items by primary tag. Groups appear in the
// order their tag was first seen.
type GroupedDigest struct {
	Groups []Group `json:"groups"`
}

// GroupByTag partitions items by their primary tag, keeping input order
// within each group. No item is dropped or duplicated.
func GroupByTag(items []DigestItem) GroupedDigest {
	index := make(map[string]int)
	var g GroupedDigest
	for _, it := range items {
		tag := it.Enrichment.PrimaryTag()
		i, ok := index[tag]
		if !ok {
			i = len(g.Groups)
			index[tag] = i
			g.Groups = append(g.Groups, Group{Tag: tag})
		}
		g.Groups[i].Items = append(g.Groups[i].Items, it)
	}
	return g
}

// Tags returns the group tags in order.
func (g GroupedDigest) Tags() []string {
	tags := make([]string, len(g.Groups))
	for i, grp := range g.Groups {
		tags[i] = grp.Tag
	}
	return tags
}

// Get returns the items for tag, or nil.
func (g GroupedDigest) Get(tag string) []DigestItem {
	for _, grp := range g.Groups {
		if grp.Tag == tag {
			return grp.Items
		}
	}
	return nil
}

// Total is the number of items across all groups.
func (g GroupedDigest) Total() int {
	n := 0
	for _, grp := range g.Groups {
		n += len(grp.Items)
	}
	return n
}
