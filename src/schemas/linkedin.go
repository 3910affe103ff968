package schemas

// SnapshotResponse is one page of the LinkedIn Member Snapshot API.
type SnapshotResponse struct {
	Elements []SnapshotElement `json:"elements"`
	Paging   SnapshotPaging    `json:"paging"`
}

type SnapshotElement struct {
	SnapshotDomain string              `json:"snapshotDomain"`
	SnapshotData   []map[string]string `json:"snapshotData"`
}

type SnapshotPaging struct {
	Start int                 `json:"start"`
	Count int                 `json:"count"`
	Total int                 `json:"total"`
	Links []SnapshotPagingRef `json:"links"`
}

type SnapshotPagingRef struct {
	Rel  string `json:"rel"`
	Href string `json:"href"`
}

// HasNextPage reports whether the paging block advertises a next link.
func (p SnapshotPaging) HasNextPage() bool {
	for _, link := range p.Links {
		if link.Rel == "next" {
			return true
		}
	}
	return false
}
