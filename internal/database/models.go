package database

import "time"

const (
	// CurrentSetName names the transient working set.
	CurrentSetName = "_current"

	// DefaultSetName names the persisted set holding every cataloged file.
	DefaultSetName = "*"

	// DefaultCatalogName names the catalog created on first initialization.
	DefaultCatalogName = "default"

	// DefaultTagKind is the kind used for bare tags.
	DefaultTagKind = "tag"
)

// FileRecord is one cataloged image.
type FileRecord struct {
	ID         int64     `json:"id"`
	RepoKey    int64     `json:"repoKey"`
	Name       string    `json:"name"` // full path, unique
	Filename   string    `json:"filename"`
	Dir        string    `json:"path"`
	Ext        string    `json:"ext"`
	Size       int64     `json:"size"`
	ModTime    time.Time `json:"fileDate"`
	Searchable bool      `json:"searchable"`
}

// Tag is a (file, kind, value) triple.
type Tag struct {
	FileKey int64  `json:"fileKey"`
	Kind    string `json:"kind"`
	Value   string `json:"value"`
}

// Repository is a scan root belonging to a catalog.
type Repository struct {
	ID         int64  `json:"id"`
	CatalogKey int64  `json:"catalogKey"`
	Path       string `json:"path"`
	Recursive  bool   `json:"recursive"`
}

// OrderedSet identifies a positionally addressed sequence of file keys.
// The transient working set and persisted named sets share this type and
// every query over them; only the backing table differs.
type OrderedSet struct {
	Name      string `json:"name"`
	HeadKey   int64  `json:"headKey"`
	Transient bool   `json:"transient"`
	ReadOnly  bool   `json:"readOnly,omitempty"`
}

// CurrentSet is the session's working set.
var CurrentSet = OrderedSet{Name: CurrentSetName, Transient: true}

func (s OrderedSet) table() string {
	if s.Transient {
		return "current_set"
	}
	return "set_detail"
}

func (s OrderedSet) lifetime() string {
	if s.Transient {
		return "transient"
	}
	return "persisted"
}

// SetEntry is one position of an ordered set.
type SetEntry struct {
	FileKey  int64  `json:"fileKey"`
	Position int    `json:"position"`
	Name     string `json:"name"`
	Marked   bool   `json:"marked,omitempty"`
}
