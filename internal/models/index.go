package models

import "fmt"

// IndexKind is the similarity-search index type on a collection.
type IndexKind string

const (
	IndexIVF     IndexKind = "ivf"
	IndexHNSW    IndexKind = "hnsw"
	IndexDiskANN IndexKind = "diskann"
)

// SimilarityCosine is the only supported metric.
const SimilarityCosine = "cosine"

// ParseIndexKind accepts the plain kind name or the Cosmos "vector-" prefixed form.
func ParseIndexKind(s string) (IndexKind, error) {
	switch s {
	case "ivf", "vector-ivf":
		return IndexIVF, nil
	case "hnsw", "vector-hnsw":
		return IndexHNSW, nil
	case "diskann", "vector-diskann":
		return IndexDiskANN, nil
	}
	return "", fmt.Errorf("unknown index kind %q", s)
}

// IndexTuning holds the kind-specific build parameters.
type IndexTuning struct {
	NumLists       int `json:"num_lists,omitempty"`
	M              int `json:"m,omitempty"`
	EfConstruction int `json:"ef_construction,omitempty"`
}

// DefaultTuning returns the tuning the fallback path uses.
func DefaultTuning() IndexTuning {
	return IndexTuning{NumLists: DefaultNumLists, M: DefaultHNSWM, EfConstruction: DefaultEfConstruction}
}

// ForKind drops parameters that do not apply to kind and fills missing ones with defaults.
func (t IndexTuning) ForKind(kind IndexKind) IndexTuning {
	switch kind {
	case IndexIVF:
		if t.NumLists <= 0 {
			t.NumLists = DefaultNumLists
		}
		return IndexTuning{NumLists: t.NumLists}
	case IndexHNSW:
		if t.M <= 0 {
			t.M = DefaultHNSWM
		}
		if t.EfConstruction <= 0 {
			t.EfConstruction = DefaultEfConstruction
		}
		return IndexTuning{M: t.M, EfConstruction: t.EfConstruction}
	}
	return IndexTuning{}
}

// IndexDescriptor describes the vector index that actually exists on a collection.
type IndexDescriptor struct {
	Name             string      `json:"name"`
	Kind             IndexKind   `json:"kind"`
	Dimensions       int         `json:"dimensions"`
	SimilarityMetric string      `json:"similarity"`
	Tuning           IndexTuning `json:"tuning"`
}
