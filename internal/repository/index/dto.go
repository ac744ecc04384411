package index

import (
	"encoding/hex"

	"github.com/kailas-cloud/cardex/internal/db"
	"github.com/kailas-cloud/cardex/internal/domain"
)

const (
	vectorField  = "__vector"
	vectorAlias  = "vector"
	contentField = "__content"
	// ownerKeyField holds the hex owner id. TAG values split on separators,
	// raw owner ids may contain any of them.
	ownerKeyField = "__owner"
	ownerKeySep   = "|"
)

var returnFields = []string{
	domain.FieldTitle,
	domain.FieldDescription,
	domain.FieldType,
	domain.FieldLink,
	domain.FieldOwnerID,
}

func buildIndex(name, prefix string, dim int, hnsw HNSWConfig) (*db.IndexDefinition, error) {
	return db.NewIndex(name).
		Prefix(prefix).
		TagWithOpts(ownerKeyField, ownerKeySep, true).
		VectorHNSW(vectorField, vectorAlias, dim, db.DistanceCosine, hnsw.M, hnsw.EFConstruct).
		Build()
}

func entryToHash(e domain.IndexEntry) map[string]string {
	m := e.Metadata.Fields()
	m[contentField] = e.Document
	m[ownerKeyField] = ownerKey(e.Metadata.OwnerID)
	m[vectorField] = db.EncodeVector(e.Vector)
	return m
}

func entryToNeighbor(id string, e db.SearchEntry) domain.Neighbor {
	n := domain.Neighbor{ID: id, Distance: e.Distance}
	if meta, ok := domain.MetadataFromFields(e.Fields); ok {
		n.Metadata = &meta
	}
	return n
}

func ownerKey(ownerID string) string {
	return hex.EncodeToString([]byte(ownerID))
}
