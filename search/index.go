// Package search maintains the discovery index over messageable
// entities. Results are projections for starting new conversations;
// they never become conversation state.
package search

import (
	"context"
	"fmt"

	"github.com/blugelabs/bluge"

	"gigspot/domain"
)

// Index is a Bluge full-text index of SearchableEntity documents,
// keyed by the entity ref string.
type Index struct {
	writer *bluge.Writer
}

func Open(path string) (*Index, error) {
	writer, err := bluge.OpenWriter(bluge.DefaultConfig(path))
	if err != nil {
		return nil, fmt.Errorf("open search index: %w", err)
	}
	return &Index{writer: writer}, nil
}

func (i *Index) Close() error {
	return i.writer.Close()
}

// Index upserts one entity document. Name and location are analyzed;
// type is a keyword so results can be filtered per tab.
func (i *Index) Index(e domain.SearchableEntity) error {
	doc := bluge.NewDocument(e.Ref.String()).
		AddField(bluge.NewKeywordField("entity_id", e.Ref.ID).StoreValue()).
		AddField(bluge.NewKeywordField("entity_type", string(e.Ref.Type)).StoreValue()).
		AddField(bluge.NewTextField("name", e.Name).StoreValue()).
		AddField(bluge.NewTextField("location", e.Location).StoreValue()).
		AddField(bluge.NewStoredOnlyField("image", []byte(e.Image)))
	if err := i.writer.Update(doc.ID(), doc); err != nil {
		return fmt.Errorf("index entity %s: %w", e.Ref, err)
	}
	return nil
}

// Search matches the term against entity names and optionally narrows
// to one entity type. Results come back in score order.
func (i *Index) Search(ctx context.Context, term string, entityType domain.EntityType, limit int) ([]domain.SearchableEntity, error) {
	reader, err := i.writer.Reader()
	if err != nil {
		return nil, fmt.Errorf("search reader: %w", err)
	}
	defer reader.Close()

	var query bluge.Query
	nameQuery := bluge.NewMatchQuery(term).SetField("name")
	if entityType != "" {
		query = bluge.NewBooleanQuery().
			AddMust(nameQuery).
			AddMust(bluge.NewTermQuery(string(entityType)).SetField("entity_type"))
	} else {
		query = nameQuery
	}

	iter, err := reader.Search(ctx, bluge.NewTopNSearch(limit, query))
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", term, err)
	}

	var results []domain.SearchableEntity
	for {
		match, err := iter.Next()
		if err != nil {
			return nil, fmt.Errorf("search iteration: %w", err)
		}
		if match == nil {
			return results, nil
		}
		var entity domain.SearchableEntity
		err = match.VisitStoredFields(func(field string, value []byte) bool {
			switch field {
			case "entity_id":
				entity.Ref.ID = string(value)
			case "entity_type":
				entity.Ref.Type = domain.EntityType(value)
			case "name":
				entity.Name = string(value)
			case "location":
				entity.Location = string(value)
			case "image":
				entity.Image = string(value)
			}
			return true
		})
		if err != nil {
			return nil, fmt.Errorf("load stored fields: %w", err)
		}
		results = append(results, entity)
	}
}
