package observer

import (
	"context"

	"sloppy/internal/api"
	"sloppy/internal/content"
)

// RESTSource reads the authoritative item view from the daemon's HTTP API.
type RESTSource struct {
	client *api.Client
}

// NewRESTSource wraps an API client.
func NewRESTSource(client *api.Client) *RESTSource {
	return &RESTSource{client: client}
}

// List returns every item the daemon knows about.
func (s *RESTSource) List(ctx context.Context) ([]*content.Item, error) {
	dtos, err := s.client.ListItems(ctx, content.Filter{})
	if err != nil {
		return nil, err
	}
	items := make([]*content.Item, 0, len(dtos))
	for _, dto := range dtos {
		item, err := api.ToItem(dto)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

// Get returns one item, or nil when the daemon no longer has it.
func (s *RESTSource) Get(ctx context.Context, id string) (*content.Item, error) {
	dto, err := s.client.GetItem(ctx, id)
	if api.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return api.ToItem(*dto)
}
