package realtime

import "zarigaas/internal/domain/entity"

// ReadModel is the only shape handed to UI consumers. Items is a copy.
type ReadModel[T any] struct {
	Items         []T                  `json:"items"`
	Loading       bool                 `json:"loading"`
	Error         string               `json:"error,omitempty"`
	NetworkStatus entity.NetworkStatus `json:"networkStatus"`
	Version       uint64               `json:"version"`
}

// viewOf builds a read model over items derived from c. Loading is false
// as soon as the first snapshot or an error arrived.
func viewOf[T any, S any](c *Collection[S], items []T, status entity.NetworkStatus) ReadModel[T] {
	if items == nil {
		items = []T{}
	}
	model := ReadModel[T]{
		Items:         items,
		NetworkStatus: status,
		Version:       c.Version(),
	}
	if err := c.Err(); err != nil {
		model.Error = userMessage(err)
	} else {
		model.Loading = !c.Loaded()
	}
	return model
}
