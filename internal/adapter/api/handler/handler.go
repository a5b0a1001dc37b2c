package handler

import (
	"github.com/labstack/echo/v4"

	"zarigaas/internal/domain/entity"
	"zarigaas/internal/realtime"
	"zarigaas/pkg/response"
	"zarigaas/pkg/utils"
)

// viewMeta reports the state of the view a page was cut from.
type viewMeta struct {
	Loading       bool                 `json:"loading"`
	Error         string               `json:"error,omitempty"`
	NetworkStatus entity.NetworkStatus `json:"networkStatus"`
	Version       uint64               `json:"version"`
}

func paged[T any](c echo.Context, model realtime.ReadModel[T]) error {
	p := utils.GetPaginationParams(c)
	meta := viewMeta{
		Loading:       model.Loading,
		Error:         model.Error,
		NetworkStatus: model.NetworkStatus,
		Version:       model.Version,
	}
	return response.Paginated(c, utils.Page(model.Items, p), int64(len(model.Items)), p.Page, p.PageSize, meta)
}
