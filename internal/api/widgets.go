package api

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/anda-ren/starwhale/internal/widget"
	"github.com/anda-ren/starwhale/pkg/schema"
)

// widgetType reads the :type path parameter, which may arrive escaped.
func widgetType(c echo.Context) string {
	raw := c.Param("type")
	if t, err := url.PathUnescape(raw); err == nil {
		return t
	}
	return raw
}

func (s *Server) handleListWidgets(c echo.Context) error {
	group := strings.ToUpper(c.QueryParam("group"))
	configs := s.deps.Widgets.List()
	if group == "" {
		return c.JSON(http.StatusOK, configs)
	}
	out := make([]widget.Config, 0, len(configs))
	for _, cfg := range configs {
		if string(cfg.Group) == group {
			out = append(out, cfg)
		}
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) handleListPanels(c echo.Context) error {
	return c.JSON(http.StatusOK, s.deps.Widgets.ListPanels())
}

func (s *Server) handleGetWidget(c echo.Context) error {
	t := widgetType(c)
	p, ok := s.deps.Widgets.GetPlugin(t)
	if !ok {
		return schema.NewErrorf(schema.ErrCodeNotFound, "widget type %q is not registered", t)
	}
	return c.JSON(http.StatusOK, p.Defaults)
}

type instantiateRequest struct {
	Overrides map[string]any `json:"overrides"`
}

func (s *Server) handleInstantiate(c echo.Context) error {
	t := widgetType(c)

	var req instantiateRequest
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&req); err != nil {
			return schema.NewError(schema.ErrCodeValidation, "request body must be a JSON object").WithCause(err)
		}
	}

	inst, ok := s.deps.Widgets.Instantiate(t)
	if !ok {
		return schema.NewErrorf(schema.ErrCodeNotFound, "widget type %q is not registered", t)
	}
	for k, v := range req.Overrides {
		if err := inst.Set(k, v); err != nil {
			return err
		}
	}

	if err := s.loader.CheckInstance(inst); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, inst)
}
