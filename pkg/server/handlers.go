// Copyright 2026 The Scribble Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package server is the thin HTTP surface the browser UI talks to. It
// decodes raw selection payloads, hands them to the plot session and
// returns either PNG bytes or a structured error naming the offending
// field.
package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/arpan-52/scribble/pkg/common/serr"
	"github.com/arpan-52/scribble/pkg/config"
	"github.com/arpan-52/scribble/pkg/plot"
	"github.com/arpan-52/scribble/pkg/query"
)

type Handler struct {
	session *plot.Session
}

func NewHandler(session *plot.Session) *Handler {
	return &Handler{session: session}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	api := e.Group("/api")
	api.GET("/schema", h.GetSchema)
	api.POST("/plot", h.PostPlot)
	api.POST("/plot/meta", h.PostPlotMeta)
}

// errorBody is the structured error shape promised to the UI.
type errorBody struct {
	Code    uint16 `json:"code"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

func writeError(c echo.Context, err error) error {
	var se *serr.Error
	status := http.StatusInternalServerError
	body := errorBody{Message: err.Error()}
	if errors.As(err, &se) {
		body.Code = se.ErrorCode()
		body.Field = se.Field()
		switch se.ErrorCode() {
		case serr.ErrInvalidQuery, serr.ErrNoSuchColumn:
			status = http.StatusBadRequest
		case serr.ErrCancelled:
			// The client superseded its own request.
			status = http.StatusConflict
		case serr.ErrScan, serr.ErrReaderIO:
			status = http.StatusBadGateway
		}
	}
	return c.JSON(status, body)
}

// GetSchema lists the dataset's columns and correlation labels.
func (h *Handler) GetSchema(c echo.Context) error {
	cat := h.session.Catalog()
	return c.JSON(http.StatusOK, map[string]interface{}{
		"columns":    cat.Columns(),
		"flagColumn": cat.FlagColumn(),
	})
}

// PostPlot renders the selection and streams back the PNG. Advisory
// warnings travel in the X-Scribble-Warnings header so the body can stay
// a plain image.
func (h *Handler) PostPlot(c echo.Context) error {
	var raw query.RawSelection
	if err := c.Bind(&raw); err != nil {
		return writeError(c, serr.NewInvalidQuery("body", "%s", err))
	}
	res, err := h.session.Render(c.Request().Context(), &raw)
	if err != nil {
		return writeError(c, err)
	}
	for _, w := range res.Warnings {
		c.Response().Header().Add("X-Scribble-Warnings",
			fmt.Sprintf("%s: %s", w.Kind, w.Message))
	}
	return c.Blob(http.StatusOK, "image/png", res.PNG)
}

// PostPlotMeta renders the selection but returns only the metadata
// sidecar document.
func (h *Handler) PostPlotMeta(c echo.Context) error {
	var raw query.RawSelection
	if err := c.Bind(&raw); err != nil {
		return writeError(c, serr.NewInvalidQuery("body", "%s", err))
	}
	res, err := h.session.Render(c.Request().Context(), &raw)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, res.Meta)
}

// New assembles the echo server for cfg and session.
func New(cfg *config.ServiceConfig, session *plot.Session) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	NewHandler(session).RegisterRoutes(e)
	return e
}

// Addr formats the listen address of cfg.
func Addr(cfg *config.ServiceConfig) string {
	return fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
}
