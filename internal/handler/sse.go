package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// heartbeat keeps idle event streams open through proxies.
const heartbeat = 15 * time.Second

type sseWriter struct {
	res *echo.Response
}

func startSSE(c echo.Context) *sseWriter {
	h := c.Response().Header()
	h.Set(echo.HeaderContentType, "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	c.Response().WriteHeader(http.StatusOK)
	c.Response().Flush()
	return &sseWriter{res: c.Response()}
}

func (w *sseWriter) send(event string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w.res, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	w.res.Flush()
	return nil
}

func (w *sseWriter) ping() error {
	if _, err := fmt.Fprint(w.res, ": ping\n\n"); err != nil {
		return err
	}
	w.res.Flush()
	return nil
}
