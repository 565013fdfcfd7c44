package clients

import (
	"context"
	"net/http"
	neturl "net/url"

	"github.com/crycare/cry-pipeline/history"
)

// Status is the acknowledgement returned by the delete endpoints.
type Status struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// History lists url/history.
func (h *HTTP) History(ctx context.Context, url string) ([]history.Entry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url+"/history", nil)
	if err != nil {
		return nil, err
	}
	resp, err := h.c.Do(req)
	if err != nil {
		return nil, err
	}
	var out []history.Entry
	if err := h.decode("history", resp, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteHistory removes one entry by id.
func (h *HTTP) DeleteHistory(ctx context.Context, url, id string) (*Status, error) {
	return h.delete(ctx, "delete history", url+"/history/"+neturl.PathEscape(id))
}

// ClearHistory removes every entry.
func (h *HTTP) ClearHistory(ctx context.Context, url string) (*Status, error) {
	return h.delete(ctx, "clear history", url+"/history")
}

func (h *HTTP) delete(ctx context.Context, op, target string) (*Status, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, target, nil)
	if err != nil {
		return nil, err
	}
	resp, err := h.c.Do(req)
	if err != nil {
		return nil, err
	}
	var out Status
	if err := h.decode(op, resp, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
