package handler

import (
	"io"
	"net/http"
	"time"

	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront-cart/internal/domain/cart"
)

// cartEvents streams the cart as server-sent events. The current state is
// sent first, then one event per change. A slow reader only ever receives
// the latest state.
func (h *Handler) cartEvents(w http.ResponseWriter, r *http.Request) error {
	store, err := h.openCart(w, r)
	if err != nil {
		return err
	}
	rc := http.NewResponseController(w)

	updates := make(chan cart.Snapshot, 1)
	unsubscribe := store.Subscribe(func(s cart.Snapshot) {
		for {
			select {
			case updates <- s:
				return
			default:
			}
			select {
			case <-updates:
			default:
			}
		}
	})
	defer unsubscribe()

	// Streams outlive the server write timeout.
	_ = rc.SetWriteDeadline(time.Time{})

	hdr := w.Header()
	hdr.Set("Content-Type", "text/event-stream")
	hdr.Set("Cache-Control", "no-cache")
	hdr.Set("Connection", "keep-alive")
	hdr.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	lg := zctx.From(r.Context())
	send := func(snap cart.Snapshot) error {
		e := jx.GetEncoder()
		defer jx.PutEncoder(e)
		h.encodeCart(e, store.ClientID(), snap)

		if _, err := io.WriteString(w, "event: cart\ndata: "); err != nil {
			return err
		}
		if _, err := w.Write(e.Bytes()); err != nil {
			return err
		}
		if _, err := io.WriteString(w, "\n\n"); err != nil {
			return err
		}
		return rc.Flush()
	}

	if err := send(store.Snapshot()); err != nil {
		lg.Debug("Event stream closed", zap.Error(err))
		return nil
	}

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return nil
		case <-h.closing:
			return nil
		case snap := <-updates:
			if err := send(snap); err != nil {
				lg.Debug("Event stream closed", zap.Error(err))
				return nil
			}
		case <-ticker.C:
			if _, err := io.WriteString(w, ": ping\n\n"); err != nil {
				return nil
			}
			if err := rc.Flush(); err != nil {
				return nil
			}
		}
	}
}
