package handler

import (
	"io"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront-cart/internal/domain/cart"
	"github.com/xenking/storefront-cart/internal/domain/order"
	"github.com/xenking/storefront-cart/internal/domain/pricing"
	"github.com/xenking/storefront-cart/internal/domain/product"
)

const maxRequestBody = 64 << 10

func writeJSON(w http.ResponseWriter, code int, encode func(e *jx.Encoder)) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	encode(e)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(e.Bytes())
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err != nil {
		return nil, badRequest("read request body", err)
	}
	return body, nil
}

func encodeMoney(e *jx.Encoder, d decimal.Decimal) {
	e.Num(jx.Num(d.String()))
}

func encodeStringMap(e *jx.Encoder, m map[string]string) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	e.Obj(func(e *jx.Encoder) {
		for _, k := range keys {
			e.Field(k, func(e *jx.Encoder) { e.Str(m[k]) })
		}
	})
}

func (h *Handler) imageURL(ref string) string {
	if ref == "" || h.imageBaseURL == "" || strings.Contains(ref, "://") {
		return ref
	}
	return h.imageBaseURL + "/" + strings.TrimLeft(ref, "/")
}

func (h *Handler) encodeProduct(e *jx.Encoder, p product.Product) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(p.ID) })
		e.Field("name", func(e *jx.Encoder) { e.Str(p.Name) })
		e.Field("price", func(e *jx.Encoder) { encodeMoney(e, p.Price) })
		e.Field("category", func(e *jx.Encoder) { e.Str(p.Category) })
		e.Field("description", func(e *jx.Encoder) { e.Str(p.Description) })
		e.Field("imageUrl", func(e *jx.Encoder) { e.Str(h.imageURL(p.ImageURL)) })
		e.Field("available", func(e *jx.Encoder) { e.Bool(p.Available) })
	})
}

func encodeSummary(e *jx.Encoder, s pricing.Summary) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("subtotal", func(e *jx.Encoder) { encodeMoney(e, s.Subtotal) })
		e.Field("deliveryFee", func(e *jx.Encoder) { encodeMoney(e, s.DeliveryFee) })
		e.Field("discount", func(e *jx.Encoder) { encodeMoney(e, s.Discount) })
		e.Field("total", func(e *jx.Encoder) { encodeMoney(e, s.Total) })
		e.Field("itemCount", func(e *jx.Encoder) { e.Int(s.ItemCount) })
		e.Field("quantity", func(e *jx.Encoder) { e.Int(s.Quantity) })
	})
}

// encodeCart writes the cart lines together with their checkout totals.
func (h *Handler) encodeCart(e *jx.Encoder, clientID string, snap cart.Snapshot) {
	summary := pricing.Compute(snap.Items, h.orders.Policy())
	e.Obj(func(e *jx.Encoder) {
		e.Field("cartId", func(e *jx.Encoder) { e.Str(clientID) })
		e.Field("items", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, item := range snap.Items {
					e.Obj(func(e *jx.Encoder) {
						e.Field("productId", func(e *jx.Encoder) { e.Str(item.ProductID) })
						e.Field("name", func(e *jx.Encoder) { e.Str(item.Name) })
						e.Field("unitPrice", func(e *jx.Encoder) { encodeMoney(e, item.UnitPrice) })
						e.Field("imageUrl", func(e *jx.Encoder) { e.Str(h.imageURL(item.ImageRef)) })
						e.Field("quantity", func(e *jx.Encoder) { e.Int(item.Quantity) })
						e.Field("lineTotal", func(e *jx.Encoder) { encodeMoney(e, pricing.LineTotal(item)) })
					})
				}
			})
		})
		e.Field("summary", func(e *jx.Encoder) { encodeSummary(e, summary) })
	})
}

func encodeShipping(e *jx.Encoder, s order.Shipping) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("name", func(e *jx.Encoder) { e.Str(s.Name) })
		e.Field("phone", func(e *jx.Encoder) { e.Str(s.Phone) })
		e.Field("city", func(e *jx.Encoder) { e.Str(s.City) })
		e.Field("district", func(e *jx.Encoder) { e.Str(s.District) })
		e.Field("ward", func(e *jx.Encoder) { e.Str(s.Ward) })
		e.Field("address", func(e *jx.Encoder) { e.Str(s.Address) })
		e.Field("type", func(e *jx.Encoder) { e.Str(string(s.AddressType)) })
		e.Field("note", func(e *jx.Encoder) { e.Str(s.Note) })
	})
}

func encodeOrder(e *jx.Encoder, o order.Order) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(o.ID) })
		e.Field("status", func(e *jx.Encoder) { e.Str(string(o.Status)) })
		e.Field("cancellable", func(e *jx.Encoder) { e.Bool(o.Status.Cancellable()) })
		e.Field("totalPrice", func(e *jx.Encoder) { encodeMoney(e, o.TotalPrice) })
		e.Field("paymentMethod", func(e *jx.Encoder) { e.Str(string(o.PaymentMethod)) })
		if !o.CreatedAt.IsZero() {
			e.Field("createdAt", func(e *jx.Encoder) { e.Str(o.CreatedAt.Format(time.RFC3339)) })
		}
		e.Field("items", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, item := range o.Items {
					e.Obj(func(e *jx.Encoder) {
						e.Field("productId", func(e *jx.Encoder) { e.Str(item.ProductID) })
						e.Field("name", func(e *jx.Encoder) { e.Str(item.Name) })
						e.Field("quantity", func(e *jx.Encoder) { e.Int(item.Quantity) })
						e.Field("price", func(e *jx.Encoder) { encodeMoney(e, item.UnitPrice) })
					})
				}
			})
		})
		e.Field("customer", func(e *jx.Encoder) { encodeShipping(e, o.Shipping) })
	})
}

type addItemRequest struct {
	ProductID string
	Quantity  int
}

func decodeAddItem(body []byte) (addItemRequest, error) {
	req := addItemRequest{Quantity: 1}
	err := jx.DecodeBytes(body).ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch string(key) {
		case "productId", "product_id":
			v, err := readID(d)
			req.ProductID = v
			return err
		case "quantity":
			if d.Next() == jx.Null {
				return d.Null()
			}
			v, err := d.Int()
			req.Quantity = v
			return err
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return req, badRequest("invalid request body", err)
	}
	if req.ProductID == "" {
		return req, badRequest("productId is required", nil)
	}
	return req, nil
}

type checkoutRequest struct {
	Shipping      order.Shipping
	PaymentMethod string
}

func decodeCheckout(body []byte) (checkoutRequest, error) {
	var req checkoutRequest
	err := jx.DecodeBytes(body).ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch string(key) {
		case "customer", "shipping":
			return readShipping(d, &req.Shipping)
		case "paymentMethod", "payment_method":
			v, err := d.Str()
			req.PaymentMethod = v
			return err
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return req, badRequest("invalid request body", err)
	}
	return req, nil
}

func readShipping(d *jx.Decoder, s *order.Shipping) error {
	return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var dst *string
		switch string(key) {
		case "name":
			dst = &s.Name
		case "phone":
			dst = &s.Phone
		case "city":
			dst = &s.City
		case "district":
			dst = &s.District
		case "ward":
			dst = &s.Ward
		case "address":
			dst = &s.Address
		case "note":
			dst = &s.Note
		case "type", "addressType":
			if d.Next() == jx.Null {
				return d.Null()
			}
			v, err := d.Str()
			s.AddressType = order.AddressType(v)
			return err
		default:
			return d.Skip()
		}
		if d.Next() == jx.Null {
			return d.Null()
		}
		v, err := d.Str()
		*dst = v
		return err
	})
}

// readID accepts identifiers encoded either as strings or as numbers.
func readID(d *jx.Decoder) (string, error) {
	switch d.Next() {
	case jx.String:
		return d.Str()
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return "", err
		}
		return n.String(), nil
	default:
		return "", errors.New("id must be a string or a number")
	}
}
