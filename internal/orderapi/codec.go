package orderapi

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront-cart/internal/domain/order"
)

func encodePayload(p order.Payload) []byte {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)

	e.Obj(func(e *jx.Encoder) {
		e.Field("items", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, item := range p.Items {
					e.Obj(func(e *jx.Encoder) {
						e.Field("product_id", func(e *jx.Encoder) { e.Str(item.ProductID) })
						e.Field("quantity", func(e *jx.Encoder) { e.Int(item.Quantity) })
						e.Field("price", func(e *jx.Encoder) { encodeMoney(e, item.UnitPrice) })
					})
				}
			})
		})
		e.Field("total_price", func(e *jx.Encoder) { encodeMoney(e, p.TotalPrice) })
		e.Field("payment_method", func(e *jx.Encoder) { e.Str(string(p.PaymentMethod)) })
		e.Field("customer", func(e *jx.Encoder) { encodeCustomer(e, p.Shipping) })
	})

	out := make([]byte, len(e.Bytes()))
	copy(out, e.Bytes())
	return out
}

func encodeCustomer(e *jx.Encoder, s order.Shipping) {
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

// encodeMoney writes d as a bare JSON number.
func encodeMoney(e *jx.Encoder, d decimal.Decimal) {
	e.Num(jx.Num(d.String()))
}

// unwrapData returns the value of a top-level "data" member, or body itself
// when the response is not enveloped.
func unwrapData(body []byte) ([]byte, error) {
	d := jx.DecodeBytes(body)
	if d.Next() != jx.Object {
		return body, nil
	}
	var (
		data  jx.Raw
		found bool
	)
	if err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		if string(key) != "data" {
			return d.Skip()
		}
		raw, err := d.Raw()
		if err != nil {
			return err
		}
		data, found = raw, true
		return nil
	}); err != nil {
		return nil, errors.Wrap(err, "decode envelope")
	}
	if !found {
		return body, nil
	}
	return data, nil
}

func decodeOrder(body []byte) (*order.Order, error) {
	data, err := unwrapData(body)
	if err != nil {
		return nil, err
	}
	var o order.Order
	if err := readOrder(jx.DecodeBytes(data), &o); err != nil {
		return nil, errors.Wrap(err, "decode order")
	}
	return &o, nil
}

func decodeOrders(body []byte) ([]order.Order, error) {
	data, err := unwrapData(body)
	if err != nil {
		return nil, err
	}
	d := jx.DecodeBytes(data)
	if d.Next() == jx.Null {
		return nil, nil
	}
	var orders []order.Order
	if err := d.Arr(func(d *jx.Decoder) error {
		var o order.Order
		if err := readOrder(d, &o); err != nil {
			return err
		}
		orders = append(orders, o)
		return nil
	}); err != nil {
		return nil, errors.Wrap(err, "decode orders")
	}
	return orders, nil
}

func readOrder(d *jx.Decoder, o *order.Order) error {
	return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch string(key) {
		case "id", "_id":
			v, err := readID(d)
			o.ID = v
			return err
		case "status":
			v, err := d.Str()
			o.Status = order.Status(v)
			return err
		case "total_price":
			v, err := readMoney(d)
			o.TotalPrice = v
			return err
		case "payment_method":
			v, err := d.Str()
			o.PaymentMethod = order.PaymentMethod(v)
			return err
		case "created_at":
			v, err := d.Str()
			if err != nil {
				return err
			}
			t, err := time.Parse(time.RFC3339Nano, v)
			if err != nil {
				return errors.Wrap(err, "created_at")
			}
			o.CreatedAt = t
			return nil
		case "customer":
			return readCustomer(d, &o.Shipping)
		case "items":
			return d.Arr(func(d *jx.Decoder) error {
				var item order.Item
				if err := readItem(d, &item); err != nil {
					return err
				}
				o.Items = append(o.Items, item)
				return nil
			})
		default:
			return d.Skip()
		}
	})
}

func readItem(d *jx.Decoder, item *order.Item) error {
	return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch string(key) {
		case "product_id":
			v, err := readID(d)
			item.ProductID = v
			return err
		case "name":
			v, err := d.Str()
			item.Name = v
			return err
		case "quantity":
			v, err := d.Int()
			item.Quantity = v
			return err
		case "price":
			v, err := readMoney(d)
			item.UnitPrice = v
			return err
		default:
			return d.Skip()
		}
	})
}

func readCustomer(d *jx.Decoder, s *order.Shipping) error {
	if d.Next() == jx.Null {
		return d.Null()
	}
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
		case "type":
			v, err := d.Str()
			s.AddressType = order.AddressType(v)
			return err
		default:
			return d.Skip()
		}
		v, err := d.Str()
		*dst = v
		return err
	})
}

// readID accepts identifiers encoded either as strings or as numbers.
func readID(d *jx.Decoder) (string, error) {
	if d.Next() == jx.Number {
		n, err := d.Num()
		if err != nil {
			return "", err
		}
		return n.String(), nil
	}
	return d.Str()
}

// readMoney accepts amounts encoded either as numbers or as numeric strings.
func readMoney(d *jx.Decoder) (decimal.Decimal, error) {
	var raw string
	switch d.Next() {
	case jx.String:
		v, err := d.Str()
		if err != nil {
			return decimal.Zero, err
		}
		raw = v
	case jx.Null:
		return decimal.Zero, d.Null()
	default:
		n, err := d.Num()
		if err != nil {
			return decimal.Zero, err
		}
		raw = n.String()
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "amount %q", raw)
	}
	return v, nil
}

// decodeRejection extracts {message, errors} from an error body. errors may map
// each field to a message or to a list of messages.
func decodeRejection(body []byte) *order.RejectedError {
	rej := &order.RejectedError{}
	d := jx.DecodeBytes(body)
	if d.Next() != jx.Object {
		return rej
	}
	_ = d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch string(key) {
		case "message", "error":
			if d.Next() != jx.String {
				return d.Skip()
			}
			v, err := d.Str()
			if rej.Message == "" {
				rej.Message = v
			}
			return err
		case "errors":
			if d.Next() != jx.Object {
				return d.Skip()
			}
			rej.Fields = make(map[string]string)
			return d.ObjBytes(func(d *jx.Decoder, field []byte) error {
				msg, err := readFieldMessage(d)
				if err != nil {
					return err
				}
				rej.Fields[string(field)] = msg
				return nil
			})
		default:
			return d.Skip()
		}
	})
	return rej
}

func readFieldMessage(d *jx.Decoder) (string, error) {
	switch d.Next() {
	case jx.String:
		return d.Str()
	case jx.Array:
		var first string
		err := d.Arr(func(d *jx.Decoder) error {
			if first != "" || d.Next() != jx.String {
				return d.Skip()
			}
			v, err := d.Str()
			first = v
			return err
		})
		return first, err
	default:
		return "", d.Skip()
	}
}
