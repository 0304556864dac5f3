// Package catalog reads product catalogs from JSON documents.
package catalog

import (
	"bytes"
	"io"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront-cart/internal/domain/product"
)

const readBufSize = 64 << 10

// Decode streams the products of a JSON array read from r to fn, one record
// at a time. Records without "available" are on sale.
func Decode(r io.Reader, fn func(product.Product) error) error {
	d := jx.Decode(r, readBufSize)
	idx := 0
	err := d.Arr(func(d *jx.Decoder) error {
		p, err := readProduct(d)
		if err != nil {
			return errors.Wrapf(err, "record %d", idx)
		}
		idx++
		return fn(p)
	})
	if err != nil {
		return errors.Wrap(err, "decode catalog")
	}
	return nil
}

// DecodeBytes returns every product of the JSON array in data.
func DecodeBytes(data []byte) ([]product.Product, error) {
	var out []product.Product
	err := Decode(bytes.NewReader(data), func(p product.Product) error {
		out = append(out, p)
		return nil
	})
	return out, err
}

func readProduct(d *jx.Decoder) (product.Product, error) {
	p := product.Product{Available: true}
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		if d.Next() == jx.Null {
			return d.Null()
		}
		var err error
		switch string(key) {
		case "id":
			p.ID, err = readScalar(d)
		case "name":
			p.Name, err = d.Str()
		case "price":
			var raw string
			if raw, err = readScalar(d); err != nil {
				return err
			}
			if p.Price, err = decimal.NewFromString(raw); err != nil {
				return errors.Wrapf(err, "price %q", raw)
			}
		case "category":
			p.Category, err = d.Str()
		case "description":
			p.Description, err = d.Str()
		case "image_url", "imageUrl", "image":
			p.ImageURL, err = d.Str()
		case "available":
			p.Available, err = d.Bool()
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		return p, err
	}
	p.ID = strings.TrimSpace(p.ID)
	if p.ID == "" {
		return p, errors.New("id is required")
	}
	return p, nil
}

// readScalar reads a string or a number as its textual form.
func readScalar(d *jx.Decoder) (string, error) {
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
		return "", errors.Errorf("unexpected %s", d.Next())
	}
}
