package filter

import (
	"context"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/hupe1980/vecfuse/columnar"
	"github.com/hupe1980/vecfuse/model"
)

// RowRecord exposes the system fields of a table row. Fields the row lacks fall back
// to the row of its MediaAsset, when one is known.
type RowRecord struct {
	Table    *columnar.Table
	Row      uint32
	Asset    *columnar.Table
	AssetRow uint32
	HasAsset bool
}

// Get returns the value of a system field.
func (r RowRecord) Get(field string) (any, bool) {
	if v, ok := r.Table.Value(r.Row, field); ok {
		return v, true
	}
	if r.HasAsset && r.Asset != nil {
		if v, ok := r.Asset.Value(r.AssetRow, field); ok {
			return v, true
		}
	}
	if field == model.ColAssetType {
		return r.Table.VertexType().DefaultAssetType(), true
	}
	return nil, false
}

// Allow returns the rows of t that pass p, or nil when p imposes no restriction.
// recordFor maps a row to the record evaluated for it.
func (p *Program) Allow(ctx context.Context, t *columnar.Table, recordFor func(row uint32) Record) (*roaring.Bitmap, error) {
	if p.Empty() {
		return nil, nil
	}
	out := roaring.New()
	for row := 0; row < t.Rows(); row++ {
		if row%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if p.root.match(recordFor(uint32(row))) {
			out.Add(uint32(row))
		}
	}
	return out, nil
}
