package database

import (
	"testing"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type priced struct {
	Cost decimal.Decimal `bson:"cost"`
}

func TestDecimalStoredAsDecimal128(t *testing.T) {
	reg := NewRegistry()

	raw, err := bson.MarshalWithRegistry(reg, priced{Cost: decimal.RequireFromString("1249.99")})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var doc bson.Raw = raw
	val := doc.Lookup("cost")
	d128, ok := val.Decimal128OK()
	if !ok {
		t.Fatalf("cost stored as %v, want decimal128", val.Type)
	}
	if d128.String() != "1249.99" {
		t.Errorf("stored %s, want 1249.99", d128.String())
	}

	var back priced
	if err := bson.UnmarshalWithRegistry(reg, raw, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !back.Cost.Equal(decimal.RequireFromString("1249.99")) {
		t.Errorf("decoded %s", back.Cost)
	}
}

func TestDecimalDecodesNumericVariants(t *testing.T) {
	reg := NewRegistry()
	d128, _ := primitive.ParseDecimal128("1.5E+3")

	cases := []struct {
		name string
		doc  bson.D
		want string
	}{
		{"double", bson.D{{Key: "cost", Value: 12.5}}, "12.5"},
		{"int32", bson.D{{Key: "cost", Value: int32(7)}}, "7"},
		{"int64", bson.D{{Key: "cost", Value: int64(42)}}, "42"},
		{"string", bson.D{{Key: "cost", Value: "3.10"}}, "3.1"},
		{"null", bson.D{{Key: "cost", Value: nil}}, "0"},
		{"exponent", bson.D{{Key: "cost", Value: d128}}, "1500"},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			raw, err := bson.Marshal(c.doc)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			var out priced
			if err := bson.UnmarshalWithRegistry(reg, raw, &out); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if !out.Cost.Equal(decimal.RequireFromString(c.want)) {
				t.Errorf("got %s, want %s", out.Cost, c.want)
			}
		})
	}
}

func TestDecimalRejectsBoolean(t *testing.T) {
	raw, _ := bson.Marshal(bson.D{{Key: "cost", Value: true}})
	var out priced
	if err := bson.UnmarshalWithRegistry(NewRegistry(), raw, &out); err == nil {
		t.Fatal("expected error decoding boolean into decimal")
	}
}

func TestIndexSpecsCoverUniqueKeys(t *testing.T) {
	uniques := map[string]bool{}
	for _, s := range indexSpecs() {
		if s.model.Options != nil && s.model.Options.Unique != nil && *s.model.Options.Unique {
			uniques[s.collection] = true
		}
	}
	for _, coll := range []string{Users, Assets, Vendors, PurchaseOrders, Invoices} {
		if !uniques[coll] {
			t.Errorf("no unique index for %s", coll)
		}
	}
}
