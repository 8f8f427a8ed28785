package iss

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"moex-bond-screener/internal/bond"
)

// DescriptionFetcher reads the static description block of a security.
type DescriptionFetcher struct {
	client *Client
}

// NewDescriptionFetcher builds a description fetcher on top of a shared client.
func NewDescriptionFetcher(client *Client) *DescriptionFetcher {
	return &DescriptionFetcher{client: client}
}

// FetchDescriptor parses the name/value description of secid. Bonds restricted
// to qualified investors and bonds with less than one day to redemption are
// reported through the filter reason, not as errors.
func (f *DescriptionFetcher) FetchDescriptor(ctx context.Context, secid string) (bond.Descriptor, bond.FilterReason, error) {
	params := url.Values{}
	params.Set("iss.meta", "off")
	params.Set("iss.only", "description")
	params.Set("description.columns", "name,value")

	const op = "describe security"
	blocks, err := f.client.get(ctx, op, "/iss/securities/"+url.PathEscape(secid)+".json", params)
	if err != nil {
		return bond.Descriptor{}, bond.ReasonNone, err
	}

	table, err := block(blocks, op, "description")
	if err != nil {
		return bond.Descriptor{}, bond.ReasonNone, err
	}
	values, err := table.Pairs("name", "value")
	if err != nil {
		return bond.Descriptor{}, bond.ReasonNone, malformed(op, "description", err)
	}

	r := fieldReader{op: op, values: values}
	desc := bond.Descriptor{
		SecID:            r.str("SECID", true),
		ShortName:        r.str("SHORTNAME", true),
		ISIN:             r.str("ISIN", false),
		MatDate:          r.date("MATDATE"),
		FaceUnit:         r.str("FACEUNIT", true),
		ListLevel:        r.integer("LISTLEVEL", true),
		DaysToRedemption: r.integer("DAYSTOREDEMPTION", false),
		FaceValue:        r.dec("FACEVALUE", true),
		InitialFaceValue: r.dec("INITIALFACEVALUE", false),
		CouponFrequency:  r.integer("COUPONFREQUENCY", false),
		CouponDate:       r.date("COUPONDATE"),
		CouponPercent:    r.dec("COUPONPERCENT", false),
		CouponValue:      r.dec("COUPONVALUE", false),
		HighRisk:         r.integer("HIGHRISK", false) == 1,
		Type:             r.str("TYPE", true),
		Group:            r.str("GROUP", false),
		QualifiedOnly:    r.integer("ISQUALIFIEDINVESTORS", false) == 1,
	}
	if r.err == nil && desc.FaceValue.Sign() <= 0 {
		r.fail("FACEVALUE", errNonPositive)
	}
	if r.err != nil {
		return bond.Descriptor{}, bond.ReasonNone, r.err
	}

	switch {
	case desc.QualifiedOnly:
		return desc, bond.ReasonQualifiedOnly, nil
	case desc.DaysToRedemption < 1:
		return desc, bond.ReasonMaturityWindow, nil
	}
	return desc, bond.ReasonNone, nil
}

// fieldReader converts description values and keeps the first failure.
type fieldReader struct {
	op     string
	values map[string]any
	err    error
}

func (r *fieldReader) lookup(name string, required bool) (any, bool) {
	v, ok := r.values[name]
	if (!ok || v == nil) && required && r.err == nil {
		r.err = malformed(r.op, name, errMissing)
	}
	return v, ok && v != nil
}

func (r *fieldReader) fail(name string, err error) {
	if r.err == nil {
		r.err = malformed(r.op, name, err)
	}
}

func (r *fieldReader) str(name string, required bool) string {
	v, ok := r.lookup(name, required)
	if !ok {
		return ""
	}
	s := asString(v)
	if s == "" && required {
		r.fail(name, errMissing)
	}
	return s
}

func (r *fieldReader) integer(name string, required bool) int {
	v, ok := r.lookup(name, required)
	if !ok {
		return 0
	}
	n, present, err := asInt(v)
	if err != nil {
		r.fail(name, fmt.Errorf("parse integer: %w", err))
		return 0
	}
	if !present && required {
		r.fail(name, errMissing)
	}
	return n
}

func (r *fieldReader) dec(name string, required bool) decimal.Decimal {
	v, ok := r.lookup(name, required)
	if !ok {
		return decimal.Zero
	}
	d, present, err := asDecimal(v)
	if err != nil {
		r.fail(name, fmt.Errorf("parse number: %w", err))
		return decimal.Zero
	}
	if !present && required {
		r.fail(name, errMissing)
	}
	return d
}

func (r *fieldReader) date(name string) *time.Time {
	v, ok := r.lookup(name, false)
	if !ok {
		return nil
	}
	t, err := asDate(v)
	if err != nil {
		r.fail(name, fmt.Errorf("parse date: %w", err))
		return nil
	}
	return t
}

var _ DescriptorFetcher = (*DescriptionFetcher)(nil)
